package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultWaitTimeout bounds how long a wait polls before giving up.
	DefaultWaitTimeout = 10 * time.Second
	// DefaultPollInterval separates two evaluations of a wait condition.
	DefaultPollInterval = 100 * time.Millisecond

	errorMessageWaitTimeout = "browser: wait timed out"
)

// ErrWaitTimeout indicates a wait condition did not hold before the timeout.
var ErrWaitTimeout = errors.New(errorMessageWaitTimeout)

// WaitOptions bounds a polling wait.
type WaitOptions struct {
	Timeout  time.Duration
	Interval time.Duration
}

func (options WaitOptions) normalized() WaitOptions {
	if options.Timeout <= 0 {
		options.Timeout = DefaultWaitTimeout
	}
	if options.Interval <= 0 {
		options.Interval = DefaultPollInterval
	}
	if options.Interval > options.Timeout {
		options.Interval = options.Timeout
	}
	return options
}

// Condition reports whether the awaited state holds. A returned error is
// remembered and reported on timeout but does not stop the polling, except
// ErrSessionClosed which ends the wait at once.
type Condition func(ctx context.Context) (bool, error)

// Poll evaluates the condition immediately and then every interval until it
// holds, the timeout elapses, or the context ends.
func Poll(ctx context.Context, options WaitOptions, condition Condition) error {
	waitOptions := options.normalized()
	waitContext, cancel := context.WithTimeout(ctx, waitOptions.Timeout)
	defer cancel()

	ticker := time.NewTicker(waitOptions.Interval)
	defer ticker.Stop()

	var lastConditionErr error
	for {
		satisfied, conditionErr := condition(waitContext)
		if conditionErr == nil && satisfied {
			return nil
		}
		if errors.Is(conditionErr, ErrSessionClosed) {
			return conditionErr
		}
		if conditionErr != nil {
			lastConditionErr = conditionErr
		}

		select {
		case <-waitContext.Done():
			if parentErr := ctx.Err(); parentErr != nil {
				return parentErr
			}
			if lastConditionErr != nil {
				return fmt.Errorf("%w after %s: %w", ErrWaitTimeout, waitOptions.Timeout, lastConditionErr)
			}
			return fmt.Errorf("%w after %s", ErrWaitTimeout, waitOptions.Timeout)
		case <-ticker.C:
		}
	}
}

// WaitForElement polls until the locator matches an element and returns it.
func WaitForElement(ctx context.Context, session Session, locator Locator, options WaitOptions) (Element, error) {
	var located Element
	waitErr := Poll(ctx, options, func(pollContext context.Context) (bool, error) {
		element, findErr := session.FindElement(pollContext, locator)
		if findErr != nil {
			return false, findErr
		}
		located = element
		return true, nil
	})
	if waitErr != nil {
		return nil, waitErr
	}
	return located, nil
}

// WaitForElements polls until the locator matches at least minimum elements.
func WaitForElements(ctx context.Context, session Session, locator Locator, minimum int, options WaitOptions) ([]Element, error) {
	if minimum < 1 {
		minimum = 1
	}
	var located []Element
	waitErr := Poll(ctx, options, func(pollContext context.Context) (bool, error) {
		elements, findErr := session.FindElements(pollContext, locator)
		if findErr != nil {
			return false, findErr
		}
		if len(elements) < minimum {
			return false, fmt.Errorf("%w: %s (found %d, want %d)", ErrElementNotFound, locator, len(elements), minimum)
		}
		located = elements
		return true, nil
	})
	if waitErr != nil {
		return nil, waitErr
	}
	return located, nil
}

// WaitForSelected polls until the element's selection state equals expected.
func WaitForSelected(ctx context.Context, element Element, expected bool, options WaitOptions) error {
	return Poll(ctx, options, func(pollContext context.Context) (bool, error) {
		selected, selectedErr := element.IsSelected(pollContext)
		if selectedErr != nil {
			return false, selectedErr
		}
		return selected == expected, nil
	})
}

// WaitForAttribute polls until the named attribute satisfies the predicate and returns its value.
func WaitForAttribute(ctx context.Context, element Element, name string, predicate func(string) bool, options WaitOptions) (string, error) {
	var observed string
	waitErr := Poll(ctx, options, func(pollContext context.Context) (bool, error) {
		value, attributeErr := element.Attribute(pollContext, name)
		if attributeErr != nil {
			return false, attributeErr
		}
		observed = value
		return predicate(value), nil
	})
	return observed, waitErr
}
