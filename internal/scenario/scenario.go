// Package scenario holds the form-control browser scenarios and the runner
// that executes them in suites sharing one browser session.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/formlab/internal/browser"
)

// Func performs one scenario against the harness session.
type Func func(ctx context.Context, harness *Harness) error

// Scenario is a named sequence of browser interactions with assertions.
type Scenario struct {
	Name string
	Run  Func
}

// Harness is what a running scenario sees: the suite session, the wait
// bounds, a logger and a sink for observations.
type Harness struct {
	Session      browser.Session
	Wait         browser.WaitOptions
	Logger       *zap.Logger
	observations map[string]string
}

func newHarness(session browser.Session, wait browser.WaitOptions, logger *zap.Logger) *Harness {
	return &Harness{
		Session:      session,
		Wait:         wait,
		Logger:       logger,
		observations: map[string]string{},
	}
}

// Observe records a value reported with the result but never asserted.
func (harness *Harness) Observe(key string, value any) {
	renderedValue := fmt.Sprint(value)
	harness.observations[key] = renderedValue
	harness.Logger.Info("observation", zap.String("key", key), zap.String("value", renderedValue))
}

// Observations returns a copy of the recorded observations.
func (harness *Harness) Observations() map[string]string {
	return maps.Clone(harness.observations)
}

func (harness *Harness) waitForElement(ctx context.Context, locator browser.Locator) (browser.Element, error) {
	return browser.WaitForElement(ctx, harness.Session, locator, harness.Wait)
}

func (harness *Harness) click(ctx context.Context, locator browser.Locator) (browser.Element, error) {
	element, waitErr := harness.waitForElement(ctx, locator)
	if waitErr != nil {
		return nil, waitErr
	}
	if clickErr := element.Click(ctx); clickErr != nil {
		return nil, fmt.Errorf("click %s: %w", locator, clickErr)
	}
	return element, nil
}

// settleSelected waits for the selection state but leaves judging it to the
// assertion that follows, so a timeout surfaces as an assertion failure.
func (harness *Harness) settleSelected(ctx context.Context, element browser.Element, expected bool) error {
	waitErr := browser.WaitForSelected(ctx, element, expected, harness.Wait)
	if waitErr != nil && !errors.Is(waitErr, browser.ErrWaitTimeout) {
		return waitErr
	}
	return nil
}

func (harness *Harness) settleAttribute(ctx context.Context, element browser.Element, name string, predicate func(string) bool) (string, error) {
	value, waitErr := browser.WaitForAttribute(ctx, element, name, predicate, harness.Wait)
	if waitErr != nil && !errors.Is(waitErr, browser.ErrWaitTimeout) {
		return "", waitErr
	}
	return value, nil
}

// withinFrame runs steps inside the frame document and always switches back
// to the top-level document afterwards.
func (harness *Harness) withinFrame(ctx context.Context, frameLocator browser.Locator, steps func() error) (resultErr error) {
	frame, waitErr := harness.waitForElement(ctx, frameLocator)
	if waitErr != nil {
		return waitErr
	}
	if switchErr := harness.Session.SwitchToFrame(ctx, frame); switchErr != nil {
		return fmt.Errorf("switch to frame %s: %w", frameLocator, switchErr)
	}
	defer func() {
		// the scenario context may already be over; restoring must still happen
		restoreErr := harness.Session.SwitchToDefaultContent(context.WithoutCancel(ctx))
		if restoreErr != nil && resultErr == nil {
			resultErr = fmt.Errorf("switch to default content: %w", restoreErr)
		}
	}()
	return steps()
}

func expectSelected(ctx context.Context, element browser.Element, subject string, expected bool) error {
	selected, selectedErr := element.IsSelected(ctx)
	if selectedErr != nil {
		return fmt.Errorf("read selection of %s: %w", subject, selectedErr)
	}
	if selected != expected {
		return newAssertionError(subject, selectionLabel(expected), selectionLabel(selected))
	}
	return nil
}

func selectionLabel(selected bool) string {
	if selected {
		return "selected"
	}
	return "unselected"
}

func elementWithText(ctx context.Context, elements []browser.Element, text string) (browser.Element, error) {
	for _, element := range elements {
		elementText, textErr := element.Text(ctx)
		if textErr != nil {
			return nil, textErr
		}
		if strings.TrimSpace(elementText) == text {
			return element, nil
		}
	}
	return nil, fmt.Errorf("%w: text %q among %d candidates", ErrElementMissing, text, len(elements))
}
