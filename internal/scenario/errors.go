package scenario

import (
	"errors"
	"fmt"
)

const (
	errorMessageAssertion      = "scenario: assertion failed"
	errorMessageUnknownSuite   = "scenario: unknown suite"
	errorMessageSetup          = "scenario: suite setup failed"
	errorMessageScenarioPanic  = "scenario: panic"
	errorMessageElementMissing = "scenario: expected element missing"
)

var (
	// ErrAssertion marks a scenario whose observed page state differs from the expectation.
	ErrAssertion = errors.New(errorMessageAssertion)
	// ErrUnknownSuite indicates a suite name absent from the catalog.
	ErrUnknownSuite = errors.New(errorMessageUnknownSuite)
	// ErrSetup marks scenarios that never ran because the suite session could not be opened.
	ErrSetup = errors.New(errorMessageSetup)
	// ErrScenarioPanic marks a scenario that panicked.
	ErrScenarioPanic = errors.New(errorMessageScenarioPanic)
	// ErrElementMissing indicates an element the scenario needs is absent among the located candidates.
	ErrElementMissing = errors.New(errorMessageElementMissing)
)

// AssertionError describes one failed expectation.
type AssertionError struct {
	Subject  string
	Expected string
	Observed string
}

func (assertionError *AssertionError) Error() string {
	return fmt.Sprintf("%s: %s: expected %s, observed %s", errorMessageAssertion, assertionError.Subject, assertionError.Expected, assertionError.Observed)
}

// Unwrap lets errors.Is match ErrAssertion.
func (assertionError *AssertionError) Unwrap() error {
	return ErrAssertion
}

func newAssertionError(subject string, expected any, observed any) error {
	return &AssertionError{
		Subject:  subject,
		Expected: fmt.Sprint(expected),
		Observed: fmt.Sprint(observed),
	}
}
