package factorial

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"
)

const (
	// GreetingMessage is the fixed greeting printed after every computation.
	GreetingMessage = "Hello INFT-1207 Class"

	errorMessageNegativeInput = "factorial: not defined for negative numbers"
	errorMessageInvalidInput  = "factorial: input is not an integer"
)

var (
	// ErrNegativeInput indicates a factorial was requested for a negative number.
	ErrNegativeInput = errors.New(errorMessageNegativeInput)
	// ErrInvalidInput indicates the provided text could not be parsed as an integer.
	ErrInvalidInput = errors.New(errorMessageInvalidInput)
)

// Factorial computes n! iteratively. Zero yields one; negative input yields ErrNegativeInput.
func Factorial(n int) (*big.Int, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeInput, n)
	}

	result := big.NewInt(1)
	for multiplier := int64(2); multiplier <= int64(n); multiplier++ {
		result.Mul(result, big.NewInt(multiplier))
	}
	return result, nil
}

// ParseInput parses a single base-10 integer, ignoring surrounding whitespace.
func ParseInput(text string) (int, error) {
	trimmed := strings.TrimSpace(text)
	value, parseErr := strconv.Atoi(trimmed)
	if parseErr != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidInput, trimmed)
	}
	return value, nil
}

// Greeting returns the fixed greeting message.
func Greeting() string {
	return GreetingMessage
}

// Display writes the greeting on its own line.
func Display(writer io.Writer) error {
	_, writeErr := fmt.Fprintln(writer, Greeting())
	return writeErr
}
