package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/formlab/internal/factorial"
)

const (
	testPromptMessage        = "Enter a number: "
	testExpectedFiveOutput   = "Enter a number: Factorial of 5 is 120.\nHello INFT-1207 Class\n"
	testExpectedZeroOutput   = "Enter a number: Factorial of 0 is 1.\nHello INFT-1207 Class\n"
	testUnexpectedArgument   = "extra"
	testUnexpectedArgsPrefix = "unexpected command arguments"
)

func executeFactorialCommand(testingT *testing.T, input string, arguments ...string) (string, string, error) {
	testingT.Helper()

	command, commandErr := NewFactorialApplication().Command()
	require.NoError(testingT, commandErr)

	standardOutput := &bytes.Buffer{}
	standardError := &bytes.Buffer{}
	command.SetIn(strings.NewReader(input))
	command.SetOut(standardOutput)
	command.SetErr(standardError)
	command.SetArgs(arguments)

	executionErr := command.Execute()
	return standardOutput.String(), standardError.String(), executionErr
}

func TestFactorialCommandPrintsResultAndGreeting(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "five with newline", input: "5\n", expected: testExpectedFiveOutput},
		{name: "five without newline", input: "5", expected: testExpectedFiveOutput},
		{name: "zero", input: " 0 \n", expected: testExpectedZeroOutput},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(testingT *testing.T) {
			standardOutput, _, executionErr := executeFactorialCommand(testingT, testCase.input)
			require.NoError(testingT, executionErr)
			require.Equal(testingT, testCase.expected, standardOutput)
		})
	}
}

func TestFactorialCommandRejectsInvalidInput(t *testing.T) {
	testCases := []struct {
		name          string
		input         string
		expectedError error
	}{
		{name: "word", input: "five\n", expectedError: factorial.ErrInvalidInput},
		{name: "empty stdin", input: "", expectedError: factorial.ErrInvalidInput},
		{name: "negative", input: "-3\n", expectedError: factorial.ErrNegativeInput},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(testingT *testing.T) {
			standardOutput, standardError, executionErr := executeFactorialCommand(testingT, testCase.input)
			require.ErrorIs(testingT, executionErr, testCase.expectedError)
			require.Equal(testingT, testPromptMessage, standardOutput)
			require.Contains(testingT, standardError, executionErr.Error())
		})
	}
}

func TestFactorialCommandRejectsArguments(t *testing.T) {
	_, _, executionErr := executeFactorialCommand(t, "5\n", testUnexpectedArgument)
	require.Error(t, executionErr)
	require.Contains(t, executionErr.Error(), testUnexpectedArgsPrefix)
}
