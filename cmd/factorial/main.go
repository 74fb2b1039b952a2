package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MarkoPoloResearchLab/formlab/internal/factorial"
)

const (
	commandUseName               = "factorial"
	commandShortDescription      = "Compute the factorial of a number read from stdin"
	commandLongDescription       = "Read one integer from standard input, print its factorial and a greeting"
	inputPromptMessage           = "Enter a number: "
	resultMessageFormat          = "Factorial of %d is %s.\n"
	readInputErrorMessage        = "read input"
	unexpectedArgumentsMessage   = "unexpected command arguments"
	commandInitializationFailure = "failed to configure command"
)

// FactorialApplication constructs and executes the factorial command.
type FactorialApplication struct{}

// NewFactorialApplication creates a FactorialApplication.
func NewFactorialApplication() *FactorialApplication {
	return &FactorialApplication{}
}

// Command builds the Cobra command for the factorial prompt.
func (application *FactorialApplication) Command() (*cobra.Command, error) {
	rootCommand := &cobra.Command{
		Use:          commandUseName,
		Short:        commandShortDescription,
		Long:         commandLongDescription,
		SilenceUsage: true,
		RunE:         application.runCommand,
	}
	return rootCommand, nil
}

func (application *FactorialApplication) runCommand(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return fmt.Errorf("%s: %s", unexpectedArgumentsMessage, strings.Join(arguments, " "))
	}

	output := command.OutOrStdout()
	if _, promptErr := fmt.Fprint(output, inputPromptMessage); promptErr != nil {
		return promptErr
	}

	inputLine, readErr := readLine(command.InOrStdin())
	if readErr != nil {
		return fmt.Errorf("%s: %w", readInputErrorMessage, readErr)
	}

	number, parseErr := factorial.ParseInput(inputLine)
	if parseErr != nil {
		return parseErr
	}

	result, factorialErr := factorial.Factorial(number)
	if factorialErr != nil {
		return factorialErr
	}

	if _, writeErr := fmt.Fprintf(output, resultMessageFormat, number, result.String()); writeErr != nil {
		return writeErr
	}
	return factorial.Display(output)
}

func readLine(input io.Reader) (string, error) {
	line, readErr := bufio.NewReader(input).ReadString('\n')
	if readErr != nil && !errors.Is(readErr, io.EOF) {
		return "", readErr
	}
	return line, nil
}

func main() {
	application := NewFactorialApplication()
	rootCommand, commandErr := application.Command()
	if commandErr != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", commandInitializationFailure, commandErr)
		os.Exit(1)
	}

	if executeErr := rootCommand.Execute(); executeErr != nil {
		os.Exit(1)
	}
}
