package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/MarkoPoloResearchLab/formlab/internal/browser"
)

const (
	commandUseName                = "formlab"
	commandShortDescription       = "Run browser form scenarios"
	commandLongDescription        = "Drive checkbox, radio button and date picker scenarios through a browser backend and keep their history"
	flagNameLogLevel              = "log-level"
	flagUsageLogLevel             = "minimum log level (debug, info, warn, error)"
	environmentKeyLogLevel        = "FORMLAB_LOG_LEVEL"
	defaultLogLevel               = "info"
	loggerCreationErrorMessage    = "logger"
	invalidLogLevelMessage        = "invalid log level"
	missingConfigurationMessage   = "missing required configuration"
	invalidConfigurationMessage   = "invalid configuration"
	commandInitializationFailure  = "failed to configure command"
	flagNotDefinedMessage         = "flag %s not defined"
	environmentConfigurationError = "failed to apply environment configuration"
)

// LoggerBuilder creates the process logger for a log level name.
type LoggerBuilder func(level string) (*zap.Logger, error)

// FormlabApplication constructs and executes the formlab commands.
type FormlabApplication struct {
	configurationLoader *viper.Viper
	runLoader           *viper.Viper
	serveLoader         *viper.Viper
	historyLoader       *viper.Viper
	sessionOpener       browser.Opener
	loggerBuilder       LoggerBuilder
}

// NewFormlabApplication creates a FormlabApplication with default dependencies.
func NewFormlabApplication() *FormlabApplication {
	return &FormlabApplication{
		configurationLoader: viper.New(),
		runLoader:           viper.New(),
		serveLoader:         viper.New(),
		historyLoader:       viper.New(),
		sessionOpener:       browser.Open,
		loggerBuilder:       newProductionLogger,
	}
}

// WithSessionOpener overrides how scenario suites open browser sessions.
func (application *FormlabApplication) WithSessionOpener(sessionOpener browser.Opener) *FormlabApplication {
	application.sessionOpener = sessionOpener
	return application
}

// WithLoggerBuilder overrides the logger construction.
func (application *FormlabApplication) WithLoggerBuilder(loggerBuilder LoggerBuilder) *FormlabApplication {
	application.loggerBuilder = loggerBuilder
	return application
}

// Command builds the root Cobra command and its subcommands.
func (application *FormlabApplication) Command() (*cobra.Command, error) {
	rootCommand := &cobra.Command{
		Use:   commandUseName,
		Short: commandShortDescription,
		Long:  commandLongDescription,
	}

	application.configurationLoader.SetDefault(environmentKeyLogLevel, defaultLogLevel)
	application.configurationLoader.AutomaticEnv()
	rootCommand.PersistentFlags().String(flagNameLogLevel, defaultLogLevel, flagUsageLogLevel)
	if bindErr := bindFlags(application.configurationLoader, rootCommand.PersistentFlags(), []flagBinding{
		{flagName: flagNameLogLevel, environmentKey: environmentKeyLogLevel},
	}); bindErr != nil {
		return nil, bindErr
	}

	runCommand, runErr := application.runCommand()
	if runErr != nil {
		return nil, runErr
	}
	serveCommand, serveErr := application.serveCommand()
	if serveErr != nil {
		return nil, serveErr
	}
	historyCommand, historyErr := application.historyCommand()
	if historyErr != nil {
		return nil, historyErr
	}
	rootCommand.AddCommand(runCommand, serveCommand, historyCommand)

	return rootCommand, nil
}

func (application *FormlabApplication) newLogger() (*zap.Logger, error) {
	logger, loggerErr := application.loggerBuilder(application.configurationLoader.GetString(environmentKeyLogLevel))
	if loggerErr != nil {
		return nil, fmt.Errorf("%s: %w", loggerCreationErrorMessage, loggerErr)
	}
	return logger, nil
}

func newProductionLogger(level string) (*zap.Logger, error) {
	parsedLevel, parseErr := zapcore.ParseLevel(level)
	if parseErr != nil {
		return nil, fmt.Errorf("%s %q: %w", invalidLogLevelMessage, level, parseErr)
	}
	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = zap.NewAtomicLevelAt(parsedLevel)
	return loggerConfig.Build()
}

type flagBinding struct {
	flagName       string
	environmentKey string
}

// bindFlags ties every flag to its environment key and lets a set
// environment variable override the flag default.
func bindFlags(configurationLoader *viper.Viper, flagSet *pflag.FlagSet, bindings []flagBinding) error {
	for _, binding := range bindings {
		flag := flagSet.Lookup(binding.flagName)
		if flag == nil {
			return fmt.Errorf(flagNotDefinedMessage, binding.flagName)
		}
		if bindErr := configurationLoader.BindPFlag(binding.environmentKey, flag); bindErr != nil {
			return bindErr
		}
		if environmentErr := applyEnvironmentConfiguration(flagSet, binding.environmentKey, binding.flagName); environmentErr != nil {
			return environmentErr
		}
	}
	return nil
}

func applyEnvironmentConfiguration(flagSet *pflag.FlagSet, environmentKey string, flagName string) error {
	environmentValue, environmentFound := os.LookupEnv(environmentKey)
	if !environmentFound {
		return nil
	}

	if setErr := flagSet.Set(flagName, environmentValue); setErr != nil {
		return fmt.Errorf("%s: %w", environmentConfigurationError, setErr)
	}

	return nil
}

func main() {
	application := NewFormlabApplication()
	rootCommand, commandErr := application.Command()
	if commandErr != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", commandInitializationFailure, commandErr)
		os.Exit(1)
	}

	if executeErr := rootCommand.Execute(); executeErr != nil {
		os.Exit(1)
	}
}
