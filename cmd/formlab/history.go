package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MarkoPoloResearchLab/formlab/internal/model"
	"github.com/MarkoPoloResearchLab/formlab/internal/storage"
)

const (
	historyCommandUseName          = "history"
	historyCommandShortDescription = "List recorded scenario runs"
	historyCommandLongDescription  = "List recorded scenario results, newest first"
	flagNameHistoryDatabase        = "db"
	flagNameLimit                  = "limit"
	flagNameSuite                  = "suite"
	flagNameFormat                 = "format"
	flagUsageHistoryDatabase       = "SQLite file holding the run history"
	flagUsageLimit                 = "maximum number of results to list"
	flagUsageSuite                 = "only list results of this suite"
	flagUsageFormat                = "output format (text, yaml)"
	environmentKeyHistoryDatabase  = "FORMLAB_DB"
	environmentKeyLimit            = "FORMLAB_HISTORY_LIMIT"
	environmentKeySuite            = "FORMLAB_HISTORY_SUITE"
	environmentKeyFormat           = "FORMLAB_HISTORY_FORMAT"
	formatText                     = "text"
	formatYAML                     = "yaml"
	noRecordedRunsMessage          = "no recorded runs"
	historyLineFormat              = "%s  %s  %s/%s  [%s]  %s  %dms\n"
	shortRunIDLength               = 8
	errorMessageHistoryNotFound    = "no run history"
)

// ErrHistoryNotFound indicates the history file does not exist yet.
var ErrHistoryNotFound = errors.New(errorMessageHistoryNotFound)

type historyRecord struct {
	RunID          string            `yaml:"run_id"`
	Suite          string            `yaml:"suite"`
	Scenario       string            `yaml:"scenario"`
	Backend        string            `yaml:"backend"`
	Passed         bool              `yaml:"passed"`
	Error          string            `yaml:"error,omitempty"`
	Observations   map[string]string `yaml:"observations,omitempty"`
	StartedAt      string            `yaml:"started_at"`
	DurationMillis int64             `yaml:"duration_ms"`
}

func (application *FormlabApplication) historyCommand() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   historyCommandUseName,
		Short: historyCommandShortDescription,
		Long:  historyCommandLongDescription,
		RunE:  application.listHistory,
	}

	loader := application.historyLoader
	loader.SetDefault(environmentKeyHistoryDatabase, storage.DefaultDataSourceName)
	loader.SetDefault(environmentKeyLimit, storage.DefaultListLimit)
	loader.SetDefault(environmentKeyFormat, formatText)
	loader.AutomaticEnv()

	commandFlags := command.Flags()
	commandFlags.String(flagNameHistoryDatabase, storage.DefaultDataSourceName, flagUsageHistoryDatabase)
	commandFlags.Int(flagNameLimit, storage.DefaultListLimit, flagUsageLimit)
	commandFlags.String(flagNameSuite, "", flagUsageSuite)
	commandFlags.String(flagNameFormat, formatText, flagUsageFormat)

	if bindErr := bindFlags(loader, commandFlags, []flagBinding{
		{flagName: flagNameHistoryDatabase, environmentKey: environmentKeyHistoryDatabase},
		{flagName: flagNameLimit, environmentKey: environmentKeyLimit},
		{flagName: flagNameSuite, environmentKey: environmentKeySuite},
		{flagName: flagNameFormat, environmentKey: environmentKeyFormat},
	}); bindErr != nil {
		return nil, bindErr
	}

	return command, nil
}

func (application *FormlabApplication) listHistory(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return fmt.Errorf("%s: %s", unexpectedArgumentsMessage, strings.Join(arguments, " "))
	}
	loader := application.historyLoader
	databasePath := strings.TrimSpace(loader.GetString(environmentKeyHistoryDatabase))
	suiteName := strings.ToLower(strings.TrimSpace(loader.GetString(environmentKeySuite)))
	format := strings.ToLower(strings.TrimSpace(loader.GetString(environmentKeyFormat)))
	limit := loader.GetInt(environmentKeyLimit)

	if databasePath == "" {
		return fmt.Errorf("%s: %s", missingConfigurationMessage, flagNameHistoryDatabase)
	}
	if format != formatText && format != formatYAML {
		return fmt.Errorf("%s: %s %q", invalidConfigurationMessage, flagNameFormat, format)
	}
	command.SilenceUsage = true

	if _, statErr := os.Stat(databasePath); errors.Is(statErr, fs.ErrNotExist) {
		return fmt.Errorf("%w at %s", ErrHistoryNotFound, databasePath)
	}
	database, openErr := storage.OpenHistory(databasePath)
	if openErr != nil {
		return openErr
	}
	defer func() {
		_ = storage.Close(database)
	}()

	repository, repositoryErr := storage.NewRunRepository(database)
	if repositoryErr != nil {
		return repositoryErr
	}

	var (
		runs    []model.ScenarioRun
		listErr error
	)
	if suiteName == "" {
		runs, listErr = repository.ListRuns(command.Context(), limit)
	} else {
		runs, listErr = repository.ListRunsBySuite(command.Context(), suiteName, limit)
	}
	if listErr != nil {
		return listErr
	}

	if format == formatYAML {
		return writeHistoryYAML(command.OutOrStdout(), runs)
	}
	writeHistoryText(command.OutOrStdout(), runs)
	return nil
}

func writeHistoryText(output io.Writer, runs []model.ScenarioRun) {
	if len(runs) == 0 {
		fmt.Fprintln(output, noRecordedRunsMessage)
		return
	}
	for _, run := range runs {
		label := failColor.Sprint(failLabel)
		if run.Passed {
			label = passColor.Sprint(passLabel)
		}
		fmt.Fprintf(output, historyLineFormat,
			run.StartedAt.Format(time.RFC3339), shortRunID(run.RunID), run.Suite, run.Scenario, run.Backend, label, run.DurationMillis)
		if run.ErrorMessage != "" {
			fmt.Fprintf(output, detailLineFormat, run.ErrorMessage)
		}
	}
}

func writeHistoryYAML(output io.Writer, runs []model.ScenarioRun) error {
	records := make([]historyRecord, 0, len(runs))
	for _, run := range runs {
		records = append(records, historyRecord{
			RunID:          run.RunID,
			Suite:          run.Suite,
			Scenario:       run.Scenario,
			Backend:        run.Backend,
			Passed:         run.Passed,
			Error:          run.ErrorMessage,
			Observations:   run.Observations,
			StartedAt:      run.StartedAt.UTC().Format(time.RFC3339Nano),
			DurationMillis: run.DurationMillis,
		})
	}

	encoder := yaml.NewEncoder(output)
	encoder.SetIndent(2)
	if encodeErr := encoder.Encode(records); encodeErr != nil {
		return encodeErr
	}
	return encoder.Close()
}

func shortRunID(runID string) string {
	if len(runID) <= shortRunIDLength {
		return runID
	}
	return runID[:shortRunIDLength]
}
