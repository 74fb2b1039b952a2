package storage_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/formlab/internal/model"
	"github.com/MarkoPoloResearchLab/formlab/internal/scenario"
	"github.com/MarkoPoloResearchLab/formlab/internal/storage"
	"github.com/MarkoPoloResearchLab/formlab/internal/testutil"
)

const (
	testUnsupportedDriverName        = "unsupported-driver"
	testUnsupportedDriverDescription = "unsupported driver"
	testMissingDriverDescription     = "missing driver"
	testMissingDataSourceDescription = "missing data source"
	testBackendName                  = "chromedp"
	testFirstRunID                   = "run-first"
	testSecondRunID                  = "run-second"
)

var testRunStart = time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)

func TestOpenDatabaseWithSQLiteConfiguration(t *testing.T) {
	database, openErr := storage.OpenDatabase(testutil.SQLiteTestConfiguration())
	require.NoError(t, openErr)
	require.NotNil(t, database)
	require.NoError(t, storage.AutoMigrate(database))
	require.True(t, database.Migrator().HasTable(&model.ScenarioRun{}))

	require.NoError(t, storage.Close(database))
}

func TestOpenHistoryCreatesSchema(t *testing.T) {
	historyPath := filepath.Join(t.TempDir(), "history.db")

	database, openErr := storage.OpenHistory(historyPath)
	require.NoError(t, openErr)
	require.True(t, database.Migrator().HasTable(&model.ScenarioRun{}))
	require.NoError(t, storage.Close(database))

	_, statErr := os.Stat(historyPath)
	require.NoError(t, statErr)

	reopened, reopenErr := storage.OpenHistory(historyPath)
	require.NoError(t, reopenErr)
	require.NoError(t, storage.Close(reopened))
}

func TestOpenDatabaseValidation(t *testing.T) {
	dataSourceName := testutil.SQLiteTestConfiguration().DataSourceName

	testCases := []struct {
		name              string
		configuration     storage.Config
		expectedRootError error
	}{
		{
			name:              testMissingDriverDescription,
			configuration:     storage.Config{DriverName: " ", DataSourceName: dataSourceName},
			expectedRootError: storage.ErrMissingDriverName,
		},
		{
			name:              testUnsupportedDriverDescription,
			configuration:     storage.Config{DriverName: testUnsupportedDriverName, DataSourceName: dataSourceName},
			expectedRootError: storage.ErrUnsupportedDriver,
		},
		{
			name:              testMissingDataSourceDescription,
			configuration:     storage.Config{DriverName: storage.DriverNameSQLite, DataSourceName: ""},
			expectedRootError: storage.ErrMissingDataSourceName,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(testingT *testing.T) {
			_, openErr := storage.OpenDatabase(testCase.configuration)
			require.Error(testingT, openErr)
			require.True(testingT, errors.Is(openErr, testCase.expectedRootError))
		})
	}
}

func TestNewRunRepositoryRejectsNilDatabase(t *testing.T) {
	_, repositoryErr := storage.NewRunRepository(nil)
	require.ErrorIs(t, repositoryErr, storage.ErrNilDatabase)
}

func buildReport(started time.Time) scenario.Report {
	return scenario.Report{Results: []scenario.Result{
		{
			Suite:        scenario.SuiteRadio,
			Scenario:     scenario.ScenarioRadio,
			Backend:      testBackendName,
			Passed:       true,
			Observations: map[string]string{"radio_group_size": "3"},
			Started:      started,
			Duration:     1200 * time.Millisecond,
		},
		{
			Suite:    scenario.SuiteDatePicker,
			Scenario: scenario.ScenarioSingleDate,
			Backend:  testBackendName,
			Passed:   false,
			Err:      &scenario.AssertionError{Subject: "date picker value", Expected: "a selected date", Observed: "an empty input"},
			Started:  started.Add(2 * time.Second),
			Duration: 3 * time.Second,
		},
	}}
}

func TestRecordReportAndListRuns(t *testing.T) {
	repository, repositoryErr := storage.NewRunRepository(testutil.OpenSQLiteTestDatabase(t))
	require.NoError(t, repositoryErr)
	ctx := context.Background()

	recorded, recordErr := repository.RecordReport(ctx, testFirstRunID, buildReport(testRunStart))
	require.NoError(t, recordErr)
	require.Len(t, recorded, 2)

	_, secondErr := repository.RecordReport(ctx, testSecondRunID, buildReport(testRunStart.Add(time.Hour)))
	require.NoError(t, secondErr)

	runs, listErr := repository.ListRuns(ctx, 0)
	require.NoError(t, listErr)
	require.Len(t, runs, 4)
	require.Equal(t, testSecondRunID, runs[0].RunID)
	require.Equal(t, scenario.ScenarioSingleDate, runs[0].Scenario)
	require.False(t, runs[0].Passed)
	require.Contains(t, runs[0].ErrorMessage, "date picker value")
	require.Equal(t, int64(3000), runs[0].DurationMillis)
	require.Equal(t, testFirstRunID, runs[3].RunID)
	require.Equal(t, "3", runs[3].Observations["radio_group_size"])

	limited, limitedErr := repository.ListRuns(ctx, 1)
	require.NoError(t, limitedErr)
	require.Len(t, limited, 1)
}

func TestListRunsBySuite(t *testing.T) {
	repository, repositoryErr := storage.NewRunRepository(testutil.OpenSQLiteTestDatabase(t))
	require.NoError(t, repositoryErr)
	ctx := context.Background()

	_, recordErr := repository.RecordReport(ctx, testFirstRunID, buildReport(testRunStart))
	require.NoError(t, recordErr)

	radioRuns, radioErr := repository.ListRunsBySuite(ctx, " "+scenario.SuiteRadio+" ", 10)
	require.NoError(t, radioErr)
	require.Len(t, radioRuns, 1)
	require.True(t, radioRuns[0].Passed)
	require.Equal(t, scenario.ScenarioRadio, radioRuns[0].Scenario)

	unknownRuns, unknownErr := repository.ListRunsBySuite(ctx, "sliders", 10)
	require.NoError(t, unknownErr)
	require.Empty(t, unknownRuns)
}

func TestRecordReportRejectsInvalidResultsAtomically(t *testing.T) {
	repository, repositoryErr := storage.NewRunRepository(testutil.OpenSQLiteTestDatabase(t))
	require.NoError(t, repositoryErr)
	ctx := context.Background()

	report := buildReport(testRunStart)
	report.Add(scenario.Result{Suite: scenario.SuiteCheckbox, Scenario: "", Backend: testBackendName, Started: testRunStart})

	_, recordErr := repository.RecordReport(ctx, testFirstRunID, report)
	require.ErrorIs(t, recordErr, model.ErrInvalidScenarioRun)

	runs, listErr := repository.ListRuns(ctx, 0)
	require.NoError(t, listErr)
	require.Empty(t, runs)
}

func TestRecordEmptyReport(t *testing.T) {
	repository, repositoryErr := storage.NewRunRepository(testutil.OpenSQLiteTestDatabase(t))
	require.NoError(t, repositoryErr)

	recorded, recordErr := repository.RecordReport(context.Background(), testFirstRunID, scenario.Report{})
	require.NoError(t, recordErr)
	require.Empty(t, recorded)
}
