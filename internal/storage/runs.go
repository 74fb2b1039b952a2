package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/formlab/internal/model"
	"github.com/MarkoPoloResearchLab/formlab/internal/scenario"
)

const (
	// DefaultListLimit caps history queries that pass a non-positive limit.
	DefaultListLimit = 50

	errorMessageNilDatabase  = "storage: nil database"
	errorMessageRecordReport = "storage: record report"
	errorMessageListRuns     = "storage: list runs"
)

// ErrNilDatabase indicates a repository constructed without a database.
var ErrNilDatabase = errors.New(errorMessageNilDatabase)

// RunRepository persists scenario outcomes.
type RunRepository struct {
	database *gorm.DB
}

// NewRunRepository wraps a migrated database.
func NewRunRepository(database *gorm.DB) (*RunRepository, error) {
	if database == nil {
		return nil, ErrNilDatabase
	}
	return &RunRepository{database: database}, nil
}

// RecordReport stores every result of the report under one run identifier in
// a single transaction and returns the stored rows.
func (repository *RunRepository) RecordReport(ctx context.Context, runID string, report scenario.Report) ([]model.ScenarioRun, error) {
	runs := make([]model.ScenarioRun, 0, len(report.Results))
	for _, result := range report.Results {
		run, runErr := model.NewScenarioRun(model.ScenarioRunInput{
			RunID:        runID,
			Suite:        result.Suite,
			Scenario:     result.Scenario,
			Backend:      result.Backend,
			Passed:       result.Passed,
			Err:          result.Err,
			Observations: result.Observations,
			StartedAt:    result.Started,
			Duration:     result.Duration,
		})
		if runErr != nil {
			return nil, fmt.Errorf("%s: %w", errorMessageRecordReport, runErr)
		}
		runs = append(runs, run)
	}
	if len(runs) == 0 {
		return runs, nil
	}

	transactionErr := repository.database.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return transaction.Create(&runs).Error
	})
	if transactionErr != nil {
		return nil, fmt.Errorf("%s: %w", errorMessageRecordReport, transactionErr)
	}
	return runs, nil
}

// ListRuns returns the most recent runs, newest first.
func (repository *RunRepository) ListRuns(ctx context.Context, limit int) ([]model.ScenarioRun, error) {
	return repository.listRuns(ctx, "", limit)
}

// ListRunsBySuite returns the most recent runs of one suite, newest first.
func (repository *RunRepository) ListRunsBySuite(ctx context.Context, suiteName string, limit int) ([]model.ScenarioRun, error) {
	return repository.listRuns(ctx, strings.TrimSpace(suiteName), limit)
}

func (repository *RunRepository) listRuns(ctx context.Context, suiteName string, limit int) ([]model.ScenarioRun, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query := repository.database.WithContext(ctx).Model(&model.ScenarioRun{})
	if suiteName != "" {
		query = query.Where("suite = ?", suiteName)
	}

	var runs []model.ScenarioRun
	if findErr := query.Order("started_at DESC").Order("created_at DESC").Limit(limit).Find(&runs).Error; findErr != nil {
		return nil, fmt.Errorf("%s: %w", errorMessageListRuns, findErr)
	}
	return runs, nil
}
