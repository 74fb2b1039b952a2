package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidScenarioRun = errors.New("invalid_scenario_run")
)

// ScenarioRun is the persisted outcome of one scenario execution.
type ScenarioRun struct {
	ID             string            `gorm:"primaryKey;size:36"`
	RunID          string            `gorm:"not null;size:36;index"`
	Suite          string            `gorm:"not null;size:100;index"`
	Scenario       string            `gorm:"not null;size:100"`
	Backend        string            `gorm:"not null;size:32"`
	Passed         bool              `gorm:"not null"`
	ErrorMessage   string            `gorm:"size:4000"`
	Observations   map[string]string `gorm:"serializer:json"`
	StartedAt      time.Time         `gorm:"not null;index"`
	DurationMillis int64             `gorm:"not null"`
	CreatedAt      time.Time         `gorm:"autoCreateTime"`
}

// ScenarioRunInput carries the fields of a run before validation.
type ScenarioRunInput struct {
	RunID        string
	Suite        string
	Scenario     string
	Backend      string
	Passed       bool
	Err          error
	Observations map[string]string
	StartedAt    time.Time
	Duration     time.Duration
}

// NewScenarioRun validates the input and assigns a fresh identifier.
func NewScenarioRun(input ScenarioRunInput) (ScenarioRun, error) {
	trimmedRunID := strings.TrimSpace(input.RunID)
	if trimmedRunID == "" {
		return ScenarioRun{}, fmt.Errorf("%w: missing run_id", ErrInvalidScenarioRun)
	}
	trimmedSuite := strings.TrimSpace(input.Suite)
	if trimmedSuite == "" {
		return ScenarioRun{}, fmt.Errorf("%w: missing suite", ErrInvalidScenarioRun)
	}
	trimmedScenario := strings.TrimSpace(input.Scenario)
	if trimmedScenario == "" {
		return ScenarioRun{}, fmt.Errorf("%w: missing scenario", ErrInvalidScenarioRun)
	}
	if input.StartedAt.IsZero() {
		return ScenarioRun{}, fmt.Errorf("%w: missing started_at", ErrInvalidScenarioRun)
	}
	if input.Duration < 0 {
		return ScenarioRun{}, fmt.Errorf("%w: negative duration", ErrInvalidScenarioRun)
	}
	if input.Passed && input.Err != nil {
		return ScenarioRun{}, fmt.Errorf("%w: passed run carries an error", ErrInvalidScenarioRun)
	}

	var errorMessage string
	if input.Err != nil {
		errorMessage = input.Err.Error()
	}
	observations := input.Observations
	if observations == nil {
		observations = map[string]string{}
	}

	return ScenarioRun{
		ID:             uuid.NewString(),
		RunID:          trimmedRunID,
		Suite:          trimmedSuite,
		Scenario:       trimmedScenario,
		Backend:        strings.TrimSpace(input.Backend),
		Passed:         input.Passed,
		ErrorMessage:   errorMessage,
		Observations:   observations,
		StartedAt:      input.StartedAt.UTC(),
		DurationMillis: input.Duration.Milliseconds(),
	}, nil
}
