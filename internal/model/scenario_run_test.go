package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validScenarioRunInput() ScenarioRunInput {
	return ScenarioRunInput{
		RunID:     "run-1",
		Suite:     "radio",
		Scenario:  "radio_selection",
		Backend:   "rod",
		Passed:    true,
		StartedAt: time.Date(2026, 10, 15, 9, 30, 0, 0, time.FixedZone("EST", -5*60*60)),
		Duration:  1500 * time.Millisecond,
	}
}

func TestNewScenarioRunValidatesInput(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*ScenarioRunInput)
	}{
		{name: "missing run id", mutate: func(input *ScenarioRunInput) { input.RunID = "  " }},
		{name: "missing suite", mutate: func(input *ScenarioRunInput) { input.Suite = "" }},
		{name: "missing scenario", mutate: func(input *ScenarioRunInput) { input.Scenario = "" }},
		{name: "missing start", mutate: func(input *ScenarioRunInput) { input.StartedAt = time.Time{} }},
		{name: "negative duration", mutate: func(input *ScenarioRunInput) { input.Duration = -time.Second }},
		{name: "passed with error", mutate: func(input *ScenarioRunInput) { input.Err = errors.New("boom") }},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(testingT *testing.T) {
			input := validScenarioRunInput()
			testCase.mutate(&input)
			_, err := NewScenarioRun(input)
			require.ErrorIs(testingT, err, ErrInvalidScenarioRun)
		})
	}
}

func TestNewScenarioRunNormalizesFields(t *testing.T) {
	input := validScenarioRunInput()
	run, err := NewScenarioRun(input)
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	require.Equal(t, "run-1", run.RunID)
	require.Equal(t, int64(1500), run.DurationMillis)
	require.Equal(t, time.UTC, run.StartedAt.Location())
	require.True(t, run.StartedAt.Equal(input.StartedAt))
	require.NotNil(t, run.Observations)
	require.Empty(t, run.ErrorMessage)
}

func TestNewScenarioRunKeepsFailureMessage(t *testing.T) {
	input := validScenarioRunInput()
	input.Passed = false
	input.Err = errors.New("checkbox vfb-6-1: expected selected")
	input.Observations = map[string]string{"radio_group_size": "3"}

	run, err := NewScenarioRun(input)
	require.NoError(t, err)
	require.False(t, run.Passed)
	require.Equal(t, "checkbox vfb-6-1: expected selected", run.ErrorMessage)
	require.Equal(t, "3", run.Observations["radio_group_size"])
}
