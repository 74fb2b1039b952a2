package scenario

import "time"

// Result is the outcome of one scenario.
type Result struct {
	Suite        string
	Scenario     string
	Backend      string
	Passed       bool
	Err          error
	Observations map[string]string
	Started      time.Time
	Duration     time.Duration
}

// Report aggregates the results of one run.
type Report struct {
	Results []Result
}

// Add appends results to the report.
func (report *Report) Add(results ...Result) {
	report.Results = append(report.Results, results...)
}

// Passed reports whether every scenario passed. An empty report has not passed.
func (report Report) Passed() bool {
	if len(report.Results) == 0 {
		return false
	}
	for _, result := range report.Results {
		if !result.Passed {
			return false
		}
	}
	return true
}

// Failures returns the failed results in run order.
func (report Report) Failures() []Result {
	var failures []Result
	for _, result := range report.Results {
		if !result.Passed {
			failures = append(failures, result)
		}
	}
	return failures
}
