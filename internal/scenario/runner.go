package scenario

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/formlab/internal/browser"
)

const (
	// DefaultScenarioTimeout bounds a single scenario when the runner leaves it unset.
	DefaultScenarioTimeout = 60 * time.Second

	logEventSuiteSetupFailed    = "suite_setup_failed"
	logEventSuiteTeardownFailed = "suite_teardown_failed"
	logEventSuiteFinished       = "suite_finished"
	logEventScenarioPassed      = "scenario_passed"
	logEventScenarioFailed      = "scenario_failed"
	logFieldSuite               = "suite"
	logFieldScenario            = "scenario"
	logFieldBackend             = "backend"
	logFieldDuration            = "duration"
)

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// Opener opens the suite session; browser.Open when nil.
	Opener          browser.Opener
	BrowserOptions  browser.Options
	Wait            browser.WaitOptions
	ScenarioTimeout time.Duration
	Logger          *zap.Logger
	Clock           func() time.Time
}

// Runner executes suites, each against its own browser session.
type Runner struct {
	opener          browser.Opener
	browserOptions  browser.Options
	wait            browser.WaitOptions
	scenarioTimeout time.Duration
	logger          *zap.Logger
	clock           func() time.Time
}

// NewRunner applies defaults to the configuration.
func NewRunner(config RunnerConfig) *Runner {
	runner := &Runner{
		opener:          config.Opener,
		browserOptions:  config.BrowserOptions,
		wait:            config.Wait,
		scenarioTimeout: config.ScenarioTimeout,
		logger:          config.Logger,
		clock:           config.Clock,
	}
	if runner.opener == nil {
		runner.opener = browser.Open
	}
	if runner.scenarioTimeout <= 0 {
		runner.scenarioTimeout = DefaultScenarioTimeout
	}
	if runner.logger == nil {
		runner.logger = zap.NewNop()
	}
	if runner.clock == nil {
		runner.clock = time.Now
	}
	if runner.browserOptions.Logger == nil {
		runner.browserOptions.Logger = runner.logger
	}
	return runner
}

// Run executes the suites in order and collects every result.
func (runner *Runner) Run(ctx context.Context, suites []Suite) Report {
	var report Report
	for _, suite := range suites {
		report.Add(runner.RunSuite(ctx, suite)...)
	}
	return report
}

// RunSuite opens one session, runs every scenario of the suite against it in
// order, and closes the session once when the suite ends. A failing or
// panicking scenario does not stop the ones after it.
func (runner *Runner) RunSuite(ctx context.Context, suite Suite) []Result {
	backend := runner.backendName()
	suiteLogger := runner.logger.With(zap.String(logFieldSuite, suite.Name), zap.String(logFieldBackend, backend))
	results := make([]Result, 0, len(suite.Scenarios))

	setupStarted := runner.clock()
	session, openErr := runner.opener(ctx, runner.browserOptions)
	if openErr != nil {
		suiteLogger.Error(logEventSuiteSetupFailed, zap.Error(openErr))
		setupErr := fmt.Errorf("%w: %w", ErrSetup, openErr)
		for _, scenario := range suite.Scenarios {
			results = append(results, Result{
				Suite:        suite.Name,
				Scenario:     scenario.Name,
				Backend:      backend,
				Err:          setupErr,
				Observations: map[string]string{},
				Started:      setupStarted,
				Duration:     runner.clock().Sub(setupStarted),
			})
		}
		return results
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			suiteLogger.Warn(logEventSuiteTeardownFailed, zap.Error(closeErr))
		}
		suiteLogger.Info(logEventSuiteFinished, zap.Duration(logFieldDuration, runner.clock().Sub(setupStarted)))
	}()

	for _, scenario := range suite.Scenarios {
		results = append(results, runner.runScenario(ctx, session, suite.Name, backend, scenario, suiteLogger))
	}
	return results
}

func (runner *Runner) runScenario(ctx context.Context, session browser.Session, suiteName string, backend string, scenario Scenario, suiteLogger *zap.Logger) Result {
	scenarioLogger := suiteLogger.With(zap.String(logFieldScenario, scenario.Name))
	harness := newHarness(session, runner.wait, scenarioLogger)

	started := runner.clock()
	runErr := runner.execute(ctx, harness, scenario)
	duration := runner.clock().Sub(started)

	if runErr != nil {
		scenarioLogger.Warn(logEventScenarioFailed, zap.Duration(logFieldDuration, duration), zap.Error(runErr))
	} else {
		scenarioLogger.Info(logEventScenarioPassed, zap.Duration(logFieldDuration, duration))
	}

	return Result{
		Suite:        suiteName,
		Scenario:     scenario.Name,
		Backend:      backend,
		Passed:       runErr == nil,
		Err:          runErr,
		Observations: harness.Observations(),
		Started:      started,
		Duration:     duration,
	}
}

func (runner *Runner) execute(ctx context.Context, harness *Harness, scenario Scenario) (runErr error) {
	if contextErr := ctx.Err(); contextErr != nil {
		return contextErr
	}
	scenarioContext, cancel := context.WithTimeout(ctx, runner.scenarioTimeout)
	defer cancel()
	defer func() {
		if recovered := recover(); recovered != nil {
			runErr = fmt.Errorf("%w: %v", ErrScenarioPanic, recovered)
		}
	}()
	return scenario.Run(scenarioContext, harness)
}

func (runner *Runner) backendName() string {
	return strings.ToLower(strings.TrimSpace(runner.browserOptions.Backend))
}
