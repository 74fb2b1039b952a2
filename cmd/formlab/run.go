package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/formlab/internal/browser"
	"github.com/MarkoPoloResearchLab/formlab/internal/fixture"
	"github.com/MarkoPoloResearchLab/formlab/internal/scenario"
	"github.com/MarkoPoloResearchLab/formlab/internal/storage"
	"github.com/MarkoPoloResearchLab/formlab/internal/task"
)

const (
	runCommandUseName          = "run [suite...]"
	runCommandShortDescription = "Run scenario suites"
	runCommandLongDescription  = "Run the checkbox, radio and datepicker suites (all of them when none is named), each against its own browser session"

	flagNameBackend          = "backend"
	flagNameHeadless         = "headless"
	flagNameBrowserPath      = "browser-path"
	flagNameWindowWidth      = "window-width"
	flagNameWindowHeight     = "window-height"
	flagNameWebDriverURL     = "webdriver-url"
	flagNameChromeDriverPath = "chromedriver-path"
	flagNameChromeDriverPort = "chromedriver-port"
	flagNameBaseURL          = "base-url"
	flagNameLocal            = "local"
	flagNameScenarioTimeout  = "scenario-timeout"
	flagNameWaitTimeout      = "wait-timeout"
	flagNamePollInterval     = "poll-interval"
	flagNameRepeat           = "repeat"
	flagNameCycles           = "cycles"
	flagNameDatabase         = "db"

	flagUsageBackend          = "browser backend (chromedp, rod, selenium)"
	flagUsageHeadless         = "run the browser without a window"
	flagUsageBrowserPath      = "browser executable; auto-detected when empty"
	flagUsageWindowWidth      = "browser window width in pixels"
	flagUsageWindowHeight     = "browser window height in pixels"
	flagUsageWebDriverURL     = "remote WebDriver URL for the selenium backend"
	flagUsageChromeDriverPath = "chromedriver executable started by the selenium backend"
	flagUsageChromeDriverPort = "port for a locally started chromedriver"
	flagUsageBaseURL          = "base URL of a running fixture server instead of the public demo pages"
	flagUsageLocal            = "serve the demo pages from an in-process fixture server"
	flagUsageScenarioTimeout  = "time limit for one scenario"
	flagUsageWaitTimeout      = "time limit for one element wait"
	flagUsagePollInterval     = "delay between two evaluations of a wait condition"
	flagUsageRepeat           = "re-run the suites on this interval until interrupted; 0 runs once"
	flagUsageCycles           = "stop repeating after this many cycles; 0 repeats until interrupted"
	flagUsageDatabase         = "SQLite file recording every result; empty disables history"

	environmentKeyBackend          = "FORMLAB_BACKEND"
	environmentKeyHeadless         = "FORMLAB_HEADLESS"
	environmentKeyBrowserPath      = "FORMLAB_BROWSER_PATH"
	environmentKeyWindowWidth      = "FORMLAB_WINDOW_WIDTH"
	environmentKeyWindowHeight     = "FORMLAB_WINDOW_HEIGHT"
	environmentKeyWebDriverURL     = "FORMLAB_WEBDRIVER_URL"
	environmentKeyChromeDriverPath = "FORMLAB_CHROMEDRIVER_PATH"
	environmentKeyChromeDriverPort = "FORMLAB_CHROMEDRIVER_PORT"
	environmentKeyBaseURL          = "FORMLAB_BASE_URL"
	environmentKeyLocal            = "FORMLAB_LOCAL"
	environmentKeyScenarioTimeout  = "FORMLAB_SCENARIO_TIMEOUT"
	environmentKeyWaitTimeout      = "FORMLAB_WAIT_TIMEOUT"
	environmentKeyPollInterval     = "FORMLAB_POLL_INTERVAL"
	environmentKeyRepeat           = "FORMLAB_REPEAT"
	environmentKeyCycles           = "FORMLAB_CYCLES"
	environmentKeyRunDatabase      = "FORMLAB_DB"

	defaultBackend   = browser.BackendChromedp
	localFixtureAddr = "127.0.0.1:0"
	shutdownTimeout  = 5 * time.Second

	passLabel            = "PASS"
	failLabel            = "FAIL"
	resultLineFormat     = "%s %s/%s [%s] %s\n"
	detailLineFormat     = "     %s\n"
	summaryLineFormat    = "%d passed, %d failed\n"
	cycleHeaderFormat    = "cycle %d\n"
	fixtureServingFormat = "serving fixture pages at %s\n"

	logEventRecordFailed   = "record_report_failed"
	logEventRunRecorded    = "run_recorded"
	logEventRerunRequested = "rerun_requested"
	logFieldRunID          = "run_id"
	logFieldResults        = "results"
	logFieldSignal         = "signal"

	errorMessageScenariosFailed = "scenarios failed"
	localWithBaseURLMessage     = "--local and --base-url are mutually exclusive"
)

// ErrScenariosFailed is returned by the run command when any scenario failed.
var ErrScenariosFailed = errors.New(errorMessageScenariosFailed)

var (
	passColor = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
)

// RunConfig captures the configuration of one run command.
type RunConfig struct {
	Suites           []string
	Backend          string
	Headless         bool
	BrowserPath      string
	WindowWidth      int
	WindowHeight     int
	WebDriverURL     string
	ChromeDriverPath string
	ChromeDriverPort int
	BaseURL          string
	Local            bool
	ScenarioTimeout  time.Duration
	WaitTimeout      time.Duration
	PollInterval     time.Duration
	Repeat           time.Duration
	Cycles           int
	DatabasePath     string
}

func (application *FormlabApplication) runCommand() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   runCommandUseName,
		Short: runCommandShortDescription,
		Long:  runCommandLongDescription,
		RunE:  application.runScenarios,
	}

	loader := application.runLoader
	loader.SetDefault(environmentKeyBackend, defaultBackend)
	loader.SetDefault(environmentKeyHeadless, true)
	loader.SetDefault(environmentKeyWindowWidth, browser.DefaultWindowWidth)
	loader.SetDefault(environmentKeyWindowHeight, browser.DefaultWindowHeight)
	loader.SetDefault(environmentKeyChromeDriverPort, browser.DefaultChromeDriverPort)
	loader.SetDefault(environmentKeyScenarioTimeout, scenario.DefaultScenarioTimeout)
	loader.SetDefault(environmentKeyWaitTimeout, browser.DefaultWaitTimeout)
	loader.SetDefault(environmentKeyPollInterval, browser.DefaultPollInterval)
	loader.SetDefault(environmentKeyRunDatabase, storage.DefaultDataSourceName)
	loader.AutomaticEnv()

	commandFlags := command.Flags()
	commandFlags.String(flagNameBackend, defaultBackend, flagUsageBackend)
	commandFlags.Bool(flagNameHeadless, true, flagUsageHeadless)
	commandFlags.String(flagNameBrowserPath, "", flagUsageBrowserPath)
	commandFlags.Int(flagNameWindowWidth, browser.DefaultWindowWidth, flagUsageWindowWidth)
	commandFlags.Int(flagNameWindowHeight, browser.DefaultWindowHeight, flagUsageWindowHeight)
	commandFlags.String(flagNameWebDriverURL, "", flagUsageWebDriverURL)
	commandFlags.String(flagNameChromeDriverPath, "", flagUsageChromeDriverPath)
	commandFlags.Int(flagNameChromeDriverPort, browser.DefaultChromeDriverPort, flagUsageChromeDriverPort)
	commandFlags.String(flagNameBaseURL, "", flagUsageBaseURL)
	commandFlags.Bool(flagNameLocal, false, flagUsageLocal)
	commandFlags.Duration(flagNameScenarioTimeout, scenario.DefaultScenarioTimeout, flagUsageScenarioTimeout)
	commandFlags.Duration(flagNameWaitTimeout, browser.DefaultWaitTimeout, flagUsageWaitTimeout)
	commandFlags.Duration(flagNamePollInterval, browser.DefaultPollInterval, flagUsagePollInterval)
	commandFlags.Duration(flagNameRepeat, 0, flagUsageRepeat)
	commandFlags.Int(flagNameCycles, 0, flagUsageCycles)
	commandFlags.String(flagNameDatabase, storage.DefaultDataSourceName, flagUsageDatabase)

	bindErr := bindFlags(loader, commandFlags, []flagBinding{
		{flagName: flagNameBackend, environmentKey: environmentKeyBackend},
		{flagName: flagNameHeadless, environmentKey: environmentKeyHeadless},
		{flagName: flagNameBrowserPath, environmentKey: environmentKeyBrowserPath},
		{flagName: flagNameWindowWidth, environmentKey: environmentKeyWindowWidth},
		{flagName: flagNameWindowHeight, environmentKey: environmentKeyWindowHeight},
		{flagName: flagNameWebDriverURL, environmentKey: environmentKeyWebDriverURL},
		{flagName: flagNameChromeDriverPath, environmentKey: environmentKeyChromeDriverPath},
		{flagName: flagNameChromeDriverPort, environmentKey: environmentKeyChromeDriverPort},
		{flagName: flagNameBaseURL, environmentKey: environmentKeyBaseURL},
		{flagName: flagNameLocal, environmentKey: environmentKeyLocal},
		{flagName: flagNameScenarioTimeout, environmentKey: environmentKeyScenarioTimeout},
		{flagName: flagNameWaitTimeout, environmentKey: environmentKeyWaitTimeout},
		{flagName: flagNamePollInterval, environmentKey: environmentKeyPollInterval},
		{flagName: flagNameRepeat, environmentKey: environmentKeyRepeat},
		{flagName: flagNameCycles, environmentKey: environmentKeyCycles},
		{flagName: flagNameDatabase, environmentKey: environmentKeyRunDatabase},
	})
	if bindErr != nil {
		return nil, bindErr
	}

	return command, nil
}

func (application *FormlabApplication) loadRunConfig(arguments []string) RunConfig {
	loader := application.runLoader
	return RunConfig{
		Suites:           arguments,
		Backend:          strings.ToLower(strings.TrimSpace(loader.GetString(environmentKeyBackend))),
		Headless:         loader.GetBool(environmentKeyHeadless),
		BrowserPath:      strings.TrimSpace(loader.GetString(environmentKeyBrowserPath)),
		WindowWidth:      loader.GetInt(environmentKeyWindowWidth),
		WindowHeight:     loader.GetInt(environmentKeyWindowHeight),
		WebDriverURL:     strings.TrimSpace(loader.GetString(environmentKeyWebDriverURL)),
		ChromeDriverPath: strings.TrimSpace(loader.GetString(environmentKeyChromeDriverPath)),
		ChromeDriverPort: loader.GetInt(environmentKeyChromeDriverPort),
		BaseURL:          strings.TrimSpace(loader.GetString(environmentKeyBaseURL)),
		Local:            loader.GetBool(environmentKeyLocal),
		ScenarioTimeout:  loader.GetDuration(environmentKeyScenarioTimeout),
		WaitTimeout:      loader.GetDuration(environmentKeyWaitTimeout),
		PollInterval:     loader.GetDuration(environmentKeyPollInterval),
		Repeat:           loader.GetDuration(environmentKeyRepeat),
		Cycles:           loader.GetInt(environmentKeyCycles),
		DatabasePath:     strings.TrimSpace(loader.GetString(environmentKeyRunDatabase)),
	}
}

func ensureRunConfiguration(configuration RunConfig) error {
	if configuration.Backend == "" {
		return fmt.Errorf("%s: %s", missingConfigurationMessage, flagNameBackend)
	}
	if !slices.Contains(browser.Backends(), configuration.Backend) {
		return fmt.Errorf("%w: %s (available: %s)", browser.ErrUnsupportedBackend, configuration.Backend, strings.Join(browser.Backends(), ", "))
	}
	if configuration.Local && configuration.BaseURL != "" {
		return fmt.Errorf("%s: %s", invalidConfigurationMessage, localWithBaseURLMessage)
	}

	var invalidParameters []string
	if configuration.ScenarioTimeout <= 0 {
		invalidParameters = append(invalidParameters, flagNameScenarioTimeout)
	}
	if configuration.WaitTimeout <= 0 {
		invalidParameters = append(invalidParameters, flagNameWaitTimeout)
	}
	if configuration.PollInterval <= 0 {
		invalidParameters = append(invalidParameters, flagNamePollInterval)
	}
	if configuration.Repeat < 0 {
		invalidParameters = append(invalidParameters, flagNameRepeat)
	}
	if configuration.Cycles < 0 {
		invalidParameters = append(invalidParameters, flagNameCycles)
	}
	if len(invalidParameters) == 0 {
		return nil
	}
	return fmt.Errorf("%s: %s", invalidConfigurationMessage, strings.Join(invalidParameters, ", "))
}

func (application *FormlabApplication) runScenarios(command *cobra.Command, arguments []string) error {
	runConfig := application.loadRunConfig(arguments)
	if validationErr := ensureRunConfiguration(runConfig); validationErr != nil {
		return validationErr
	}
	selectedSuites, selectErr := scenario.Select(scenario.Catalog(scenario.DefaultPages()), runConfig.Suites)
	if selectErr != nil {
		return selectErr
	}
	command.SilenceUsage = true

	logger, loggerErr := application.newLogger()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(command.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pages, releasePages, pagesErr := resolvePages(command.OutOrStdout(), runConfig, logger)
	if pagesErr != nil {
		return pagesErr
	}
	defer releasePages()

	repository, closeRepository, repositoryErr := openRunRepository(runConfig.DatabasePath)
	if repositoryErr != nil {
		return repositoryErr
	}
	defer closeRepository()

	suites, suitesErr := scenario.Select(scenario.Catalog(pages), scenario.SuiteNames(selectedSuites))
	if suitesErr != nil {
		return suitesErr
	}
	execution := &suiteExecution{
		runner: scenario.NewRunner(scenario.RunnerConfig{
			Opener: application.sessionOpener,
			BrowserOptions: browser.Options{
				Backend:          runConfig.Backend,
				Headless:         runConfig.Headless,
				BrowserPath:      runConfig.BrowserPath,
				WindowWidth:      runConfig.WindowWidth,
				WindowHeight:     runConfig.WindowHeight,
				WebDriverURL:     runConfig.WebDriverURL,
				ChromeDriverPath: runConfig.ChromeDriverPath,
				ChromeDriverPort: runConfig.ChromeDriverPort,
			},
			Wait:            browser.WaitOptions{Timeout: runConfig.WaitTimeout, Interval: runConfig.PollInterval},
			ScenarioTimeout: runConfig.ScenarioTimeout,
			Logger:          logger,
		}),
		suites:     suites,
		repository: repository,
		output:     command.OutOrStdout(),
		logger:     logger,
	}

	if runConfig.Repeat <= 0 {
		return execution.runOnce(ctx)
	}
	hangups := make(chan os.Signal, 1)
	signal.Notify(hangups, syscall.SIGHUP)
	defer signal.Stop(hangups)
	execution.rerunRequests = hangups
	return execution.runRepeatedly(ctx, runConfig.Repeat, runConfig.Cycles)
}

// resolvePages picks the page URLs and starts a fixture server when asked to.
// The returned release func stops that server.
func resolvePages(output io.Writer, runConfig RunConfig, logger *zap.Logger) (scenario.Pages, func(), error) {
	switch {
	case runConfig.Local:
		server, startErr := fixture.Start(localFixtureAddr, logger)
		if startErr != nil {
			return scenario.Pages{}, nil, startErr
		}
		fmt.Fprintf(output, fixtureServingFormat, server.URL())
		release := func() {
			shutdownContext, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = server.Shutdown(shutdownContext)
		}
		return scenario.LocalPages(server.URL()), release, nil
	case runConfig.BaseURL != "":
		return scenario.LocalPages(runConfig.BaseURL), func() {}, nil
	default:
		return scenario.DefaultPages(), func() {}, nil
	}
}

// openRunRepository opens the history database when a path is configured.
// A nil repository disables recording.
func openRunRepository(databasePath string) (*storage.RunRepository, func(), error) {
	if databasePath == "" {
		return nil, func() {}, nil
	}
	database, openErr := storage.OpenHistory(databasePath)
	if openErr != nil {
		return nil, nil, openErr
	}
	closeDatabase := func() {
		_ = storage.Close(database)
	}
	repository, repositoryErr := storage.NewRunRepository(database)
	if repositoryErr != nil {
		closeDatabase()
		return nil, nil, repositoryErr
	}
	return repository, closeDatabase, nil
}

type suiteExecution struct {
	runner        *scenario.Runner
	suites        []scenario.Suite
	repository    *storage.RunRepository
	output        io.Writer
	logger        *zap.Logger
	rerunRequests <-chan os.Signal
}

func (execution *suiteExecution) runOnce(ctx context.Context) error {
	report := execution.execute(ctx)
	if !report.Passed() {
		return ErrScenariosFailed
	}
	return nil
}

// runRepeatedly re-runs the suites on the scheduler until the context ends
// or the cycle limit is reached. Every rerun request starts a cycle without
// waiting for the interval.
func (execution *suiteExecution) runRepeatedly(ctx context.Context, interval time.Duration, cycleLimit int) error {
	var failedCycles atomic.Int64
	scheduler := task.NewScheduler(interval, func(cycleContext context.Context, cycle int) {
		fmt.Fprintf(execution.output, cycleHeaderFormat, cycle)
		if report := execution.execute(cycleContext); !report.Passed() {
			failedCycles.Add(1)
		}
	}, execution.logger).WithCycleLimit(cycleLimit)

	scheduler.Start(ctx)
	forwardingDone := make(chan struct{})
	go execution.forwardRerunRequests(scheduler, forwardingDone)
	scheduler.Wait()
	close(forwardingDone)
	scheduler.Stop()

	if failed := failedCycles.Load(); failed > 0 {
		return fmt.Errorf("%w in %d of %d cycles", ErrScenariosFailed, failed, scheduler.Cycles())
	}
	return nil
}

func (execution *suiteExecution) forwardRerunRequests(scheduler *task.Scheduler, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case requestSignal := <-execution.rerunRequests:
			execution.logger.Info(logEventRerunRequested, zap.String(logFieldSignal, requestSignal.String()))
			scheduler.Trigger()
		}
	}
}

func (execution *suiteExecution) execute(ctx context.Context) scenario.Report {
	report := execution.runner.Run(ctx, execution.suites)
	printReport(execution.output, report)
	execution.record(ctx, report)
	return report
}

// record stores the report even when the run was interrupted.
func (execution *suiteExecution) record(ctx context.Context, report scenario.Report) {
	if execution.repository == nil || len(report.Results) == 0 {
		return
	}
	runID := storage.NewID()
	runs, recordErr := execution.repository.RecordReport(context.WithoutCancel(ctx), runID, report)
	if recordErr != nil {
		execution.logger.Error(logEventRecordFailed, zap.String(logFieldRunID, runID), zap.Error(recordErr))
		return
	}
	execution.logger.Info(logEventRunRecorded, zap.String(logFieldRunID, runID), zap.Int(logFieldResults, len(runs)))
}

func printReport(output io.Writer, report scenario.Report) {
	var passedCount int
	for _, result := range report.Results {
		label := failColor.Sprint(failLabel)
		if result.Passed {
			label = passColor.Sprint(passLabel)
			passedCount++
		}
		fmt.Fprintf(output, resultLineFormat, label, result.Suite, result.Scenario, result.Backend, result.Duration.Round(time.Millisecond))
		if result.Err != nil {
			fmt.Fprintf(output, detailLineFormat, result.Err)
		}
		for _, key := range sortedKeys(result.Observations) {
			fmt.Fprintf(output, detailLineFormat, key+"="+result.Observations[key])
		}
	}
	fmt.Fprintf(output, summaryLineFormat, passedCount, len(report.Results)-passedCount)
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
