package scenario_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"

	"github.com/MarkoPoloResearchLab/formlab/internal/browser"
	"github.com/MarkoPoloResearchLab/formlab/internal/fixture"
	"github.com/MarkoPoloResearchLab/formlab/internal/scenario"
	"github.com/MarkoPoloResearchLab/formlab/internal/testutil"
)

const (
	testBaseURL             = "http://fixture.test"
	testBackendName         = "fake"
	testWaitTimeout         = 60 * time.Millisecond
	testPollInterval        = 5 * time.Millisecond
	testScenarioTimeout     = 2 * time.Second
	testPanicMessage        = "scenario exploded"
	testProbeScenarioName   = "top_level_probe"
	testPanicScenarioName   = "panicking"
	testPassingScenarioName = "passing"
	testCustomSuiteName     = "custom"
)

type RunnerSuite struct {
	suite.Suite
	pages       scenario.Pages
	fakeBrowser *testutil.FakeBrowser
	runner      *scenario.Runner
}

func TestRunnerSuite(t *testing.T) {
	suite.Run(t, new(RunnerSuite))
}

func (runnerSuite *RunnerSuite) SetupTest() {
	runnerSuite.pages = scenario.LocalPages(testBaseURL)
	runnerSuite.fakeBrowser = testutil.NewDemoBrowser(
		runnerSuite.pages.RadioURL,
		runnerSuite.pages.DatePickerURL,
		runnerSuite.pages.DateRangeURL,
	)
	runnerSuite.runner = scenario.NewRunner(scenario.RunnerConfig{
		Opener:          runnerSuite.fakeBrowser.Open,
		BrowserOptions:  browser.Options{Backend: testBackendName},
		Wait:            browser.WaitOptions{Timeout: testWaitTimeout, Interval: testPollInterval},
		ScenarioTimeout: testScenarioTimeout,
		Logger:          zaptest.NewLogger(runnerSuite.T()),
	})
}

func (runnerSuite *RunnerSuite) suiteNamed(name string) scenario.Suite {
	selected, selectErr := scenario.Select(scenario.Catalog(runnerSuite.pages), []string{name})
	runnerSuite.Require().NoError(selectErr)
	runnerSuite.Require().Len(selected, 1)
	return selected[0]
}

func (runnerSuite *RunnerSuite) TestBuiltInSuitesPassWithOneSessionEach() {
	report := runnerSuite.runner.Run(context.Background(), scenario.Catalog(runnerSuite.pages))

	runnerSuite.Require().Empty(report.Failures())
	runnerSuite.Require().True(report.Passed())
	runnerSuite.Require().Len(report.Results, 4)
	runnerSuite.Require().Equal(3, runnerSuite.fakeBrowser.OpenCount())
	runnerSuite.Require().Equal(3, runnerSuite.fakeBrowser.CloseCount())

	for _, result := range report.Results {
		runnerSuite.Require().Equal(testBackendName, result.Backend)
		runnerSuite.Require().NoError(result.Err)
	}
}

func (runnerSuite *RunnerSuite) TestCheckboxSelectsSecondAndThird() {
	results := runnerSuite.runner.RunSuite(context.Background(), runnerSuite.suiteNamed(scenario.SuiteCheckbox))

	runnerSuite.Require().Len(results, 1)
	runnerSuite.Require().True(results[0].Passed, "%v", results[0].Err)
	runnerSuite.Require().Equal(scenario.ScenarioCheckbox, results[0].Scenario)
	runnerSuite.Require().Equal([]string{runnerSuite.pages.RadioURL}, runnerSuite.fakeBrowser.Navigations())
}

func (runnerSuite *RunnerSuite) TestRadioObservesGroupSize() {
	results := runnerSuite.runner.RunSuite(context.Background(), runnerSuite.suiteNamed(scenario.SuiteRadio))

	runnerSuite.Require().Len(results, 1)
	runnerSuite.Require().True(results[0].Passed, "%v", results[0].Err)
	runnerSuite.Require().Equal("3", results[0].Observations["radio_group_size"])
}

func (runnerSuite *RunnerSuite) TestDatePickerScenariosShareOneSession() {
	results := runnerSuite.runner.RunSuite(context.Background(), runnerSuite.suiteNamed(scenario.SuiteDatePicker))

	runnerSuite.Require().Len(results, 2)
	runnerSuite.Require().Equal(scenario.ScenarioSingleDate, results[0].Scenario)
	runnerSuite.Require().Equal(scenario.ScenarioDateRange, results[1].Scenario)
	for _, result := range results {
		runnerSuite.Require().True(result.Passed, "%s: %v", result.Scenario, result.Err)
	}
	runnerSuite.Require().Contains(results[0].Observations["selected_date"], "/15/")
	runnerSuite.Require().Contains(results[1].Observations["range_from"], "/20/")
	runnerSuite.Require().Contains(results[1].Observations["range_to"], "/26/")

	runnerSuite.Require().Equal(1, runnerSuite.fakeBrowser.OpenCount())
	runnerSuite.Require().Equal(1, runnerSuite.fakeBrowser.CloseCount())
	runnerSuite.Require().Equal(
		[]string{runnerSuite.pages.DatePickerURL, runnerSuite.pages.DateRangeURL},
		runnerSuite.fakeBrowser.Navigations(),
	)
}

func (runnerSuite *RunnerSuite) TestUnresponsiveCheckboxFailsWithAssertion() {
	runnerSuite.fakeBrowser.AddPage(runnerSuite.pages.RadioURL, func() *testutil.FakeDocument {
		document := testutil.NewRadioDocument()
		document.ElementByID("vfb-6-2").Inert = true
		return document
	})

	results := runnerSuite.runner.RunSuite(context.Background(), runnerSuite.suiteNamed(scenario.SuiteCheckbox))

	runnerSuite.Require().Len(results, 1)
	runnerSuite.Require().False(results[0].Passed)
	runnerSuite.Require().ErrorIs(results[0].Err, scenario.ErrAssertion)

	var assertionErr *scenario.AssertionError
	runnerSuite.Require().True(errors.As(results[0].Err, &assertionErr))
	runnerSuite.Require().Equal("checkbox vfb-6-2", assertionErr.Subject)
	runnerSuite.Require().Equal("selected", assertionErr.Expected)
	runnerSuite.Require().Equal("unselected", assertionErr.Observed)
	runnerSuite.Require().Equal(1, runnerSuite.fakeBrowser.CloseCount())
}

func (runnerSuite *RunnerSuite) TestFailedFrameScenarioRestoresTopLevelDocument() {
	runnerSuite.fakeBrowser.AddPage(runnerSuite.pages.DatePickerURL, func() *testutil.FakeDocument {
		return testutil.NewFakeDocument(&testutil.FakeElement{
			Tag:     "iframe",
			Classes: []string{"demo-frame"},
			Frame:   testutil.NewCalendarDocument(),
		})
	})
	probe := scenario.Scenario{
		Name: testProbeScenarioName,
		Run: func(ctx context.Context, harness *scenario.Harness) error {
			_, findErr := harness.Session.FindElement(ctx, browser.ByClassName("demo-frame"))
			return findErr
		},
	}
	customSuite := scenario.Suite{
		Name:      testCustomSuiteName,
		Scenarios: []scenario.Scenario{scenario.SingleDateScenario(runnerSuite.pages), probe},
	}

	results := runnerSuite.runner.RunSuite(context.Background(), customSuite)

	runnerSuite.Require().Len(results, 2)
	runnerSuite.Require().False(results[0].Passed)
	runnerSuite.Require().ErrorIs(results[0].Err, browser.ErrWaitTimeout)
	runnerSuite.Require().ErrorIs(results[0].Err, browser.ErrElementNotFound)
	runnerSuite.Require().True(results[1].Passed, "%v", results[1].Err)
}

func (runnerSuite *RunnerSuite) TestPanickingScenarioStillClosesSessionOnce() {
	customSuite := scenario.Suite{
		Name: testCustomSuiteName,
		Scenarios: []scenario.Scenario{
			{
				Name: testPanicScenarioName,
				Run: func(context.Context, *scenario.Harness) error {
					panic(testPanicMessage)
				},
			},
			{
				Name: testPassingScenarioName,
				Run: func(context.Context, *scenario.Harness) error {
					return nil
				},
			},
		},
	}

	results := runnerSuite.runner.RunSuite(context.Background(), customSuite)

	runnerSuite.Require().Len(results, 2)
	runnerSuite.Require().ErrorIs(results[0].Err, scenario.ErrScenarioPanic)
	runnerSuite.Require().Contains(results[0].Err.Error(), testPanicMessage)
	runnerSuite.Require().True(results[1].Passed)
	runnerSuite.Require().Equal(1, runnerSuite.fakeBrowser.OpenCount())
	runnerSuite.Require().Equal(1, runnerSuite.fakeBrowser.CloseCount())
}

func (runnerSuite *RunnerSuite) TestSetupFailureFailsEveryScenario() {
	openFailure := errors.New("browser unavailable")
	runnerSuite.fakeBrowser.OpenErr = openFailure

	results := runnerSuite.runner.RunSuite(context.Background(), runnerSuite.suiteNamed(scenario.SuiteDatePicker))

	runnerSuite.Require().Len(results, 2)
	for _, result := range results {
		runnerSuite.Require().False(result.Passed)
		runnerSuite.Require().ErrorIs(result.Err, scenario.ErrSetup)
		runnerSuite.Require().ErrorIs(result.Err, openFailure)
	}
	runnerSuite.Require().Zero(runnerSuite.fakeBrowser.CloseCount())
}

func (runnerSuite *RunnerSuite) TestCanceledContextFailsScenariosAndReleasesSession() {
	ctx, cancel := context.WithCancel(context.Background())
	customSuite := scenario.Suite{
		Name: testCustomSuiteName,
		Scenarios: []scenario.Scenario{
			{
				Name: testPassingScenarioName,
				Run: func(context.Context, *scenario.Harness) error {
					cancel()
					return nil
				},
			},
			scenario.CheckboxScenario(runnerSuite.pages),
		},
	}

	results := runnerSuite.runner.RunSuite(ctx, customSuite)

	runnerSuite.Require().Len(results, 2)
	runnerSuite.Require().True(results[0].Passed)
	runnerSuite.Require().ErrorIs(results[1].Err, context.Canceled)
	runnerSuite.Require().Equal(1, runnerSuite.fakeBrowser.CloseCount())
}

func TestCatalogListsBuiltInSuites(t *testing.T) {
	catalog := scenario.Catalog(scenario.DefaultPages())

	require.Equal(t, []string{scenario.SuiteCheckbox, scenario.SuiteRadio, scenario.SuiteDatePicker}, scenario.SuiteNames(catalog))
	require.Len(t, catalog[2].Scenarios, 2)
}

func TestSelectSuites(t *testing.T) {
	catalog := scenario.Catalog(scenario.DefaultPages())

	testCases := []struct {
		name          string
		requested     []string
		expectedNames []string
		expectedErr   error
	}{
		{name: "no names selects all", requested: nil, expectedNames: []string{"checkbox", "radio", "datepicker"}},
		{name: "single suite", requested: []string{"radio"}, expectedNames: []string{"radio"}},
		{name: "requested order and duplicates", requested: []string{" DatePicker", "radio", "datepicker"}, expectedNames: []string{"datepicker", "radio"}},
		{name: "unknown suite", requested: []string{"radio", "sliders"}, expectedErr: scenario.ErrUnknownSuite},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(testingT *testing.T) {
			selected, selectErr := scenario.Select(catalog, testCase.requested)
			if testCase.expectedErr != nil {
				require.ErrorIs(testingT, selectErr, testCase.expectedErr)
				return
			}
			require.NoError(testingT, selectErr)
			require.Equal(testingT, testCase.expectedNames, scenario.SuiteNames(selected))
		})
	}
}

func TestPages(t *testing.T) {
	defaultPages := scenario.DefaultPages()
	require.Equal(t, "http://demo.guru99.com/test/radio.html", defaultPages.RadioURL)
	require.Equal(t, "https://jqueryui.com/datepicker/", defaultPages.DatePickerURL)
	require.Equal(t, "https://jqueryui.com/datepicker/#date-range", defaultPages.DateRangeURL)

	localPages := scenario.LocalPages(testBaseURL + "/")
	require.Equal(t, testBaseURL+fixture.RouteRadio, localPages.RadioURL)
	require.Equal(t, testBaseURL+fixture.RouteDatePicker, localPages.DatePickerURL)
	require.Equal(t, testBaseURL+fixture.RouteDateRange, localPages.DateRangeURL)
}

func TestReportAggregation(t *testing.T) {
	var report scenario.Report
	require.False(t, report.Passed())

	report.Add(
		scenario.Result{Scenario: "first", Passed: true},
		scenario.Result{Scenario: "second", Passed: false, Err: scenario.ErrAssertion},
	)
	require.False(t, report.Passed())
	failures := report.Failures()
	require.Len(t, failures, 1)
	require.Equal(t, "second", failures[0].Scenario)
}

func TestAssertionErrorMessage(t *testing.T) {
	assertionErr := &scenario.AssertionError{Subject: "radio vfb-7-1", Expected: "unselected", Observed: "selected"}
	require.ErrorIs(t, assertionErr, scenario.ErrAssertion)
	require.Equal(t, "scenario: assertion failed: radio vfb-7-1: expected unselected, observed selected", assertionErr.Error())
}
