package browser_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"

	"github.com/MarkoPoloResearchLab/formlab/internal/browser"
	"github.com/MarkoPoloResearchLab/formlab/internal/fixture"
	"github.com/MarkoPoloResearchLab/formlab/internal/scenario"
	"github.com/MarkoPoloResearchLab/formlab/internal/testutil"
)

const (
	integrationTestTimeout = 45 * time.Second
	integrationWaitTimeout = 5 * time.Second
)

// BackendSuite drives one backend against the fixture server with a single
// session opened in SetupSuite and closed in TearDownSuite.
type BackendSuite struct {
	suite.Suite
	options       browser.Options
	fixtureServer *httptest.Server
	pages         scenario.Pages
	session       browser.Session
}

func TestChromedpBackend(t *testing.T) {
	browserPath := testutil.RequireHeadlessBrowser(t)
	suite.Run(t, &BackendSuite{options: browser.Options{
		Backend:     browser.BackendChromedp,
		Headless:    true,
		BrowserPath: browserPath,
	}})
}

func TestRodBackend(t *testing.T) {
	browserPath := testutil.RequireHeadlessBrowser(t)
	suite.Run(t, &BackendSuite{options: browser.Options{
		Backend:     browser.BackendRod,
		Headless:    true,
		BrowserPath: browserPath,
	}})
}

func TestSeleniumBackend(t *testing.T) {
	webDriverURL := testutil.RequireWebDriverURL(t)
	suite.Run(t, &BackendSuite{options: browser.Options{
		Backend:      browser.BackendSelenium,
		Headless:     true,
		WebDriverURL: webDriverURL,
	}})
}

func (backendSuite *BackendSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	backendSuite.fixtureServer = httptest.NewServer(fixture.NewRouter(nil))
	backendSuite.pages = scenario.LocalPages(backendSuite.fixtureServer.URL)

	session, openErr := browser.Open(context.Background(), backendSuite.options)
	if openErr != nil {
		backendSuite.fixtureServer.Close()
		backendSuite.T().Skipf("%s backend unavailable: %v", backendSuite.options.Backend, openErr)
	}
	backendSuite.session = session
}

func (backendSuite *BackendSuite) TearDownSuite() {
	if backendSuite.session != nil {
		backendSuite.Require().NoError(backendSuite.session.Close())
		_, afterCloseErr := backendSuite.session.FindElements(context.Background(), browser.ByID("vfb-6-0"))
		backendSuite.Require().ErrorIs(afterCloseErr, browser.ErrSessionClosed)
		backendSuite.Require().NoError(backendSuite.session.Close())
	}
	if backendSuite.fixtureServer != nil {
		backendSuite.fixtureServer.Close()
	}
}

func (backendSuite *BackendSuite) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), integrationTestTimeout)
}

func (backendSuite *BackendSuite) waitOptions() browser.WaitOptions {
	return browser.WaitOptions{Timeout: integrationWaitTimeout}
}

func (backendSuite *BackendSuite) TestLookupsOnRadioPage() {
	ctx, cancel := backendSuite.context()
	defer cancel()
	session := backendSuite.session

	backendSuite.Require().NoError(session.Navigate(ctx, backendSuite.pages.RadioURL))

	radios, radiosErr := browser.WaitForElements(ctx, session, browser.ByName("vfb-7"), 3, backendSuite.waitOptions())
	backendSuite.Require().NoError(radiosErr)
	backendSuite.Require().Len(radios, 3)

	missing, missingErr := session.FindElements(ctx, browser.ByID("vfb-9-9"))
	backendSuite.Require().NoError(missingErr)
	backendSuite.Require().Empty(missing)

	_, notFoundErr := session.FindElement(ctx, browser.ByID("vfb-9-9"))
	backendSuite.Require().ErrorIs(notFoundErr, browser.ErrElementNotFound)

	checkbox, checkboxErr := session.FindElement(ctx, browser.ByCSSSelector("#vfb-6-1"))
	backendSuite.Require().NoError(checkboxErr)
	value, valueErr := checkbox.Attribute(ctx, "value")
	backendSuite.Require().NoError(valueErr)
	backendSuite.Require().Equal("checkbox2", value)

	missingAttribute, missingAttributeErr := checkbox.Attribute(ctx, "data-missing")
	backendSuite.Require().NoError(missingAttributeErr)
	backendSuite.Require().Empty(missingAttribute)

	backendSuite.Require().NoError(checkbox.Click(ctx))
	backendSuite.Require().NoError(browser.WaitForSelected(ctx, checkbox, true, backendSuite.waitOptions()))

	backendSuite.Require().ErrorIs(session.SwitchToFrame(ctx, checkbox), browser.ErrNoFrame)
}

func (backendSuite *BackendSuite) TestFrameScopedLookups() {
	ctx, cancel := backendSuite.context()
	defer cancel()
	session := backendSuite.session

	backendSuite.Require().NoError(session.Navigate(ctx, backendSuite.pages.DatePickerURL))
	frame, frameErr := browser.WaitForElement(ctx, session, browser.ByClassName("demo-frame"), backendSuite.waitOptions())
	backendSuite.Require().NoError(frameErr)

	outside, outsideErr := session.FindElements(ctx, browser.ByID("datepicker"))
	backendSuite.Require().NoError(outsideErr)
	backendSuite.Require().Empty(outside)

	backendSuite.Require().NoError(session.SwitchToFrame(ctx, frame))
	input, inputErr := browser.WaitForElement(ctx, session, browser.ByID("datepicker"), backendSuite.waitOptions())
	backendSuite.Require().NoError(inputErr)
	backendSuite.Require().NoError(input.Click(ctx))

	dayLink, dayErr := browser.WaitForElement(ctx, session, browser.ByLinkText("15"), backendSuite.waitOptions())
	backendSuite.Require().NoError(dayErr)
	dayText, textErr := dayLink.Text(ctx)
	backendSuite.Require().NoError(textErr)
	backendSuite.Require().Equal("15", dayText)

	backendSuite.Require().NoError(session.SwitchToDefaultContent(ctx))
	_, topLevelErr := session.FindElement(ctx, browser.ByClassName("demo-frame"))
	backendSuite.Require().NoError(topLevelErr)
}

func (backendSuite *BackendSuite) TestBuiltInScenariosPass() {
	ctx, cancel := backendSuite.context()
	defer cancel()

	sharedSession := backendSuite.session
	runner := scenario.NewRunner(scenario.RunnerConfig{
		Opener: func(context.Context, browser.Options) (browser.Session, error) {
			return nonClosingSession{Session: sharedSession}, nil
		},
		BrowserOptions: backendSuite.options,
		Wait:           backendSuite.waitOptions(),
	})

	report := runner.Run(ctx, scenario.Catalog(backendSuite.pages))
	for _, failure := range report.Failures() {
		backendSuite.T().Logf("%s/%s: %v", failure.Suite, failure.Scenario, failure.Err)
	}
	backendSuite.Require().True(report.Passed())
}

// nonClosingSession lets the runner reuse the suite session without ending it.
type nonClosingSession struct {
	browser.Session
}

func (nonClosingSession) Close() error {
	return nil
}
