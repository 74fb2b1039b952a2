package testutil

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"testing"
)

const (
	headlessBrowserEnvironmentChromedp   = "CHROMEDP_BROWSER"
	headlessBrowserEnvironmentChromePath = "CHROME_PATH"
	headlessBrowserLocateErrorMessage    = "locate headless browser executable"
	headlessBrowserSkipReason            = "headless browser not available"

	// WebDriverURLEnvironment names the WebDriver server used by Selenium tests.
	WebDriverURLEnvironment = "FORMLAB_WEBDRIVER_URL"
)

var headlessBrowserExecutableNames = []string{
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
	"chrome",
	"headless-shell",
}

var headlessBrowserLookupCache struct {
	once sync.Once
	path string
	err  error
}

var errHeadlessBrowserNotFound = errors.New("headless browser executable not found")

// LocateHeadlessBrowser finds a Chrome executable through CHROMEDP_BROWSER,
// CHROME_PATH, or the PATH. The lookup runs once per process.
func LocateHeadlessBrowser() (string, error) {
	headlessBrowserLookupCache.once.Do(func() {
		headlessBrowserLookupCache.path, headlessBrowserLookupCache.err = discoverHeadlessBrowserExecutable()
	})
	return headlessBrowserLookupCache.path, headlessBrowserLookupCache.err
}

// RequireHeadlessBrowser returns the browser path or skips the test.
func RequireHeadlessBrowser(testingT testing.TB) string {
	testingT.Helper()
	browserPath, locateErr := LocateHeadlessBrowser()
	if locateErr != nil {
		testingT.Skipf("%s: %v", headlessBrowserSkipReason, locateErr)
	}
	return browserPath
}

// RequireWebDriverURL returns the configured WebDriver server or skips the test.
func RequireWebDriverURL(testingT testing.TB) string {
	testingT.Helper()
	webDriverURL := strings.TrimSpace(os.Getenv(WebDriverURLEnvironment))
	if webDriverURL == "" {
		testingT.Skipf("%s not set", WebDriverURLEnvironment)
	}
	return webDriverURL
}

func discoverHeadlessBrowserExecutable() (string, error) {
	environmentVariableNames := []string{
		headlessBrowserEnvironmentChromedp,
		headlessBrowserEnvironmentChromePath,
	}
	for _, environmentVariableName := range environmentVariableNames {
		environmentValue := strings.TrimSpace(os.Getenv(environmentVariableName))
		if environmentValue != "" {
			return environmentValue, nil
		}
	}

	for _, executableName := range headlessBrowserExecutableNames {
		executablePath, lookupErr := exec.LookPath(executableName)
		if lookupErr == nil {
			return executablePath, nil
		}
	}

	return "", fmt.Errorf("%s: %w", headlessBrowserLocateErrorMessage, errHeadlessBrowserNotFound)
}
