package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"
	"go.uber.org/zap"
)

const (
	// DefaultWebDriverURL is the conventional address of a standalone Selenium server.
	DefaultWebDriverURL = "http://127.0.0.1:4444/wd/hub"
	// DefaultChromeDriverPort is the port a locally started chromedriver listens on.
	DefaultChromeDriverPort = 9515

	seleniumBrowserNameCapability = "browserName"
	seleniumBrowserNameChrome     = "chrome"
	seleniumNoSuchElementError    = "no such element"
	seleniumNilReplyError         = "nil return value"
	seleniumLocalURLFormat        = "http://localhost:%d/wd/hub"
	seleniumLogFieldURL           = "webdriver_url"
)

type seleniumSession struct {
	webDriver     selenium.WebDriver
	driverService *selenium.Service
	logger        *zap.Logger
	closeOnce     sync.Once
	closeErr      error
	stateMutex    sync.Mutex
	closed        bool
}

type seleniumElement struct {
	session    *seleniumSession
	webElement selenium.WebElement
}

func openSeleniumSession(ctx context.Context, options Options) (Session, error) {
	if contextErr := ctx.Err(); contextErr != nil {
		return nil, contextErr
	}

	var driverService *selenium.Service
	webDriverURL := options.WebDriverURL
	if options.ChromeDriverPath != "" {
		service, serviceErr := selenium.NewChromeDriverService(options.ChromeDriverPath, options.ChromeDriverPort)
		if serviceErr != nil {
			return nil, fmt.Errorf("start chromedriver: %w", serviceErr)
		}
		driverService = service
		webDriverURL = fmt.Sprintf(seleniumLocalURLFormat, options.ChromeDriverPort)
	}
	if webDriverURL == "" {
		webDriverURL = DefaultWebDriverURL
	}

	capabilities := selenium.Capabilities{seleniumBrowserNameCapability: seleniumBrowserNameChrome}
	capabilities.AddChrome(chrome.Capabilities{
		Path: options.BrowserPath,
		Args: chromeArguments(options),
	})

	webDriver, remoteErr := selenium.NewRemote(capabilities, webDriverURL)
	if remoteErr != nil {
		if driverService != nil {
			_ = driverService.Stop()
		}
		return nil, remoteErr
	}

	if resizeErr := webDriver.ResizeWindow("", options.WindowWidth, options.WindowHeight); resizeErr != nil {
		options.Logger.Warn("resize_window", zap.Error(resizeErr))
	}

	options.Logger.Debug("webdriver_connected", zap.String(seleniumLogFieldURL, webDriverURL))
	return &seleniumSession{
		webDriver:     webDriver,
		driverService: driverService,
		logger:        options.Logger,
	}, nil
}

func chromeArguments(options Options) []string {
	arguments := []string{
		fmt.Sprintf("--window-size=%d,%d", options.WindowWidth, options.WindowHeight),
		"--disable-gpu",
		"--no-sandbox",
		"--disable-dev-shm-usage",
	}
	if options.Headless {
		arguments = append(arguments, "--headless=new")
	}
	return arguments
}

func (session *seleniumSession) ensureOpen(ctx context.Context) error {
	if contextErr := ctx.Err(); contextErr != nil {
		return contextErr
	}
	session.stateMutex.Lock()
	defer session.stateMutex.Unlock()
	if session.closed {
		return ErrSessionClosed
	}
	return nil
}

func (session *seleniumSession) Navigate(ctx context.Context, url string) error {
	if openErr := session.ensureOpen(ctx); openErr != nil {
		return openErr
	}
	return session.webDriver.Get(url)
}

func (session *seleniumSession) FindElement(ctx context.Context, locator Locator) (Element, error) {
	elements, findErr := session.FindElements(ctx, locator)
	if findErr != nil {
		return nil, findErr
	}
	if len(elements) == 0 {
		return nil, elementNotFound(locator)
	}
	return elements[0], nil
}

func (session *seleniumSession) FindElements(ctx context.Context, locator Locator) ([]Element, error) {
	if openErr := session.ensureOpen(ctx); openErr != nil {
		return nil, openErr
	}
	by, value, locatorErr := seleniumLocator(locator)
	if locatorErr != nil {
		return nil, locatorErr
	}
	webElements, findErr := session.webDriver.FindElements(by, value)
	if findErr != nil {
		if isNoSuchElement(findErr) {
			return []Element{}, nil
		}
		return nil, fmt.Errorf("find %s: %w", locator, findErr)
	}
	elements := make([]Element, 0, len(webElements))
	for _, webElement := range webElements {
		elements = append(elements, &seleniumElement{session: session, webElement: webElement})
	}
	return elements, nil
}

// seleniumLocator maps a locator onto the strategies W3C drivers accept:
// css selector and xpath. Link text becomes an xpath matching the trimmed text.
func seleniumLocator(locator Locator) (string, string, error) {
	if selector, expressible := cssSelectorFor(locator); expressible {
		return selenium.ByCSSSelector, selector, nil
	}
	switch locator.Strategy {
	case StrategyXPath:
		return selenium.ByXPATH, locator.Value, nil
	case StrategyLinkText:
		return selenium.ByXPATH, linkTextXPath(locator.Value), nil
	default:
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedStrategy, locator.Strategy)
	}
}

func (session *seleniumSession) SwitchToFrame(ctx context.Context, frame Element) error {
	if openErr := session.ensureOpen(ctx); openErr != nil {
		return openErr
	}
	frameElement, isSeleniumElement := frame.(*seleniumElement)
	if !isSeleniumElement || frameElement.session != session {
		return ErrForeignElement
	}
	tagName, tagErr := frameElement.webElement.TagName()
	if tagErr != nil {
		return tagErr
	}
	if !isFrameTag(tagName) {
		return fmt.Errorf("%w: <%s>", ErrNoFrame, tagName)
	}
	return session.webDriver.SwitchFrame(frameElement.webElement)
}

func (session *seleniumSession) SwitchToDefaultContent(ctx context.Context) error {
	if openErr := session.ensureOpen(ctx); openErr != nil {
		return openErr
	}
	return session.webDriver.SwitchFrame(nil)
}

func (session *seleniumSession) Close() error {
	session.closeOnce.Do(func() {
		session.stateMutex.Lock()
		session.closed = true
		session.stateMutex.Unlock()

		quitErr := session.webDriver.Quit()
		var stopErr error
		if session.driverService != nil {
			stopErr = session.driverService.Stop()
		}
		session.closeErr = errors.Join(quitErr, stopErr)
		session.logger.Debug("session_closed", zap.String("backend", BackendSelenium), zap.Error(session.closeErr))
	})
	return session.closeErr
}

func (element *seleniumElement) Click(ctx context.Context) error {
	if openErr := element.session.ensureOpen(ctx); openErr != nil {
		return openErr
	}
	return element.webElement.Click()
}

func (element *seleniumElement) IsSelected(ctx context.Context) (bool, error) {
	if openErr := element.session.ensureOpen(ctx); openErr != nil {
		return false, openErr
	}
	return element.webElement.IsSelected()
}

func (element *seleniumElement) Attribute(ctx context.Context, name string) (string, error) {
	if openErr := element.session.ensureOpen(ctx); openErr != nil {
		return "", openErr
	}
	value, attributeErr := element.webElement.GetAttribute(name)
	if attributeErr != nil {
		// the client reports an absent attribute as a nil reply
		if attributeErr.Error() == seleniumNilReplyError {
			return "", nil
		}
		return "", attributeErr
	}
	return value, nil
}

func (element *seleniumElement) Text(ctx context.Context) (string, error) {
	if openErr := element.session.ensureOpen(ctx); openErr != nil {
		return "", openErr
	}
	return element.webElement.Text()
}

func isNoSuchElement(err error) bool {
	var webDriverErr *selenium.Error
	if errors.As(err, &webDriverErr) {
		return webDriverErr.Err == seleniumNoSuchElementError
	}
	return false
}

func isFrameTag(tagName string) bool {
	switch tagName {
	case "iframe", "IFRAME", "frame", "FRAME":
		return true
	default:
		return false
	}
}
