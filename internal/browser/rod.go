package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

const (
	rodBlankPageURL     = "about:blank"
	rodWindowSizeFlag   = "window-size"
	rodWindowSizeFormat = "%d,%d"
	rodTagNameFunction  = `function() { return (this.tagName || "").toLowerCase(); }`
)

type rodSession struct {
	launcher   *launcher.Launcher
	browser    *rod.Browser
	topPage    *rod.Page
	logger     *zap.Logger
	stateMutex sync.Mutex
	scope      *rod.Page
	closed     bool
	closeOnce  sync.Once
	closeErr   error
}

type rodElement struct {
	session *rodSession
	element *rod.Element
}

func openRodSession(ctx context.Context, options Options) (Session, error) {
	launcherInstance := launcher.New().
		Headless(options.Headless).
		NoSandbox(true).
		Set(rodWindowSizeFlag, fmt.Sprintf(rodWindowSizeFormat, options.WindowWidth, options.WindowHeight))
	if options.BrowserPath != "" {
		launcherInstance = launcherInstance.Bin(options.BrowserPath)
	}

	browserControlURL, launchErr := launcherInstance.Launch()
	if launchErr != nil {
		return nil, fmt.Errorf("launch browser: %w", launchErr)
	}

	browser := rod.New().ControlURL(browserControlURL).Context(ctx)
	if connectErr := browser.Connect(); connectErr != nil {
		launcherInstance.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", connectErr)
	}
	// the connect context only bounds startup; later calls bring their own
	browser = browser.Context(context.Background())

	page, pageErr := browser.Page(proto.TargetCreateTarget{URL: rodBlankPageURL})
	if pageErr != nil {
		_ = browser.Close()
		launcherInstance.Cleanup()
		return nil, fmt.Errorf("open page: %w", pageErr)
	}

	if viewportErr := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             options.WindowWidth,
		Height:            options.WindowHeight,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}); viewportErr != nil {
		options.Logger.Warn("set_viewport", zap.Error(viewportErr))
	}

	return &rodSession{
		launcher: launcherInstance,
		browser:  browser,
		topPage:  page,
		scope:    page,
		logger:   options.Logger,
	}, nil
}

func (session *rodSession) ensureOpen(ctx context.Context) error {
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

func (session *rodSession) currentScope(ctx context.Context) *rod.Page {
	session.stateMutex.Lock()
	defer session.stateMutex.Unlock()
	return session.scope.Context(ctx)
}

func (session *rodSession) setScope(scope *rod.Page) {
	session.stateMutex.Lock()
	session.scope = scope
	session.stateMutex.Unlock()
}

func (session *rodSession) Navigate(ctx context.Context, url string) error {
	if openErr := session.ensureOpen(ctx); openErr != nil {
		return openErr
	}
	page := session.topPage.Context(ctx)
	if navigateErr := page.Navigate(url); navigateErr != nil {
		return navigateErr
	}
	session.setScope(session.topPage)
	return page.WaitLoad()
}

func (session *rodSession) FindElement(ctx context.Context, locator Locator) (Element, error) {
	elements, findErr := session.FindElements(ctx, locator)
	if findErr != nil {
		return nil, findErr
	}
	if len(elements) == 0 {
		return nil, elementNotFound(locator)
	}
	return elements[0], nil
}

func (session *rodSession) FindElements(ctx context.Context, locator Locator) ([]Element, error) {
	if openErr := session.ensureOpen(ctx); openErr != nil {
		return nil, openErr
	}
	scope := session.currentScope(ctx)

	var (
		matches rod.Elements
		findErr error
	)
	switch locator.Strategy {
	case StrategyXPath:
		matches, findErr = scope.ElementsX(locator.Value)
	case StrategyLinkText:
		matches, findErr = scope.ElementsX(linkTextXPath(locator.Value))
	default:
		selector, expressible := cssSelectorFor(locator)
		if !expressible {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedStrategy, locator.Strategy)
		}
		matches, findErr = scope.Elements(selector)
	}
	if findErr != nil {
		return nil, fmt.Errorf("find %s: %w", locator, findErr)
	}

	elements := make([]Element, 0, len(matches))
	for _, match := range matches {
		elements = append(elements, &rodElement{session: session, element: match})
	}
	return elements, nil
}

func (session *rodSession) SwitchToFrame(ctx context.Context, frame Element) error {
	if openErr := session.ensureOpen(ctx); openErr != nil {
		return openErr
	}
	frameElement, isRodElement := frame.(*rodElement)
	if !isRodElement || frameElement.session != session {
		return ErrForeignElement
	}
	frameHandle := frameElement.element.Context(ctx)
	tagObject, tagErr := frameHandle.Eval(rodTagNameFunction)
	if tagErr != nil {
		return tagErr
	}
	tagName := tagObject.Value.Str()
	if !isFrameTag(tagName) {
		return fmt.Errorf("%w: <%s>", ErrNoFrame, tagName)
	}
	framePage, frameErr := frameHandle.Frame()
	if frameErr != nil {
		return fmt.Errorf("%w: %w", ErrNoFrame, frameErr)
	}
	session.setScope(framePage)
	return nil
}

func (session *rodSession) SwitchToDefaultContent(ctx context.Context) error {
	if openErr := session.ensureOpen(ctx); openErr != nil {
		return openErr
	}
	session.setScope(session.topPage)
	return nil
}

func (session *rodSession) Close() error {
	session.closeOnce.Do(func() {
		session.stateMutex.Lock()
		session.closed = true
		session.stateMutex.Unlock()

		closeErr := session.browser.Close()
		if closeErr != nil && errors.Is(closeErr, context.Canceled) {
			closeErr = nil
		}
		session.launcher.Cleanup()
		session.closeErr = closeErr
		session.logger.Debug("session_closed", zap.String("backend", BackendRod), zap.Error(closeErr))
	})
	return session.closeErr
}

func (element *rodElement) Click(ctx context.Context) error {
	if openErr := element.session.ensureOpen(ctx); openErr != nil {
		return openErr
	}
	return element.element.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (element *rodElement) IsSelected(ctx context.Context) (bool, error) {
	if openErr := element.session.ensureOpen(ctx); openErr != nil {
		return false, openErr
	}
	result, evalErr := element.element.Context(ctx).Eval(selectedStateFunction)
	if evalErr != nil {
		return false, evalErr
	}
	return result.Value.Bool(), nil
}

func (element *rodElement) Attribute(ctx context.Context, name string) (string, error) {
	if openErr := element.session.ensureOpen(ctx); openErr != nil {
		return "", openErr
	}
	result, evalErr := element.element.Context(ctx).Eval(attributeFunction, name)
	if evalErr != nil {
		return "", evalErr
	}
	return result.Value.Str(), nil
}

func (element *rodElement) Text(ctx context.Context) (string, error) {
	if openErr := element.session.ensureOpen(ctx); openErr != nil {
		return "", openErr
	}
	result, evalErr := element.element.Context(ctx).Eval(visibleTextFunction)
	if evalErr != nil {
		return "", evalErr
	}
	return result.Value.Str(), nil
}
