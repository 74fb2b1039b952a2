package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const (
	chromedpDocumentExpression  = "document"
	chromedpBoundFunctionFormat = "function() { return (%s).call(this%s); }"
	chromedpLookupXPath         = "xpath"
	chromedpLookupLinkText      = "link text"
	chromedpLookupCSS           = "css selector"
	chromedpElementAtFormat     = "function() { return (%s).call(this, %s, %s)[%d]; }"
	chromedpCountFormat         = "function() { return (%s).call(this, %s, %s).length; }"
	chromedpQuadCoordinates     = 8
	chromedpReadyStateScript    = "document.readyState"
	chromedpReadyStateComplete  = "complete"
	chromedpNavigationTimeout   = 30 * time.Second
	chromedpNavigationInterval  = 50 * time.Millisecond

	errorMessageFrameInaccessible = "browser: frame document not accessible"
	errorMessageScriptException   = "browser: script exception"
	errorMessageEmptyBoxModel     = "browser: element has no box model"
	errorMessageNavigate          = "browser: navigate"
)

type chromedpSession struct {
	allocatorCancel context.CancelFunc
	browserContext  context.Context
	browserCancel   context.CancelFunc
	logger          *zap.Logger
	stateMutex      sync.Mutex
	frame           cdp.BackendNodeID
	closed          bool
	closeOnce       sync.Once
}

type chromedpElement struct {
	session       *chromedpSession
	backendNodeID cdp.BackendNodeID
}

func openChromedpSession(ctx context.Context, options Options) (Session, error) {
	allocatorOptions := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", options.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(options.WindowWidth, options.WindowHeight),
	)
	if options.BrowserPath != "" {
		allocatorOptions = append(allocatorOptions, chromedp.ExecPath(options.BrowserPath))
	}

	allocatorContext, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions...)
	sugaredLogger := options.Logger.Sugar()
	browserContext, browserCancel := chromedp.NewContext(allocatorContext,
		chromedp.WithLogf(sugaredLogger.Debugf),
		chromedp.WithErrorf(sugaredLogger.Warnf),
	)

	session := &chromedpSession{
		allocatorCancel: allocatorCancel,
		browserContext:  browserContext,
		browserCancel:   browserCancel,
		logger:          options.Logger,
	}

	if contextErr := ctx.Err(); contextErr != nil {
		browserCancel()
		allocatorCancel()
		return nil, contextErr
	}

	// The first Run allocates the browser and binds its lifetime to the context
	// it receives, so it must get the browser context itself rather than a child.
	if startErr := chromedp.Run(browserContext); startErr != nil {
		browserCancel()
		allocatorCancel()
		return nil, startErr
	}
	return session, nil
}

// run executes actions on the browser tab while honoring the caller's context.
func (session *chromedpSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runContext, cancel := context.WithCancel(session.browserContext)
	defer cancel()
	stopPropagation := context.AfterFunc(ctx, cancel)
	defer stopPropagation()

	if runErr := chromedp.Run(runContext, actions...); runErr != nil {
		if contextErr := ctx.Err(); contextErr != nil {
			return contextErr
		}
		return runErr
	}
	return nil
}

func (session *chromedpSession) ensureOpen(ctx context.Context) error {
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

func (session *chromedpSession) currentFrame() cdp.BackendNodeID {
	session.stateMutex.Lock()
	defer session.stateMutex.Unlock()
	return session.frame
}

func (session *chromedpSession) setFrame(frame cdp.BackendNodeID) {
	session.stateMutex.Lock()
	session.frame = frame
	session.stateMutex.Unlock()
}

func (session *chromedpSession) Navigate(ctx context.Context, url string) error {
	if openErr := session.ensureOpen(ctx); openErr != nil {
		return openErr
	}
	navigateErr := session.run(ctx, chromedp.ActionFunc(func(actionContext context.Context) error {
		_, _, errorText, _, pageErr := page.Navigate(url).Do(actionContext)
		if pageErr != nil {
			return pageErr
		}
		if errorText != "" {
			return fmt.Errorf("%s %s: %s", errorMessageNavigate, url, errorText)
		}
		return nil
	}))
	if navigateErr != nil {
		return navigateErr
	}
	session.setFrame(0)

	// a fragment-only navigation fires no load event, so the ready state is polled instead
	return Poll(ctx, WaitOptions{Timeout: chromedpNavigationTimeout, Interval: chromedpNavigationInterval}, func(pollContext context.Context) (bool, error) {
		var readyState string
		if evaluateErr := session.run(pollContext, chromedp.Evaluate(chromedpReadyStateScript, &readyState)); evaluateErr != nil {
			return false, evaluateErr
		}
		return readyState == chromedpReadyStateComplete, nil
	})
}

func (session *chromedpSession) FindElement(ctx context.Context, locator Locator) (Element, error) {
	elements, findErr := session.FindElements(ctx, locator)
	if findErr != nil {
		return nil, findErr
	}
	if len(elements) == 0 {
		return nil, elementNotFound(locator)
	}
	return elements[0], nil
}

func (session *chromedpSession) FindElements(ctx context.Context, locator Locator) ([]Element, error) {
	if openErr := session.ensureOpen(ctx); openErr != nil {
		return nil, openErr
	}
	lookupStrategy, lookupValue, strategyErr := chromedpLookupArguments(locator)
	if strategyErr != nil {
		return nil, strategyErr
	}
	encodedStrategy, _ := json.Marshal(lookupStrategy)
	encodedValue, _ := json.Marshal(lookupValue)
	frame := session.currentFrame()

	var elements []Element
	runErr := session.run(ctx, chromedp.ActionFunc(func(actionContext context.Context) error {
		documentObjectID, documentErr := resolveDocument(actionContext, frame)
		if documentErr != nil {
			return documentErr
		}
		defer releaseObject(actionContext, documentObjectID)

		var matchCount int
		countDeclaration := fmt.Sprintf(chromedpCountFormat, lookupFunction, encodedStrategy, encodedValue)
		if countErr := callFunctionByValue(actionContext, documentObjectID, countDeclaration, &matchCount); countErr != nil {
			return fmt.Errorf("find %s: %w", locator, countErr)
		}

		elements = make([]Element, 0, matchCount)
		for index := 0; index < matchCount; index++ {
			elementDeclaration := fmt.Sprintf(chromedpElementAtFormat, lookupFunction, encodedStrategy, encodedValue, index)
			elementObjectID, elementErr := callFunctionForObject(actionContext, documentObjectID, elementDeclaration)
			if elementErr != nil {
				return elementErr
			}
			if elementObjectID == "" {
				continue
			}
			node, describeErr := dom.DescribeNode().WithObjectID(elementObjectID).Do(actionContext)
			releaseObject(actionContext, elementObjectID)
			if describeErr != nil {
				return describeErr
			}
			elements = append(elements, &chromedpElement{session: session, backendNodeID: node.BackendNodeID})
		}
		return nil
	}))
	if runErr != nil {
		return nil, runErr
	}
	return elements, nil
}

func (session *chromedpSession) SwitchToFrame(ctx context.Context, frame Element) error {
	if openErr := session.ensureOpen(ctx); openErr != nil {
		return openErr
	}
	frameElement, isChromedpElement := frame.(*chromedpElement)
	if !isChromedpElement || frameElement.session != session {
		return ErrForeignElement
	}
	// resolving the document up front rejects non-frames and cross-origin frames
	runErr := session.run(ctx, chromedp.ActionFunc(func(actionContext context.Context) error {
		documentObjectID, documentErr := resolveDocument(actionContext, frameElement.backendNodeID)
		if documentErr != nil {
			return documentErr
		}
		releaseObject(actionContext, documentObjectID)
		return nil
	}))
	if runErr != nil {
		return runErr
	}
	session.setFrame(frameElement.backendNodeID)
	return nil
}

func (session *chromedpSession) SwitchToDefaultContent(ctx context.Context) error {
	if openErr := session.ensureOpen(ctx); openErr != nil {
		return openErr
	}
	session.setFrame(0)
	return nil
}

func (session *chromedpSession) Close() error {
	session.closeOnce.Do(func() {
		session.stateMutex.Lock()
		session.closed = true
		session.stateMutex.Unlock()

		session.browserCancel()
		session.allocatorCancel()
		session.logger.Debug("session_closed", zap.String("backend", BackendChromedp))
	})
	return nil
}

func (element *chromedpElement) Click(ctx context.Context) error {
	if openErr := element.session.ensureOpen(ctx); openErr != nil {
		return openErr
	}
	return element.session.run(ctx, chromedp.ActionFunc(func(actionContext context.Context) error {
		if scrollErr := dom.ScrollIntoViewIfNeeded().WithBackendNodeID(element.backendNodeID).Do(actionContext); scrollErr != nil {
			return scrollErr
		}
		boxModel, boxErr := dom.GetBoxModel().WithBackendNodeID(element.backendNodeID).Do(actionContext)
		if boxErr != nil {
			return boxErr
		}
		if boxModel == nil || len(boxModel.Content) < chromedpQuadCoordinates {
			return errors.New(errorMessageEmptyBoxModel)
		}
		centerX := (boxModel.Content[0] + boxModel.Content[2] + boxModel.Content[4] + boxModel.Content[6]) / 4
		centerY := (boxModel.Content[1] + boxModel.Content[3] + boxModel.Content[5] + boxModel.Content[7]) / 4

		if moveErr := input.DispatchMouseEvent(input.MouseMoved, centerX, centerY).Do(actionContext); moveErr != nil {
			return moveErr
		}
		if pressErr := input.DispatchMouseEvent(input.MousePressed, centerX, centerY).
			WithButton(input.Left).
			WithClickCount(1).
			Do(actionContext); pressErr != nil {
			return pressErr
		}
		return input.DispatchMouseEvent(input.MouseReleased, centerX, centerY).
			WithButton(input.Left).
			WithClickCount(1).
			Do(actionContext)
	}))
}

func (element *chromedpElement) IsSelected(ctx context.Context) (bool, error) {
	var selected bool
	evaluateErr := element.evaluate(ctx, selectedStateFunction, &selected)
	return selected, evaluateErr
}

func (element *chromedpElement) Attribute(ctx context.Context, name string) (string, error) {
	var value string
	evaluateErr := element.evaluate(ctx, attributeFunction, &value, name)
	return value, evaluateErr
}

func (element *chromedpElement) Text(ctx context.Context) (string, error) {
	var text string
	evaluateErr := element.evaluate(ctx, visibleTextFunction, &text)
	return text, evaluateErr
}

func (element *chromedpElement) evaluate(ctx context.Context, function string, destination interface{}, arguments ...string) error {
	if openErr := element.session.ensureOpen(ctx); openErr != nil {
		return openErr
	}
	declaration, bindErr := bindFunctionArguments(function, arguments...)
	if bindErr != nil {
		return bindErr
	}
	return element.session.run(ctx, chromedp.ActionFunc(func(actionContext context.Context) error {
		remoteObject, resolveErr := dom.ResolveNode().WithBackendNodeID(element.backendNodeID).Do(actionContext)
		if resolveErr != nil {
			return resolveErr
		}
		defer releaseObject(actionContext, remoteObject.ObjectID)
		return callFunctionByValue(actionContext, remoteObject.ObjectID, declaration, destination)
	}))
}

func chromedpLookupArguments(locator Locator) (string, string, error) {
	switch locator.Strategy {
	case StrategyXPath:
		return chromedpLookupXPath, locator.Value, nil
	case StrategyLinkText:
		return chromedpLookupLinkText, locator.Value, nil
	}
	selector, expressible := cssSelectorFor(locator)
	if !expressible {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedStrategy, locator.Strategy)
	}
	return chromedpLookupCSS, selector, nil
}

// bindFunctionArguments embeds JSON-encoded string arguments into a function declaration.
func bindFunctionArguments(function string, arguments ...string) (string, error) {
	var encodedArguments strings.Builder
	for _, argument := range arguments {
		encoded, encodeErr := json.Marshal(argument)
		if encodeErr != nil {
			return "", encodeErr
		}
		encodedArguments.WriteString(", ")
		encodedArguments.Write(encoded)
	}
	return fmt.Sprintf(chromedpBoundFunctionFormat, function, encodedArguments.String()), nil
}

// resolveDocument returns a remote object for the top-level document, or for the
// content document of the given frame element when frame is non-zero.
func resolveDocument(ctx context.Context, frame cdp.BackendNodeID) (runtime.RemoteObjectID, error) {
	if frame == 0 {
		documentObject, exceptionDetails, evaluateErr := runtime.Evaluate(chromedpDocumentExpression).Do(ctx)
		if evaluateErr != nil {
			return "", evaluateErr
		}
		if exceptionDetails != nil {
			return "", fmt.Errorf("%s: %s", errorMessageScriptException, exceptionDetails.Text)
		}
		return documentObject.ObjectID, nil
	}

	frameObject, resolveErr := dom.ResolveNode().WithBackendNodeID(frame).Do(ctx)
	if resolveErr != nil {
		return "", resolveErr
	}
	defer releaseObject(ctx, frameObject.ObjectID)

	documentObjectID, callErr := callFunctionForObject(ctx, frameObject.ObjectID, frameDocumentFunction)
	if callErr != nil {
		return "", callErr
	}
	if documentObjectID == "" {
		return "", fmt.Errorf("%w: %s", ErrNoFrame, errorMessageFrameInaccessible)
	}
	return documentObjectID, nil
}

func callFunctionByValue(ctx context.Context, objectID runtime.RemoteObjectID, declaration string, destination interface{}) error {
	result, exceptionDetails, callErr := runtime.CallFunctionOn(declaration).
		WithObjectID(objectID).
		WithReturnByValue(true).
		Do(ctx)
	if callErr != nil {
		return callErr
	}
	if exceptionDetails != nil {
		return fmt.Errorf("%s: %s", errorMessageScriptException, exceptionDetails.Text)
	}
	if result == nil || len(result.Value) == 0 {
		return nil
	}
	return json.Unmarshal(result.Value, destination)
}

func callFunctionForObject(ctx context.Context, objectID runtime.RemoteObjectID, declaration string) (runtime.RemoteObjectID, error) {
	result, exceptionDetails, callErr := runtime.CallFunctionOn(declaration).
		WithObjectID(objectID).
		Do(ctx)
	if callErr != nil {
		return "", callErr
	}
	if exceptionDetails != nil {
		return "", fmt.Errorf("%s: %s", errorMessageScriptException, exceptionDetails.Text)
	}
	if result == nil {
		return "", nil
	}
	return result.ObjectID, nil
}

func releaseObject(ctx context.Context, objectID runtime.RemoteObjectID) {
	if objectID == "" {
		return
	}
	_ = runtime.ReleaseObject(objectID).Do(ctx)
}
