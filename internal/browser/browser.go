// Package browser defines the browser automation collaborator used by the form
// scenarios and the backends that implement it.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	// BackendSelenium drives a browser through a WebDriver server.
	BackendSelenium = "selenium"
	// BackendChromedp drives Chrome through the DevTools protocol using chromedp.
	BackendChromedp = "chromedp"
	// BackendRod drives Chrome through the DevTools protocol using rod.
	BackendRod = "rod"

	// DefaultWindowWidth is the viewport width used when Options leaves it unset.
	DefaultWindowWidth = 1920
	// DefaultWindowHeight is the viewport height used when Options leaves it unset.
	DefaultWindowHeight = 1080

	errorMessageElementNotFound     = "browser: element not found"
	errorMessageSessionClosed       = "browser: session closed"
	errorMessageUnsupportedBackend  = "browser: unsupported backend"
	errorMessageMissingBackend      = "browser: missing backend name"
	errorMessageUnsupportedStrategy = "browser: unsupported locator strategy"
	errorMessageForeignElement      = "browser: element belongs to a different backend"
	errorMessageNotAFrame           = "browser: element is not a frame"
	errorMessageOpenSession         = "browser: open session"
)

var (
	// ErrElementNotFound indicates no element matched a locator.
	ErrElementNotFound = errors.New(errorMessageElementNotFound)
	// ErrSessionClosed indicates an operation on a session that was already closed.
	ErrSessionClosed = errors.New(errorMessageSessionClosed)
	// ErrUnsupportedBackend indicates the configured backend name is unknown.
	ErrUnsupportedBackend = errors.New(errorMessageUnsupportedBackend)
	// ErrMissingBackend indicates the backend name configuration was omitted.
	ErrMissingBackend = errors.New(errorMessageMissingBackend)
	// ErrUnsupportedStrategy indicates a locator strategy the backend cannot evaluate.
	ErrUnsupportedStrategy = errors.New(errorMessageUnsupportedStrategy)
	// ErrForeignElement indicates an element handle created by another session type.
	ErrForeignElement = errors.New(errorMessageForeignElement)
	// ErrNoFrame indicates a frame switch was requested for an element that is not a frame.
	ErrNoFrame = errors.New(errorMessageNotAFrame)
)

// Strategy names how a Locator value is interpreted.
type Strategy string

const (
	StrategyID          Strategy = "id"
	StrategyName        Strategy = "name"
	StrategyClassName   Strategy = "class name"
	StrategyLinkText    Strategy = "link text"
	StrategyXPath       Strategy = "xpath"
	StrategyCSSSelector Strategy = "css selector"
)

// Locator identifies page elements by a strategy and a value.
type Locator struct {
	Strategy Strategy
	Value    string
}

// String renders the locator for error messages and logs.
func (locator Locator) String() string {
	return fmt.Sprintf("%s=%q", locator.Strategy, locator.Value)
}

// ByID locates elements by their id attribute.
func ByID(identifier string) Locator {
	return Locator{Strategy: StrategyID, Value: identifier}
}

// ByName locates elements by their name attribute.
func ByName(name string) Locator {
	return Locator{Strategy: StrategyName, Value: name}
}

// ByClassName locates elements carrying a CSS class.
func ByClassName(className string) Locator {
	return Locator{Strategy: StrategyClassName, Value: className}
}

// ByLinkText locates anchors whose visible text equals the value.
func ByLinkText(text string) Locator {
	return Locator{Strategy: StrategyLinkText, Value: text}
}

// ByXPath locates elements with an XPath expression.
func ByXPath(expression string) Locator {
	return Locator{Strategy: StrategyXPath, Value: expression}
}

// ByCSSSelector locates elements with a CSS selector.
func ByCSSSelector(selector string) Locator {
	return Locator{Strategy: StrategyCSSSelector, Value: selector}
}

// Session is a live browser connection owned by a single suite.
type Session interface {
	// Navigate loads the URL in the top-level document and waits for the load event.
	Navigate(ctx context.Context, url string) error
	// FindElement returns the first element matching the locator in the current
	// browsing context, or ErrElementNotFound. It does not wait.
	FindElement(ctx context.Context, locator Locator) (Element, error)
	// FindElements returns every element matching the locator; an empty result is not an error.
	FindElements(ctx context.Context, locator Locator) ([]Element, error)
	// SwitchToFrame redirects subsequent lookups into the document of an iframe element.
	SwitchToFrame(ctx context.Context, frame Element) error
	// SwitchToDefaultContent redirects subsequent lookups to the top-level document.
	SwitchToDefaultContent(ctx context.Context) error
	// Close releases the browser. Only the first call has an effect.
	Close() error
}

// Element is a handle to a rendered page component, valid until the page changes.
type Element interface {
	Click(ctx context.Context) error
	// IsSelected reports the checked/selected state of inputs and options.
	IsSelected(ctx context.Context) (bool, error)
	// Attribute reads the live DOM property, falling back to the markup attribute.
	Attribute(ctx context.Context, name string) (string, error)
	Text(ctx context.Context) (string, error)
}

// Options configures how a session is opened.
type Options struct {
	Backend          string
	Headless         bool
	BrowserPath      string
	WindowWidth      int
	WindowHeight     int
	WebDriverURL     string
	ChromeDriverPath string
	ChromeDriverPort int
	Logger           *zap.Logger
}

func (options Options) normalized() Options {
	options.Backend = strings.ToLower(strings.TrimSpace(options.Backend))
	options.BrowserPath = strings.TrimSpace(options.BrowserPath)
	options.WebDriverURL = strings.TrimSpace(options.WebDriverURL)
	options.ChromeDriverPath = strings.TrimSpace(options.ChromeDriverPath)
	if options.WindowWidth <= 0 {
		options.WindowWidth = DefaultWindowWidth
	}
	if options.WindowHeight <= 0 {
		options.WindowHeight = DefaultWindowHeight
	}
	if options.ChromeDriverPort <= 0 {
		options.ChromeDriverPort = DefaultChromeDriverPort
	}
	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}
	return options
}

// Opener opens a session for already normalized options.
type Opener func(context.Context, Options) (Session, error)

var sessionOpeners = map[string]Opener{
	BackendSelenium: openSeleniumSession,
	BackendChromedp: openChromedpSession,
	BackendRod:      openRodSession,
}

// Backends lists the supported backend names.
func Backends() []string {
	return []string{BackendChromedp, BackendRod, BackendSelenium}
}

// Open starts a session with the backend named in the options.
func Open(ctx context.Context, options Options) (Session, error) {
	normalizedOptions := options.normalized()
	if normalizedOptions.Backend == "" {
		return nil, ErrMissingBackend
	}

	opener, backendSupported := sessionOpeners[normalizedOptions.Backend]
	if !backendSupported {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBackend, normalizedOptions.Backend)
	}

	session, openErr := opener(ctx, normalizedOptions)
	if openErr != nil {
		return nil, fmt.Errorf("%s %s: %w", errorMessageOpenSession, normalizedOptions.Backend, openErr)
	}

	normalizedOptions.Logger.Debug("session_opened", zap.String("backend", normalizedOptions.Backend))
	return session, nil
}

func elementNotFound(locator Locator) error {
	return fmt.Errorf("%w: %s", ErrElementNotFound, locator)
}

// linkTextXPath converts an exact link text match into an XPath expression.
func linkTextXPath(text string) string {
	return fmt.Sprintf("//a[normalize-space(.)=%s]", xpathLiteral(text))
}

func xpathLiteral(value string) string {
	if !strings.Contains(value, "'") {
		return "'" + value + "'"
	}
	if !strings.Contains(value, `"`) {
		return `"` + value + `"`
	}
	segments := strings.Split(value, "'")
	quoted := make([]string, 0, len(segments)*2)
	for index, segment := range segments {
		if index > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, "'"+segment+"'")
	}
	return "concat(" + strings.Join(quoted, ",") + ")"
}

// cssSelectorFor converts the CSS-expressible strategies into a selector.
func cssSelectorFor(locator Locator) (string, bool) {
	switch locator.Strategy {
	case StrategyID:
		return fmt.Sprintf(`[id=%s]`, cssString(locator.Value)), true
	case StrategyName:
		return fmt.Sprintf(`[name=%s]`, cssString(locator.Value)), true
	case StrategyClassName:
		return fmt.Sprintf(`[class~=%s]`, cssString(locator.Value)), true
	case StrategyCSSSelector:
		return locator.Value, true
	default:
		return "", false
	}
}

func cssString(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}
