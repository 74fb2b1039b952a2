package testutil

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/formlab/internal/browser"
)

const (
	fakeTagAnchor    = "a"
	fakeTagInput     = "input"
	fakeTagIFrame    = "iframe"
	fakeTypeBox      = "checkbox"
	fakeTypeRadio    = "radio"
	fakeClassFrame   = "demo-frame"
	fakeClassDayCell = "ui-state-default"
	fakeDateLayout   = "01/02/2006"

	// CalendarLinksXPath selects the day links of an open calendar widget.
	CalendarLinksXPath = "//table[@class='ui-datepicker-calendar']//a"
)

var (
	errFakePageMissing  = errors.New("fake browser: no page registered")
	errFakeStaleElement = errors.New("fake browser: stale element reference")
)

// FakeElement is a node of an in-memory document.
type FakeElement struct {
	Tag     string
	ID      string
	Name    string
	Classes []string
	Type    string
	Text    string
	Value   string
	Checked bool
	// Inert elements ignore clicks.
	Inert   bool
	Frame   *FakeDocument
	OnClick func(document *FakeDocument, element *FakeElement)
}

// FakeDocument is an ordered set of elements plus registered XPath and CSS queries.
type FakeDocument struct {
	elements []*FakeElement
	queries  map[string]func(*FakeDocument) []*FakeElement
}

// NewFakeDocument builds a document holding the elements in order.
func NewFakeDocument(elements ...*FakeElement) *FakeDocument {
	return &FakeDocument{elements: elements, queries: map[string]func(*FakeDocument) []*FakeElement{}}
}

// Append adds elements to the end of the document.
func (document *FakeDocument) Append(elements ...*FakeElement) {
	document.elements = append(document.elements, elements...)
}

// RemoveWhere detaches every element satisfying the predicate.
func (document *FakeDocument) RemoveWhere(predicate func(*FakeElement) bool) {
	document.elements = slices.DeleteFunc(document.elements, predicate)
}

// RegisterQuery answers an XPath or CSS expression with the query result.
func (document *FakeDocument) RegisterQuery(expression string, query func(*FakeDocument) []*FakeElement) {
	document.queries[expression] = query
}

// ElementByID returns the element carrying the id, or nil.
func (document *FakeDocument) ElementByID(identifier string) *FakeElement {
	for _, element := range document.elements {
		if element.ID == identifier {
			return element
		}
	}
	return nil
}

func (document *FakeDocument) contains(target *FakeElement) bool {
	return slices.Contains(document.elements, target)
}

func (document *FakeDocument) find(locator browser.Locator) ([]*FakeElement, error) {
	var matches []*FakeElement
	switch locator.Strategy {
	case browser.StrategyXPath, browser.StrategyCSSSelector:
		query, registered := document.queries[locator.Value]
		if !registered {
			return nil, fmt.Errorf("%w: %s", browser.ErrUnsupportedStrategy, locator)
		}
		return query(document), nil
	case browser.StrategyID:
		for _, element := range document.elements {
			if element.ID == locator.Value {
				matches = append(matches, element)
			}
		}
	case browser.StrategyName:
		for _, element := range document.elements {
			if element.Name == locator.Value {
				matches = append(matches, element)
			}
		}
	case browser.StrategyClassName:
		for _, element := range document.elements {
			if slices.Contains(element.Classes, locator.Value) {
				matches = append(matches, element)
			}
		}
	case browser.StrategyLinkText:
		for _, element := range document.elements {
			if element.Tag == fakeTagAnchor && strings.TrimSpace(element.Text) == locator.Value {
				matches = append(matches, element)
			}
		}
	default:
		return nil, fmt.Errorf("%w: %s", browser.ErrUnsupportedStrategy, locator.Strategy)
	}
	return matches, nil
}

// FakeBrowser opens in-memory sessions over registered pages and counts the
// session lifecycle calls.
type FakeBrowser struct {
	// OpenErr, when set, is returned by Open.
	OpenErr error

	mutex       sync.Mutex
	pages       map[string]func() *FakeDocument
	openCount   int
	closeCount  int
	navigations []string
}

// NewFakeBrowser returns a browser with no pages.
func NewFakeBrowser() *FakeBrowser {
	return &FakeBrowser{pages: map[string]func() *FakeDocument{}}
}

// AddPage registers a document builder for the URL. Every navigation builds a fresh document.
func (fakeBrowser *FakeBrowser) AddPage(url string, build func() *FakeDocument) {
	fakeBrowser.mutex.Lock()
	defer fakeBrowser.mutex.Unlock()
	fakeBrowser.pages[url] = build
}

// Open satisfies browser.Opener.
func (fakeBrowser *FakeBrowser) Open(ctx context.Context, _ browser.Options) (browser.Session, error) {
	if contextErr := ctx.Err(); contextErr != nil {
		return nil, contextErr
	}
	fakeBrowser.mutex.Lock()
	defer fakeBrowser.mutex.Unlock()
	if fakeBrowser.OpenErr != nil {
		return nil, fakeBrowser.OpenErr
	}
	fakeBrowser.openCount++
	return &fakeSession{browser: fakeBrowser}, nil
}

// OpenCount reports how many sessions were opened.
func (fakeBrowser *FakeBrowser) OpenCount() int {
	fakeBrowser.mutex.Lock()
	defer fakeBrowser.mutex.Unlock()
	return fakeBrowser.openCount
}

// CloseCount reports how many sessions were released.
func (fakeBrowser *FakeBrowser) CloseCount() int {
	fakeBrowser.mutex.Lock()
	defer fakeBrowser.mutex.Unlock()
	return fakeBrowser.closeCount
}

// Navigations lists the visited URLs in order.
func (fakeBrowser *FakeBrowser) Navigations() []string {
	fakeBrowser.mutex.Lock()
	defer fakeBrowser.mutex.Unlock()
	return slices.Clone(fakeBrowser.navigations)
}

type fakeSession struct {
	browser *FakeBrowser
	top     *FakeDocument
	scope   *FakeDocument
	closed  bool
}

type fakeElementHandle struct {
	session  *fakeSession
	document *FakeDocument
	element  *FakeElement
}

func (session *fakeSession) ensureOpen(ctx context.Context) error {
	if contextErr := ctx.Err(); contextErr != nil {
		return contextErr
	}
	if session.closed {
		return browser.ErrSessionClosed
	}
	return nil
}

func (session *fakeSession) Navigate(ctx context.Context, url string) error {
	session.browser.mutex.Lock()
	defer session.browser.mutex.Unlock()
	if openErr := session.ensureOpen(ctx); openErr != nil {
		return openErr
	}
	build, registered := session.browser.pages[url]
	if !registered {
		return fmt.Errorf("%w: %s", errFakePageMissing, url)
	}
	session.browser.navigations = append(session.browser.navigations, url)
	session.top = build()
	session.scope = session.top
	return nil
}

func (session *fakeSession) FindElement(ctx context.Context, locator browser.Locator) (browser.Element, error) {
	elements, findErr := session.FindElements(ctx, locator)
	if findErr != nil {
		return nil, findErr
	}
	if len(elements) == 0 {
		return nil, fmt.Errorf("%w: %s", browser.ErrElementNotFound, locator)
	}
	return elements[0], nil
}

func (session *fakeSession) FindElements(ctx context.Context, locator browser.Locator) ([]browser.Element, error) {
	session.browser.mutex.Lock()
	defer session.browser.mutex.Unlock()
	if openErr := session.ensureOpen(ctx); openErr != nil {
		return nil, openErr
	}
	if session.scope == nil {
		return []browser.Element{}, nil
	}
	matches, findErr := session.scope.find(locator)
	if findErr != nil {
		return nil, findErr
	}
	handles := make([]browser.Element, 0, len(matches))
	for _, match := range matches {
		handles = append(handles, &fakeElementHandle{session: session, document: session.scope, element: match})
	}
	return handles, nil
}

func (session *fakeSession) SwitchToFrame(ctx context.Context, frame browser.Element) error {
	session.browser.mutex.Lock()
	defer session.browser.mutex.Unlock()
	if openErr := session.ensureOpen(ctx); openErr != nil {
		return openErr
	}
	handle, isFake := frame.(*fakeElementHandle)
	if !isFake || handle.session != session {
		return browser.ErrForeignElement
	}
	if handle.element.Frame == nil {
		return fmt.Errorf("%w: <%s>", browser.ErrNoFrame, handle.element.Tag)
	}
	session.scope = handle.element.Frame
	return nil
}

func (session *fakeSession) SwitchToDefaultContent(ctx context.Context) error {
	session.browser.mutex.Lock()
	defer session.browser.mutex.Unlock()
	if openErr := session.ensureOpen(ctx); openErr != nil {
		return openErr
	}
	session.scope = session.top
	return nil
}

func (session *fakeSession) Close() error {
	session.browser.mutex.Lock()
	defer session.browser.mutex.Unlock()
	if session.closed {
		return nil
	}
	session.closed = true
	session.browser.closeCount++
	return nil
}

func (handle *fakeElementHandle) attached(ctx context.Context) error {
	if openErr := handle.session.ensureOpen(ctx); openErr != nil {
		return openErr
	}
	if !handle.document.contains(handle.element) {
		return errFakeStaleElement
	}
	return nil
}

func (handle *fakeElementHandle) Click(ctx context.Context) error {
	handle.session.browser.mutex.Lock()
	defer handle.session.browser.mutex.Unlock()
	if attachedErr := handle.attached(ctx); attachedErr != nil {
		return attachedErr
	}
	element := handle.element
	if element.Inert {
		return nil
	}
	switch element.Type {
	case fakeTypeBox:
		element.Checked = !element.Checked
	case fakeTypeRadio:
		for _, sibling := range handle.document.elements {
			if sibling.Type == fakeTypeRadio && sibling.Name == element.Name {
				sibling.Checked = false
			}
		}
		element.Checked = true
	}
	if element.OnClick != nil {
		element.OnClick(handle.document, element)
	}
	return nil
}

func (handle *fakeElementHandle) IsSelected(ctx context.Context) (bool, error) {
	handle.session.browser.mutex.Lock()
	defer handle.session.browser.mutex.Unlock()
	if attachedErr := handle.attached(ctx); attachedErr != nil {
		return false, attachedErr
	}
	return handle.element.Checked, nil
}

func (handle *fakeElementHandle) Attribute(ctx context.Context, name string) (string, error) {
	handle.session.browser.mutex.Lock()
	defer handle.session.browser.mutex.Unlock()
	if attachedErr := handle.attached(ctx); attachedErr != nil {
		return "", attachedErr
	}
	switch name {
	case "value":
		return handle.element.Value, nil
	case "id":
		return handle.element.ID, nil
	case "name":
		return handle.element.Name, nil
	case "type":
		return handle.element.Type, nil
	case "class":
		return strings.Join(handle.element.Classes, " "), nil
	default:
		return "", nil
	}
}

func (handle *fakeElementHandle) Text(ctx context.Context) (string, error) {
	handle.session.browser.mutex.Lock()
	defer handle.session.browser.mutex.Unlock()
	if attachedErr := handle.attached(ctx); attachedErr != nil {
		return "", attachedErr
	}
	return handle.element.Text, nil
}

// NewDemoBrowser returns a fake browser serving in-memory versions of the
// radio page and both date-picker pages at the given URLs.
func NewDemoBrowser(radioURL string, datePickerURL string, dateRangeURL string) *FakeBrowser {
	fakeBrowser := NewFakeBrowser()
	fakeBrowser.AddPage(radioURL, NewRadioDocument)
	fakeBrowser.AddPage(datePickerURL, func() *FakeDocument {
		return newFramedDocument(NewCalendarDocument("datepicker"))
	})
	fakeBrowser.AddPage(dateRangeURL, func() *FakeDocument {
		return newFramedDocument(NewCalendarDocument("from", "to"))
	})
	return fakeBrowser
}

// NewRadioDocument holds checkboxes vfb-6-0..2 and radios vfb-7-1..3.
func NewRadioDocument() *FakeDocument {
	document := NewFakeDocument()
	for index := 0; index < 3; index++ {
		document.Append(&FakeElement{
			Tag:  fakeTagInput,
			Type: fakeTypeBox,
			ID:   fmt.Sprintf("vfb-6-%d", index),
			Name: "vfb-6[]",
		})
	}
	for index := 1; index <= 3; index++ {
		document.Append(&FakeElement{
			Tag:  fakeTagInput,
			Type: fakeTypeRadio,
			ID:   fmt.Sprintf("vfb-7-%d", index),
			Name: "vfb-7",
		})
	}
	return document
}

// NewCalendarDocument holds one text input per id; clicking an input opens a
// calendar whose day links write MM/DD/YYYY into it.
func NewCalendarDocument(inputIDs ...string) *FakeDocument {
	document := NewFakeDocument()
	document.RegisterQuery(CalendarLinksXPath, func(current *FakeDocument) []*FakeElement {
		var links []*FakeElement
		for _, element := range current.elements {
			if slices.Contains(element.Classes, fakeClassDayCell) {
				links = append(links, element)
			}
		}
		return links
	})
	for _, inputID := range inputIDs {
		document.Append(&FakeElement{Tag: fakeTagInput, Type: "text", ID: inputID, OnClick: openCalendar})
	}
	return document
}

func newFramedDocument(frame *FakeDocument) *FakeDocument {
	return NewFakeDocument(&FakeElement{Tag: fakeTagIFrame, Classes: []string{fakeClassFrame}, Frame: frame})
}

func openCalendar(document *FakeDocument, input *FakeElement) {
	document.RemoveWhere(isCalendarLink)
	now := time.Now()
	for day := 1; day <= 28; day++ {
		date := time.Date(now.Year(), now.Month(), day, 0, 0, 0, 0, time.UTC)
		document.Append(&FakeElement{
			Tag:     fakeTagAnchor,
			Classes: []string{fakeClassDayCell},
			Text:    fmt.Sprintf("%d", day),
			OnClick: func(current *FakeDocument, _ *FakeElement) {
				input.Value = date.Format(fakeDateLayout)
				current.RemoveWhere(isCalendarLink)
			},
		})
	}
}

func isCalendarLink(element *FakeElement) bool {
	return slices.Contains(element.Classes, fakeClassDayCell)
}
