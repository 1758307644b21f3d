package sim

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wikiprobe/internal/driver"
	"github.com/xkilldash9x/wikiprobe/internal/locator"
)

// ErrKeyboardNotShown mirrors the server error for hiding an absent keyboard.
var ErrKeyboardNotShown = errors.New("soft keyboard not present, cannot hide keyboard")

// AppSession is a simulated UiAutomator2 session on the Wikipedia app. The
// view hierarchy is re-rendered from app state on every query, so element
// references resolve by position and go stale when the layout changes.
type AppSession struct {
	opts   Options
	logger *zap.Logger

	mu     sync.Mutex
	app    *appModel
	closed bool
}

var (
	_ driver.Session  = (*AppSession)(nil)
	_ driver.Scroller = (*AppSession)(nil)
	_ driver.Device   = (*AppSession)(nil)
)

// NewAppSession launches the app. With opts.NoReset the onboarding flow is
// treated as already completed.
func NewAppSession(opts Options) (*AppSession, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	return &AppSession{
		opts:   opts,
		logger: opts.Logger.Named("sim.app"),
		app:    newAppModel(opts.Corpus, opts.Latency, opts.now, opts.NoReset),
	}, nil
}

// KeyboardShown reports whether the soft keyboard is up.
func (s *AppSession) KeyboardShown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.app.keyboard
}

// -- driver.Session --

func (s *AppSession) FindOne(ctx context.Context, loc locator.Locator) (driver.Element, error) {
	els, err := s.FindAll(ctx, loc)
	return driver.First(els, err, loc)
}

func (s *AppSession) FindAll(ctx context.Context, loc locator.Locator) ([]driver.Element, error) {
	return driver.ImplicitLookup(ctx, s.opts.ImplicitWait, s.opts.PollInterval, func(context.Context) ([]driver.Element, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return nil, driver.ErrSessionClosed
		}
		h := s.app.render()
		nodes, err := s.lookupLocked(h, loc)
		if err != nil {
			return nil, err
		}
		els := make([]driver.Element, len(nodes))
		for i, n := range nodes {
			els[i] = &appElement{s: s, path: pathOf(n), key: nodeKey(n)}
		}
		return els, nil
	})
}

// CurrentURL returns the foreground activity, the closest app analogue.
func (s *AppSession) CurrentURL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", driver.ErrSessionClosed
	}
	return "android-app://" + AppPackage + "/" + s.app.state.screen.String(), nil
}

// Title returns the open article title, or the app name.
func (s *AppSession) Title(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", driver.ErrSessionClosed
	}
	if a, ok := s.app.article(); ok {
		return a.Title, nil
	}
	return "Wikipedia", nil
}

// NavigateTo opens a deep link to an article.
func (s *AppSession) NavigateTo(ctx context.Context, rawURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return driver.ErrSessionClosed
	}
	i := strings.Index(rawURL, "/wiki/")
	if i < 0 {
		return fmt.Errorf("%w: app cannot open %q", driver.ErrUnsupported, rawURL)
	}
	a, ok := s.app.corpus.Lookup(rawURL[i+len("/wiki/"):])
	if !ok {
		return fmt.Errorf("no article for deep link %q", rawURL)
	}
	s.app.activate()
	s.app.openArticle(a.Title)
	return nil
}

func (s *AppSession) Back(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return driver.ErrSessionClosed
	}
	s.app.back()
	s.logger.Debug("Back pressed", zap.Stringer("screen", s.app.state.screen))
	return nil
}

func (s *AppSession) Source(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", driver.ErrSessionClosed
	}
	doc := s.app.render().doc
	doc.Indent(2)
	return doc.WriteToString()
}

func (s *AppSession) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// -- driver.Scroller --

// ScrollIntoView scrolls the current content down until loc matches or the
// end is reached.
func (s *AppSession) ScrollIntoView(ctx context.Context, loc locator.Locator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return driver.ErrSessionClosed
	}
	found, err := s.scrollUntilLocked(func(h *hierarchy) (bool, error) {
		nodes, err := s.lookupLocked(h, loc)
		return len(nodes) > 0, err
	})
	if err != nil {
		return err
	}
	if !found {
		return driver.NoSuchElement(loc)
	}
	return nil
}

func (s *AppSession) ScrollToText(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return driver.ErrSessionClosed
	}
	found, err := s.scrollUntilLocked(func(h *hierarchy) (bool, error) {
		for _, el := range h.root().FindElements("//*") {
			if strings.Contains(el.SelectAttrValue("text", ""), text) {
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: text %q", driver.ErrNoSuchElement, text)
	}
	return nil
}

func (s *AppSession) ScrollBy(ctx context.Context, pixels int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return driver.ErrSessionClosed
	}
	s.app.scroll(scrollSteps(pixels))
	return nil
}

func (s *AppSession) ScrollToEnd(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return driver.ErrSessionClosed
	}
	if a, ok := s.app.article(); ok {
		blocks, _ := articleBlocks(a)
		s.app.scroll(len(blocks))
		return nil
	}
	s.app.scroll(len(feedCards))
	return nil
}

// scrollUntilLocked renders, checks match and scrolls one step at a time
// until match succeeds or the content stops moving. The explore feed never
// ends, so it is bounded by one full rotation of card types.
func (s *AppSession) scrollUntilLocked(match func(*hierarchy) (bool, error)) (bool, error) {
	limit := len(feedCards)
	if a, ok := s.app.article(); ok {
		blocks, _ := articleBlocks(a)
		limit = len(blocks)
	}
	for i := 0; i <= limit; i++ {
		ok, err := match(s.app.render())
		if err != nil || ok {
			return ok, err
		}
		if !s.app.scroll(1) {
			return false, nil
		}
	}
	return false, nil
}

// -- driver.Device --

func (s *AppSession) HideSoftKeyboard(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return driver.ErrSessionClosed
	}
	if !s.app.keyboard {
		return ErrKeyboardNotShown
	}
	s.app.keyboard = false
	return nil
}

func (s *AppSession) ActivateApp(ctx context.Context, appID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return driver.ErrSessionClosed
	}
	if appID != AppPackage {
		return fmt.Errorf("app '%s' is not installed", appID)
	}
	s.app.activate()
	return nil
}

func (s *AppSession) TerminateApp(ctx context.Context, appID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return driver.ErrSessionClosed
	}
	if appID != AppPackage {
		return fmt.Errorf("app '%s' is not installed", appID)
	}
	s.app.terminate()
	return nil
}

// -- Lookup --

func (s *AppSession) lookupLocked(h *hierarchy, loc locator.Locator) ([]*etree.Element, error) {
	var match func(*etree.Element) bool
	switch loc.Strategy() {
	case locator.ID:
		want := loc.Value()
		if !strings.Contains(want, ":id/") {
			want = idPrefix + want
		}
		match = func(el *etree.Element) bool { return el.SelectAttrValue("resource-id", "") == want }
	case locator.AccessibilityID:
		match = func(el *etree.Element) bool { return el.SelectAttrValue("content-desc", "") == loc.Value() }
	case locator.Name:
		match = func(el *etree.Element) bool { return el.SelectAttrValue("text", "") == loc.Value() }
	case locator.PlatformQuery:
		return s.queryLocked(h, loc.Value())
	default:
		return nil, driver.UnsupportedLocator("sim app", loc)
	}
	var out []*etree.Element
	for _, el := range h.root().FindElements("//*") {
		if match(el) {
			out = append(out, el)
		}
	}
	return out, nil
}

func (s *AppSession) queryLocked(h *hierarchy, query string) ([]*etree.Element, error) {
	expr, err := parseUiQuery(query)
	if err != nil {
		return nil, err
	}
	if expr.class == "UiSelector" {
		return expr.selectAll(h.root())
	}
	target, err := expr.scrollTarget()
	if err != nil {
		return nil, err
	}
	var out []*etree.Element
	_, err = s.scrollUntilLocked(func(cur *hierarchy) (bool, error) {
		found, err := target.selectAll(cur.root())
		if len(found) > 0 {
			out = found[:1]
		}
		return len(found) > 0, err
	})
	return out, err
}

// pathOf returns the child indexes leading from the hierarchy root to el.
func pathOf(el *etree.Element) []int {
	var path []int
	for el.Parent() != nil && el.Parent().Parent() != nil {
		p := el.Parent()
		for i, c := range p.ChildElements() {
			if c == el {
				path = append([]int{i}, path...)
				break
			}
		}
		el = p
	}
	return path
}

func nodeKey(el *etree.Element) string {
	return el.Tag + "|" + el.SelectAttrValue("resource-id", "") + "|" + el.SelectAttrValue("content-desc", "")
}

// -- Element --

type appElement struct {
	s    *AppSession
	path []int
	key  string
}

// resolveLocked re-renders the hierarchy and finds the referenced node in it.
func (e *appElement) resolveLocked() (*hierarchy, *etree.Element, error) {
	if e.s.closed {
		return nil, nil, driver.ErrSessionClosed
	}
	h := e.s.app.render()
	el := h.root()
	for _, i := range e.path {
		kids := el.ChildElements()
		if i >= len(kids) {
			return nil, nil, driver.ErrStaleElement
		}
		el = kids[i]
	}
	if nodeKey(el) != e.key {
		return nil, nil, driver.ErrStaleElement
	}
	return h, el, nil
}

func (e *appElement) attr(name string) (string, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	_, el, err := e.resolveLocked()
	if err != nil {
		return "", err
	}
	return el.SelectAttrValue(name, ""), nil
}

func (e *appElement) Text(ctx context.Context) (string, error) {
	return e.attr("text")
}

// Attribute accepts both the XML attribute names and the UiAutomator2
// property names.
func (e *appElement) Attribute(ctx context.Context, name string) (string, error) {
	switch name {
	case "resourceId", "resource-id":
		name = "resource-id"
	case "contentDescription", "content-desc", "content-description", "name":
		name = "content-desc"
	case "className":
		name = "class"
	}
	return e.attr(name)
}

func (e *appElement) Displayed(ctx context.Context) (bool, error) {
	v, err := e.attr("displayed")
	return v == "true", err
}

func (e *appElement) Enabled(ctx context.Context) (bool, error) {
	v, err := e.attr("enabled")
	return v == "true", err
}

func (e *appElement) Click(ctx context.Context) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	h, el, err := e.resolveLocked()
	if err != nil {
		return err
	}
	if el.SelectAttrValue("displayed", "") != "true" || el.SelectAttrValue("enabled", "") != "true" {
		return fmt.Errorf("%w: %s", driver.ErrElementNotInteractable, e.key)
	}
	// A tap lands on the nearest clickable ancestor, as on a device.
	for n := el; n != nil; n = n.Parent() {
		if fn := h.actions[n]; fn != nil {
			fn()
			break
		}
	}
	return nil
}

func (e *appElement) input() (*etree.Element, error) {
	h, el, err := e.resolveLocked()
	if err != nil {
		return nil, err
	}
	if !h.inputs[el] {
		return nil, fmt.Errorf("%w: %s does not accept text", driver.ErrElementNotInteractable, e.key)
	}
	return el, nil
}

func (e *appElement) Clear(ctx context.Context) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	if _, err := e.input(); err != nil {
		return err
	}
	e.s.app.setQuery("")
	return nil
}

// SendKeys appends text to the field. The newline submits, which for the
// search field only hides the keyboard.
func (e *appElement) SendKeys(ctx context.Context, text string) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	el, err := e.input()
	if err != nil {
		return err
	}
	value := el.SelectAttrValue("text", "")
	e.s.app.keyboard = true
	for _, r := range text {
		if r == '\n' || r == '\ue007' {
			e.s.app.keyboard = false
			continue
		}
		value += string(r)
	}
	e.s.app.setQuery(value)
	return nil
}
