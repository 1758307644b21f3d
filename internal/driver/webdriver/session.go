package webdriver

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wikiprobe/internal/driver"
	"github.com/xkilldash9x/wikiprobe/internal/locator"
)

// Platform selects how locators and device commands are mapped.
type Platform int

const (
	// Web is a browser behind a remote WebDriver endpoint.
	Web Platform = iota
	// Android is a native app behind an Appium UiAutomator2 server.
	Android
)

func (p Platform) String() string {
	if p == Android {
		return "android"
	}
	return "web"
}

// Options configure a WebDriver session.
type Options struct {
	// URL is the server endpoint, e.g. http://127.0.0.1:4723.
	URL          string
	Platform     Platform
	Capabilities Capabilities
	// AppPackage qualifies bare resource ids on Android.
	AppPackage      string
	ImplicitWait    time.Duration
	PollInterval    time.Duration
	PageLoadTimeout time.Duration
	// CommandRate caps commands per second. Zero means unlimited.
	CommandRate float64
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// Session is one WebDriver session.
type Session struct {
	id     string
	opts   Options
	c      *client
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

var (
	_ driver.Session       = (*Session)(nil)
	_ driver.Scroller      = (*Session)(nil)
	_ driver.Device        = (*Session)(nil)
	_ driver.Screenshotter = (*Session)(nil)
)

type newSessionReply struct {
	SessionID    string         `json:"sessionId"`
	Capabilities map[string]any `json:"capabilities"`
}

// New creates a session on the server. Server-side implicit waits are turned
// off; lookups wait on the client.
func New(ctx context.Context, opts Options) (*Session, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.URL == "" {
		return nil, errors.New("webdriver: server URL is required")
	}
	logger := opts.Logger.Named("webdriver")
	c := newClient(opts.URL, opts.HTTPClient, opts.CommandRate, logger)

	body := map[string]any{
		"capabilities": map[string]any{"alwaysMatch": opts.Capabilities},
	}
	var reply newSessionReply
	if err := c.do(ctx, http.MethodPost, "/session", body, &reply); err != nil {
		return nil, fmt.Errorf("create %s session at %s: %w", opts.Platform, opts.URL, err)
	}
	if reply.SessionID == "" {
		return nil, fmt.Errorf("create %s session at %s: server returned no session id", opts.Platform, opts.URL)
	}

	s := &Session{
		id:     reply.SessionID,
		opts:   opts,
		c:      c,
		logger: logger.With(zap.String("session_id", reply.SessionID), zap.Stringer("platform", opts.Platform)),
	}
	timeouts := map[string]any{"implicit": 0}
	if opts.Platform == Web && opts.PageLoadTimeout > 0 {
		timeouts["pageLoad"] = opts.PageLoadTimeout.Milliseconds()
	}
	if err := s.cmd(ctx, http.MethodPost, "/timeouts", timeouts, nil); err != nil {
		s.logger.Warn("Could not set session timeouts.", zap.Error(err))
	}
	s.logger.Info("Session created.", zap.String("url", opts.URL))
	return s, nil
}

// ID returns the server-assigned session id.
func (s *Session) ID() string { return s.id }

// cmd sends a command scoped to this session.
func (s *Session) cmd(ctx context.Context, method, suffix string, body, out any) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return driver.ErrSessionClosed
	}
	return s.c.do(ctx, method, "/session/"+s.id+suffix, body, out)
}

const (
	w3cElementKey    = "element-6066-11e4-a52e-4f735466cecf"
	legacyElementKey = "ELEMENT"
)

type elementRef map[string]string

func (r elementRef) id() string {
	if v := r[w3cElementKey]; v != "" {
		return v
	}
	return r[legacyElementKey]
}

var cssEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func attrSelector(attr, v string) string {
	return `[` + attr + `="` + cssEscaper.Replace(v) + `"]`
}

// using maps a locator onto a WebDriver location strategy.
func (s *Session) using(loc locator.Locator) (strategy, value string, err error) {
	v := loc.Value()
	if s.opts.Platform == Android {
		switch loc.Strategy() {
		case locator.ID:
			return "id", qualifyID(v, s.opts.AppPackage), nil
		case locator.AccessibilityID:
			return "accessibility id", v, nil
		case locator.Name, locator.PlatformQuery:
			sel, _ := uiSelector(loc, s.opts.AppPackage)
			return "-android uiautomator", sel, nil
		}
		return "", "", driver.UnsupportedLocator("appium", loc)
	}
	switch loc.Strategy() {
	case locator.CSS:
		return "css selector", v, nil
	case locator.ID:
		return "css selector", attrSelector("id", v), nil
	case locator.Name:
		return "css selector", attrSelector("name", v), nil
	case locator.AccessibilityID:
		return "css selector", attrSelector("aria-label", v), nil
	case locator.PlatformQuery:
		return "xpath", v, nil
	}
	return "", "", driver.UnsupportedLocator("webdriver", loc)
}

func (s *Session) findRaw(ctx context.Context, strategy, value string, loc locator.Locator) ([]driver.Element, error) {
	var refs []elementRef
	err := s.cmd(ctx, http.MethodPost, "/elements", map[string]string{"using": strategy, "value": value}, &refs)
	if errors.Is(err, driver.ErrNoSuchElement) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", loc, err)
	}
	out := make([]driver.Element, 0, len(refs))
	for _, r := range refs {
		if id := r.id(); id != "" {
			out = append(out, &element{s: s, id: id, loc: loc})
		}
	}
	return out, nil
}

func (s *Session) query(ctx context.Context, loc locator.Locator) ([]driver.Element, error) {
	strategy, value, err := s.using(loc)
	if err != nil {
		return nil, err
	}
	return s.findRaw(ctx, strategy, value, loc)
}

func (s *Session) FindAll(ctx context.Context, loc locator.Locator) ([]driver.Element, error) {
	return driver.ImplicitLookup(ctx, s.opts.ImplicitWait, s.opts.PollInterval, func(ctx context.Context) ([]driver.Element, error) {
		return s.query(ctx, loc)
	})
}

func (s *Session) FindOne(ctx context.Context, loc locator.Locator) (driver.Element, error) {
	els, err := s.FindAll(ctx, loc)
	return driver.First(els, err, loc)
}

// CurrentURL returns the page URL, or on Android an android-app:// URI naming
// the foreground package and activity.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	if s.opts.Platform == Android {
		var pkg, activity string
		if err := s.cmd(ctx, http.MethodGet, "/appium/device/current_package", nil, &pkg); err != nil {
			return "", err
		}
		if err := s.cmd(ctx, http.MethodGet, "/appium/device/current_activity", nil, &activity); err != nil {
			return "", err
		}
		return "android-app://" + pkg + "/" + strings.TrimPrefix(activity, "."), nil
	}
	var u string
	err := s.cmd(ctx, http.MethodGet, "/url", nil, &u)
	return u, err
}

func (s *Session) Title(ctx context.Context) (string, error) {
	if s.opts.Platform == Android {
		return "", fmt.Errorf("%w: title of a native app", driver.ErrUnsupported)
	}
	var t string
	err := s.cmd(ctx, http.MethodGet, "/title", nil, &t)
	return t, err
}

// NavigateTo loads a page, or on Android opens a deep link.
func (s *Session) NavigateTo(ctx context.Context, url string) error {
	s.logger.Debug("Navigating.", zap.String("url", url))
	if err := s.cmd(ctx, http.MethodPost, "/url", map[string]string{"url": url}, nil); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (s *Session) Back(ctx context.Context) error {
	return s.cmd(ctx, http.MethodPost, "/back", map[string]any{}, nil)
}

func (s *Session) Source(ctx context.Context) (string, error) {
	var src string
	err := s.cmd(ctx, http.MethodGet, "/source", nil, &src)
	return src, err
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var b64 string
	if err := s.cmd(ctx, http.MethodGet, "/screenshot", nil, &b64); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	png, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	return png, nil
}

// execute runs a synchronous script in the page.
func (s *Session) execute(ctx context.Context, script string, args []any, out any) error {
	if args == nil {
		args = []any{}
	}
	return s.cmd(ctx, http.MethodPost, "/execute/sync", map[string]any{"script": script, "args": args}, out)
}

const (
	scrollIntoViewScript = `arguments[0].scrollIntoView({block: "center"});`
	scrollByScript       = `window.scrollBy(0, arguments[0]);`
	scrollToEndScript    = `window.scrollTo(0, document.body.scrollHeight);`
	scrollToTextScript   = `const text = arguments[0];
const w = document.createTreeWalker(document.body, NodeFilter.SHOW_TEXT);
for (let n = w.nextNode(); n; n = w.nextNode()) {
	if (n.textContent.includes(text) && n.parentElement) {
		n.parentElement.scrollIntoView({block: "center"});
		return true;
	}
}
return false;`
)

// ScrollIntoView brings loc on screen. On Android it scrolls the first
// scrollable container with UiScrollable until loc matches.
func (s *Session) ScrollIntoView(ctx context.Context, loc locator.Locator) error {
	if s.opts.Platform == Android {
		sel, ok := uiSelector(loc, s.opts.AppPackage)
		if !ok {
			return driver.UnsupportedLocator("appium", loc)
		}
		els, err := s.findRaw(ctx, "-android uiautomator", scrollIntoViewQuery(sel), loc)
		if err != nil {
			return err
		}
		if len(els) == 0 {
			return driver.NoSuchElement(loc)
		}
		return nil
	}
	el, err := s.FindOne(ctx, loc)
	if err != nil {
		return err
	}
	return s.execute(ctx, scrollIntoViewScript, []any{el.(*element).ref()}, nil)
}

func (s *Session) ScrollToText(ctx context.Context, text string) error {
	if s.opts.Platform == Android {
		loc := locator.ByName(text)
		els, err := s.findRaw(ctx, "-android uiautomator", scrollToTextQuery(text), loc)
		if err != nil {
			return err
		}
		if len(els) == 0 {
			return fmt.Errorf("%w: text %q", driver.ErrNoSuchElement, text)
		}
		return nil
	}
	var found bool
	if err := s.execute(ctx, scrollToTextScript, []any{text}, &found); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: no text %q on page", driver.ErrNoSuchElement, text)
	}
	return nil
}

func (s *Session) ScrollBy(ctx context.Context, pixels int) error {
	if s.opts.Platform == Android {
		return s.swipeBy(ctx, pixels)
	}
	return s.execute(ctx, scrollByScript, []any{pixels}, nil)
}

func (s *Session) ScrollToEnd(ctx context.Context) error {
	if s.opts.Platform == Android {
		// The fling query matches nothing; an empty result is success.
		_, err := s.findRaw(ctx, "-android uiautomator", flingToEndQuery, locator.ByPlatformQuery(flingToEndQuery))
		return err
	}
	return s.execute(ctx, scrollToEndScript, nil, nil)
}

type windowRect struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// swipeBy drags a finger up the middle of the screen, in as many strokes as
// the distance needs. Positive pixels scroll content down.
func (s *Session) swipeBy(ctx context.Context, pixels int) error {
	var rect windowRect
	if err := s.cmd(ctx, http.MethodGet, "/window/rect", nil, &rect); err != nil {
		return err
	}
	if rect.Width <= 0 || rect.Height <= 0 {
		return fmt.Errorf("webdriver: bad window size %dx%d", rect.Width, rect.Height)
	}
	x := rect.Width / 2
	top, bottom := rect.Height/5, rect.Height*4/5
	span := bottom - top
	for remaining := pixels; remaining != 0; {
		d := remaining
		if d > span {
			d = span
		} else if d < -span {
			d = -span
		}
		from, to := bottom, bottom-d
		if d < 0 {
			from, to = top, top-d
		}
		if err := s.swipe(ctx, x, from, to); err != nil {
			return err
		}
		remaining -= d
	}
	return nil
}

func (s *Session) swipe(ctx context.Context, x, fromY, toY int) error {
	body := map[string]any{"actions": []any{map[string]any{
		"type":       "pointer",
		"id":         "finger1",
		"parameters": map[string]any{"pointerType": "touch"},
		"actions": []any{
			map[string]any{"type": "pointerMove", "duration": 0, "x": x, "y": fromY},
			map[string]any{"type": "pointerDown", "button": 0},
			map[string]any{"type": "pause", "duration": 100},
			map[string]any{"type": "pointerMove", "duration": 600, "origin": "viewport", "x": x, "y": toY},
			map[string]any{"type": "pointerUp", "button": 0},
		},
	}}}
	return s.cmd(ctx, http.MethodPost, "/actions", body, nil)
}

func (s *Session) requireAndroid(what string) error {
	if s.opts.Platform != Android {
		return fmt.Errorf("%w: %s on a browser session", driver.ErrUnsupported, what)
	}
	return nil
}

func (s *Session) HideSoftKeyboard(ctx context.Context) error {
	if err := s.requireAndroid("hide keyboard"); err != nil {
		return err
	}
	return s.cmd(ctx, http.MethodPost, "/appium/device/hide_keyboard", map[string]any{}, nil)
}

func (s *Session) ActivateApp(ctx context.Context, appID string) error {
	if err := s.requireAndroid("activate app"); err != nil {
		return err
	}
	return s.cmd(ctx, http.MethodPost, "/appium/device/activate_app", map[string]string{"appId": appID}, nil)
}

func (s *Session) TerminateApp(ctx context.Context, appID string) error {
	if err := s.requireAndroid("terminate app"); err != nil {
		return err
	}
	return s.cmd(ctx, http.MethodPost, "/appium/device/terminate_app", map[string]string{"appId": appID}, nil)
}

// androidEnterKeycode is KEYCODE_ENTER.
const androidEnterKeycode = 66

func (s *Session) pressEnter(ctx context.Context) error {
	return s.cmd(ctx, http.MethodPost, "/appium/device/press_keycode", map[string]int{"keycode": androidEnterKeycode}, nil)
}

// Close deletes the session on the server. It is safe to call twice.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	err := s.cmd(ctx, http.MethodDelete, "", nil, nil)
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	if err != nil && !errors.Is(err, driver.ErrSessionClosed) {
		return fmt.Errorf("delete session: %w", err)
	}
	s.logger.Info("Session deleted.")
	return nil
}
