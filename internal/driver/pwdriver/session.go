// Package pwdriver drives Firefox and WebKit through playwright-go.
package pwdriver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wikiprobe/internal/driver"
	"github.com/xkilldash9x/wikiprobe/internal/locator"
)

// Supported browsers.
const (
	BrowserFirefox  = "firefox"
	BrowserWebKit   = "webkit"
	BrowserChromium = "chromium"
)

const (
	launchTimeout = 60 * time.Second
	// clickTimeout bounds Playwright's own actionability wait. The caller's
	// poller has already waited for visibility, so what remains is an overlay.
	clickTimeout = 2 * time.Second
)

// Options configure a Playwright session.
type Options struct {
	Browser         string
	Headless        bool
	Args            []string
	WindowWidth     int
	WindowHeight    int
	PageLoadTimeout time.Duration
	ImplicitWait    time.Duration
	PollInterval    time.Duration
	// Install downloads the browser on first use when it is missing.
	Install bool
	Logger  *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Browser == "" {
		o.Browser = BrowserFirefox
	}
	if o.WindowWidth <= 0 || o.WindowHeight <= 0 {
		o.WindowWidth, o.WindowHeight = 1920, 1080
	}
	if o.PageLoadTimeout <= 0 {
		o.PageLoadTimeout = 30 * time.Second
	}
	return o
}

func (o Options) launchOptions() playwright.BrowserTypeLaunchOptions {
	args := o.Args
	// Firefox and WebKit reject Chromium switches.
	if o.Browser == BrowserChromium {
		args = append([]string{"--disable-gpu", "--no-sandbox", "--disable-dev-shm-usage"}, args...)
	}
	return playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(o.Headless),
		Args:     args,
		Timeout:  playwright.Float(float64(launchTimeout.Milliseconds())),
	}
}

// Session owns a Playwright driver, one browser and one page.
type Session struct {
	id     string
	opts   Options
	logger *zap.Logger

	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page

	mu     sync.Mutex
	closed bool
}

var (
	_ driver.Session       = (*Session)(nil)
	_ driver.Scroller      = (*Session)(nil)
	_ driver.Screenshotter = (*Session)(nil)
)

// New starts the Playwright driver, launches the browser and opens a page.
func New(ctx context.Context, opts Options) (*Session, error) {
	opts = opts.withDefaults()
	s := &Session{id: uuid.NewString(), opts: opts}
	s.logger = opts.Logger.Named("playwright").With(zap.String("session_id", s.id))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Launch is bounded by launchTimeout, not ctx.
	if err := s.start(); err != nil {
		_ = s.shutdown()
		return nil, fmt.Errorf("start %s: %w", opts.Browser, err)
	}
	s.logger.Info("Browser started.",
		zap.String("browser", opts.Browser),
		zap.String("version", s.browser.Version()),
		zap.Bool("headless", opts.Headless),
	)
	return s, nil
}

func (s *Session) start() error {
	if s.opts.Install {
		s.logger.Info("Verifying Playwright browser installation.", zap.String("browser", s.opts.Browser))
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{s.opts.Browser}}); err != nil {
			return fmt.Errorf("install playwright browsers: %w", err)
		}
	}
	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("start playwright driver: %w", err)
	}
	s.pw = pw

	var bt playwright.BrowserType
	switch s.opts.Browser {
	case BrowserFirefox:
		bt = pw.Firefox
	case BrowserWebKit:
		bt = pw.WebKit
	case BrowserChromium:
		bt = pw.Chromium
	default:
		return fmt.Errorf("unsupported browser %q", s.opts.Browser)
	}
	browser, err := bt.Launch(s.opts.launchOptions())
	if err != nil {
		return fmt.Errorf("launch: %w", err)
	}
	s.browser = browser

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: s.opts.WindowWidth, Height: s.opts.WindowHeight},
	})
	if err != nil {
		return fmt.Errorf("new context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		return fmt.Errorf("new page: %w", err)
	}
	page.SetDefaultNavigationTimeout(float64(s.opts.PageLoadTimeout.Milliseconds()))
	s.page = page
	return nil
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// do runs a blocking Playwright call and gives up when ctx ends first.
// Playwright calls carry their own timeouts, so an abandoned call still
// returns eventually.
func do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) call(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return driver.ErrSessionClosed
	}
	if err := do(ctx, fn); err != nil {
		return classify(err)
	}
	return nil
}

var (
	staleMarkers = []string{
		"not attached to the DOM",
		"Execution context was destroyed",
		"JSHandle is disposed",
		"Cannot find context with specified id",
	}
	notInteractableMarkers = []string{
		"intercepts pointer events",
		"element is not enabled",
		"element is not visible",
		"element is not editable",
	}
)

// classify maps Playwright errors onto the driver taxonomy.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	msg := err.Error()
	for _, m := range staleMarkers {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %v", driver.ErrStaleElement, err)
		}
	}
	for _, m := range notInteractableMarkers {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %v", driver.ErrElementNotInteractable, err)
		}
	}
	return err
}

var cssEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// selectorFor maps a locator onto a Playwright selector.
func selectorFor(loc locator.Locator) (string, error) {
	v := loc.Value()
	switch loc.Strategy() {
	case locator.CSS:
		return "css=" + v, nil
	case locator.ID:
		return `css=[id="` + cssEscaper.Replace(v) + `"]`, nil
	case locator.Name:
		return `css=[name="` + cssEscaper.Replace(v) + `"]`, nil
	case locator.AccessibilityID:
		return `css=[aria-label="` + cssEscaper.Replace(v) + `"]`, nil
	case locator.PlatformQuery:
		return "xpath=" + v, nil
	}
	return "", driver.UnsupportedLocator("playwright", loc)
}

func (s *Session) query(ctx context.Context, loc locator.Locator) ([]driver.Element, error) {
	sel, err := selectorFor(loc)
	if err != nil {
		return nil, err
	}
	var handles []playwright.ElementHandle
	err = s.call(ctx, func() error {
		var err error
		handles, err = s.page.QuerySelectorAll(sel)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", loc, err)
	}
	out := make([]driver.Element, len(handles))
	for i, h := range handles {
		out[i] = &element{s: s, h: h, loc: loc}
	}
	return out, nil
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

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var u string
	err := s.call(ctx, func() error {
		u = s.page.URL()
		return nil
	})
	return u, err
}

func (s *Session) Title(ctx context.Context) (string, error) {
	var t string
	err := s.call(ctx, func() error {
		var err error
		t, err = s.page.Title()
		return err
	})
	return t, err
}

func (s *Session) NavigateTo(ctx context.Context, url string) error {
	s.logger.Debug("Navigating.", zap.String("url", url))
	err := s.call(ctx, func() error {
		_, err := s.page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateLoad,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return fmt.Errorf("navigation to %s timed out after %s: %w", url, s.opts.PageLoadTimeout, err)
		}
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (s *Session) Back(ctx context.Context) error {
	return s.call(ctx, func() error {
		_, err := s.page.GoBack()
		return err
	})
}

func (s *Session) Source(ctx context.Context) (string, error) {
	var src string
	err := s.call(ctx, func() error {
		var err error
		src, err = s.page.Content()
		return err
	})
	return src, err
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var png []byte
	err := s.call(ctx, func() error {
		var err error
		png, err = s.page.Screenshot()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return png, nil
}

func (s *Session) ScrollIntoView(ctx context.Context, loc locator.Locator) error {
	el, err := s.FindOne(ctx, loc)
	if err != nil {
		return err
	}
	h := el.(*element).h
	return s.call(ctx, func() error { return h.ScrollIntoViewIfNeeded() })
}

const scrollToTextScript = `text => {
	const w = document.createTreeWalker(document.body, NodeFilter.SHOW_TEXT);
	for (let n = w.nextNode(); n; n = w.nextNode()) {
		if (n.textContent.includes(text) && n.parentElement) {
			n.parentElement.scrollIntoView({block: "center"});
			return true;
		}
	}
	return false;
}`

func (s *Session) ScrollToText(ctx context.Context, text string) error {
	var found bool
	err := s.call(ctx, func() error {
		v, err := s.page.Evaluate(scrollToTextScript, text)
		found, _ = v.(bool)
		return err
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: no text %q on page", driver.ErrNoSuchElement, text)
	}
	return nil
}

func (s *Session) ScrollBy(ctx context.Context, pixels int) error {
	return s.call(ctx, func() error {
		_, err := s.page.Evaluate(`dy => window.scrollBy(0, dy)`, pixels)
		return err
	})
}

func (s *Session) ScrollToEnd(ctx context.Context) error {
	return s.call(ctx, func() error {
		_, err := s.page.Evaluate(`() => window.scrollTo(0, document.body.scrollHeight)`)
		return err
	})
}

// Close closes the browser and stops the driver. It is safe to call twice.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := do(ctx, s.shutdown)
	s.logger.Info("Browser closed.")
	return err
}

func (s *Session) shutdown() error {
	var errs []error
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
	}
	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop playwright driver: %w", err))
		}
	}
	return errors.Join(errs...)
}
