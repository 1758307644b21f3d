// Package cdp drives Chrome and Edge over the DevTools protocol with chromedp.
package cdp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wikiprobe/internal/driver"
	"github.com/xkilldash9x/wikiprobe/internal/locator"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Session is one browser with a single tab.
type Session struct {
	id     string
	opts   Options
	logger *zap.Logger

	// ctx carries the chromedp target; every action runs on a context
	// derived from it.
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

var (
	_ driver.Session       = (*Session)(nil)
	_ driver.Scroller      = (*Session)(nil)
	_ driver.Screenshotter = (*Session)(nil)
)

// New starts a browser and opens a blank tab. The browser is not tied to
// ctx beyond startup; call Close to stop it.
func New(ctx context.Context, opts Options) (*Session, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	logger := opts.Logger.Named("cdp")

	allocCtx, allocCancel := chromedp.NewExecAllocator(detach(ctx), opts.allocatorOptions()...)
	tabCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Debugf),
	)

	// The first Run launches the browser and must use the tab context itself.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(tabCtx) }()
	select {
	case err := <-started:
		if err != nil {
			cancel()
			allocCancel()
			return nil, fmt.Errorf("start %s: %w", opts.Browser, err)
		}
	case <-ctx.Done():
		cancel()
		allocCancel()
		return nil, fmt.Errorf("start %s: %w", opts.Browser, ctx.Err())
	}

	s := &Session{
		id:          uuid.NewString(),
		opts:        opts,
		ctx:         tabCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
	}
	s.logger = logger.With(zap.String("session_id", s.id))
	s.logger.Info("Browser started.",
		zap.String("browser", opts.Browser),
		zap.Bool("headless", opts.Headless),
		zap.Int("width", opts.WindowWidth),
		zap.Int("height", opts.WindowHeight),
	)
	return s, nil
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// run executes actions on the tab, bounded by ctx.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	if s.isClosed() {
		return driver.ErrSessionClosed
	}
	opCtx, cancel := combineContext(s.ctx, ctx)
	defer cancel()
	if err := chromedp.Run(opCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return classify(err)
	}
	return nil
}

// eval evaluates expr and decodes its JSON value into out.
func (s *Session) eval(ctx context.Context, expr string, out any) error {
	var raw []byte
	if err := s.run(ctx, chromedp.Evaluate(expr, &raw)); err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func jsArg(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

var staleMarkers = []string{
	"Execution context was destroyed",
	"Cannot find context with specified id",
	"Inspected target navigated or closed",
}

// classify maps protocol errors onto the driver taxonomy.
func classify(err error) error {
	var exc *runtime.ExceptionDetails
	if errors.As(err, &exc) {
		return fmt.Errorf("cdp: script failed: %w", err)
	}
	msg := err.Error()
	for _, m := range staleMarkers {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %v", driver.ErrStaleElement, err)
		}
	}
	return err
}

// selectorFor maps a locator onto the query kind understood by findScript.
func selectorFor(loc locator.Locator) (kind, value string, err error) {
	v := loc.Value()
	switch loc.Strategy() {
	case locator.CSS:
		return "css", v, nil
	case locator.ID:
		return "css", attrSelector("id", v), nil
	case locator.Name:
		return "css", attrSelector("name", v), nil
	case locator.AccessibilityID:
		return "css", attrSelector("aria-label", v), nil
	case locator.PlatformQuery:
		return "xpath", v, nil
	}
	return "", "", driver.UnsupportedLocator("cdp", loc)
}

var cssEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func attrSelector(attr, v string) string {
	return `[` + attr + `="` + cssEscaper.Replace(v) + `"]`
}

func (s *Session) query(ctx context.Context, loc locator.Locator) ([]driver.Element, error) {
	kind, value, err := selectorFor(loc)
	if err != nil {
		return nil, err
	}
	expr := fmt.Sprintf("(%s)(%s, %s, %s)", findScript, jsArg(kind), jsArg(value), jsArg(uuid.NewString()))
	var keys []string
	if err := s.eval(ctx, expr, &keys); err != nil {
		return nil, fmt.Errorf("find %s: %w", loc, err)
	}
	out := make([]driver.Element, len(keys))
	for i, k := range keys {
		out[i] = &element{s: s, key: k, loc: loc}
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
	err := s.run(ctx, chromedp.Location(&u))
	return u, err
}

func (s *Session) Title(ctx context.Context) (string, error) {
	var t string
	err := s.run(ctx, chromedp.Title(&t))
	return t, err
}

// NavigateTo loads url and waits for the load event, bounded by the page
// load timeout.
func (s *Session) NavigateTo(ctx context.Context, url string) error {
	if s.isClosed() {
		return driver.ErrSessionClosed
	}
	s.logger.Debug("Navigating.", zap.String("url", url))

	opCtx, opCancel := combineContext(s.ctx, ctx)
	defer opCancel()
	navCtx, navCancel := context.WithTimeout(opCtx, s.opts.PageLoadTimeout)
	defer navCancel()

	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("navigation canceled: %w", ctx.Err())
		}
		if errors.Is(navCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("navigation to %s timed out after %s: %w", url, s.opts.PageLoadTimeout, err)
		}
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// Back goes one entry back in the tab history. It does nothing on the first
// entry.
func (s *Session) Back(ctx context.Context) error {
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cur, entries, err := page.GetNavigationHistory().Do(ctx)
		if err != nil {
			return err
		}
		if cur <= 0 || int(cur) >= len(entries) {
			return nil
		}
		return chromedp.NavigateBack().Do(ctx)
	}))
}

func (s *Session) Source(ctx context.Context) (string, error) {
	var src string
	err := s.eval(ctx, sourceScript, &src)
	return src, err
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

func (s *Session) ScrollIntoView(ctx context.Context, loc locator.Locator) error {
	el, err := s.FindOne(ctx, loc)
	if err != nil {
		return err
	}
	return el.(*element).call(ctx, scrollIntoViewBody, nil)
}

func (s *Session) ScrollToText(ctx context.Context, text string) error {
	var found bool
	expr := fmt.Sprintf("(%s)(%s)", scrollToTextScript, jsArg(text))
	if err := s.eval(ctx, expr, &found); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: no text %q on page", driver.ErrNoSuchElement, text)
	}
	return nil
}

func (s *Session) ScrollBy(ctx context.Context, pixels int) error {
	return s.eval(ctx, fmt.Sprintf(scrollByScript, pixels), nil)
}

func (s *Session) ScrollToEnd(ctx context.Context) error {
	return s.eval(ctx, scrollToEndScript, nil)
}

// Close shuts the browser down. If ctx ends first the process is killed.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(s.ctx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
		s.cancel()
	}
	s.allocCancel()
	s.logger.Info("Browser closed.")
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}
