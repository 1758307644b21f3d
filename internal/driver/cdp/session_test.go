package cdp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/wikiprobe/internal/driver"
	"github.com/xkilldash9x/wikiprobe/internal/locator"
)

func TestSelectorFor(t *testing.T) {
	tests := []struct {
		loc        locator.Locator
		kind, want string
	}{
		{locator.ByID("searchInput"), "css", `[id="searchInput"]`},
		{locator.ByName("search"), "css", `[name="search"]`},
		{locator.ByAccessibilityID(`Say "hi"`), "css", `[aria-label="Say \"hi\""]`},
		{locator.ByCSS("#mw-content-text p"), "css", "#mw-content-text p"},
		{locator.ByPlatformQuery("//h1"), "xpath", "//h1"},
	}
	for _, tt := range tests {
		t.Run(tt.loc.String(), func(t *testing.T) {
			kind, value, err := selectorFor(tt.loc)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.want, value)
		})
	}

	_, _, err := selectorFor(locator.Locator{})
	assert.ErrorIs(t, err, driver.ErrUnsupported)
}

func TestFlags(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		f := Options{}.flags()
		assert.Equal(t, true, f["no-sandbox"])
		assert.Equal(t, true, f["disable-gpu"])
		assert.Equal(t, true, f["disable-dev-shm-usage"])
		assert.NotContains(t, f, "headless")
	})

	t.Run("Headless", func(t *testing.T) {
		f := Options{Headless: true}.flags()
		assert.Equal(t, true, f["headless"])
	})

	t.Run("ArgsParsed", func(t *testing.T) {
		f := Options{Args: []string{"--user-agent=wikiprobe-test/1.0", "--lang=de", "--incognito", "--"}}.flags()
		assert.Equal(t, "wikiprobe-test/1.0", f["user-agent"])
		assert.Equal(t, "de", f["lang"])
		assert.Equal(t, true, f["incognito"])
		assert.NotContains(t, f, "")
	})

	t.Run("ArgsOverrideDefaults", func(t *testing.T) {
		f := Options{Args: []string{"--disable-gpu=false"}}.flags()
		assert.Equal(t, "false", f["disable-gpu"])
	})
}

func TestWithDefaults(t *testing.T) {
	o, err := Options{}.withDefaults()
	require.NoError(t, err)
	assert.Equal(t, BrowserChrome, o.Browser)
	assert.Equal(t, 1920, o.WindowWidth)
	assert.Equal(t, 30*time.Second, o.PageLoadTimeout)

	_, err = Options{Browser: "lynx"}.withDefaults()
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	err := classify(errors.New("Cannot find context with specified id (-32000)"))
	assert.ErrorIs(t, err, driver.ErrStaleElement)

	err = classify(&runtime.ExceptionDetails{Text: "Uncaught SyntaxError"})
	assert.NotErrorIs(t, err, driver.ErrStaleElement)
	assert.Contains(t, err.Error(), "script failed")

	plain := errors.New("websocket closed")
	assert.Equal(t, plain, classify(plain))
}

func TestCombineContext(t *testing.T) {
	t.Run("OpCancels", func(t *testing.T) {
		tab, tabCancel := context.WithCancel(context.Background())
		defer tabCancel()
		op, opCancel := context.WithCancel(context.Background())
		ctx, cancel := combineContext(tab, op)
		defer cancel()
		opCancel()
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context not canceled by op")
		}
	})

	t.Run("KeepsTabValues", func(t *testing.T) {
		type key struct{}
		tab := context.WithValue(context.Background(), key{}, "target")
		ctx, cancel := combineContext(tab, context.Background())
		defer cancel()
		assert.Equal(t, "target", ctx.Value(key{}))
	})
}

func TestDetach(t *testing.T) {
	type key struct{}
	parent, cancel := context.WithCancel(context.WithValue(context.Background(), key{}, 1))
	cancel()
	d := detach(parent)
	assert.NoError(t, d.Err())
	assert.Nil(t, d.Done())
	assert.Equal(t, 1, d.Value(key{}))
}

// Browser-backed tests below need a local Chrome or Chromium.

func findChrome(t *testing.T) string {
	t.Helper()
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("no Chrome or Chromium in PATH")
	return ""
}

const testPage = `<!DOCTYPE html>
<html><head><title>Fixture</title></head>
<body>
<input id="q" name="search" aria-label="Search Wikipedia">
<button id="go" onclick="document.getElementById('out').textContent = document.getElementById('q').value">Go</button>
<p id="out"></p>
<button id="hidden" style="display:none">Hidden</button>
<button id="off" disabled>Off</button>
<select id="lang" onchange="document.getElementById('picked').textContent = this.value">
  <option value="en" selected>English</option>
  <option value="de">Deutsch</option>
</select>
<p id="picked"></p>
<div style="position:relative">
  <button id="under">Under</button>
  <div id="overlay" style="position:absolute;top:0;left:0;width:300px;height:60px;background:#fff"></div>
</div>
<a id="next" href="/next">Next</a>
<div style="height:3000px"></div>
<p id="footer">The end</p>
</body></html>`

func newTestSession(t *testing.T) (*Session, *httptest.Server) {
	path := findChrome(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if r.URL.Path == "/next" {
			fmt.Fprint(w, `<!DOCTYPE html><html><head><title>Next</title></head><body><h1 id="h">Next page</h1></body></html>`)
			return
		}
		fmt.Fprint(w, testPage)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s, err := New(ctx, Options{
		Headless:     true,
		ExecPath:     path,
		WindowWidth:  1024,
		WindowHeight: 768,
		ImplicitWait: 500 * time.Millisecond,
		PollInterval: 50 * time.Millisecond,
		Logger:       zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		assert.NoError(t, s.Close(closeCtx))
	})
	require.NoError(t, s.NavigateTo(ctx, srv.URL))
	return s, srv
}

func TestSessionAgainstChrome(t *testing.T) {
	s, srv := newTestSession(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	title, err := s.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Fixture", title)

	t.Run("TypeAndClick", func(t *testing.T) {
		in, err := s.FindOne(ctx, locator.ByAccessibilityID("Search Wikipedia"))
		require.NoError(t, err)
		require.NoError(t, in.SendKeys(ctx, "Albert Einstein"))
		v, err := in.Attribute(ctx, "value")
		require.NoError(t, err)
		assert.Equal(t, "Albert Einstein", v)

		btn, err := s.FindOne(ctx, locator.ByID("go"))
		require.NoError(t, err)
		require.NoError(t, btn.Click(ctx))
		out, err := s.FindOne(ctx, locator.ByID("out"))
		require.NoError(t, err)
		text, err := out.Text(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Albert Einstein", text)

		require.NoError(t, in.Clear(ctx))
		v, err = in.Attribute(ctx, "value")
		require.NoError(t, err)
		assert.Empty(t, v)
	})

	t.Run("VisibilityAndState", func(t *testing.T) {
		hidden, err := s.FindOne(ctx, locator.ByID("hidden"))
		require.NoError(t, err)
		shown, err := hidden.Displayed(ctx)
		require.NoError(t, err)
		assert.False(t, shown)

		off, err := s.FindOne(ctx, locator.ByID("off"))
		require.NoError(t, err)
		enabled, err := off.Enabled(ctx)
		require.NoError(t, err)
		assert.False(t, enabled)
		assert.ErrorIs(t, off.Click(ctx), driver.ErrElementNotInteractable)
	})

	t.Run("SelectOption", func(t *testing.T) {
		opt, err := s.FindOne(ctx, locator.ByCSS("#lang option[value='de']"))
		require.NoError(t, err)
		shown, err := opt.Displayed(ctx)
		require.NoError(t, err)
		assert.False(t, shown, "options of a closed dropdown have no box")

		el, err := s.FindOne(ctx, locator.ByID("lang"))
		require.NoError(t, err)
		sel, ok := el.(driver.OptionSelector)
		require.True(t, ok)
		require.NoError(t, sel.SelectOption(ctx, "de"))
		v, err := el.Attribute(ctx, "value")
		require.NoError(t, err)
		assert.Equal(t, "de", v)
		picked, err := s.FindOne(ctx, locator.ByID("picked"))
		require.NoError(t, err)
		text, err := picked.Text(ctx)
		require.NoError(t, err)
		assert.Equal(t, "de", text)

		assert.ErrorIs(t, sel.SelectOption(ctx, "xx"), driver.ErrNoSuchElement)
	})

	t.Run("CoveredClick", func(t *testing.T) {
		under, err := s.FindOne(ctx, locator.ByID("under"))
		require.NoError(t, err)
		shown, err := under.Displayed(ctx)
		require.NoError(t, err)
		assert.True(t, shown)
		err = under.Click(ctx)
		assert.ErrorIs(t, err, driver.ErrElementNotInteractable)
		assert.Contains(t, err.Error(), "overlay")
	})

	t.Run("MissingAfterImplicitWait", func(t *testing.T) {
		start := time.Now()
		els, err := s.FindAll(ctx, locator.ByCSS(".nothing-here"))
		require.NoError(t, err)
		assert.Empty(t, els)
		assert.GreaterOrEqual(t, time.Since(start), 500*time.Millisecond)

		_, err = s.FindOne(driver.WithoutImplicitWait(ctx), locator.ByPlatformQuery("//table"))
		assert.ErrorIs(t, err, driver.ErrNoSuchElement)
	})

	t.Run("Scroll", func(t *testing.T) {
		require.NoError(t, s.ScrollToText(ctx, "The end"))
		require.NoError(t, s.ScrollBy(ctx, -200))
		require.NoError(t, s.ScrollToEnd(ctx))
		assert.ErrorIs(t, s.ScrollToText(ctx, "not on this page"), driver.ErrNoSuchElement)
	})

	t.Run("StaleAfterNavigationAndBack", func(t *testing.T) {
		btn, err := s.FindOne(ctx, locator.ByID("go"))
		require.NoError(t, err)
		require.NoError(t, s.NavigateTo(ctx, srv.URL+"/next"))
		_, err = btn.Text(ctx)
		assert.ErrorIs(t, err, driver.ErrStaleElement)

		require.NoError(t, s.Back(ctx))
		u, err := s.CurrentURL(ctx)
		require.NoError(t, err)
		assert.Equal(t, srv.URL+"/", u)
	})

	t.Run("SourceAndScreenshot", func(t *testing.T) {
		src, err := s.Source(ctx)
		require.NoError(t, err)
		assert.Contains(t, src, `id="overlay"`)
		png, err := s.Screenshot(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, png)
	})
}

func TestClosedSession(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.Close(context.Background()))
	_, err := s.Title(context.Background())
	assert.ErrorIs(t, err, driver.ErrSessionClosed)
	assert.NoError(t, s.Close(context.Background()))
}
