package webdriver

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/wikiprobe/internal/driver"
	"github.com/xkilldash9x/wikiprobe/internal/locator"
)

func newWebSession(t *testing.T, f *fakeServer) *Session {
	t.Helper()
	s, err := New(context.Background(), Options{
		URL:             f.srv.URL,
		Platform:        Web,
		Capabilities:    Capabilities{"browserName": "chrome"},
		ImplicitWait:    100 * time.Millisecond,
		PollInterval:    20 * time.Millisecond,
		PageLoadTimeout: 30 * time.Second,
		Logger:          zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return s
}

func newAndroidSession(t *testing.T, f *fakeServer) *Session {
	t.Helper()
	app := AndroidApp{DeviceName: "emulator-5554", AutomationName: "UiAutomator2", AppPackage: "org.wikipedia", AppActivity: "org.wikipedia.main.MainActivity"}
	s, err := New(context.Background(), Options{
		URL:          f.srv.URL,
		Platform:     Android,
		Capabilities: app.Capabilities(),
		AppPackage:   "org.wikipedia",
		Logger:       zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return s
}

func TestNewSession(t *testing.T) {
	f := newFakeServer(t)
	s := newWebSession(t, f)
	assert.Equal(t, fakeSessionID, s.ID())

	created := f.commands("/session")
	require.NotEmpty(t, created)
	caps := created[0].Body["capabilities"].(map[string]any)["alwaysMatch"].(map[string]any)
	assert.Equal(t, "chrome", caps["browserName"])

	timeouts := f.commands("/timeouts")
	require.Len(t, timeouts, 1)
	assert.EqualValues(t, 0, timeouts[0].Body["implicit"])
	assert.EqualValues(t, 30000, timeouts[0].Body["pageLoad"])
}

func TestNewSessionFailure(t *testing.T) {
	f := newFakeServer(t)
	f.handle("POST /session", fail(500, "session not created", "Could not start a new session.\nstack"))
	_, err := New(context.Background(), Options{URL: f.srv.URL})
	require.Error(t, err)
	var wdErr *Error
	require.True(t, errors.As(err, &wdErr))
	assert.Equal(t, "session not created", wdErr.Code)
	assert.Equal(t, 500, wdErr.Status)
	assert.NotContains(t, err.Error(), "stack")
}

func TestWebFindAndElementCommands(t *testing.T) {
	f := newFakeServer(t)
	f.handle("POST /elements", func(body map[string]any) (int, any) {
		if body["using"] == "css selector" && body["value"] == `[id="searchInput"]` {
			return 200, elementRefs("e1")
		}
		return 200, elementRefs()
	})
	f.handle("GET /element/e1/text", ok("  Albert Einstein \n"))
	f.handle("GET /element/e1/property/value", ok("Albert"))
	f.handle("GET /element/e1/property/data-x", ok(nil))
	f.handle("GET /element/e1/attribute/data-x", ok("42"))
	f.handle("GET /element/e1/displayed", ok(true))
	f.handle("GET /element/e1/enabled", ok(false))
	f.handle("POST /element/e1/value", ok(nil))
	f.handle("POST /element/e1/clear", ok(nil))
	f.handle("POST /element/e1/click", fail(400, "element click intercepted", "Other element would receive the click"))
	s := newWebSession(t, f)
	ctx := context.Background()

	el, err := s.FindOne(ctx, locator.ByID("searchInput"))
	require.NoError(t, err)

	text, err := el.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Albert Einstein", text)

	v, err := el.Attribute(ctx, "value")
	require.NoError(t, err)
	assert.Equal(t, "Albert", v)
	v, err = el.Attribute(ctx, "data-x")
	require.NoError(t, err)
	assert.Equal(t, "42", v)

	shown, err := el.Displayed(ctx)
	require.NoError(t, err)
	assert.True(t, shown)
	enabled, err := el.Enabled(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)

	require.NoError(t, el.SendKeys(ctx, "Moscow\n"))
	typed := f.commands("/element/e1/value")
	require.Len(t, typed, 1)
	assert.Equal(t, "Moscow\ue007", typed[0].Body["text"])

	require.NoError(t, el.Clear(ctx))
	assert.ErrorIs(t, el.Click(ctx), driver.ErrElementNotInteractable)

	start := time.Now()
	_, err = s.FindOne(ctx, locator.ByCSS(".missing"))
	assert.ErrorIs(t, err, driver.ErrNoSuchElement)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestWebSelectOption(t *testing.T) {
	f := newFakeServer(t)
	f.handle("POST /elements", ok(elementRefs("sel")))
	f.handle("POST /element/sel/element", func(body map[string]any) (int, any) {
		if body["value"] == `option[value="de"]` {
			return 200, map[string]string{w3cElementKey: "opt-de"}
		}
		return 404, map[string]any{"error": "no such element", "message": "no option"}
	})
	f.handle("POST /element/opt-de/click", ok(nil))
	s := newWebSession(t, f)
	ctx := context.Background()

	el, err := s.FindOne(ctx, locator.ByID("searchLanguage"))
	require.NoError(t, err)
	sel, isSelect := el.(driver.OptionSelector)
	require.True(t, isSelect)

	require.NoError(t, sel.SelectOption(ctx, "de"))
	assert.Len(t, f.commands("/element/opt-de/click"), 1)

	assert.ErrorIs(t, sel.SelectOption(ctx, "tlh"), driver.ErrNoSuchElement)
}

func TestStaleElement(t *testing.T) {
	f := newFakeServer(t)
	f.handle("POST /elements", ok(elementRefs("e9")))
	f.handle("GET /element/e9/text", fail(404, "stale element reference", "element is not attached"))
	s := newWebSession(t, f)

	el, err := s.FindOne(context.Background(), locator.ByPlatformQuery("//h1"))
	require.NoError(t, err)
	_, err = el.Text(context.Background())
	assert.ErrorIs(t, err, driver.ErrStaleElement)
	assert.Contains(t, err.Error(), "platform=//h1")
}

func TestWebNavigationAndScroll(t *testing.T) {
	f := newFakeServer(t)
	f.handle("POST /url", ok(nil))
	f.handle("GET /url", ok("https://en.wikipedia.org/wiki/Moscow"))
	f.handle("GET /title", ok("Moscow - Wikipedia"))
	f.handle("POST /back", ok(nil))
	f.handle("GET /source", ok("<html></html>"))
	f.handle("GET /screenshot", ok(base64.StdEncoding.EncodeToString([]byte("png"))))
	f.handle("POST /execute/sync", func(body map[string]any) (int, any) {
		args := body["args"].([]any)
		if len(args) == 1 && args[0] == "missing text" {
			return 200, false
		}
		return 200, true
	})
	s := newWebSession(t, f)
	ctx := context.Background()

	require.NoError(t, s.NavigateTo(ctx, "https://en.wikipedia.org/wiki/Moscow"))
	u, err := s.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://en.wikipedia.org/wiki/Moscow", u)
	title, err := s.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Moscow - Wikipedia", title)
	require.NoError(t, s.Back(ctx))
	src, err := s.Source(ctx)
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", src)
	png, err := s.Screenshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), png)

	require.NoError(t, s.ScrollBy(ctx, 400))
	require.NoError(t, s.ScrollToEnd(ctx))
	require.NoError(t, s.ScrollToText(ctx, "History"))
	assert.ErrorIs(t, s.ScrollToText(ctx, "missing text"), driver.ErrNoSuchElement)

	assert.ErrorIs(t, s.HideSoftKeyboard(ctx), driver.ErrUnsupported)
}

func TestUsing(t *testing.T) {
	web := &Session{opts: Options{Platform: Web}}
	android := &Session{opts: Options{Platform: Android, AppPackage: "org.wikipedia"}}

	tests := []struct {
		name      string
		s         *Session
		loc       locator.Locator
		strategy  string
		value     string
		unsupport bool
	}{
		{"web id", web, locator.ByID("searchInput"), "css selector", `[id="searchInput"]`, false},
		{"web name", web, locator.ByName("search"), "css selector", `[name="search"]`, false},
		{"web a11y", web, locator.ByAccessibilityID("Search"), "css selector", `[aria-label="Search"]`, false},
		{"web xpath", web, locator.ByPlatformQuery("//h1"), "xpath", "//h1", false},
		{"android id", android, locator.ByID("search_src_text"), "id", "org.wikipedia:id/search_src_text", false},
		{"android full id", android, locator.ByID("android:id/button1"), "id", "android:id/button1", false},
		{"android a11y", android, locator.ByAccessibilityID("Navigate up"), "accessibility id", "Navigate up", false},
		{"android name", android, locator.ByName("Explore"), "-android uiautomator", `new UiSelector().text("Explore")`, false},
		{"android css", android, locator.ByCSS("#x"), "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strategy, value, err := tt.s.using(tt.loc)
			if tt.unsupport {
				assert.ErrorIs(t, err, driver.ErrUnsupported)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.strategy, strategy)
			assert.Equal(t, tt.value, value)
		})
	}
}

func TestAndroidCommands(t *testing.T) {
	f := newFakeServer(t)
	f.handle("POST /elements", func(body map[string]any) (int, any) {
		if body["using"] == "-android uiautomator" {
			q := body["value"].(string)
			if q == flingToEndQuery {
				return 404, map[string]any{"error": "no such element", "message": "none"}
			}
			return 200, elementRefs("r1")
		}
		return 200, elementRefs("t1")
	})
	f.handle("POST /appium/device/hide_keyboard", ok(nil))
	f.handle("POST /appium/device/activate_app", ok(nil))
	f.handle("POST /appium/device/terminate_app", ok(nil))
	f.handle("POST /appium/device/press_keycode", ok(nil))
	f.handle("GET /appium/device/current_package", ok("org.wikipedia"))
	f.handle("GET /appium/device/current_activity", ok(".main.MainActivity"))
	f.handle("GET /window/rect", ok(map[string]any{"x": 0, "y": 0, "width": 1080, "height": 2400}))
	f.handle("POST /actions", ok(nil))
	f.handle("POST /element/t1/value", ok(nil))
	f.handle("GET /element/t1/attribute/selected", ok("true"))
	s := newAndroidSession(t, f)
	ctx := context.Background()

	u, err := s.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "android-app://org.wikipedia/main.MainActivity", u)
	_, err = s.Title(ctx)
	assert.ErrorIs(t, err, driver.ErrUnsupported)

	require.NoError(t, s.HideSoftKeyboard(ctx))
	require.NoError(t, s.TerminateApp(ctx, "org.wikipedia"))
	require.NoError(t, s.ActivateApp(ctx, "org.wikipedia"))
	activated := f.commands("/appium/device/activate_app")
	require.Len(t, activated, 1)
	assert.Equal(t, "org.wikipedia", activated[0].Body["appId"])

	el, err := s.FindOne(ctx, locator.ByID("search_src_text"))
	require.NoError(t, err)
	require.NoError(t, el.SendKeys(ctx, "Java\n"))
	assert.Len(t, f.commands("/element/t1/value"), 1)
	assert.Len(t, f.commands("/appium/device/press_keycode"), 1)
	sel, err := el.Attribute(ctx, "selected")
	require.NoError(t, err)
	assert.Equal(t, "true", sel)

	require.NoError(t, s.ScrollIntoView(ctx, locator.ByID("page_toc_button")))
	require.NoError(t, s.ScrollToText(ctx, "Legacy"))
	scrolls := f.commands("/elements")
	var queries []string
	for _, c := range scrolls {
		if c.Body["using"] == "-android uiautomator" {
			queries = append(queries, c.Body["value"].(string))
		}
	}
	assert.Contains(t, queries, `new UiScrollable(new UiSelector().scrollable(true).instance(0)).scrollIntoView(new UiSelector().resourceId("org.wikipedia:id/page_toc_button"))`)
	assert.Contains(t, queries, `new UiScrollable(new UiSelector().scrollable(true).instance(0)).scrollIntoView(new UiSelector().textContains("Legacy"))`)

	require.NoError(t, s.ScrollToEnd(ctx))

	// 2400px screen: strokes cover 1440px, so 2000px takes two swipes.
	require.NoError(t, s.ScrollBy(ctx, 2000))
	assert.Len(t, f.commands("/actions"), 2)
	require.NoError(t, s.ScrollBy(ctx, -300))
	assert.Len(t, f.commands("/actions"), 3)
}

func TestClose(t *testing.T) {
	f := newFakeServer(t)
	s := newWebSession(t, f)
	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))
	assert.Len(t, f.commands(""), 3) // create, timeouts, delete

	_, err := s.Source(context.Background())
	assert.ErrorIs(t, err, driver.ErrSessionClosed)
}

func TestCommandRate(t *testing.T) {
	f := newFakeServer(t)
	f.handle("GET /title", ok("t"))
	s, err := New(context.Background(), Options{URL: f.srv.URL, CommandRate: 20, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	start := time.Now()
	for range 5 {
		_, err := s.Title(context.Background())
		require.NoError(t, err)
	}
	// Burst of one at 20/s: five calls after the two setup calls need ~250ms.
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestDecodeError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   string
		is     error
	}{
		{"w3c", 404, `{"value":{"error":"no such element","message":"Unable to locate element"}}`, "no such element", driver.ErrNoSuchElement},
		{"invalid session", 404, `{"value":{"error":"invalid session id","message":""}}`, "invalid session id", driver.ErrSessionClosed},
		{"plain 404", 404, `Not Found`, "unknown command", driver.ErrUnsupported},
		{"html 500", 500, `<html>boom</html>`, "unknown error", nil},
		{"empty", 502, ``, "unknown error", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := decodeError(tt.status, []byte(tt.body))
			assert.Equal(t, tt.code, e.Code)
			assert.Equal(t, tt.status, e.Status)
			if tt.is != nil {
				assert.ErrorIs(t, e, tt.is)
			}
		})
	}
}

func FuzzDecodeError(f *testing.F) {
	f.Add([]byte(`{"value":{"error":"stale element reference","message":"gone"}}`))
	f.Add([]byte(`{"value":null}`))
	f.Fuzz(func(t *testing.T, data []byte) {
		c := fuzz.NewConsumer(data)
		status, err := c.GetInt()
		if err != nil {
			return
		}
		body, err := c.GetBytes()
		if err != nil {
			return
		}
		e := decodeError(status%600, body)
		if e == nil || e.Code == "" || e.Error() == "" {
			t.Fatalf("decodeError(%d, %q) = %+v", status%600, body, e)
		}
		if utf8.Valid(body) && !utf8.ValidString(e.Message) {
			t.Fatalf("decodeError(%d, %q) split a rune: %q", status%600, body, e.Message)
		}
	})
}

func TestDecodeErrorTruncatesOnRuneBoundary(t *testing.T) {
	body := strings.Repeat("a", maxBodyMessage-1) + "é trailing"
	e := decodeError(http.StatusBadGateway, []byte(body))
	assert.True(t, utf8.ValidString(e.Message))
	assert.Equal(t, strings.Repeat("a", maxBodyMessage-1), e.Message)

	short := decodeError(http.StatusBadGateway, []byte("  Bad gateway: сервер недоступен  "))
	assert.Equal(t, "Bad gateway: сервер недоступен", short.Message)
}

func TestErrorMessageFirstLine(t *testing.T) {
	e := &Error{Code: "unknown error", Message: "boom\n\tat frame 1", Status: http.StatusInternalServerError}
	assert.Equal(t, "webdriver: unknown error: boom", e.Error())
}
