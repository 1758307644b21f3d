package launcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/wikiprobe/internal/config"
	"github.com/xkilldash9x/wikiprobe/internal/driver"
	"github.com/xkilldash9x/wikiprobe/internal/mocks"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// Idle keep-alive connections of the default transport.
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

// testingWriter sends zap output to t.Log so parallel tests do not interleave.
type testingWriter struct {
	t *testing.T
}

func (tw *testingWriter) Write(p []byte) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			// t.Log panics once the test has finished.
			fmt.Fprintf(os.Stderr, "[Recovered Log] Logged after test %s finished: %s\n", tw.t.Name(), bytes.TrimRight(p, "\n"))
			n, err = len(p), nil
		}
	}()
	tw.t.Log(string(bytes.TrimRight(p, "\n")))
	return len(p), nil
}

func testLogger(t *testing.T) *zap.Logger {
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(&testingWriter{t: t}),
		zapcore.DebugLevel,
	)
	return zap.New(core).With(zap.String("test", t.Name()))
}

func simConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Web.Browser = config.BrowserSim
	cfg.Web.ImplicitWait = 0
	cfg.Mobile.Backend = config.MobileBackendSim
	cfg.Mobile.ImplicitWait = 0
	cfg.Mobile.NoReset = true
	return cfg
}

func TestManagerSessionLifecycleAndShutdown(t *testing.T) {
	ctx := t.Context()
	m := NewManager(simConfig(), testLogger(t))

	web, err := m.NewWebSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, KindWeb, web.Kind())
	assert.Equal(t, "sim/web", web.Backend())

	app, err := m.NewMobileSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sim/app", app.Backend())
	assert.NotEqual(t, web.ID(), app.ID())

	extra, err := m.NewWebSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Len())

	require.NoError(t, extra.Close(ctx))
	require.NoError(t, extra.Close(ctx), "closing twice is a no-op")
	assert.Equal(t, 2, m.Len())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(shutdownCtx))
	assert.Equal(t, 0, m.Len())

	_, err = web.Driver().CurrentURL(ctx)
	assert.ErrorIs(t, err, driver.ErrSessionClosed)

	_, err = m.NewWebSession(ctx)
	assert.ErrorContains(t, err, "shut down")
}

func TestManagerAppLifecycle(t *testing.T) {
	ctx := t.Context()
	m := NewManager(simConfig(), testLogger(t))
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	app, err := m.NewMobileSession(ctx)
	require.NoError(t, err)

	screenOf := func() string {
		u, err := app.Driver().CurrentURL(ctx)
		require.NoError(t, err)
		return u[strings.LastIndex(u, "/")+1:]
	}
	assert.Equal(t, "main", screenOf())

	require.NoError(t, m.CloseApp(ctx, app))
	assert.Equal(t, "terminated", screenOf())
	require.NoError(t, m.LaunchApp(ctx, app))
	assert.Equal(t, "main", screenOf())
	require.NoError(t, m.RestartApp(ctx, app))
	assert.Equal(t, "main", screenOf())

	web, err := m.NewWebSession(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, m.RestartApp(ctx, web), driver.ErrUnsupported)
}

func TestManagerUnsupportedBackends(t *testing.T) {
	cfg := simConfig()
	cfg.Web.Browser = "netscape"
	cfg.Mobile.Backend = "ios"
	m := NewManager(cfg, testLogger(t))

	_, err := m.NewWebSession(t.Context())
	assert.ErrorContains(t, err, `unsupported web backend "netscape"`)
	_, err = m.NewMobileSession(t.Context())
	assert.ErrorContains(t, err, `unsupported backend "ios"`)
	assert.Equal(t, 0, m.Len())
}

func TestManagerStartFailureReleasesSlot(t *testing.T) {
	m := NewManager(simConfig(), testLogger(t))
	boom := errors.New("boom")
	m.web[config.BrowserSim] = func(context.Context, *Manager) (driver.Session, string, error) {
		return nil, "", boom
	}
	_, err := m.NewWebSession(t.Context())
	require.ErrorIs(t, err, boom)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, m.Shutdown(ctx), "a failed start must not hold the shutdown")
}

func TestManagerShutdownReportsCloseErrors(t *testing.T) {
	m := NewManager(simConfig(), testLogger(t))
	drv := mocks.NewMockSession()
	drv.On("Close", mock.Anything).Return(errors.New("browser gone")).Once()
	m.web[config.BrowserSim] = func(context.Context, *Manager) (driver.Session, string, error) {
		return drv, "mock", nil
	}
	s, err := m.NewWebSession(t.Context())
	require.NoError(t, err)

	err = m.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), s.ID())
	assert.Contains(t, err.Error(), "browser gone")
	drv.AssertExpectations(t)
}

// wdServer is a minimal W3C endpoint that records the capabilities it gets.
type wdServer struct {
	srv *httptest.Server

	mu   sync.Mutex
	caps map[string]any
	log  []string
}

func newWDServer(t *testing.T) *wdServer {
	w := &wdServer{}
	w.srv = httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		w.mu.Lock()
		w.log = append(w.log, r.Method+" "+r.URL.Path)
		if r.URL.Path == "/session" {
			var body struct {
				Capabilities struct {
					AlwaysMatch map[string]any `json:"alwaysMatch"`
				} `json:"capabilities"`
			}
			if err := jsoniter.Unmarshal(raw, &body); err != nil {
				t.Errorf("bad new session body: %v", err)
			}
			w.caps = body.Capabilities.AlwaysMatch
		}
		w.mu.Unlock()

		rw.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/session" {
			_, _ = io.WriteString(rw, `{"value":{"sessionId":"s1","capabilities":{}}}`)
			return
		}
		_, _ = io.WriteString(rw, `{"value":null}`)
	}))
	t.Cleanup(w.srv.Close)
	return w
}

func (w *wdServer) snapshot() (map[string]any, []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.caps, append([]string(nil), w.log...)
}

func TestManagerAppiumSession(t *testing.T) {
	wd := newWDServer(t)
	cfg := simConfig()
	cfg.Mobile.Backend = config.MobileBackendAppium
	cfg.Mobile.AppiumServerURL = wd.srv.URL
	cfg.Mobile.NoReset = false
	cfg.Mobile.CommandRate = 0

	m := NewManager(cfg, testLogger(t))
	s, err := m.NewMobileSession(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "appium/emulator-5554", s.Backend())
	_, isDevice := s.Driver().(driver.Device)
	assert.True(t, isDevice)

	require.NoError(t, m.Shutdown(context.Background()))

	caps, log := wd.snapshot()
	assert.Equal(t, "Android", caps["platformName"])
	assert.Equal(t, "UiAutomator2", caps["appium:automationName"])
	assert.Equal(t, "org.wikipedia", caps["appium:appPackage"])
	assert.Equal(t, true, caps["appium:autoGrantPermissions"])
	assert.EqualValues(t, 300, caps["appium:newCommandTimeout"])
	assert.Equal(t, []string{"POST /session", "POST /session/s1/timeouts", "DELETE /session/s1"}, log)
}

func TestManagerMobileValidation(t *testing.T) {
	cfg := simConfig()
	cfg.Mobile.Backend = config.MobileBackendAppium
	cfg.Mobile.DeviceName = ""
	m := NewManager(cfg, testLogger(t))

	_, err := m.NewMobileSession(t.Context())
	assert.ErrorContains(t, err, "mobile.device_name")
}

func TestManagerRemoteWebSession(t *testing.T) {
	wd := newWDServer(t)
	cfg := simConfig()
	cfg.Web.Browser = config.BrowserRemote
	cfg.Web.RemoteURL = wd.srv.URL
	cfg.Web.RemoteBrowser = "firefox"

	m := NewManager(cfg, testLogger(t))
	s, err := m.NewWebSession(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "webdriver/firefox", s.Backend())
	require.NoError(t, s.Close(t.Context()))

	caps, _ := wd.snapshot()
	assert.Equal(t, "firefox", caps["browserName"])
	assert.Contains(t, caps, "moz:firefoxOptions")
}

func TestAppCapabilities(t *testing.T) {
	home, err := homedir.Dir()
	require.NoError(t, err)

	mc := config.NewDefaultConfig().Mobile
	mc.APKPath = "~/apks/wikipedia.apk"
	mc.PlatformName = "android"
	caps, err := AppCapabilities(mc)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "apks", "wikipedia.apk"), caps["appium:app"])
	assert.Equal(t, "android", caps["platformName"])
	assert.Equal(t, "13.0", caps["appium:platformVersion"])
}
