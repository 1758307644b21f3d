package launcher

import (
	"context"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/wikiprobe/internal/config"
	"github.com/xkilldash9x/wikiprobe/internal/driver"
	"github.com/xkilldash9x/wikiprobe/internal/driver/cdp"
	"github.com/xkilldash9x/wikiprobe/internal/driver/pwdriver"
	"github.com/xkilldash9x/wikiprobe/internal/driver/sim"
	"github.com/xkilldash9x/wikiprobe/internal/driver/webdriver"
)

// simLatency delays the simulated result lists so runs against the sim
// backends still go through the waiting code.
const simLatency = 100 * time.Millisecond

func webOpeners() map[string]opener {
	return map[string]opener{
		config.BrowserChrome:  openChromium,
		config.BrowserEdge:    openChromium,
		config.BrowserFirefox: openPlaywright,
		config.BrowserWebKit:  openPlaywright,
		config.BrowserRemote:  openRemote,
		config.BrowserSim:     openSimWeb,
	}
}

func mobileOpeners() map[string]opener {
	return map[string]opener{
		config.MobileBackendAppium: openAppium,
		config.MobileBackendSim:    openSimApp,
	}
}

func openChromium(ctx context.Context, m *Manager) (driver.Session, string, error) {
	w := m.cfg.Web
	s, err := cdp.New(ctx, cdp.Options{
		Browser:         strings.ToLower(w.Browser),
		Headless:        w.Headless,
		ExecPath:        w.ExecPath,
		Args:            w.Args,
		WindowWidth:     w.WindowWidth,
		WindowHeight:    w.WindowHeight,
		PageLoadTimeout: w.PageLoadTimeout,
		ImplicitWait:    w.ImplicitWait,
		PollInterval:    w.PollInterval,
		Logger:          m.logger,
	})
	if err != nil {
		return nil, "", err
	}
	return s, "cdp/" + w.Browser, nil
}

func openPlaywright(ctx context.Context, m *Manager) (driver.Session, string, error) {
	w := m.cfg.Web
	s, err := pwdriver.New(ctx, pwdriver.Options{
		Browser:         strings.ToLower(w.Browser),
		Headless:        w.Headless,
		Args:            w.Args,
		WindowWidth:     w.WindowWidth,
		WindowHeight:    w.WindowHeight,
		PageLoadTimeout: w.PageLoadTimeout,
		ImplicitWait:    w.ImplicitWait,
		PollInterval:    w.PollInterval,
		Install:         true,
		Logger:          m.logger,
	})
	if err != nil {
		return nil, "", err
	}
	return s, "playwright/" + w.Browser, nil
}

func openRemote(ctx context.Context, m *Manager) (driver.Session, string, error) {
	w := m.cfg.Web
	caps, err := webdriver.RemoteBrowser{
		Name:         strings.ToLower(w.RemoteBrowser),
		Headless:     w.Headless,
		Args:         w.Args,
		WindowWidth:  w.WindowWidth,
		WindowHeight: w.WindowHeight,
	}.Capabilities()
	if err != nil {
		return nil, "", err
	}
	s, err := webdriver.New(ctx, webdriver.Options{
		URL:             w.RemoteURL,
		Platform:        webdriver.Web,
		Capabilities:    caps,
		ImplicitWait:    w.ImplicitWait,
		PollInterval:    w.PollInterval,
		PageLoadTimeout: w.PageLoadTimeout,
		Logger:          m.logger,
	})
	if err != nil {
		return nil, "", err
	}
	return s, "webdriver/" + w.RemoteBrowser, nil
}

func openSimWeb(_ context.Context, m *Manager) (driver.Session, string, error) {
	s, err := sim.NewWebSession(sim.Options{
		Latency:      simLatency,
		ImplicitWait: m.cfg.Web.ImplicitWait,
		PollInterval: m.cfg.Web.PollInterval,
		Logger:       m.logger,
	})
	if err != nil {
		return nil, "", err
	}
	return s, "sim/web", nil
}

// AppCapabilities maps the mobile section to Appium capabilities.
func AppCapabilities(mc config.MobileConfig) (webdriver.Capabilities, error) {
	apk := mc.APKPath
	if apk != "" {
		expanded, err := homedir.Expand(apk)
		if err != nil {
			return nil, err
		}
		apk = expanded
	}
	caps := webdriver.AndroidApp{
		PlatformVersion:      mc.PlatformVersion,
		DeviceName:           mc.DeviceName,
		AutomationName:       mc.AutomationName,
		AppPackage:           mc.AppPackage,
		AppActivity:          mc.AppActivity,
		APKPath:              apk,
		NoReset:              mc.NoReset,
		FullReset:            mc.FullReset,
		AutoGrantPermissions: mc.AutoGrantPermissions,
		NewCommandTimeout:    mc.NewCommandTimeout,
	}.Capabilities()
	if mc.PlatformName != "" {
		caps["platformName"] = mc.PlatformName
	}
	return caps, nil
}

func openAppium(ctx context.Context, m *Manager) (driver.Session, string, error) {
	mc := m.cfg.Mobile
	caps, err := AppCapabilities(mc)
	if err != nil {
		return nil, "", err
	}
	s, err := webdriver.New(ctx, webdriver.Options{
		URL:          mc.AppiumServerURL,
		Platform:     webdriver.Android,
		Capabilities: caps,
		AppPackage:   mc.AppPackage,
		ImplicitWait: mc.ImplicitWait,
		PollInterval: mc.PollInterval,
		CommandRate:  mc.CommandRate,
		Logger:       m.logger,
	})
	if err != nil {
		return nil, "", err
	}
	return s, "appium/" + mc.DeviceName, nil
}

func openSimApp(_ context.Context, m *Manager) (driver.Session, string, error) {
	mc := m.cfg.Mobile
	s, err := sim.NewAppSession(sim.Options{
		Latency:      simLatency,
		ImplicitWait: mc.ImplicitWait,
		PollInterval: mc.PollInterval,
		NoReset:      mc.NoReset,
		Logger:       m.logger,
	})
	if err != nil {
		return nil, "", err
	}
	return s, "sim/app", nil
}
