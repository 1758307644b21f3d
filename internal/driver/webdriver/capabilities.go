package webdriver

import (
	"fmt"
	"strconv"
	"time"
)

// Capabilities is the alwaysMatch object sent with New Session.
type Capabilities map[string]any

// AndroidApp describes the app under test on an Android device.
type AndroidApp struct {
	PlatformVersion string
	DeviceName      string
	AutomationName  string
	AppPackage      string
	AppActivity     string
	// APKPath installs the app from a local file when set.
	APKPath              string
	NoReset              bool
	FullReset            bool
	AutoGrantPermissions bool
	NewCommandTimeout    time.Duration
}

// Capabilities returns the Appium capabilities for the app. Vendor keys carry
// the "appium:" prefix required by Appium 2.
func (a AndroidApp) Capabilities() Capabilities {
	caps := Capabilities{
		"platformName":                "Android",
		"appium:deviceName":           a.DeviceName,
		"appium:automationName":       a.AutomationName,
		"appium:appPackage":           a.AppPackage,
		"appium:appActivity":          a.AppActivity,
		"appium:noReset":              a.NoReset,
		"appium:fullReset":            a.FullReset,
		"appium:autoGrantPermissions": a.AutoGrantPermissions,
	}
	if a.PlatformVersion != "" {
		caps["appium:platformVersion"] = a.PlatformVersion
	}
	if a.APKPath != "" {
		caps["appium:app"] = a.APKPath
	}
	if a.NewCommandTimeout > 0 {
		caps["appium:newCommandTimeout"] = int(a.NewCommandTimeout / time.Second)
	}
	return caps
}

// RemoteBrowser describes a browser behind a remote WebDriver endpoint.
type RemoteBrowser struct {
	// Name is "chrome", "edge" or "firefox".
	Name         string
	Headless     bool
	Args         []string
	WindowWidth  int
	WindowHeight int
}

// Capabilities returns the W3C capabilities with the vendor options block
// for the browser.
func (b RemoteBrowser) Capabilities() (Capabilities, error) {
	args := append([]string(nil), b.Args...)
	sized := b.WindowWidth > 0 && b.WindowHeight > 0
	switch b.Name {
	case "chrome", "edge":
		args = append([]string{"--disable-gpu", "--no-sandbox", "--disable-dev-shm-usage"}, args...)
		if sized {
			args = append(args, fmt.Sprintf("--window-size=%d,%d", b.WindowWidth, b.WindowHeight))
		}
		if b.Headless {
			args = append(args, "--headless=new")
		}
		name, key := "chrome", "goog:chromeOptions"
		if b.Name == "edge" {
			name, key = "MicrosoftEdge", "ms:edgeOptions"
		}
		return Capabilities{"browserName": name, key: map[string]any{"args": args}}, nil
	case "firefox":
		if sized {
			args = append(args, "-width", strconv.Itoa(b.WindowWidth), "-height", strconv.Itoa(b.WindowHeight))
		}
		if b.Headless {
			args = append(args, "-headless")
		}
		return Capabilities{"browserName": "firefox", "moz:firefoxOptions": map[string]any{"args": args}}, nil
	}
	return nil, fmt.Errorf("webdriver: unsupported remote browser %q", b.Name)
}
