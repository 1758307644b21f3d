package webdriver

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/wikiprobe/internal/locator"
)

func TestAndroidAppCapabilities(t *testing.T) {
	app := AndroidApp{
		PlatformVersion:      "13.0",
		DeviceName:           "emulator-5554",
		AutomationName:       "UiAutomator2",
		AppPackage:           "org.wikipedia",
		AppActivity:          "org.wikipedia.main.MainActivity",
		APKPath:              "/tmp/wikipedia.apk",
		AutoGrantPermissions: true,
		NewCommandTimeout:    300 * time.Second,
	}
	want := Capabilities{
		"platformName":                "Android",
		"appium:platformVersion":      "13.0",
		"appium:deviceName":           "emulator-5554",
		"appium:automationName":       "UiAutomator2",
		"appium:appPackage":           "org.wikipedia",
		"appium:appActivity":          "org.wikipedia.main.MainActivity",
		"appium:app":                  "/tmp/wikipedia.apk",
		"appium:noReset":              false,
		"appium:fullReset":            false,
		"appium:autoGrantPermissions": true,
		"appium:newCommandTimeout":    300,
	}
	if diff := cmp.Diff(want, app.Capabilities()); diff != "" {
		t.Errorf("capabilities mismatch (-want +got):\n%s", diff)
	}

	minimal := AndroidApp{DeviceName: "pixel"}.Capabilities()
	assert.NotContains(t, minimal, "appium:app")
	assert.NotContains(t, minimal, "appium:platformVersion")
	assert.NotContains(t, minimal, "appium:newCommandTimeout")
}

func TestRemoteBrowserCapabilities(t *testing.T) {
	t.Run("Chrome", func(t *testing.T) {
		caps, err := RemoteBrowser{Name: "chrome", Headless: true, WindowWidth: 1280, WindowHeight: 720}.Capabilities()
		require.NoError(t, err)
		assert.Equal(t, "chrome", caps["browserName"])
		args := caps["goog:chromeOptions"].(map[string]any)["args"].([]string)
		assert.Contains(t, args, "--headless=new")
		assert.Contains(t, args, "--window-size=1280,720")
		assert.Contains(t, args, "--no-sandbox")
	})

	t.Run("Edge", func(t *testing.T) {
		caps, err := RemoteBrowser{Name: "edge"}.Capabilities()
		require.NoError(t, err)
		assert.Equal(t, "MicrosoftEdge", caps["browserName"])
		assert.Contains(t, caps, "ms:edgeOptions")
	})

	t.Run("Firefox", func(t *testing.T) {
		caps, err := RemoteBrowser{Name: "firefox", Headless: true, Args: []string{"-private"}, WindowWidth: 800, WindowHeight: 600}.Capabilities()
		require.NoError(t, err)
		args := caps["moz:firefoxOptions"].(map[string]any)["args"].([]string)
		assert.Equal(t, []string{"-private", "-width", "800", "-height", "600", "-headless"}, args)
	})

	t.Run("Unknown", func(t *testing.T) {
		_, err := RemoteBrowser{Name: "netscape"}.Capabilities()
		assert.Error(t, err)
	})
}

func TestUiSelector(t *testing.T) {
	sel, ok := uiSelector(locator.ByID("view_card_header_title"), "org.wikipedia")
	require.True(t, ok)
	assert.Equal(t, `new UiSelector().resourceId("org.wikipedia:id/view_card_header_title")`, sel)

	sel, ok = uiSelector(locator.ByAccessibilityID("Search Wikipedia"), "")
	require.True(t, ok)
	assert.Equal(t, `new UiSelector().description("Search Wikipedia")`, sel)

	_, ok = uiSelector(locator.ByCSS("p"), "")
	assert.False(t, ok)

	scrolling := `new UiScrollable(new UiSelector().scrollable(true)).scrollTextIntoView("Legacy")`
	assert.Equal(t, scrolling, scrollIntoViewQuery(scrolling))
	assert.Equal(t,
		`new UiScrollable(new UiSelector().scrollable(true).instance(0)).scrollIntoView(new UiSelector().className("android.widget.ImageButton"))`,
		scrollIntoViewQuery(locator.ByClassName("android.widget.ImageButton").Value()+";"))
	assert.Equal(t,
		`new UiScrollable(new UiSelector().scrollable(true).instance(0)).scrollIntoView(new UiSelector().textContains("say \"hi\""))`,
		scrollToTextQuery(`say "hi"`))
}
