package webdriver

import (
	"strconv"
	"strings"

	"github.com/xkilldash9x/wikiprobe/internal/locator"
)

const scrollableRoot = "new UiScrollable(new UiSelector().scrollable(true).instance(0))"

// flingToEndQuery flings the first scrollable container to its end. It
// matches nothing once done.
const flingToEndQuery = scrollableRoot + ".flingToEnd(10)"

// qualifyID prefixes a bare resource id with the app package, as the
// UiAutomator2 driver expects.
func qualifyID(id, appPackage string) string {
	if appPackage == "" || strings.Contains(id, ":id/") {
		return id
	}
	return appPackage + ":id/" + id
}

// uiSelector renders loc as a UiSelector expression.
func uiSelector(loc locator.Locator, appPackage string) (string, bool) {
	v := loc.Value()
	switch loc.Strategy() {
	case locator.ID:
		return "new UiSelector().resourceId(" + strconv.Quote(qualifyID(v, appPackage)) + ")", true
	case locator.AccessibilityID:
		return "new UiSelector().description(" + strconv.Quote(v) + ")", true
	case locator.Name:
		return "new UiSelector().text(" + strconv.Quote(v) + ")", true
	case locator.PlatformQuery:
		return v, true
	}
	return "", false
}

// scrollIntoViewQuery scrolls the first scrollable container until sel
// matches. A query that already scrolls is returned unchanged.
func scrollIntoViewQuery(sel string) string {
	if strings.HasPrefix(strings.TrimSpace(sel), "new UiScrollable") {
		return sel
	}
	return scrollableRoot + ".scrollIntoView(" + strings.TrimSuffix(strings.TrimSpace(sel), ";") + ")"
}

func scrollToTextQuery(text string) string {
	return scrollIntoViewQuery("new UiSelector().textContains(" + strconv.Quote(text) + ")")
}
