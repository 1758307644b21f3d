// Package driver defines the session contract that screen objects and the
// wait engine consume, plus the error taxonomy every backend maps onto.
//
// Backends live in sub-packages: cdp (Chromium over DevTools), pwdriver
// (Playwright for Firefox and WebKit), webdriver (W3C WebDriver and Appium)
// and sim (in-process Wikipedia simulation used for offline runs and tests).
package driver

import (
	"context"

	"github.com/xkilldash9x/wikiprobe/internal/locator"
)

// Session is a live connection to a browser tab or a mobile app. Screens hold
// a non-owning reference; only the launcher closes it.
type Session interface {
	// FindOne returns the first element matching loc, applying the session's
	// implicit wait. It fails with ErrNoSuchElement when nothing matches.
	FindOne(ctx context.Context, loc locator.Locator) (Element, error)
	// FindAll returns every element matching loc. An empty result is not an
	// error.
	FindAll(ctx context.Context, loc locator.Locator) ([]Element, error)

	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	NavigateTo(ctx context.Context, url string) error
	Back(ctx context.Context) error
	// Source returns the serialized DOM or view hierarchy.
	Source(ctx context.Context) (string, error)

	Close(ctx context.Context) error
}

// Element is a reference to a located node. Operations fail with
// ErrStaleElement once the node is detached.
type Element interface {
	Text(ctx context.Context) (string, error)
	// Attribute returns the live property or attribute value, or "" when the
	// node has neither.
	Attribute(ctx context.Context, name string) (string, error)
	Displayed(ctx context.Context) (bool, error)
	Enabled(ctx context.Context) (bool, error)
	// Click fails with ErrElementNotInteractable when the node is covered or
	// disabled at the moment of the click.
	Click(ctx context.Context) error
	Clear(ctx context.Context) error
	// SendKeys types text one character at a time into the node.
	SendKeys(ctx context.Context, text string) error
}

// Scroller is implemented by backends that can bring content into view.
type Scroller interface {
	ScrollIntoView(ctx context.Context, loc locator.Locator) error
	ScrollToText(ctx context.Context, text string) error
	// ScrollBy scrolls the main viewport; positive values scroll down.
	ScrollBy(ctx context.Context, pixels int) error
	ScrollToEnd(ctx context.Context) error
}

// Device is implemented by mobile sessions.
type Device interface {
	HideSoftKeyboard(ctx context.Context) error
	ActivateApp(ctx context.Context, appID string) error
	TerminateApp(ctx context.Context, appID string) error
}

// OptionSelector is implemented by elements that can pick an entry of a
// <select> by its value without opening the dropdown. An unknown value fails
// with ErrNoSuchElement.
type OptionSelector interface {
	SelectOption(ctx context.Context, value string) error
}

// Screenshotter is implemented by backends that can capture the viewport.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}
