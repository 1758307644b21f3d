package driver

import (
	"errors"
	"fmt"

	"github.com/xkilldash9x/wikiprobe/internal/locator"
)

var (
	// ErrNoSuchElement means a lookup matched nothing.
	ErrNoSuchElement = errors.New("no such element")
	// ErrStaleElement means the referenced node is no longer attached.
	ErrStaleElement = errors.New("stale element reference")
	// ErrElementNotInteractable means the node was found but could not
	// receive the action (covered, disabled, zero-sized).
	ErrElementNotInteractable = errors.New("element not interactable")
	// ErrUnsupported is returned for capabilities or locator strategies a
	// backend does not provide.
	ErrUnsupported = errors.New("unsupported by backend")
	// ErrSessionClosed is returned by every operation after Close.
	ErrSessionClosed = errors.New("session closed")
)

// NoSuchElement wraps ErrNoSuchElement with the locator that failed.
func NoSuchElement(loc locator.Locator) error {
	return fmt.Errorf("%w: %s", ErrNoSuchElement, loc)
}

// UnsupportedLocator wraps ErrUnsupported for a strategy the backend lacks.
func UnsupportedLocator(backend string, loc locator.Locator) error {
	return fmt.Errorf("%w: %s cannot resolve %s locators", ErrUnsupported, backend, loc.Strategy())
}

// IsTransientLookup reports whether err is a lookup failure that may clear on
// its own as the UI settles.
func IsTransientLookup(err error) bool {
	return errors.Is(err, ErrNoSuchElement) || errors.Is(err, ErrStaleElement)
}
