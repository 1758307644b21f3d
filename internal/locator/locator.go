// Package locator describes how to find UI elements on a web page or an
// Android view hierarchy.
package locator

import (
	"errors"
	"fmt"
	"strings"
)

// Strategy identifies the lookup mechanism a backend uses to resolve a Locator.
type Strategy int

const (
	// ID matches the element id attribute (web) or the resource-id (Android).
	ID Strategy = iota + 1
	// AccessibilityID matches aria-label (web) or content-desc (Android).
	AccessibilityID
	// CSS is a CSS selector. Only web backends support it.
	CSS
	// Name matches the name attribute (web) or the visible text (Android).
	Name
	// PlatformQuery is a backend specific query language: XPath on the web,
	// UiSelector expressions on Android.
	PlatformQuery
)

var strategyNames = map[Strategy]string{
	ID:              "id",
	AccessibilityID: "accessibility-id",
	CSS:             "css",
	Name:            "name",
	PlatformQuery:   "platform",
}

// String returns the canonical prefix used in the textual form of a Locator.
func (s Strategy) String() string {
	if n, ok := strategyNames[s]; ok {
		return n
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// Valid reports whether s is one of the known strategies.
func (s Strategy) Valid() bool {
	_, ok := strategyNames[s]
	return ok
}

// ErrInvalid is returned when a locator cannot be built or parsed.
var ErrInvalid = errors.New("invalid locator")

// Locator is an immutable element descriptor. The zero value is not a valid
// locator; use the constructors.
type Locator struct {
	strategy Strategy
	value    string
}

// New builds a locator from a strategy and a non-empty value.
func New(s Strategy, value string) (Locator, error) {
	if !s.Valid() {
		return Locator{}, fmt.Errorf("%w: unknown strategy %d", ErrInvalid, int(s))
	}
	if value == "" {
		return Locator{}, fmt.Errorf("%w: empty %s value", ErrInvalid, s)
	}
	return Locator{strategy: s, value: value}, nil
}

// Must is like New but panics on error. Screen objects use it for their
// literal locator tables.
func Must(s Strategy, value string) Locator {
	l, err := New(s, value)
	if err != nil {
		panic(err)
	}
	return l
}

// ByID returns an ID locator.
func ByID(v string) Locator { return Must(ID, v) }

// ByAccessibilityID returns an AccessibilityID locator.
func ByAccessibilityID(v string) Locator { return Must(AccessibilityID, v) }

// ByCSS returns a CSS selector locator.
func ByCSS(v string) Locator { return Must(CSS, v) }

// ByName returns a Name locator.
func ByName(v string) Locator { return Must(Name, v) }

// ByPlatformQuery returns a PlatformQuery locator.
func ByPlatformQuery(v string) Locator { return Must(PlatformQuery, v) }

// ByClassName returns an Android class-name lookup expressed as a UiSelector.
func ByClassName(class string) Locator {
	return ByPlatformQuery(fmt.Sprintf("new UiSelector().className(%q)", class))
}

// Strategy returns the lookup strategy.
func (l Locator) Strategy() Strategy { return l.strategy }

// Value returns the raw lookup value.
func (l Locator) Value() string { return l.value }

// IsZero reports whether l is the zero Locator.
func (l Locator) IsZero() bool { return l.strategy == 0 && l.value == "" }

// Equal reports whether both locators share strategy and value.
func (l Locator) Equal(o Locator) bool {
	return l.strategy == o.strategy && l.value == o.value
}

// String renders the canonical "strategy=value" form accepted by Parse.
func (l Locator) String() string {
	if l.IsZero() {
		return "<none>"
	}
	return l.strategy.String() + "=" + l.value
}

// Parse reads the textual form produced by String.
func Parse(s string) (Locator, error) {
	prefix, value, ok := strings.Cut(s, "=")
	if !ok {
		return Locator{}, fmt.Errorf("%w: %q has no strategy prefix", ErrInvalid, s)
	}
	for st, name := range strategyNames {
		if name == prefix {
			return New(st, value)
		}
	}
	return Locator{}, fmt.Errorf("%w: unknown strategy %q", ErrInvalid, prefix)
}
