// Package element wraps a located UI node with the waits every interaction
// needs: an action first waits for the node to be ready, then acts once.
package element

import (
	"context"
	"errors"
	"fmt"

	"github.com/xkilldash9x/wikiprobe/internal/driver"
	"github.com/xkilldash9x/wikiprobe/internal/locator"
	"github.com/xkilldash9x/wikiprobe/internal/wait"
)

// Handle targets either a locator, resolved afresh for every action, or an
// element reference obtained earlier (for example one row of a result list).
type Handle struct {
	session driver.Session
	poller  *wait.Poller
	loc     locator.Locator
	ref     driver.Element
	name    string
}

// ByLocator returns a Handle that re-resolves loc on every action.
func ByLocator(s driver.Session, p *wait.Poller, loc locator.Locator) *Handle {
	return &Handle{session: s, poller: p, loc: loc, name: loc.String()}
}

// FromElement returns a Handle around an existing reference. name is only
// used in error messages.
func FromElement(s driver.Session, p *wait.Poller, el driver.Element, name string) *Handle {
	return &Handle{session: s, poller: p, ref: el, name: name}
}

func (h *Handle) String() string { return h.name }

// WaitVisible blocks until the node is displayed and returns it.
func (h *Handle) WaitVisible(ctx context.Context) (driver.Element, error) {
	if h.ref != nil {
		return wait.Await(ctx, h.poller, wait.RefVisible(h.ref, h.name))
	}
	return wait.Await(ctx, h.poller, wait.ElementVisible(h.session, h.loc))
}

// WaitClickable blocks until the node is displayed and enabled and returns it.
func (h *Handle) WaitClickable(ctx context.Context) (driver.Element, error) {
	if h.ref != nil {
		return wait.Await(ctx, h.poller, wait.RefClickable(h.ref, h.name))
	}
	return wait.Await(ctx, h.poller, wait.ElementClickable(h.session, h.loc))
}

// WaitInvisible blocks until the node is gone, hidden or detached.
func (h *Handle) WaitInvisible(ctx context.Context) error {
	if h.ref == nil {
		return wait.Until(ctx, h.poller, wait.ElementInvisible(h.session, h.loc))
	}
	return wait.Until(ctx, h.poller, wait.Condition[bool]{
		Kind:   "element_invisible",
		Target: h.name,
		Check: func(ctx context.Context) (bool, error) {
			shown, err := h.ref.Displayed(ctx)
			switch {
			case errors.Is(err, driver.ErrStaleElement):
				return true, nil
			case err != nil:
				return false, err
			case shown:
				return false, wait.ErrNotReady
			}
			return true, nil
		},
	})
}

// Click waits until the node is clickable and clicks it once. A node that is
// covered when the click lands yields driver.ErrElementNotInteractable.
func (h *Handle) Click(ctx context.Context) error {
	el, err := h.WaitClickable(ctx)
	if err != nil {
		return err
	}
	if err := el.Click(ctx); err != nil {
		return fmt.Errorf("click %s: %w", h.name, err)
	}
	return nil
}

// Type waits until the node is visible, clears it and types text.
func (h *Handle) Type(ctx context.Context, text string) error {
	el, err := h.WaitVisible(ctx)
	if err != nil {
		return err
	}
	if err := el.Clear(ctx); err != nil {
		return fmt.Errorf("clear %s: %w", h.name, err)
	}
	if err := el.SendKeys(ctx, text); err != nil {
		return fmt.Errorf("type into %s: %w", h.name, err)
	}
	return nil
}

// Text waits until the node is visible and returns its text, which may be empty.
func (h *Handle) Text(ctx context.Context) (string, error) {
	el, err := h.WaitVisible(ctx)
	if err != nil {
		return "", err
	}
	text, err := el.Text(ctx)
	if err != nil {
		return "", fmt.Errorf("read text of %s: %w", h.name, err)
	}
	return text, nil
}

// Attribute waits until the node is visible and returns the named attribute.
func (h *Handle) Attribute(ctx context.Context, name string) (string, error) {
	el, err := h.WaitVisible(ctx)
	if err != nil {
		return "", err
	}
	v, err := el.Attribute(ctx, name)
	if err != nil {
		return "", fmt.Errorf("read %s of %s: %w", name, h.name, err)
	}
	return v, nil
}

// IsDisplayed probes once, without waiting. Any failure reads as false.
func (h *Handle) IsDisplayed(ctx context.Context) bool {
	el := h.ref
	if el == nil {
		found, err := h.session.FindOne(driver.WithoutImplicitWait(ctx), h.loc)
		if err != nil {
			return false
		}
		el = found
	}
	shown, err := el.Displayed(ctx)
	return err == nil && shown
}
