package pwdriver

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/xkilldash9x/wikiprobe/internal/driver"
	"github.com/xkilldash9x/wikiprobe/internal/locator"
)

type element struct {
	s   *Session
	h   playwright.ElementHandle
	loc locator.Locator
}

var (
	_ driver.Element        = (*element)(nil)
	_ driver.OptionSelector = (*element)(nil)
)

func (e *element) wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", e.loc, err)
}

func (e *element) Text(ctx context.Context) (string, error) {
	var t string
	err := e.s.call(ctx, func() error {
		var err error
		t, err = e.h.InnerText()
		return err
	})
	return strings.TrimSpace(t), e.wrap(err)
}

const attributeScript = `(el, name) => {
	let v = el[name];
	if (v === undefined || v === null || typeof v === "object" || typeof v === "function") {
		v = el.getAttribute(name);
	}
	return v === undefined || v === null ? "" : String(v);
}`

// Attribute prefers the live property over the markup attribute.
func (e *element) Attribute(ctx context.Context, name string) (string, error) {
	var v string
	err := e.s.call(ctx, func() error {
		res, err := e.h.Evaluate(attributeScript, name)
		if err != nil {
			return err
		}
		v, _ = res.(string)
		return nil
	})
	return v, e.wrap(err)
}

func (e *element) Displayed(ctx context.Context) (bool, error) {
	var ok bool
	err := e.s.call(ctx, func() error {
		var err error
		ok, err = e.h.IsVisible()
		return err
	})
	return ok, e.wrap(err)
}

func (e *element) Enabled(ctx context.Context) (bool, error) {
	var ok bool
	err := e.s.call(ctx, func() error {
		var err error
		ok, err = e.h.IsEnabled()
		return err
	})
	return ok, e.wrap(err)
}

func (e *element) Click(ctx context.Context) error {
	err := e.s.call(ctx, func() error {
		return e.h.Click(playwright.ElementHandleClickOptions{
			Timeout: playwright.Float(float64(clickTimeout.Milliseconds())),
		})
	})
	return e.wrap(err)
}

func (e *element) SelectOption(ctx context.Context, value string) error {
	var selected []string
	err := e.s.call(ctx, func() error {
		var err error
		selected, err = e.h.SelectOption(playwright.SelectOptionValues{Values: &[]string{value}},
			playwright.ElementHandleSelectOptionOptions{
				Timeout: playwright.Float(float64(clickTimeout.Milliseconds())),
			})
		return err
	})
	if err != nil {
		return e.wrap(err)
	}
	if !slices.Contains(selected, value) {
		return fmt.Errorf("%w: option %q of %s", driver.ErrNoSuchElement, value, e.loc)
	}
	return nil
}

func (e *element) Clear(ctx context.Context) error {
	err := e.s.call(ctx, func() error { return e.h.Fill("") })
	return e.wrap(err)
}

// SendKeys types text into the focused node. Newlines and the WebDriver
// Enter code point are sent as Enter presses.
func (e *element) SendKeys(ctx context.Context, text string) error {
	err := e.s.call(ctx, func() error {
		if err := e.h.Focus(); err != nil {
			return err
		}
		kb := e.s.page.Keyboard()
		var chunk strings.Builder
		flush := func() error {
			if chunk.Len() == 0 {
				return nil
			}
			defer chunk.Reset()
			return kb.Type(chunk.String())
		}
		for _, r := range text {
			if r != '\n' && r != '\ue007' {
				chunk.WriteRune(r)
				continue
			}
			if err := flush(); err != nil {
				return err
			}
			if err := kb.Press("Enter"); err != nil {
				return err
			}
		}
		return flush()
	})
	return e.wrap(err)
}
