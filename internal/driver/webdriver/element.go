package webdriver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/xkilldash9x/wikiprobe/internal/driver"
	"github.com/xkilldash9x/wikiprobe/internal/locator"
)

type element struct {
	s   *Session
	id  string
	loc locator.Locator
}

var (
	_ driver.Element        = (*element)(nil)
	_ driver.OptionSelector = (*element)(nil)
)

func (e *element) ref() map[string]string {
	return map[string]string{w3cElementKey: e.id, legacyElementKey: e.id}
}

func (e *element) cmd(ctx context.Context, method, suffix string, body, out any) error {
	if err := e.s.cmd(ctx, method, "/element/"+e.id+suffix, body, out); err != nil {
		return fmt.Errorf("%s: %w", e.loc, err)
	}
	return nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	var t string
	err := e.cmd(ctx, http.MethodGet, "/text", nil, &t)
	return strings.TrimSpace(t), err
}

// Attribute returns the live property on the web, falling back to the markup
// attribute, and the UiAutomator2 attribute on Android.
func (e *element) Attribute(ctx context.Context, name string) (string, error) {
	escaped := "/" + url.PathEscape(name)
	if e.s.opts.Platform == Web {
		var prop any
		if err := e.cmd(ctx, http.MethodGet, "/property"+escaped, nil, &prop); err != nil {
			return "", err
		}
		switch v := prop.(type) {
		case string:
			return v, nil
		case bool, float64:
			return fmt.Sprint(v), nil
		}
	}
	var v *string
	if err := e.cmd(ctx, http.MethodGet, "/attribute"+escaped, nil, &v); err != nil {
		return "", err
	}
	if v == nil {
		return "", nil
	}
	return *v, nil
}

func (e *element) Displayed(ctx context.Context) (bool, error) {
	var ok bool
	err := e.cmd(ctx, http.MethodGet, "/displayed", nil, &ok)
	return ok, err
}

func (e *element) Enabled(ctx context.Context) (bool, error) {
	var ok bool
	err := e.cmd(ctx, http.MethodGet, "/enabled", nil, &ok)
	return ok, err
}

func (e *element) Click(ctx context.Context) error {
	return e.cmd(ctx, http.MethodPost, "/click", map[string]any{}, nil)
}

// SelectOption clicks the child option carrying value; WebDriver servers
// handle option clicks without opening the dropdown.
func (e *element) SelectOption(ctx context.Context, value string) error {
	var ref elementRef
	body := map[string]string{"using": "css selector", "value": "option" + attrSelector("value", value)}
	if err := e.cmd(ctx, http.MethodPost, "/element", body, &ref); err != nil {
		return err
	}
	opt := &element{s: e.s, id: ref.id(), loc: e.loc}
	if opt.id == "" {
		return fmt.Errorf("%w: option %q of %s", driver.ErrNoSuchElement, value, e.loc)
	}
	return opt.Click(ctx)
}

func (e *element) Clear(ctx context.Context) error {
	return e.cmd(ctx, http.MethodPost, "/clear", map[string]any{}, nil)
}

const webEnterKey = "\ue007"

func isEnter(r rune) bool { return r == '\n' || r == '\ue007' }

// SendKeys types text. Newlines become the Enter key: the WebDriver key code
// on the web, KEYCODE_ENTER on Android.
func (e *element) SendKeys(ctx context.Context, text string) error {
	if e.s.opts.Platform == Web {
		text = strings.ReplaceAll(text, "\n", webEnterKey)
		return e.cmd(ctx, http.MethodPost, "/value", keysBody(text), nil)
	}
	var chunk strings.Builder
	flush := func() error {
		if chunk.Len() == 0 {
			return nil
		}
		defer chunk.Reset()
		return e.cmd(ctx, http.MethodPost, "/value", keysBody(chunk.String()), nil)
	}
	for _, r := range text {
		if !isEnter(r) {
			chunk.WriteRune(r)
			continue
		}
		if err := flush(); err != nil {
			return err
		}
		if err := e.s.pressEnter(ctx); err != nil {
			return fmt.Errorf("%s: %w", e.loc, err)
		}
	}
	return flush()
}

func keysBody(text string) map[string]any {
	chars := make([]string, 0, len(text))
	for _, r := range text {
		chars = append(chars, string(r))
	}
	return map[string]any{"text": text, "value": chars}
}
