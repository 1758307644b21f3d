package cdp

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/wikiprobe/internal/driver"
	"github.com/xkilldash9x/wikiprobe/internal/locator"
)

type element struct {
	s   *Session
	key string
	loc locator.Locator
}

var (
	_ driver.Element        = (*element)(nil)
	_ driver.OptionSelector = (*element)(nil)
)

type callResult struct {
	Stale bool                `json:"stale"`
	Value jsoniter.RawMessage `json:"value"`
}

// call runs body against the registered node and decodes its return value.
func (e *element) call(ctx context.Context, body string, out any, args ...any) error {
	if args == nil {
		args = []any{}
	}
	expr := fmt.Sprintf("(%s)(%s, (%s), %s)", elementScript, jsArg(e.key), body, jsArg(args))
	var res callResult
	if err := e.s.eval(ctx, expr, &res); err != nil {
		return fmt.Errorf("%s: %w", e.loc, err)
	}
	if res.Stale {
		return fmt.Errorf("%w: %s", driver.ErrStaleElement, e.loc)
	}
	if out == nil || len(res.Value) == 0 {
		return nil
	}
	return json.Unmarshal(res.Value, out)
}

func (e *element) Text(ctx context.Context) (string, error) {
	var t string
	err := e.call(ctx, textBody, &t)
	return t, err
}

func (e *element) Attribute(ctx context.Context, name string) (string, error) {
	var v string
	err := e.call(ctx, attributeBody, &v, name)
	return v, err
}

func (e *element) Displayed(ctx context.Context) (bool, error) {
	var ok bool
	err := e.call(ctx, displayedBody, &ok)
	return ok, err
}

func (e *element) Enabled(ctx context.Context) (bool, error) {
	var ok bool
	err := e.call(ctx, enabledBody, &ok)
	return ok, err
}

type clickTarget struct {
	State string  `json:"state"`
	By    string  `json:"by"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// Click dispatches a real mouse click at the centre of the node, after
// checking that the node is what the pointer would hit.
func (e *element) Click(ctx context.Context) error {
	var t clickTarget
	if err := e.call(ctx, clickTargetBody, &t); err != nil {
		return err
	}
	switch t.State {
	case "ok":
	case "covered":
		return fmt.Errorf("%w: %s is covered by %s", driver.ErrElementNotInteractable, e.loc, t.By)
	default:
		return fmt.Errorf("%w: %s is %s", driver.ErrElementNotInteractable, e.loc, t.State)
	}
	if err := e.s.run(ctx, chromedp.MouseClickXY(t.X, t.Y)); err != nil {
		return fmt.Errorf("click %s: %w", e.loc, err)
	}
	return nil
}

// SelectOption sets the value of a <select> and fires the events a user
// choice would. Options of a closed dropdown have no box to click.
func (e *element) SelectOption(ctx context.Context, value string) error {
	var state string
	if err := e.call(ctx, selectOptionBody, &state, value); err != nil {
		return err
	}
	switch state {
	case "ok":
		return nil
	case "no option":
		return fmt.Errorf("%w: option %q of %s", driver.ErrNoSuchElement, value, e.loc)
	default:
		return fmt.Errorf("%w: %s is %s", driver.ErrElementNotInteractable, e.loc, state)
	}
}

func (e *element) Clear(ctx context.Context) error {
	var ok bool
	if err := e.call(ctx, clearBody, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s is not editable", driver.ErrElementNotInteractable, e.loc)
	}
	return nil
}

// keyReplacer turns newlines and the WebDriver Enter code point into the
// key chromedp sends as Enter.
var keyReplacer = strings.NewReplacer("\n", kb.Enter, "\ue007", kb.Enter)

func (e *element) SendKeys(ctx context.Context, text string) error {
	var focused bool
	if err := e.call(ctx, focusBody, &focused); err != nil {
		return err
	}
	if !focused {
		return fmt.Errorf("%w: %s cannot take focus", driver.ErrElementNotInteractable, e.loc)
	}
	if err := e.s.run(ctx, chromedp.KeyEvent(keyReplacer.Replace(text))); err != nil {
		return fmt.Errorf("type into %s: %w", e.loc, err)
	}
	return nil
}
