package wait

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/wikiprobe/internal/driver"
	"github.com/xkilldash9x/wikiprobe/internal/locator"
)

// Condition is a named predicate over the live UI. Check returns ErrNotReady
// (or a transient lookup error) to be polled again.
type Condition[T any] struct {
	// Kind is a stable label used for metrics and span names.
	Kind string
	// Target describes what is being waited on, for messages.
	Target string
	Check  func(ctx context.Context) (T, error)
}

func (c Condition[T]) String() string {
	if c.Target == "" {
		return c.Kind
	}
	return c.Kind + "(" + c.Target + ")"
}

// ElementPresent holds once loc matches at least one node.
func ElementPresent(s driver.Session, loc locator.Locator) Condition[driver.Element] {
	return Condition[driver.Element]{
		Kind:   "element_present",
		Target: loc.String(),
		Check: func(ctx context.Context) (driver.Element, error) {
			return s.FindOne(ctx, loc)
		},
	}
}

// ElementVisible holds once the first match of loc is displayed.
func ElementVisible(s driver.Session, loc locator.Locator) Condition[driver.Element] {
	return Condition[driver.Element]{
		Kind:   "element_visible",
		Target: loc.String(),
		Check: func(ctx context.Context) (driver.Element, error) {
			el, err := s.FindOne(ctx, loc)
			if err != nil {
				return nil, err
			}
			return el, visible(ctx, el, loc.String())
		},
	}
}

// ElementClickable holds once the first match of loc is displayed and enabled.
// Whether something covers it is only known when the click lands.
func ElementClickable(s driver.Session, loc locator.Locator) Condition[driver.Element] {
	return Condition[driver.Element]{
		Kind:   "element_clickable",
		Target: loc.String(),
		Check: func(ctx context.Context) (driver.Element, error) {
			el, err := s.FindOne(ctx, loc)
			if err != nil {
				return nil, err
			}
			return el, clickable(ctx, el, loc.String())
		},
	}
}

// RefVisible holds once an already located element is displayed.
func RefVisible(el driver.Element, name string) Condition[driver.Element] {
	return Condition[driver.Element]{
		Kind:   "element_visible",
		Target: name,
		Check: func(ctx context.Context) (driver.Element, error) {
			return el, visible(ctx, el, name)
		},
	}
}

// RefClickable holds once an already located element is displayed and enabled.
func RefClickable(el driver.Element, name string) Condition[driver.Element] {
	return Condition[driver.Element]{
		Kind:   "element_clickable",
		Target: name,
		Check: func(ctx context.Context) (driver.Element, error) {
			return el, clickable(ctx, el, name)
		},
	}
}

// ElementsPresent snapshots the matches of loc. It succeeds on the first poll,
// including with zero matches.
func ElementsPresent(s driver.Session, loc locator.Locator) Condition[[]driver.Element] {
	return Condition[[]driver.Element]{
		Kind:   "elements_present",
		Target: loc.String(),
		Check: func(ctx context.Context) ([]driver.Element, error) {
			return s.FindAll(ctx, loc)
		},
	}
}

// AllVisible holds once loc has matches and every one of them is displayed.
func AllVisible(s driver.Session, loc locator.Locator) Condition[[]driver.Element] {
	return Condition[[]driver.Element]{
		Kind:   "all_visible",
		Target: loc.String(),
		Check: func(ctx context.Context) ([]driver.Element, error) {
			els, err := s.FindAll(ctx, loc)
			if err != nil {
				return nil, err
			}
			if len(els) == 0 {
				return nil, driver.NoSuchElement(loc)
			}
			for i, el := range els {
				if err := visible(ctx, el, fmt.Sprintf("%s[%d]", loc, i)); err != nil {
					return nil, err
				}
			}
			return els, nil
		},
	}
}

// TextPresent holds once the text of the first match of loc contains text.
func TextPresent(s driver.Session, loc locator.Locator, text string) Condition[string] {
	return Condition[string]{
		Kind:   "text_present",
		Target: fmt.Sprintf("%s ~ %q", loc, text),
		Check: func(ctx context.Context) (string, error) {
			el, err := s.FindOne(ctx, loc)
			if err != nil {
				return "", err
			}
			got, err := el.Text(ctx)
			if err != nil {
				return "", err
			}
			if !strings.Contains(got, text) {
				return "", notReady("text %q does not contain %q", got, text)
			}
			return got, nil
		},
	}
}

// URLContains holds once the current URL contains fragment.
func URLContains(s driver.Session, fragment string) Condition[string] {
	return Condition[string]{
		Kind:   "url_contains",
		Target: fragment,
		Check: func(ctx context.Context) (string, error) {
			u, err := s.CurrentURL(ctx)
			if err != nil {
				return "", err
			}
			if !strings.Contains(u, fragment) {
				return "", notReady("url %q", u)
			}
			return u, nil
		},
	}
}

// TitleContains holds once the document title contains fragment.
func TitleContains(s driver.Session, fragment string) Condition[string] {
	return Condition[string]{
		Kind:   "title_contains",
		Target: fragment,
		Check: func(ctx context.Context) (string, error) {
			t, err := s.Title(ctx)
			if err != nil {
				return "", err
			}
			if !strings.Contains(t, fragment) {
				return "", notReady("title %q", t)
			}
			return t, nil
		},
	}
}

// ElementInvisible holds once loc matches nothing, or its first match is
// hidden or detached.
func ElementInvisible(s driver.Session, loc locator.Locator) Condition[bool] {
	return Condition[bool]{
		Kind:   "element_invisible",
		Target: loc.String(),
		Check: func(ctx context.Context) (bool, error) {
			els, err := s.FindAll(ctx, loc)
			if err != nil {
				if driver.IsTransientLookup(err) {
					return true, nil
				}
				return false, err
			}
			if len(els) == 0 {
				return true, nil
			}
			shown, err := els[0].Displayed(ctx)
			switch {
			case errors.Is(err, driver.ErrStaleElement):
				return true, nil
			case err != nil:
				return false, err
			case shown:
				return false, notReady("%s still displayed", loc)
			}
			return true, nil
		},
	}
}

// CountEquals holds once loc has exactly n matches.
func CountEquals(s driver.Session, loc locator.Locator, n int) Condition[int] {
	return countCondition(s, loc, "count_equals", fmt.Sprintf("%s == %d", loc, n), func(c int) bool { return c == n })
}

// CountAtLeast holds once loc has n or more matches.
func CountAtLeast(s driver.Session, loc locator.Locator, n int) Condition[int] {
	return countCondition(s, loc, "count_at_least", fmt.Sprintf("%s >= %d", loc, n), func(c int) bool { return c >= n })
}

func countCondition(s driver.Session, loc locator.Locator, kind, target string, ok func(int) bool) Condition[int] {
	return Condition[int]{
		Kind:   kind,
		Target: target,
		Check: func(ctx context.Context) (int, error) {
			els, err := s.FindAll(ctx, loc)
			if err != nil {
				return 0, err
			}
			if !ok(len(els)) {
				return 0, notReady("%d matches", len(els))
			}
			return len(els), nil
		},
	}
}

// CountStable holds once loc reports the same number of matches on samples
// consecutive polls. Zero is a valid stable count. The returned condition
// keeps state and must not be reused across waits.
func CountStable(s driver.Session, loc locator.Locator, samples int) Condition[int] {
	if samples < 2 {
		samples = 2
	}
	prev, streak := -1, 0
	return Condition[int]{
		Kind:   "count_stable",
		Target: fmt.Sprintf("%s x%d", loc, samples),
		Check: func(ctx context.Context) (int, error) {
			els, err := s.FindAll(ctx, loc)
			if err != nil {
				if driver.IsTransientLookup(err) {
					prev, streak = -1, 0
				}
				return 0, err
			}
			n := len(els)
			if n == prev {
				streak++
			} else {
				prev, streak = n, 1
			}
			if streak < samples {
				return 0, notReady("count %d seen %d/%d", n, streak, samples)
			}
			return n, nil
		},
	}
}

// Any holds as soon as one of conds holds and returns its index. Conditions
// are evaluated in order on every poll.
func Any(conds ...Condition[bool]) Condition[int] {
	names := make([]string, len(conds))
	for i, c := range conds {
		names[i] = c.String()
	}
	return Condition[int]{
		Kind:   "any",
		Target: strings.Join(names, " | "),
		Check: func(ctx context.Context) (int, error) {
			var last error
			for i, c := range conds {
				ok, err := c.Check(ctx)
				if err == nil && ok {
					return i, nil
				}
				if err != nil && !isTransient(err) {
					return -1, err
				}
				last = err
			}
			if last == nil {
				last = ErrNotReady
			}
			return -1, last
		},
	}
}

// Bool adapts any condition to Condition[bool] for use with Any.
func Bool[T any](c Condition[T]) Condition[bool] {
	return Condition[bool]{
		Kind:   c.Kind,
		Target: c.Target,
		Check: func(ctx context.Context) (bool, error) {
			if _, err := c.Check(ctx); err != nil {
				return false, err
			}
			return true, nil
		},
	}
}

func visible(ctx context.Context, el driver.Element, name string) error {
	shown, err := el.Displayed(ctx)
	if err != nil {
		return err
	}
	if !shown {
		return notReady("%s not displayed", name)
	}
	return nil
}

func clickable(ctx context.Context, el driver.Element, name string) error {
	if err := visible(ctx, el, name); err != nil {
		return err
	}
	enabled, err := el.Enabled(ctx)
	if err != nil {
		return err
	}
	if !enabled {
		return notReady("%s not enabled", name)
	}
	return nil
}
