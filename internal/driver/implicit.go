package driver

import (
	"context"
	"errors"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/xkilldash9x/wikiprobe/internal/locator"
)

// DefaultImplicitInterval is how often an implicit lookup re-queries the UI.
const DefaultImplicitInterval = 250 * time.Millisecond

type implicitKey struct{}

// WithoutImplicitWait marks ctx so that lookups performed with it query the UI
// exactly once. The wait engine uses it so its own deadline stays authoritative.
func WithoutImplicitWait(ctx context.Context) context.Context {
	return context.WithValue(ctx, implicitKey{}, true)
}

// ImplicitWaitDisabled reports whether ctx was produced by WithoutImplicitWait.
func ImplicitWaitDisabled(ctx context.Context) bool {
	v, _ := ctx.Value(implicitKey{}).(bool)
	return v
}

// Finder is a single, non-waiting lookup against a backend.
type Finder func(ctx context.Context) ([]Element, error)

// ImplicitLookup runs find and, while it returns nothing, retries every
// interval until budget is spent. Running out of budget yields an empty
// result, not an error.
func ImplicitLookup(ctx context.Context, budget, interval time.Duration, find Finder) ([]Element, error) {
	els, err := find(ctx)
	if err != nil || len(els) > 0 || budget <= 0 || ImplicitWaitDisabled(ctx) {
		return els, err
	}
	if interval <= 0 {
		interval = DefaultImplicitInterval
	}

	var found []Element
	pollErr := wait.PollUntilContextTimeout(ctx, interval, budget, false, func(pctx context.Context) (bool, error) {
		els, err := find(pctx)
		if err != nil {
			if pctx.Err() != nil || errors.Is(err, ErrStaleElement) {
				return false, nil
			}
			return false, err
		}
		if len(els) == 0 {
			return false, nil
		}
		found = els
		return true, nil
	})
	if pollErr != nil {
		if wait.Interrupted(pollErr) && ctx.Err() == nil {
			return nil, nil
		}
		return nil, pollErr
	}
	return found, nil
}

// First picks the first element of a lookup result, translating an empty
// result into ErrNoSuchElement for loc.
func First(els []Element, err error, loc locator.Locator) (Element, error) {
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, NoSuchElement(loc)
	}
	return els[0], nil
}
