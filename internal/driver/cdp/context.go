package cdp

import (
	"context"
	"time"
)

// combineContext returns a context carrying the values of tab (the chromedp
// target) that is canceled when either tab or op is done.
func combineContext(tab, op context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(tab)
	go func() {
		select {
		case <-op.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}

type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }

func (valueOnlyContext) Done() <-chan struct{} { return nil }

func (valueOnlyContext) Err() error { return nil }

// detach keeps the values of ctx but drops its deadline and cancellation, so
// the browser outlives the context it was started with.
func detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
