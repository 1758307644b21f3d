package wait

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/wikiprobe/internal/driver"
	"github.com/xkilldash9x/wikiprobe/internal/locator"
	"github.com/xkilldash9x/wikiprobe/internal/mocks"
	"github.com/xkilldash9x/wikiprobe/internal/observability"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("k8s.io/klog/v2.(*flushDaemon).run.func1"),
	)
}

func newTestPoller(t *testing.T, timeout, interval time.Duration) *Poller {
	t.Helper()
	return NewPoller(Spec{Timeout: timeout, Interval: interval}, WithLogger(zaptest.NewLogger(t)))
}

func counting(results ...error) (Condition[int], *atomic.Int32) {
	var calls atomic.Int32
	return Condition[int]{
		Kind: "scripted",
		Check: func(ctx context.Context) (int, error) {
			n := int(calls.Add(1))
			if n <= len(results) {
				if err := results[n-1]; err != nil {
					return 0, err
				}
			}
			return n, nil
		},
	}, &calls
}

func TestAwait(t *testing.T) {
	t.Run("succeeds on the first poll without waiting", func(t *testing.T) {
		p := newTestPoller(t, time.Second, time.Hour)
		cond, calls := counting()

		start := time.Now()
		v, err := Await(context.Background(), p, cond)
		require.NoError(t, err)
		assert.Equal(t, 1, v)
		assert.Equal(t, int32(1), calls.Load())
		assert.Less(t, time.Since(start), 100*time.Millisecond)
	})

	t.Run("retries transient failures", func(t *testing.T) {
		p := newTestPoller(t, time.Second, 5*time.Millisecond)
		cond, calls := counting(ErrNotReady, driver.ErrNoSuchElement, driver.ErrStaleElement)

		v, err := Await(context.Background(), p, cond)
		require.NoError(t, err)
		assert.Equal(t, 4, v)
		assert.Equal(t, int32(4), calls.Load())
	})

	t.Run("stops on a terminal error", func(t *testing.T) {
		p := newTestPoller(t, time.Second, 5*time.Millisecond)
		boom := errors.New("session lost")
		cond, calls := counting(ErrNotReady, boom)

		_, err := Await(context.Background(), p, cond)
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.False(t, IsTimeout(err))
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("times out within one interval of the budget", func(t *testing.T) {
		const (
			timeout  = 200 * time.Millisecond
			interval = 20 * time.Millisecond
			slack    = 60 * time.Millisecond
		)
		p := newTestPoller(t, timeout, interval)
		cond := Condition[int]{
			Kind: "never",
			Check: func(context.Context) (int, error) {
				return 0, driver.ErrNoSuchElement
			},
		}

		start := time.Now()
		_, err := Await(context.Background(), p, cond)
		elapsed := time.Since(start)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTimeout)
		assert.ErrorIs(t, err, driver.ErrNoSuchElement, "unwraps to the last cause")
		assert.GreaterOrEqual(t, elapsed, timeout)
		assert.LessOrEqual(t, elapsed, timeout+interval+slack)

		var te *TimeoutError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, "never", te.Condition)
		assert.Greater(t, te.Polls, 1)
	})

	t.Run("zero timeout still checks once", func(t *testing.T) {
		p := newTestPoller(t, 0, 10*time.Millisecond)
		cond, calls := counting(ErrNotReady)

		_, err := Await(context.Background(), p, cond)
		assert.ErrorIs(t, err, ErrTimeout)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("caller cancellation is not a timeout", func(t *testing.T) {
		p := newTestPoller(t, 5*time.Second, 10*time.Millisecond)
		ctx, cancel := context.WithCancel(context.Background())
		cond := Condition[int]{
			Kind: "cancel",
			Check: func(context.Context) (int, error) {
				cancel()
				return 0, ErrNotReady
			},
		}

		_, err := Await(ctx, p, cond)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, IsTimeout(err))
	})

	t.Run("conditions see implicit waits disabled", func(t *testing.T) {
		p := newTestPoller(t, time.Second, 10*time.Millisecond)
		var disabled bool
		cond := Condition[bool]{
			Kind: "check",
			Check: func(ctx context.Context) (bool, error) {
				disabled = driver.ImplicitWaitDisabled(ctx)
				return true, nil
			},
		}
		require.NoError(t, Until(context.Background(), p, cond))
		assert.True(t, disabled)
	})

	t.Run("a panicking condition propagates", func(t *testing.T) {
		p := newTestPoller(t, time.Second, 10*time.Millisecond)
		cond := Condition[int]{
			Kind:  "panics",
			Check: func(context.Context) (int, error) { panic("bad check") },
		}
		assert.Panics(t, func() { _, _ = Await(context.Background(), p, cond) })
	})
}

func TestPollerInstrumentation(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	metrics := observability.NewMetrics()

	p := NewPoller(Spec{Timeout: 50 * time.Millisecond, Interval: 10 * time.Millisecond},
		WithLogger(zaptest.NewLogger(t)),
		WithMetrics(metrics),
		WithTracer(tp.Tracer("test")),
	)

	ok, _ := counting(ErrNotReady)
	_, err := Await(context.Background(), p, ok)
	require.NoError(t, err)

	never := Condition[int]{Kind: "never", Check: func(context.Context) (int, error) { return 0, ErrNotReady }}
	_, err = Await(context.Background(), p, never)
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "wait scripted", spans[0].Name())
	assert.Equal(t, "wait never", spans[1].Name())
	assert.Equal(t, "Error", spans[1].Status().Code.String())

	count, err := testutil.GatherAndCount(metrics.Registry(), "wikiprobe_wait_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPollerWith(t *testing.T) {
	p := NewPoller(Spec{Timeout: 15 * time.Second})
	assert.Equal(t, DefaultInterval, p.Spec().Interval, "unset interval falls back to the default")

	short := p.WithTimeout(time.Second)
	assert.Equal(t, time.Second, short.Spec().Timeout)
	assert.Equal(t, DefaultInterval, short.Spec().Interval)
	assert.Equal(t, 15*time.Second, p.Spec().Timeout, "original is untouched")
}

func TestPollerNilLogger(t *testing.T) {
	p := NewPoller(Spec{Timeout: 200 * time.Millisecond, Interval: 5 * time.Millisecond}, WithLogger(nil))
	calls := 0
	got, err := Await(context.Background(), p, Condition[int]{
		Kind:   "counter",
		Target: "calls",
		Check: func(context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, ErrNotReady
			}
			return calls, nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, got)
}

func TestElementConditions(t *testing.T) {
	ctx := context.Background()
	loc := locator.ByID("searchInput")

	t.Run("visible waits for display", func(t *testing.T) {
		p := newTestPoller(t, time.Second, 5*time.Millisecond)
		el := new(mocks.MockElement)
		el.On("Displayed", mock.Anything).Return(false, nil).Twice()
		el.On("Displayed", mock.Anything).Return(true, nil)

		s := mocks.NewMockSession()
		s.On("FindOne", mock.Anything, loc).Return(nil, driver.NoSuchElement(loc)).Once()
		s.On("FindOne", mock.Anything, loc).Return(el, nil)

		got, err := Await(ctx, p, ElementVisible(s, loc))
		require.NoError(t, err)
		assert.Same(t, el, got)
		el.AssertNumberOfCalls(t, "Displayed", 3)
	})

	t.Run("clickable requires enabled", func(t *testing.T) {
		p := newTestPoller(t, 60*time.Millisecond, 10*time.Millisecond)
		el := new(mocks.MockElement)
		el.On("Displayed", mock.Anything).Return(true, nil)
		el.On("Enabled", mock.Anything).Return(false, nil)

		s := mocks.NewMockSession()
		s.On("FindOne", mock.Anything, loc).Return(el, nil)

		_, err := Await(ctx, p, ElementClickable(s, loc))
		assert.ErrorIs(t, err, ErrTimeout)
		assert.ErrorIs(t, err, ErrNotReady)
	})

	t.Run("elements present accepts zero matches", func(t *testing.T) {
		p := newTestPoller(t, time.Second, time.Hour)
		s := mocks.NewMockSession()
		s.On("FindAll", mock.Anything, loc).Return([]driver.Element{}, nil).Once()

		els, err := Await(ctx, p, ElementsPresent(s, loc))
		require.NoError(t, err)
		assert.Empty(t, els)
		s.AssertExpectations(t)
	})

	t.Run("all visible needs at least one match", func(t *testing.T) {
		p := newTestPoller(t, 30*time.Millisecond, 10*time.Millisecond)
		s := mocks.NewMockSession()
		s.On("FindAll", mock.Anything, loc).Return([]driver.Element{}, nil)

		_, err := Await(ctx, p, AllVisible(s, loc))
		assert.ErrorIs(t, err, ErrTimeout)
		assert.ErrorIs(t, err, driver.ErrNoSuchElement)
	})

	t.Run("invisible treats absence and staleness as hidden", func(t *testing.T) {
		p := newTestPoller(t, time.Second, 5*time.Millisecond)

		absent := mocks.NewMockSession()
		absent.On("FindAll", mock.Anything, loc).Return([]driver.Element{}, nil)
		ok, err := Await(ctx, p, ElementInvisible(absent, loc))
		require.NoError(t, err)
		assert.True(t, ok)

		stale := new(mocks.MockElement)
		stale.On("Displayed", mock.Anything).Return(true, nil).Once()
		stale.On("Displayed", mock.Anything).Return(false, driver.ErrStaleElement)
		detaching := mocks.NewMockSession()
		detaching.On("FindAll", mock.Anything, loc).Return([]driver.Element{stale}, nil)
		ok, err = Await(ctx, p, ElementInvisible(detaching, loc))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("text present", func(t *testing.T) {
		p := newTestPoller(t, time.Second, 5*time.Millisecond)
		el := new(mocks.MockElement)
		el.On("Text", mock.Anything).Return("Loading", nil).Once()
		el.On("Text", mock.Anything).Return("Albert Einstein", nil)
		s := mocks.NewMockSession()
		s.On("FindOne", mock.Anything, loc).Return(el, nil)

		got, err := Await(ctx, p, TextPresent(s, loc, "Einstein"))
		require.NoError(t, err)
		assert.Equal(t, "Albert Einstein", got)
	})

	t.Run("url and title", func(t *testing.T) {
		p := newTestPoller(t, time.Second, 5*time.Millisecond)
		s := mocks.NewMockSession()
		s.On("CurrentURL", mock.Anything).Return("https://www.wikipedia.org/", nil).Once()
		s.On("CurrentURL", mock.Anything).Return("https://en.wikipedia.org/wiki/Special:Search?search=x", nil)
		s.On("Title", mock.Anything).Return("Wikipedia, the free encyclopedia", nil)

		u, err := Await(ctx, p, URLContains(s, "search"))
		require.NoError(t, err)
		assert.Contains(t, u, "Special:Search")

		require.NoError(t, Until(ctx, p, TitleContains(s, "Wikipedia")))
	})
}

func TestCountConditions(t *testing.T) {
	ctx := context.Background()
	loc := locator.ByCSS(".mw-search-result")
	els := func(n int) []driver.Element {
		out := make([]driver.Element, n)
		for i := range out {
			out[i] = new(mocks.MockElement)
		}
		return out
	}

	t.Run("equals and at least", func(t *testing.T) {
		p := newTestPoller(t, time.Second, 5*time.Millisecond)
		s := mocks.NewMockSession()
		s.On("FindAll", mock.Anything, loc).Return(els(1), nil).Once()
		s.On("FindAll", mock.Anything, loc).Return(els(3), nil)

		n, err := Await(ctx, p, CountAtLeast(s, loc, 2))
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		n, err = Await(ctx, p, CountEquals(s, loc, 3))
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("stable waits for repeated counts", func(t *testing.T) {
		p := newTestPoller(t, time.Second, 5*time.Millisecond)
		s := mocks.NewMockSession()
		s.On("FindAll", mock.Anything, loc).Return(els(1), nil).Once()
		s.On("FindAll", mock.Anything, loc).Return(els(4), nil).Once()
		s.On("FindAll", mock.Anything, loc).Return(els(5), nil)

		n, err := Await(ctx, p, CountStable(s, loc, 3))
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		s.AssertNumberOfCalls(t, "FindAll", 5)
	})

	t.Run("stable accepts zero", func(t *testing.T) {
		p := newTestPoller(t, time.Second, 5*time.Millisecond)
		s := mocks.NewMockSession()
		s.On("FindAll", mock.Anything, loc).Return(els(0), nil)

		n, err := Await(ctx, p, CountStable(s, loc, 2))
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestAny(t *testing.T) {
	ctx := context.Background()
	results := locator.ByID("org.wikipedia:id/search_results_list")
	empty := locator.ByID("org.wikipedia:id/search_empty_view")
	p := newTestPoller(t, time.Second, 5*time.Millisecond)

	el := mocks.VisibleElement()
	s := mocks.NewMockSession()
	s.On("FindOne", mock.Anything, results).Return(nil, driver.NoSuchElement(results))
	s.On("FindOne", mock.Anything, empty).Return(nil, driver.NoSuchElement(empty)).Once()
	s.On("FindOne", mock.Anything, empty).Return(el, nil)

	idx, err := Await(ctx, p, Any(Bool(ElementVisible(s, results)), Bool(ElementVisible(s, empty))))
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	t.Run("terminal errors short circuit", func(t *testing.T) {
		boom := errors.New("boom")
		failing := Condition[bool]{Kind: "fail", Check: func(context.Context) (bool, error) { return false, boom }}
		_, err := Await(ctx, p, Any(failing))
		assert.ErrorIs(t, err, boom)
	})
}
