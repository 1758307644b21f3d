// Package wait implements the condition poller that synchronizes screen
// objects with an asynchronously rendering UI.
//
// A Condition is evaluated immediately and then at a constant interval until
// it yields a value or the budget runs out. Lookup failures and ErrNotReady
// are treated as "not yet"; every other error ends the wait at once.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	kwait "k8s.io/apimachinery/pkg/util/wait"

	"github.com/xkilldash9x/wikiprobe/internal/driver"
	"github.com/xkilldash9x/wikiprobe/internal/observability"
)

// DefaultInterval is used when a Spec leaves Interval unset.
const DefaultInterval = 500 * time.Millisecond

// Spec bounds a single wait.
type Spec struct {
	Timeout  time.Duration
	Interval time.Duration
}

func (s Spec) normalized() Spec {
	if s.Interval <= 0 {
		s.Interval = DefaultInterval
	}
	if s.Timeout < 0 {
		s.Timeout = 0
	}
	return s
}

// Poller carries the default Spec and the instrumentation shared by every
// wait issued from one screen or session. It is immutable; With returns a copy.
type Poller struct {
	spec    Spec
	logger  *zap.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// Option configures a Poller.
type Option func(*Poller)

// WithLogger sets the logger used for wait diagnostics. A nil logger
// discards them.
func WithLogger(l *zap.Logger) Option {
	return func(p *Poller) {
		if l == nil {
			l = zap.NewNop()
		}
		p.logger = l.Named("wait")
	}
}

// WithMetrics records wait durations and outcomes in m.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Poller) { p.metrics = m }
}

// WithTracer overrides the global wikiprobe tracer.
func WithTracer(t trace.Tracer) Option {
	return func(p *Poller) { p.tracer = t }
}

// NewPoller builds a Poller with spec as its default budget.
func NewPoller(spec Spec, opts ...Option) *Poller {
	p := &Poller{
		spec:   spec.normalized(),
		logger: zap.NewNop(),
		tracer: observability.Tracer(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Spec returns the default budget.
func (p *Poller) Spec() Spec { return p.spec }

// With returns a copy of p using spec instead of the default budget.
func (p *Poller) With(spec Spec) *Poller {
	cp := *p
	cp.spec = spec.normalized()
	return &cp
}

// WithTimeout returns a copy of p with a different timeout and the same interval.
func (p *Poller) WithTimeout(d time.Duration) *Poller {
	return p.With(Spec{Timeout: d, Interval: p.spec.Interval})
}

// Logger returns the poller's logger so callers can share it.
func (p *Poller) Logger() *zap.Logger { return p.logger }

// Await blocks until c succeeds and returns its value. It fails with a
// *TimeoutError once the poller's timeout elapses, with the context error if
// ctx ends first, or with the first non-transient error c reports.
func Await[T any](ctx context.Context, p *Poller, c Condition[T]) (T, error) {
	var (
		result T
		last   error
		polls  int
		spec   = p.spec
		start  = time.Now()
	)

	ctx, span := p.tracer.Start(ctx, "wait "+c.Kind, trace.WithAttributes(
		attribute.String("wait.condition", c.String()),
		attribute.Int64("wait.timeout_ms", spec.Timeout.Milliseconds()),
	))
	defer span.End()

	err := kwait.PollUntilContextTimeout(ctx, spec.Interval, spec.Timeout, true, func(pctx context.Context) (bool, error) {
		polls++
		v, err := c.Check(driver.WithoutImplicitWait(pctx))
		if err == nil {
			result = v
			return true, nil
		}
		if isTransient(err) || pctx.Err() != nil {
			last = err
			return false, nil
		}
		return false, err
	})
	elapsed := time.Since(start)
	span.SetAttributes(attribute.Int("wait.polls", polls))

	var outcome string
	switch {
	case err == nil:
		outcome = observability.OutcomeSatisfied
		p.logger.Debug("Condition satisfied.",
			zap.Stringer("condition", c), zap.Duration("elapsed", elapsed), zap.Int("polls", polls))
	case ctx.Err() != nil:
		outcome = observability.OutcomeCanceled
		err = fmt.Errorf("wait for %s canceled: %w", c, ctx.Err())
	case kwait.Interrupted(err):
		outcome = observability.OutcomeTimeout
		err = &TimeoutError{Condition: c.String(), Timeout: spec.Timeout, Polls: polls, Last: last}
		p.logger.Debug("Condition timed out.",
			zap.Stringer("condition", c), zap.Duration("timeout", spec.Timeout), zap.Int("polls", polls), zap.Error(last))
	default:
		outcome = observability.OutcomeError
		err = fmt.Errorf("wait for %s: %w", c, err)
	}
	p.metrics.ObserveWait(c.Kind, outcome, polls, elapsed)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		var zero T
		return zero, err
	}
	return result, nil
}

// Until is Await for conditions whose value is irrelevant.
func Until[T any](ctx context.Context, p *Poller, c Condition[T]) error {
	_, err := Await(ctx, p, c)
	return err
}

func isTransient(err error) bool {
	return errors.Is(err, ErrNotReady) || driver.IsTransientLookup(err)
}
