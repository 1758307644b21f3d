package scenario

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wikiprobe/internal/config"
	"github.com/xkilldash9x/wikiprobe/internal/launcher"
	"github.com/xkilldash9x/wikiprobe/internal/observability"
	"github.com/xkilldash9x/wikiprobe/internal/pages/mobile"
	"github.com/xkilldash9x/wikiprobe/internal/pages/web"
	"github.com/xkilldash9x/wikiprobe/internal/wait"
)

// ErrNothingSelected is returned when the name filter keeps no case in any of
// the requested suites.
var ErrNothingSelected = errors.New("no scenarios match the selection")

// caseTimeout bounds a single case, set-up included.
const caseTimeout = 5 * time.Minute

// Result is the outcome of one case.
type Result struct {
	Suite    string
	Name     string
	Err      error
	Duration time.Duration
	// Artifacts lists the files captured after a failure.
	Artifacts []string
}

func (r Result) Passed() bool { return r.Err == nil }

// Report collects the results of one suite run.
type Report struct {
	Suite   string
	Backend string
	Results []Result
}

// Failed returns the failed results in run order.
func (r *Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Passed() {
			out = append(out, res)
		}
	}
	return out
}

// OK reports whether every case passed.
func (r *Report) OK() bool { return len(r.Failed()) == 0 }

// Runner executes suites on sessions from a launcher.Manager. Cases of a
// suite run one after another on a single session.
type Runner struct {
	mgr     *launcher.Manager
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
	queries Queries
	only    []string
}

// Option configures a Runner.
type Option func(*Runner)

// WithMetrics records wait and scenario metrics on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithTracer overrides the global wikiprobe tracer.
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) { r.tracer = t }
}

// WithQueries sets the data-driven queries.
func WithQueries(q Queries) Option {
	return func(r *Runner) { r.queries = q }
}

// WithOnly restricts runs to the named cases. See Suite.Filter.
func WithOnly(names ...string) Option {
	return func(r *Runner) { r.only = names }
}

// NewRunner returns a Runner launching sessions from mgr.
func NewRunner(mgr *launcher.Manager, logger *zap.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		mgr:     mgr,
		cfg:     mgr.Config(),
		logger:  logger.Named("scenario"),
		tracer:  observability.Tracer(),
		queries: DefaultQueries(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Suites returns the web and mobile suites with the runner's queries.
func (r *Runner) Suites() []Suite {
	return []Suite{WebSuite(r.queries), MobileSuite(r.queries)}
}

// CheckSelection fails with ErrNothingSelected when the name filter leaves
// nothing to run across the suites of the given kinds. A filter that empties
// only some of them is fine; those suites are skipped.
func (r *Runner) CheckSelection(kinds ...launcher.Kind) error {
	for _, s := range r.Suites() {
		if slices.Contains(kinds, s.Kind) && len(s.Filter(r.only).Cases) > 0 {
			return nil
		}
	}
	return fmt.Errorf("%w: %v", ErrNothingSelected, r.only)
}

// RunWeb runs the web suite.
func (r *Runner) RunWeb(ctx context.Context) (*Report, error) {
	return r.Run(ctx, WebSuite(r.queries))
}

// RunMobile runs the mobile suite.
func (r *Runner) RunMobile(ctx context.Context) (*Report, error) {
	return r.Run(ctx, MobileSuite(r.queries))
}

// Run executes suite. The error is reserved for failures that stop the whole
// suite, such as a session that cannot be started; case failures are in the
// report.
func (r *Runner) Run(ctx context.Context, suite Suite) (*Report, error) {
	suite = suite.Filter(r.only)
	report := &Report{Suite: suite.Name}
	if len(suite.Cases) == 0 {
		r.logger.Warn("No scenarios selected.", zap.String("suite", suite.Name), zap.Strings("only", r.only))
		return report, nil
	}

	var (
		sess *launcher.Session
		err  error
	)
	switch suite.Kind {
	case launcher.KindWeb:
		sess, err = r.mgr.NewWebSession(ctx)
	case launcher.KindMobile:
		sess, err = r.mgr.NewMobileSession(ctx)
	default:
		err = fmt.Errorf("unknown suite kind %q", suite.Kind)
	}
	if err != nil {
		return report, fmt.Errorf("suite %s: %w", suite.Name, err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := sess.Close(closeCtx); err != nil {
			r.logger.Warn("Failed to close session.", zap.String("session_id", sess.ID()), zap.Error(err))
		}
	}()
	report.Backend = sess.Backend()

	t := r.newT(suite, sess)
	logger := r.logger.With(zap.String("suite", suite.Name), zap.String("backend", sess.Backend()))
	logger.Info("Running suite.", zap.Int("scenarios", len(suite.Cases)))

	for _, c := range suite.Cases {
		if err := ctx.Err(); err != nil {
			report.Results = append(report.Results, Result{Suite: suite.Name, Name: c.Name, Err: fmt.Errorf("not run: %w", err)})
			continue
		}
		res := r.runCase(ctx, suite, c, t)
		report.Results = append(report.Results, res)
		if res.Passed() {
			logger.Info("Scenario passed.", zap.String("scenario", c.Name), zap.Duration("duration", res.Duration))
		} else {
			logger.Error("Scenario failed.",
				zap.String("scenario", c.Name),
				zap.Duration("duration", res.Duration),
				zap.Strings("artifacts", res.Artifacts),
				zap.Error(res.Err),
			)
		}
	}

	logger.Info("Suite finished.",
		zap.Int("passed", len(report.Results)-len(report.Failed())),
		zap.Int("failed", len(report.Failed())),
	)
	return report, nil
}

func (r *Runner) newT(suite Suite, sess *launcher.Session) *T {
	drv := sess.Driver()
	spec := wait.Spec{Timeout: r.cfg.Web.ExplicitWait, Interval: r.cfg.Web.PollInterval}
	if suite.Kind == launcher.KindMobile {
		spec = wait.Spec{Timeout: r.cfg.Mobile.ExplicitWait, Interval: r.cfg.Mobile.PollInterval}
	}
	opts := []wait.Option{wait.WithLogger(r.logger), wait.WithTracer(r.tracer)}
	if r.metrics != nil {
		opts = append(opts, wait.WithMetrics(r.metrics))
	}
	poller := wait.NewPoller(spec, opts...)

	return &T{
		Session: drv,
		Web: web.Env{
			Session:    drv,
			Poller:     poller,
			Logger:     r.logger,
			PortalURL:  r.cfg.Web.BaseURL,
			EnglishURL: r.cfg.Web.EnglishURL,
		},
		Mobile: mobile.Env{
			Session:    drv,
			Poller:     poller,
			Logger:     r.logger,
			AppPackage: r.cfg.Mobile.AppPackage,
		},
		Queries: r.queries,
		Logger:  r.logger,
		mgr:     r.mgr,
		sess:    sess,
	}
}

func (r *Runner) runCase(ctx context.Context, suite Suite, c Case, t *T) Result {
	ctx, span := r.tracer.Start(ctx, "scenario "+suite.Name+"/"+c.Name,
		trace.WithAttributes(
			attribute.String("wikiprobe.suite", suite.Name),
			attribute.String("wikiprobe.scenario", c.Name),
		))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, caseTimeout)
	defer cancel()

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("panic: %v\n%s", p, debug.Stack())
			}
		}()
		if suite.setUp != nil {
			if err := suite.setUp(ctx, t); err != nil {
				return fmt.Errorf("set up: %w", err)
			}
		}
		return c.Run(ctx, t)
	}()
	res := Result{Suite: suite.Name, Name: c.Name, Err: err, Duration: time.Since(start)}
	r.metrics.ObserveScenario(suite.Name, c.Name, err == nil, res.Duration)

	if err == nil {
		span.SetStatus(codes.Ok, "")
		return res
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, failureKind(err))

	artifacts, captureErr := r.captureArtifacts(ctx, suite, c.Name, t.Session)
	if captureErr != nil {
		r.logger.Warn("Failed to capture artifacts.", zap.String("scenario", c.Name), zap.Error(captureErr))
	}
	res.Artifacts = artifacts
	return res
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, ErrExpectation):
		return "expectation"
	case wait.IsTimeout(err):
		return "timeout"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "interrupted"
	}
	return "error"
}
