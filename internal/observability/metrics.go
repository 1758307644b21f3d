package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects wait and scenario measurements for a single run. The
// registry is private to the run and flushed to a node-exporter style
// textfile at the end, since the CLI is short lived and never scraped.
type Metrics struct {
	registry         *prometheus.Registry
	waitDuration     *prometheus.HistogramVec
	waitPolls        *prometheus.CounterVec
	scenarioTotal    *prometheus.CounterVec
	scenarioDuration *prometheus.HistogramVec
}

// Wait outcomes recorded by ObserveWait.
const (
	OutcomeSatisfied = "satisfied"
	OutcomeTimeout   = "timeout"
	OutcomeError     = "error"
	OutcomeCanceled  = "canceled"
)

// NewMetrics registers the wikiprobe collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		waitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wikiprobe",
			Subsystem: "wait",
			Name:      "duration_seconds",
			Help:      "Time spent polling a UI condition.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}, []string{"condition", "outcome"}),
		waitPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wikiprobe",
			Subsystem: "wait",
			Name:      "polls_total",
			Help:      "Number of condition evaluations.",
		}, []string{"condition"}),
		scenarioTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wikiprobe",
			Subsystem: "scenario",
			Name:      "runs_total",
			Help:      "Scenario executions by suite and result.",
		}, []string{"suite", "result"}),
		scenarioDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wikiprobe",
			Subsystem: "scenario",
			Name:      "duration_seconds",
			Help:      "Scenario wall time.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"suite", "scenario"}),
	}
	m.registry.MustRegister(m.waitDuration, m.waitPolls, m.scenarioTotal, m.scenarioDuration)
	return m
}

// ObserveWait records one completed wait. It is safe on a nil receiver.
func (m *Metrics) ObserveWait(condition, outcome string, polls int, d time.Duration) {
	if m == nil {
		return
	}
	m.waitDuration.WithLabelValues(condition, outcome).Observe(d.Seconds())
	m.waitPolls.WithLabelValues(condition).Add(float64(polls))
}

// ObserveScenario records one scenario result. It is safe on a nil receiver.
func (m *Metrics) ObserveScenario(suite, scenario string, passed bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "passed"
	if !passed {
		result = "failed"
	}
	m.scenarioTotal.WithLabelValues(suite, result).Inc()
	m.scenarioDuration.WithLabelValues(suite, scenario).Observe(d.Seconds())
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile atomically writes the current values in the Prometheus text format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile %s: %w", path, err)
	}
	return nil
}
