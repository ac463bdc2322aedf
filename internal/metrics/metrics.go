// Package metrics exposes Prometheus collectors for the segmentation pipeline
// and the lookup API.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "card_segments"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics groups every collector on a private registry so tests can build
// independent instances.
type Metrics struct {
	registry *prometheus.Registry

	PipelineRuns   *prometheus.CounterVec
	StepDuration   *prometheus.HistogramVec
	RejectedRows   prometheus.Counter
	SkippedRows    prometheus.Counter
	CanonicalRows  prometheus.Gauge
	LastSuccess    prometheus.Gauge
	ModelInertia   prometheus.Gauge
	LookupRequests *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
}

// New creates and registers all collectors, including the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Segmentation pipeline runs by outcome.",
		}, []string{"outcome"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_step_duration_seconds",
			Help:      "Duration of each pipeline step.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"step", "outcome"}),
		RejectedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregator_rejected_rows_total",
			Help:      "Transactions rejected for a missing account id.",
		}),
		SkippedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_skipped_rows_total",
			Help:      "Transactions dropped at the source for a null amount.",
		}),
		CanonicalRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "canonical_rows",
			Help:      "Accounts in the currently served canonical table.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful rebuild.",
		}),
		ModelInertia: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_inertia",
			Help:      "Within-cluster sum of squares of the last fitted model.",
		}),
		LookupRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_requests_total",
			Help:      "Lookup operations by operation and result.",
		}, []string{"op", "result"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "code"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.PipelineRuns,
		m.StepDuration,
		m.RejectedRows,
		m.SkippedRows,
		m.CanonicalRows,
		m.LastSuccess,
		m.ModelInertia,
		m.LookupRequests,
		m.HTTPDuration,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveStep records the duration of a pipeline step.
func (m *Metrics) ObserveStep(step string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.StepDuration.WithLabelValues(step, outcome(err)).Observe(d.Seconds())
}

// ObserveRun records a finished pipeline run.
func (m *Metrics) ObserveRun(err error, rows int, at time.Time) {
	if m == nil {
		return
	}
	m.PipelineRuns.WithLabelValues(outcome(err)).Inc()
	if err == nil {
		m.CanonicalRows.Set(float64(rows))
		m.LastSuccess.Set(float64(at.Unix()))
	}
}

// ObserveLookup counts a lookup operation. result is e.g. "hit", "miss", "empty".
func (m *Metrics) ObserveLookup(op, result string) {
	if m == nil {
		return
	}
	m.LookupRequests.WithLabelValues(op, result).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}
