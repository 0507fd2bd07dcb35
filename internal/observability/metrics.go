// Package observability exposes Prometheus metrics for the sizing pipeline.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	labelStatus = "status"

	// Request statuses.
	StatusOK        = "ok"
	StatusError     = "error"
	StatusDebounced = "debounced"

	// Sizer outcomes.
	OutcomeSized   = "sized"
	OutcomeCached  = "cached"
	OutcomeTimeout = "timeout"
	OutcomeFailed  = "failed"
)

// sizerBucketBoundaries covers 50ms to 60s; a cold bundler invocation for a
// large package sits around the middle of the range.
var sizerBucketBoundaries = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// Metrics holds the Prometheus instruments for the sizing pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal *prometheus.CounterVec
	entriesTotal  *prometheus.CounterVec
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	sizerDuration prometheus.Histogram
	inflight      prometheus.Gauge
}

// NewMetrics creates the instrument set on a private registry so repeated
// construction never trips duplicate-collector panics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "importcost_requests_total",
			Help: "Completed import-cost requests by terminal status.",
		}, []string{labelStatus}),
		entriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "importcost_entries_total",
			Help: "Per-import entries by sizing outcome.",
		}, []string{labelStatus}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "importcost_size_cache_hits_total",
			Help: "Size cache lookups served from memory or disk.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "importcost_size_cache_misses_total",
			Help: "Size cache lookups that required a bundler invocation.",
		}),
		sizerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "importcost_sizer_duration_seconds",
			Help:    "Wall time of single bundler invocations.",
			Buckets: sizerBucketBoundaries,
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "importcost_inflight_requests",
			Help: "Requests currently between start and terminal emission.",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.entriesTotal,
		m.cacheHits,
		m.cacheMisses,
		m.sizerDuration,
		m.inflight,
	)

	return m
}

// Handler serves the /metrics scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest records a completed request by terminal status.
func (m *Metrics) RecordRequest(status string) {
	if m == nil {
		return
	}

	m.requestsTotal.WithLabelValues(status).Inc()
}

// RecordEntry records a per-import entry outcome.
func (m *Metrics) RecordEntry(outcome string) {
	if m == nil {
		return
	}

	m.entriesTotal.WithLabelValues(outcome).Inc()
}

// RecordCacheLookup records a size cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}

	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveSizerDuration records the wall time of one bundler invocation.
func (m *Metrics) ObserveSizerDuration(d time.Duration) {
	if m == nil {
		return
	}

	m.sizerDuration.Observe(d.Seconds())
}

// TrackInflight increments the in-flight gauge and returns its decrement.
func (m *Metrics) TrackInflight() func() {
	if m == nil {
		return func() {}
	}

	m.inflight.Inc()

	return func() { m.inflight.Dec() }
}
