// Package metrics manages Prometheus instrumentation for aggregation
// passes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PassMetrics instruments the dashboard aggregation pipeline.
type PassMetrics struct {
	registry *prometheus.Registry

	passDuration prometheus.Histogram
	passResults  *prometheus.CounterVec
	fetchErrors  *prometheus.CounterVec
	feedSize     prometheus.Gauge
}

// New creates the pass metrics on a dedicated registry.
func New() *PassMetrics {
	m := &PassMetrics{
		registry: prometheus.NewRegistry(),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "folio",
			Subsystem: "dashboard",
			Name:      "pass_duration_seconds",
			Help:      "Duration of one full aggregation pass.",
			Buckets:   prometheus.DefBuckets,
		}),
		passResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "folio",
			Subsystem: "dashboard",
			Name:      "passes_total",
			Help:      "Aggregation passes by outcome.",
		}, []string{"outcome"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "folio",
			Subsystem: "dashboard",
			Name:      "domain_fetch_errors_total",
			Help:      "Isolated domain fetch failures by domain and type.",
		}, []string{"domain", "type"}),
		feedSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "folio",
			Subsystem: "dashboard",
			Name:      "feed_items",
			Help:      "Items in the most recently published feed.",
		}),
	}
	m.registry.MustRegister(m.passDuration, m.passResults, m.fetchErrors, m.feedSize)
	return m
}

// ObservePass records one completed pass.
func (m *PassMetrics) ObservePass(outcome string, duration time.Duration, feedItems int) {
	if m == nil {
		return
	}
	m.passDuration.Observe(duration.Seconds())
	m.passResults.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.feedSize.Set(float64(feedItems))
	}
}

// RecordFetchError records one isolated domain fetch failure.
func (m *PassMetrics) RecordFetchError(domain, errorType string) {
	if m == nil {
		return
	}
	m.fetchErrors.WithLabelValues(domain, errorType).Inc()
}

// Handler serves the registry for /metrics.
func (m *PassMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
