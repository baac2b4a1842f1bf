package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// Module provides the Prometheus collectors on the default registry.
var Module = fx.Options(
	fx.Provide(func() prometheus.Registerer { return prometheus.DefaultRegisterer }),
	fx.Provide(NewMetrics),
)

// Metrics exposes Prometheus collectors scraped from the ops server.
type Metrics struct {
	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
	integritySweeps     *prometheus.CounterVec
	integrityDuration   prometheus.Histogram
	integrityViolations prometheus.Counter
	integrityImbalance  *prometheus.GaugeVec
}

// NewMetrics registers and returns the Prometheus collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bizbooks_http_requests_total",
		Help: "Counts ops HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	httpDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bizbooks_http_request_duration_seconds",
		Help:    "Ops HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	integritySweeps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bizbooks_integrity_sweeps_total",
		Help: "Trial balance integrity sweeps by outcome.",
	}, []string{"outcome"})

	integrityDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bizbooks_integrity_sweep_duration_seconds",
		Help:    "Duration of a full integrity sweep.",
		Buckets: prometheus.DefBuckets,
	})

	integrityViolations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bizbooks_integrity_violations_total",
		Help: "Organizations whose trial balance did not net to zero.",
	})

	integrityImbalance := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bizbooks_integrity_unbalanced_organizations",
		Help: "Unbalanced organizations found by the last sweep.",
	}, []string{"run"})

	if reg != nil {
		reg.MustRegister(
			httpRequests,
			httpDuration,
			integritySweeps,
			integrityDuration,
			integrityViolations,
			integrityImbalance,
		)
	}

	return &Metrics{
		httpRequests:        httpRequests,
		httpDuration:        httpDuration,
		integritySweeps:     integritySweeps,
		integrityDuration:   integrityDuration,
		integrityViolations: integrityViolations,
		integrityImbalance:  integrityImbalance,
	}
}

// ObserveHTTPRequest records an ops request and its latency.
func (m *Metrics) ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	methodLabel := sanitizeLabel(method)
	routeLabel := sanitizeLabel(route)
	m.httpRequests.WithLabelValues(methodLabel, routeLabel, sanitizeLabel(status)).Inc()
	m.httpDuration.WithLabelValues(methodLabel, routeLabel).Observe(duration.Seconds())
}

// RecordIntegritySweep records one sweep and the number of violations found.
func (m *Metrics) RecordIntegritySweep(outcome string, violations int, duration time.Duration) {
	if m == nil {
		return
	}
	m.integritySweeps.WithLabelValues(sanitizeLabel(outcome)).Inc()
	m.integrityDuration.Observe(duration.Seconds())
	if violations > 0 {
		m.integrityViolations.Add(float64(violations))
	}
	m.integrityImbalance.WithLabelValues("last").Set(float64(violations))
}

func sanitizeLabel(val string) string {
	if val == "" {
		return "unknown"
	}
	return val
}
