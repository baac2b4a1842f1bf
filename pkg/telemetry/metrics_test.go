package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordIntegritySweep(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordIntegritySweep("violations", 2, time.Second)
	m.RecordIntegritySweep("clean", 0, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.integritySweeps.WithLabelValues("violations")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.integritySweeps.WithLabelValues("clean")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.integrityViolations))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.integrityImbalance.WithLabelValues("last")))
}

func TestObserveHTTPRequestSanitizesLabels(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveHTTPRequest("GET", "", "200", time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "unknown", "200")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveHTTPRequest("GET", "/health", "200", time.Millisecond)
		m.RecordIntegritySweep("clean", 0, time.Second)
	})
}
