package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("org_id", "123"),
		attribute.String("transaction_id", "456"),
		attribute.String("source_type", "sales_invoice"),
		attribute.String("outcome", "committed"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("source_type"), attrs[0].Key)
	assert.Equal(t, attribute.Key("outcome"), attrs[1].Key)
}

func TestRecordOnNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordLedgerTransaction(context.Background(), "sales_invoice", OutcomeCommitted, 3, time.Millisecond)
		m.RecordTaxCalculation(context.Background(), "gst", "ok")
	})
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		m.RecordLedgerTransaction(context.Background(), "vendor_payment", OutcomeImbalance, 0, time.Millisecond)
	})
}
