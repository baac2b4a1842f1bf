package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Posting outcomes recorded on bizbooks_ledger_transactions_total.
const (
	OutcomeCommitted          = "committed"
	OutcomeReplayed           = "replayed"
	OutcomeImbalance          = "imbalance"
	OutcomeUnresolvedAccount  = "unresolved_account"
	OutcomeInvalidInput       = "invalid_input"
	OutcomeIdempotencyClash   = "idempotency_mismatch"
	OutcomePersistenceFailure = "persistence_failure"
	OutcomeUnknown            = "unknown"
)

// Metrics exposes application-level instruments.
type Metrics struct {
	ledgerTransactions metric.Int64Counter
	ledgerEntries      metric.Int64Counter
	postingDuration    metric.Float64Histogram
	taxCalculations    metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "bizbooks"
	}
	meter := provider.Meter(name)

	ledgerTransactions, err := meter.Int64Counter("bizbooks_ledger_transactions_total")
	if err != nil {
		return nil, err
	}
	ledgerEntries, err := meter.Int64Counter("bizbooks_ledger_entries_total")
	if err != nil {
		return nil, err
	}
	postingDuration, err := meter.Float64Histogram("bizbooks_ledger_posting_duration_seconds")
	if err != nil {
		return nil, err
	}
	taxCalculations, err := meter.Int64Counter("bizbooks_tax_calculations_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		ledgerTransactions: ledgerTransactions,
		ledgerEntries:      ledgerEntries,
		postingDuration:    postingDuration,
		taxCalculations:    taxCalculations,
	}, nil
}

// RecordLedgerTransaction counts one posting attempt by outcome.
func (m *Metrics) RecordLedgerTransaction(ctx context.Context, sourceType, outcome string, entries int, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("source_type", strings.TrimSpace(sourceType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.ledgerTransactions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.postingDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
	if outcome == OutcomeCommitted && entries > 0 {
		m.ledgerEntries.Add(ctx, int64(entries), metric.WithAttributes(FilterAttributes(
			attribute.String("source_type", strings.TrimSpace(sourceType)),
		)...))
	}
}

// RecordTaxCalculation counts GST/TDS computations by kind and outcome.
func (m *Metrics) RecordTaxCalculation(ctx context.Context, kind, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("tax_kind", strings.TrimSpace(kind)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.taxCalculations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"source_type": {},
	"outcome":     {},
	"tax_kind":    {},
	"reason":      {},
	"route":       {},
	"method":      {},
	"status_code": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
// Organization and transaction identifiers are never labels.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
