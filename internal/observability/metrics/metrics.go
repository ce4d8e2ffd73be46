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

// Metrics exposes application-level instruments.
type Metrics struct {
	earningsRecorded metric.Int64Counter
	bonusesAwarded   metric.Int64Counter
	payoutsCreated   metric.Int64Counter
	payoutsSettled   metric.Int64Counter
	payoutsBlocked   metric.Int64Counter
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
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = defaultServiceName
	}
	meter := provider.Meter(name)

	earningsRecorded, err := meter.Int64Counter("creatorpay_earnings_recorded_total")
	if err != nil {
		return nil, err
	}
	bonusesAwarded, err := meter.Int64Counter("creatorpay_bonuses_awarded_total")
	if err != nil {
		return nil, err
	}
	payoutsCreated, err := meter.Int64Counter("creatorpay_payouts_created_total")
	if err != nil {
		return nil, err
	}
	payoutsSettled, err := meter.Int64Counter("creatorpay_payouts_settled_total")
	if err != nil {
		return nil, err
	}
	payoutsBlocked, err := meter.Int64Counter("creatorpay_payouts_blocked_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		earningsRecorded: earningsRecorded,
		bonusesAwarded:   bonusesAwarded,
		payoutsCreated:   payoutsCreated,
		payoutsSettled:   payoutsSettled,
		payoutsBlocked:   payoutsBlocked,
	}, nil
}

// RecordEarning counts a newly created earning.
func (m *Metrics) RecordEarning(ctx context.Context, commissionable bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.Bool("commissionable", commissionable))
	m.earningsRecorded.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordBonusAwarded counts a tier crossing that produced a bonus payout.
func (m *Metrics) RecordBonusAwarded(ctx context.Context, tier int) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.Int("tier", tier))
	m.bonusesAwarded.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPayoutCreated counts a materialized payout by reason.
func (m *Metrics) RecordPayoutCreated(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.payoutsCreated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPayoutSettled counts payouts reaching a terminal status.
func (m *Metrics) RecordPayoutSettled(ctx context.Context, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.payoutsSettled.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPayoutBlocked counts creators skipped for a blocking reason.
func (m *Metrics) RecordPayoutBlocked(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.payoutsBlocked.Add(ctx, 1, metric.WithAttributes(attrs...))
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

const defaultServiceName = "creatorpay"

var allowedLabelKeys = map[attribute.Key]struct{}{
	"commissionable": {},
	"tier":           {},
	"reason":         {},
	"status":         {},
	"method":         {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
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
