package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("creator_id", "123"),
		attribute.String("payout_id", "456"),
		attribute.String("reason", "THRESHOLD_MET"),
		attribute.Int("tier", 2),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "creator_id" || attr.Key == "payout_id" {
			t.Fatalf("high-cardinality label %q was retained", attr.Key)
		}
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordEarning(ctx, true)
	m.RecordBonusAwarded(ctx, 1)
	m.RecordPayoutCreated(ctx, "FORCED_LOCK_EXPIRY")
	m.RecordPayoutSettled(ctx, "COMPLETED")
	m.RecordPayoutBlocked(ctx, "MISSING_PAYMENT_DESTINATION")
}

func TestNewRegistersInstruments(t *testing.T) {
	m, err := New(Config{ServiceName: "creatorpay"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordEarning(context.Background(), false)
	m.RecordPayoutCreated(context.Background(), "MANUAL_ADMIN")
}
