package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	payoutdomain "github.com/mygitzaki/zylike-creator-platform-sub001/internal/payout/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: SchedulerJobReasonDeadlineExceeded},
		{name: "concurrency_conflict", err: fmt.Errorf("creator 7: %w", payoutdomain.ErrConcurrencyConflict), want: SchedulerJobReasonConcurrencyConflict},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: SchedulerJobReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: SchedulerJobReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: SchedulerJobReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: SchedulerJobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestIsSchedulerErrorRetryable(t *testing.T) {
	if !IsSchedulerErrorRetryable(payoutdomain.ErrConcurrencyConflict) {
		t.Fatalf("expected concurrency conflict to be retryable")
	}
	if IsSchedulerErrorRetryable(payoutdomain.ErrNoClaimableEarnings) {
		t.Fatalf("expected no-claimable to be final")
	}
	if ClassifySchedulerErrorType(&pgconn.PgError{Code: "40001"}) != SchedulerErrorTypeDB {
		t.Fatalf("expected pg error to classify as db")
	}
}

func TestAddBatchProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{
		ServiceName: "creatorpay",
		Environment: "test",
	})

	metrics.AddBatchProcessed("payout_batch", "payouts", 3)
	metrics.AddBatchProcessed("payout_batch", "payouts", 0)

	got := testutil.ToFloat64(metrics.batchProcessed.WithLabelValues("payout_batch", "payouts"))
	if got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
}

func TestPayoutCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{ServiceName: "creatorpay", Environment: "test"})

	metrics.AddPayoutAmount("THRESHOLD_MET", 25.01)
	metrics.AddPayoutAmount("THRESHOLD_MET", -1)
	metrics.IncPayoutBlocked("MISSING_PAYMENT_DESTINATION")
	metrics.IncPayoutFailure(PayoutStageMaterialize, payoutdomain.ErrConcurrencyConflict)

	if got := testutil.ToFloat64(metrics.payoutAmount.WithLabelValues("THRESHOLD_MET")); got != 25.01 {
		t.Fatalf("expected amount 25.01, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.payoutBlocked.WithLabelValues("MISSING_PAYMENT_DESTINATION")); got != 1 {
		t.Fatalf("expected blocked count 1, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.payoutFailures.WithLabelValues(PayoutStageMaterialize, SchedulerJobReasonConcurrencyConflict)); got != 1 {
		t.Fatalf("expected failure count 1, got %v", got)
	}
}
