package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	bonusdomain "github.com/mygitzaki/zylike-creator-platform-sub001/internal/bonus/domain"
	bonusrepo "github.com/mygitzaki/zylike-creator-platform-sub001/internal/bonus/repository"
	bonusservice "github.com/mygitzaki/zylike-creator-platform-sub001/internal/bonus/service"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/clock"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/config"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/disbursement"
	earningdomain "github.com/mygitzaki/zylike-creator-platform-sub001/internal/earning/domain"
	earningrepo "github.com/mygitzaki/zylike-creator-platform-sub001/internal/earning/repository"
	earningservice "github.com/mygitzaki/zylike-creator-platform-sub001/internal/earning/service"
	payoutdomain "github.com/mygitzaki/zylike-creator-platform-sub001/internal/payout/domain"
	payoutrepo "github.com/mygitzaki/zylike-creator-platform-sub001/internal/payout/repository"
	payoutservice "github.com/mygitzaki/zylike-creator-platform-sub001/internal/payout/service"
	"github.com/mygitzaki/zylike-creator-platform-sub001/pkg/db/dbtest"
)

// stubDispatcher records hand-offs and fails for the creators listed in fail.
type stubDispatcher struct {
	mu       sync.Mutex
	requests []disbursement.Request
	fail     map[snowflake.ID]error
}

func (d *stubDispatcher) Dispatch(_ context.Context, req disbursement.Request) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err, ok := d.fail[req.CreatorID]; ok {
		return err
	}
	d.requests = append(d.requests, req)
	return nil
}

func (d *stubDispatcher) heal() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = nil
}

func (d *stubDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

type fixture struct {
	db         *gorm.DB
	clock      *clock.FakeClock
	node       *snowflake.Node
	earningSvc earningdomain.Service
	payoutSvc  payoutdomain.Service
	dispatcher *stubDispatcher
	sched      *Scheduler
	registry   *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	registry := prometheus.NewRegistry()
	t.Cleanup(swapPrometheusRegistry(registry))

	db := dbtest.Open(t)
	node, err := snowflake.NewNode(9)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, time.April, 15, 6, 0, 0, 0, time.UTC))

	bonusSvc := bonusservice.NewService(bonusservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  bonusrepo.Provide(),
		Tiers: bonusdomain.StaticTiers(bonusdomain.DefaultTierTable()),
	})
	earningSvc := earningservice.NewService(earningservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Repo:     earningrepo.Provide(),
		BonusSvc: bonusSvc,
	})
	payoutSvc := payoutservice.NewService(payoutservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Config: config.Config{
			Payout: config.PayoutConfig{MinimumAmount: decimal.NewFromInt(25), Currency: "USD"},
		},
		Repo:       payoutrepo.Provide(),
		EarningSvc: earningSvc,
		BonusSvc:   bonusSvc,
	})
	dispatcher := &stubDispatcher{}
	sched, err := New(Params{
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clk,
		PayoutSvc:  payoutSvc,
		Dispatcher: dispatcher,
		Config:     Config{BatchConcurrency: 3},
	})
	require.NoError(t, err)

	return &fixture{
		db:         db,
		clock:      clk,
		node:       node,
		earningSvc: earningSvc,
		payoutSvc:  payoutSvc,
		dispatcher: dispatcher,
		sched:      sched,
		registry:   registry,
	}
}

func (f *fixture) earn(t *testing.T, creatorID snowflake.ID, net string, daysAgo int) {
	t.Helper()
	amount := decimal.RequireFromString(net)
	_, err := f.earningSvc.RecordEarning(context.Background(), earningdomain.Transaction{
		ID:            f.node.Generate(),
		CreatorID:     creatorID,
		GrossAmount:   amount,
		PlatformFee:   decimal.Zero,
		CreatorPayout: amount,
		CreatedAt:     f.clock.Now().AddDate(0, 0, -daysAgo),
	})
	require.NoError(t, err)
}

func (f *fixture) withDestination(t *testing.T, creatorID snowflake.ID) {
	t.Helper()
	_, err := f.payoutSvc.SetPayoutProfile(context.Background(), payoutdomain.SetPayoutProfileRequest{
		CreatorID:    creatorID,
		PayoutMethod: "paypal",
		Destination:  "creator-" + creatorID.String() + "@example.com",
	})
	require.NoError(t, err)
}

func TestRunScheduledBatchPaysQualifyingCreators(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	paid := []snowflake.ID{1001, 1002, 1003}
	for _, id := range paid {
		f.withDestination(t, id)
		f.earn(t, id, "30.00", 20)
	}
	below := snowflake.ID(1004)
	f.withDestination(t, below)
	f.earn(t, below, "12.00", 20)
	blocked := snowflake.ID(1005)
	f.earn(t, blocked, "80.00", 20)

	result, err := f.sched.RunScheduledBatch(ctx, f.clock.Now())
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 3, result.ProcessedCount)
	assert.True(t, result.TotalAmount.Equal(decimal.NewFromInt(90)), "got %s", result.TotalAmount)
	assert.Empty(t, result.Failures)
	assert.Equal(t, []snowflake.ID{below}, result.SkippedBelowThreshold)
	require.Len(t, result.Blocked, 1)
	assert.Equal(t, blocked, result.Blocked[0].CreatorID)
	assert.Equal(t, payoutdomain.BlockedReasonMissingDestination, result.Blocked[0].Reason)

	require.Len(t, result.Payouts, 3)
	for i, payout := range result.Payouts {
		assert.Equal(t, paid[i], payout.CreatorID)
		assert.Equal(t, payoutdomain.PayoutStatusProcessing, payout.Status)
		assert.NotNil(t, payout.DispatchedAt)
		assert.Equal(t, result.RunID, payout.Metadata["run_id"])
	}
	assert.Equal(t, 3, f.dispatcher.count())
	assert.EqualValues(t, 3, dbtest.Count(t, f.db, "earnings", "status = ?", earningdomain.EarningStatusPendingPayout))

	blockedLabels := map[string]string{
		"service": "creatorpay",
		"env":     "unknown",
		"reason":  string(payoutdomain.BlockedReasonMissingDestination),
	}
	assert.Equal(t, float64(1), getCounterValue(t, f.registry, "creatorpay_payout_blocked_total", blockedLabels))
}

func TestRunScheduledBatchTwiceDoesNotDoublePay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creatorID := snowflake.ID(1101)
	f.withDestination(t, creatorID)
	f.earn(t, creatorID, "40.00", 20)

	first, err := f.sched.RunScheduledBatch(ctx, f.clock.Now())
	require.NoError(t, err)
	second, err := f.sched.RunScheduledBatch(ctx, f.clock.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, first.ProcessedCount)
	assert.Equal(t, 0, second.ProcessedCount)
	assert.True(t, second.TotalAmount.IsZero())
	assert.EqualValues(t, 1, dbtest.Count(t, f.db, "payouts", "creator_id = ?", creatorID))
	assert.Equal(t, 1, f.dispatcher.count())
}

func TestRunScheduledBatchConcurrentRunsClaimOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creators := []snowflake.ID{1201, 1202, 1203, 1204}
	for _, id := range creators {
		f.withDestination(t, id)
		f.earn(t, id, "26.00", 17)
		f.earn(t, id, "5.00", 50)
	}

	var wg sync.WaitGroup
	results := make([]RunResult, 3)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.sched.RunScheduledBatch(ctx, f.clock.Now())
			assert.NoError(t, err)
			results[i] = result
		}()
	}
	wg.Wait()

	total := decimal.Zero
	processed := 0
	for _, r := range results {
		processed += r.ProcessedCount
		total = total.Add(r.TotalAmount)
	}
	assert.Equal(t, len(creators), processed)
	assert.True(t, total.Equal(decimal.NewFromInt(124)), "got %s", total)
	for _, id := range creators {
		assert.EqualValues(t, 1, dbtest.Count(t, f.db, "payouts", "creator_id = ?", id))
	}
	assert.EqualValues(t, 0, dbtest.Count(t, f.db, "earnings", "status = ?", earningdomain.EarningStatusLocked))
}

func TestDispatchFailureIsIsolatedAndRecovered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	good := snowflake.ID(1301)
	bad := snowflake.ID(1302)
	for _, id := range []snowflake.ID{good, bad} {
		f.withDestination(t, id)
		f.earn(t, id, "50.00", 20)
	}
	railDown := errors.New("rail unavailable")
	f.dispatcher.fail = map[snowflake.ID]error{bad: railDown}

	result, err := f.sched.RunScheduledBatch(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, result.ProcessedCount)
	require.Len(t, result.Failures, 1)
	failure := result.Failures[0]
	assert.Equal(t, bad, failure.CreatorID)
	assert.ErrorIs(t, failure.Err, railDown)
	assert.NotZero(t, failure.PayoutID)

	stuck, err := f.payoutSvc.GetPayout(ctx, failure.PayoutID)
	require.NoError(t, err)
	assert.Equal(t, payoutdomain.PayoutStatusPending, stuck.Status)
	assert.Nil(t, stuck.DispatchedAt)

	// Too recent for the sweep.
	require.NoError(t, f.sched.DispatchRecoveryJob(ctx))
	assert.Equal(t, 1, f.dispatcher.count())

	f.dispatcher.heal()
	f.clock.Advance(20 * time.Minute)
	require.NoError(t, f.sched.DispatchRecoveryJob(ctx))
	assert.Equal(t, 2, f.dispatcher.count())

	recovered, err := f.payoutSvc.GetPayout(ctx, failure.PayoutID)
	require.NoError(t, err)
	assert.Equal(t, payoutdomain.PayoutStatusProcessing, recovered.Status)
	assert.NotNil(t, recovered.DispatchedAt)
}

func TestRunManualPayoutIgnoresMinimum(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creatorID := snowflake.ID(1401)
	f.withDestination(t, creatorID)
	f.earn(t, creatorID, "4.00", 16)

	result, err := f.sched.RunManualPayout(ctx, creatorID, "admin-7", "requested by support")
	require.NoError(t, err)
	assert.Equal(t, 1, result.ProcessedCount)
	require.Len(t, result.Payouts, 1)

	payout := result.Payouts[0]
	assert.Equal(t, payoutdomain.PayoutReasonManualAdmin, payout.Reason)
	assert.True(t, payout.TotalAmount.Equal(decimal.NewFromInt(4)))
	require.NotNil(t, payout.ActorID)
	assert.Equal(t, "admin-7", *payout.ActorID)
	assert.Equal(t, payoutdomain.PayoutStatusProcessing, payout.Status)

	_, err = f.sched.RunManualPayout(ctx, creatorID, "admin-7", "")
	assert.ErrorIs(t, err, payoutdomain.ErrNoClaimableEarnings)
}

func TestRunManualPayoutBlockedWithoutDestination(t *testing.T) {
	f := newFixture(t)
	creatorID := snowflake.ID(1501)
	f.earn(t, creatorID, "60.00", 20)

	result, err := f.sched.RunManualPayout(context.Background(), creatorID, "admin-1", "")
	require.ErrorIs(t, err, payoutdomain.ErrPayoutBlocked)
	require.Len(t, result.Blocked, 1)
	assert.Equal(t, payoutdomain.BlockedReasonMissingDestination, result.Blocked[0].Reason)
	assert.Equal(t, 0, f.dispatcher.count())
	assert.EqualValues(t, 0, dbtest.Count(t, f.db, "payouts", ""))
}

func TestRunScheduledBatchTreatsZonedInstantAsUTC(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creatorID := snowflake.ID(1501)
	f.withDestination(t, creatorID)
	f.earn(t, creatorID, "5.00", 45)
	f.clock.Advance(2 * time.Hour)

	result, err := f.sched.RunScheduledBatch(ctx, f.clock.Now().In(time.FixedZone("HST", -10*60*60)))
	require.NoError(t, err)
	assert.Equal(t, 1, result.ProcessedCount)
	assert.True(t, result.TotalAmount.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, 1, f.dispatcher.count())
}
