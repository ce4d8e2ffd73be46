package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	bonusdomain "github.com/mygitzaki/zylike-creator-platform-sub001/internal/bonus/domain"
	bonusrepo "github.com/mygitzaki/zylike-creator-platform-sub001/internal/bonus/repository"
	bonusservice "github.com/mygitzaki/zylike-creator-platform-sub001/internal/bonus/service"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/clock"
	earningdomain "github.com/mygitzaki/zylike-creator-platform-sub001/internal/earning/domain"
	earningrepo "github.com/mygitzaki/zylike-creator-platform-sub001/internal/earning/repository"
	earningservice "github.com/mygitzaki/zylike-creator-platform-sub001/internal/earning/service"
	"github.com/mygitzaki/zylike-creator-platform-sub001/pkg/db/dbtest"
)

type fixture struct {
	db       *gorm.DB
	clock    *clock.FakeClock
	node     *snowflake.Node
	bonusSvc bonusdomain.Service
	svc      earningdomain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC))

	bonusSvc := bonusservice.NewService(bonusservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  bonusrepo.Provide(),
		Tiers: bonusdomain.StaticTiers(bonusdomain.DefaultTierTable()),
	})
	f := &fixture{db: db, clock: clk, node: node, bonusSvc: bonusSvc}
	f.svc = f.newService(bonusSvc)
	return f
}

func (f *fixture) newService(bonusSvc bonusdomain.Service) earningdomain.Service {
	return earningservice.NewService(earningservice.Params{
		DB:       f.db,
		Log:      zap.NewNop(),
		GenID:    f.node,
		Clock:    f.clock,
		Repo:     earningrepo.Provide(),
		BonusSvc: bonusSvc,
	})
}

func (f *fixture) txn(creatorID snowflake.ID, gross, net string, commissionable bool) earningdomain.Transaction {
	g := decimal.RequireFromString(gross)
	n := decimal.RequireFromString(net)
	return earningdomain.Transaction{
		ID:               f.node.Generate(),
		CreatorID:        creatorID,
		GrossAmount:      g,
		PlatformFee:      g.Sub(n),
		CreatorPayout:    n,
		IsCommissionable: commissionable,
	}
}

func (f *fixture) insertPayout(t *testing.T, creatorID snowflake.ID) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	now := f.clock.Now()
	require.NoError(t, f.db.Exec(
		`INSERT INTO payouts (id, creator_id, total_amount, status, reason, scheduled_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, creatorID, "0", "PENDING", "MANUAL_ADMIN", now, now, now,
	).Error)
	return id
}

type failingBonusService struct {
	bonusdomain.Service
	calls int
}

func (f *failingBonusService) RecordCommissionableSale(context.Context, snowflake.ID, decimal.Decimal) (bonusdomain.SaleResult, error) {
	f.calls++
	return bonusdomain.SaleResult{}, errors.New("tracker offline")
}

func TestRecordEarningComputesWindows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	earning, err := f.svc.RecordEarning(ctx, f.txn(11, "100.00", "80.00", false))
	require.NoError(t, err)

	assert.Equal(t, earningdomain.EarningStatusLocked, earning.Status)
	assert.Nil(t, earning.PayoutID)
	assert.True(t, earning.EarnedAt.Equal(f.clock.Now()))
	assert.True(t, earning.EligibleAt.Equal(f.clock.Now().AddDate(0, 0, 15)))
	assert.True(t, earning.LockedUntil.Equal(f.clock.Now().AddDate(0, 0, 45)))
	assert.True(t, earning.EarnedAt.Before(earning.EligibleAt))
	assert.True(t, earning.EligibleAt.Before(earning.LockedUntil))
}

func TestRecordEarningUsesTransactionTime(t *testing.T) {
	f := newFixture(t)
	txn := f.txn(12, "40.00", "30.00", false)
	txn.CreatedAt = f.clock.Now().AddDate(0, 0, -20)

	earning, err := f.svc.RecordEarning(context.Background(), txn)
	require.NoError(t, err)
	assert.True(t, earning.EarnedAt.Equal(txn.CreatedAt))
}

func TestRecordEarningNonCommissionableLeavesTrackerUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creatorID := snowflake.ID(13)

	_, err := f.svc.RecordEarning(ctx, f.txn(creatorID, "100.00", "80.00", true))
	require.NoError(t, err)

	before, err := f.bonusSvc.GetTracker(ctx, creatorID)
	require.NoError(t, err)
	require.True(t, before.CurrentPeriodSales.Equal(decimal.NewFromInt(100)))

	_, err = f.svc.RecordEarning(ctx, f.txn(creatorID, "50.00", "40.00", false))
	require.NoError(t, err)

	after, err := f.bonusSvc.GetTracker(ctx, creatorID)
	require.NoError(t, err)
	assert.True(t, after.CurrentPeriodSales.Equal(before.CurrentPeriodSales))
	assert.Equal(t, int64(2), dbtest.Count(t, f.db, "earnings", "creator_id = ?", creatorID))
}

func TestRecordEarningIsIdempotentPerTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creatorID := snowflake.ID(14)
	txn := f.txn(creatorID, "6000.00", "4800.00", true)

	first, err := f.svc.RecordEarning(ctx, txn)
	require.NoError(t, err)
	second, err := f.svc.RecordEarning(ctx, txn)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, "earnings", "transaction_id = ?", txn.ID))

	stored, err := f.svc.GetByTransaction(ctx, txn.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, first.ID, stored.ID)

	missing, err := f.svc.GetByTransaction(ctx, f.node.Generate())
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = f.svc.GetByTransaction(ctx, 0)
	assert.ErrorIs(t, err, earningdomain.ErrInvalidTransaction)

	tracker, err := f.bonusSvc.GetTracker(ctx, creatorID)
	require.NoError(t, err)
	assert.True(t, tracker.CurrentPeriodSales.Equal(decimal.NewFromInt(6000)))
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, "bonus_payouts", "creator_id = ?", creatorID))
}

func TestRecordEarningSurvivesBonusFailure(t *testing.T) {
	f := newFixture(t)
	bonus := &failingBonusService{}
	svc := f.newService(bonus)

	earning, err := svc.RecordEarning(context.Background(), f.txn(15, "20.00", "15.00", true))
	require.NoError(t, err)
	require.NotNil(t, earning)
	assert.Equal(t, 1, bonus.calls)
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, "earnings", "id = ?", earning.ID))
}

func TestRecordEarningValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		txn  earningdomain.Transaction
		want error
	}{
		{
			name: "missing creator",
			txn:  earningdomain.Transaction{ID: 1, CreatorPayout: decimal.NewFromInt(1)},
			want: earningdomain.ErrInvalidCreator,
		},
		{
			name: "missing transaction",
			txn:  earningdomain.Transaction{CreatorID: 1, CreatorPayout: decimal.NewFromInt(1)},
			want: earningdomain.ErrInvalidTransaction,
		},
		{
			name: "negative payout",
			txn:  earningdomain.Transaction{ID: 1, CreatorID: 1, CreatorPayout: decimal.NewFromInt(-1)},
			want: earningdomain.ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RecordEarning(ctx, tt.txn)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestListClaimableSplitsForcedAndEligible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creatorID := snowflake.ID(16)
	now := f.clock.Now()

	forced := f.txn(creatorID, "6.00", "5.00", false)
	forced.CreatedAt = now.AddDate(0, 0, -46)
	eligible := f.txn(creatorID, "12.00", "10.00", false)
	eligible.CreatedAt = now.AddDate(0, 0, -20)
	locked := f.txn(creatorID, "12.00", "10.00", false)
	locked.CreatedAt = now.AddDate(0, 0, -3)

	for _, txn := range []earningdomain.Transaction{forced, eligible, locked} {
		_, err := f.svc.RecordEarning(ctx, txn)
		require.NoError(t, err)
	}

	claimable, err := f.svc.ListClaimable(ctx, now)
	require.NoError(t, err)
	require.Len(t, claimable.Forced, 1)
	require.Len(t, claimable.Eligible, 1)
	assert.Equal(t, forced.ID, claimable.Forced[0].TransactionID)
	assert.Equal(t, eligible.ID, claimable.Eligible[0].TransactionID)
	assert.True(t, earningdomain.SumNet(claimable.All()).Equal(decimal.NewFromInt(15)))

	other, err := f.svc.ListClaimableForCreator(ctx, creatorID+1, now)
	require.NoError(t, err)
	assert.True(t, other.Empty())
}

func TestClaimTransitionsOnlyLockedRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creatorID := snowflake.ID(17)

	txn := f.txn(creatorID, "30.00", "25.00", false)
	txn.CreatedAt = f.clock.Now().AddDate(0, 0, -16)
	earning, err := f.svc.RecordEarning(ctx, txn)
	require.NoError(t, err)

	payoutID := f.insertPayout(t, creatorID)
	claimed, err := f.svc.Claim(ctx, nil, []snowflake.ID{earning.ID}, payoutID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), claimed)

	rival := f.insertPayout(t, creatorID)
	claimed, err = f.svc.Claim(ctx, nil, []snowflake.ID{earning.ID}, rival)
	require.NoError(t, err)
	assert.Equal(t, int64(0), claimed)

	rows, err := f.svc.ListByPayout(ctx, nil, payoutID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, earningdomain.EarningStatusPendingPayout, rows[0].Status)
	require.NotNil(t, rows[0].PayoutID)
	assert.Equal(t, payoutID, *rows[0].PayoutID)

	paid, err := f.svc.MarkPaidForPayout(ctx, nil, payoutID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), paid)

	byStatus, err := f.svc.ListByCreator(ctx, creatorID, earningdomain.EarningStatusPaid)
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.NotNil(t, byStatus[0].PaidAt)
}

func TestSchemaRejectsClaimWithoutPayout(t *testing.T) {
	f := newFixture(t)
	earning, err := f.svc.RecordEarning(context.Background(), f.txn(18, "10.00", "8.00", false))
	require.NoError(t, err)

	err = f.db.Exec(`UPDATE earnings SET status = ? WHERE id = ?`, earningdomain.EarningStatusPendingPayout, earning.ID).Error
	assert.Error(t, err)
}

func TestEarningStatusTransitions(t *testing.T) {
	assert.True(t, earningdomain.EarningStatusLocked.CanTransitionTo(earningdomain.EarningStatusPendingPayout))
	assert.True(t, earningdomain.EarningStatusPendingPayout.CanTransitionTo(earningdomain.EarningStatusPaid))
	assert.False(t, earningdomain.EarningStatusPaid.CanTransitionTo(earningdomain.EarningStatusLocked))
	assert.False(t, earningdomain.EarningStatusLocked.CanTransitionTo(earningdomain.EarningStatusPaid))
	assert.False(t, earningdomain.EarningStatus("VOID").Valid())
}

func TestListClaimableTreatsZonedInstantAsUTC(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creatorID := snowflake.ID(19)

	forced := f.txn(creatorID, "6.00", "5.00", false)
	forced.CreatedAt = f.clock.Now().AddDate(0, 0, -45)
	eligible := f.txn(creatorID, "12.00", "10.00", false)
	eligible.CreatedAt = f.clock.Now().AddDate(0, 0, -15)
	for _, txn := range []earningdomain.Transaction{forced, eligible} {
		_, err := f.svc.RecordEarning(ctx, txn)
		require.NoError(t, err)
	}
	f.clock.Advance(time.Hour)

	ahead := f.clock.Now().In(time.FixedZone("UTC+9", 9*60*60))
	behind := f.clock.Now().In(time.FixedZone("UTC-10", -10*60*60))
	for _, now := range []time.Time{ahead, behind} {
		claimable, err := f.svc.ListClaimableForCreator(ctx, creatorID, now)
		require.NoError(t, err)
		require.Len(t, claimable.Forced, 1, now.Location().String())
		require.Len(t, claimable.Eligible, 1, now.Location().String())
		assert.Equal(t, forced.ID, claimable.Forced[0].TransactionID)
		assert.Equal(t, eligible.ID, claimable.Eligible[0].TransactionID)
	}
}

func TestRecordEarningLogsRejectedBonusAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creatorID := snowflake.ID(20)

	core, logs := observer.New(zapcore.WarnLevel)
	svc := earningservice.NewService(earningservice.Params{
		DB:       f.db,
		Log:      zap.New(core),
		GenID:    f.node,
		Clock:    f.clock,
		Repo:     earningrepo.Provide(),
		BonusSvc: f.bonusSvc,
	})

	earning, err := svc.RecordEarning(ctx, f.txn(creatorID, "0.00", "0.00", true))
	require.NoError(t, err)
	require.NotNil(t, earning)
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, "earnings", "id = ?", earning.ID))

	_, err = f.bonusSvc.GetTracker(ctx, creatorID)
	assert.ErrorIs(t, err, bonusdomain.ErrTrackerNotFound)

	warnings := logs.FilterMessage("bonus tracking failed for earning").All()
	require.Len(t, warnings, 1)
	fields := warnings[0].ContextMap()
	assert.Equal(t, creatorID.String(), fields["creator_id"])
	assert.Equal(t, bonusdomain.ErrInvalidAmount.Error(), fields["error"])
}
