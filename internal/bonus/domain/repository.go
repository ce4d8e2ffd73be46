package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	EnsureTracker(ctx context.Context, db *gorm.DB, tracker *BonusTracker) error
	FindTrackerByCreator(ctx context.Context, db *gorm.DB, creatorID snowflake.ID) (*BonusTracker, error)
	LockTrackerByCreator(ctx context.Context, db *gorm.DB, creatorID snowflake.ID) (*BonusTracker, error)
	AddPeriodSales(ctx context.Context, db *gorm.DB, creatorID snowflake.ID, amount decimal.Decimal, now time.Time) (*SalesIncrement, error)
	AdvanceTier(ctx context.Context, db *gorm.DB, trackerID snowflake.ID, tier Tier, nextPayoutDate time.Time, now time.Time) (bool, error)
	ResetPeriod(ctx context.Context, db *gorm.DB, trackerID snowflake.ID, now time.Time) (bool, error)

	InsertBonusPayout(ctx context.Context, db *gorm.DB, bonus *BonusPayout) error
	ListClaimable(ctx context.Context, db *gorm.DB, now time.Time, creatorID *snowflake.ID) ([]BonusPayout, error)
	ListOutstanding(ctx context.Context, db *gorm.DB, creatorID snowflake.ID) ([]BonusPayout, error)
	ListByPayout(ctx context.Context, db *gorm.DB, payoutID snowflake.ID) ([]BonusPayout, error)
	Claim(ctx context.Context, db *gorm.DB, ids []snowflake.ID, payoutID snowflake.ID, now time.Time) (int64, error)
	MarkPaidForPayout(ctx context.Context, db *gorm.DB, payoutID snowflake.ID, now time.Time) (int64, error)
}
