package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SaleResult describes the tracker after one commissionable sale.
type SaleResult struct {
	TierChanged bool
	BonusEarned decimal.Decimal
	NewTier     Tier
	NewSales    decimal.Decimal
	BonusPayout *BonusPayout
}

// Service is the bonus tier tracker. Methods that accept a *gorm.DB run on
// that handle so callers can compose them into their own transaction; a nil
// handle uses the service's connection.
type Service interface {
	TierForSales(sales decimal.Decimal) Tier
	RecordCommissionableSale(ctx context.Context, creatorID snowflake.ID, amount decimal.Decimal) (SaleResult, error)
	GetTracker(ctx context.Context, creatorID snowflake.ID) (*BonusTracker, error)
	ListClaimableBonuses(ctx context.Context, now time.Time) ([]BonusPayout, error)
	ListClaimableBonusesForCreator(ctx context.Context, creatorID snowflake.ID, now time.Time) ([]BonusPayout, error)
	ListOutstandingForCreator(ctx context.Context, creatorID snowflake.ID) ([]BonusPayout, error)
	ClaimBonuses(ctx context.Context, tx *gorm.DB, bonusPayoutIDs []snowflake.ID, payoutID snowflake.ID) (int64, error)
	ListByPayout(ctx context.Context, tx *gorm.DB, payoutID snowflake.ID) ([]BonusPayout, error)
	MarkPaidForPayout(ctx context.Context, tx *gorm.DB, payoutID snowflake.ID) (int64, error)
	ResetPeriod(ctx context.Context, tx *gorm.DB, creatorID snowflake.ID) (bool, error)
}

var (
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidCreator   = errors.New("invalid_creator")
	ErrInvalidTierTable = errors.New("invalid_tier_table")
	ErrTrackerNotFound  = errors.New("bonus_tracker_not_found")
	ErrTierAwarded      = errors.New("bonus_tier_already_awarded")
)
