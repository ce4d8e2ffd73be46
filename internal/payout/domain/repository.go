package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertPayout(ctx context.Context, db *gorm.DB, payout *Payout) error
	UpdateTotals(ctx context.Context, db *gorm.DB, payout *Payout, now time.Time) error
	FindByID(ctx context.Context, db *gorm.DB, payoutID snowflake.ID) (*Payout, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, payoutID snowflake.ID) (*Payout, error)
	ListByStatus(ctx context.Context, db *gorm.DB, statuses []PayoutStatus) ([]Payout, error)
	LeaseUndispatched(ctx context.Context, db *gorm.DB, olderThan time.Time, now time.Time, limit int) ([]Payout, error)

	MarkDispatched(ctx context.Context, db *gorm.DB, payoutID snowflake.ID, now time.Time) (bool, error)
	MarkCompleted(ctx context.Context, db *gorm.DB, payoutID snowflake.ID, now time.Time) (bool, error)
	MarkFailed(ctx context.Context, db *gorm.DB, payoutID snowflake.ID, reason string, now time.Time) (bool, error)

	UpsertProfile(ctx context.Context, db *gorm.DB, profile *CreatorPayoutProfile) error
	FindProfile(ctx context.Context, db *gorm.DB, creatorID snowflake.ID) (*CreatorPayoutProfile, error)
	ListProfiles(ctx context.Context, db *gorm.DB, creatorIDs []snowflake.ID) ([]CreatorPayoutProfile, error)
}
