package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertIfAbsent(ctx context.Context, db *gorm.DB, earning *Earning) (bool, error)
	FindByTransaction(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) (*Earning, error)
	ListForced(ctx context.Context, db *gorm.DB, now time.Time, creatorID *snowflake.ID) ([]Earning, error)
	ListEligible(ctx context.Context, db *gorm.DB, now time.Time, creatorID *snowflake.ID) ([]Earning, error)
	ListByCreator(ctx context.Context, db *gorm.DB, creatorID snowflake.ID, statuses []EarningStatus) ([]Earning, error)
	ListByPayout(ctx context.Context, db *gorm.DB, payoutID snowflake.ID) ([]Earning, error)
	Claim(ctx context.Context, db *gorm.DB, ids []snowflake.ID, payoutID snowflake.ID, now time.Time) (int64, error)
	MarkPaidForPayout(ctx context.Context, db *gorm.DB, payoutID snowflake.ID, now time.Time) (int64, error)
}
