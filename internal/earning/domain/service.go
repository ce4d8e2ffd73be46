package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Service is the earning ledger. Methods that accept a *gorm.DB run on that
// handle so the payout builder can claim inside its own transaction.
type Service interface {
	RecordEarning(ctx context.Context, txn Transaction) (*Earning, error)
	GetByTransaction(ctx context.Context, transactionID snowflake.ID) (*Earning, error)
	ListClaimable(ctx context.Context, now time.Time) (Claimable, error)
	ListClaimableForCreator(ctx context.Context, creatorID snowflake.ID, now time.Time) (Claimable, error)
	ListByCreator(ctx context.Context, creatorID snowflake.ID, statuses ...EarningStatus) ([]Earning, error)
	Claim(ctx context.Context, tx *gorm.DB, earningIDs []snowflake.ID, payoutID snowflake.ID) (int64, error)
	ListByPayout(ctx context.Context, tx *gorm.DB, payoutID snowflake.ID) ([]Earning, error)
	MarkPaidForPayout(ctx context.Context, tx *gorm.DB, payoutID snowflake.ID) (int64, error)
}

var (
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidCreator     = errors.New("invalid_creator")
	ErrInvalidTransaction = errors.New("invalid_transaction")
	ErrPersistence        = errors.New("persistence_error")
	ErrInvalidTransition  = errors.New("invalid_earning_transition")
)
