package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	BuildBatch(ctx context.Context, now time.Time) (BatchPlan, error)
	BuildManualIntent(ctx context.Context, creatorID snowflake.ID, now time.Time, actorID, notes string) (*PayoutIntent, error)
	Materialize(ctx context.Context, intent PayoutIntent, now time.Time) (*Payout, error)
	MarkDispatched(ctx context.Context, payoutID snowflake.ID) (*Payout, error)
	LeaseUndispatched(ctx context.Context, olderThan time.Time, limit int) ([]Payout, error)
	MarkPayoutComplete(ctx context.Context, payoutID snowflake.ID, outcome Outcome) (*Payout, error)

	GetPayout(ctx context.Context, payoutID snowflake.ID) (*Payout, error)
	GetAllPendingPayouts(ctx context.Context) ([]Payout, error)
	GetCreatorPayoutStatus(ctx context.Context, creatorID snowflake.ID) (*CreatorPayoutStatus, error)

	SetPayoutProfile(ctx context.Context, req SetPayoutProfileRequest) (*CreatorPayoutProfile, error)
	GetPayoutProfile(ctx context.Context, creatorID snowflake.ID) (*CreatorPayoutProfile, error)
}

type SetPayoutProfileRequest struct {
	CreatorID     snowflake.ID
	PayoutMethod  string
	Destination   string
	MinimumPayout *string
}

var (
	ErrInvalidCreator      = errors.New("invalid_creator")
	ErrConcurrencyConflict = errors.New("payout_concurrency_conflict")
	ErrPayoutBlocked       = errors.New("payout_blocked")
	ErrNoClaimableEarnings = errors.New("no_claimable_earnings")
	ErrPayoutNotFound      = errors.New("payout_not_found")
	ErrInvalidTransition   = errors.New("invalid_payout_transition")
	ErrInvalidOutcome      = errors.New("invalid_payout_outcome")
	ErrInvalidProfile      = errors.New("invalid_payout_profile")
)
