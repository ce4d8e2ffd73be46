package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	bonusdomain "github.com/mygitzaki/zylike-creator-platform-sub001/internal/bonus/domain"
	earningdomain "github.com/mygitzaki/zylike-creator-platform-sub001/internal/earning/domain"
)

type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "PENDING"
	PayoutStatusProcessing PayoutStatus = "PROCESSING"
	PayoutStatusCompleted  PayoutStatus = "COMPLETED"
	PayoutStatusFailed     PayoutStatus = "FAILED"
)

func (s PayoutStatus) Valid() bool {
	switch s {
	case PayoutStatusPending, PayoutStatusProcessing, PayoutStatusCompleted, PayoutStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is allowed.
func (s PayoutStatus) IsTerminal() bool {
	return s == PayoutStatusCompleted || s == PayoutStatusFailed
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s PayoutStatus) CanTransitionTo(next PayoutStatus) bool {
	switch s {
	case PayoutStatusPending:
		switch next {
		case PayoutStatusProcessing, PayoutStatusCompleted, PayoutStatusFailed:
			return true
		}
		return false
	case PayoutStatusProcessing:
		return next == PayoutStatusCompleted || next == PayoutStatusFailed
	case PayoutStatusCompleted, PayoutStatusFailed:
		return false
	default:
		return false
	}
}

type PayoutReason string

const (
	PayoutReasonForcedLockExpiry PayoutReason = "FORCED_LOCK_EXPIRY"
	PayoutReasonThresholdMet     PayoutReason = "THRESHOLD_MET"
	PayoutReasonManualAdmin      PayoutReason = "MANUAL_ADMIN"
)

func (r PayoutReason) Valid() bool {
	switch r {
	case PayoutReasonForcedLockExpiry, PayoutReasonThresholdMet, PayoutReasonManualAdmin:
		return true
	default:
		return false
	}
}

// BlockedReason explains why a creator with claimable funds was skipped.
type BlockedReason string

const (
	BlockedReasonMissingDestination BlockedReason = "MISSING_PAYMENT_DESTINATION"
)

// Payout is one disbursement to one creator, aggregating the earnings and
// bonuses claimed into it.
type Payout struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	CreatorID      snowflake.ID      `gorm:"not null;index" json:"creator_id"`
	TotalAmount    decimal.Decimal   `gorm:"type:numeric(20,2);not null" json:"total_amount"`
	EarningsAmount decimal.Decimal   `gorm:"type:numeric(20,2);not null" json:"earnings_amount"`
	BonusAmount    decimal.Decimal   `gorm:"type:numeric(20,2);not null" json:"bonus_amount"`
	EarningCount   int               `gorm:"not null" json:"earning_count"`
	BonusCount     int               `gorm:"not null" json:"bonus_count"`
	Currency       string            `gorm:"type:text;not null" json:"currency"`
	Status         PayoutStatus      `gorm:"type:text;not null" json:"status"`
	Reason         PayoutReason      `gorm:"type:text;not null" json:"reason"`
	ScheduledAt    time.Time         `gorm:"not null" json:"scheduled_at"`
	DispatchedAt   *time.Time        `json:"dispatched_at,omitempty"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	FailureReason  *string           `json:"failure_reason,omitempty"`
	ActorID        *string           `json:"actor_id,omitempty"`
	Notes          *string           `json:"notes,omitempty"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt      time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"not null" json:"updated_at"`
}

func (Payout) TableName() string { return "payouts" }

// CreatorPayoutProfile holds where and above what amount a creator is paid.
type CreatorPayoutProfile struct {
	CreatorID         snowflake.ID        `gorm:"primaryKey" json:"creator_id"`
	PayoutMethod      string              `gorm:"type:text;not null" json:"payout_method"`
	PayoutDestination *string             `json:"payout_destination,omitempty"`
	MinimumPayout     decimal.NullDecimal `gorm:"type:numeric(20,2)" json:"minimum_payout"`
	CreatedAt         time.Time           `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time           `gorm:"not null" json:"updated_at"`
}

func (CreatorPayoutProfile) TableName() string { return "creator_payout_profiles" }

// HasDestination reports whether funds can be sent anywhere.
func (p *CreatorPayoutProfile) HasDestination() bool {
	return p != nil && p.PayoutDestination != nil && *p.PayoutDestination != ""
}

// PayoutIntent is a planned payout for one creator, not yet persisted.
type PayoutIntent struct {
	CreatorID      snowflake.ID
	Reason         PayoutReason
	Earnings       []earningdomain.Earning
	Bonuses        []bonusdomain.BonusPayout
	EarningsAmount decimal.Decimal
	BonusAmount    decimal.Decimal
	TotalAmount    decimal.Decimal
	MinimumPayout  decimal.Decimal
	Currency       string
	PayoutMethod   string
	Destination    string
	ActorID        string
	Notes          string
}

func (i PayoutIntent) EarningIDs() []snowflake.ID {
	ids := make([]snowflake.ID, 0, len(i.Earnings))
	for _, e := range i.Earnings {
		ids = append(ids, e.ID)
	}
	return ids
}

func (i PayoutIntent) BonusIDs() []snowflake.ID {
	ids := make([]snowflake.ID, 0, len(i.Bonuses))
	for _, b := range i.Bonuses {
		ids = append(ids, b.ID)
	}
	return ids
}

// BlockedCreator is a creator left out of a batch for a reportable reason.
type BlockedCreator struct {
	CreatorID snowflake.ID  `json:"creator_id"`
	Reason    BlockedReason `json:"reason"`
}

// BatchPlan is the result of planning a scheduled run.
type BatchPlan struct {
	Intents               []PayoutIntent
	Blocked               []BlockedCreator
	SkippedBelowThreshold []snowflake.ID
}

// Outcome is the disbursement result reported by the payment rail.
type Outcome struct {
	Success       bool
	FailureReason string
}

// CreatorPayoutStatus is the creator dashboard summary. Locked, eligible and
// pending amounts are kept apart so the dashboard never merges them.
type CreatorPayoutStatus struct {
	CreatorID             snowflake.ID    `json:"creator_id"`
	Currency              string          `json:"currency"`
	LockedAmount          decimal.Decimal `json:"locked_amount"`
	EligibleAmount        decimal.Decimal `json:"eligible_amount"`
	ForcedAmount          decimal.Decimal `json:"forced_amount"`
	PendingAmount         decimal.Decimal `json:"pending_amount"`
	PendingBonusAmount    decimal.Decimal `json:"pending_bonus_amount"`
	ClaimedBonusAmount    decimal.Decimal `json:"claimed_bonus_amount"`
	PaidAmount            decimal.Decimal `json:"paid_amount"`
	MinimumPayout         decimal.Decimal `json:"minimum_payout"`
	BelowThreshold        bool            `json:"below_threshold"`
	HasPaymentDestination bool            `json:"has_payment_destination"`
	CurrentTier           int             `json:"current_tier"`
	CurrentPeriodSales    decimal.Decimal `json:"current_period_sales"`
	NextPayoutDate        time.Time       `json:"next_payout_date"`
	WillBePaidNextCycle   bool            `json:"will_be_paid_next_cycle"`
}
