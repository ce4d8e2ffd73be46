package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// EarningStatus tracks an earning from recording to settlement. Status only
// moves forward: LOCKED -> PENDING_PAYOUT -> PAID.
type EarningStatus string

const (
	EarningStatusLocked        EarningStatus = "LOCKED"
	EarningStatusPendingPayout EarningStatus = "PENDING_PAYOUT"
	EarningStatusPaid          EarningStatus = "PAID"
)

func (s EarningStatus) Valid() bool {
	switch s {
	case EarningStatusLocked, EarningStatusPendingPayout, EarningStatusPaid:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether next is the legal successor of s.
func (s EarningStatus) CanTransitionTo(next EarningStatus) bool {
	switch s {
	case EarningStatusLocked:
		return next == EarningStatusPendingPayout
	case EarningStatusPendingPayout:
		return next == EarningStatusPaid
	case EarningStatusPaid:
		return false
	default:
		return false
	}
}

// Transaction is a confirmed sale handed over by the transaction collaborator.
type Transaction struct {
	ID               snowflake.ID
	CreatorID        snowflake.ID
	GrossAmount      decimal.Decimal
	PlatformFee      decimal.Decimal
	CreatorPayout    decimal.Decimal
	IsCommissionable bool
	CreatedAt        time.Time
}

// Earning is the creator-owed share of exactly one transaction.
type Earning struct {
	ID               snowflake.ID    `gorm:"primaryKey" json:"id"`
	CreatorID        snowflake.ID    `gorm:"not null;index" json:"creator_id"`
	TransactionID    snowflake.ID    `gorm:"not null;uniqueIndex" json:"transaction_id"`
	GrossAmount      decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"gross_amount"`
	PlatformFee      decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"platform_fee"`
	NetAmount        decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"net_amount"`
	IsCommissionable bool            `gorm:"not null" json:"is_commissionable"`
	EarnedAt         time.Time       `gorm:"not null" json:"earned_at"`
	EligibleAt       time.Time       `gorm:"not null" json:"eligible_at"`
	LockedUntil      time.Time       `gorm:"not null" json:"locked_until"`
	Status           EarningStatus   `gorm:"type:text;not null" json:"status"`
	PayoutID         *snowflake.ID   `json:"payout_id,omitempty"`
	ClaimedAt        *time.Time      `json:"claimed_at,omitempty"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	CreatedAt        time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"not null" json:"updated_at"`
}

func (Earning) TableName() string { return "earnings" }

// IsForced reports whether the earning has passed its hard lock date.
func (e Earning) IsForced(now time.Time) bool {
	return e.Status == EarningStatusLocked && !e.LockedUntil.After(now)
}

// IsEligible reports whether the earning is past its holding period but
// still within the lock window.
func (e Earning) IsEligible(now time.Time) bool {
	return e.Status == EarningStatusLocked && !e.EligibleAt.After(now) && e.LockedUntil.After(now)
}

// Claimable splits LOCKED earnings into those that must be paid and those
// that may be paid once the creator meets their minimum.
type Claimable struct {
	Forced   []Earning
	Eligible []Earning
}

// Empty reports whether nothing is claimable.
func (c Claimable) Empty() bool {
	return len(c.Forced) == 0 && len(c.Eligible) == 0
}

// All returns forced earnings followed by eligible ones.
func (c Claimable) All() []Earning {
	out := make([]Earning, 0, len(c.Forced)+len(c.Eligible))
	out = append(out, c.Forced...)
	return append(out, c.Eligible...)
}

// SumNet totals the net amount of earnings.
func SumNet(earnings []Earning) decimal.Decimal {
	total := decimal.Zero
	for _, e := range earnings {
		total = total.Add(e.NetAmount)
	}
	return total
}
