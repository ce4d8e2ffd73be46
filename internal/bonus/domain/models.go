package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// BonusPayoutStatus is the settlement state of an awarded bonus. A bonus that
// has been claimed into a payout keeps EARNED until the payout is confirmed.
type BonusPayoutStatus string

const (
	BonusPayoutStatusEarned BonusPayoutStatus = "EARNED"
	BonusPayoutStatusPaid   BonusPayoutStatus = "PAID"
)

func (s BonusPayoutStatus) Valid() bool {
	switch s {
	case BonusPayoutStatusEarned, BonusPayoutStatusPaid:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s BonusPayoutStatus) CanTransitionTo(next BonusPayoutStatus) bool {
	switch s {
	case BonusPayoutStatusEarned:
		return next == BonusPayoutStatusPaid
	case BonusPayoutStatusPaid:
		return false
	default:
		return false
	}
}

// BonusTracker is the per-creator running volume counter for the current
// bonus period.
type BonusTracker struct {
	ID                       snowflake.ID    `gorm:"primaryKey" json:"id"`
	CreatorID                snowflake.ID    `gorm:"not null;uniqueIndex" json:"creator_id"`
	CurrentPeriodStart       time.Time       `gorm:"not null" json:"current_period_start"`
	CurrentPeriodSales       decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"current_period_sales"`
	CurrentTier              int             `gorm:"not null" json:"current_tier"`
	CurrentTierBonus         decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"current_tier_bonus"`
	TotalCommissionableSales decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"total_commissionable_sales"`
	TotalBonusesEarned       decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"total_bonuses_earned"`
	IsPendingPayout          bool            `gorm:"not null" json:"is_pending_payout"`
	NextPayoutDate           *time.Time      `json:"next_payout_date,omitempty"`
	CreatedAt                time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt                time.Time       `gorm:"not null" json:"updated_at"`
}

func (BonusTracker) TableName() string { return "bonus_trackers" }

// BonusPayout is a flat bonus awarded when a tracker first reaches a tier in
// its current period.
type BonusPayout struct {
	ID                 snowflake.ID      `gorm:"primaryKey" json:"id"`
	CreatorID          snowflake.ID      `gorm:"not null;index" json:"creator_id"`
	BonusTrackerID     snowflake.ID      `gorm:"not null;index" json:"bonus_tracker_id"`
	TierAchieved       int               `gorm:"not null" json:"tier_achieved"`
	BonusAmount        decimal.Decimal   `gorm:"type:numeric(20,2);not null" json:"bonus_amount"`
	SalesVolumeAtAward decimal.Decimal   `gorm:"type:numeric(20,2);not null" json:"sales_volume_at_award"`
	PeriodStart        time.Time         `gorm:"not null" json:"period_start"`
	PeriodEnd          time.Time         `gorm:"not null" json:"period_end"`
	Status             BonusPayoutStatus `gorm:"type:text;not null" json:"status"`
	AvailableAt        time.Time         `gorm:"not null" json:"available_at"`
	PayoutID           *snowflake.ID     `json:"payout_id,omitempty"`
	ClaimedAt          *time.Time        `json:"claimed_at,omitempty"`
	PaidAt             *time.Time        `json:"paid_at,omitempty"`
	CreatedAt          time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time         `gorm:"not null" json:"updated_at"`
}

func (BonusPayout) TableName() string { return "bonus_payouts" }

// Claimed reports whether the bonus has been folded into a payout.
func (b BonusPayout) Claimed() bool {
	return b.PayoutID != nil
}

// SalesIncrement is the tracker state returned by the atomic sales update.
type SalesIncrement struct {
	TrackerID          snowflake.ID
	CurrentPeriodStart time.Time
	CurrentPeriodSales decimal.Decimal
	CurrentTier        int
}
