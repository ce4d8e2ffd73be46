package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Tier is one rung of the bonus ladder. Bonus is the flat amount paid when
// the tier is first reached within a period.
type Tier struct {
	Level     int             `json:"tier"`
	Threshold decimal.Decimal `json:"threshold"`
	Bonus     decimal.Decimal `json:"bonus"`
}

// TierTable is ordered by ascending threshold; entry 0 is the base tier.
type TierTable []Tier

// TierSource supplies the tier table in effect for the next sale.
type TierSource interface {
	Tiers() TierTable
}

// StaticTiers is a TierSource over a fixed table.
type StaticTiers TierTable

func (s StaticTiers) Tiers() TierTable {
	return TierTable(s)
}

func DefaultTierTable() TierTable {
	return TierTable{
		{Level: 0, Threshold: decimal.Zero, Bonus: decimal.Zero},
		{Level: 1, Threshold: decimal.NewFromInt(5000), Bonus: decimal.NewFromInt(50)},
		{Level: 2, Threshold: decimal.NewFromInt(10000), Bonus: decimal.NewFromInt(100)},
		{Level: 3, Threshold: decimal.NewFromInt(20000), Bonus: decimal.NewFromInt(200)},
		{Level: 4, Threshold: decimal.NewFromInt(30000), Bonus: decimal.NewFromInt(300)},
	}
}

// Validate checks the table shape the tracker relies on.
func (t TierTable) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("%w: table is empty", ErrInvalidTierTable)
	}
	if t[0].Level != 0 || !t[0].Threshold.IsZero() || !t[0].Bonus.IsZero() {
		return fmt.Errorf("%w: base tier must be level 0 with zero threshold and bonus", ErrInvalidTierTable)
	}
	for i := 1; i < len(t); i++ {
		prev, cur := t[i-1], t[i]
		if cur.Level <= prev.Level {
			return fmt.Errorf("%w: tier levels must ascend (index %d)", ErrInvalidTierTable, i)
		}
		if !cur.Threshold.GreaterThan(prev.Threshold) {
			return fmt.Errorf("%w: thresholds must ascend (tier %d)", ErrInvalidTierTable, cur.Level)
		}
		if cur.Bonus.IsNegative() {
			return fmt.Errorf("%w: negative bonus (tier %d)", ErrInvalidTierTable, cur.Level)
		}
	}
	return nil
}

// ForSales returns the highest tier whose threshold is at or below sales.
func (t TierTable) ForSales(sales decimal.Decimal) Tier {
	var match Tier
	for _, tier := range t {
		if tier.Threshold.GreaterThan(sales) {
			break
		}
		match = tier
	}
	return match
}

// ByLevel looks up a tier by its level.
func (t TierTable) ByLevel(level int) (Tier, bool) {
	for _, tier := range t {
		if tier.Level == level {
			return tier, true
		}
	}
	return Tier{}, false
}
