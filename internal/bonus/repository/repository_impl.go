package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/bonus/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const bonusPayoutColumns = `id, creator_id, bonus_tracker_id, tier_achieved, bonus_amount,
	sales_volume_at_award, period_start, period_end, status, available_at,
	payout_id, claimed_at, paid_at, created_at, updated_at`

func (r *repo) EnsureTracker(ctx context.Context, db *gorm.DB, tracker *domain.BonusTracker) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO bonus_trackers (
			id, creator_id, current_period_start, current_period_sales, current_tier,
			current_tier_bonus, total_commissionable_sales, total_bonuses_earned,
			is_pending_payout, next_payout_date, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (creator_id) DO NOTHING`,
		tracker.ID,
		tracker.CreatorID,
		tracker.CurrentPeriodStart,
		tracker.CurrentPeriodSales,
		tracker.CurrentTier,
		tracker.CurrentTierBonus,
		tracker.TotalCommissionableSales,
		tracker.TotalBonusesEarned,
		tracker.IsPendingPayout,
		tracker.NextPayoutDate,
		tracker.CreatedAt,
		tracker.UpdatedAt,
	).Error
}

func (r *repo) FindTrackerByCreator(ctx context.Context, db *gorm.DB, creatorID snowflake.ID) (*domain.BonusTracker, error) {
	return r.findTracker(ctx, db, creatorID, "")
}

// LockTrackerByCreator loads the tracker and holds its row lock until the
// caller's transaction ends.
func (r *repo) LockTrackerByCreator(ctx context.Context, db *gorm.DB, creatorID snowflake.ID) (*domain.BonusTracker, error) {
	return r.findTracker(ctx, db, creatorID, " FOR UPDATE")
}

func (r *repo) findTracker(ctx context.Context, db *gorm.DB, creatorID snowflake.ID, lockClause string) (*domain.BonusTracker, error) {
	var tracker domain.BonusTracker
	err := db.WithContext(ctx).Raw(
		`SELECT id, creator_id, current_period_start, current_period_sales, current_tier,
		        current_tier_bonus, total_commissionable_sales, total_bonuses_earned,
		        is_pending_payout, next_payout_date, created_at, updated_at
		 FROM bonus_trackers WHERE creator_id = ?`+lockClause,
		creatorID,
	).Scan(&tracker).Error
	if err != nil {
		return nil, err
	}
	if tracker.ID == 0 {
		return nil, nil
	}
	return &tracker, nil
}

// AddPeriodSales increments the period and lifetime volume in a single
// statement and returns the post-increment state. The update takes the row
// lock, which the caller's transaction holds until commit.
func (r *repo) AddPeriodSales(ctx context.Context, db *gorm.DB, creatorID snowflake.ID, amount decimal.Decimal, now time.Time) (*domain.SalesIncrement, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE bonus_trackers
		 SET current_period_sales = current_period_sales + CAST(? AS NUMERIC),
		     total_commissionable_sales = total_commissionable_sales + CAST(? AS NUMERIC),
		     updated_at = ?
		 WHERE creator_id = ?`,
		amount,
		amount,
		now,
		creatorID,
	)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	tracker, err := r.FindTrackerByCreator(ctx, db, creatorID)
	if err != nil || tracker == nil {
		return nil, err
	}
	return &domain.SalesIncrement{
		TrackerID:          tracker.ID,
		CurrentPeriodStart: tracker.CurrentPeriodStart,
		CurrentPeriodSales: tracker.CurrentPeriodSales,
		CurrentTier:        tracker.CurrentTier,
	}, nil
}

// AdvanceTier moves the tracker to tier only when that is a strict increase.
func (r *repo) AdvanceTier(ctx context.Context, db *gorm.DB, trackerID snowflake.ID, tier domain.Tier, nextPayoutDate time.Time, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE bonus_trackers
		 SET current_tier = ?,
		     current_tier_bonus = ?,
		     total_bonuses_earned = total_bonuses_earned + CAST(? AS NUMERIC),
		     is_pending_payout = (is_pending_payout OR ?),
		     next_payout_date = ?,
		     updated_at = ?
		 WHERE id = ? AND current_tier < ?`,
		tier.Level,
		tier.Bonus,
		tier.Bonus,
		tier.Bonus.IsPositive(),
		nextPayoutDate,
		now,
		trackerID,
		tier.Level,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ResetPeriod zeroes the period counters unless the tracker still has an
// EARNED bonus. The guard is part of the update so a bonus committed by a
// concurrent sale cannot be wiped between check and write.
func (r *repo) ResetPeriod(ctx context.Context, db *gorm.DB, trackerID snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE bonus_trackers
		 SET current_period_start = ?,
		     current_period_sales = 0,
		     current_tier = 0,
		     current_tier_bonus = 0,
		     is_pending_payout = ?,
		     updated_at = ?
		 WHERE id = ?
		   AND NOT EXISTS (
		       SELECT 1 FROM bonus_payouts
		       WHERE bonus_tracker_id = ? AND status = ?
		   )`,
		now,
		false,
		now,
		trackerID,
		trackerID,
		domain.BonusPayoutStatusEarned,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) InsertBonusPayout(ctx context.Context, db *gorm.DB, bonus *domain.BonusPayout) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO bonus_payouts (`+bonusPayoutColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		bonus.ID,
		bonus.CreatorID,
		bonus.BonusTrackerID,
		bonus.TierAchieved,
		bonus.BonusAmount,
		bonus.SalesVolumeAtAward,
		bonus.PeriodStart,
		bonus.PeriodEnd,
		bonus.Status,
		bonus.AvailableAt,
		bonus.PayoutID,
		bonus.ClaimedAt,
		bonus.PaidAt,
		bonus.CreatedAt,
		bonus.UpdatedAt,
	).Error
}

func (r *repo) ListClaimable(ctx context.Context, db *gorm.DB, now time.Time, creatorID *snowflake.ID) ([]domain.BonusPayout, error) {
	query := `SELECT ` + bonusPayoutColumns + `
		 FROM bonus_payouts
		 WHERE status = ? AND available_at <= ? AND payout_id IS NULL`
	args := []any{domain.BonusPayoutStatusEarned, now}
	if creatorID != nil {
		query += ` AND creator_id = ?`
		args = append(args, *creatorID)
	}
	query += ` ORDER BY creator_id ASC, available_at ASC, id ASC`

	var bonuses []domain.BonusPayout
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&bonuses).Error; err != nil {
		return nil, err
	}
	return bonuses, nil
}

func (r *repo) ListOutstanding(ctx context.Context, db *gorm.DB, creatorID snowflake.ID) ([]domain.BonusPayout, error) {
	var bonuses []domain.BonusPayout
	err := db.WithContext(ctx).Raw(
		`SELECT `+bonusPayoutColumns+`
		 FROM bonus_payouts
		 WHERE creator_id = ? AND status = ?
		 ORDER BY available_at ASC, id ASC`,
		creatorID,
		domain.BonusPayoutStatusEarned,
	).Scan(&bonuses).Error
	if err != nil {
		return nil, err
	}
	return bonuses, nil
}

func (r *repo) ListByPayout(ctx context.Context, db *gorm.DB, payoutID snowflake.ID) ([]domain.BonusPayout, error) {
	var bonuses []domain.BonusPayout
	err := db.WithContext(ctx).Raw(
		`SELECT `+bonusPayoutColumns+`
		 FROM bonus_payouts
		 WHERE payout_id = ?
		 ORDER BY id ASC`,
		payoutID,
	).Scan(&bonuses).Error
	if err != nil {
		return nil, err
	}
	return bonuses, nil
}

// Claim attaches unclaimed EARNED bonuses to payoutID. Rows already claimed
// by another payout are left untouched and not counted.
func (r *repo) Claim(ctx context.Context, db *gorm.DB, ids []snowflake.ID, payoutID snowflake.ID, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE bonus_payouts
		 SET payout_id = ?, claimed_at = ?, updated_at = ?
		 WHERE id IN ? AND status = ? AND payout_id IS NULL`,
		payoutID,
		now,
		now,
		ids,
		domain.BonusPayoutStatusEarned,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) MarkPaidForPayout(ctx context.Context, db *gorm.DB, payoutID snowflake.ID, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE bonus_payouts
		 SET status = ?, paid_at = ?, updated_at = ?
		 WHERE payout_id = ? AND status = ?`,
		domain.BonusPayoutStatusPaid,
		now,
		now,
		payoutID,
		domain.BonusPayoutStatusEarned,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
