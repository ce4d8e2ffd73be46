package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/earning/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const earningColumns = `id, creator_id, transaction_id, gross_amount, platform_fee, net_amount,
	is_commissionable, earned_at, eligible_at, locked_until, status, payout_id,
	claimed_at, paid_at, created_at, updated_at`

// InsertIfAbsent inserts earning unless one already exists for its
// transaction. The boolean reports whether a row was written.
func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, earning *domain.Earning) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO earnings (`+earningColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (transaction_id) DO NOTHING`,
		earning.ID,
		earning.CreatorID,
		earning.TransactionID,
		earning.GrossAmount,
		earning.PlatformFee,
		earning.NetAmount,
		earning.IsCommissionable,
		earning.EarnedAt,
		earning.EligibleAt,
		earning.LockedUntil,
		earning.Status,
		earning.PayoutID,
		earning.ClaimedAt,
		earning.PaidAt,
		earning.CreatedAt,
		earning.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) FindByTransaction(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) (*domain.Earning, error) {
	var earning domain.Earning
	err := db.WithContext(ctx).Raw(
		`SELECT `+earningColumns+` FROM earnings WHERE transaction_id = ?`,
		transactionID,
	).Scan(&earning).Error
	if err != nil {
		return nil, err
	}
	if earning.ID == 0 {
		return nil, nil
	}
	return &earning, nil
}

// ListForced returns LOCKED earnings whose lock date has passed.
func (r *repo) ListForced(ctx context.Context, db *gorm.DB, now time.Time, creatorID *snowflake.ID) ([]domain.Earning, error) {
	query := `SELECT ` + earningColumns + `
		 FROM earnings
		 WHERE status = ? AND locked_until <= ?`
	args := []any{domain.EarningStatusLocked, now}
	if creatorID != nil {
		query += ` AND creator_id = ?`
		args = append(args, *creatorID)
	}
	query += ` ORDER BY creator_id ASC, earned_at ASC, id ASC`

	var earnings []domain.Earning
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&earnings).Error; err != nil {
		return nil, err
	}
	return earnings, nil
}

// ListEligible returns LOCKED earnings past their holding period that are
// not yet forced.
func (r *repo) ListEligible(ctx context.Context, db *gorm.DB, now time.Time, creatorID *snowflake.ID) ([]domain.Earning, error) {
	query := `SELECT ` + earningColumns + `
		 FROM earnings
		 WHERE status = ? AND eligible_at <= ? AND locked_until > ?`
	args := []any{domain.EarningStatusLocked, now, now}
	if creatorID != nil {
		query += ` AND creator_id = ?`
		args = append(args, *creatorID)
	}
	query += ` ORDER BY creator_id ASC, earned_at ASC, id ASC`

	var earnings []domain.Earning
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&earnings).Error; err != nil {
		return nil, err
	}
	return earnings, nil
}

func (r *repo) ListByCreator(ctx context.Context, db *gorm.DB, creatorID snowflake.ID, statuses []domain.EarningStatus) ([]domain.Earning, error) {
	query := `SELECT ` + earningColumns + ` FROM earnings WHERE creator_id = ?`
	args := []any{creatorID}
	if len(statuses) > 0 {
		query += ` AND status IN ?`
		args = append(args, statuses)
	}
	query += ` ORDER BY earned_at DESC, id DESC`

	var earnings []domain.Earning
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&earnings).Error; err != nil {
		return nil, err
	}
	return earnings, nil
}

func (r *repo) ListByPayout(ctx context.Context, db *gorm.DB, payoutID snowflake.ID) ([]domain.Earning, error) {
	var earnings []domain.Earning
	err := db.WithContext(ctx).Raw(
		`SELECT `+earningColumns+`
		 FROM earnings
		 WHERE payout_id = ?
		 ORDER BY earned_at ASC, id ASC`,
		payoutID,
	).Scan(&earnings).Error
	if err != nil {
		return nil, err
	}
	return earnings, nil
}

// Claim moves LOCKED earnings to PENDING_PAYOUT under payoutID. Earnings
// already claimed elsewhere are skipped, so the returned count may be short.
func (r *repo) Claim(ctx context.Context, db *gorm.DB, ids []snowflake.ID, payoutID snowflake.ID, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE earnings
		 SET status = ?, payout_id = ?, claimed_at = ?, updated_at = ?
		 WHERE id IN ? AND status = ? AND payout_id IS NULL`,
		domain.EarningStatusPendingPayout,
		payoutID,
		now,
		now,
		ids,
		domain.EarningStatusLocked,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) MarkPaidForPayout(ctx context.Context, db *gorm.DB, payoutID snowflake.ID, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE earnings
		 SET status = ?, paid_at = ?, updated_at = ?
		 WHERE payout_id = ? AND status = ?`,
		domain.EarningStatusPaid,
		now,
		now,
		payoutID,
		domain.EarningStatusPendingPayout,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
