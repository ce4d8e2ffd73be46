package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/payout/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const payoutColumns = `id, creator_id, total_amount, earnings_amount, bonus_amount,
	earning_count, bonus_count, currency, status, reason, scheduled_at,
	dispatched_at, completed_at, failure_reason, actor_id, notes, metadata,
	created_at, updated_at`

func (r *repo) InsertPayout(ctx context.Context, db *gorm.DB, payout *domain.Payout) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payouts (`+payoutColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payout.ID,
		payout.CreatorID,
		payout.TotalAmount,
		payout.EarningsAmount,
		payout.BonusAmount,
		payout.EarningCount,
		payout.BonusCount,
		payout.Currency,
		payout.Status,
		payout.Reason,
		payout.ScheduledAt,
		payout.DispatchedAt,
		payout.CompletedAt,
		payout.FailureReason,
		payout.ActorID,
		payout.Notes,
		payout.Metadata,
		payout.CreatedAt,
		payout.UpdatedAt,
	).Error
}

// UpdateTotals rewrites the aggregate columns of a PENDING payout.
func (r *repo) UpdateTotals(ctx context.Context, db *gorm.DB, payout *domain.Payout, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payouts
		 SET total_amount = ?, earnings_amount = ?, bonus_amount = ?,
		     earning_count = ?, bonus_count = ?, metadata = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		payout.TotalAmount,
		payout.EarningsAmount,
		payout.BonusAmount,
		payout.EarningCount,
		payout.BonusCount,
		payout.Metadata,
		now,
		payout.ID,
		domain.PayoutStatusPending,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, payoutID snowflake.ID) (*domain.Payout, error) {
	return r.findByID(ctx, db, payoutID, "")
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, payoutID snowflake.ID) (*domain.Payout, error) {
	return r.findByID(ctx, db, payoutID, " FOR UPDATE")
}

func (r *repo) findByID(ctx context.Context, db *gorm.DB, payoutID snowflake.ID, lock string) (*domain.Payout, error) {
	var payout domain.Payout
	err := db.WithContext(ctx).Raw(
		`SELECT `+payoutColumns+` FROM payouts WHERE id = ?`+lock,
		payoutID,
	).Scan(&payout).Error
	if err != nil {
		return nil, err
	}
	if payout.ID == 0 {
		return nil, nil
	}
	return &payout, nil
}

func (r *repo) ListByStatus(ctx context.Context, db *gorm.DB, statuses []domain.PayoutStatus) ([]domain.Payout, error) {
	var payouts []domain.Payout
	err := db.WithContext(ctx).Raw(
		`SELECT `+payoutColumns+`
		 FROM payouts
		 WHERE status IN ?
		 ORDER BY scheduled_at ASC, id ASC`,
		statuses,
	).Scan(&payouts).Error
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

// LeaseUndispatched picks PENDING payouts that were never handed off and have
// not been touched since olderThan, and bumps updated_at so another worker
// skips them until the lease expires.
func (r *repo) LeaseUndispatched(ctx context.Context, db *gorm.DB, olderThan time.Time, now time.Time, limit int) ([]domain.Payout, error) {
	var leased []domain.Payout
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var payouts []domain.Payout
		if err := tx.Raw(
			`SELECT `+payoutColumns+`
			 FROM payouts
			 WHERE status = ? AND dispatched_at IS NULL AND updated_at <= ?
			 ORDER BY scheduled_at ASC, id ASC
			 LIMIT ?
			 FOR UPDATE SKIP LOCKED`,
			domain.PayoutStatusPending,
			olderThan,
			limit,
		).Scan(&payouts).Error; err != nil {
			return err
		}
		if len(payouts) == 0 {
			return nil
		}

		ids := make([]snowflake.ID, 0, len(payouts))
		for _, p := range payouts {
			ids = append(ids, p.ID)
		}
		if err := tx.Exec(
			`UPDATE payouts SET updated_at = ? WHERE id IN ? AND status = ?`,
			now,
			ids,
			domain.PayoutStatusPending,
		).Error; err != nil {
			return err
		}
		for i := range payouts {
			payouts[i].UpdatedAt = now
		}
		leased = payouts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return leased, nil
}

func (r *repo) MarkDispatched(ctx context.Context, db *gorm.DB, payoutID snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payouts
		 SET status = ?, dispatched_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.PayoutStatusProcessing,
		now,
		now,
		payoutID,
		domain.PayoutStatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) MarkCompleted(ctx context.Context, db *gorm.DB, payoutID snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payouts
		 SET status = ?, completed_at = ?, failure_reason = NULL, updated_at = ?
		 WHERE id = ? AND status IN ?`,
		domain.PayoutStatusCompleted,
		now,
		now,
		payoutID,
		[]domain.PayoutStatus{domain.PayoutStatusPending, domain.PayoutStatusProcessing},
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, payoutID snowflake.ID, reason string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payouts
		 SET status = ?, completed_at = ?, failure_reason = ?, updated_at = ?
		 WHERE id = ? AND status IN ?`,
		domain.PayoutStatusFailed,
		now,
		reason,
		now,
		payoutID,
		[]domain.PayoutStatus{domain.PayoutStatusPending, domain.PayoutStatusProcessing},
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) UpsertProfile(ctx context.Context, db *gorm.DB, profile *domain.CreatorPayoutProfile) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO creator_payout_profiles (
			creator_id, payout_method, payout_destination, minimum_payout, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (creator_id) DO UPDATE SET
			payout_method = EXCLUDED.payout_method,
			payout_destination = EXCLUDED.payout_destination,
			minimum_payout = EXCLUDED.minimum_payout,
			updated_at = EXCLUDED.updated_at`,
		profile.CreatorID,
		profile.PayoutMethod,
		profile.PayoutDestination,
		profile.MinimumPayout,
		profile.CreatedAt,
		profile.UpdatedAt,
	).Error
}

const profileColumns = `creator_id, payout_method, payout_destination, minimum_payout, created_at, updated_at`

func (r *repo) FindProfile(ctx context.Context, db *gorm.DB, creatorID snowflake.ID) (*domain.CreatorPayoutProfile, error) {
	var profile domain.CreatorPayoutProfile
	err := db.WithContext(ctx).Raw(
		`SELECT `+profileColumns+` FROM creator_payout_profiles WHERE creator_id = ?`,
		creatorID,
	).Scan(&profile).Error
	if err != nil {
		return nil, err
	}
	if profile.CreatorID == 0 {
		return nil, nil
	}
	return &profile, nil
}

func (r *repo) ListProfiles(ctx context.Context, db *gorm.DB, creatorIDs []snowflake.ID) ([]domain.CreatorPayoutProfile, error) {
	if len(creatorIDs) == 0 {
		return nil, nil
	}
	var profiles []domain.CreatorPayoutProfile
	err := db.WithContext(ctx).Raw(
		`SELECT `+profileColumns+` FROM creator_payout_profiles WHERE creator_id IN ?`,
		creatorIDs,
	).Scan(&profiles).Error
	if err != nil {
		return nil, err
	}
	return profiles, nil
}
