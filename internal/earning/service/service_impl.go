package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	bonusdomain "github.com/mygitzaki/zylike-creator-platform-sub001/internal/bonus/domain"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/clock"
	earningdomain "github.com/mygitzaki/zylike-creator-platform-sub001/internal/earning/domain"
	obsmetrics "github.com/mygitzaki/zylike-creator-platform-sub001/internal/observability/metrics"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/schedule"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       earningdomain.Repository
	BonusSvc   bonusdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       earningdomain.Repository
	bonusSvc   bonusdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) earningdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("earning.service"),
		genID:      p.GenID,
		clock:      clk,
		repo:       p.Repo,
		bonusSvc:   p.BonusSvc,
		obsMetrics: p.ObsMetrics,
	}
}

// RecordEarning creates the LOCKED earning for a confirmed transaction. A
// transaction that already has an earning returns it unchanged. Bonus volume
// is tracked only for newly recorded commissionable earnings, and a bonus
// failure, including a rejected non-positive sale amount, is logged and never
// undoes the earning.
func (s *Service) RecordEarning(ctx context.Context, txn earningdomain.Transaction) (*earningdomain.Earning, error) {
	if txn.CreatorID == 0 {
		return nil, earningdomain.ErrInvalidCreator
	}
	if txn.ID == 0 {
		return nil, earningdomain.ErrInvalidTransaction
	}
	if txn.CreatorPayout.IsNegative() || txn.GrossAmount.IsNegative() || txn.PlatformFee.IsNegative() {
		return nil, earningdomain.ErrInvalidAmount
	}

	now := s.clock.Now()
	earnedAt := txn.CreatedAt.UTC()
	if txn.CreatedAt.IsZero() {
		earnedAt = now
	}
	eligibleAt, lockedUntil := schedule.ComputeEligibility(earnedAt)

	earning := &earningdomain.Earning{
		ID:               s.genID.Generate(),
		CreatorID:        txn.CreatorID,
		TransactionID:    txn.ID,
		GrossAmount:      txn.GrossAmount,
		PlatformFee:      txn.PlatformFee,
		NetAmount:        txn.CreatorPayout,
		IsCommissionable: txn.IsCommissionable,
		EarnedAt:         earnedAt,
		EligibleAt:       eligibleAt,
		LockedUntil:      lockedUntil,
		Status:           earningdomain.EarningStatusLocked,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	inserted, err := s.repo.InsertIfAbsent(ctx, s.db, earning)
	if err != nil {
		return nil, fmt.Errorf("%w: insert earning: %w", earningdomain.ErrPersistence, err)
	}
	if !inserted {
		existing, err := s.repo.FindByTransaction(ctx, s.db, txn.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: load earning: %w", earningdomain.ErrPersistence, err)
		}
		if existing == nil {
			return nil, fmt.Errorf("%w: earning for transaction %s vanished", earningdomain.ErrPersistence, txn.ID)
		}
		s.log.Debug("earning already recorded",
			zap.String("transaction_id", txn.ID.String()),
			zap.String("earning_id", existing.ID.String()),
		)
		return existing, nil
	}

	s.log.Info("earning.recorded",
		zap.String("earning_id", earning.ID.String()),
		zap.String("creator_id", earning.CreatorID.String()),
		zap.String("transaction_id", earning.TransactionID.String()),
		zap.String("net_amount", earning.NetAmount.StringFixed(2)),
		zap.Bool("commissionable", earning.IsCommissionable),
		zap.Time("locked_until", earning.LockedUntil),
	)
	s.obsMetrics.RecordEarning(ctx, earning.IsCommissionable)

	if earning.IsCommissionable && s.bonusSvc != nil {
		if _, err := s.bonusSvc.RecordCommissionableSale(ctx, txn.CreatorID, txn.GrossAmount); err != nil {
			s.log.Warn("bonus tracking failed for earning",
				zap.String("earning_id", earning.ID.String()),
				zap.String("creator_id", earning.CreatorID.String()),
				zap.String("gross_amount", txn.GrossAmount.StringFixed(2)),
				zap.Error(err),
			)
		}
	}

	return earning, nil
}

func (s *Service) GetByTransaction(ctx context.Context, transactionID snowflake.ID) (*earningdomain.Earning, error) {
	if transactionID == 0 {
		return nil, earningdomain.ErrInvalidTransaction
	}
	return s.repo.FindByTransaction(ctx, s.db, transactionID)
}

func (s *Service) ListClaimable(ctx context.Context, now time.Time) (earningdomain.Claimable, error) {
	return s.listClaimable(ctx, now, nil)
}

func (s *Service) ListClaimableForCreator(ctx context.Context, creatorID snowflake.ID, now time.Time) (earningdomain.Claimable, error) {
	if creatorID == 0 {
		return earningdomain.Claimable{}, earningdomain.ErrInvalidCreator
	}
	return s.listClaimable(ctx, now, &creatorID)
}

// listClaimable compares against UTC timestamps, so now is normalized first.
func (s *Service) listClaimable(ctx context.Context, now time.Time, creatorID *snowflake.ID) (earningdomain.Claimable, error) {
	now = now.UTC()
	forced, err := s.repo.ListForced(ctx, s.db, now, creatorID)
	if err != nil {
		return earningdomain.Claimable{}, fmt.Errorf("list forced earnings: %w", err)
	}
	eligible, err := s.repo.ListEligible(ctx, s.db, now, creatorID)
	if err != nil {
		return earningdomain.Claimable{}, fmt.Errorf("list eligible earnings: %w", err)
	}
	return earningdomain.Claimable{Forced: forced, Eligible: eligible}, nil
}

func (s *Service) ListByCreator(ctx context.Context, creatorID snowflake.ID, statuses ...earningdomain.EarningStatus) ([]earningdomain.Earning, error) {
	if creatorID == 0 {
		return nil, earningdomain.ErrInvalidCreator
	}
	for _, status := range statuses {
		if !status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", earningdomain.ErrInvalidTransition, status)
		}
	}
	return s.repo.ListByCreator(ctx, s.db, creatorID, statuses)
}

// Claim transitions LOCKED earnings to PENDING_PAYOUT under payoutID and
// returns how many rows actually moved. Callers compare the count to
// len(earningIDs) to detect a concurrent claim.
func (s *Service) Claim(ctx context.Context, tx *gorm.DB, earningIDs []snowflake.ID, payoutID snowflake.ID) (int64, error) {
	if payoutID == 0 {
		return 0, fmt.Errorf("%w: missing payout id", earningdomain.ErrInvalidTransition)
	}
	return s.repo.Claim(ctx, s.handle(tx), earningIDs, payoutID, s.clock.Now())
}

func (s *Service) ListByPayout(ctx context.Context, tx *gorm.DB, payoutID snowflake.ID) ([]earningdomain.Earning, error) {
	return s.repo.ListByPayout(ctx, s.handle(tx), payoutID)
}

func (s *Service) MarkPaidForPayout(ctx context.Context, tx *gorm.DB, payoutID snowflake.ID) (int64, error) {
	return s.repo.MarkPaidForPayout(ctx, s.handle(tx), payoutID, s.clock.Now())
}

func (s *Service) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}
