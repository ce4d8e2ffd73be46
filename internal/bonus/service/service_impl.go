package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	bonusdomain "github.com/mygitzaki/zylike-creator-platform-sub001/internal/bonus/domain"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/clock"
	obsmetrics "github.com/mygitzaki/zylike-creator-platform-sub001/internal/observability/metrics"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/schedule"
	"github.com/mygitzaki/zylike-creator-platform-sub001/pkg/db"
	"github.com/shopspring/decimal"
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
	Repo       bonusdomain.Repository
	Tiers      bonusdomain.TierSource
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       bonusdomain.Repository
	tiers      bonusdomain.TierSource
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) bonusdomain.Service {
	tiers := p.Tiers
	if tiers == nil {
		tiers = bonusdomain.StaticTiers(bonusdomain.DefaultTierTable())
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("bonus.service"),
		genID:      p.GenID,
		clock:      clk,
		repo:       p.Repo,
		tiers:      tiers,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) TierForSales(sales decimal.Decimal) bonusdomain.Tier {
	return s.tiers.Tiers().ForSales(sales)
}

// RecordCommissionableSale adds amount to the creator's period volume and
// awards the bonus for a newly reached tier. The tracker row stays locked
// from the increment until commit, so concurrent sales for one creator
// serialize and a tier is awarded at most once per period.
func (s *Service) RecordCommissionableSale(ctx context.Context, creatorID snowflake.ID, amount decimal.Decimal) (bonusdomain.SaleResult, error) {
	if creatorID == 0 {
		return bonusdomain.SaleResult{}, bonusdomain.ErrInvalidCreator
	}
	if !amount.IsPositive() {
		return bonusdomain.SaleResult{}, bonusdomain.ErrInvalidAmount
	}

	tiers := s.tiers.Tiers()
	now := s.clock.Now()

	var result bonusdomain.SaleResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result = bonusdomain.SaleResult{}
		if err := s.repo.EnsureTracker(ctx, tx, s.newTracker(creatorID, now)); err != nil {
			return err
		}

		inc, err := s.repo.AddPeriodSales(ctx, tx, creatorID, amount, now)
		if err != nil {
			return err
		}
		if inc == nil {
			return bonusdomain.ErrTrackerNotFound
		}

		result.NewSales = inc.CurrentPeriodSales
		result.BonusEarned = decimal.Zero
		result.NewTier = currentTier(tiers, inc.CurrentTier)

		reached := tiers.ForSales(inc.CurrentPeriodSales)
		if reached.Level <= inc.CurrentTier {
			return nil
		}

		nextPayout := schedule.NextPayoutDate(now)
		advanced, err := s.repo.AdvanceTier(ctx, tx, inc.TrackerID, reached, nextPayout, now)
		if err != nil {
			return err
		}
		if !advanced {
			return nil
		}
		result.TierChanged = true
		result.NewTier = reached

		if !reached.Bonus.IsPositive() {
			return nil
		}

		bonus := &bonusdomain.BonusPayout{
			ID:                 s.genID.Generate(),
			CreatorID:          creatorID,
			BonusTrackerID:     inc.TrackerID,
			TierAchieved:       reached.Level,
			BonusAmount:        reached.Bonus,
			SalesVolumeAtAward: inc.CurrentPeriodSales,
			PeriodStart:        inc.CurrentPeriodStart,
			PeriodEnd:          nextPayout,
			Status:             bonusdomain.BonusPayoutStatusEarned,
			AvailableAt:        nextPayout,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := s.repo.InsertBonusPayout(ctx, tx, bonus); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return fmt.Errorf("%w: tier %d", bonusdomain.ErrTierAwarded, reached.Level)
			}
			return err
		}
		result.BonusEarned = reached.Bonus
		result.BonusPayout = bonus
		return nil
	})
	if err != nil {
		if errors.Is(err, bonusdomain.ErrTrackerNotFound) || errors.Is(err, bonusdomain.ErrTierAwarded) {
			return bonusdomain.SaleResult{}, err
		}
		return bonusdomain.SaleResult{}, fmt.Errorf("record commissionable sale: %w", err)
	}

	if result.TierChanged {
		s.log.Info("bonus.tier_crossed",
			zap.String("creator_id", creatorID.String()),
			zap.Int("tier", result.NewTier.Level),
			zap.String("period_sales", result.NewSales.StringFixed(2)),
			zap.String("bonus", result.BonusEarned.StringFixed(2)),
		)
		if result.BonusPayout != nil {
			s.obsMetrics.RecordBonusAwarded(ctx, result.NewTier.Level)
		}
	}
	return result, nil
}

func (s *Service) GetTracker(ctx context.Context, creatorID snowflake.ID) (*bonusdomain.BonusTracker, error) {
	if creatorID == 0 {
		return nil, bonusdomain.ErrInvalidCreator
	}
	tracker, err := s.repo.FindTrackerByCreator(ctx, s.db, creatorID)
	if err != nil {
		return nil, err
	}
	if tracker == nil {
		return nil, bonusdomain.ErrTrackerNotFound
	}
	return tracker, nil
}

func (s *Service) ListClaimableBonuses(ctx context.Context, now time.Time) ([]bonusdomain.BonusPayout, error) {
	return s.repo.ListClaimable(ctx, s.db, now.UTC(), nil)
}

func (s *Service) ListClaimableBonusesForCreator(ctx context.Context, creatorID snowflake.ID, now time.Time) ([]bonusdomain.BonusPayout, error) {
	if creatorID == 0 {
		return nil, bonusdomain.ErrInvalidCreator
	}
	return s.repo.ListClaimable(ctx, s.db, now.UTC(), &creatorID)
}

func (s *Service) ListOutstandingForCreator(ctx context.Context, creatorID snowflake.ID) ([]bonusdomain.BonusPayout, error) {
	if creatorID == 0 {
		return nil, bonusdomain.ErrInvalidCreator
	}
	return s.repo.ListOutstanding(ctx, s.db, creatorID)
}

func (s *Service) ClaimBonuses(ctx context.Context, tx *gorm.DB, bonusPayoutIDs []snowflake.ID, payoutID snowflake.ID) (int64, error) {
	return s.repo.Claim(ctx, s.handle(tx), bonusPayoutIDs, payoutID, s.clock.Now())
}

func (s *Service) ListByPayout(ctx context.Context, tx *gorm.DB, payoutID snowflake.ID) ([]bonusdomain.BonusPayout, error) {
	return s.repo.ListByPayout(ctx, s.handle(tx), payoutID)
}

func (s *Service) MarkPaidForPayout(ctx context.Context, tx *gorm.DB, payoutID snowflake.ID) (int64, error) {
	return s.repo.MarkPaidForPayout(ctx, s.handle(tx), payoutID, s.clock.Now())
}

// ResetPeriod starts a new bonus period once every bonus the tracker earned
// has been paid. It reports false when the tracker is missing or still has
// EARNED bonuses outstanding.
func (s *Service) ResetPeriod(ctx context.Context, tx *gorm.DB, creatorID snowflake.ID) (bool, error) {
	db := s.handle(tx)
	tracker, err := s.repo.LockTrackerByCreator(ctx, db, creatorID)
	if err != nil {
		return false, err
	}
	if tracker == nil {
		return false, nil
	}

	reset, err := s.repo.ResetPeriod(ctx, db, tracker.ID, s.clock.Now())
	if err != nil {
		return false, err
	}
	if !reset {
		s.log.Debug("bonus period reset deferred",
			zap.String("creator_id", creatorID.String()),
			zap.Int("current_tier", tracker.CurrentTier),
		)
	}
	return reset, nil
}

func (s *Service) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

func (s *Service) newTracker(creatorID snowflake.ID, now time.Time) *bonusdomain.BonusTracker {
	return &bonusdomain.BonusTracker{
		ID:                       s.genID.Generate(),
		CreatorID:                creatorID,
		CurrentPeriodStart:       now,
		CurrentPeriodSales:       decimal.Zero,
		CurrentTier:              0,
		CurrentTierBonus:         decimal.Zero,
		TotalCommissionableSales: decimal.Zero,
		TotalBonusesEarned:       decimal.Zero,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
}

func currentTier(tiers bonusdomain.TierTable, level int) bonusdomain.Tier {
	if tier, ok := tiers.ByLevel(level); ok {
		return tier
	}
	return bonusdomain.Tier{Level: level, Threshold: decimal.Zero, Bonus: decimal.Zero}
}
