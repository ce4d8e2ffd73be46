package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	bonusdomain "github.com/mygitzaki/zylike-creator-platform-sub001/internal/bonus/domain"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/clock"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/config"
	earningdomain "github.com/mygitzaki/zylike-creator-platform-sub001/internal/earning/domain"
	obscontext "github.com/mygitzaki/zylike-creator-platform-sub001/internal/observability/context"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/observability/logger"
	obsmetrics "github.com/mygitzaki/zylike-creator-platform-sub001/internal/observability/metrics"
	payoutdomain "github.com/mygitzaki/zylike-creator-platform-sub001/internal/payout/domain"
	"github.com/mygitzaki/zylike-creator-platform-sub001/pkg/db"
)

const (
	defaultPayoutMethod = "paypal"
	materializeAttempts = 3
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	Repo       payoutdomain.Repository
	EarningSvc earningdomain.Service
	BonusSvc   bonusdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       payoutdomain.Repository
	earningSvc earningdomain.Service
	bonusSvc   bonusdomain.Service
	obsMetrics *obsmetrics.Metrics

	defaultMinimum decimal.Decimal
	currency       string
}

func NewService(p Params) payoutdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	minimum := p.Config.Payout.MinimumAmount
	if minimum.IsNegative() {
		minimum = decimal.Zero
	}
	currency := strings.ToUpper(strings.TrimSpace(p.Config.Payout.Currency))
	if currency == "" {
		currency = "USD"
	}
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("payout.service"),
		genID:          p.GenID,
		clock:          clk,
		repo:           p.Repo,
		earningSvc:     p.EarningSvc,
		bonusSvc:       p.BonusSvc,
		obsMetrics:     p.ObsMetrics,
		defaultMinimum: minimum,
		currency:       currency,
	}
}

type creatorGroup struct {
	forced   []earningdomain.Earning
	eligible []earningdomain.Earning
}

// BuildBatch plans one payout per creator that must or may be paid at now.
// Creators with forced earnings are always included and their eligible
// earnings ride along. Creators with only eligible earnings are included once
// the eligible sum reaches their minimum. Claimable bonuses are folded into
// included creators only.
func (s *Service) BuildBatch(ctx context.Context, now time.Time) (payoutdomain.BatchPlan, error) {
	now = now.UTC()
	claimable, err := s.earningSvc.ListClaimable(ctx, now)
	if err != nil {
		return payoutdomain.BatchPlan{}, err
	}
	bonuses, err := s.bonusSvc.ListClaimableBonuses(ctx, now)
	if err != nil {
		return payoutdomain.BatchPlan{}, fmt.Errorf("list claimable bonuses: %w", err)
	}

	groups := map[snowflake.ID]*creatorGroup{}
	group := func(id snowflake.ID) *creatorGroup {
		g, ok := groups[id]
		if !ok {
			g = &creatorGroup{}
			groups[id] = g
		}
		return g
	}
	for _, e := range claimable.Forced {
		g := group(e.CreatorID)
		g.forced = append(g.forced, e)
	}
	for _, e := range claimable.Eligible {
		g := group(e.CreatorID)
		g.eligible = append(g.eligible, e)
	}

	bonusesByCreator := map[snowflake.ID][]bonusdomain.BonusPayout{}
	for _, b := range bonuses {
		bonusesByCreator[b.CreatorID] = append(bonusesByCreator[b.CreatorID], b)
	}

	creatorIDs := make([]snowflake.ID, 0, len(groups))
	for id := range groups {
		creatorIDs = append(creatorIDs, id)
	}
	sort.Slice(creatorIDs, func(i, j int) bool { return creatorIDs[i] < creatorIDs[j] })

	profiles, err := s.profilesByCreator(ctx, creatorIDs)
	if err != nil {
		return payoutdomain.BatchPlan{}, err
	}

	var plan payoutdomain.BatchPlan
	for _, creatorID := range creatorIDs {
		g := groups[creatorID]
		profile := profiles[creatorID]
		minimum := s.minimumFor(profile)

		var reason payoutdomain.PayoutReason
		switch {
		case len(g.forced) > 0:
			reason = payoutdomain.PayoutReasonForcedLockExpiry
		case earningdomain.SumNet(g.eligible).GreaterThanOrEqual(minimum):
			reason = payoutdomain.PayoutReasonThresholdMet
		default:
			plan.SkippedBelowThreshold = append(plan.SkippedBelowThreshold, creatorID)
			continue
		}

		if !profile.HasDestination() {
			plan.Blocked = append(plan.Blocked, payoutdomain.BlockedCreator{
				CreatorID: creatorID,
				Reason:    payoutdomain.BlockedReasonMissingDestination,
			})
			s.obsMetrics.RecordPayoutBlocked(ctx, string(payoutdomain.BlockedReasonMissingDestination))
			s.log.Warn("payout.blocked",
				zap.String("creator_id", creatorID.String()),
				zap.String("reason", string(payoutdomain.BlockedReasonMissingDestination)),
			)
			continue
		}

		earnings := make([]earningdomain.Earning, 0, len(g.forced)+len(g.eligible))
		earnings = append(earnings, g.forced...)
		earnings = append(earnings, g.eligible...)
		plan.Intents = append(plan.Intents, s.newIntent(creatorID, reason, earnings, bonusesByCreator[creatorID], minimum, profile))
	}

	return plan, nil
}

// BuildManualIntent plans an admin-triggered payout of everything claimable
// for one creator, ignoring the minimum.
func (s *Service) BuildManualIntent(ctx context.Context, creatorID snowflake.ID, now time.Time, actorID, notes string) (*payoutdomain.PayoutIntent, error) {
	if creatorID == 0 {
		return nil, payoutdomain.ErrInvalidCreator
	}
	now = now.UTC()

	claimable, err := s.earningSvc.ListClaimableForCreator(ctx, creatorID, now)
	if err != nil {
		return nil, err
	}
	bonuses, err := s.bonusSvc.ListClaimableBonusesForCreator(ctx, creatorID, now)
	if err != nil {
		return nil, fmt.Errorf("list claimable bonuses: %w", err)
	}

	earnings := claimable.All()
	total := earningdomain.SumNet(earnings).Add(sumBonuses(bonuses))
	if (len(earnings) == 0 && len(bonuses) == 0) || !total.IsPositive() {
		return nil, payoutdomain.ErrNoClaimableEarnings
	}

	profile, err := s.repo.FindProfile(ctx, s.db, creatorID)
	if err != nil {
		return nil, err
	}
	if !profile.HasDestination() {
		s.obsMetrics.RecordPayoutBlocked(ctx, string(payoutdomain.BlockedReasonMissingDestination))
		return nil, fmt.Errorf("%w: %s", payoutdomain.ErrPayoutBlocked, payoutdomain.BlockedReasonMissingDestination)
	}

	intent := s.newIntent(creatorID, payoutdomain.PayoutReasonManualAdmin, earnings, bonuses, s.minimumFor(profile), profile)
	intent.ActorID = strings.TrimSpace(actorID)
	intent.Notes = strings.TrimSpace(notes)
	return &intent, nil
}

// Materialize persists intent as a PENDING payout and claims its earnings and
// bonuses in the same transaction. When another run claimed some rows first,
// totals are recomputed from the rows this payout actually holds; if what is
// left no longer qualifies the whole unit rolls back with
// ErrConcurrencyConflict. Serialization failures and deadlocks retry the
// whole unit.
func (s *Service) Materialize(ctx context.Context, intent payoutdomain.PayoutIntent, now time.Time) (*payoutdomain.Payout, error) {
	if intent.CreatorID == 0 {
		return nil, payoutdomain.ErrInvalidCreator
	}
	if !intent.Reason.Valid() {
		return nil, fmt.Errorf("%w: unknown reason %q", payoutdomain.ErrInvalidTransition, intent.Reason)
	}
	if len(intent.Earnings) == 0 && len(intent.Bonuses) == 0 {
		return nil, payoutdomain.ErrNoClaimableEarnings
	}
	now = now.UTC()

	log := logger.WithCreator(logger.WithContext(ctx, s.log), intent.CreatorID.String())
	payoutID := s.genID.Generate()

	var (
		payout *payoutdomain.Payout
		err    error
	)
	for attempt := 1; attempt <= materializeAttempts; attempt++ {
		payout = s.newPayout(ctx, payoutID, intent, now)
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.persistIntent(ctx, tx, log, payout, intent, now)
		})
		if err == nil || !db.IsRetryableTxErr(err) {
			break
		}
		log.Warn("payout materialize retrying",
			zap.String("payout_id", payoutID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	if err != nil {
		if errors.Is(err, payoutdomain.ErrConcurrencyConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("materialize payout: %w", err)
	}

	s.obsMetrics.RecordPayoutCreated(ctx, string(payout.Reason))
	log.Info("payout.created",
		zap.String("payout_id", payout.ID.String()),
		zap.String("reason", string(payout.Reason)),
		zap.String("total_amount", payout.TotalAmount.StringFixed(2)),
		zap.Int("earning_count", payout.EarningCount),
		zap.Int("bonus_count", payout.BonusCount),
	)
	return payout, nil
}

func (s *Service) newPayout(ctx context.Context, id snowflake.ID, intent payoutdomain.PayoutIntent, now time.Time) *payoutdomain.Payout {
	earningsAmount := earningdomain.SumNet(intent.Earnings)
	bonusAmount := sumBonuses(intent.Bonuses)
	return &payoutdomain.Payout{
		ID:             id,
		CreatorID:      intent.CreatorID,
		TotalAmount:    earningsAmount.Add(bonusAmount),
		EarningsAmount: earningsAmount,
		BonusAmount:    bonusAmount,
		EarningCount:   len(intent.Earnings),
		BonusCount:     len(intent.Bonuses),
		Currency:       s.currencyOf(intent),
		Status:         payoutdomain.PayoutStatusPending,
		Reason:         intent.Reason,
		ScheduledAt:    now,
		ActorID:        optionalString(intent.ActorID),
		Notes:          optionalString(intent.Notes),
		Metadata:       s.metadataFor(ctx, intent),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// persistIntent inserts payout and claims the intent's rows on tx.
func (s *Service) persistIntent(ctx context.Context, tx *gorm.DB, log *zap.Logger, payout *payoutdomain.Payout, intent payoutdomain.PayoutIntent, now time.Time) error {
	if err := s.repo.InsertPayout(ctx, tx, payout); err != nil {
		return err
	}

	claimedEarnings, err := s.earningSvc.Claim(ctx, tx, intent.EarningIDs(), payout.ID)
	if err != nil {
		return err
	}
	claimedBonuses, err := s.bonusSvc.ClaimBonuses(ctx, tx, intent.BonusIDs(), payout.ID)
	if err != nil {
		return err
	}
	if int(claimedEarnings) == len(intent.Earnings) && int(claimedBonuses) == len(intent.Bonuses) {
		return nil
	}

	log.Warn("payout claim count mismatch, recomputing totals",
		zap.String("payout_id", payout.ID.String()),
		zap.Int("earnings_requested", len(intent.Earnings)),
		zap.Int64("earnings_claimed", claimedEarnings),
		zap.Int("bonuses_requested", len(intent.Bonuses)),
		zap.Int64("bonuses_claimed", claimedBonuses),
	)
	return s.reconcile(ctx, tx, payout, intent, now)
}

func (s *Service) reconcile(ctx context.Context, tx *gorm.DB, payout *payoutdomain.Payout, intent payoutdomain.PayoutIntent, now time.Time) error {
	earnings, err := s.earningSvc.ListByPayout(ctx, tx, payout.ID)
	if err != nil {
		return err
	}
	bonuses, err := s.bonusSvc.ListByPayout(ctx, tx, payout.ID)
	if err != nil {
		return err
	}

	earningsAmount := earningdomain.SumNet(earnings)
	bonusAmount := sumBonuses(bonuses)
	if !qualifies(intent.Reason, earnings, earningsAmount.Add(bonusAmount), intent.MinimumPayout, now) {
		return fmt.Errorf("%w: creator %s", payoutdomain.ErrConcurrencyConflict, intent.CreatorID)
	}

	payout.EarningsAmount = earningsAmount
	payout.BonusAmount = bonusAmount
	payout.TotalAmount = earningsAmount.Add(bonusAmount)
	payout.EarningCount = len(earnings)
	payout.BonusCount = len(bonuses)
	if payout.Metadata == nil {
		payout.Metadata = datatypes.JSONMap{}
	}
	payout.Metadata["reconciled"] = true
	return s.repo.UpdateTotals(ctx, tx, payout, now)
}

func qualifies(reason payoutdomain.PayoutReason, earnings []earningdomain.Earning, total, minimum decimal.Decimal, now time.Time) bool {
	if !total.IsPositive() {
		return false
	}
	if reason == payoutdomain.PayoutReasonManualAdmin {
		return true
	}
	for _, e := range earnings {
		if !e.LockedUntil.After(now) {
			return true
		}
	}
	return earningdomain.SumNet(earnings).GreaterThanOrEqual(minimum)
}

// MarkDispatched records that the payment rail accepted the hand-off.
func (s *Service) MarkDispatched(ctx context.Context, payoutID snowflake.ID) (*payoutdomain.Payout, error) {
	now := s.clock.Now()
	ok, err := s.repo.MarkDispatched(ctx, s.db, payoutID, now)
	if err != nil {
		return nil, err
	}
	payout, err := s.repo.FindByID(ctx, s.db, payoutID)
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, payoutdomain.ErrPayoutNotFound
	}
	if !ok {
		return payout, fmt.Errorf("%w: %s -> %s", payoutdomain.ErrInvalidTransition, payout.Status, payoutdomain.PayoutStatusProcessing)
	}
	return payout, nil
}

func (s *Service) LeaseUndispatched(ctx context.Context, olderThan time.Time, limit int) ([]payoutdomain.Payout, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.LeaseUndispatched(ctx, s.db, olderThan.UTC(), s.clock.Now(), limit)
}

// MarkPayoutComplete applies the payment rail's verdict. Success settles
// every constituent and resets the bonus period when the payout carried
// bonuses; failure leaves the constituents attached to the failed payout.
// Repeating the verdict already recorded is a no-op.
func (s *Service) MarkPayoutComplete(ctx context.Context, payoutID snowflake.ID, outcome payoutdomain.Outcome) (*payoutdomain.Payout, error) {
	failureReason := strings.TrimSpace(outcome.FailureReason)
	if !outcome.Success && failureReason == "" {
		return nil, fmt.Errorf("%w: failure reason required", payoutdomain.ErrInvalidOutcome)
	}

	now := s.clock.Now()
	target := payoutdomain.PayoutStatusCompleted
	if !outcome.Success {
		target = payoutdomain.PayoutStatusFailed
	}

	var (
		settled     *payoutdomain.Payout
		applied     bool
		periodReset bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payout, err := s.repo.FindByIDForUpdate(ctx, tx, payoutID)
		if err != nil {
			return err
		}
		if payout == nil {
			return payoutdomain.ErrPayoutNotFound
		}
		if payout.Status == target {
			settled = payout
			return nil
		}
		if !payout.Status.CanTransitionTo(target) {
			return fmt.Errorf("%w: %s -> %s", payoutdomain.ErrInvalidTransition, payout.Status, target)
		}

		if !outcome.Success {
			ok, err := s.repo.MarkFailed(ctx, tx, payoutID, failureReason, now)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s -> %s", payoutdomain.ErrInvalidTransition, payout.Status, target)
			}
		} else {
			ok, err := s.repo.MarkCompleted(ctx, tx, payoutID, now)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s -> %s", payoutdomain.ErrInvalidTransition, payout.Status, target)
			}
			if _, err := s.earningSvc.MarkPaidForPayout(ctx, tx, payoutID); err != nil {
				return err
			}
			bonusesPaid, err := s.bonusSvc.MarkPaidForPayout(ctx, tx, payoutID)
			if err != nil {
				return err
			}
			if payout.BonusCount > 0 || bonusesPaid > 0 {
				periodReset, err = s.bonusSvc.ResetPeriod(ctx, tx, payout.CreatorID)
				if err != nil {
					return err
				}
			}
		}

		applied = true
		settled, err = s.repo.FindByID(ctx, tx, payoutID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if applied {
		s.obsMetrics.RecordPayoutSettled(ctx, string(settled.Status))
		fields := []zap.Field{
			zap.String("payout_id", settled.ID.String()),
			zap.String("creator_id", settled.CreatorID.String()),
			zap.String("status", string(settled.Status)),
			zap.Bool("bonus_period_reset", periodReset),
		}
		if settled.Status == payoutdomain.PayoutStatusFailed {
			s.log.Warn("payout.failed", append(fields, zap.String("failure_reason", failureReason))...)
		} else {
			s.log.Info("payout.completed", fields...)
		}
	}
	return settled, nil
}

func (s *Service) GetPayout(ctx context.Context, payoutID snowflake.ID) (*payoutdomain.Payout, error) {
	payout, err := s.repo.FindByID(ctx, s.db, payoutID)
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, payoutdomain.ErrPayoutNotFound
	}
	return payout, nil
}

func (s *Service) GetAllPendingPayouts(ctx context.Context) ([]payoutdomain.Payout, error) {
	return s.repo.ListByStatus(ctx, s.db, []payoutdomain.PayoutStatus{
		payoutdomain.PayoutStatusPending,
		payoutdomain.PayoutStatusProcessing,
	})
}

func (s *Service) SetPayoutProfile(ctx context.Context, req payoutdomain.SetPayoutProfileRequest) (*payoutdomain.CreatorPayoutProfile, error) {
	if req.CreatorID == 0 {
		return nil, payoutdomain.ErrInvalidCreator
	}

	method := strings.ToLower(strings.TrimSpace(req.PayoutMethod))
	if method == "" {
		method = defaultPayoutMethod
	}

	var minimum decimal.NullDecimal
	if req.MinimumPayout != nil {
		parsed, err := decimal.NewFromString(strings.TrimSpace(*req.MinimumPayout))
		if err != nil || parsed.IsNegative() {
			return nil, fmt.Errorf("%w: minimum payout %q", payoutdomain.ErrInvalidProfile, *req.MinimumPayout)
		}
		minimum = decimal.NullDecimal{Decimal: parsed.Round(2), Valid: true}
	}

	now := s.clock.Now()
	profile := &payoutdomain.CreatorPayoutProfile{
		CreatorID:         req.CreatorID,
		PayoutMethod:      method,
		PayoutDestination: optionalString(req.Destination),
		MinimumPayout:     minimum,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.UpsertProfile(ctx, s.db, profile); err != nil {
		return nil, err
	}
	return s.repo.FindProfile(ctx, s.db, req.CreatorID)
}

func (s *Service) GetPayoutProfile(ctx context.Context, creatorID snowflake.ID) (*payoutdomain.CreatorPayoutProfile, error) {
	if creatorID == 0 {
		return nil, payoutdomain.ErrInvalidCreator
	}
	return s.repo.FindProfile(ctx, s.db, creatorID)
}

func (s *Service) newIntent(
	creatorID snowflake.ID,
	reason payoutdomain.PayoutReason,
	earnings []earningdomain.Earning,
	bonuses []bonusdomain.BonusPayout,
	minimum decimal.Decimal,
	profile *payoutdomain.CreatorPayoutProfile,
) payoutdomain.PayoutIntent {
	earningsAmount := earningdomain.SumNet(earnings)
	bonusAmount := sumBonuses(bonuses)

	intent := payoutdomain.PayoutIntent{
		CreatorID:      creatorID,
		Reason:         reason,
		Earnings:       earnings,
		Bonuses:        bonuses,
		EarningsAmount: earningsAmount,
		BonusAmount:    bonusAmount,
		TotalAmount:    earningsAmount.Add(bonusAmount),
		MinimumPayout:  minimum,
		Currency:       s.currency,
		PayoutMethod:   defaultPayoutMethod,
	}
	if profile != nil {
		if method := strings.TrimSpace(profile.PayoutMethod); method != "" {
			intent.PayoutMethod = method
		}
		if profile.PayoutDestination != nil {
			intent.Destination = *profile.PayoutDestination
		}
	}
	return intent
}

func (s *Service) profilesByCreator(ctx context.Context, creatorIDs []snowflake.ID) (map[snowflake.ID]*payoutdomain.CreatorPayoutProfile, error) {
	profiles, err := s.repo.ListProfiles(ctx, s.db, creatorIDs)
	if err != nil {
		return nil, fmt.Errorf("list payout profiles: %w", err)
	}
	out := make(map[snowflake.ID]*payoutdomain.CreatorPayoutProfile, len(profiles))
	for i := range profiles {
		out[profiles[i].CreatorID] = &profiles[i]
	}
	return out, nil
}

func (s *Service) minimumFor(profile *payoutdomain.CreatorPayoutProfile) decimal.Decimal {
	if profile != nil && profile.MinimumPayout.Valid {
		return profile.MinimumPayout.Decimal
	}
	return s.defaultMinimum
}

func (s *Service) currencyOf(intent payoutdomain.PayoutIntent) string {
	if c := strings.TrimSpace(intent.Currency); c != "" {
		return c
	}
	return s.currency
}

func (s *Service) metadataFor(ctx context.Context, intent payoutdomain.PayoutIntent) datatypes.JSONMap {
	meta := datatypes.JSONMap{
		"payout_method": intent.PayoutMethod,
	}
	if runID := obscontext.RunIDFromContext(ctx); runID != "" {
		meta["run_id"] = runID
	}
	if intent.Reason != payoutdomain.PayoutReasonManualAdmin {
		meta["minimum_payout"] = intent.MinimumPayout.StringFixed(2)
	}
	return meta
}

func sumBonuses(bonuses []bonusdomain.BonusPayout) decimal.Decimal {
	total := decimal.Zero
	for _, b := range bonuses {
		total = total.Add(b.BonusAmount)
	}
	return total
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
