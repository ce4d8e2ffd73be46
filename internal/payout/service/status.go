package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	bonusdomain "github.com/mygitzaki/zylike-creator-platform-sub001/internal/bonus/domain"
	earningdomain "github.com/mygitzaki/zylike-creator-platform-sub001/internal/earning/domain"
	payoutdomain "github.com/mygitzaki/zylike-creator-platform-sub001/internal/payout/domain"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/schedule"
)

// GetCreatorPayoutStatus summarizes a creator's balances for the dashboard.
// WillBePaidNextCycle evaluates the batch rules as of the next payout date.
func (s *Service) GetCreatorPayoutStatus(ctx context.Context, creatorID snowflake.ID) (*payoutdomain.CreatorPayoutStatus, error) {
	if creatorID == 0 {
		return nil, payoutdomain.ErrInvalidCreator
	}

	now := s.clock.Now()
	next := schedule.NextPayoutDate(now)

	earnings, err := s.earningSvc.ListByCreator(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	bonuses, err := s.bonusSvc.ListOutstandingForCreator(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	profile, err := s.repo.FindProfile(ctx, s.db, creatorID)
	if err != nil {
		return nil, err
	}

	status := &payoutdomain.CreatorPayoutStatus{
		CreatorID:             creatorID,
		Currency:              s.currency,
		LockedAmount:          decimal.Zero,
		EligibleAmount:        decimal.Zero,
		ForcedAmount:          decimal.Zero,
		PendingAmount:         decimal.Zero,
		PendingBonusAmount:    decimal.Zero,
		ClaimedBonusAmount:    decimal.Zero,
		PaidAmount:            decimal.Zero,
		MinimumPayout:         s.minimumFor(profile),
		HasPaymentDestination: profile.HasDestination(),
		CurrentPeriodSales:    decimal.Zero,
		NextPayoutDate:        next,
	}

	eligibleNext := decimal.Zero
	forcedNext := false
	for _, e := range earnings {
		switch e.Status {
		case earningdomain.EarningStatusLocked:
			if e.EligibleAt.After(now) {
				status.LockedAmount = status.LockedAmount.Add(e.NetAmount)
			} else {
				status.EligibleAmount = status.EligibleAmount.Add(e.NetAmount)
			}
			if !e.LockedUntil.After(now) {
				status.ForcedAmount = status.ForcedAmount.Add(e.NetAmount)
			}
			if !e.EligibleAt.After(next) {
				eligibleNext = eligibleNext.Add(e.NetAmount)
			}
			if !e.LockedUntil.After(next) {
				forcedNext = true
			}
		case earningdomain.EarningStatusPendingPayout:
			status.PendingAmount = status.PendingAmount.Add(e.NetAmount)
		case earningdomain.EarningStatusPaid:
			status.PaidAmount = status.PaidAmount.Add(e.NetAmount)
		}
	}

	for _, b := range bonuses {
		if b.Claimed() {
			status.ClaimedBonusAmount = status.ClaimedBonusAmount.Add(b.BonusAmount)
		} else {
			status.PendingBonusAmount = status.PendingBonusAmount.Add(b.BonusAmount)
		}
	}

	tracker, err := s.bonusSvc.GetTracker(ctx, creatorID)
	switch {
	case err == nil:
		status.CurrentTier = tracker.CurrentTier
		status.CurrentPeriodSales = tracker.CurrentPeriodSales
	case errors.Is(err, bonusdomain.ErrTrackerNotFound):
	default:
		return nil, err
	}

	status.BelowThreshold = status.ForcedAmount.IsZero() && status.EligibleAmount.LessThan(status.MinimumPayout)
	qualifiesNext := forcedNext || (eligibleNext.IsPositive() && eligibleNext.GreaterThanOrEqual(status.MinimumPayout))
	status.WillBePaidNextCycle = status.HasPaymentDestination && qualifiesNext

	return status, nil
}
