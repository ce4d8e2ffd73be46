package guard

import (
	"errors"
	"time"

	payoutdomain "github.com/mygitzaki/zylike-creator-platform-sub001/internal/payout/domain"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/schedule"
)

var (
	ErrNotPayoutDay       = errors.New("not_payout_day")
	ErrBatchAlreadyRan    = errors.New("payout_batch_already_ran")
	ErrPayoutNotPending   = errors.New("payout_not_pending")
	ErrPayoutDispatched   = errors.New("payout_already_dispatched")
	ErrMissingDestination = errors.New("payout_missing_destination")
)

// EnsureBatchCanRun allows one scheduled batch per payout day. lastRunDay is
// the UTC calendar day of the last completed batch, zero when none ran.
func EnsureBatchCanRun(now, lastRunDay time.Time) error {
	if !schedule.IsScheduledPayoutDay(now) {
		return ErrNotPayoutDay
	}
	if !lastRunDay.IsZero() && sameDay(lastRunDay, now) {
		return ErrBatchAlreadyRan
	}
	return nil
}

func EnsurePayoutCanDispatch(payout payoutdomain.Payout, profile *payoutdomain.CreatorPayoutProfile) error {
	if payout.Status != payoutdomain.PayoutStatusPending {
		return ErrPayoutNotPending
	}
	if payout.DispatchedAt != nil {
		return ErrPayoutDispatched
	}
	if !profile.HasDestination() {
		return ErrMissingDestination
	}
	return nil
}

// DayOf truncates t to its UTC calendar day.
func DayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sameDay(a, b time.Time) bool {
	return DayOf(a).Equal(DayOf(b))
}
