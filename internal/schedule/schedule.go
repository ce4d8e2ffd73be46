// Package schedule resolves payout calendar dates and earning holding windows.
package schedule

import "time"

const (
	// EligibilityDays is the minimum holding period before an earning may be
	// paid out once the creator meets their minimum.
	EligibilityDays = 15
	// LockDays is the hard limit after which an earning is paid regardless
	// of the creator's minimum.
	LockDays = 45

	firstPayoutDay  = 15
	secondPayoutDay = 30
)

// ComputeEligibility returns the eligibleAt and lockedUntil timestamps for an
// earning recorded at earnedAt.
func ComputeEligibility(earnedAt time.Time) (eligibleAt, lockedUntil time.Time) {
	return earnedAt.AddDate(0, 0, EligibilityDays), earnedAt.AddDate(0, 0, LockDays)
}

// NextPayoutDate returns the next bi-monthly payout date on or after now,
// truncated to midnight in now's location.
//
// Payout dates are the 15th and the 30th, or the last day of the month when
// the month has fewer than 30 days.
func NextPayoutDate(now time.Time) time.Time {
	year, month, day := now.Date()
	loc := now.Location()
	switch {
	case day < firstPayoutDay:
		return time.Date(year, month, firstPayoutDay, 0, 0, 0, 0, loc)
	case day < secondPayoutDay:
		return time.Date(year, month, secondPayoutDayOf(year, month), 0, 0, 0, 0, loc)
	default:
		// time.Date normalizes month 13 into January of the next year.
		return time.Date(year, month+1, firstPayoutDay, 0, 0, 0, 0, loc)
	}
}

// IsPayoutDay reports whether date falls on the 15th or the 30th.
func IsPayoutDay(date time.Time) bool {
	day := date.Day()
	return day == firstPayoutDay || day == secondPayoutDay
}

// IsScheduledPayoutDay reports whether date is one of the two payout dates of
// its month. Unlike IsPayoutDay it also matches the last day of February.
func IsScheduledPayoutDay(date time.Time) bool {
	year, month, day := date.Date()
	return day == firstPayoutDay || day == secondPayoutDayOf(year, month)
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func secondPayoutDayOf(year int, month time.Month) int {
	if last := DaysInMonth(year, month); last < secondPayoutDay {
		return last
	}
	return secondPayoutDay
}
