// Package streak derives challenge progress from the check-in ledger.
// Because the ledger enforces one check-in per calendar date and only
// accepts dates inside the challenge window, the streak is simply the
// number of recorded check-ins.
package streak

import (
	"time"

	"habitStakeAPI/internal/dates"
)

type Progress struct {
	CurrentStreak     int
	IsComplete        bool
	HasCheckedInToday bool
	RemainingDays     int
}

// Evaluate computes progress for a challenge of durationDays given its
// recorded check-in dates. today must be the canonical current date in
// the challenge's timezone, computed once by the caller.
func Evaluate(durationDays int, checkinDates []time.Time, today time.Time) Progress {
	p := Progress{CurrentStreak: len(checkinDates)}
	p.IsComplete = p.CurrentStreak >= durationDays

	p.RemainingDays = durationDays - p.CurrentStreak
	if p.RemainingDays < 0 {
		p.RemainingDays = 0
	}

	for _, d := range checkinDates {
		if dates.Canonical(d).Equal(today) {
			p.HasCheckedInToday = true
			break
		}
	}
	return p
}

// MissedDay reports whether any fully elapsed day of the window, a day
// on or after start and strictly before today, has no check-in. Today
// itself never counts as missed; the day is not over. Days past the end
// of the window are not window days and are ignored.
func MissedDay(start time.Time, durationDays int, checkinDates []time.Time, today time.Time) bool {
	elapsed := dates.DaysBetween(start, today)
	if elapsed > durationDays {
		elapsed = durationDays
	}
	if elapsed <= 0 {
		return false
	}

	seen := make(map[time.Time]bool, len(checkinDates))
	for _, d := range checkinDates {
		seen[dates.Canonical(d)] = true
	}

	for i := 0; i < elapsed; i++ {
		if !seen[dates.AddDays(start, i)] {
			return true
		}
	}
	return false
}
