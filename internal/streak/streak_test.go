package streak

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"habitStakeAPI/internal/dates"
)

func day(n int) time.Time {
	return time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestEvaluateCountsCheckins(t *testing.T) {
	checkins := []time.Time{day(0), day(1), day(2)}

	p := Evaluate(7, checkins, day(2))

	assert.Equal(t, 3, p.CurrentStreak)
	assert.False(t, p.IsComplete)
	assert.True(t, p.HasCheckedInToday)
	assert.Equal(t, 4, p.RemainingDays)
}

func TestEvaluateEmptyLedger(t *testing.T) {
	p := Evaluate(7, nil, day(0))

	assert.Equal(t, 0, p.CurrentStreak)
	assert.False(t, p.IsComplete)
	assert.False(t, p.HasCheckedInToday)
	assert.Equal(t, 7, p.RemainingDays)
}

func TestEvaluateComplete(t *testing.T) {
	var checkins []time.Time
	for i := 0; i < 7; i++ {
		checkins = append(checkins, day(i))
	}

	p := Evaluate(7, checkins, day(6))

	assert.Equal(t, 7, p.CurrentStreak)
	assert.True(t, p.IsComplete)
	assert.Equal(t, 0, p.RemainingDays)
}

func TestEvaluateRemainingNeverNegative(t *testing.T) {
	checkins := []time.Time{day(0), day(1), day(2), day(3), day(4), day(5), day(6), day(7)}

	p := Evaluate(7, checkins, day(7))
	assert.Equal(t, 0, p.RemainingDays)
}

func TestHasCheckedInTodayIgnoresOtherDays(t *testing.T) {
	p := Evaluate(7, []time.Time{day(0), day(1)}, day(2))
	assert.False(t, p.HasCheckedInToday)
}

func TestMissedDayBeforeStart(t *testing.T) {
	assert.False(t, MissedDay(day(3), 7, nil, day(0)))
	assert.False(t, MissedDay(day(0), 7, nil, day(0)))
}

func TestMissedDayDetectsGap(t *testing.T) {
	// Days 0 and 1 checked, day 2 skipped, now day 4.
	checkins := []time.Time{day(0), day(1), day(3)}
	assert.True(t, MissedDay(day(0), 7, checkins, day(4)))

	// Every elapsed day covered; today itself is still open.
	full := []time.Time{day(0), day(1), day(2), day(3)}
	assert.False(t, MissedDay(day(0), 7, full, day(4)))
}

func TestMissedDayTodayDoesNotCount(t *testing.T) {
	checkins := []time.Time{day(0)}
	assert.False(t, MissedDay(day(0), 7, checkins, day(1)))
	assert.True(t, MissedDay(day(0), 7, checkins, day(2)))
}

func TestMissedDayIgnoresDaysPastWindow(t *testing.T) {
	var checkins []time.Time
	for i := 0; i < 7; i++ {
		checkins = append(checkins, day(i))
	}

	// Window ended on day 6 with a full ledger; day 10 is not a miss.
	assert.False(t, MissedDay(day(0), 7, checkins, day(10)))
}

func TestEvaluateCanonicalizesDates(t *testing.T) {
	sofia := dates.Location("Europe/Sofia")
	noisy := time.Date(2025, 5, 1, 15, 4, 5, 0, sofia)

	p := Evaluate(7, []time.Time{noisy}, day(0))
	assert.True(t, p.HasCheckedInToday)
}
