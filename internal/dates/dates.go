// Package dates canonicalizes calendar dates. A calendar date is a
// time.Time at midnight UTC, regardless of the timezone it was observed
// in, so two dates compare equal exactly when they name the same day.
package dates

import "time"

const Layout = "2006-01-02"

// DateIn returns the calendar date of the instant t as seen in loc.
func DateIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current calendar date in loc. Callers should compute
// this once per request and pass it down, so a request that straddles
// midnight sees a single consistent "today".
func Today(loc *time.Location) time.Time {
	return DateIn(time.Now(), loc)
}

// Canonical strips any time-of-day and zone information from a value that
// already represents a date, e.g. a DATE column scanned by pgx.
func Canonical(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// InRange reports whether d falls within [start, end], inclusive on both
// ends. All three values must be canonical dates.
func InRange(d, start, end time.Time) bool {
	return !d.Before(start) && !d.After(end)
}

// AddDays returns the date n days after d.
func AddDays(d time.Time, n int) time.Time {
	return d.AddDate(0, 0, n)
}

// DaysBetween returns the number of whole days from a to b. Negative when
// b is before a.
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

func Format(d time.Time) string {
	return d.Format(Layout)
}

func Parse(s string) (time.Time, error) {
	return time.Parse(Layout, s)
}

// Location resolves an IANA timezone name, falling back to UTC for the
// empty string or an unknown name.
func Location(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
