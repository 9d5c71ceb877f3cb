package contextutils

import "time"

// Clock is the wall-clock source used by the engine. Deadline and grace
// period math is done in whole days relative to it.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the process wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// StartOfDay truncates t to midnight in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// DaysUntil returns the number of calendar days from now until target in loc.
// Negative values mean target is in the past.
func DaysUntil(now, target time.Time, loc *time.Location) int {
	from := StartOfDay(now, loc)
	to := StartOfDay(target, loc)
	// Calendar dates avoid DST drift that a raw Sub/24h would show.
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	fromUTC := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	toUTC := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(toUTC.Sub(fromUTC).Hours() / 24)
}
