package util

import "time"

// DayKey returns the calendar day of t in loc as "2006-01-02".
// Daily quota counters are keyed by this value so resets happen lazily
// at the local-day boundary instead of via a midnight timer.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// StartOfDay returns midnight of t's day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// NextBackoff returns the exponential backoff delay for the given attempt
// (0-based): base, 2*base, 4*base, ... capped at max.
func NextBackoff(base time.Duration, attempt int, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}

	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if max > 0 && delay >= max {
			return max
		}
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}
