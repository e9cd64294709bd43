package service

import "time"

// resolveWindow turns optional from/to dates into a concrete query window.
// Missing boundaries default to a monthStep-sized window around now: the
// start falls on the first day of a month, the end on the last. The window is
// inclusive of both boundary calendar days, so the start is taken at the
// earliest instant of its day and the end at the latest.
func resolveWindow(from, to *time.Time, now time.Time, monthStep int) (time.Time, time.Time) {
	start := calculateStartDate(from, to, now, monthStep)
	end := calculateEndDate(to, start, monthStep)
	return atStartOfDay(start), atEndOfDay(end)
}

func calculateStartDate(from, to *time.Time, now time.Time, monthStep int) time.Time {
	switch {
	case from != nil:
		return *from
	case to != nil:
		// First day of the month monthStep months into the relative past.
		return firstOfMonth(to.Year(), to.Month()-time.Month(monthStep), to.Location())
	default:
		return firstOfMonth(now.Year(), now.Month(), now.Location())
	}
}

func calculateEndDate(to *time.Time, start time.Time, monthStep int) time.Time {
	if to != nil {
		return *to
	}
	// Last day of the month monthStep months after the computed start. Day
	// zero of the following month normalizes to exactly that.
	return time.Date(start.Year(), start.Month()+time.Month(monthStep)+1, 0, 0, 0, 0, 0, start.Location())
}

func firstOfMonth(year int, month time.Month, loc *time.Location) time.Time {
	return time.Date(year, month, 1, 0, 0, 0, 0, loc)
}

func atStartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func atEndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}
