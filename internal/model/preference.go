package model

import "time"

// UserPreference is how one user wants to be notified. Read-only to the
// notification core; created with defaults when a user has none yet.
type UserPreference struct {
	QuantumID   string
	Channel     Channel
	Email       string
	Sms         string
	SnoozeUntil *time.Time // date precision, nil when not snoozed
}

// Snoozed reports whether dispatch should be skipped at the given time.
// A snooze date of today or later suppresses sending; delivery resumes the
// day after the snooze date.
func (p *UserPreference) Snoozed(now time.Time) bool {
	if p.SnoozeUntil == nil {
		return false
	}
	return !dateOf(*p.SnoozeUntil).Before(dateOf(now))
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
