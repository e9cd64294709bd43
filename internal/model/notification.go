package model

import (
	"fmt"
	"strings"
	"time"
)

// ShiftNotification is one detected change to a user's shift or task schedule.
// Processed starts false and only ever flips to true, either when the change
// has been delivered or when the user has read it through the history query.
type ShiftNotification struct {
	ID            int64
	QuantumID     string
	ShiftModified time.Time
	DetailStart   time.Time
	DetailEnd     time.Time
	Activity      string // empty means the change concerns the whole shift
	ParentType    ParentType
	ActionType    ActionType
	Processed     bool
}

// Validate rejects records that break the model invariants.
func (n *ShiftNotification) Validate() error {
	if n.QuantumID == "" {
		return fmt.Errorf("missing quantum id")
	}
	if n.DetailEnd.Before(n.DetailStart) {
		return fmt.Errorf("detail end %s before detail start %s", n.DetailEnd, n.DetailStart)
	}
	if _, err := ParseParentType(string(n.ParentType)); err != nil {
		return err
	}
	if _, err := ParseActionType(string(n.ActionType)); err != nil {
		return err
	}
	return nil
}

// Describe renders the change as a single human readable sentence for the
// given channel. Rendering is deterministic: it depends only on the record
// and the channel.
func (n *ShiftNotification) Describe(preference Channel) string {
	var b strings.Builder
	b.WriteString(optionalBulletPoint(preference))
	b.WriteString("Your ")
	b.WriteString(subjectNoun(n.ParentType, n.Activity))
	b.WriteString(" on ")
	b.WriteString(FormatTemplateDate(n.DetailStart))
	b.WriteString(" ")
	b.WriteString(optionalTaskTime(n.DetailStart, n.DetailEnd, n.Activity))
	b.WriteString("has ")
	b.WriteString(n.ActionType.Verb())
	b.WriteString(optionalTaskTo(n.Activity, preference, n.ActionType))
	b.WriteString(".")
	return b.String()
}

// FormatTemplateDate formats a timestamp the way the delivery templates expect:
// weekday, day with ordinal suffix, month name, e.g. "Monday, 20th April".
// Days 11-13 always take "th", overriding the mod-10 rule.
func FormatTemplateDate(t time.Time) string {
	day := t.Day()
	var ordinal string
	if day >= 11 && day <= 13 {
		ordinal = "th"
	} else {
		switch day % 10 {
		case 1:
			ordinal = "st"
		case 2:
			ordinal = "nd"
		case 3:
			ordinal = "rd"
		default:
			ordinal = "th"
		}
	}
	return fmt.Sprintf("%s, %d%s %s", t.Weekday(), day, ordinal, t.Month())
}

func subjectNoun(parentType ParentType, activity string) string {
	if parentType == ParentTypeShift {
		if activity == "" {
			return "shift"
		}
		return "detail"
	}
	if activity == "" {
		return "overtime shift"
	}
	return "overtime detail"
}

// optionalTaskTime renders the "(09:00 - 17:00) " or "(full day) " clause for
// task changes. Both boundary times at the start-of-day instant means the
// record represents a full day. The trailing space is part of the clause so
// an empty clause never produces a double space before "has".
func optionalTaskTime(from, to time.Time, activity string) string {
	if activity == "" {
		return ""
	}
	if hasTimeOfDay(from) && hasTimeOfDay(to) {
		return fmt.Sprintf("(%s - %s) ", from.Format("15:04"), to.Format("15:04"))
	}
	return "(full day) "
}

// optionalTaskTo appends the activity name for internal consumers. For EMAIL
// and SMS the clause is always empty: the provider templates are fixed-width
// and the activity has no slot of its own.
func optionalTaskTo(activity string, preference Channel, actionType ActionType) string {
	if preference != ChannelNone || activity == "" {
		return ""
	}
	switch actionType {
	case ActionTypeAdd:
		return " as " + activity
	case ActionTypeEdit:
		return " to " + activity
	case ActionTypeDelete:
		return " (was " + activity + ")"
	}
	panic(fmt.Sprintf("unknown action type: %q", string(actionType)))
}

// The provider renders bullet points in email templates but not SMS.
func optionalBulletPoint(preference Channel) string {
	if preference == ChannelEmail {
		return "* "
	}
	return ""
}

func hasTimeOfDay(t time.Time) bool {
	return t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0 || t.Nanosecond() != 0
}
