package model

import "fmt"

// ParentType says whether a change belongs to a regular shift or an overtime
// shift. The set is closed: unknown values are rejected at the ingest boundary.
type ParentType string

const (
	ParentTypeShift    ParentType = "SHIFT"
	ParentTypeOvertime ParentType = "OVERTIME"
)

func ParseParentType(value string) (ParentType, error) {
	switch ParentType(value) {
	case ParentTypeShift, ParentTypeOvertime:
		return ParentType(value), nil
	}
	return "", fmt.Errorf("unknown parent type: %q", value)
}

// ActionType is the kind of modification that was detected.
type ActionType string

const (
	ActionTypeAdd    ActionType = "ADD"
	ActionTypeEdit   ActionType = "EDIT"
	ActionTypeDelete ActionType = "DELETE"
)

func ParseActionType(value string) (ActionType, error) {
	switch ActionType(value) {
	case ActionTypeAdd, ActionTypeEdit, ActionTypeDelete:
		return ActionType(value), nil
	}
	return "", fmt.Errorf("unknown action type: %q", value)
}

// Verb is the display verb used in rendered descriptions.
func (a ActionType) Verb() string {
	switch a {
	case ActionTypeAdd:
		return "been added"
	case ActionTypeEdit:
		return "been changed"
	case ActionTypeDelete:
		return "been removed"
	}
	// Unreachable for parsed values; the set is closed by ParseActionType.
	panic(fmt.Sprintf("unknown action type: %q", string(a)))
}

// Channel is the delivery medium for a user's notifications. NONE means the
// user is an internal/API consumer with no outbound send.
type Channel string

const (
	ChannelNone  Channel = "NONE"
	ChannelEmail Channel = "EMAIL"
	ChannelSms   Channel = "SMS"
)

func ParseChannel(value string) (Channel, error) {
	switch Channel(value) {
	case ChannelNone, ChannelEmail, ChannelSms:
		return Channel(value), nil
	}
	return "", fmt.Errorf("unknown channel: %q", value)
}
