package mq

import (
	"time"

	"github.com/google/uuid"
)

const RoutingKeyShiftChanged = "shift.changed"

// ShiftChangedPayload is published by the upstream change-detection feeder
// whenever it observes a modification to a user's schedule. EventID is the
// dedup key for at-least-once delivery.
type ShiftChangedPayload struct {
	EventID       uuid.UUID `json:"event_id"`
	QuantumID     string    `json:"quantum_id"`
	ShiftModified time.Time `json:"shift_modified"`
	DetailStart   time.Time `json:"detail_start"`
	DetailEnd     time.Time `json:"detail_end"`
	Activity      string    `json:"activity"`
	ParentType    string    `json:"parent_type"`
	ActionType    string    `json:"action_type"`
}
