package mq

import "time"

const (
	RoutingKeyNotificationSent   = "notification.sent"
	RoutingKeyNotificationFailed = "notification.failed"
)

// NotificationSentPayload is emitted after the provider accepted one summary
// message for a user.
type NotificationSentPayload struct {
	QuantumID string    `json:"quantum_id"`
	Channel   string    `json:"channel"`
	Count     int       `json:"count"`
	SentAt    time.Time `json:"sent_at"`
}

// NotificationFailedPayload is emitted when the provider refused a chunk; the
// records stay unprocessed and are retried on the next run.
type NotificationFailedPayload struct {
	QuantumID string `json:"quantum_id"`
	Channel   string `json:"channel"`
	Count     int    `json:"count"`
	Error     string `json:"error"`
}
