package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of notification messages sent to the delivery provider",
		},
		[]string{"channel"},
	)

	ProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_provider_errors_total",
			Help: "Total number of delivery provider failures",
		},
		[]string{"channel"},
	)

	RecordsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shift_changes_ingested_total",
			Help: "Total number of shift change records ingested from MQ",
		},
		[]string{"status"}, // status: stored, duplicate, invalid
	)

	SendRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notification_send_run_duration_seconds",
			Help:    "Duration of one scheduled notification send run",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)
)

// RecordSent increments the sent counter for a channel.
func RecordSent(channel string) {
	NotificationsSent.WithLabelValues(channel).Inc()
}

// RecordProviderError increments the provider error counter for a channel.
func RecordProviderError(channel string) {
	ProviderErrors.WithLabelValues(channel).Inc()
}

// RecordIngested increments the ingest counter with an outcome status.
func RecordIngested(status string) {
	RecordsIngested.WithLabelValues(status).Inc()
}

// RecordDBQueryDuration records a database query duration.
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}
