package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	contracts "shiftnotify/contracts/mq"
	"shiftnotify/internal/model"
	"shiftnotify/internal/notify"
	"shiftnotify/pkg/metrics"
)

// NotificationRepository is the storage capability the service needs.
type NotificationRepository interface {
	FindUnprocessed(ctx context.Context) ([]model.ShiftNotification, error)
	FindByQuantumIDAndShiftModifiedBetween(ctx context.Context, quantumID string, start, end time.Time) ([]model.ShiftNotification, error)
	MarkProcessed(ctx context.Context, ids []int64) error
}

// PreferenceRepository resolves a user's delivery preference.
type PreferenceRepository interface {
	GetOrCreate(ctx context.Context, quantumID string) (*model.UserPreference, error)
}

// EventPublisher emits sent/failed events for downstream consumers. Optional;
// event publishing is best-effort and never fails a send run.
type EventPublisher interface {
	Publish(routingKey string, payload any) error
}

// NotificationDTO is one rendered notification with its metadata, as returned
// to the read API.
type NotificationDTO struct {
	Description   string    `json:"description"`
	ShiftModified time.Time `json:"shiftModified"`
	Processed     bool      `json:"processed"`
}

type NotificationService struct {
	repo            NotificationRepository
	prefs           PreferenceRepository
	client          notify.Client
	publisher       EventPublisher
	emailTemplateID string
	smsTemplateID   string
	monthStep       int
	now             func() time.Time
	logger          *zap.Logger
}

func NewNotificationService(
	repo NotificationRepository,
	prefs PreferenceRepository,
	client notify.Client,
	publisher EventPublisher,
	emailTemplateID, smsTemplateID string,
	monthStep int,
	now func() time.Time,
	logger *zap.Logger,
) *NotificationService {
	if now == nil {
		now = time.Now
	}
	return &NotificationService{
		repo:            repo,
		prefs:           prefs,
		client:          client,
		publisher:       publisher,
		emailTemplateID: emailTemplateID,
		smsTemplateID:   smsTemplateID,
		monthStep:       monthStep,
		now:             now,
		logger:          logger,
	}
}

// GetNotifications returns the caller's notifications within the resolved
// window, rendered for an internal consumer (channel NONE).
//
// Side effect, by contract: every returned record becomes processed. A record
// the user has read through the API must not be delivered again by the send
// job; removing this would reintroduce duplicate notifications.
func (s *NotificationService) GetNotifications(ctx context.Context, quantumID string, unprocessedOnly bool, from, to *time.Time) ([]NotificationDTO, error) {
	now := s.now()
	start, end := resolveWindow(from, to, now, s.monthStep)

	s.logger.Debug("Finding notifications",
		zap.String("quantum_id", quantumID),
		zap.Bool("unprocessed_only", unprocessedOnly),
		zap.Time("start", start),
		zap.Time("end", end),
	)

	records, err := s.repo.FindByQuantumIDAndShiftModifiedBetween(ctx, quantumID, start, end)
	if err != nil {
		return nil, err
	}

	if unprocessedOnly {
		filtered := records[:0]
		for _, n := range records {
			if !n.Processed {
				filtered = append(filtered, n)
			}
		}
		records = filtered
	}

	s.logger.Info("Found notifications",
		zap.String("quantum_id", quantumID),
		zap.Int("count", len(records)),
	)

	dtos := make([]NotificationDTO, 0, len(records))
	var readIDs []int64
	for _, n := range records {
		dtos = append(dtos, NotificationDTO{
			Description:   n.Describe(model.ChannelNone),
			ShiftModified: n.ShiftModified,
			Processed:     n.Processed,
		})
		if !n.Processed {
			readIDs = append(readIDs, n.ID)
		}
	}

	if err := s.repo.MarkProcessed(ctx, readIDs); err != nil {
		return nil, err
	}

	return dtos, nil
}

// SendNotifications is the scheduled send job: it takes every unprocessed
// record, groups per user, and dispatches summary messages. One user's
// failure never aborts the others; their records simply stay unprocessed
// until the next run.
func (s *NotificationService) SendNotifications(ctx context.Context) error {
	started := time.Now()
	defer func() { metrics.SendRunDuration.Observe(time.Since(started).Seconds()) }()

	unprocessed, err := s.repo.FindUnprocessed(ctx)
	if err != nil {
		return fmt.Errorf("failed to load unprocessed notifications: %w", err)
	}
	s.logger.Debug("Sending notifications", zap.Int("found", len(unprocessed)))

	now := s.now()
	for quantumID, group := range groupByQuantumID(unprocessed) {
		if err := s.sendToUser(ctx, quantumID, group, now); err != nil {
			s.logger.Warn("Sending notifications to user failed",
				zap.String("quantum_id", quantumID),
				zap.Int("count", len(group)),
				zap.Error(err),
			)
			continue
		}
		s.logger.Info("Sent notifications for user",
			zap.String("quantum_id", quantumID),
			zap.Int("count", len(group)),
		)
	}

	s.logger.Info("Finished sending notifications")
	return nil
}

func (s *NotificationService) sendToUser(ctx context.Context, quantumID string, records []model.ShiftNotification, now time.Time) error {
	pref, err := s.prefs.GetOrCreate(ctx, quantumID)
	if err != nil {
		return err
	}

	if pref.Snoozed(now) {
		s.logger.Debug("User is snoozed, skipping dispatch",
			zap.String("quantum_id", quantumID),
			zap.Timep("snooze_until", pref.SnoozeUntil),
		)
		return nil
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].DetailStart.Before(records[j].DetailStart)
	})

	for _, chunk := range chunkRecords(records, notify.TemplateSlotCount) {
		if err := s.sendChunk(ctx, pref, chunk); err != nil {
			metrics.RecordProviderError(string(pref.Channel))
			s.publishEvent(contracts.RoutingKeyNotificationFailed, contracts.NotificationFailedPayload{
				QuantumID: quantumID,
				Channel:   string(pref.Channel),
				Count:     len(chunk),
				Error:     err.Error(),
			})
			return err
		}

		ids := make([]int64, len(chunk))
		for i, n := range chunk {
			ids[i] = n.ID
		}
		if err := s.repo.MarkProcessed(ctx, ids); err != nil {
			return err
		}

		if pref.Channel != model.ChannelNone {
			metrics.RecordSent(string(pref.Channel))
			s.publishEvent(contracts.RoutingKeyNotificationSent, contracts.NotificationSentPayload{
				QuantumID: quantumID,
				Channel:   string(pref.Channel),
				Count:     len(chunk),
				SentAt:    now,
			})
		}
	}
	return nil
}

func (s *NotificationService) sendChunk(ctx context.Context, pref *model.UserPreference, chunk []model.ShiftNotification) error {
	switch pref.Channel {
	case model.ChannelEmail:
		return s.client.SendEmail(ctx, s.emailTemplateID, pref.Email, buildSummaryPayload(chunk, pref.Channel))
	case model.ChannelSms:
		return s.client.SendSms(ctx, s.smsTemplateID, pref.Sms, buildSummaryPayload(chunk, pref.Channel))
	case model.ChannelNone:
		// No send capability for this user. The records are still consumed
		// so they don't pile up run after run; NONE users read their history
		// through the API instead.
		s.logger.Info("Skipping sending notifications",
			zap.String("quantum_id", pref.QuantumID),
			zap.Int("count", len(chunk)),
		)
		return nil
	}
	return fmt.Errorf("unknown channel: %q", string(pref.Channel))
}

func (s *NotificationService) publishEvent(routingKey string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(routingKey, payload); err != nil {
		s.logger.Warn("Failed to publish event",
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
	}
}

// buildSummaryPayload fills the provider template: the title names the oldest
// modification in the chunk, each slot holds one rendered line.
func buildSummaryPayload(chunk []model.ShiftNotification, channel model.Channel) map[string]string {
	oldest := chunk[0].ShiftModified
	for _, n := range chunk[1:] {
		if n.ShiftModified.Before(oldest) {
			oldest = n.ShiftModified
		}
	}
	title := "Changes since " + model.FormatTemplateDate(oldest)

	lines := make([]string, len(chunk))
	for i, n := range chunk {
		lines[i] = n.Describe(channel)
	}
	return notify.BuildSummaryPayload(title, lines)
}

func groupByQuantumID(records []model.ShiftNotification) map[string][]model.ShiftNotification {
	groups := make(map[string][]model.ShiftNotification)
	for _, n := range records {
		groups[n.QuantumID] = append(groups[n.QuantumID], n)
	}
	return groups
}

// chunkRecords splits records into consecutive chunks of at most size. Every
// chunk is full except possibly the last.
func chunkRecords(records []model.ShiftNotification, size int) [][]model.ShiftNotification {
	var chunks [][]model.ShiftNotification
	for len(records) > size {
		chunks = append(chunks, records[:size])
		records = records[size:]
	}
	if len(records) > 0 {
		chunks = append(chunks, records)
	}
	return chunks
}
