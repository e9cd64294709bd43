package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	contracts "shiftnotify/contracts/mq"
	"shiftnotify/internal/model"
	"shiftnotify/pkg/metrics"
	"shiftnotify/pkg/mq"
	"shiftnotify/pkg/util"
)

const handlerName = "shift_changed"

// NotificationInserter is the storage capability the handler needs.
type NotificationInserter interface {
	Insert(ctx context.Context, n *model.ShiftNotification) error
}

// Deduper guards against replayed events.
type Deduper interface {
	AcquireOnce(ctx context.Context, handler, eventID string) bool
	Release(ctx context.Context, handler, eventID string)
}

// ShiftChangedHandler consumes shift.changed events from the upstream feeder
// and stores them as unprocessed notifications for the send job to pick up.
type ShiftChangedHandler struct {
	repo    NotificationInserter
	deduper Deduper
	logger  *zap.Logger
}

func NewShiftChangedHandler(repo NotificationInserter, deduper Deduper, logger *zap.Logger) *ShiftChangedHandler {
	return &ShiftChangedHandler{
		repo:    repo,
		deduper: deduper,
		logger:  logger,
	}
}

func (h *ShiftChangedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p contracts.ShiftChangedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		metrics.RecordIngested("invalid")
		h.logger.Error("Malformed shift.changed payload", zap.Error(err))
		return fmt.Errorf("%w: %v", mq.ErrDrop, err)
	}

	parentType, err := model.ParseParentType(p.ParentType)
	if err != nil {
		metrics.RecordIngested("invalid")
		h.logger.Error("Rejected shift.changed event",
			zap.String("event_id", p.EventID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", mq.ErrDrop, err)
	}
	actionType, err := model.ParseActionType(p.ActionType)
	if err != nil {
		metrics.RecordIngested("invalid")
		h.logger.Error("Rejected shift.changed event",
			zap.String("event_id", p.EventID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", mq.ErrDrop, err)
	}

	notification := model.ShiftNotification{
		QuantumID:     p.QuantumID,
		ShiftModified: p.ShiftModified,
		DetailStart:   p.DetailStart,
		DetailEnd:     p.DetailEnd,
		Activity:      p.Activity,
		ParentType:    parentType,
		ActionType:    actionType,
		Processed:     false,
	}
	if err := notification.Validate(); err != nil {
		metrics.RecordIngested("invalid")
		h.logger.Error("Rejected shift.changed event",
			zap.String("event_id", p.EventID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", mq.ErrDrop, err)
	}

	// The feeder delivers at-least-once; the event id dedupes replays.
	if !h.deduper.AcquireOnce(ctx, handlerName, p.EventID.String()) {
		metrics.RecordIngested("duplicate")
		return nil
	}

	if err := h.repo.Insert(ctx, &notification); err != nil {
		if retryable, kind := util.IsRetryableError(err); !retryable {
			h.logger.Error("Dropping shift.changed event after storage error",
				zap.String("event_id", p.EventID.String()),
				zap.String("error_type", kind),
				zap.Error(err),
			)
			return fmt.Errorf("%w: %v", mq.ErrDrop, err)
		}
		// The message will be requeued; free the dedup key so the retry is
		// not mistaken for a replay.
		h.deduper.Release(ctx, handlerName, p.EventID.String())
		return err
	}

	metrics.RecordIngested("stored")
	h.logger.Debug("Stored shift change",
		zap.String("event_id", p.EventID.String()),
		zap.String("quantum_id", p.QuantumID),
		zap.String("action_type", string(actionType)),
	)
	return nil
}
