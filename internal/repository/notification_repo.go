package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"shiftnotify/internal/model"
	"shiftnotify/pkg/metrics"
)

type NotificationRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewNotificationRepository(db *pgxpool.Pool, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{db: db, logger: logger}
}

func (r *NotificationRepository) Insert(ctx context.Context, n *model.ShiftNotification) error {
	started := time.Now()
	defer func() { metrics.RecordDBQueryDuration("insert", "notification", time.Since(started)) }()

	query := `
        INSERT INTO notification (quantum_id, shift_modified, detail_start, detail_end, activity, parent_type, action_type, processed)
        VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)
        RETURNING id
    `
	err := r.db.QueryRow(ctx, query,
		n.QuantumID,
		n.ShiftModified,
		n.DetailStart,
		n.DetailEnd,
		n.Activity,
		string(n.ParentType),
		string(n.ActionType),
		n.Processed,
	).Scan(&n.ID)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func (r *NotificationRepository) FindUnprocessed(ctx context.Context) ([]model.ShiftNotification, error) {
	started := time.Now()
	defer func() { metrics.RecordDBQueryDuration("select_unprocessed", "notification", time.Since(started)) }()

	query := `
        SELECT id, quantum_id, shift_modified, detail_start, detail_end, COALESCE(activity, ''), parent_type, action_type, processed
        FROM notification
        WHERE processed = false
    `
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query unprocessed notifications: %w", err)
	}
	defer rows.Close()

	return scanNotifications(rows)
}

func (r *NotificationRepository) FindByQuantumIDAndShiftModifiedBetween(ctx context.Context, quantumID string, start, end time.Time) ([]model.ShiftNotification, error) {
	started := time.Now()
	defer func() { metrics.RecordDBQueryDuration("select_window", "notification", time.Since(started)) }()

	query := `
        SELECT id, quantum_id, shift_modified, detail_start, detail_end, COALESCE(activity, ''), parent_type, action_type, processed
        FROM notification
        WHERE quantum_id = $1 AND shift_modified BETWEEN $2 AND $3
        ORDER BY shift_modified
    `
	rows, err := r.db.Query(ctx, query, quantumID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications for %s: %w", quantumID, err)
	}
	defer rows.Close()

	return scanNotifications(rows)
}

// MarkProcessed flips the processed flag for the given records. The flag is
// monotonic: it never goes back to false, so repeating this call is a no-op.
func (r *NotificationRepository) MarkProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	started := time.Now()
	defer func() { metrics.RecordDBQueryDuration("mark_processed", "notification", time.Since(started)) }()

	query := `UPDATE notification SET processed = true WHERE id = ANY($1)`
	if _, err := r.db.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("failed to mark notifications processed: %w", err)
	}
	return nil
}

func scanNotifications(rows pgx.Rows) ([]model.ShiftNotification, error) {
	var result []model.ShiftNotification
	for rows.Next() {
		var n model.ShiftNotification
		var parentType, actionType string
		if err := rows.Scan(
			&n.ID,
			&n.QuantumID,
			&n.ShiftModified,
			&n.DetailStart,
			&n.DetailEnd,
			&n.Activity,
			&parentType,
			&actionType,
			&n.Processed,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}

		// Enum columns are validated on read: an unknown value stored by a
		// newer writer must fail loudly, not silently change meaning.
		pt, err := model.ParseParentType(parentType)
		if err != nil {
			return nil, fmt.Errorf("notification %d: %w", n.ID, err)
		}
		at, err := model.ParseActionType(actionType)
		if err != nil {
			return nil, fmt.Errorf("notification %d: %w", n.ID, err)
		}
		n.ParentType = pt
		n.ActionType = at

		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read notifications: %w", err)
	}
	return result, nil
}
