package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"shiftnotify/internal/model"
	"shiftnotify/pkg/metrics"
)

type PreferenceRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPreferenceRepository(db *pgxpool.Pool, logger *zap.Logger) *PreferenceRepository {
	return &PreferenceRepository{db: db, logger: logger}
}

// GetOrCreate returns the user's notification preference, creating a default
// row (channel NONE, no snooze) the first time a user is seen.
func (r *PreferenceRepository) GetOrCreate(ctx context.Context, quantumID string) (*model.UserPreference, error) {
	started := time.Now()
	defer func() { metrics.RecordDBQueryDuration("get_or_create", "user_preference", time.Since(started)) }()

	pref, err := r.get(ctx, quantumID)
	if err == nil {
		return pref, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	r.logger.Info("Creating default preference", zap.String("quantum_id", quantumID))
	insert := `
        INSERT INTO user_preference (quantum_id, channel, email, sms, snooze_until)
        VALUES ($1, $2, '', '', NULL)
        ON CONFLICT (quantum_id) DO NOTHING
    `
	if _, err := r.db.Exec(ctx, insert, quantumID, string(model.ChannelNone)); err != nil {
		return nil, fmt.Errorf("failed to create preference for %s: %w", quantumID, err)
	}

	return r.get(ctx, quantumID)
}

func (r *PreferenceRepository) get(ctx context.Context, quantumID string) (*model.UserPreference, error) {
	query := `
        SELECT quantum_id, channel, COALESCE(email, ''), COALESCE(sms, ''), snooze_until
        FROM user_preference
        WHERE quantum_id = $1
    `
	var pref model.UserPreference
	var channel string
	err := r.db.QueryRow(ctx, query, quantumID).Scan(
		&pref.QuantumID,
		&channel,
		&pref.Email,
		&pref.Sms,
		&pref.SnoozeUntil,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to query preference for %s: %w", quantumID, err)
	}

	ch, err := model.ParseChannel(channel)
	if err != nil {
		return nil, fmt.Errorf("preference %s: %w", quantumID, err)
	}
	pref.Channel = ch

	return &pref, nil
}
