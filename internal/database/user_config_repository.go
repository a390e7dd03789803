package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// UserConfigRepository handles per-learner quiz settings.
type UserConfigRepository struct {
	db               *sqlx.DB
	defaultFrequency int
}

// NewUserConfigRepository creates a new repository instance.
// defaultFrequency seeds the quiz frequency for learners without a row.
func NewUserConfigRepository(db *sqlx.DB, defaultFrequency int) *UserConfigRepository {
	return &UserConfigRepository{db: db, defaultFrequency: defaultFrequency}
}

// Get returns the learner's config, falling back to defaults when the
// learner never changed anything.
func (r *UserConfigRepository) Get(ctx context.Context, userID int64) (*UserConfig, error) {
	var cfg UserConfig
	query := r.db.Rebind("SELECT * FROM user_configs WHERE user_id = ?")
	err := r.db.GetContext(ctx, &cfg, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return &UserConfig{
			UserID:          userID,
			QuizModeEnabled: true,
			QuizFrequency:   r.defaultFrequency,
			ReminderHour:    9,
			ReminderEnabled: true,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get config for user %d: %w", userID, err)
	}
	return &cfg, nil
}

// Upsert stores the learner's config.
func (r *UserConfigRepository) Upsert(ctx context.Context, cfg *UserConfig) error {
	now := time.Now().UTC()
	query := r.db.Rebind(`
		INSERT INTO user_configs (user_id, quiz_mode_enabled, quiz_frequency, reminder_hour, reminder_enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			quiz_mode_enabled = excluded.quiz_mode_enabled,
			quiz_frequency = excluded.quiz_frequency,
			reminder_hour = excluded.reminder_hour,
			reminder_enabled = excluded.reminder_enabled,
			updated_at = excluded.updated_at
	`)
	if _, err := r.db.ExecContext(ctx, query,
		cfg.UserID, cfg.QuizModeEnabled, cfg.QuizFrequency,
		cfg.ReminderHour, cfg.ReminderEnabled, now, now,
	); err != nil {
		return fmt.Errorf("upsert config for user %d: %w", cfg.UserID, err)
	}
	return nil
}
