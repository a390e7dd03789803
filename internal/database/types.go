package database

import "time"

// UserConfig represents per-learner quiz and reminder settings.
type UserConfig struct {
	UserID          int64     `db:"user_id"`
	QuizModeEnabled bool      `db:"quiz_mode_enabled"`
	QuizFrequency   int       `db:"quiz_frequency"`
	ReminderHour    int       `db:"reminder_hour"`
	ReminderEnabled bool      `db:"reminder_enabled"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}
