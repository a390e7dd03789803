package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/example/lingobot/pkg/models"
)

// UserStatistics aggregates a learner's study state.
type UserStatistics struct {
	TotalPhrases    int
	ByStage         map[models.Stage]int
	TotalAttempts   int
	CorrectAttempts int
}

// Accuracy returns the lifetime share of correct attempts.
func (s *UserStatistics) Accuracy() float64 {
	if s.TotalAttempts == 0 {
		return 0
	}
	return float64(s.CorrectAttempts) / float64(s.TotalAttempts)
}

// StatisticsRepository builds aggregate views over progress and attempts.
type StatisticsRepository struct {
	db *sqlx.DB
}

// NewStatisticsRepository creates a new repository instance.
func NewStatisticsRepository(db *sqlx.DB) *StatisticsRepository {
	return &StatisticsRepository{db: db}
}

// GetUserStatistics returns per-stage phrase counts and lifetime accuracy.
func (r *StatisticsRepository) GetUserStatistics(ctx context.Context, userID int64) (*UserStatistics, error) {
	stats := &UserStatistics{ByStage: make(map[models.Stage]int)}

	type stageCount struct {
		Stage models.Stage `db:"stage"`
		Count int          `db:"count"`
	}
	var rows []stageCount
	query := r.db.Rebind("SELECT stage, COUNT(*) AS count FROM learning_progress WHERE user_id = ? GROUP BY stage")
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("count stages for user %d: %w", userID, err)
	}
	for _, row := range rows {
		stats.ByStage[row.Stage] = row.Count
		stats.TotalPhrases += row.Count
	}

	type attemptCount struct {
		Total   int `db:"total"`
		Correct int `db:"correct"`
	}
	var counts attemptCount
	query = r.db.Rebind(`
		SELECT COUNT(*) AS total,
		       COALESCE(SUM(CASE WHEN was_correct THEN 1 ELSE 0 END), 0) AS correct
		FROM quiz_attempts WHERE user_id = ?
	`)
	if err := r.db.GetContext(ctx, &counts, query, userID); err != nil {
		return nil, fmt.Errorf("count attempts for user %d: %w", userID, err)
	}
	stats.TotalAttempts = counts.Total
	stats.CorrectAttempts = counts.Correct

	return stats, nil
}
