package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/lingobot/pkg/models"
)

// AttemptRepository logs evaluated quiz attempts.
type AttemptRepository struct {
	db *sqlx.DB
}

// NewAttemptRepository creates a new repository instance.
func NewAttemptRepository(db *sqlx.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// Insert logs an attempt. Runs against q so the caller can bundle it with
// the progress update in one transaction.
func (r *AttemptRepository) Insert(ctx context.Context, q sqlx.ExtContext, attempt *models.QuizAttempt) error {
	attempt.CreatedAt = time.Now().UTC()
	query := q.Rebind(`
		INSERT INTO quiz_attempts (user_id, phrase_id, question_type, question, options, correct_answers, user_answer, was_correct, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if _, err := q.ExecContext(ctx, query,
		attempt.UserID, attempt.PhraseID, attempt.QuestionType, attempt.Question,
		attempt.Options, attempt.CorrectAnswers, attempt.UserAnswer,
		attempt.WasCorrect, attempt.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert quiz attempt for user %d phrase %d: %w", attempt.UserID, attempt.PhraseID, err)
	}
	return nil
}

// ListRecent returns the learner's latest attempts, newest first.
func (r *AttemptRepository) ListRecent(ctx context.Context, userID int64, limit int) ([]models.QuizAttempt, error) {
	var attempts []models.QuizAttempt
	query := r.db.Rebind("SELECT * FROM quiz_attempts WHERE user_id = ? ORDER BY created_at DESC LIMIT ?")
	if err := r.db.SelectContext(ctx, &attempts, query, userID, limit); err != nil {
		return nil, fmt.Errorf("list attempts for user %d: %w", userID, err)
	}
	return attempts, nil
}
