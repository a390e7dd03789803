package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/example/lingobot/pkg/models"
)

// CandidateFilters narrows the due-candidate query. The zero value selects
// the standard review queue: due, not mastered, quizzable, any target
// language the learner studies.
type CandidateFilters struct {
	// ExcludeIDs lists phrase ids already shown this practice session.
	ExcludeIDs []int64
	// Stage restricts candidates to one stage when non-nil.
	Stage *models.Stage
	// TargetLang restricts candidates to one source language when non-empty.
	TargetLang string
	// IgnoreDueDate bypasses the due-date filter (free-browsing practice).
	IgnoreDueDate bool
}

// ProgressRepository handles per-(learner, phrase) review state.
type ProgressRepository struct {
	db *sqlx.DB
}

// NewProgressRepository creates a new repository instance.
func NewProgressRepository(db *sqlx.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

func (r *ProgressRepository) builder() sq.StatementBuilderType {
	if r.db.DriverName() == "postgres" {
		return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

// GetByUserAndPhrase returns progress for a specific learner and phrase.
func (r *ProgressRepository) GetByUserAndPhrase(ctx context.Context, userID, phraseID int64) (*models.LearningProgress, error) {
	var progress models.LearningProgress
	query := r.db.Rebind("SELECT * FROM learning_progress WHERE user_id = ? AND phrase_id = ?")
	err := r.db.GetContext(ctx, &progress, query, userID, phraseID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d phrase %d: %w", userID, phraseID, ErrProgressNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get progress for user %d phrase %d: %w", userID, phraseID, err)
	}
	return &progress, nil
}

// CreateIfAbsent inserts a fresh progress record unless one already exists
// for the (learner, phrase) pair. The first search wins; a concurrent
// second "first search" detects the existing row and no-ops.
func (r *ProgressRepository) CreateIfAbsent(ctx context.Context, progress *models.LearningProgress) (created bool, err error) {
	now := time.Now().UTC()
	progress.CreatedAt = now
	progress.UpdatedAt = now

	if r.db.DriverName() == "postgres" {
		query := `
			INSERT INTO learning_progress (
				user_id, phrase_id, stage, times_reviewed, times_correct, times_incorrect,
				next_review_date, last_reviewed_at, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (user_id, phrase_id) DO NOTHING
			RETURNING id
		`
		err := r.db.QueryRowContext(ctx, query,
			progress.UserID, progress.PhraseID, progress.Stage,
			progress.TimesReviewed, progress.TimesCorrect, progress.TimesIncorrect,
			progress.NextReviewDate, progress.LastReviewedAt, progress.CreatedAt, progress.UpdatedAt,
		).Scan(&progress.ID)
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("create progress for user %d phrase %d: %w", progress.UserID, progress.PhraseID, err)
		}
		return true, nil
	}

	query := `
		INSERT INTO learning_progress (
			user_id, phrase_id, stage, times_reviewed, times_correct, times_incorrect,
			next_review_date, last_reviewed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		progress.UserID, progress.PhraseID, progress.Stage,
		progress.TimesReviewed, progress.TimesCorrect, progress.TimesIncorrect,
		progress.NextReviewDate, progress.LastReviewedAt, progress.CreatedAt, progress.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("create progress for user %d phrase %d: %w", progress.UserID, progress.PhraseID, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("read progress id: %w", err)
	}
	progress.ID = id
	return true, nil
}

// Update persists review state. Runs against q so the caller can bundle it
// with the attempt log in one transaction.
func (r *ProgressRepository) Update(ctx context.Context, q sqlx.ExtContext, progress *models.LearningProgress) error {
	progress.UpdatedAt = time.Now().UTC()
	query := q.Rebind(`
		UPDATE learning_progress SET
			stage = ?,
			times_reviewed = ?,
			times_correct = ?,
			times_incorrect = ?,
			next_review_date = ?,
			last_reviewed_at = ?,
			updated_at = ?
		WHERE id = ?
	`)
	result, err := q.ExecContext(ctx, query,
		progress.Stage, progress.TimesReviewed, progress.TimesCorrect, progress.TimesIncorrect,
		progress.NextReviewDate, progress.LastReviewedAt, progress.UpdatedAt, progress.ID,
	)
	if err != nil {
		return fmt.Errorf("update progress %d: %w", progress.ID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("progress %d: %w", progress.ID, ErrProgressNotFound)
	}
	return nil
}

// SelectCandidate returns the most overdue eligible progress record for the
// learner, or (nil, nil) when nothing qualifies. Eligibility: stage not
// mastered, phrase quizzable, phrase language among langs, due (unless
// bypassed), not excluded.
func (r *ProgressRepository) SelectCandidate(ctx context.Context, userID int64, langs []string, now time.Time, filters CandidateFilters) (*models.LearningProgress, error) {
	q := r.builder().
		Select("lp.*").
		From("learning_progress lp").
		Join("phrases p ON p.id = lp.phrase_id").
		Where(sq.Eq{"lp.user_id": userID}).
		Where(sq.NotEq{"lp.stage": models.StageMastered}).
		Where(sq.Eq{"p.quizzable": true})

	if filters.TargetLang != "" {
		q = q.Where(sq.Eq{"p.source_lang": models.NormalizeLang(filters.TargetLang)})
	} else if len(langs) > 0 {
		q = q.Where(sq.Eq{"p.source_lang": langs})
	}
	if filters.Stage != nil {
		q = q.Where(sq.Eq{"lp.stage": *filters.Stage})
	}
	if !filters.IgnoreDueDate {
		q = q.Where(sq.LtOrEq{"lp.next_review_date": now})
	}
	if len(filters.ExcludeIDs) > 0 {
		q = q.Where(sq.NotEq{"lp.phrase_id": filters.ExcludeIDs})
	}

	// Most overdue first. The eligible set is learner-scoped and small, so
	// a sorted scan stands in for a priority queue.
	query, args, err := q.OrderBy("lp.next_review_date ASC").Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build candidate query: %w", err)
	}

	var progress models.LearningProgress
	err = r.db.GetContext(ctx, &progress, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select candidate for user %d: %w", userID, err)
	}
	return &progress, nil
}

// CountDue returns the number of records due for review right now.
func (r *ProgressRepository) CountDue(ctx context.Context, userID int64, langs []string, now time.Time) (int, error) {
	q := r.builder().
		Select("COUNT(*)").
		From("learning_progress lp").
		Join("phrases p ON p.id = lp.phrase_id").
		Where(sq.Eq{"lp.user_id": userID}).
		Where(sq.NotEq{"lp.stage": models.StageMastered}).
		Where(sq.Eq{"p.quizzable": true}).
		Where(sq.LtOrEq{"lp.next_review_date": now})
	if len(langs) > 0 {
		q = q.Where(sq.Eq{"p.source_lang": langs})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build due count query: %w", err)
	}
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count due for user %d: %w", userID, err)
	}
	return count, nil
}

// DeleteForUser removes all progress for a learner. Only used for explicit
// data-removal requests.
func (r *ProgressRepository) DeleteForUser(ctx context.Context, userID int64) error {
	query := r.db.Rebind("DELETE FROM learning_progress WHERE user_id = ?")
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("delete progress for user %d: %w", userID, err)
	}
	return nil
}
