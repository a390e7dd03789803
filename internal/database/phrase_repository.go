package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/lingobot/pkg/models"
)

// PhraseRepository handles canonical phrase storage. Exactly one row exists
// per (normalized text, source language).
type PhraseRepository struct {
	db *sqlx.DB
}

// NewPhraseRepository creates a new repository instance.
func NewPhraseRepository(db *sqlx.DB) *PhraseRepository {
	return &PhraseRepository{db: db}
}

// GetByID returns a phrase by ID.
func (r *PhraseRepository) GetByID(ctx context.Context, id int64) (*models.Phrase, error) {
	var phrase models.Phrase
	query := r.db.Rebind("SELECT * FROM phrases WHERE id = ?")
	err := r.db.GetContext(ctx, &phrase, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("phrase %d: %w", id, ErrPhraseNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get phrase %d: %w", id, err)
	}
	return &phrase, nil
}

// GetByText returns the phrase for normalized text + source language, or
// ErrPhraseNotFound.
func (r *PhraseRepository) GetByText(ctx context.Context, text, sourceLang string) (*models.Phrase, error) {
	var phrase models.Phrase
	query := r.db.Rebind("SELECT * FROM phrases WHERE text = ? AND source_lang = ?")
	err := r.db.GetContext(ctx, &phrase, query, models.NormalizePhraseText(text), models.NormalizeLang(sourceLang))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("phrase %q (%s): %w", text, sourceLang, ErrPhraseNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get phrase by text: %w", err)
	}
	return &phrase, nil
}

// GetOrCreate resolves the phrase for (text, sourceLang), creating it on
// first lookup. A concurrent duplicate insert falls back to reading the
// winning row. created reports whether this call inserted the phrase.
func (r *PhraseRepository) GetOrCreate(ctx context.Context, text, sourceLang string) (phrase *models.Phrase, created bool, err error) {
	candidate := models.NewPhrase(text, sourceLang)
	if candidate.Text == "" {
		return nil, false, fmt.Errorf("phrase text must not be blank")
	}
	if candidate.SourceLang == "" {
		return nil, false, fmt.Errorf("source language must not be blank")
	}

	existing, err := r.GetByText(ctx, candidate.Text, candidate.SourceLang)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrPhraseNotFound) {
		return nil, false, err
	}

	now := time.Now().UTC()
	candidate.CreatedAt = now
	candidate.UpdatedAt = now
	id, err := r.insert(ctx, &candidate)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the first-insert race; the other row wins.
			existing, getErr := r.GetByText(ctx, candidate.Text, candidate.SourceLang)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("create phrase %q: %w", candidate.Text, err)
	}
	candidate.ID = id
	return &candidate, true, nil
}

func (r *PhraseRepository) insert(ctx context.Context, phrase *models.Phrase) (int64, error) {
	if r.db.DriverName() == "postgres" {
		query := `
			INSERT INTO phrases (text, source_lang, quizzable, search_count, grammar_note, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`
		var id int64
		err := r.db.QueryRowContext(ctx, query,
			phrase.Text, phrase.SourceLang, phrase.Quizzable, phrase.SearchCount,
			phrase.GrammarNote, phrase.CreatedAt, phrase.UpdatedAt,
		).Scan(&id)
		return id, err
	}

	query := `
		INSERT INTO phrases (text, source_lang, quizzable, search_count, grammar_note, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		phrase.Text, phrase.SourceLang, phrase.Quizzable, phrase.SearchCount,
		phrase.GrammarNote, phrase.CreatedAt, phrase.UpdatedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// IncrementSearchCount bumps the lookup counter for a phrase.
func (r *PhraseRepository) IncrementSearchCount(ctx context.Context, id int64) error {
	query := r.db.Rebind("UPDATE phrases SET search_count = search_count + 1, updated_at = ? WHERE id = ?")
	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("increment search count for phrase %d: %w", id, err)
	}
	return nil
}

// SetGrammarNote stores the cached grammatical-metadata blob.
func (r *PhraseRepository) SetGrammarNote(ctx context.Context, id int64, note string) error {
	query := r.db.Rebind("UPDATE phrases SET grammar_note = ?, updated_at = ? WHERE id = ?")
	if _, err := r.db.ExecContext(ctx, query, note, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("set grammar note for phrase %d: %w", id, err)
	}
	return nil
}

// Delete removes a phrase. Only used for explicit data-removal requests.
func (r *PhraseRepository) Delete(ctx context.Context, id int64) error {
	query := r.db.Rebind("DELETE FROM phrases WHERE id = ?")
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete phrase %d: %w", id, err)
	}
	return nil
}
