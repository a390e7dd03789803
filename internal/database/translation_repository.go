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

// TranslationRepository handles cached translations, keyed by
// (phrase, target language). Entries never expire.
type TranslationRepository struct {
	db *sqlx.DB
}

// NewTranslationRepository creates a new repository instance.
func NewTranslationRepository(db *sqlx.DB) *TranslationRepository {
	return &TranslationRepository{db: db}
}

// Get returns the cached translation for one target language, or (nil, nil)
// on a cache miss.
func (r *TranslationRepository) Get(ctx context.Context, phraseID int64, targetLang string) (*models.TranslationRecord, error) {
	var record models.TranslationRecord
	query := r.db.Rebind("SELECT * FROM translations WHERE phrase_id = ? AND target_lang = ?")
	err := r.db.GetContext(ctx, &record, query, phraseID, models.NormalizeLang(targetLang))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get translation for phrase %d (%s): %w", phraseID, targetLang, err)
	}
	return &record, nil
}

// GetForPhrase returns all cached translations for the given target
// languages, keyed by target language. Missing languages are simply absent.
func (r *TranslationRepository) GetForPhrase(ctx context.Context, phraseID int64, targetLangs []string) (map[string]models.TranslationRecord, error) {
	if len(targetLangs) == 0 {
		return map[string]models.TranslationRecord{}, nil
	}
	langs := make([]string, 0, len(targetLangs))
	for _, l := range targetLangs {
		langs = append(langs, models.NormalizeLang(l))
	}

	query, args, err := sqlx.In("SELECT * FROM translations WHERE phrase_id = ? AND target_lang IN (?)", phraseID, langs)
	if err != nil {
		return nil, fmt.Errorf("build translation lookup: %w", err)
	}
	query = r.db.Rebind(query)

	var records []models.TranslationRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("lookup translations for phrase %d: %w", phraseID, err)
	}

	byLang := make(map[string]models.TranslationRecord, len(records))
	for _, rec := range records {
		byLang[rec.TargetLang] = rec
	}
	return byLang, nil
}

// Upsert stores a translation, overwriting any entry another request raced
// in for the same (phrase, target language).
func (r *TranslationRepository) Upsert(ctx context.Context, record *models.TranslationRecord) error {
	now := time.Now().UTC()
	record.TargetLang = models.NormalizeLang(record.TargetLang)
	query := r.db.Rebind(`
		INSERT INTO translations (phrase_id, target_lang, payload, model_id, usage_meta, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(phrase_id, target_lang) DO UPDATE SET
			payload = excluded.payload,
			model_id = excluded.model_id,
			usage_meta = excluded.usage_meta,
			updated_at = excluded.updated_at
	`)
	if _, err := r.db.ExecContext(ctx, query,
		record.PhraseID, record.TargetLang, record.Payload,
		record.ModelID, record.Usage, now, now,
	); err != nil {
		return fmt.Errorf("upsert translation for phrase %d (%s): %w", record.PhraseID, record.TargetLang, err)
	}
	return nil
}

// DeleteForPhrase removes all cached translations of a phrase. Only used
// for explicit data-removal requests.
func (r *TranslationRepository) DeleteForPhrase(ctx context.Context, phraseID int64) error {
	query := r.db.Rebind("DELETE FROM translations WHERE phrase_id = ?")
	if _, err := r.db.ExecContext(ctx, query, phraseID); err != nil {
		return fmt.Errorf("delete translations for phrase %d: %w", phraseID, err)
	}
	return nil
}
