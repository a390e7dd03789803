package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TranslationEntry is a single surface form of a translated phrase:
// the form itself, a grammatical tag ("noun", "verb", ...) and a short gloss.
type TranslationEntry struct {
	Form  string `json:"form"`
	Tag   string `json:"tag"`
	Gloss string `json:"gloss"`
}

// TranslationPayload is the structured body of one cached translation.
type TranslationPayload struct {
	Entries []TranslationEntry `json:"entries"`
}

// Validate rejects payloads that would poison the cache.
func (p TranslationPayload) Validate() error {
	if len(p.Entries) == 0 {
		return fmt.Errorf("translation payload has no entries")
	}
	for i, e := range p.Entries {
		if e.Form == "" {
			return fmt.Errorf("translation entry %d has empty form", i)
		}
	}
	return nil
}

// Forms returns every surface form in order. Used as the valid-answer list
// when the phrase is quizzed against this translation.
func (p TranslationPayload) Forms() []string {
	forms := make([]string, 0, len(p.Entries))
	for _, e := range p.Entries {
		forms = append(forms, e.Form)
	}
	return forms
}

// MarshalPayload serializes a payload for storage.
func MarshalPayload(p TranslationPayload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal translation payload: %w", err)
	}
	return string(data), nil
}

// UnmarshalPayload parses and validates a stored payload.
func UnmarshalPayload(raw string) (TranslationPayload, error) {
	var p TranslationPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return TranslationPayload{}, fmt.Errorf("unmarshal translation payload: %w", err)
	}
	if err := p.Validate(); err != nil {
		return TranslationPayload{}, err
	}
	return p, nil
}

// TranslationRecord is one cached translation of one phrase into one target
// language. At most one record exists per (phrase, target language); the
// cache never expires.
type TranslationRecord struct {
	ID         int64     `json:"id" db:"id"`
	PhraseID   int64     `json:"phrase_id" db:"phrase_id"`
	TargetLang string    `json:"target_lang" db:"target_lang"`
	Payload    string    `json:"payload" db:"payload"`
	ModelID    string    `json:"model_id" db:"model_id"`
	Usage      string    `json:"usage" db:"usage_meta"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// CacheStatus tells a caller whether a target language was served from the
// cache or freshly translated.
type CacheStatus string

const (
	CacheStatusCached CacheStatus = "cached"
	CacheStatusFresh  CacheStatus = "fresh"
)
