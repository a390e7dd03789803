package models

import (
	"database/sql"
	"strings"
	"time"
)

// QuizzableMaxLen is the longest phrase text that is still scheduled for
// quizzing. Longer texts (full sentences) are stored and translated but
// never reviewed.
const QuizzableMaxLen = 48

// Phrase represents a deduplicated vocabulary unit in a specific source language.
type Phrase struct {
	ID          int64          `json:"id" db:"id"`
	Text        string         `json:"text" db:"text"`
	SourceLang  string         `json:"source_lang" db:"source_lang"`
	Quizzable   bool           `json:"quizzable" db:"quizzable"`
	SearchCount int            `json:"search_count" db:"search_count"`
	GrammarNote sql.NullString `json:"grammar_note" db:"grammar_note"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// NormalizePhraseText produces the canonical form used for phrase identity:
// surrounding whitespace stripped and everything lowercased.
func NormalizePhraseText(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// NormalizeLang canonicalizes a language code ("DE " -> "de").
func NormalizeLang(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// NewPhrase builds a phrase from raw user input. The quizzable flag is
// decided once, at creation time.
func NewPhrase(text, sourceLang string) Phrase {
	normalized := NormalizePhraseText(text)
	return Phrase{
		Text:       normalized,
		SourceLang: NormalizeLang(sourceLang),
		Quizzable:  len([]rune(normalized)) <= QuizzableMaxLen,
	}
}
