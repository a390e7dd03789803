package models

import (
	"database/sql"
	"fmt"
	"time"
)

// Stage describes how well a learner knows one phrase. Transitions are
// strictly forward: basic -> intermediate -> advanced -> mastered.
type Stage string

const (
	StageBasic        Stage = "basic"
	StageIntermediate Stage = "intermediate"
	StageAdvanced     Stage = "advanced"
	StageMastered     Stage = "mastered"
)

// stageSuccessor is the closed adjacency table for stage transitions.
// Mastered is terminal and has no entry.
var stageSuccessor = map[Stage]Stage{
	StageBasic:        StageIntermediate,
	StageIntermediate: StageAdvanced,
	StageAdvanced:     StageMastered,
}

// Valid reports whether s is one of the four known stages.
func (s Stage) Valid() bool {
	switch s {
	case StageBasic, StageIntermediate, StageAdvanced, StageMastered:
		return true
	}
	return false
}

// Next returns the only stage s may advance to. ok is false for mastered.
func (s Stage) Next() (next Stage, ok bool) {
	next, ok = stageSuccessor[s]
	return next, ok
}

// ParseStage converts a stored string into a Stage.
func ParseStage(raw string) (Stage, error) {
	s := Stage(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown stage %q", raw)
	}
	return s, nil
}

// LearningProgress tracks one learner's review state for one phrase.
// The correct/incorrect counters are scoped to the current stage and are
// reset whenever the stage advances.
type LearningProgress struct {
	ID             int64        `json:"id" db:"id"`
	UserID         int64        `json:"user_id" db:"user_id"`
	PhraseID       int64        `json:"phrase_id" db:"phrase_id"`
	Stage          Stage        `json:"stage" db:"stage"`
	TimesReviewed  int          `json:"times_reviewed" db:"times_reviewed"`
	TimesCorrect   int          `json:"times_correct" db:"times_correct"`
	TimesIncorrect int          `json:"times_incorrect" db:"times_incorrect"`
	NextReviewDate sql.NullTime `json:"next_review_date" db:"next_review_date"`
	LastReviewedAt sql.NullTime `json:"last_reviewed_at" db:"last_reviewed_at"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at" db:"updated_at"`
}

// Due reports whether the record is due for review at the given time.
// Mastered records (null next review date) are never due.
func (p *LearningProgress) Due(now time.Time) bool {
	return p.NextReviewDate.Valid && !p.NextReviewDate.Time.After(now)
}
