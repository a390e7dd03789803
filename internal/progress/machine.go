// Package progress implements the forward-only review-stage state machine.
// Stages advance basic -> intermediate -> advanced -> mastered on fixed
// consecutive-correct thresholds; review intervals are fixed lookup tables
// keyed by stage, not an adaptive ease-factor scheme.
package progress

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/lingobot/pkg/models"
)

// ErrInvalidTransition marks a stage transition outside the adjacency
// table. This is a programming error, never a user-facing outcome.
var ErrInvalidTransition = errors.New("invalid stage transition")

// advanceThresholds is the number of consecutive correct answers, counted
// since the last stage change, needed to leave each stage.
var advanceThresholds = map[models.Stage]int{
	models.StageBasic:        2,
	models.StageIntermediate: 2,
	models.StageAdvanced:     3,
}

// Review intervals in days, selected by the stage that holds after any
// advancement and by the correctness of the triggering answer.
var (
	correctIntervals = map[models.Stage]int{
		models.StageBasic:        1,
		models.StageIntermediate: 3,
		models.StageAdvanced:     7,
	}
	// A second-or-later consecutive correct answer in advanced earns the
	// long interval.
	advancedStreakInterval = 14
	incorrectIntervals     = map[models.Stage]int{
		models.StageBasic:        0,
		models.StageIntermediate: 1,
		models.StageAdvanced:     3,
	}
)

// Transition reports the outcome of applying one quiz result.
type Transition struct {
	OldStage       models.Stage
	NewStage       models.Stage
	Advanced       bool
	NextReviewDate sql.NullTime
}

// Machine applies quiz results to learning-progress records.
type Machine struct{}

// NewMachine creates a state machine with the fixed stage policy.
func NewMachine() *Machine {
	return &Machine{}
}

// advance moves p to the next stage, validating against the adjacency
// table and resetting the per-stage counters.
func (m *Machine) advance(p *models.LearningProgress) error {
	next, ok := p.Stage.Next()
	if !ok {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, p.Stage)
	}
	p.Stage = next
	p.TimesCorrect = 0
	p.TimesIncorrect = 0
	return nil
}

// Apply updates p in place for one quiz result and computes the next
// review date relative to now. The caller persists p (and the attempt log)
// in one transaction.
func (m *Machine) Apply(p *models.LearningProgress, wasCorrect bool, now time.Time) (Transition, error) {
	if !p.Stage.Valid() {
		return Transition{}, fmt.Errorf("progress %d: unknown stage %q", p.ID, p.Stage)
	}
	if p.Stage == models.StageMastered {
		return Transition{}, fmt.Errorf("progress %d: %w: mastered phrases are never reviewed", p.ID, ErrInvalidTransition)
	}

	oldStage := p.Stage
	p.TimesReviewed++
	p.LastReviewedAt = sql.NullTime{Time: now, Valid: true}

	if wasCorrect {
		p.TimesCorrect++
	} else {
		p.TimesIncorrect++
		// The advancement thresholds count a true streak.
		p.TimesCorrect = 0
	}

	advanced := false
	if wasCorrect && p.TimesCorrect >= advanceThresholds[p.Stage] {
		if err := m.advance(p); err != nil {
			return Transition{}, err
		}
		advanced = true
	}

	next, err := m.nextReviewDate(p, wasCorrect, now)
	if err != nil {
		return Transition{}, err
	}
	p.NextReviewDate = next

	return Transition{
		OldStage:       oldStage,
		NewStage:       p.Stage,
		Advanced:       advanced,
		NextReviewDate: next,
	}, nil
}

func (m *Machine) nextReviewDate(p *models.LearningProgress, wasCorrect bool, now time.Time) (sql.NullTime, error) {
	if p.Stage == models.StageMastered {
		return sql.NullTime{}, nil
	}

	var days int
	if wasCorrect {
		days = correctIntervals[p.Stage]
		if p.Stage == models.StageAdvanced && p.TimesCorrect >= 2 {
			days = advancedStreakInterval
		}
	} else {
		days = incorrectIntervals[p.Stage]
	}

	due := startOfDay(now).AddDate(0, 0, days)
	return sql.NullTime{Time: due, Valid: true}, nil
}

// NewRecord builds the initial progress record for a learner's first
// lookup of a quizzable phrase: stage basic, due immediately.
func NewRecord(userID, phraseID int64, now time.Time) models.LearningProgress {
	return models.LearningProgress{
		UserID:         userID,
		PhraseID:       phraseID,
		Stage:          models.StageBasic,
		NextReviewDate: sql.NullTime{Time: startOfDay(now), Valid: true},
	}
}

func startOfDay(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
