package quiz

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/lingobot/internal/database"
	"github.com/example/lingobot/internal/progress"
	"github.com/example/lingobot/pkg/models"
)

// ResultService applies one evaluated quiz attempt: the stage machine
// updates the progress record, and the new state plus the attempt log are
// committed as one unit. A failure partway through rolls everything back.
type ResultService struct {
	db           *sqlx.DB
	progressRepo *database.ProgressRepository
	attempts     *database.AttemptRepository
	machine      *progress.Machine
}

// NewResultService wires quiz-result processing.
func NewResultService(db *sqlx.DB, progressRepo *database.ProgressRepository, attempts *database.AttemptRepository, machine *progress.Machine) *ResultService {
	return &ResultService{
		db:           db,
		progressRepo: progressRepo,
		attempts:     attempts,
		machine:      machine,
	}
}

// Apply records the verdict on the attempt, advances the state machine and
// persists both atomically.
func (s *ResultService) Apply(ctx context.Context, record *models.LearningProgress, attempt *models.QuizAttempt, wasCorrect bool) (progress.Transition, error) {
	attempt.WasCorrect = wasCorrect

	transition, err := s.machine.Apply(record, wasCorrect, time.Now().UTC())
	if err != nil {
		return progress.Transition{}, fmt.Errorf("apply quiz result: %w", err)
	}

	err = database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.progressRepo.Update(ctx, tx, record); err != nil {
			return err
		}
		return s.attempts.Insert(ctx, tx, attempt)
	})
	if err != nil {
		return progress.Transition{}, fmt.Errorf("persist quiz result: %w", err)
	}
	return transition, nil
}
