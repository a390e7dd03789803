// Package quiz decides when a quiz should trigger, which phrase to ask
// about, and whether the learner's answer was correct.
package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/lingobot/internal/ai"
	"github.com/example/lingobot/internal/database"
	"github.com/example/lingobot/pkg/models"
)

// Reason explains a trigger decision.
type Reason string

const (
	ReasonDue                 Reason = "due_for_quiz"
	ReasonQuizModeDisabled    Reason = "quiz_mode_disabled"
	ReasonThresholdNotReached Reason = "threshold_not_reached"
	ReasonNoPhrasesDue        Reason = "no_phrases_due_for_review"
)

// Decision is the structured outcome of ShouldTrigger. A negative decision
// carries a reason, never an error.
type Decision struct {
	Trigger   bool
	Reason    Reason
	Remaining int
	Candidate *models.LearningProgress
}

// questionPools maps each stage to its question-type pool. The draw is
// random purely for variety.
var questionPools = map[models.Stage][]models.QuestionType{
	models.StageBasic: {
		models.QuestionMultipleChoiceToNative,
		models.QuestionMultipleChoiceFromNative,
	},
	models.StageIntermediate: {
		models.QuestionFreeTextToNative,
		models.QuestionFreeTextFromNative,
	},
	models.StageAdvanced: {
		models.QuestionContextual,
		models.QuestionDefinition,
		models.QuestionSynonym,
	},
}

// ProgressStore selects candidates and counts the due queue.
type ProgressStore interface {
	SelectCandidate(ctx context.Context, userID int64, langs []string, now time.Time, filters database.CandidateFilters) (*models.LearningProgress, error)
}

// ConfigStore reads per-learner quiz settings.
type ConfigStore interface {
	Get(ctx context.Context, userID int64) (*database.UserConfig, error)
}

// UserStore reads the learner and resets the search counter on trigger.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	ResetSearchCount(ctx context.Context, id int64) error
}

// QuestionGenerator is the external question generator, invoked once per
// new attempt.
type QuestionGenerator interface {
	GenerateQuestion(ctx context.Context, req ai.QuestionRequest) (*ai.GeneratedQuestion, error)
}

// Scheduler decides quiz triggering and candidate selection.
type Scheduler struct {
	progress  ProgressStore
	configs   ConfigStore
	users     UserStore
	generator QuestionGenerator
	logger    *logrus.Logger
	rng       *rand.Rand
	now       func() time.Time
}

// NewScheduler wires the quiz scheduler.
func NewScheduler(progress ProgressStore, configs ConfigStore, users UserStore, generator QuestionGenerator, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		progress:  progress,
		configs:   configs,
		users:     users,
		generator: generator,
		logger:    logger,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
	}
}

// ShouldTrigger reports whether a quiz should interrupt the learner's
// lookup flow: quiz mode enabled, search counter at the threshold, and at
// least one eligible phrase due. On a positive decision the search counter
// is reset and the selected candidate is attached.
func (s *Scheduler) ShouldTrigger(ctx context.Context, userID int64) (Decision, error) {
	cfg, err := s.configs.Get(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	if !cfg.QuizModeEnabled {
		return Decision{Reason: ReasonQuizModeDisabled}, nil
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	if user.SearchCount < cfg.QuizFrequency {
		return Decision{
			Reason:    ReasonThresholdNotReached,
			Remaining: cfg.QuizFrequency - user.SearchCount,
		}, nil
	}

	candidate, err := s.SelectCandidate(ctx, userID, database.CandidateFilters{})
	if err != nil {
		return Decision{}, err
	}
	if candidate == nil {
		return Decision{Reason: ReasonNoPhrasesDue}, nil
	}

	if err := s.users.ResetSearchCount(ctx, userID); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Error("reset search count")
	}
	return Decision{Trigger: true, Reason: ReasonDue, Candidate: candidate}, nil
}

// SelectCandidate returns the most overdue eligible progress record, or
// nil when nothing qualifies. Filters support session exclusion lists and
// the free-browsing practice mode.
func (s *Scheduler) SelectCandidate(ctx context.Context, userID int64, filters database.CandidateFilters) (*models.LearningProgress, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.progress.SelectCandidate(ctx, userID, user.TargetLangList(), s.now(), filters)
}

// PickQuestionType draws a question type from the stage's pool.
func (s *Scheduler) PickQuestionType(stage models.Stage) (models.QuestionType, error) {
	pool, ok := questionPools[stage]
	if !ok {
		return "", fmt.Errorf("no question pool for stage %q", stage)
	}
	return pool[s.rng.Intn(len(pool))], nil
}

// BuildAttempt generates a question for the candidate phrase and assembles
// the quiz attempt awaiting the learner's answer.
func (s *Scheduler) BuildAttempt(ctx context.Context, user *models.User, phrase *models.Phrase, stage models.Stage, translations map[string]models.TranslationPayload) (*models.QuizAttempt, *ai.GeneratedQuestion, error) {
	questionType, err := s.PickQuestionType(stage)
	if err != nil {
		return nil, nil, err
	}

	generated, err := s.generator.GenerateQuestion(ctx, ai.QuestionRequest{
		QuestionType: questionType,
		Phrase:       *phrase,
		Translations: translations,
		NativeLang:   user.NativeLang,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build attempt for phrase %d: %w", phrase.ID, err)
	}

	options := ""
	if len(generated.Options) > 0 {
		data, err := json.Marshal(generated.Options)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal options: %w", err)
		}
		options = string(data)
	}

	attempt := &models.QuizAttempt{
		UserID:         user.ID,
		PhraseID:       phrase.ID,
		QuestionType:   questionType,
		Question:       generated.QuestionText,
		Options:        options,
		CorrectAnswers: generated.CorrectAnswerSpec,
	}
	return attempt, generated, nil
}
