package quiz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/lingobot/internal/ai"
	"github.com/example/lingobot/internal/database"
	"github.com/example/lingobot/pkg/models"
)

type fakeProgressStore struct {
	candidate   *models.LearningProgress
	err         error
	lastFilters database.CandidateFilters
	lastLangs   []string
}

func (f *fakeProgressStore) SelectCandidate(_ context.Context, _ int64, langs []string, _ time.Time, filters database.CandidateFilters) (*models.LearningProgress, error) {
	f.lastLangs = langs
	f.lastFilters = filters
	return f.candidate, f.err
}

type fakeConfigStore struct {
	cfg *database.UserConfig
	err error
}

func (f *fakeConfigStore) Get(context.Context, int64) (*database.UserConfig, error) {
	return f.cfg, f.err
}

type fakeUserStore struct {
	user   *models.User
	resets int
}

func (f *fakeUserStore) GetByID(context.Context, int64) (*models.User, error) {
	return f.user, nil
}

func (f *fakeUserStore) ResetSearchCount(context.Context, int64) error {
	f.resets++
	return nil
}

type fakeGenerator struct {
	question *ai.GeneratedQuestion
	err      error
	lastReq  ai.QuestionRequest
}

func (f *fakeGenerator) GenerateQuestion(_ context.Context, req ai.QuestionRequest) (*ai.GeneratedQuestion, error) {
	f.lastReq = req
	return f.question, f.err
}

func newTestScheduler(progress *fakeProgressStore, configs *fakeConfigStore, users *fakeUserStore, gen *fakeGenerator) *Scheduler {
	if gen == nil {
		gen = &fakeGenerator{}
	}
	return NewScheduler(progress, configs, users, gen, quietLogger())
}

func enabledConfig(frequency int) *database.UserConfig {
	return &database.UserConfig{UserID: 42, QuizModeEnabled: true, QuizFrequency: frequency}
}

func testUser(searchCount int) *models.User {
	return &models.User{ID: 42, NativeLang: "en", TargetLangs: "de,fr", SearchCount: searchCount}
}

func TestShouldTriggerQuizModeDisabled(t *testing.T) {
	configs := &fakeConfigStore{cfg: &database.UserConfig{UserID: 42, QuizModeEnabled: false, QuizFrequency: 5}}
	users := &fakeUserStore{user: testUser(100)}
	s := newTestScheduler(&fakeProgressStore{}, configs, users, nil)

	d, err := s.ShouldTrigger(context.Background(), 42)
	require.NoError(t, err)

	assert.False(t, d.Trigger)
	assert.Equal(t, ReasonQuizModeDisabled, d.Reason)
	assert.Zero(t, users.resets)
}

func TestShouldTriggerThresholdNotReached(t *testing.T) {
	s := newTestScheduler(&fakeProgressStore{}, &fakeConfigStore{cfg: enabledConfig(5)}, &fakeUserStore{user: testUser(3)}, nil)

	d, err := s.ShouldTrigger(context.Background(), 42)
	require.NoError(t, err)

	assert.False(t, d.Trigger)
	assert.Equal(t, ReasonThresholdNotReached, d.Reason)
	assert.Equal(t, 2, d.Remaining)
}

func TestShouldTriggerNoPhrasesDue(t *testing.T) {
	users := &fakeUserStore{user: testUser(5)}
	s := newTestScheduler(&fakeProgressStore{candidate: nil}, &fakeConfigStore{cfg: enabledConfig(5)}, users, nil)

	d, err := s.ShouldTrigger(context.Background(), 42)
	require.NoError(t, err)

	assert.False(t, d.Trigger)
	assert.Equal(t, ReasonNoPhrasesDue, d.Reason)
	assert.Zero(t, users.resets, "counter survives when nothing is due")
}

func TestShouldTriggerFires(t *testing.T) {
	candidate := &models.LearningProgress{ID: 9, UserID: 42, PhraseID: 7, Stage: models.StageBasic}
	progress := &fakeProgressStore{candidate: candidate}
	users := &fakeUserStore{user: testUser(5)}
	s := newTestScheduler(progress, &fakeConfigStore{cfg: enabledConfig(5)}, users, nil)

	d, err := s.ShouldTrigger(context.Background(), 42)
	require.NoError(t, err)

	assert.True(t, d.Trigger)
	assert.Equal(t, ReasonDue, d.Reason)
	assert.Same(t, candidate, d.Candidate)
	assert.Equal(t, 1, users.resets, "trigger resets the search counter")
	assert.Equal(t, []string{"de", "fr"}, progress.lastLangs)
}

func TestSelectCandidatePassesFilters(t *testing.T) {
	progress := &fakeProgressStore{}
	s := newTestScheduler(progress, &fakeConfigStore{cfg: enabledConfig(5)}, &fakeUserStore{user: testUser(0)}, nil)

	stage := models.StageAdvanced
	filters := database.CandidateFilters{
		ExcludeIDs:    []int64{1, 2},
		Stage:         &stage,
		IgnoreDueDate: true,
	}
	_, err := s.SelectCandidate(context.Background(), 42, filters)
	require.NoError(t, err)

	assert.Equal(t, filters, progress.lastFilters)
}

func TestPickQuestionTypeMatchesStage(t *testing.T) {
	s := newTestScheduler(&fakeProgressStore{}, &fakeConfigStore{}, &fakeUserStore{}, nil)

	for i := 0; i < 20; i++ {
		qt, err := s.PickQuestionType(models.StageBasic)
		require.NoError(t, err)
		assert.True(t, qt.MultipleChoice(), "basic stage asks multiple choice, got %s", qt)
	}
	for i := 0; i < 20; i++ {
		qt, err := s.PickQuestionType(models.StageIntermediate)
		require.NoError(t, err)
		assert.Contains(t, []models.QuestionType{models.QuestionFreeTextToNative, models.QuestionFreeTextFromNative}, qt)
	}
	for i := 0; i < 20; i++ {
		qt, err := s.PickQuestionType(models.StageAdvanced)
		require.NoError(t, err)
		assert.Contains(t, []models.QuestionType{models.QuestionContextual, models.QuestionDefinition, models.QuestionSynonym}, qt)
	}

	_, err := s.PickQuestionType(models.StageMastered)
	assert.Error(t, err, "mastered phrases are never quizzed")
}

func TestBuildAttempt(t *testing.T) {
	gen := &fakeGenerator{question: &ai.GeneratedQuestion{
		QuestionText:      "What does \"geben\" mean?",
		Options:           []string{"to give", "to take", "to run", "to sleep"},
		CorrectAnswerSpec: `["to give"]`,
	}}
	s := newTestScheduler(&fakeProgressStore{}, &fakeConfigStore{}, &fakeUserStore{}, gen)

	user := testUser(0)
	phrase := &models.Phrase{ID: 7, Text: "geben", SourceLang: "de", Quizzable: true}
	translations := map[string]models.TranslationPayload{
		"en": {Entries: []models.TranslationEntry{{Form: "to give"}}},
	}

	attempt, generated, err := s.BuildAttempt(context.Background(), user, phrase, models.StageBasic, translations)
	require.NoError(t, err)

	assert.Equal(t, int64(42), attempt.UserID)
	assert.Equal(t, int64(7), attempt.PhraseID)
	assert.True(t, attempt.QuestionType.MultipleChoice())
	assert.Equal(t, generated.QuestionText, attempt.Question)
	assert.JSONEq(t, `["to give","to take","to run","to sleep"]`, attempt.Options)
	assert.Equal(t, `["to give"]`, attempt.CorrectAnswers)
	assert.Equal(t, "en", gen.lastReq.NativeLang)
	assert.Equal(t, attempt.QuestionType, gen.lastReq.QuestionType)
}
