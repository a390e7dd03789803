package progress

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/lingobot/pkg/models"
)

var testNow = time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)

func day(offset int) time.Time {
	return time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func record(stage models.Stage, correct, incorrect int) *models.LearningProgress {
	return &models.LearningProgress{
		ID:             1,
		UserID:         42,
		PhraseID:       7,
		Stage:          stage,
		TimesCorrect:   correct,
		TimesIncorrect: incorrect,
	}
}

func TestApplyCorrectIncrementsStreak(t *testing.T) {
	m := NewMachine()
	p := record(models.StageBasic, 0, 0)

	tr, err := m.Apply(p, true, testNow)
	require.NoError(t, err)

	assert.Equal(t, models.StageBasic, tr.NewStage)
	assert.False(t, tr.Advanced)
	assert.Equal(t, 1, p.TimesCorrect)
	assert.Equal(t, 1, p.TimesReviewed)
	require.True(t, p.NextReviewDate.Valid)
	assert.Equal(t, day(1), p.NextReviewDate.Time)
	assert.True(t, p.LastReviewedAt.Valid)
}

func TestApplyIncorrectResetsStreak(t *testing.T) {
	m := NewMachine()
	p := record(models.StageIntermediate, 1, 0)

	tr, err := m.Apply(p, false, testNow)
	require.NoError(t, err)

	assert.False(t, tr.Advanced)
	assert.Equal(t, 0, p.TimesCorrect, "a wrong answer breaks the streak")
	assert.Equal(t, 1, p.TimesIncorrect)
	require.True(t, p.NextReviewDate.Valid)
	assert.Equal(t, day(1), p.NextReviewDate.Time, "intermediate retry interval is one day")
}

func TestApplyIncorrectBasicDueSameDay(t *testing.T) {
	m := NewMachine()
	p := record(models.StageBasic, 1, 0)

	_, err := m.Apply(p, false, testNow)
	require.NoError(t, err)

	require.True(t, p.NextReviewDate.Valid)
	assert.Equal(t, day(0), p.NextReviewDate.Time)
}

func TestApplyAdvancesOnThreshold(t *testing.T) {
	tests := []struct {
		name         string
		stage        models.Stage
		priorCorrect int
		wantStage    models.Stage
		wantDue      time.Time
	}{
		{"basic to intermediate", models.StageBasic, 1, models.StageIntermediate, day(3)},
		{"intermediate to advanced", models.StageIntermediate, 1, models.StageAdvanced, day(7)},
		{"advanced to mastered", models.StageAdvanced, 2, models.StageMastered, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine()
			p := record(tt.stage, tt.priorCorrect, 3)

			tr, err := m.Apply(p, true, testNow)
			require.NoError(t, err)

			assert.True(t, tr.Advanced)
			assert.Equal(t, tt.stage, tr.OldStage)
			assert.Equal(t, tt.wantStage, tr.NewStage)
			assert.Equal(t, 0, p.TimesCorrect, "counters reset on advancement")
			assert.Equal(t, 0, p.TimesIncorrect, "counters reset on advancement")

			if tt.wantStage == models.StageMastered {
				assert.False(t, p.NextReviewDate.Valid, "mastered phrases have no review date")
			} else {
				require.True(t, p.NextReviewDate.Valid)
				assert.Equal(t, tt.wantDue, p.NextReviewDate.Time)
			}
		})
	}
}

func TestApplyAdvancedStreakEarnsLongInterval(t *testing.T) {
	m := NewMachine()
	// One prior correct answer in advanced: this answer makes the streak 2,
	// below the advancement threshold of 3, so the phrase stays advanced
	// with the long interval.
	p := record(models.StageAdvanced, 1, 0)

	tr, err := m.Apply(p, true, testNow)
	require.NoError(t, err)

	assert.False(t, tr.Advanced)
	assert.Equal(t, models.StageAdvanced, p.Stage)
	require.True(t, p.NextReviewDate.Valid)
	assert.Equal(t, day(14), p.NextReviewDate.Time)
}

func TestApplyAdvancedFirstCorrectShortInterval(t *testing.T) {
	m := NewMachine()
	p := record(models.StageAdvanced, 0, 2)

	_, err := m.Apply(p, true, testNow)
	require.NoError(t, err)

	require.True(t, p.NextReviewDate.Valid)
	assert.Equal(t, day(7), p.NextReviewDate.Time)
}

func TestApplyMasteredIsTerminal(t *testing.T) {
	m := NewMachine()
	p := record(models.StageMastered, 0, 0)

	_, err := m.Apply(p, true, testNow)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestApplyRejectsUnknownStage(t *testing.T) {
	m := NewMachine()
	p := record(models.Stage("expert"), 0, 0)

	_, err := m.Apply(p, true, testNow)
	assert.Error(t, err)
}

// TestFullLifecycle walks one phrase from the first lookup to mastered:
// seven consecutive correct answers, with one wrong answer in the middle
// restarting the intermediate streak.
func TestFullLifecycle(t *testing.T) {
	m := NewMachine()
	rec := NewRecord(42, 7, testNow)
	p := &rec

	assert.Equal(t, models.StageBasic, p.Stage)
	require.True(t, p.NextReviewDate.Valid)
	assert.Equal(t, day(0), p.NextReviewDate.Time, "new phrases are due immediately")

	steps := []struct {
		correct   bool
		wantStage models.Stage
	}{
		{true, models.StageBasic},
		{true, models.StageIntermediate}, // streak 2: advance
		{true, models.StageIntermediate},
		{false, models.StageIntermediate}, // streak broken
		{true, models.StageIntermediate},
		{true, models.StageAdvanced}, // streak rebuilt: advance
		{true, models.StageAdvanced},
		{true, models.StageAdvanced},
		{true, models.StageMastered}, // streak 3: done
	}
	for i, step := range steps {
		_, err := m.Apply(p, step.correct, testNow)
		require.NoError(t, err, "step %d", i)
		assert.Equal(t, step.wantStage, p.Stage, "step %d", i)
	}

	assert.False(t, p.NextReviewDate.Valid)
	assert.Equal(t, len(steps), p.TimesReviewed)
}

func TestNewRecord(t *testing.T) {
	rec := NewRecord(42, 7, testNow)

	assert.Equal(t, int64(42), rec.UserID)
	assert.Equal(t, int64(7), rec.PhraseID)
	assert.Equal(t, models.StageBasic, rec.Stage)
	assert.Equal(t, sql.NullTime{Time: day(0), Valid: true}, rec.NextReviewDate)
}
