package quiz

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/lingobot/internal/ai"
	"github.com/example/lingobot/pkg/models"
)

type fakeJudge struct {
	calls   int
	lastReq ai.JudgeRequest
	verdict *ai.JudgeVerdict
	err     error
}

func (f *fakeJudge) JudgeAnswer(_ context.Context, req ai.JudgeRequest) (*ai.JudgeVerdict, error) {
	f.calls++
	f.lastReq = req
	return f.verdict, f.err
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestParseAnswerSpec(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    []string
		wantErr error
	}{
		{name: "bare string", spec: "The Cat ", want: []string{"the cat"}},
		{name: "json array", spec: `["to give", "to hand over"]`, want: []string{"to give", "to hand over"}},
		{name: "array drops blanks", spec: `["cat", "  ", ""]`, want: []string{"cat"}},
		{name: "all blank", spec: `["", "  "]`, wantErr: ErrEmptyAnswerSpec},
		{name: "malformed json", spec: `["cat"`, wantErr: errors.New("unparseable")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAnswerSpec(tt.spec)
			if tt.wantErr != nil {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateExactMatch(t *testing.T) {
	judge := &fakeJudge{}
	e := NewEvaluator(judge, quietLogger())

	verdict, err := e.Evaluate(context.Background(), "  The CAT ", `["the cat", "a feline"]`, models.QuestionFreeTextToNative, "")
	require.NoError(t, err)

	assert.True(t, verdict.WasCorrect)
	assert.Equal(t, TierExact, verdict.Tier)
	assert.Equal(t, "the cat", verdict.MatchedAnswer)
	assert.Zero(t, judge.calls, "deterministic match must not consult the judge")
}

func TestEvaluateArticleInsensitiveMatch(t *testing.T) {
	judge := &fakeJudge{}
	e := NewEvaluator(judge, quietLogger())

	tests := []struct {
		answer string
		spec   string
	}{
		{"cat", "the cat"},
		{"the cat", "cat"},
		{"an apple", "apple"},
	}
	for _, tt := range tests {
		verdict, err := e.Evaluate(context.Background(), tt.answer, tt.spec, models.QuestionFreeTextToNative, "")
		require.NoError(t, err)
		assert.True(t, verdict.WasCorrect, "%q vs %q", tt.answer, tt.spec)
		assert.Equal(t, TierArticle, verdict.Tier)
	}
	assert.Zero(t, judge.calls)
}

func TestEvaluateMultipleChoiceNeverReachesJudge(t *testing.T) {
	judge := &fakeJudge{verdict: &ai.JudgeVerdict{IsCorrect: true}}
	e := NewEvaluator(judge, quietLogger())

	verdict, err := e.Evaluate(context.Background(), "a feline", "the cat", models.QuestionMultipleChoiceToNative, "")
	require.NoError(t, err)

	assert.False(t, verdict.WasCorrect, "unmatched multiple-choice answers are simply wrong")
	assert.Zero(t, judge.calls)
}

func TestEvaluateFreeTextFallsThroughToJudge(t *testing.T) {
	judge := &fakeJudge{verdict: &ai.JudgeVerdict{
		IsCorrect:     true,
		MatchedAnswer: "the cat",
		Explanation:   "a feline is a cat",
	}}
	e := NewEvaluator(judge, quietLogger())

	verdict, err := e.Evaluate(context.Background(), "a feline", `["the cat"]`, models.QuestionFreeTextToNative, "animal vocabulary")
	require.NoError(t, err)

	assert.True(t, verdict.WasCorrect)
	assert.Equal(t, TierJudge, verdict.Tier)
	assert.Equal(t, "the cat", verdict.MatchedAnswer)
	assert.Equal(t, 1, judge.calls)
	assert.Equal(t, "a feline", judge.lastReq.UserAnswer)
	assert.Equal(t, []string{"the cat"}, judge.lastReq.ValidAnswers)
	assert.Equal(t, "animal vocabulary", judge.lastReq.Context)
}

func TestEvaluateJudgeFailureCountsAsIncorrect(t *testing.T) {
	judge := &fakeJudge{err: errors.New("upstream timeout")}
	e := NewEvaluator(judge, quietLogger())

	verdict, err := e.Evaluate(context.Background(), "a feline", "the cat", models.QuestionFreeTextToNative, "")
	require.NoError(t, err, "judge failure must not surface as an error")

	assert.False(t, verdict.WasCorrect)
	assert.Equal(t, TierJudge, verdict.Tier)
	assert.NotEmpty(t, verdict.Explanation)
}

func TestEvaluateEmptyAnswer(t *testing.T) {
	e := NewEvaluator(&fakeJudge{}, quietLogger())

	_, err := e.Evaluate(context.Background(), "   ", "cat", models.QuestionFreeTextToNative, "")
	assert.ErrorIs(t, err, ErrEmptyAnswer)
}
