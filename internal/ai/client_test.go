package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/lingobot/internal/config"
	"github.com/example/lingobot/pkg/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := config.OpenAIConfig{
		APIKey:         "test-key",
		BaseURL:        server.URL,
		Model:          "gpt-4o-mini",
		RequestTimeout: 5 * time.Second,
		MaxAttempts:    2,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  time.Millisecond,
	}
	return NewClient(cfg, NewPricingCache(time.Hour, nil), logger), server
}

func completionBody(content string) string {
	resp := map[string]any{
		"model": "gpt-4o-mini",
		"choices": []map[string]any{
			{"message": map[string]string{"content": content}},
		},
		"usage": map[string]int{"prompt_tokens": 100, "completion_tokens": 50, "total_tokens": 150},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func TestTranslateParsesAllLanguages(t *testing.T) {
	var gotAuth string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		content := `{"translations": {
			"en": {"entries": [{"form": "to give", "tag": "verb", "gloss": "hand over"}]},
			"fr": {"entries": [{"form": "donner", "tag": "verbe"}]}
		}}`
		io.WriteString(w, completionBody(content))
	})

	result, err := client.Translate(context.Background(), "geben", "de", []string{"en", "fr"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "gpt-4o-mini", result.ModelID)
	assert.Equal(t, []string{"to give"}, result.ByLang["en"].Forms())
	assert.Equal(t, []string{"donner"}, result.ByLang["fr"].Forms())

	var meta struct {
		CostUSD float64 `json:"cost_usd"`
	}
	require.NoError(t, json.Unmarshal([]byte(result.Usage), &meta))
	assert.InDelta(t, (100*0.15+50*0.60)/1e6, meta.CostUSD, 1e-12)
}

func TestTranslateRejectsMissingLanguage(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		content := `{"translations": {"en": {"entries": [{"form": "to give"}]}}}`
		io.WriteString(w, completionBody(content))
	})

	_, err := client.Translate(context.Background(), "geben", "de", []string{"en", "fr"})
	assert.ErrorContains(t, err, "missing language")
}

func TestTranslateStripsCodeFence(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		content := "```json\n{\"translations\": {\"en\": {\"entries\": [{\"form\": \"to give\"}]}}}\n```"
		io.WriteString(w, completionBody(content))
	})

	result, err := client.Translate(context.Background(), "geben", "de", []string{"en"})
	require.NoError(t, err)
	assert.Equal(t, []string{"to give"}, result.ByLang["en"].Forms())
}

func TestTranslateRetriesServerErrors(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			io.WriteString(w, `{"error": {"message": "overloaded"}}`)
			return
		}
		content := `{"translations": {"en": {"entries": [{"form": "to give"}]}}}`
		io.WriteString(w, completionBody(content))
	})

	_, err := client.Translate(context.Background(), "geben", "de", []string{"en"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestTranslateDoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error": {"message": "bad key"}}`)
	})

	_, err := client.Translate(context.Background(), "geben", "de", []string{"en"})
	assert.ErrorContains(t, err, "bad key")
	assert.Equal(t, 1, calls)
}

func TestJudgeAnswer(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		content := `{"is_correct": true, "explanation": "a feline is a cat", "matched_answer": "the cat"}`
		io.WriteString(w, completionBody(content))
	})

	verdict, err := client.JudgeAnswer(context.Background(), JudgeRequest{
		UserAnswer:   "a feline",
		ValidAnswers: []string{"the cat"},
		QuestionType: models.QuestionFreeTextToNative,
	})
	require.NoError(t, err)

	assert.True(t, verdict.IsCorrect)
	assert.Equal(t, "the cat", verdict.MatchedAnswer)
}

func TestGenerateQuestionValidatesResponse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		qType   models.QuestionType
		wantErr string
	}{
		{
			name:    "valid multiple choice",
			content: `{"question_text": "What does \"geben\" mean?", "options": ["to give", "to take", "to run", "to sleep"], "correct_answer_spec": "to give", "question_lang": "de", "answer_lang": "en"}`,
			qType:   models.QuestionMultipleChoiceToNative,
		},
		{
			name:    "missing question text",
			content: `{"options": [], "correct_answer_spec": "to give"}`,
			qType:   models.QuestionFreeTextToNative,
			wantErr: "incomplete",
		},
		{
			name:    "multiple choice without options",
			content: `{"question_text": "?", "options": [], "correct_answer_spec": "to give"}`,
			qType:   models.QuestionMultipleChoiceToNative,
			wantErr: "without options",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, completionBody(tt.content))
			})

			question, err := client.GenerateQuestion(context.Background(), QuestionRequest{
				QuestionType: tt.qType,
				Phrase:       models.Phrase{Text: "geben", SourceLang: "de"},
				NativeLang:   "en",
			})
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, question.Options, 4)
		})
	}
}
