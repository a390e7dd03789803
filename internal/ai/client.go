package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/example/lingobot/internal/config"
	"github.com/example/lingobot/pkg/models"
)

// Client calls the external generative text provider. Three operations are
// exposed: batch translation, semantic answer judging and quiz question
// generation. Every operation demands a strict JSON response and fails on
// anything else.
type Client struct {
	apiKey     string
	apiURL     string
	model      string
	httpClient *http.Client
	retry      RetryPolicy
	pricing    *PricingCache
	logger     *logrus.Logger
}

// NewClient creates a provider client from config.
func NewClient(cfg config.OpenAIConfig, pricing *PricingCache, logger *logrus.Logger) *Client {
	return &Client{
		apiKey:     cfg.APIKey,
		apiURL:     cfg.BaseURL,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		retry: RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
		},
		pricing: pricing,
		logger:  logger,
	}
}

// Message represents a message in the chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest represents a request to the chat completions API.
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

// chatUsage is the provider's token accounting for one call.
type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// chatResponse represents a response from the chat completions API.
type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage chatUsage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// complete performs one chat completion under the retry policy and returns
// the raw assistant content.
func (c *Client) complete(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, chatUsage, error) {
	request := chatRequest{
		Model:       c.model,
		Messages:    []Message{{Role: "system", Content: system}, {Role: "user", Content: user}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	requestData, err := json.Marshal(request)
	if err != nil {
		return "", chatUsage{}, fmt.Errorf("marshal request: %w", err)
	}

	var content string
	var usage chatUsage
	err = c.retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(requestData))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("send request: %w", err)
		}
		defer resp.Body.Close()

		var response chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
			return &APIError{StatusCode: resp.StatusCode, Message: "undecodable response body"}
		}
		if resp.StatusCode != http.StatusOK {
			msg := http.StatusText(resp.StatusCode)
			if response.Error != nil {
				msg = response.Error.Message
			}
			return &APIError{StatusCode: resp.StatusCode, Message: msg}
		}
		if response.Error != nil {
			return fmt.Errorf("provider error: %s", response.Error.Message)
		}
		if len(response.Choices) == 0 {
			return fmt.Errorf("no response choices returned")
		}
		content = strings.TrimSpace(response.Choices[0].Message.Content)
		usage = response.Usage
		return nil
	})
	if err != nil {
		return "", chatUsage{}, err
	}
	return content, usage, nil
}

// stripCodeFence removes a markdown code fence the model sometimes wraps
// JSON in, despite instructions.
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

// usageMeta is the opaque usage/cost blob stored alongside cache entries.
type usageMeta struct {
	Model            string  `json:"model"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	CostUSD          float64 `json:"cost_usd,omitempty"`
}

func (c *Client) usageBlob(usage chatUsage) string {
	meta := usageMeta{
		Model:            c.model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
	}
	if c.pricing != nil {
		if price, ok := c.pricing.Lookup(c.model); ok {
			meta.CostUSD = (float64(usage.PromptTokens)*price.PromptUSD +
				float64(usage.CompletionTokens)*price.CompletionUSD) / 1e6
		}
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return ""
	}
	return string(data)
}

// TranslationResult is the outcome of one batched translation call.
type TranslationResult struct {
	ByLang  map[string]models.TranslationPayload
	ModelID string
	Usage   string
}

const translateSystemPrompt = "You are a dictionary engine. " +
	"You always answer with a single JSON object and nothing else."

// Translate translates text into every requested target language in one
// call. The response must cover every requested language or the call fails.
func (c *Client) Translate(ctx context.Context, text, sourceLang string, targetLangs []string) (*TranslationResult, error) {
	langList := strings.Join(targetLangs, ", ")
	prompt := fmt.Sprintf(
		"Translate the %s phrase %q into the following languages: %s.\n"+
			"Respond with JSON of this exact shape:\n"+
			`{"translations": {"<lang>": {"entries": [{"form": "...", "tag": "<part of speech>", "gloss": "<short meaning note>"}]}}}`+"\n"+
			"Include every requested language as a key. List the most common translation first.",
		sourceLang, text, langList,
	)

	content, usage, err := c.complete(ctx, translateSystemPrompt, prompt, 0.3, 800)
	if err != nil {
		return nil, fmt.Errorf("translate %q: %w", text, err)
	}

	var parsed struct {
		Translations map[string]models.TranslationPayload `json:"translations"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &parsed); err != nil {
		return nil, fmt.Errorf("translate %q: malformed response: %w", text, err)
	}

	byLang := make(map[string]models.TranslationPayload, len(targetLangs))
	for _, lang := range targetLangs {
		lang = models.NormalizeLang(lang)
		payload, ok := parsed.Translations[lang]
		if !ok {
			return nil, fmt.Errorf("translate %q: response is missing language %q", text, lang)
		}
		if err := payload.Validate(); err != nil {
			return nil, fmt.Errorf("translate %q (%s): %w", text, lang, err)
		}
		byLang[lang] = payload
	}

	c.logger.WithFields(logrus.Fields{
		"text":    text,
		"targets": targetLangs,
		"tokens":  usage.TotalTokens,
	}).Debug("translated phrase")

	return &TranslationResult{
		ByLang:  byLang,
		ModelID: c.model,
		Usage:   c.usageBlob(usage),
	}, nil
}

// JudgeRequest carries everything the semantic judge needs.
type JudgeRequest struct {
	UserAnswer   string
	ValidAnswers []string
	QuestionType models.QuestionType
	Context      string
}

// JudgeVerdict is the judge's strict response contract.
type JudgeVerdict struct {
	IsCorrect     bool   `json:"is_correct"`
	Explanation   string `json:"explanation"`
	MatchedAnswer string `json:"matched_answer"`
}

const judgeSystemPrompt = "You are a strict but fair language-exam grader. " +
	"You always answer with a single JSON object and nothing else."

// JudgeAnswer asks the provider whether a free-text answer is semantically
// acceptable. Callers must treat any error as "incorrect", never abort.
func (c *Client) JudgeAnswer(ctx context.Context, req JudgeRequest) (*JudgeVerdict, error) {
	validJSON, err := json.Marshal(req.ValidAnswers)
	if err != nil {
		return nil, fmt.Errorf("marshal valid answers: %w", err)
	}
	prompt := fmt.Sprintf(
		"Question type: %s\nAccepted answers: %s\nLearner's answer: %q\nContext: %s\n"+
			"Is the learner's answer an acceptable equivalent of one of the accepted answers?\n"+
			`Respond with JSON of this exact shape: {"is_correct": true/false, "explanation": "...", "matched_answer": "..."}`+"\n"+
			"matched_answer must be one of the accepted answers when is_correct is true, otherwise empty.",
		req.QuestionType, validJSON, req.UserAnswer, req.Context,
	)

	content, _, err := c.complete(ctx, judgeSystemPrompt, prompt, 0.0, 300)
	if err != nil {
		return nil, fmt.Errorf("judge answer: %w", err)
	}

	var verdict JudgeVerdict
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &verdict); err != nil {
		return nil, fmt.Errorf("judge answer: malformed response: %w", err)
	}
	return &verdict, nil
}

// QuestionRequest carries the inputs for question generation.
type QuestionRequest struct {
	QuestionType    models.QuestionType
	Phrase          models.Phrase
	Translations    map[string]models.TranslationPayload
	NativeLang      string
	ContextSentence string
}

// GeneratedQuestion is the question generator's strict response contract.
// CorrectAnswerSpec is either a bare string or a JSON array of acceptable
// strings; the evaluation pipeline parses both forms.
type GeneratedQuestion struct {
	QuestionText      string   `json:"question_text"`
	Options           []string `json:"options"`
	CorrectAnswerSpec string   `json:"correct_answer_spec"`
	QuestionLang      string   `json:"question_lang"`
	AnswerLang        string   `json:"answer_lang"`
}

const questionSystemPrompt = "You are a language-learning quiz writer. " +
	"You always answer with a single JSON object and nothing else."

// GenerateQuestion produces one quiz question for a phrase. Called once per
// new quiz attempt.
func (c *Client) GenerateQuestion(ctx context.Context, req QuestionRequest) (*GeneratedQuestion, error) {
	translationsJSON, err := json.Marshal(req.Translations)
	if err != nil {
		return nil, fmt.Errorf("marshal translations: %w", err)
	}
	var contextNote string
	if req.ContextSentence != "" {
		contextNote = fmt.Sprintf("Use this context sentence: %q\n", req.ContextSentence)
	}
	prompt := fmt.Sprintf(
		"Write one %s quiz question for the %s phrase %q.\n"+
			"The learner's native language is %s. Known translations: %s\n%s"+
			"Respond with JSON of this exact shape:\n"+
			`{"question_text": "...", "options": ["..."], "correct_answer_spec": "...", "question_lang": "...", "answer_lang": "..."}`+"\n"+
			"For multiple-choice types provide exactly 4 options including the correct one; otherwise options must be an empty array. "+
			"correct_answer_spec is the accepted answer, or a JSON array string when several answers are acceptable.",
		req.QuestionType, req.Phrase.SourceLang, req.Phrase.Text, req.NativeLang, translationsJSON, contextNote,
	)

	content, _, err := c.complete(ctx, questionSystemPrompt, prompt, 0.7, 500)
	if err != nil {
		return nil, fmt.Errorf("generate question: %w", err)
	}

	var question GeneratedQuestion
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &question); err != nil {
		return nil, fmt.Errorf("generate question: malformed response: %w", err)
	}
	if question.QuestionText == "" || question.CorrectAnswerSpec == "" {
		return nil, fmt.Errorf("generate question: incomplete response")
	}
	if req.QuestionType.MultipleChoice() && len(question.Options) < 2 {
		return nil, fmt.Errorf("generate question: multiple choice without options")
	}
	return &question, nil
}

// ExplainGrammar produces a short grammatical note for a phrase (verb
// forms, gender, plural). Cached on the phrase after the first request.
func (c *Client) ExplainGrammar(ctx context.Context, phrase models.Phrase) (string, error) {
	prompt := fmt.Sprintf(
		"Give a compact grammatical note for the %s phrase %q: part of speech plus key forms "+
			"(conjugation, gender, plural) where applicable. Maximum 4 lines, plain text.",
		phrase.SourceLang, phrase.Text,
	)
	content, _, err := c.complete(ctx, "You are a concise grammar reference for language learners.", prompt, 0.3, 200)
	if err != nil {
		return "", fmt.Errorf("explain grammar for %q: %w", phrase.Text, err)
	}
	return content, nil
}
