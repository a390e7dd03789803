package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/example/lingobot/internal/ai"
	"github.com/example/lingobot/pkg/models"
)

// Validation sentinels for answer evaluation.
var (
	ErrEmptyAnswer     = errors.New("answer must not be blank")
	ErrEmptyAnswerSpec = errors.New("correct-answer spec has no usable answers")
)

// Tier identifies which step of the pipeline decided the verdict.
type Tier int

const (
	TierExact Tier = iota + 1
	TierArticle
	TierJudge
)

// Verdict is the outcome of evaluating one answer.
type Verdict struct {
	WasCorrect    bool
	MatchedAnswer string
	Explanation   string
	Tier          Tier
}

// Judge is the external semantic judge, consulted only for free-text
// questions that the deterministic tiers could not settle.
type Judge interface {
	JudgeAnswer(ctx context.Context, req ai.JudgeRequest) (*ai.JudgeVerdict, error)
}

// Evaluator runs the tiered answer-evaluation pipeline: exact match, then
// article-insensitive match, then the external judge. The cheap
// deterministic tiers always run first; the judge is slow, costly and
// occasionally unreliable, so its failure degrades to "incorrect" rather
// than blocking the learner.
type Evaluator struct {
	judge  Judge
	logger *logrus.Logger
}

// NewEvaluator wires the pipeline.
func NewEvaluator(judge Judge, logger *logrus.Logger) *Evaluator {
	return &Evaluator{judge: judge, logger: logger}
}

// ParseAnswerSpec accepts either a bare string or a JSON string array and
// returns the normalized list of acceptable answers.
func ParseAnswerSpec(spec string) ([]string, error) {
	trimmed := strings.TrimSpace(spec)
	var candidates []string
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &candidates); err != nil {
			return nil, fmt.Errorf("unparseable correct-answer spec %q: %w", spec, err)
		}
	} else {
		candidates = []string{trimmed}
	}

	answers := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if normalized := normalizeAnswer(c); normalized != "" {
			answers = append(answers, normalized)
		}
	}
	if len(answers) == 0 {
		return nil, ErrEmptyAnswerSpec
	}
	return answers, nil
}

func normalizeAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// stripArticle removes one leading article token, so "the cat" and "cat"
// compare equal.
func stripArticle(s string) string {
	for _, article := range []string{"the ", "a ", "an "} {
		if strings.HasPrefix(s, article) {
			return strings.TrimSpace(strings.TrimPrefix(s, article))
		}
	}
	return s
}

// Evaluate decides whether userAnswer is correct against the spec,
// short-circuiting on the first tier that succeeds. evalContext is the
// translation context handed to the judge. A judge failure yields an
// incorrect verdict, never an error.
func (e *Evaluator) Evaluate(ctx context.Context, userAnswer, correctSpec string, questionType models.QuestionType, evalContext string) (Verdict, error) {
	answer := normalizeAnswer(userAnswer)
	if answer == "" {
		return Verdict{}, ErrEmptyAnswer
	}
	validAnswers, err := ParseAnswerSpec(correctSpec)
	if err != nil {
		return Verdict{}, err
	}

	// Tier 1: exact match.
	for _, valid := range validAnswers {
		if answer == valid {
			return Verdict{WasCorrect: true, MatchedAnswer: valid, Tier: TierExact}, nil
		}
	}

	// Tier 2: article-insensitive match.
	stripped := stripArticle(answer)
	for _, valid := range validAnswers {
		if stripped == stripArticle(valid) {
			return Verdict{WasCorrect: true, MatchedAnswer: valid, Tier: TierArticle}, nil
		}
	}

	// Multiple-choice options are pre-vetted; nothing to judge.
	if !questionType.FreeText() {
		return Verdict{Tier: TierArticle}, nil
	}

	// Tier 3: the external judge.
	verdict, err := e.judge.JudgeAnswer(ctx, ai.JudgeRequest{
		UserAnswer:   answer,
		ValidAnswers: validAnswers,
		QuestionType: questionType,
		Context:      evalContext,
	})
	if err != nil {
		e.logger.WithError(err).Warn("judge unavailable; marking answer incorrect")
		return Verdict{
			Explanation: "The answer could not be verified automatically and was counted as incorrect.",
			Tier:        TierJudge,
		}, nil
	}

	return Verdict{
		WasCorrect:    verdict.IsCorrect,
		MatchedAnswer: verdict.MatchedAnswer,
		Explanation:   verdict.Explanation,
		Tier:          TierJudge,
	}, nil
}
