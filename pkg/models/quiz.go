package models

import "time"

// QuestionType identifies how a quiz question is asked and answered.
type QuestionType string

const (
	// Multiple choice: pick the right translation among options.
	QuestionMultipleChoiceToNative   QuestionType = "multiple_choice_to_native"
	QuestionMultipleChoiceFromNative QuestionType = "multiple_choice_from_native"
	// Free text: type the translation.
	QuestionFreeTextToNative   QuestionType = "free_text_to_native"
	QuestionFreeTextFromNative QuestionType = "free_text_from_native"
	// Advanced forms.
	QuestionContextual QuestionType = "contextual"
	QuestionDefinition QuestionType = "definition"
	QuestionSynonym    QuestionType = "synonym"
)

// MultipleChoice reports whether answers come from a pre-vetted option list.
func (t QuestionType) MultipleChoice() bool {
	return t == QuestionMultipleChoiceToNative || t == QuestionMultipleChoiceFromNative
}

// FreeText reports whether the learner types an arbitrary answer. Only
// free-text answers may fall through to the external judge.
func (t QuestionType) FreeText() bool {
	return !t.MultipleChoice()
}

// QuizAttempt records one question shown to a learner and the outcome of
// evaluating their answer. Exactly one progress update corresponds to each
// attempt.
type QuizAttempt struct {
	ID             int64        `json:"id" db:"id"`
	UserID         int64        `json:"user_id" db:"user_id"`
	PhraseID       int64        `json:"phrase_id" db:"phrase_id"`
	QuestionType   QuestionType `json:"question_type" db:"question_type"`
	Question       string       `json:"question" db:"question"`
	Options        string       `json:"options" db:"options"`
	CorrectAnswers string       `json:"correct_answers" db:"correct_answers"`
	UserAnswer     string       `json:"user_answer" db:"user_answer"`
	WasCorrect     bool         `json:"was_correct" db:"was_correct"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
}
