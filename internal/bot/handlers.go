package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/example/lingobot/internal/database"
	"github.com/example/lingobot/internal/quiz"
	"github.com/example/lingobot/internal/translation"
	"github.com/example/lingobot/pkg/models"
)

const helpText = `Send me a phrase and I'll translate it into your languages.
Prefix with a language code to be explicit, e.g. "de: geben".

Commands:
/languages de,fr — set the languages you study
/native en — set your native language
/quiz — review a due phrase now
/practice [stage|lang] — free practice, ignores due dates
/stop — end the practice session
/stats — your learning statistics
/togglequiz — enable/disable quiz interruptions
/frequency 5 — lookups between quizzes
/reset — forget all my learning progress`

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.deps.Logger.WithField("panic", r).Error("recovered from handler panic")
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	user, err := b.deps.Users.GetOrCreate(ctx, msg.From.ID, msg.From.UserName)
	if err != nil {
		b.deps.Logger.WithError(err).WithField("user_id", msg.From.ID).Error("resolve user")
		_ = b.send(msg.Chat.ID, "Something went wrong, please try again.")
		return
	}
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		b.handleCommand(ctx, user, chatID, msg)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	// A pending free-text question claims the next plain message.
	if p := b.peekPending(user.ID); p != nil && !p.attempt.QuestionType.MultipleChoice() {
		b.handleFreeTextAnswer(ctx, user, chatID, text)
		return
	}

	b.handleLookup(ctx, user, chatID, text)
}

func (b *Bot) handleCommand(ctx context.Context, user *models.User, chatID int64, msg *tgbotapi.Message) {
	args := strings.TrimSpace(msg.CommandArguments())
	switch msg.Command() {
	case "start":
		_ = b.send(chatID, "Welcome! "+helpText)
	case "help":
		_ = b.send(chatID, helpText)
	case "languages":
		b.handleSetLanguages(ctx, user, chatID, args)
	case "native":
		b.handleSetNative(ctx, user, chatID, args)
	case "quiz":
		b.handleQuizCommand(ctx, user, chatID)
	case "practice":
		b.handlePracticeCommand(ctx, user, chatID, args)
	case "stop":
		b.endSession(user.ID)
		b.takePending(user.ID)
		_ = b.send(chatID, "Practice session ended.")
	case "stats":
		b.handleStats(ctx, user, chatID)
	case "togglequiz":
		b.handleToggleQuiz(ctx, user, chatID)
	case "frequency":
		b.handleFrequency(ctx, user, chatID, args)
	case "import":
		b.handleImport(ctx, user, chatID, args)
	case "reset":
		b.handleReset(ctx, user, chatID)
	default:
		_ = b.send(chatID, "Unknown command. Try /help.")
	}
}

func (b *Bot) handleSetLanguages(ctx context.Context, user *models.User, chatID int64, args string) {
	if args == "" {
		_ = b.send(chatID, "Usage: /languages de,fr")
		return
	}
	user.SetTargetLangs(strings.Split(args, ","))
	if err := b.deps.Users.Update(ctx, user); err != nil {
		b.deps.Logger.WithError(err).WithField("user_id", user.ID).Error("update languages")
		_ = b.send(chatID, "Could not save your languages, please try again.")
		return
	}
	_ = b.send(chatID, fmt.Sprintf("You now study: %s", strings.Join(user.TargetLangList(), ", ")))
}

func (b *Bot) handleSetNative(ctx context.Context, user *models.User, chatID int64, args string) {
	lang := models.NormalizeLang(args)
	if lang == "" {
		_ = b.send(chatID, "Usage: /native en")
		return
	}
	user.NativeLang = lang
	if err := b.deps.Users.Update(ctx, user); err != nil {
		b.deps.Logger.WithError(err).WithField("user_id", user.ID).Error("update native language")
		_ = b.send(chatID, "Could not save your native language, please try again.")
		return
	}
	_ = b.send(chatID, "Native language set to "+lang+".")
}

// parseLookup splits an optional "xx:" source-language prefix off the text.
func parseLookup(text, defaultLang string) (phrase, sourceLang string) {
	if idx := strings.Index(text, ":"); idx > 0 && idx <= 3 {
		prefix := models.NormalizeLang(text[:idx])
		rest := strings.TrimSpace(text[idx+1:])
		if prefix != "" && rest != "" {
			return rest, prefix
		}
	}
	return text, defaultLang
}

func (b *Bot) handleLookup(ctx context.Context, user *models.User, chatID int64, text string) {
	studied := user.TargetLangList()
	if len(studied) == 0 {
		_ = b.send(chatID, "Tell me which languages you study first: /languages de,fr")
		return
	}

	phraseText, sourceLang := parseLookup(text, studied[0])

	// Translate into the native language plus every other studied
	// language, except the phrase's own.
	targets := []string{user.NativeLang}
	for _, lang := range studied {
		if lang != sourceLang && lang != user.NativeLang {
			targets = append(targets, lang)
		}
	}

	result, err := b.deps.Lookup.Resolve(ctx, user.ID, phraseText, sourceLang, targets)
	if err != nil {
		switch {
		case errors.Is(err, translation.ErrEmptyText), errors.Is(err, translation.ErrNoTargetLangs):
			_ = b.send(chatID, "I need a phrase to look up.")
		default:
			b.deps.Logger.WithError(err).WithFields(logrus.Fields{
				"user_id": user.ID,
				"text":    phraseText,
			}).Error("lookup failed")
			_ = b.send(chatID, "The translation service is unavailable right now, please try again later.")
		}
		return
	}

	reply := b.formatLookup(result, targets)
	if note := b.grammarNote(ctx, result.Phrase); note != "" {
		reply += "\n\n" + note
	}
	_ = b.send(chatID, reply)

	b.maybeTriggerQuiz(ctx, user, chatID)
}

func (b *Bot) formatLookup(result *translation.Result, targets []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s)\n", result.Phrase.Text, result.Phrase.SourceLang)
	for _, lang := range targets {
		payload, ok := result.Translations[lang]
		if !ok {
			if note, missing := result.Missing[lang]; missing {
				fmt.Fprintf(&sb, "\n%s: unavailable (%s)", lang, note)
			}
			continue
		}
		fmt.Fprintf(&sb, "\n%s:", lang)
		for i, entry := range payload.Entries {
			if i >= b.cfg.MaxEntriesShown {
				break
			}
			fmt.Fprintf(&sb, "\n  • %s", entry.Form)
			if entry.Tag != "" {
				fmt.Fprintf(&sb, " (%s)", entry.Tag)
			}
			if entry.Gloss != "" {
				fmt.Fprintf(&sb, " — %s", entry.Gloss)
			}
		}
	}
	return sb.String()
}

// grammarNote returns the phrase's cached grammatical note, fetching and
// caching it on first demand. Failures are silent; the note is garnish.
func (b *Bot) grammarNote(ctx context.Context, phrase *models.Phrase) string {
	if phrase == nil || !phrase.Quizzable {
		return ""
	}
	if phrase.GrammarNote.Valid {
		return phrase.GrammarNote.String
	}
	note, err := b.deps.AI.ExplainGrammar(ctx, *phrase)
	if err != nil {
		b.deps.Logger.WithError(err).WithField("phrase_id", phrase.ID).Debug("grammar note unavailable")
		return ""
	}
	if err := b.deps.Phrases.SetGrammarNote(ctx, phrase.ID, note); err != nil {
		b.deps.Logger.WithError(err).WithField("phrase_id", phrase.ID).Error("cache grammar note")
	}
	return note
}

func (b *Bot) maybeTriggerQuiz(ctx context.Context, user *models.User, chatID int64) {
	decision, err := b.deps.Quizzes.ShouldTrigger(ctx, user.ID)
	if err != nil {
		b.deps.Logger.WithError(err).WithField("user_id", user.ID).Error("quiz trigger check")
		return
	}
	if !decision.Trigger {
		b.deps.Logger.WithFields(logrus.Fields{
			"user_id":   user.ID,
			"reason":    decision.Reason,
			"remaining": decision.Remaining,
		}).Debug("quiz not triggered")
		return
	}
	b.startQuizTurn(ctx, user, chatID, decision.Candidate, false)
}

func (b *Bot) handleQuizCommand(ctx context.Context, user *models.User, chatID int64) {
	candidate, err := b.deps.Quizzes.SelectCandidate(ctx, user.ID, database.CandidateFilters{})
	if err != nil {
		b.deps.Logger.WithError(err).WithField("user_id", user.ID).Error("select candidate")
		_ = b.send(chatID, "Something went wrong, please try again.")
		return
	}
	if candidate == nil {
		_ = b.send(chatID, "Nothing is due for review. Keep looking up new phrases!")
		return
	}
	b.startQuizTurn(ctx, user, chatID, candidate, false)
}

func (b *Bot) handlePracticeCommand(ctx context.Context, user *models.User, chatID int64, args string) {
	filters := database.CandidateFilters{IgnoreDueDate: true}
	if args != "" {
		if stage, err := models.ParseStage(models.NormalizeLang(args)); err == nil {
			filters.Stage = &stage
		} else {
			filters.TargetLang = args
		}
	}

	session := b.session(user.ID)
	if session.rounds >= b.cfg.PracticeRoundLimit {
		b.endSession(user.ID)
		_ = b.send(chatID, "That's enough practice for one session — well done! /practice to start again.")
		return
	}
	filters.ExcludeIDs = session.excludeIDs

	candidate, err := b.deps.Quizzes.SelectCandidate(ctx, user.ID, filters)
	if err != nil {
		b.deps.Logger.WithError(err).WithField("user_id", user.ID).Error("select practice candidate")
		_ = b.send(chatID, "Something went wrong, please try again.")
		return
	}
	if candidate == nil {
		b.endSession(user.ID)
		_ = b.send(chatID, "No more phrases to practice with those filters.")
		return
	}
	b.startQuizTurn(ctx, user, chatID, candidate, true)
}

func (b *Bot) startQuizTurn(ctx context.Context, user *models.User, chatID int64, record *models.LearningProgress, practice bool) {
	phrase, err := b.deps.Phrases.GetByID(ctx, record.PhraseID)
	if err != nil {
		b.deps.Logger.WithError(err).WithFields(logrus.Fields{
			"user_id":   user.ID,
			"phrase_id": record.PhraseID,
		}).Error("load quiz phrase")
		return
	}

	records, err := b.deps.Translations.GetForPhrase(ctx, phrase.ID, []string{user.NativeLang})
	if err != nil {
		b.deps.Logger.WithError(err).WithField("phrase_id", phrase.ID).Error("load quiz translations")
		return
	}
	translations := make(map[string]models.TranslationPayload, len(records))
	for lang, rec := range records {
		payload, err := models.UnmarshalPayload(rec.Payload)
		if err != nil {
			continue
		}
		translations[lang] = payload
	}

	attempt, generated, err := b.deps.Quizzes.BuildAttempt(ctx, user, phrase, record.Stage, translations)
	if err != nil {
		b.deps.Logger.WithError(err).WithField("phrase_id", phrase.ID).Error("build quiz attempt")
		_ = b.send(chatID, "Could not prepare a question right now, try /quiz later.")
		return
	}

	evalContext := fmt.Sprintf("Phrase %q (%s), asked as %s.", phrase.Text, phrase.SourceLang, attempt.QuestionType)
	p := &pendingQuiz{
		attempt:  attempt,
		record:   record,
		phrase:   phrase,
		options:  generated.Options,
		context:  evalContext,
		practice: practice,
	}
	b.setPending(user.ID, p)

	if attempt.QuestionType.MultipleChoice() {
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(generated.Options))
		for i, option := range generated.Options {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(option, fmt.Sprintf("ans:%d", i)),
			))
		}
		_ = b.sendWithKeyboard(chatID, "🧠 "+generated.QuestionText, tgbotapi.NewInlineKeyboardMarkup(rows...))
		return
	}
	_ = b.send(chatID, "🧠 "+generated.QuestionText)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	// Acknowledge the button press regardless of outcome.
	_, _ = b.api.Request(tgbotapi.NewCallback(cb.ID, ""))

	if !strings.HasPrefix(cb.Data, "ans:") {
		return
	}
	user, err := b.deps.Users.GetOrCreate(ctx, cb.From.ID, cb.From.UserName)
	if err != nil {
		b.deps.Logger.WithError(err).WithField("user_id", cb.From.ID).Error("resolve user")
		return
	}
	chatID := cb.Message.Chat.ID

	p := b.takePending(user.ID)
	if p == nil {
		_ = b.send(chatID, "That question has expired. /quiz for a new one.")
		return
	}
	idx, err := strconv.Atoi(strings.TrimPrefix(cb.Data, "ans:"))
	if err != nil || idx < 0 || idx >= len(p.options) {
		_ = b.send(chatID, "That question has expired. /quiz for a new one.")
		return
	}
	b.finishQuiz(ctx, user, chatID, p, p.options[idx])
}

func (b *Bot) handleFreeTextAnswer(ctx context.Context, user *models.User, chatID int64, answer string) {
	p := b.takePending(user.ID)
	if p == nil {
		return
	}
	b.finishQuiz(ctx, user, chatID, p, answer)
}

func (b *Bot) finishQuiz(ctx context.Context, user *models.User, chatID int64, p *pendingQuiz, answer string) {
	verdict, err := b.deps.Evaluator.Evaluate(ctx, answer, p.attempt.CorrectAnswers, p.attempt.QuestionType, p.context)
	if err != nil {
		if errors.Is(err, quiz.ErrEmptyAnswer) {
			b.setPending(user.ID, p)
			_ = b.send(chatID, "Please type an answer.")
			return
		}
		b.deps.Logger.WithError(err).WithFields(logrus.Fields{
			"user_id":   user.ID,
			"phrase_id": p.phrase.ID,
		}).Error("evaluate answer")
		_ = b.send(chatID, "Could not check that answer, the question is void.")
		return
	}

	p.attempt.UserAnswer = answer
	transition, err := b.deps.Results.Apply(ctx, p.record, p.attempt, verdict.WasCorrect)
	if err != nil {
		b.deps.Logger.WithError(err).WithFields(logrus.Fields{
			"user_id":   user.ID,
			"phrase_id": p.phrase.ID,
		}).Error("apply quiz result")
		_ = b.send(chatID, "Could not record the result, please try /quiz again.")
		return
	}

	var sb strings.Builder
	if verdict.WasCorrect {
		sb.WriteString("✅ Correct!")
		if verdict.MatchedAnswer != "" && verdict.Tier == quiz.TierJudge {
			fmt.Fprintf(&sb, " (counted as %q)", verdict.MatchedAnswer)
		}
	} else {
		sb.WriteString("❌ Not quite.")
	}
	if verdict.Explanation != "" {
		sb.WriteString("\n" + verdict.Explanation)
	}
	if transition.Advanced {
		fmt.Fprintf(&sb, "\n📈 %q moved up: %s → %s", p.phrase.Text, transition.OldStage, transition.NewStage)
	}
	if transition.NewStage == models.StageMastered {
		fmt.Fprintf(&sb, "\n🏆 Mastered — this phrase won't come up again.")
	} else if transition.NextReviewDate.Valid {
		fmt.Fprintf(&sb, "\nNext review: %s", transition.NextReviewDate.Time.Format("2006-01-02"))
	}
	_ = b.send(chatID, sb.String())

	if p.practice {
		session := b.session(user.ID)
		session.excludeIDs = append(session.excludeIDs, p.phrase.ID)
		session.rounds++
		b.handlePracticeCommand(ctx, user, chatID, "")
	}
}

func (b *Bot) handleStats(ctx context.Context, user *models.User, chatID int64) {
	stats, err := b.deps.Stats.GetUserStatistics(ctx, user.ID)
	if err != nil {
		b.deps.Logger.WithError(err).WithField("user_id", user.ID).Error("load statistics")
		_ = b.send(chatID, "Could not load your statistics right now.")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 You are learning %d phrase(s).\n", stats.TotalPhrases)
	for _, stage := range []models.Stage{models.StageBasic, models.StageIntermediate, models.StageAdvanced, models.StageMastered} {
		if count := stats.ByStage[stage]; count > 0 {
			fmt.Fprintf(&sb, "  %s: %d\n", stage, count)
		}
	}
	fmt.Fprintf(&sb, "Quiz accuracy: %.0f%% over %d answer(s).", stats.Accuracy()*100, stats.TotalAttempts)
	_ = b.send(chatID, sb.String())
}

func (b *Bot) handleToggleQuiz(ctx context.Context, user *models.User, chatID int64) {
	cfg, err := b.deps.Configs.Get(ctx, user.ID)
	if err != nil {
		b.deps.Logger.WithError(err).WithField("user_id", user.ID).Error("load user config")
		_ = b.send(chatID, "Something went wrong, please try again.")
		return
	}
	cfg.QuizModeEnabled = !cfg.QuizModeEnabled
	if err := b.deps.Configs.Upsert(ctx, cfg); err != nil {
		b.deps.Logger.WithError(err).WithField("user_id", user.ID).Error("save user config")
		_ = b.send(chatID, "Something went wrong, please try again.")
		return
	}
	if cfg.QuizModeEnabled {
		_ = b.send(chatID, "Quiz mode is on — I'll slip in reviews between lookups.")
	} else {
		_ = b.send(chatID, "Quiz mode is off. /quiz still works on demand.")
	}
}

func (b *Bot) handleFrequency(ctx context.Context, user *models.User, chatID int64, args string) {
	n, err := strconv.Atoi(args)
	if err != nil || n < 1 {
		_ = b.send(chatID, "Usage: /frequency 5 (lookups between quizzes, at least 1)")
		return
	}
	cfg, err := b.deps.Configs.Get(ctx, user.ID)
	if err != nil {
		b.deps.Logger.WithError(err).WithField("user_id", user.ID).Error("load user config")
		_ = b.send(chatID, "Something went wrong, please try again.")
		return
	}
	cfg.QuizFrequency = n
	if err := b.deps.Configs.Upsert(ctx, cfg); err != nil {
		b.deps.Logger.WithError(err).WithField("user_id", user.ID).Error("save user config")
		_ = b.send(chatID, "Something went wrong, please try again.")
		return
	}
	_ = b.send(chatID, fmt.Sprintf("Got it — a quiz every %d lookups.", n))
}

func (b *Bot) handleImport(ctx context.Context, user *models.User, chatID int64, args string) {
	if !b.adminIDs[user.ID] {
		_ = b.send(chatID, "Import is restricted to administrators.")
		return
	}
	parts := strings.Fields(args)
	if len(parts) != 2 {
		_ = b.send(chatID, "Usage: /import <path.xlsx> <source-lang>")
		return
	}
	result, err := b.deps.Importer.Import(ctx, parts[0], parts[1])
	if err != nil {
		b.deps.Logger.WithError(err).WithField("path", parts[0]).Error("import phrases")
		_ = b.send(chatID, "Import failed: "+err.Error())
		return
	}
	reply := fmt.Sprintf("Imported %d new phrase(s), %d already known.", result.Created, result.Skipped)
	if len(result.Errors) > 0 {
		reply += fmt.Sprintf(" %d row(s) had problems.", len(result.Errors))
	}
	_ = b.send(chatID, reply)
}

func (b *Bot) handleReset(ctx context.Context, user *models.User, chatID int64) {
	if err := b.deps.Progress.DeleteForUser(ctx, user.ID); err != nil {
		b.deps.Logger.WithError(err).WithField("user_id", user.ID).Error("reset progress")
		_ = b.send(chatID, "Could not reset your progress, please try again.")
		return
	}
	_ = b.send(chatID, "All learning progress forgotten. Lookups will rebuild it from scratch.")
}
