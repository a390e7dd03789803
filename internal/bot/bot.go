// Package bot is the Telegram front end. It owns identity (the Telegram
// user id), per-chat quiz state and message formatting; every decision
// about caching, scheduling and scoring is delegated to the services.
package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/example/lingobot/internal/ai"
	"github.com/example/lingobot/internal/config"
	"github.com/example/lingobot/internal/database"
	"github.com/example/lingobot/internal/excel"
	"github.com/example/lingobot/internal/quiz"
	"github.com/example/lingobot/internal/translation"
	"github.com/example/lingobot/pkg/models"
)

// pendingQuiz is one question awaiting the learner's answer.
type pendingQuiz struct {
	attempt  *models.QuizAttempt
	record   *models.LearningProgress
	phrase   *models.Phrase
	options  []string
	context  string
	practice bool
}

// practiceSession tracks phrases already shown in a free-browsing session.
type practiceSession struct {
	excludeIDs []int64
	rounds     int
}

// Deps bundles everything the bot needs.
type Deps struct {
	Users        *database.UserRepository
	Configs      *database.UserConfigRepository
	Phrases      *database.PhraseRepository
	Translations *database.TranslationRepository
	Stats        *database.StatisticsRepository
	Progress     *database.ProgressRepository
	Lookup       *translation.Service
	Quizzes      *quiz.Scheduler
	Evaluator    *quiz.Evaluator
	Results      *quiz.ResultService
	Importer     *excel.Importer
	AI           *ai.Client
	Logger       *logrus.Logger
}

// Bot is the Telegram bot application.
type Bot struct {
	api      *tgbotapi.BotAPI
	cfg      *Config
	deps     Deps
	adminIDs map[int64]bool

	mu       sync.Mutex
	pending  map[int64]*pendingQuiz
	sessions map[int64]*practiceSession
}

// New creates a bot instance.
func New(tgCfg config.TelegramConfig, deps Deps) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(tgCfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram api: %w", err)
	}

	adminIDs := make(map[int64]bool)
	for _, idStr := range strings.Split(tgCfg.AdminUserIDs, ",") {
		idStr = strings.TrimSpace(idStr)
		if idStr == "" {
			continue
		}
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			deps.Logger.WithField("value", idStr).Warn("ignoring malformed admin user id")
			continue
		}
		adminIDs[id] = true
	}

	return &Bot{
		api:      api,
		cfg:      DefaultConfig(),
		deps:     deps,
		adminIDs: adminIDs,
		pending:  make(map[int64]*pendingQuiz),
		sessions: make(map[int64]*practiceSession),
	}, nil
}

// Start blocks processing updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	b.deps.Logger.WithField("bot", b.api.Self.UserName).Info("bot started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

// Stop shuts down the update loop.
func (b *Bot) Stop(ctx context.Context) error {
	b.api.StopReceivingUpdates()
	return nil
}

// SendReminder implements scheduler.Notifier.
func (b *Bot) SendReminder(userID int64, dueCount int) error {
	text := fmt.Sprintf("You have %d phrase(s) due for review. Send /quiz to start.", dueCount)
	return b.send(userID, text)
}

func (b *Bot) send(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send message to %d: %w", chatID, err)
	}
	return nil
}

func (b *Bot) sendWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send message to %d: %w", chatID, err)
	}
	return nil
}

func (b *Bot) setPending(userID int64, p *pendingQuiz) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[userID] = p
}

func (b *Bot) takePending(userID int64) *pendingQuiz {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.pending[userID]
	delete(b.pending, userID)
	return p
}

func (b *Bot) peekPending(userID int64) *pendingQuiz {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending[userID]
}

func (b *Bot) session(userID int64) *practiceSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[userID]
	if !ok {
		s = &practiceSession{}
		b.sessions[userID] = s
	}
	return s
}

func (b *Bot) endSession(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, userID)
}
