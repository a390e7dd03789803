package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/lingobot/internal/ai"
	"github.com/example/lingobot/internal/bot"
	"github.com/example/lingobot/internal/config"
	"github.com/example/lingobot/internal/database"
	"github.com/example/lingobot/internal/excel"
	"github.com/example/lingobot/internal/progress"
	"github.com/example/lingobot/internal/quiz"
	"github.com/example/lingobot/internal/scheduler"
	"github.com/example/lingobot/internal/translation"
)

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("load configuration")
	}
	configureLogger(logger, cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("connect to database")
	}
	defer db.Close()

	// Repositories.
	users := database.NewUserRepository(db)
	userConfigs := database.NewUserConfigRepository(db, cfg.Quiz.QuizFrequency)
	phrases := database.NewPhraseRepository(db)
	translations := database.NewTranslationRepository(db)
	progressRepo := database.NewProgressRepository(db)
	attempts := database.NewAttemptRepository(db)
	stats := database.NewStatisticsRepository(db)

	// Services.
	pricing := ai.NewPricingCache(cfg.OpenAI.PricingTTL, nil)
	aiClient := ai.NewClient(cfg.OpenAI, pricing, logger)
	lookup := translation.NewService(phrases, translations, progressRepo, users, aiClient, logger)
	quizzes := quiz.NewScheduler(progressRepo, userConfigs, users, aiClient, logger)
	evaluator := quiz.NewEvaluator(aiClient, logger)
	results := quiz.NewResultService(db, progressRepo, attempts, progress.NewMachine())
	importer := excel.NewImporter(phrases, logger)

	b, err := bot.New(cfg.Telegram, bot.Deps{
		Users:        users,
		Configs:      userConfigs,
		Phrases:      phrases,
		Translations: translations,
		Stats:        stats,
		Progress:     progressRepo,
		Lookup:       lookup,
		Quizzes:      quizzes,
		Evaluator:    evaluator,
		Results:      results,
		Importer:     importer,
		AI:           aiClient,
		Logger:       logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("create bot")
	}

	if cfg.Reminders.Enabled {
		reminders := scheduler.New(users, progressRepo, b, cfg.Reminders, logger)
		reminders.Start()
		defer reminders.Stop()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		sig := <-sigChan
		logger.WithField("signal", sig.String()).Info("shutting down")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := b.Stop(shutdownCtx); err != nil {
			logger.WithError(err).Error("shutdown")
		}
		close(done)
	}()

	logger.Info("bot started, press Ctrl+C to stop")
	go func() {
		if err := b.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("bot stopped with error")
			cancel()
			close(done)
		}
	}()

	<-done
	logger.Info("bot stopped")
}

func configureLogger(logger *logrus.Logger, cfg config.LogConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
