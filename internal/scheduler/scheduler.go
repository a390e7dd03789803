// Package scheduler runs the reminder loop. It lives outside the core:
// lookups and quiz turns are handled synchronously per request, this only
// pings learners who have reviews waiting.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"

	"github.com/example/lingobot/internal/config"
	"github.com/example/lingobot/internal/database"
	"github.com/example/lingobot/pkg/models"
)

// Notifier sends reminders to learners.
type Notifier interface {
	SendReminder(userID int64, dueCount int) error
}

// Scheduler manages the hourly due-review check.
type Scheduler struct {
	scheduler *gocron.Scheduler
	users     *database.UserRepository
	progress  *database.ProgressRepository
	notifier  Notifier
	cfg       config.ReminderConfig
	logger    *logrus.Logger
}

// New creates a scheduler instance.
func New(users *database.UserRepository, progressRepo *database.ProgressRepository, notifier Notifier, cfg config.ReminderConfig, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		users:     users,
		progress:  progressRepo,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start begins the hourly reminder check in the background.
func (s *Scheduler) Start() {
	s.scheduler.Every(1).Hour().Do(s.checkAndSendReminders)
	s.scheduler.StartAsync()
}

// Stop terminates all scheduled tasks.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

func (s *Scheduler) checkAndSendReminders() {
	now := time.Now()
	hour := now.Hour()
	if hour < s.cfg.StartHour || hour > s.cfg.EndHour {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	users, err := s.users.GetUsersForReminder(ctx, hour)
	if err != nil {
		s.logger.WithError(err).Error("get users for reminder")
		return
	}

	for _, user := range users {
		s.remind(ctx, user, now)
	}
}

func (s *Scheduler) remind(ctx context.Context, user models.User, now time.Time) {
	due, err := s.progress.CountDue(ctx, user.ID, user.TargetLangList(), now)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).Error("count due reviews")
		return
	}
	if due == 0 {
		return
	}
	if err := s.notifier.SendReminder(user.ID, due); err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).Error("send reminder")
	}
}

// RunManualCheck forces a reminder check for one learner.
func (s *Scheduler) RunManualCheck(ctx context.Context, userID int64) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	s.remind(ctx, *user, time.Now())
	return nil
}
