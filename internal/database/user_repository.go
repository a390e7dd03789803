package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/lingobot/pkg/models"
)

// UserRepository handles learner records. The id is the Telegram user id,
// assigned by the surrounding application, never generated here.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new repository instance.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID returns a learner by id.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	query := r.db.Rebind("SELECT * FROM users WHERE id = ?")
	err := r.db.GetContext(ctx, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return &user, nil
}

// GetOrCreate resolves a learner, registering them on first contact.
func (r *UserRepository) GetOrCreate(ctx context.Context, id int64, username string) (*models.User, error) {
	existing, err := r.GetByID(ctx, id)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:         id,
		Username:   username,
		NativeLang: "en",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	query := r.db.Rebind(`
		INSERT INTO users (id, username, native_lang, target_langs, search_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if _, err := r.db.ExecContext(ctx, query,
		user.ID, user.Username, user.NativeLang, user.TargetLangs,
		user.SearchCount, user.CreatedAt, user.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return r.GetByID(ctx, id)
		}
		return nil, fmt.Errorf("create user %d: %w", id, err)
	}
	return user, nil
}

// Update persists learner settings (native language, target languages).
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	query := r.db.Rebind(`
		UPDATE users SET username = ?, native_lang = ?, target_langs = ?, updated_at = ?
		WHERE id = ?
	`)
	result, err := r.db.ExecContext(ctx, query,
		user.Username, user.NativeLang, user.TargetLangs, user.UpdatedAt, user.ID,
	)
	if err != nil {
		return fmt.Errorf("update user %d: %w", user.ID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user %d: %w", user.ID, ErrUserNotFound)
	}
	return nil
}

// IncrementSearchCount bumps the searches-since-last-quiz counter.
func (r *UserRepository) IncrementSearchCount(ctx context.Context, id int64) error {
	query := r.db.Rebind("UPDATE users SET search_count = search_count + 1, updated_at = ? WHERE id = ?")
	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("increment search count for user %d: %w", id, err)
	}
	return nil
}

// ResetSearchCount zeroes the counter once a quiz has been triggered.
func (r *UserRepository) ResetSearchCount(ctx context.Context, id int64) error {
	query := r.db.Rebind("UPDATE users SET search_count = 0, updated_at = ? WHERE id = ?")
	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("reset search count for user %d: %w", id, err)
	}
	return nil
}

// GetUsersForReminder returns learners whose reminder hour matches and who
// have reminders enabled.
func (r *UserRepository) GetUsersForReminder(ctx context.Context, hour int) ([]models.User, error) {
	var users []models.User
	query := r.db.Rebind(`
		SELECT u.* FROM users u
		JOIN user_configs c ON c.user_id = u.id
		WHERE c.reminder_enabled = ? AND c.reminder_hour = ?
	`)
	if err := r.db.SelectContext(ctx, &users, query, true, hour); err != nil {
		return nil, fmt.Errorf("get users for reminder hour %d: %w", hour, err)
	}
	return users, nil
}
