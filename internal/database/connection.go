package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/example/lingobot/internal/config"
)

// Connect opens the backing store and initializes the schema.
// Supported drivers: sqlite3 (file path DSN) and postgres.
func Connect(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := cfg.DSN
	if cfg.Driver == "sqlite3" {
		if dir := filepath.Dir(dsn); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
	}

	db, err := sqlx.Connect(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if cfg.Driver == "sqlite3" {
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
		// SQLite doesn't support multiple writers.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// WithTx runs fn inside a transaction, rolling back on error or panic.
func WithTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// initializeSchema creates the tables if they don't exist. Uniqueness
// constraints guard every upsert-or-create race.
func initializeSchema(db *sqlx.DB) error {
	statements := []struct {
		name string
		sql  string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id BIGINT PRIMARY KEY,
				username TEXT NOT NULL DEFAULT '',
				native_lang TEXT NOT NULL DEFAULT 'en',
				target_langs TEXT NOT NULL DEFAULT '',
				search_count INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)
		`},
		{"user_configs", `
			CREATE TABLE IF NOT EXISTS user_configs (
				user_id BIGINT PRIMARY KEY,
				quiz_mode_enabled BOOLEAN NOT NULL DEFAULT true,
				quiz_frequency INTEGER NOT NULL DEFAULT 5,
				reminder_hour INTEGER NOT NULL DEFAULT 9,
				reminder_enabled BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL,
				FOREIGN KEY (user_id) REFERENCES users(id)
			)
		`},
		{"phrases", `
			CREATE TABLE IF NOT EXISTS phrases (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				text TEXT NOT NULL,
				source_lang TEXT NOT NULL,
				quizzable BOOLEAN NOT NULL DEFAULT true,
				search_count INTEGER NOT NULL DEFAULT 0,
				grammar_note TEXT,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL,
				UNIQUE(text, source_lang)
			)
		`},
		{"translations", `
			CREATE TABLE IF NOT EXISTS translations (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				phrase_id BIGINT NOT NULL,
				target_lang TEXT NOT NULL,
				payload TEXT NOT NULL,
				model_id TEXT NOT NULL DEFAULT '',
				usage_meta TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL,
				FOREIGN KEY (phrase_id) REFERENCES phrases(id),
				UNIQUE(phrase_id, target_lang)
			)
		`},
		{"learning_progress", `
			CREATE TABLE IF NOT EXISTS learning_progress (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id BIGINT NOT NULL,
				phrase_id BIGINT NOT NULL,
				stage TEXT NOT NULL DEFAULT 'basic',
				times_reviewed INTEGER NOT NULL DEFAULT 0,
				times_correct INTEGER NOT NULL DEFAULT 0,
				times_incorrect INTEGER NOT NULL DEFAULT 0,
				next_review_date TIMESTAMP,
				last_reviewed_at TIMESTAMP,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL,
				FOREIGN KEY (user_id) REFERENCES users(id),
				FOREIGN KEY (phrase_id) REFERENCES phrases(id),
				UNIQUE(user_id, phrase_id)
			)
		`},
		{"quiz_attempts", `
			CREATE TABLE IF NOT EXISTS quiz_attempts (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id BIGINT NOT NULL,
				phrase_id BIGINT NOT NULL,
				question_type TEXT NOT NULL,
				question TEXT NOT NULL,
				options TEXT NOT NULL DEFAULT '',
				correct_answers TEXT NOT NULL,
				user_answer TEXT NOT NULL,
				was_correct BOOLEAN NOT NULL,
				created_at TIMESTAMP NOT NULL,
				FOREIGN KEY (user_id) REFERENCES users(id),
				FOREIGN KEY (phrase_id) REFERENCES phrases(id)
			)
		`},
	}

	for _, stmt := range statements {
		sql := stmt.sql
		if db.DriverName() == "postgres" {
			// Postgres has no AUTOINCREMENT keyword.
			sql = replaceAutoincrement(sql)
		}
		if _, err := db.Exec(sql); err != nil {
			return fmt.Errorf("create %s table: %w", stmt.name, err)
		}
	}
	return nil
}

func replaceAutoincrement(sql string) string {
	return strings.ReplaceAll(sql, "INTEGER PRIMARY KEY AUTOINCREMENT", "BIGSERIAL PRIMARY KEY")
}
