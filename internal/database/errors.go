package database

import (
	"errors"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Not-found sentinels. These are distinct from validation errors and carry
// enough caller-side context once wrapped.
var (
	ErrPhraseNotFound   = errors.New("phrase not found")
	ErrProgressNotFound = errors.New("learning progress not found")
	ErrUserNotFound     = errors.New("user not found")
)

// isUniqueViolation reports whether err is a unique-constraint violation
// from either supported driver. Duplicate-insert races are resolved by the
// repositories, never propagated to callers.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
