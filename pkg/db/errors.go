package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether the provided error is a unique constraint
// violation on one of the named constraints. Postgres errors are matched by
// constraint name; sqlite errors by the table.column reference in the
// message. With no names, any unique violation matches — callers guarding a
// specific index must name it, otherwise an unrelated collision in the same
// transaction would be misread.
func IsUniqueViolation(err error, constraintNames ...string) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolation {
			return false
		}
		if len(constraintNames) == 0 {
			return true
		}
		for _, name := range constraintNames {
			if name != "" && pgErr.ConstraintName == name {
				return true
			}
		}
		return false
	}

	msg := err.Error()
	// Postgres and sqlite phrasings respectively.
	unique := errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
	if !unique {
		return false
	}
	if len(constraintNames) == 0 {
		return true
	}
	for _, name := range constraintNames {
		if name != "" && strings.Contains(msg, name) {
			return true
		}
	}
	return false
}
