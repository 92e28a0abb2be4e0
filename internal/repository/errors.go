package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrDuplicateEmail       = errors.New("email already exists")
	ErrDuplicateUsername    = errors.New("username already exists")
	ErrConversationNotFound = errors.New("conversation not found")
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// uniqueConstraint returns the violated constraint name when err is a unique violation.
func uniqueConstraint(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}
