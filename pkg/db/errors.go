package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// IsUniqueViolation reports whether the provided error references a unique
// constraint violation. When constraintName is provided, the constraint must match too.
func IsUniqueViolation(err error, constraintName string) bool {
	return matchesConstraint(err, pgUniqueViolation, constraintName, "duplicate key value", "UNIQUE constraint failed")
}

// IsForeignKeyViolation reports whether the error is a foreign key violation.
func IsForeignKeyViolation(err error, constraintName string) bool {
	return matchesConstraint(err, pgForeignKeyViolation, constraintName, "violates foreign key constraint", "FOREIGN KEY constraint failed")
}

// IsCheckViolation reports whether the error is a CHECK constraint violation.
func IsCheckViolation(err error, constraintName string) bool {
	return matchesConstraint(err, pgCheckViolation, constraintName, "violates check constraint", "CHECK constraint failed")
}

func matchesConstraint(err error, pgCode, constraintName string, fragments ...string) bool {
	if err == nil {
		return false
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code == pgCode && (constraintName == "" || pgxErr.ConstraintName == constraintName)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgCode && (constraintName == "" || pqErr.Constraint == constraintName)
	}

	msg := err.Error()
	if constraintName != "" && !strings.Contains(msg, constraintName) {
		return false
	}
	for _, fragment := range fragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
