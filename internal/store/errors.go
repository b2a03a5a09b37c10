package store

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when no record matches a key or index value.
	ErrNotFound = errors.New("record not found")

	// ErrConstraint is returned when a write violates a primary key or a
	// unique index.
	ErrConstraint = errors.New("constraint violation")

	// ErrUnavailable is returned when persistent storage cannot be opened.
	// Callers treat it as a soft failure and run with persistence disabled.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrReadOnly is returned for writes attempted inside a View transaction.
	ErrReadOnly = errors.New("write in read-only transaction")

	// ErrUnknownIndex is returned when a table has no index with the given name.
	ErrUnknownIndex = errors.New("unknown index")
)

// isUniqueViolation reports whether err is a primary key or unique index
// violation. glebarez/sqlite often returns plain-text errors, so the message
// is checked as well as the translated gorm error.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "primary key must be unique")
}

// wrapErr maps driver errors to store errors while keeping the cause text.
func wrapErr(table, op string, err error) error {
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return fmt.Errorf("%s %s: %w: %v", table, op, ErrConstraint, err)
	default:
		return fmt.Errorf("%s %s: %w", table, op, err)
	}
}
