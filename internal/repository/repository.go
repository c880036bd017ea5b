// Package repository implements all database queries for the tournament backend.
// It uses pgx directly (no ORM) for transparency and performance.
package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates a uniqueness guard.
var ErrDuplicate = errors.New("duplicate record")

// ErrConflict is returned when a guarded update matched no row, e.g. a debit
// larger than the current balance.
var ErrConflict = errors.New("guarded update did not apply")

const (
	uniqueViolation           = "23505"
	invalidTextRepresentation = "22P02"
)

// uniqueViolationOn reports whether err is a unique violation. When
// constraint is non-empty it must also match the violated constraint name.
func uniqueViolationOn(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// invalidInput reports a value Postgres could not parse for its column type,
// such as a malformed UUID.
func invalidInput(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == invalidTextRepresentation
}
