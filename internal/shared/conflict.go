package shared

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres error codes that signal a concurrent writer rather than a bug.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUniqueViolation      = "23505"
)

// MapStorageError converts storage-level concurrency failures into
// ErrStorageConflict so callers can retry. Other errors pass through.
func MapStorageError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgUniqueViolation:
			return errors.Join(ErrStorageConflict, err)
		}
	}
	return err
}
