package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the referenced product, movement or document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument indicates a bad quantity, rate or date.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrScopeMismatch indicates a cross-tenant reference.
	ErrScopeMismatch = errors.New("scope mismatch")
	// ErrRecomputeTooLarge indicates the cascade ceiling was exceeded.
	ErrRecomputeTooLarge = errors.New("recompute cascade too large")
	// ErrStorageConflict indicates a concurrent write on the same product; callers should retry.
	ErrStorageConflict = errors.New("storage conflict")
	// ErrHasDependents indicates a delete refused because child records reference the row.
	ErrHasDependents = errors.New("record has dependents")
)

// InvalidArgumentf wraps ErrInvalidArgument naming the offending field.
func InvalidArgumentf(field, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidArgument, field, fmt.Sprintf(format, args...))
}

// UserSafeMessage returns a message safe to show to API consumers.
func UserSafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "resource not found"
	case errors.Is(err, ErrInvalidArgument):
		return err.Error()
	case errors.Is(err, ErrScopeMismatch):
		// Indistinguishable from not-found so tenants cannot probe each other.
		return "resource not found"
	case errors.Is(err, ErrRecomputeTooLarge):
		return "too many movements to recompute, contact an administrator"
	case errors.Is(err, ErrStorageConflict):
		return "concurrent update detected, please retry"
	case errors.Is(err, ErrHasDependents):
		return "record is still referenced and cannot be deleted"
	default:
		return "internal error"
	}
}
