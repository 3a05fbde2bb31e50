package types

import (
	"errors"
	"fmt"
	"time"
)

// Error taxonomy shared by every engine operation. Callers test with
// errors.Is; the richer forms below unwrap to these sentinels.
var (
	// ErrConflict means the slot is already reserved by another operator.
	ErrConflict = errors.New("conflict")

	// ErrValidation means the request itself is malformed.
	ErrValidation = errors.New("validation error")

	// ErrNotFound means an unknown portfolio or reservation id.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable means the backing store could not be reached.
	ErrUnavailable = errors.New("unavailable")
)

// ConflictError describes who currently holds a contested slot.
type ConflictError struct {
	PortfolioID string
	IssueHour   int
	HeldBy      string
	ExpiresAt   time.Time
}

func (e *ConflictError) Error() string {
	if e.HeldBy == "" {
		return fmt.Sprintf("portfolio %s hour %d is currently being logged by someone else",
			e.PortfolioID, e.IssueHour)
	}
	return fmt.Sprintf("portfolio %s hour %d is currently being logged by %s",
		e.PortfolioID, e.IssueHour, e.HeldBy)
}

// Unwrap lets errors.Is(err, ErrConflict) match.
func (e *ConflictError) Unwrap() error { return ErrConflict }

// ValidationError is a field-level validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Unwrap lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError for field.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFound wraps ErrNotFound with the kind and id that were missing.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

// Unavailable wraps a backend failure so that errors.Is(err, ErrUnavailable)
// holds while the original cause stays reachable.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
