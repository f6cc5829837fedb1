package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/quiz-auth/internal/repository"
)

// Error kinds. Every *Error unwraps to exactly one of these, so callers
// branch with errors.Is.
var (
	ErrValidation       = errors.New("validation error")
	ErrConflict         = errors.New("conflict")
	ErrAuth             = errors.New("authentication failed")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Error is a flow failure that is safe to show to the caller. Field is
// set for validation and conflict errors. Err keeps the underlying cause
// for logs and is never rendered.
type Error struct {
	Kind   error
	Field  string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%v: %s: %s", e.Kind, e.Field, e.Reason)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func validationErr(field, reason string) error {
	return &Error{Kind: ErrValidation, Field: field, Reason: reason}
}

func conflictErr(field, reason string) error {
	return &Error{Kind: ErrConflict, Field: field, Reason: reason}
}

func authErr(reason string) error {
	return &Error{Kind: ErrAuth, Reason: reason}
}

func unauthenticated(reason string, cause error) error {
	return &Error{Kind: ErrUnauthenticated, Reason: reason, Err: cause}
}

// storeErr classifies an unexpected store error. Backend outages become
// ErrStoreUnavailable; anything else is returned wrapped and surfaces as
// an internal error.
func storeErr(op string, err error) error {
	if errors.Is(err, repository.ErrUnavailable) {
		return &Error{Kind: ErrStoreUnavailable, Reason: "storage is temporarily unavailable", Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
