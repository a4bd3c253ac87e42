package apperr

import (
	"errors"
	"fmt"
)

// The four failure classes every store and service operation maps into.
// Callers branch with errors.Is; the HTTP layer translates them to
// status codes (400, 404, 409, 500).
var (
	// ErrValidation: the caller sent something that conflicts with an
	// invariant (e.g. a second membership for the same user+project).
	// Surfaced to the client, never retried.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound: the addressed resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPrecondition: programmer error upstream (e.g. applying a
	// template to an unsaved project). Fatal, not user-recoverable.
	ErrPrecondition = errors.New("precondition failed")

	// ErrConsistency: an internal invariant broke (e.g. a vote counter
	// would go negative). Logged and surfaced as an internal error,
	// never silently corrected by clamping.
	ErrConsistency = errors.New("consistency violation")
)

// Validation wraps a message into an ErrValidation chain.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// NotFound wraps a message into an ErrNotFound chain.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}

// Precondition wraps a message into an ErrPrecondition chain.
func Precondition(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrPrecondition}, args...)...)
}

// Consistency wraps a message into an ErrConsistency chain.
func Consistency(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConsistency}, args...)...)
}
