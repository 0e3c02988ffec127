package exportq

import (
	"errors"
	"fmt"
)

var (
	// Store errors.
	ErrNoStore         = errors.New("exportq: no store configured")
	ErrStoreClosed     = errors.New("exportq: store closed")
	ErrMigrationFailed = errors.New("exportq: migration failed")

	// Submission errors.
	ErrInvalidInput = errors.New("exportq: invalid input")

	// Not found errors.
	ErrJobNotFound = errors.New("exportq: job not found")
	ErrDLQNotFound = errors.New("exportq: dlq entry not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("exportq: job already exists")
	ErrVersionConflict  = errors.New("exportq: job version conflict")

	// Lifecycle errors.
	ErrSuperseded        = errors.New("exportq: attempt token superseded")
	ErrInvalidTransition = errors.New("exportq: invalid state transition")

	// Queue errors.
	ErrQueueClosed     = errors.New("exportq: queue closed")
	ErrUnknownDelivery = errors.New("exportq: unknown delivery token")
)

// permanentError marks a processing failure that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// transientError marks a processing failure as explicitly retryable.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Permanent wraps err as a non-retryable processing failure. A job
// failing with a permanent error transitions to failed immediately,
// regardless of remaining retry budget.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Permanentf is shorthand for Permanent(fmt.Errorf(...)).
func Permanentf(format string, args ...any) error {
	return Permanent(fmt.Errorf(format, args...))
}

// Transient wraps err as an explicitly retryable processing failure.
// Unclassified errors are already treated as retryable; Transient exists
// so callers can be explicit at classification boundaries.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsRetryable reports whether a processing failure may be retried.
// Errors not marked with Permanent are retryable by default, the
// catch-all policy for unclassified faults.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *permanentError
	return !errors.As(err, &pe)
}
