package alert

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when an alert is missing or does not belong to the caller.
var ErrNotFound = errors.New("job alert not found")

// ErrInactive is returned when a committed run is requested for a deactivated alert.
var ErrInactive = errors.New("job alert is inactive")

// ErrBatchInProgress is returned when another batch for the same cadence holds the lock.
var ErrBatchInProgress = errors.New("a batch for this cadence is already running")

// FieldError is one rejected field of a criteria payload.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError wraps user-facing validation messages. Criteria that fail
// validation are never executed.
type ValidationError struct {
	Msg    string
	Fields []FieldError
}

func (e *ValidationError) Error() string { return e.Msg }

func newValidationError(fields []FieldError) *ValidationError {
	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		msgs = append(msgs, f.Message)
	}
	return &ValidationError{Msg: strings.Join(msgs, "; "), Fields: fields}
}

// CatalogUnavailableError marks a failed or timed-out catalog query.
type CatalogUnavailableError struct{ Err error }

func (e *CatalogUnavailableError) Error() string {
	return fmt.Sprintf("catalog unavailable: %v", e.Err)
}

func (e *CatalogUnavailableError) Unwrap() error { return e.Err }

// NotificationDispatchError marks a failed hand-off to the notification store.
// The match is not re-queued.
type NotificationDispatchError struct{ Err error }

func (e *NotificationDispatchError) Error() string {
	return fmt.Sprintf("notification dispatch failed: %v", e.Err)
}

func (e *NotificationDispatchError) Unwrap() error { return e.Err }
