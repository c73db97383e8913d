// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrNoMessagingConfig aborts a batch run: nothing can be dispatched.
var ErrNoMessagingConfig = errors.New("no active messaging configuration")

// ErrScheduleNotFound is returned when a session has no schedule row.
type ErrScheduleNotFound struct {
	SessionID string
}

func (e *ErrScheduleNotFound) Error() string {
	return fmt.Sprintf("follow-up schedule for session %q not found", e.SessionID)
}

func NewScheduleNotFound(sessionID string) error {
	return &ErrScheduleNotFound{SessionID: sessionID}
}

// ErrMaxAttemptsReached is returned when the backoff ladder is exhausted.
type ErrMaxAttemptsReached struct {
	SessionID string
}

func (e *ErrMaxAttemptsReached) Error() string {
	return fmt.Sprintf("max attempts reached for session %q", e.SessionID)
}

func NewMaxAttemptsReached(sessionID string) error {
	return &ErrMaxAttemptsReached{SessionID: sessionID}
}

// ErrInvalidContext reports a missing or malformed scheduling field.
type ErrInvalidContext struct {
	Field string
}

func (e *ErrInvalidContext) Error() string {
	return fmt.Sprintf("invalid follow-up context: %s is required", e.Field)
}

func NewInvalidContext(field string) error {
	return &ErrInvalidContext{Field: field}
}
