package services

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownSender indicates an inbound message from a number with no client
	ErrUnknownSender = errors.New("unknown sender")
	// ErrRetriesExhausted indicates a transient failure outlasted the retry budget
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrRelationshipNotFound indicates the relationship was not found or is not the caller's
	ErrRelationshipNotFound = errors.New("relationship not found")
	// ErrMessageNotFound indicates the message was not found
	ErrMessageNotFound = errors.New("message not found")
	// ErrClientNotFound indicates the client was not found
	ErrClientNotFound = errors.New("client not found")
	// ErrDepartmentNotFound indicates the department was not found
	ErrDepartmentNotFound = errors.New("department not found")
	// ErrNotScheduled indicates the message was already sent
	ErrNotScheduled = errors.New("message is not scheduled")
)

// ValidationError is a field-level problem with user input
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ConflictError reports a lifecycle operation rolled back because its
// writes failed validation against concurrent state
type ConflictError struct {
	Op  string
	Err error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %v", e.Op, e.Err)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// ImportValidationError is a malformed court date row. It aborts the whole import.
type ImportValidationError struct {
	Row   int
	Field string
	Value string
	Err   error
}

func (e *ImportValidationError) Error() string {
	return fmt.Sprintf("row %d: invalid %s %q: %v", e.Row, e.Field, e.Value, e.Err)
}

func (e *ImportValidationError) Unwrap() error {
	return e.Err
}
