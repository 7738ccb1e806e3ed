package model

import (
	"errors"
	"fmt"
)

// ErrorCode represents a structured error code.
type ErrorCode string

const (
	ErrValidation        ErrorCode = "VALIDATION_ERROR"
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrInternal          ErrorCode = "INTERNAL_ERROR"
	ErrResourceExhausted ErrorCode = "RESOURCE_EXHAUSTED"
	ErrInvalidJoin       ErrorCode = "INVALID_JOIN"
	ErrWouldDeadlock     ErrorCode = "DEADLOCK"
	ErrUnavailable       ErrorCode = "UNAVAILABLE"
)

// Join and create failures. Every scheduler error wraps one of these, so
// callers can test with errors.Is.
var (
	ErrJoinMain      = errors.New("cannot join the main thread")
	ErrJoinSelf      = errors.New("cannot join the calling thread")
	ErrUnknownThread = errors.New("no such thread")
	ErrAlreadyJoined = errors.New("thread already has a joiner")
	ErrDeadlock      = errors.New("join would block with no runnable thread")
	ErrTIDExhausted  = errors.New("thread identifier space exhausted")
)

// APIError is a structured error returned by the debug API.
type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

// ThreadError is returned by scheduler operations. Code classifies the
// failure; Err carries the underlying cause.
type ThreadError struct {
	Code ErrorCode
	Op   string
	TID  TID
	Err  error
}

func (e *ThreadError) Error() string {
	return fmt.Sprintf("%s thread %d: %s: %v", e.Op, e.TID, e.Code, e.Err)
}

func (e *ThreadError) Unwrap() error {
	return e.Err
}

// Is matches another *ThreadError with the same code, so a bare
// &ThreadError{Code: c} works as a class sentinel.
func (e *ThreadError) Is(target error) bool {
	var te *ThreadError
	if !errors.As(target, &te) {
		return false
	}
	return te.Code == e.Code && te.Err == nil
}

// InvalidTransitionError is returned when a thread state transition is invalid.
type InvalidTransitionError struct {
	TID  TID
	From ThreadState
	To   ThreadState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid thread state transition: %s → %s (thread %d)", e.From, e.To, e.TID)
}
