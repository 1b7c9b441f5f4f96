package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the pipeline.
type ErrorCode string

const (
	// ErrCodeInvalidInput marks bad caller input. Never retried.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeNotFound marks a lookup of an unknown id.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeTransientAgent marks a network/timeout-class agent failure,
	// retried up to the recovery policy's attempt limit.
	ErrCodeTransientAgent ErrorCode = "TRANSIENT_AGENT"
	// ErrCodePermanentAgent marks a validation/logic-class agent failure.
	// Never retried.
	ErrCodePermanentAgent ErrorCode = "PERMANENT_AGENT"
	// ErrCodeCircuitOpen marks a fast-fail while a breaker protects a
	// degraded dependency.
	ErrCodeCircuitOpen ErrorCode = "CIRCUIT_OPEN"
	// ErrCodeApprovalTimeout marks a human decision that did not arrive
	// in time.
	ErrCodeApprovalTimeout ErrorCode = "APPROVAL_TIMEOUT"
	// ErrCodeApprovalRejected marks an explicit human rejection. Terminal
	// for the workflow, but not a system fault.
	ErrCodeApprovalRejected ErrorCode = "APPROVAL_REJECTED"
	// ErrCodeWorkflowBusy marks a concurrent advance attempt on a
	// workflow that already has one in flight.
	ErrCodeWorkflowBusy ErrorCode = "WORKFLOW_BUSY"
	// ErrCodeInternal marks everything that does not classify.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Error is a structured error with code, message, and retryability.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// NewInvalidInputError reports bad caller input.
func NewInvalidInputError(message string) *Error {
	return NewError(ErrCodeInvalidInput, message)
}

// NewNotFoundError reports an unknown id.
func NewNotFoundError(kind, id string) *Error {
	return NewError(ErrCodeNotFound, fmt.Sprintf("%s not found: %s", kind, id))
}

// NewTransientAgentError reports a retryable agent failure.
func NewTransientAgentError(message string, cause error) *Error {
	return NewError(ErrCodeTransientAgent, message).WithCause(cause).WithRetryable(true)
}

// NewPermanentAgentError reports a non-retryable agent failure.
func NewPermanentAgentError(message string, cause error) *Error {
	return NewError(ErrCodePermanentAgent, message).WithCause(cause)
}

// NewWorkflowBusyError reports a rejected concurrent advance.
func NewWorkflowBusyError(workflowID string) *Error {
	return NewError(ErrCodeWorkflowBusy, fmt.Sprintf("advance already in flight for workflow %s", workflowID))
}

// IsRetryable checks if an error is marked retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error, or "" when the
// error carries none.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
