package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Gather error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrConflict       ErrorCode = "CONFLICT"        // 409
	ErrCancelled      ErrorCode = "CANCELLED"       // 499
	ErrInternal       ErrorCode = "INTERNAL"        // 500
	ErrLedgerWrite    ErrorCode = "LEDGER_WRITE"    // 500, aborts a run
	ErrUpstream       ErrorCode = "UPSTREAM"        // 502
)

// GatherError represents a structured error with code, status, and details.
type GatherError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	cause error
}

// Error implements the error interface.
func (e *GatherError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *GatherError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *GatherError {
	return &GatherError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for when a todo cannot be found.
func NewNotFound(identifier string) *GatherError {
	return &GatherError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("todo not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewConflict creates a 409 error, e.g. a (source, source_id) collision.
func NewConflict(msg string) *GatherError {
	return &GatherError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewCancelled creates an error for an operation stopped by context cancellation.
func NewCancelled(operation string) *GatherError {
	return &GatherError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", operation),
		Details: map[string]any{"operation": operation},
	}
}

// NewLedgerWrite creates an error for a failed progress or audit write.
// Runs that hit this error stop, since resumability can no longer be guaranteed.
func NewLedgerWrite(path string, err error) *GatherError {
	return &GatherError{
		Code:    ErrLedgerWrite,
		Status:  500,
		Message: fmt.Sprintf("failed to persist %s: %v", path, err),
		Details: map[string]any{"path": path},
		cause:   err,
	}
}

// NewUpstream creates a 502 error for a failed call to an upstream source.
func NewUpstream(source string, err error) *GatherError {
	return &GatherError{
		Code:    ErrUpstream,
		Status:  502,
		Message: fmt.Sprintf("%s: %v", source, err),
		Details: map[string]any{"source": source},
		cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *GatherError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &GatherError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if an error (or anything it wraps) is a GatherError with the given code.
func Is(err error, code ErrorCode) bool {
	var gErr *GatherError
	if stderrors.As(err, &gErr) {
		return gErr.Code == code
	}
	return false
}
