// Package errors provides custom error types and error handling utilities.
package errors

import (
	"fmt"
)

// Error codes.
const (
	// CodeInvariant marks a construction-time invariant violation: an
	// invalid batch/segment size, a multi-rune progress symbol, a newline
	// embedded in an item. Fails fast, no child is ever spawned.
	CodeInvariant = "INVARIANT_VIOLATION"

	// CodeItemFailure marks a per-item action failure intercepted by the
	// worker loop and handed to the error handler. Never escapes the
	// worker loop.
	CodeItemFailure = "ITEM_FAILURE"

	// CodeChildSpawn marks a failure to launch a child process.
	CodeChildSpawn = "CHILD_SPAWN_FAILURE"

	// CodeHook marks a failure raised by a per-batch hook (runBeforeBatch,
	// runAfterBatch); the worker loop wraps the hook's error, reachable
	// through Unwrap, and returns it out of execute(). Errors from
	// runBeforeFirstCommand and runAfterLastCommand are returned as they
	// are, without this code.
	CodeHook = "HOOK_FAILURE"
)

// AppError represents an engine error with a code, message and optional
// wrapped cause.
type AppError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// ExitContribution maps an AppError's code to the non-negative exit-code
// contribution a default error handler (§4.3) should report for it. Callers
// supplying their own ErrorHandler are free to ignore this mapping.
func (e *AppError) ExitContribution() int {
	switch e.Code {
	case CodeItemFailure:
		return 1
	case CodeChildSpawn:
		return 2
	default:
		return 1
	}
}

// New creates a new AppError.
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with an AppError.
func Wrap(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails adds details to the error.
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// WithDetail adds a single detail to the error.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Convenience constructors.

// InvariantError creates an invariant-violation error (§4.7).
func InvariantError(message string) *AppError {
	return New(CodeInvariant, message)
}

// ItemFailure wraps a per-item action failure for the error handler.
func ItemFailure(item string, err error) *AppError {
	return Wrap(CodeItemFailure, "item action failed", err).WithDetail("item", item)
}

// ChildSpawnError wraps a failure to launch a child process.
func ChildSpawnError(err error) *AppError {
	return Wrap(CodeChildSpawn, "failed to spawn child process", err)
}

// HookError wraps a lifecycle hook failure.
func HookError(hook string, err error) *AppError {
	return Wrap(CodeHook, fmt.Sprintf("%s hook failed", hook), err)
}

// IsInvariant reports whether err is an invariant-violation AppError.
func IsInvariant(err error) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Code == CodeInvariant
}

// IsItemFailure reports whether err is an item-failure AppError.
func IsItemFailure(err error) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Code == CodeItemFailure
}
