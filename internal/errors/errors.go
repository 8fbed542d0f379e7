// Package errors provides error code definitions shared across the sync engine.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode identifies a class of failure. Codes are stable strings so the
// host UI can switch on them without parsing messages.
type ErrorCode string

const (
	// General errors
	ErrInternal ErrorCode = "INTERNAL_ERROR"
	ErrInvalid  ErrorCode = "INVALID_INPUT"
	ErrNotFound ErrorCode = "NOT_FOUND"

	// Storage errors
	ErrStorage   ErrorCode = "STORAGE_ERROR"
	ErrMigration ErrorCode = "MIGRATION_FAILED"

	// Remote errors
	ErrRemoteUnreachable ErrorCode = "REMOTE_UNREACHABLE"
	ErrRemoteRejected    ErrorCode = "REMOTE_REJECTED"
	ErrRemoteAuthFailed  ErrorCode = "REMOTE_AUTH_FAILED"

	// Sync errors
	ErrSyncOffline    ErrorCode = "SYNC_OFFLINE"
	ErrSyncFailed     ErrorCode = "SYNC_FAILED"
	ErrSyncInProgress ErrorCode = "SYNC_IN_PROGRESS"

	// Config errors
	ErrConfigInvalid ErrorCode = "CONFIG_INVALID"
)

// AppError is an error with a stable code and an optional wrapped cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the code of err, or ErrInternal when err carries none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}
