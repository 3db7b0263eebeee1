/**
 * Error Types for SyncGuard
 *
 * Defines structured error types with metadata so callers can tell caller
 * bugs (configuration, invalid state) apart from runtime conditions.
 *
 * Author: SyncGuard Team
 * Created: 2026-10-02
 */

package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType int

const (
	// ErrorTypeUnknown represents an unknown error
	ErrorTypeUnknown ErrorType = iota

	// ErrorTypeNetwork represents network-related errors (transient)
	ErrorTypeNetwork

	// ErrorTypePermission represents permission/authorization errors (permanent)
	ErrorTypePermission

	// ErrorTypeStorage represents storage-related errors (may be transient)
	ErrorTypeStorage

	// ErrorTypeCorruption represents data corruption errors
	ErrorTypeCorruption

	// ErrorTypeConfiguration represents malformed input or configuration.
	// These indicate a caller bug and are never retried.
	ErrorTypeConfiguration

	// ErrorTypeContext represents context cancellation or timeout
	ErrorTypeContext

	// ErrorTypeInvalidState represents an operation invoked in the wrong lifecycle state
	ErrorTypeInvalidState

	// ErrorTypeBackup represents backup catalog or snapshot errors
	ErrorTypeBackup
)

// String returns the string representation of ErrorType
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeNetwork:
		return "Network"
	case ErrorTypePermission:
		return "Permission"
	case ErrorTypeStorage:
		return "Storage"
	case ErrorTypeCorruption:
		return "Corruption"
	case ErrorTypeConfiguration:
		return "Configuration"
	case ErrorTypeContext:
		return "Context"
	case ErrorTypeInvalidState:
		return "InvalidState"
	case ErrorTypeBackup:
		return "Backup"
	default:
		return "Unknown"
	}
}

// IsRetryable returns whether the error type is retryable
func (et ErrorType) IsRetryable() bool {
	switch et {
	case ErrorTypeNetwork, ErrorTypeStorage:
		return true
	default:
		return false
	}
}

// Error represents a structured error with metadata
type Error struct {
	// Type categorizes the error
	Type ErrorType

	// Op represents the operation being performed
	Op string

	// Path represents the resource the operation touched (table, backup id, file)
	Path string

	// Err is the underlying error
	Err error

	// Code is the error code (e.g., HTTP status code)
	Code int

	// Context contains additional context information
	Context map[string]interface{}

	// Timestamp when the error occurred
	Timestamp time.Time
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s [%s] %v", e.Type, e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s %v", e.Type, e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns whether the error is retryable
func (e *Error) IsRetryable() bool {
	return e.Type.IsRetryable()
}

// New creates a new Error
func New(errorType ErrorType, op, path string, err error) *Error {
	return &Error{
		Type:      errorType,
		Op:        op,
		Path:      path,
		Err:       err,
		Timestamp: time.Now(),
		Context:   make(map[string]interface{}),
	}
}

// WithCode adds an error code
func (e *Error) WithCode(code int) *Error {
	e.Code = code
	return e
}

// WithContext adds context information
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Configuration creates a ConfigurationError for malformed input.
func Configuration(op, format string, args ...interface{}) *Error {
	return New(ErrorTypeConfiguration, op, "", fmt.Errorf(format, args...))
}

// InvalidState creates an InvalidStateError.
func InvalidState(op, format string, args ...interface{}) *Error {
	return New(ErrorTypeInvalidState, op, "", fmt.Errorf(format, args...))
}

// Cancelled wraps a context error raised while op was in progress.
func Cancelled(op string, err error) *Error {
	return New(ErrorTypeContext, op, "", err)
}

// IsType reports whether err (or anything it wraps) is an *Error of the given type.
func IsType(err error, errorType ErrorType) bool {
	var e *Error
	if !AsError(err, &e) {
		return false
	}
	return e.Type == errorType
}

// IsContextError checks if the error is due to context cancellation
func IsContextError(err error) bool {
	if err == nil {
		return false
	}
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}

// GetErrorType attempts to determine the error type from a generic error
// GetErrorType returns the type of the first *Error in the chain, Context
// for bare context errors, and Unknown otherwise.
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	var e *Error
	if AsError(err, &e) {
		return e.Type
	}

	if IsContextError(err) {
		return ErrorTypeContext
	}

	return ErrorTypeUnknown
}
