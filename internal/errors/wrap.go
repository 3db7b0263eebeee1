/**
 * Error Wrapping Utilities for SyncGuard
 *
 * Provides convenience functions for error wrapping and creation
 *
 * Author: SyncGuard Team
 * Created: 2026-10-02
 */

package errors

import (
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Errorf creates a formatted error.
func Errorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

// WrapTyped wraps an error with a specific error type.
func WrapTyped(errorType ErrorType, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(errorType, op, "", err)
}

// IsTemporary checks if an error is temporary/retryable.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}

	var e *Error
	if AsError(err, &e) {
		return e.IsRetryable()
	}

	return false
}

// AsError checks if an error is of type *Error and assigns it.
func AsError(err error, target **Error) bool {
	if err == nil {
		return false
	}
	return errors.As(err, target)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
