package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType defines different categories of errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "VALIDATION"
	ErrorTypeNotFound   ErrorType = "NOT_FOUND"
	ErrorTypeConflict   ErrorType = "CONFLICT"
	ErrorTypeNotReady   ErrorType = "NOT_READY"
	ErrorTypeTimeout    ErrorType = "TIMEOUT"
	ErrorTypeUpstream   ErrorType = "UPSTREAM"
	ErrorTypeInternal   ErrorType = "INTERNAL"
)

// AppError is the custom error type for the application
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work
func (e *AppError) Unwrap() error {
	return e.Err
}

// Constructor functions for different error types

// NewValidation creates a validation error
func NewValidation(message string) error {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// NewNotFound creates a not found error
func NewNotFound(message string) error {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewConflict creates a conflict error for operations rejected because of
// current state, such as starting a job while one is already running
func NewConflict(message string) error {
	return &AppError{
		Type:    ErrorTypeConflict,
		Message: message,
	}
}

// NewNotReady creates an error for operations that require loaded
// artifacts when none are available yet
func NewNotReady(message string) error {
	return &AppError{
		Type:    ErrorTypeNotReady,
		Message: message,
	}
}

// NewTimeout creates an error for operations that exceeded their deadline
func NewTimeout(message string) error {
	return &AppError{
		Type:    ErrorTypeTimeout,
		Message: message,
	}
}

// NewUpstream creates an error for failures in external collaborators,
// such as the inference server or the indexing subprocess. The message is
// preserved verbatim for the client.
func NewUpstream(message string, err error) error {
	return &AppError{
		Type:    ErrorTypeUpstream,
		Message: message,
		Err:     err,
	}
}

// NewInternal creates an internal error
func NewInternal(message string, err error) error {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	// If it's already an AppError, preserve the type
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Type:    appErr.Type,
			Message: fmt.Sprintf("%s: %s", message, appErr.Message),
			Err:     appErr.Err,
		}
	}

	// Otherwise, create an internal error
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// KindOf reports the ErrorType of err, or ErrorTypeInternal for errors
// that did not come from this package
func KindOf(err error) ErrorType {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// DetailOf returns the client-facing message of err. Internal errors
// collapse to a generic message so wrapped causes never leak.
func DetailOf(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		if appErr.Type == ErrorTypeInternal {
			return "internal server error"
		}
		return appErr.Message
	}
	return "internal server error"
}

// Type checking functions

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return KindOf(err) == ErrorTypeValidation
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return KindOf(err) == ErrorTypeNotFound
}

// IsConflict checks if an error is a conflict error
func IsConflict(err error) bool {
	return KindOf(err) == ErrorTypeConflict
}

// IsNotReady checks if an error is a not-ready error
func IsNotReady(err error) bool {
	return KindOf(err) == ErrorTypeNotReady
}

// IsTimeout checks if an error is a timeout error
func IsTimeout(err error) bool {
	return KindOf(err) == ErrorTypeTimeout
}

// IsUpstream checks if an error is an upstream error
func IsUpstream(err error) bool {
	return KindOf(err) == ErrorTypeUpstream
}

// IsInternal checks if an error is an internal error
func IsInternal(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Type == ErrorTypeInternal
}
