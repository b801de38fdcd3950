package errors

import (
	"fmt"
)

// TesseraError is the structured error type for Tessera.
// It provides rich context for error handling, logging, and user presentation.
type TesseraError struct {
	// Code is the unique error code (e.g., "ERR_203_CONTENT_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Data, Timeout, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried by the caller.
	Retryable bool
}

// Error implements the error interface.
func (e *TesseraError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *TesseraError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with TesseraError.
func (e *TesseraError) Is(target error) bool {
	if t, ok := target.(*TesseraError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *TesseraError) WithDetail(key, value string) *TesseraError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new TesseraError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *TesseraError {
	return &TesseraError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Newf creates a new TesseraError with a formatted message and no cause.
func Newf(code string, format string, args ...any) *TesseraError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates a TesseraError from an existing error.
// The error's message becomes the TesseraError message.
func Wrap(code string, err error) *TesseraError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// InvalidQuery creates a query validation error.
// These are rejected before planning and surfaced to the caller.
func InvalidQuery(message string) *TesseraError {
	return New(ErrCodeInvalidQuery, message, nil)
}

// PlanningError creates a configuration validation error.
// Fatal at startup, never raised per query.
func PlanningError(message string) *TesseraError {
	return New(ErrCodePlanningInvalid, message, nil)
}

// NotFound creates a content not-found error.
func NotFound(contentID string) *TesseraError {
	return Newf(ErrCodeContentNotFound, "content %q not found", contentID)
}

// DataUnavailable creates an error indicating that no candidate lookup
// succeeded, distinguishing total store failure from an empty result.
func DataUnavailable(message string, cause error) *TesseraError {
	return New(ErrCodeDataUnavailable, message, cause)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if te, ok := err.(*TesseraError); ok {
		return te.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if te, ok := err.(*TesseraError); ok {
		return te.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a TesseraError.
// Returns empty string if not a TesseraError.
func GetCode(err error) string {
	if te, ok := err.(*TesseraError); ok {
		return te.Code
	}
	return ""
}

// GetCategory extracts the category from a TesseraError.
// Returns empty string if not a TesseraError.
func GetCategory(err error) Category {
	if te, ok := err.(*TesseraError); ok {
		return te.Category
	}
	return ""
}
