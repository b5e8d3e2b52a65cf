package errors

import (
	"errors"
	"fmt"
	"time"
)

// ChatError is the structured error type for codechat.
// It carries everything needed to log the failure and to render the API
// error envelope without leaking internal causes to clients.
type ChatError struct {
	// Code is the wire error code (e.g., "VALIDATION_ERROR").
	Code string

	// Message is the human-readable, client-safe message.
	Message string

	// Category is the error category.
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error. It is logged, never sent to clients.
	Cause error

	// Retryable indicates the caller may resubmit.
	Retryable bool

	// RetryAfter is the earliest useful resubmission delay (rate limits).
	RetryAfter time.Duration

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *ChatError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *ChatError) Unwrap() error {
	return e.Cause
}

// Is matches by code so errors.Is(err, &ChatError{Code: ...}) works.
func (e *ChatError) Is(target error) bool {
	if t, ok := target.(*ChatError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *ChatError) WithDetail(key, value string) *ChatError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *ChatError) WithSuggestion(suggestion string) *ChatError {
	e.Suggestion = suggestion
	return e
}

// RetryAfterSeconds returns RetryAfter rounded up to whole seconds.
// Rate limit errors always report at least one second.
func (e *ChatError) RetryAfterSeconds() int {
	if e.RetryAfter <= 0 {
		if e.Code == CodeRateLimited {
			return 1
		}
		return 0
	}
	secs := int(e.RetryAfter / time.Second)
	if e.RetryAfter%time.Second != 0 {
		secs++
	}
	return secs
}

// New creates a new ChatError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *ChatError {
	return &ChatError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a ChatError from an existing error. If err already is a
// ChatError it is returned unchanged.
func Wrap(code string, err error) *ChatError {
	if err == nil {
		return nil
	}
	var ce *ChatError
	if errors.As(err, &ce) {
		return ce
	}
	return New(code, err.Error(), err)
}

// ValidationError creates a user-correctable input error.
func ValidationError(message string) *ChatError {
	return New(CodeValidation, message, nil)
}

// RateLimitError creates a rejection carrying a retry-after hint.
func RateLimitError(retryAfter time.Duration) *ChatError {
	e := New(CodeRateLimited, "Too many requests. Please try again later.", nil)
	e.RetryAfter = retryAfter
	return e
}

// SynthesisError creates an upstream answer generation failure.
func SynthesisError(cause error) *ChatError {
	return New(CodeSynthesis, "The answer service is temporarily unavailable. Please try again.", cause)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *ChatError {
	return New(CodeConfigInvalid, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *ChatError {
	return New(CodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var ce *ChatError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// GetCode extracts the error code from a ChatError.
// Returns empty string if err is not a ChatError.
func GetCode(err error) string {
	var ce *ChatError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// GetCategory extracts the category from a ChatError.
func GetCategory(err error) Category {
	var ce *ChatError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return ""
}
