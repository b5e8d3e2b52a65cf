package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// StatusClientClosedRequest is the non-standard status used when the caller
// aborted the request before an answer was produced.
const StatusClientClosedRequest = 499

// APIError is the wire envelope returned for every failed request.
type APIError struct {
	Success   bool         `json:"success"`
	Error     APIErrorBody `json:"error"`
	Timestamp time.Time    `json:"timestamp"`
}

// APIErrorBody carries the machine-readable code and client-safe message.
type APIErrorBody struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter *int   `json:"retryAfter,omitempty"`
}

// NewAPIError converts any error into the wire envelope. Errors that are
// not ChatErrors become INTERNAL_ERROR with a generic message.
func NewAPIError(err error, now time.Time) APIError {
	var ce *ChatError
	if !errors.As(err, &ce) {
		ce = InternalError("An unexpected error occurred.", err)
	}

	body := APIErrorBody{
		Code:    ce.Code,
		Message: ce.Message,
	}
	if ce.Code == CodeRateLimited || ce.RetryAfter > 0 {
		secs := ce.RetryAfterSeconds()
		body.RetryAfter = &secs
	}

	return APIError{
		Success:   false,
		Error:     body,
		Timestamp: now.UTC(),
	}
}

// HTTPStatus maps an error to the HTTP status code for the API.
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case CodeValidation, CodeInvalidInput:
		return http.StatusBadRequest
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeRequestCancelled:
		return StatusClientClosedRequest
	case CodeSynthesis:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FormatForCLI formats an error for CLI output.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	var ce *ChatError
	if !errors.As(err, &ce) {
		ce = Wrap(CodeInternal, err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", ce.Message))
	if ce.RetryAfter > 0 {
		sb.WriteString(fmt.Sprintf("  Retry after: %ds\n", ce.RetryAfterSeconds()))
	}
	if ce.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", ce.Suggestion))
	}
	sb.WriteString(fmt.Sprintf("  Code: %s\n", ce.Code))

	return sb.String()
}

// FormatForLog formats an error for structured logging.
// Returns key-value pairs suitable for slog attributes.
func FormatForLog(err error) map[string]any {
	if err == nil {
		return nil
	}

	var ce *ChatError
	if !errors.As(err, &ce) {
		return map[string]any{
			"error": err.Error(),
		}
	}

	result := map[string]any{
		"error_code": ce.Code,
		"message":    ce.Message,
		"category":   string(ce.Category),
		"severity":   string(ce.Severity),
		"retryable":  ce.Retryable,
	}
	if ce.Cause != nil {
		result["cause"] = ce.Cause.Error()
	}
	if ce.RetryAfter > 0 {
		result["retry_after_s"] = ce.RetryAfterSeconds()
	}
	for k, v := range ce.Details {
		result["detail_"+k] = v
	}

	return result
}

// LogAttrs flattens FormatForLog into slog's variadic key-value form.
func LogAttrs(err error) []any {
	fields := FormatForLog(err)
	attrs := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	return attrs
}
