// Package errors provides structured error handling for codechat.
//
// Codes are the machine-readable strings returned to API clients in the
// error envelope, so they are stable and never renumbered.
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryValidation indicates user-correctable input errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryRateLimit indicates admission control rejections.
	CategoryRateLimit Category = "RATE_LIMIT"
	// CategoryIndex indicates index build or content problems.
	CategoryIndex Category = "INDEX"
	// CategoryUpstream indicates failures of the answer synthesizer.
	CategoryUpstream Category = "UPSTREAM"
	// CategoryConfig indicates configuration errors.
	CategoryConfig Category = "CONFIG"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes. These values are part of the wire contract.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeInvalidInput     = "INVALID_INPUT"
	CodeRateLimited      = "RATE_LIMIT_EXCEEDED"
	CodeIndexEmpty       = "INDEX_EMPTY"
	CodeIndexFailed      = "INDEX_FAILED"
	CodeSynthesis        = "SYNTHESIS_ERROR"
	CodeRequestCancelled = "REQUEST_CANCELLED"
	CodeConfigInvalid    = "CONFIG_INVALID"
	CodeInternal         = "INTERNAL_ERROR"
)

// categoryFromCode maps a code to its category.
func categoryFromCode(code string) Category {
	switch code {
	case CodeValidation, CodeInvalidInput:
		return CategoryValidation
	case CodeRateLimited:
		return CategoryRateLimit
	case CodeIndexEmpty, CodeIndexFailed:
		return CategoryIndex
	case CodeSynthesis, CodeRequestCancelled:
		return CategoryUpstream
	case CodeConfigInvalid:
		return CategoryConfig
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case CodeConfigInvalid:
		return SeverityFatal
	case CodeIndexEmpty:
		return SeverityWarning
	case CodeValidation, CodeInvalidInput, CodeRateLimited, CodeRequestCancelled:
		return SeverityInfo
	default:
		return SeverityError
	}
}

// isRetryableCode reports whether the caller may resubmit the same request.
// Nothing retries automatically; this only informs clients.
func isRetryableCode(code string) bool {
	switch code {
	case CodeRateLimited, CodeSynthesis, CodeRequestCancelled:
		return true
	default:
		return false
	}
}
