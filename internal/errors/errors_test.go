package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatError_Unwrap_PreservesCause(t *testing.T) {
	// Given: an upstream failure
	cause := errors.New("connection refused")

	// When: wrapping it as a synthesis error
	err := SynthesisError(cause)

	// Then: the chain reaches the cause
	require.NotNil(t, err)
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.True(t, errors.Is(err, cause))
}

func TestChatError_Error_IncludesCodeAndCause(t *testing.T) {
	tests := []struct {
		name     string
		err      *ChatError
		expected string
	}{
		{
			name:     "without cause",
			err:      ValidationError("question too short"),
			expected: "[VALIDATION_ERROR] question too short",
		},
		{
			name:     "with cause",
			err:      InternalError("boom", errors.New("nil map")),
			expected: "[INTERNAL_ERROR] boom: nil map",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestChatError_Is_MatchesByCode(t *testing.T) {
	err := fmt.Errorf("ask: %w", RateLimitError(5*time.Second))

	assert.True(t, errors.Is(err, &ChatError{Code: CodeRateLimited}))
	assert.False(t, errors.Is(err, &ChatError{Code: CodeValidation}))
}

func TestNew_DerivesClassification(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{CodeValidation, CategoryValidation, SeverityInfo, false},
		{CodeInvalidInput, CategoryValidation, SeverityInfo, false},
		{CodeRateLimited, CategoryRateLimit, SeverityInfo, true},
		{CodeIndexEmpty, CategoryIndex, SeverityWarning, false},
		{CodeSynthesis, CategoryUpstream, SeverityError, true},
		{CodeConfigInvalid, CategoryConfig, SeverityFatal, false},
		{CodeInternal, CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestWrap_KeepsExistingChatError(t *testing.T) {
	original := ValidationError("bad")
	wrapped := Wrap(CodeInternal, fmt.Errorf("layer: %w", original))

	assert.Same(t, original, wrapped)
	assert.Nil(t, Wrap(CodeInternal, nil))
}

func TestRetryAfterSeconds_RoundsUp(t *testing.T) {
	assert.Equal(t, 2, RateLimitError(1500*time.Millisecond).RetryAfterSeconds())
	assert.Equal(t, 60, RateLimitError(60*time.Second).RetryAfterSeconds())
	assert.Equal(t, 1, RateLimitError(0).RetryAfterSeconds())
	assert.Equal(t, 0, ValidationError("x").RetryAfterSeconds())
}

func TestHelpers_OnForeignErrors(t *testing.T) {
	plain := errors.New("plain")

	assert.Equal(t, "", GetCode(plain))
	assert.Equal(t, Category(""), GetCategory(plain))
	assert.False(t, IsRetryable(plain))
	assert.True(t, IsRetryable(SynthesisError(plain)))
	assert.Equal(t, CodeSynthesis, GetCode(fmt.Errorf("x: %w", SynthesisError(plain))))
}

func TestWithDetail_Chains(t *testing.T) {
	err := ValidationError("bad").WithDetail("field", "question").WithSuggestion("ask a longer question")

	assert.Equal(t, "question", err.Details["field"])
	assert.Equal(t, "ask a longer question", err.Suggestion)
}
