// Package mcp exposes the chat engine as a Model Context Protocol server so
// editors and agents can ask questions about the indexed codebase.
package mcp

import (
	"context"
	"errors"
	"fmt"

	cerrors "github.com/Aman-CERP/codechat/internal/errors"
)

// MCP error codes. The -3200x range is application defined.
const (
	// ErrCodeIndexEmpty indicates nothing has been indexed yet.
	ErrCodeIndexEmpty = -32001

	// ErrCodeSynthesisUnavailable indicates the answer backend failed.
	ErrCodeSynthesisUnavailable = -32002

	// ErrCodeTimeout indicates the request timed out or was cancelled.
	ErrCodeTimeout = -32003

	// ErrCodeFileNotFound indicates a file no longer exists on disk.
	ErrCodeFileNotFound = -32004

	// ErrCodeFileTooLarge indicates a file exceeds MaxResourceSize.
	ErrCodeFileTooLarge = -32005

	// ErrCodeRateLimited indicates the caller exceeded its request budget.
	ErrCodeRateLimited = -32006

	// Standard JSON-RPC error codes.
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Sentinel errors for resource handling.
var (
	// ErrFileTooLarge indicates a file is too large to serve.
	ErrFileTooLarge = errors.New("file too large")

	// ErrResourceNotFound indicates the requested resource does not exist.
	ErrResourceNotFound = errors.New("resource not found")
)

// MCPError is an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors. Causes are never copied
// into the message.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var ce *cerrors.ChatError
	if errors.As(err, &ce) {
		return mapChatError(ce)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was cancelled."}
	case errors.Is(err, ErrFileTooLarge):
		return &MCPError{Code: ErrCodeFileTooLarge, Message: "File is too large to serve."}
	case errors.Is(err, ErrResourceNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "Resource not found."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Tool '%s' not found.", name)}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Resource '%s' not found.", uri)}
}

func mapChatError(ce *cerrors.ChatError) *MCPError {
	message := ce.Message
	if ce.Suggestion != "" {
		message = fmt.Sprintf("%s %s", ce.Message, ce.Suggestion)
	}

	switch ce.Code {
	case cerrors.CodeValidation, cerrors.CodeInvalidInput:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case cerrors.CodeRateLimited:
		return &MCPError{
			Code:    ErrCodeRateLimited,
			Message: fmt.Sprintf("%s Retry after %ds.", message, ce.RetryAfterSeconds()),
		}
	case cerrors.CodeIndexEmpty, cerrors.CodeIndexFailed:
		return &MCPError{Code: ErrCodeIndexEmpty, Message: message}
	case cerrors.CodeSynthesis:
		return &MCPError{Code: ErrCodeSynthesisUnavailable, Message: message}
	case cerrors.CodeRequestCancelled:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
