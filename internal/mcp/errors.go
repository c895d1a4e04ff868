// Package mcp serves the knowledge base as Model Context Protocol tools.
package mcp

import (
	"context"
	"errors"
	"fmt"

	ragerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// Custom MCP error codes.
const (
	// ErrCodeUnavailable means no knowledge base is wired.
	ErrCodeUnavailable = -32001
	// ErrCodeEmbeddingFailed means the embedder could not produce a vector.
	ErrCodeEmbeddingFailed = -32002
	// ErrCodeTimeout means the request timed out or was cancelled.
	ErrCodeTimeout = -32003
	// ErrCodeStorage means the knowledge base files could not be read or written.
	ErrCodeStorage = -32004

	// Standard JSON-RPC error codes.
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ErrUnavailable is returned by every tool when the server has no
// knowledge base.
var ErrUnavailable = errors.New("knowledge base unavailable")

// MCPError is an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts service errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}
	var re *ragerrors.RagError
	if errors.As(err, &re) {
		return mapRagError(re)
	}

	switch {
	case errors.Is(err, ErrUnavailable):
		return &MCPError{Code: ErrCodeUnavailable, Message: "RAG System is not available."}
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an invalid-parameters error.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for an unknown tool.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Tool '%s' not found.", name)}
}

// NewResourceNotFoundError creates an error for an unknown resource.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Resource '%s' not found.", uri)}
}

func mapRagError(re *ragerrors.RagError) *MCPError {
	message := re.Message
	if re.Suggestion != "" {
		message = fmt.Sprintf("%s %s", re.Message, re.Suggestion)
	}

	switch re.Category {
	case ragerrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case ragerrors.CategoryNetwork:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	case ragerrors.CategoryPersistence:
		return &MCPError{Code: ErrCodeStorage, Message: message}
	}

	if re.Code == ragerrors.ErrCodeEmbeddingFailed {
		return &MCPError{Code: ErrCodeEmbeddingFailed, Message: message}
	}
	return &MCPError{Code: ErrCodeInternalError, Message: message}
}
