package errors

import (
	stderrors "errors"
	"fmt"
)

// RagError is returned by every public retrieval-service operation. Category,
// Severity and Retryable are derived from Code by New.
type RagError struct {
	Code       string // e.g. ERR_404_QUERY_EMPTY
	Message    string
	Category   Category
	Severity   Severity
	Details    map[string]string
	Cause      error
	Retryable  bool
	Suggestion string // shown to CLI users as "Hint:"
}

func (e *RagError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *RagError) Unwrap() error { return e.Cause }

// Is matches another *RagError by code, so errors.Is works against the
// sentinel-style values built with New(code, "", nil).
func (e *RagError) Is(target error) bool {
	if t, ok := target.(*RagError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail attaches context such as a path or a count.
func (e *RagError) WithDetail(key, value string) *RagError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion sets what the user should do next.
func (e *RagError) WithSuggestion(suggestion string) *RagError {
	e.Suggestion = suggestion
	return e
}

// New builds a RagError, classifying it by code.
func New(code string, message string, cause error) *RagError {
	c := classify(code)
	return &RagError{
		Code:      code,
		Message:   message,
		Category:  c.category,
		Severity:  c.severity,
		Cause:     cause,
		Retryable: c.retryable,
	}
}

// Wrap returns the *RagError already in err's chain, or a new one with code
// whose message is err's text.
func Wrap(code string, err error) *RagError {
	if err == nil {
		return nil
	}
	if re := find(err); re != nil {
		return re
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *RagError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// PersistenceError creates a disk read/write error.
func PersistenceError(message string, cause error) *RagError {
	return New(ErrCodePersistFailed, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *RagError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *RagError {
	return New(ErrCodeInternal, message, cause)
}

// ConsistencyWarning reports an index/document-store size mismatch.
func ConsistencyWarning(indexCount, docCount int) *RagError {
	return New(ErrCodeIndexMismatch, "vector index and document store are out of sync", nil).
		WithDetail("index_count", fmt.Sprint(indexCount)).
		WithDetail("doc_count", fmt.Sprint(docCount)).
		WithSuggestion("set storage.repair_on_mismatch: true or run 'amanrag clear' and re-add documents")
}

// find returns the first *RagError in err's chain, or nil.
func find(err error) *RagError {
	var re *RagError
	if stderrors.As(err, &re) {
		return re
	}
	return nil
}

// IsRetryable is false for errors outside the RagError family.
func IsRetryable(err error) bool {
	re := find(err)
	return re != nil && re.Retryable
}

func IsFatal(err error) bool {
	re := find(err)
	return re != nil && re.Severity == SeverityFatal
}

// GetCode returns "" when err carries no RagError.
func GetCode(err error) string {
	if re := find(err); re != nil {
		return re.Code
	}
	return ""
}

func GetCategory(err error) Category {
	if re := find(err); re != nil {
		return re.Category
	}
	return ""
}
