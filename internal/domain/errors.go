package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches another DomainError with the same code and message, so a
// sentinel still matches after a cause has been attached.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// Wrap returns a copy of the error carrying err as its cause.
func (e *DomainError) Wrap(err error) *DomainError {
	return NewDomainErrorWithCause(e.Code, e.Message, err)
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ErrorCode returns the code of the first DomainError in err's chain, or "".
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Domain error codes
const (
	ErrCodeValidation            = "VALIDATION_ERROR"
	ErrCodeInvalidFilter         = "INVALID_FILTER"
	ErrCodeEmptyAfterChunking    = "EMPTY_AFTER_CHUNKING"
	ErrCodeEmbeddingUnavailable  = "EMBEDDING_UNAVAILABLE"
	ErrCodeStoreUnavailable      = "STORE_UNAVAILABLE"
	ErrCodeDuplicateDocument     = "DUPLICATE_DOCUMENT"
	ErrCodeEnrichmentUnavailable = "ENRICHMENT_UNAVAILABLE"
	ErrCodeTimeParseFailure      = "TIME_PARSE_FAILURE"
)

// Validation errors
var (
	ErrMissingField  = NewDomainError(ErrCodeValidation, "missing required field")
	ErrInvalidRange  = NewDomainError(ErrCodeValidation, "start time is after end time")
	ErrInvalidFilter = NewDomainError(ErrCodeInvalidFilter, "invalid filter")

	ErrInvalidInterval = NewDomainError(ErrCodeValidation, "polling interval must be positive")
)

// Ingest errors
var (
	ErrEmptyAfterChunking = NewDomainError(ErrCodeEmptyAfterChunking, "document produced no chunks")
	ErrDuplicateDocument  = NewDomainError(ErrCodeDuplicateDocument, "document already stored")
)

// Collaborator failures
var (
	ErrEmbeddingUnavailable  = NewDomainError(ErrCodeEmbeddingUnavailable, "embedding client unavailable")
	ErrStoreUnavailable      = NewDomainError(ErrCodeStoreUnavailable, "vector store unavailable")
	ErrEnrichmentUnavailable = NewDomainError(ErrCodeEnrichmentUnavailable, "keyword extractor unavailable")
	ErrTimeParse             = NewDomainError(ErrCodeTimeParseFailure, "unparseable timestamp")
)

// MissingField reports which required field was empty.
func MissingField(name string) *DomainError {
	return ErrMissingField.Wrap(fmt.Errorf("%s is required", name))
}

// InvalidFilter reports a malformed filter term.
func InvalidFilter(format string, args ...any) *DomainError {
	return ErrInvalidFilter.Wrap(fmt.Errorf(format, args...))
}

// IsCollaboratorFailure reports whether err came from the embedding client
// or the vector store rather than from the input. Such calls may succeed
// when retried.
func IsCollaboratorFailure(err error) bool {
	return errors.Is(err, ErrEmbeddingUnavailable) || errors.Is(err, ErrStoreUnavailable)
}
