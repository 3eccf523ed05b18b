// Package errors provides the closed error taxonomy surfaced to MCP clients.
// Every error that crosses the tool boundary is a MemoryError with a symbolic
// type, a stable code, and enough context to act on.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorType is the symbolic kind of a MemoryError.
type ErrorType string

const (
	TypeStorageUnavailable ErrorType = "STORAGE_UNAVAILABLE"
	TypeValidation         ErrorType = "VALIDATION"
	TypeReadOnly           ErrorType = "READ_ONLY"
	TypeEmbedding          ErrorType = "EMBEDDING"
	TypeRetrieval          ErrorType = "RETRIEVAL"
	TypeConnection         ErrorType = "CONNECTION"
	TypeNotFound           ErrorType = "NOT_FOUND"
	TypeTimeout            ErrorType = "TIMEOUT"
	TypeCancelled          ErrorType = "CANCELLED"
)

// Stable error codes paired with the types above.
const (
	CodeStorageUnavailable = "E001"
	CodeValidation         = "E002"
	CodeReadOnly           = "E003"
	CodeEmbedding          = "E006"
	CodeRetrieval          = "E007"
	CodeConnection         = "E010"
	CodeNotFound           = "E012"
	CodeTimeout            = "E020"
	CodeCancelled          = "E021"
)

var typeCodes = map[ErrorType]string{
	TypeStorageUnavailable: CodeStorageUnavailable,
	TypeValidation:         CodeValidation,
	TypeReadOnly:           CodeReadOnly,
	TypeEmbedding:          CodeEmbedding,
	TypeRetrieval:          CodeRetrieval,
	TypeConnection:         CodeConnection,
	TypeNotFound:           CodeNotFound,
	TypeTimeout:            CodeTimeout,
	TypeCancelled:          CodeCancelled,
}

// MemoryError is the unified error carried across the tool boundary.
type MemoryError struct {
	Type     ErrorType              `json:"error_type"`
	Code     string                 `json:"error_code"`
	Message  string                 `json:"message"`
	Solution string                 `json:"solution,omitempty"`
	DocsURL  string                 `json:"docs_url,omitempty"`
	Context  map[string]interface{} `json:"context,omitempty"`
	cause    error
}

// Error implements the error interface.
func (e *MemoryError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is/As.
func (e *MemoryError) Unwrap() error {
	return e.cause
}

// Is matches on error type so callers can compare against sentinel kinds.
func (e *MemoryError) Is(target error) bool {
	var me *MemoryError
	if stderrors.As(target, &me) {
		return e.Type == me.Type
	}
	return false
}

// WithContext attaches one key/value pair to the error context.
func (e *MemoryError) WithContext(key string, value interface{}) *MemoryError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSolution attaches a human-actionable next step.
func (e *MemoryError) WithSolution(solution string) *MemoryError {
	e.Solution = solution
	return e
}

// WithDocsURL attaches a documentation pointer.
func (e *MemoryError) WithDocsURL(url string) *MemoryError {
	e.DocsURL = url
	return e
}

// ToJSON serializes the error payload for the tool response.
func (e *MemoryError) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// New creates a MemoryError of the given type wrapping an optional cause.
func New(errType ErrorType, message string, cause error) *MemoryError {
	code, ok := typeCodes[errType]
	if !ok {
		code = CodeRetrieval
		errType = TypeRetrieval
	}
	return &MemoryError{
		Type:    errType,
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// NewStorageUnavailable reports that the vector store cannot serve requests.
func NewStorageUnavailable(message string, cause error) *MemoryError {
	return New(TypeStorageUnavailable, message, cause).
		WithSolution("check that the vector store is running and reachable")
}

// NewValidation reports rejected input.
func NewValidation(message string) *MemoryError {
	return New(TypeValidation, message, nil)
}

// NewValidationField reports rejected input naming the offending field.
func NewValidationField(field, reason string) *MemoryError {
	return New(TypeValidation, fmt.Sprintf("invalid %s: %s", field, reason), nil).
		WithContext("field", field)
}

// NewReadOnly reports a mutation attempted while the server is read-only.
func NewReadOnly(operation string) *MemoryError {
	return New(TypeReadOnly, fmt.Sprintf("operation %s rejected: server is in read-only mode", operation), nil).
		WithContext("operation", operation).
		WithSolution("restart the server without READ_ONLY_MODE to allow writes")
}

// NewEmbedding reports an embedding generation failure.
func NewEmbedding(message string, cause error) *MemoryError {
	return New(TypeEmbedding, message, cause).
		WithSolution("verify the embedding endpoint and API key, or enable the local embedding backend")
}

// NewRetrieval reports a search pipeline failure.
func NewRetrieval(message string, cause error) *MemoryError {
	return New(TypeRetrieval, message, cause)
}

// NewConnection reports a transport-level failure reaching a backend.
func NewConnection(url string, cause error) *MemoryError {
	return New(TypeConnection, fmt.Sprintf("cannot connect to %s", url), cause).
		WithContext("url", url)
}

// NewNotFound reports a missing memory.
func NewNotFound(memoryID string) *MemoryError {
	return New(TypeNotFound, fmt.Sprintf("memory %s not found", memoryID), nil).
		WithContext("memory_id", memoryID)
}

// NewTimeout reports an operation that exceeded its deadline.
func NewTimeout(operation string, cause error) *MemoryError {
	return New(TypeTimeout, fmt.Sprintf("operation %s timed out", operation), cause).
		WithContext("operation", operation)
}

// NewCancelled reports an operation cancelled by the caller.
func NewCancelled(operation string, cause error) *MemoryError {
	return New(TypeCancelled, fmt.Sprintf("operation %s cancelled", operation), cause).
		WithContext("operation", operation)
}

// FromContextErr maps context termination to the taxonomy. Returns nil when
// err carries no context signal.
func FromContextErr(operation string, err error) *MemoryError {
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return NewTimeout(operation, err)
	case stderrors.Is(err, context.Canceled):
		return NewCancelled(operation, err)
	}
	return nil
}

// Wrap coerces any error into a MemoryError. Already-typed errors pass
// through untouched; context errors map to TIMEOUT/CANCELLED; everything else
// becomes a RETRIEVAL error, so internal error text never defines the type.
func Wrap(operation string, err error) *MemoryError {
	if err == nil {
		return nil
	}
	var me *MemoryError
	if stderrors.As(err, &me) {
		return me
	}
	if ctxErr := FromContextErr(operation, err); ctxErr != nil {
		return ctxErr
	}
	return NewRetrieval(fmt.Sprintf("operation %s failed", operation), err).
		WithContext("operation", operation)
}

// AsMemoryError extracts a MemoryError from an error chain.
func AsMemoryError(err error) (*MemoryError, bool) {
	var me *MemoryError
	if stderrors.As(err, &me) {
		return me, true
	}
	return nil, false
}

// IsType reports whether err is a MemoryError of the given type.
func IsType(err error, errType ErrorType) bool {
	me, ok := AsMemoryError(err)
	return ok && me.Type == errType
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return IsType(err, TypeValidation) }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return IsType(err, TypeNotFound) }

// IsStorageUnavailable reports whether err is a storage availability error.
func IsStorageUnavailable(err error) bool { return IsType(err, TypeStorageUnavailable) }

// IsReadOnly reports whether err is a read-only rejection.
func IsReadOnly(err error) bool { return IsType(err, TypeReadOnly) }
