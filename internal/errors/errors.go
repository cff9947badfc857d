package errors

import (
	stderrors "errors"
	"fmt"
)

// Error is the structured error type for the knowledge-base engine. It
// carries enough context for diagnostics and for the propagation
// policies in use (fall back to heuristics, abort with partial
// results, log and continue) without callers string-matching
// messages.
type Error struct {
	// Code is the unique error code (e.g. CodeDocumentNotFound).
	Code string

	// Message is the human-readable detail.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error, if any.
	Cause error

	// Retryable hints that an external transport may back off and retry.
	// The core itself never retries.
	Retryable bool

	Suggestion string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is enables errors.Is(err, &Error{Code: ...}) comparisons by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// New creates an Error; category, severity, and retryability are derived
// from the code.
func New(code, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap builds an Error from an existing error, reusing its message.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

func IOError(message string, cause error) *Error       { return New(CodeIO, message, cause) }
func StorageError(message string, cause error) *Error  { return New(CodeStorage, message, cause) }
func ParseError(message string, cause error) *Error    { return New(CodeParse, message, cause) }
func InvalidInput(message string, cause error) *Error  { return New(CodeInvalidInput, message, cause) }
func DocumentNotFound(message string) *Error           { return New(CodeDocumentNotFound, message, nil) }
func ModelNotFound(message string) *Error              { return New(CodeModelNotFound, message, nil) }
func LLMError(message string, cause error) *Error      { return New(CodeLLM, message, cause) }
func HTTPError(message string, cause error) *Error     { return New(CodeHTTP, message, cause) }
func ExternalError(message string, cause error) *Error { return New(CodeExternal, message, cause) }
func DatabaseError(message string, cause error) *Error { return New(CodeDatabase, message, cause) }

func DimensionMismatch(expected, got int) *Error {
	return New(CodeDimensionMismatch,
		fmt.Sprintf("dimension mismatch: expected %d, got %d", expected, got), nil).
		WithDetail("expected", fmt.Sprintf("%d", expected)).
		WithDetail("got", fmt.Sprintf("%d", got))
}

func DuplicateDocument(collection, path string) *Error {
	return New(CodeDuplicateDocument,
		fmt.Sprintf("document already active: %s/%s", collection, path), nil).
		WithDetail("collection", collection).
		WithDetail("path", path)
}

// IsRetryable reports whether err is an *Error flagged retryable.
func IsRetryable(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// IsFatal reports whether err is an *Error with fatal severity.
func IsFatal(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Severity == SeverityFatal
	}
	return false
}

// Code extracts the error code, or "" if err is not an *Error.
func Code(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}
