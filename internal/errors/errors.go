package errors

import (
	stderrors "errors"
	"fmt"
)

// GrepError is the structured error type for ordgrep.
type GrepError struct {
	// Code is the unique error code (e.g., "ERR_402_INVALID_PATTERN").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable hint for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *GrepError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *GrepError) Unwrap() error {
	return e.Cause
}

// Is matches by code, so errors.Is(err, ErrNotStarted) holds for any
// GrepError carrying that code.
func (e *GrepError) Is(target error) bool {
	if t, ok := target.(*GrepError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *GrepError) WithDetail(key, value string) *GrepError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *GrepError) WithSuggestion(suggestion string) *GrepError {
	e.Suggestion = suggestion
	return e
}

// New creates a GrepError. Category, severity and the retryable flag are
// derived from the code.
func New(code string, message string, cause error) *GrepError {
	return &GrepError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a GrepError from an existing error, keeping its message.
func Wrap(code string, err error) *GrepError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotStarted     = New(ErrCodeNotStarted, "session has not been started", nil)
	ErrAlreadyStarted = New(ErrCodeAlreadyStarted, "session has already been started", nil)
)

// ConfigError creates a configuration error.
func ConfigError(message string, cause error) *GrepError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// PatternError creates an invalid pattern error.
func PatternError(pattern string, cause error) *GrepError {
	return New(ErrCodeInvalidPattern, fmt.Sprintf("invalid pattern %q", pattern), cause).
		WithDetail("pattern", pattern)
}

// UsageError creates an invalid input error.
func UsageError(message string) *GrepError {
	return New(ErrCodeInvalidInput, message, nil)
}

// UnitError creates an execution unit error for one source.
func UnitError(code, source string, cause error) *GrepError {
	msg := "worker unit failed"
	if cause != nil {
		msg = cause.Error()
	}
	return New(code, msg, cause).WithDetail("source", source)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *GrepError {
	return New(ErrCodeInternal, message, cause)
}

// As returns the first GrepError in err's chain.
func As(err error) (*GrepError, bool) {
	var ge *GrepError
	if stderrors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// IsRetryable reports whether err is a GrepError marked retryable.
func IsRetryable(err error) bool {
	ge, ok := As(err)
	return ok && ge.Retryable
}

// GetCode extracts the error code, or "" if err carries none.
func GetCode(err error) string {
	if ge, ok := As(err); ok {
		return ge.Code
	}
	return ""
}

// GetCategory extracts the category, or "" if err carries none.
func GetCategory(err error) Category {
	if ge, ok := As(err); ok {
		return ge.Category
	}
	return ""
}

// IsUsage reports whether err is a usage or configuration error, which ends
// the command with exit status 2.
func IsUsage(err error) bool {
	switch GetCategory(err) {
	case CategoryUsage, CategoryConfig:
		return true
	default:
		return false
	}
}
