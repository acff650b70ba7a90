// Package errors provides structured error handling for ordgrep.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Source errors (files, stdin, objects)
//   - 3XX: Execution unit errors (process backend)
//   - 4XX: Usage and validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategorySource indicates a source could not be opened or read.
	CategorySource Category = "SOURCE"
	// CategoryUnit indicates a worker process failed.
	CategoryUnit Category = "UNIT"
	// CategoryUsage indicates invalid input or API misuse.
	CategoryUsage Category = "USAGE"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal aborts the search.
	SeverityFatal Severity = "FATAL"
	// SeverityError fails one operation; the search continues.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Source errors (200-299)
	ErrCodeSourceNotFound   = "ERR_201_SOURCE_NOT_FOUND"
	ErrCodeSourcePermission = "ERR_202_SOURCE_PERMISSION"
	ErrCodeSourceUnreadable = "ERR_203_SOURCE_UNREADABLE"

	// Unit errors (300-399)
	ErrCodeUnitSpawn    = "ERR_301_UNIT_SPAWN_FAILED"
	ErrCodeUnitCrashed  = "ERR_302_UNIT_CRASHED"
	ErrCodeUnitTimeout  = "ERR_303_UNIT_TIMEOUT"
	ErrCodeUnitProtocol = "ERR_304_UNIT_PROTOCOL"

	// Usage errors (400-499)
	ErrCodeInvalidInput       = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidPattern     = "ERR_402_INVALID_PATTERN"
	ErrCodeNotStarted         = "ERR_403_SESSION_NOT_STARTED"
	ErrCodeAlreadyStarted     = "ERR_404_SESSION_ALREADY_STARTED"
	ErrCodePatternNotPortable = "ERR_405_PATTERN_NOT_TRANSFERABLE"
	ErrCodeUnknownBackend     = "ERR_406_UNKNOWN_BACKEND"

	// Internal errors (500-599)
	ErrCodeInternal = "ERR_501_INTERNAL"
)

// categoryFromCode extracts the category from the hundreds digit.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategorySource
	case '3':
		return CategoryUnit
	case '4':
		return CategoryUsage
	default:
		return CategoryInternal
	}
}

func severityFromCode(code string) Severity {
	switch categoryFromCode(code) {
	case CategoryConfig, CategoryUsage:
		return SeverityFatal
	case CategoryUnit:
		if isRetryableCode(code) {
			return SeverityWarning
		}
	}
	return SeverityError
}

// isRetryableCode reports whether an operation failing with code may succeed
// when attempted again.
func isRetryableCode(code string) bool {
	return code == ErrCodeUnitSpawn
}
