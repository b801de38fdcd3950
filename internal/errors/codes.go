// Package errors provides structured error handling for Tessera.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors (fatal at startup validation)
//   - 2XX: Data errors (lookups, missing content)
//   - 3XX: Timeout and cancellation errors
//   - 4XX: Validation errors (rejected before planning)
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryData indicates store lookup and missing-data errors.
	CategoryData Category = "DATA"
	// CategoryTimeout indicates deadline and cancellation errors.
	CategoryTimeout Category = "TIMEOUT"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
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
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"
	// ErrCodePlanningInvalid flags a hybrid-query threshold outside its valid
	// range. Raised at startup validation, never per query.
	ErrCodePlanningInvalid = "ERR_103_PLANNING_INVALID"

	// Data errors (200-299)
	ErrCodeLookupFailed    = "ERR_201_LOOKUP_FAILED"
	ErrCodeDataUnavailable = "ERR_202_DATA_UNAVAILABLE"
	ErrCodeContentNotFound = "ERR_203_CONTENT_NOT_FOUND"
	ErrCodeChunkNotFound   = "ERR_204_CHUNK_NOT_FOUND"
	ErrCodeStoreClosed     = "ERR_205_STORE_CLOSED"

	// Timeout errors (300-399)
	ErrCodeQueryTimeout   = "ERR_301_QUERY_TIMEOUT"
	ErrCodeQueryCancelled = "ERR_302_QUERY_CANCELLED"

	// Validation errors (400-499)
	ErrCodeInvalidQuery      = "ERR_401_INVALID_QUERY"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeInvalidPath       = "ERR_403_INVALID_PATH"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeSearchFailed = "ERR_502_SEARCH_FAILED"
	ErrCodeIndexFailed  = "ERR_503_INDEX_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "103" from "ERR_103_PLANNING_INVALID")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryData
	case '3':
		return CategoryTimeout
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodePlanningInvalid, ErrCodeConfigInvalid:
		// Config errors abort startup.
		return SeverityFatal
	case ErrCodeLookupFailed, ErrCodeDimensionMismatch:
		// Recovered locally by excluding the offending candidate.
		return SeverityWarning
	default:
		return SeverityError
	}
}

// isRetryableCode checks if an error code represents a retryable condition.
// Retry is a caller concern; the engine itself never retries. The flag is
// advisory for callers.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeQueryTimeout, ErrCodeDataUnavailable:
		return true
	default:
		return false
	}
}
