package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndSeverity(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		category Category
		severity Severity
	}{
		{"planning error is fatal config", ErrCodePlanningInvalid, CategoryConfig, SeverityFatal},
		{"lookup failure is recoverable data", ErrCodeLookupFailed, CategoryData, SeverityWarning},
		{"timeout is timeout category", ErrCodeQueryTimeout, CategoryTimeout, SeverityError},
		{"invalid query is validation", ErrCodeInvalidQuery, CategoryValidation, SeverityError},
		{"dimension mismatch is warning", ErrCodeDimensionMismatch, CategoryValidation, SeverityWarning},
		{"internal fallback", ErrCodeInternal, CategoryInternal, SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "boom", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
		})
	}
}

func TestError_Format(t *testing.T) {
	err := New(ErrCodeContentNotFound, "content missing", nil)
	assert.Equal(t, "[ERR_203_CONTENT_NOT_FOUND] content missing", err.Error())
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := stderrors.New("disk on fire")
	err := Wrap(ErrCodeLookupFailed, cause)
	require.NotNil(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause, err.Unwrap())
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeLookupFailed, nil))
}

func TestIs_MatchesByCode(t *testing.T) {
	a := New(ErrCodeContentNotFound, "a", nil)
	b := New(ErrCodeContentNotFound, "b", nil)
	c := New(ErrCodeChunkNotFound, "c", nil)

	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, c))
}

func TestIs_ThroughWrapping(t *testing.T) {
	inner := NotFound("doc-1")
	outer := fmt.Errorf("assemble: %w", inner)
	assert.True(t, stderrors.Is(outer, New(ErrCodeContentNotFound, "", nil)))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrCodeQueryTimeout, "deadline", nil)))
	assert.True(t, IsRetryable(DataUnavailable("all partitions failed", nil)))
	assert.False(t, IsRetryable(InvalidQuery("k must be positive")))
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(stderrors.New("plain")))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(PlanningError("bbox_ratio_threshold out of range")))
	assert.False(t, IsFatal(NotFound("x")))
	assert.False(t, IsFatal(nil))
}

func TestWithDetail(t *testing.T) {
	err := NotFound("doc-9").WithDetail("store", "sqlite")
	assert.Equal(t, "sqlite", err.Details["store"])
}

func TestFormatForCLI(t *testing.T) {
	out := FormatForCLI(InvalidQuery("neither text nor vector supplied"))
	assert.Contains(t, out, "neither text nor vector supplied")
	assert.Contains(t, out, ErrCodeInvalidQuery)

	plain := FormatForCLI(stderrors.New("plain failure"))
	assert.Contains(t, plain, ErrCodeInternal)
}
