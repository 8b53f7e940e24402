package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_Defaults(t *testing.T) {
	err := New(ErrCodeNetworkError, "connection reset")

	assert.Equal(t, ErrCodeNetworkError, err.Code)
	assert.Equal(t, CategoryNetwork, err.Category)
	assert.True(t, err.Retryable)
	assert.False(t, err.Timestamp.IsZero())
}

func TestStoreError_Error(t *testing.T) {
	err := New(ErrCodeObjectNotFound, "object not found").
		WithOperation("ReadBytes").
		WithKey("ledger/commit/abc.json")

	msg := err.Error()
	assert.Contains(t, msg, "[ReadBytes]")
	assert.Contains(t, msg, "OBJECT_NOT_FOUND")
	assert.Contains(t, msg, "key=ledger/commit/abc.json")
}

func TestStoreError_Unwrap(t *testing.T) {
	cause := stderrors.New("underlying")
	err := New(ErrCodeNetworkError, "request failed").WithCause(cause)

	assert.True(t, stderrors.Is(err, cause))
}

func TestStoreError_IsByCode(t *testing.T) {
	err := New(ErrCodeThrottled, "slow down").WithKey("a")
	target := New(ErrCodeThrottled, "different message")

	assert.True(t, stderrors.Is(err, target))
	assert.False(t, stderrors.Is(err, New(ErrCodeNetworkError, "x")))
}

func TestGetCategory(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		category ErrorCategory
	}{
		{ErrCodeMissingConfig, CategoryConfiguration},
		{ErrCodeConfigValidation, CategoryConfiguration},
		{ErrCodeAuthenticationFailed, CategoryAuth},
		{ErrCodeSigningFailed, CategoryAuth},
		{ErrCodeObjectNotFound, CategoryStorage},
		{ErrCodeThrottled, CategoryNetwork},
		{ErrCodeAddressResolution, CategoryContent},
		{ErrCodeParseFailed, CategoryContent},
		{ErrCodeRetryExhausted, CategoryOperation},
		{ErrCodeInternalError, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.category, GetCategory(tt.code))
		})
	}
}

func TestFromHTTPStatus(t *testing.T) {
	tests := []struct {
		status    int
		code      ErrorCode
		retryable bool
	}{
		{404, ErrCodeObjectNotFound, false},
		{401, ErrCodeAuthenticationFailed, false},
		{403, ErrCodeAuthenticationFailed, false},
		{429, ErrCodeThrottled, true},
		{500, ErrCodeServiceUnavailable, true},
		{503, ErrCodeServiceUnavailable, true},
		{400, ErrCodeOperationFailed, false},
		{409, ErrCodeOperationFailed, false},
	}

	for _, tt := range tests {
		err := FromHTTPStatus(tt.status, "WriteBytes", "some/key")
		assert.Equal(t, tt.code, err.Code, "status %d", tt.status)
		assert.Equal(t, tt.retryable, err.Retryable, "status %d", tt.status)
		assert.Equal(t, tt.status, err.HTTPStatus)
		assert.Equal(t, "WriteBytes", err.Operation)
		assert.Equal(t, "some/key", err.Key)
	}
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(New(ErrCodeObjectNotFound, "gone")))
	assert.True(t, IsNotFound(New(ErrCodeBucketNotFound, "gone")))
	assert.False(t, IsNotFound(New(ErrCodeNetworkError, "reset")))
	assert.False(t, IsNotFound(stderrors.New("plain")))
}

func TestGetRecommendation_AuthFailure(t *testing.T) {
	err := FromHTTPStatus(403, "ReadBytes", "k")
	assert.NotEmpty(t, err.GetRecommendation())
}
