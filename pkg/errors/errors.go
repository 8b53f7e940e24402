// Package errors provides the structured error system for caskstore with
// error codes, categories, and per-operation context.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ErrorCode identifies a failure class for classification and retry policy.
type ErrorCode string

const (
	// Configuration errors — fatal, surfaced before any network call.
	ErrCodeMissingConfig    ErrorCode = "MISSING_CONFIG"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// Authentication and signing errors — fatal, never retried.
	ErrCodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"
	ErrCodeCredentialsMissing   ErrorCode = "CREDENTIALS_MISSING"
	ErrCodeSigningFailed        ErrorCode = "SIGNING_FAILED"

	// Storage errors.
	ErrCodeObjectNotFound ErrorCode = "OBJECT_NOT_FOUND"
	ErrCodeBucketNotFound ErrorCode = "BUCKET_NOT_FOUND"

	// Network and service errors — retryable with backoff.
	ErrCodeNetworkError       ErrorCode = "NETWORK_ERROR"
	ErrCodeConnectionTimeout  ErrorCode = "CONNECTION_TIMEOUT"
	ErrCodeOperationTimeout   ErrorCode = "OPERATION_TIMEOUT"
	ErrCodeThrottled          ErrorCode = "THROTTLED"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"

	// Content-addressing errors — fatal, surfaced to the caller.
	ErrCodeAddressResolution ErrorCode = "ADDRESS_RESOLUTION"
	ErrCodeParseFailed       ErrorCode = "PARSE_FAILED"

	// Operation errors.
	ErrCodeOperationFailed   ErrorCode = "OPERATION_FAILED"
	ErrCodeOperationCanceled ErrorCode = "OPERATION_CANCELED"
	ErrCodeRetryExhausted    ErrorCode = "RETRY_EXHAUSTED"

	// Internal errors.
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryAuth          ErrorCategory = "auth"
	CategoryStorage       ErrorCategory = "storage"
	CategoryNetwork       ErrorCategory = "network"
	CategoryContent       ErrorCategory = "content"
	CategoryOperation     ErrorCategory = "operation"
	CategoryInternal      ErrorCategory = "internal"
)

// StoreError is a structured error carrying enough context to diagnose a
// failed operation without re-deriving the signed request.
type StoreError struct {
	Code     ErrorCode         `json:"code"`
	Category ErrorCategory     `json:"category"`
	Message  string            `json:"message"`
	Context  map[string]string `json:"context,omitempty"`

	Cause     error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`

	Operation string `json:"operation,omitempty"`
	Key       string `json:"key,omitempty"`

	// Retryable marks errors the retry scheduler may absorb and retry.
	Retryable  bool `json:"retryable"`
	HTTPStatus int  `json:"http_status,omitempty"`
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	var b strings.Builder
	if e.Operation != "" {
		fmt.Fprintf(&b, "[%s] ", e.Operation)
	}
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	if e.Key != "" {
		fmt.Fprintf(&b, " (key=%s)", e.Key)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %s", e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// Is matches against another StoreError by code.
func (e *StoreError) Is(target error) bool {
	if t, ok := target.(*StoreError); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a StoreError with category and retry defaults derived from
// the code.
func New(code ErrorCode, message string) *StoreError {
	return &StoreError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
		Retryable: IsRetryableByDefault(code),
	}
}

// Newf creates a StoreError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *StoreError {
	return New(code, fmt.Sprintf(format, args...))
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeMissingConfig, ErrCodeConfigValidation:
		return CategoryConfiguration
	case ErrCodeAuthenticationFailed, ErrCodeCredentialsMissing, ErrCodeSigningFailed:
		return CategoryAuth
	case ErrCodeObjectNotFound, ErrCodeBucketNotFound:
		return CategoryStorage
	case ErrCodeNetworkError, ErrCodeConnectionTimeout, ErrCodeOperationTimeout,
		ErrCodeThrottled, ErrCodeServiceUnavailable:
		return CategoryNetwork
	case ErrCodeAddressResolution, ErrCodeParseFailed:
		return CategoryContent
	case ErrCodeOperationFailed, ErrCodeOperationCanceled, ErrCodeRetryExhausted:
		return CategoryOperation
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault reports whether an error code is retried by default.
func IsRetryableByDefault(code ErrorCode) bool {
	switch code {
	case ErrCodeNetworkError, ErrCodeConnectionTimeout, ErrCodeOperationTimeout,
		ErrCodeThrottled, ErrCodeServiceUnavailable:
		return true
	}
	return false
}

// WithContext adds contextual information to an error.
func (e *StoreError) WithContext(key, value string) *StoreError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithOperation sets the logical operation the error occurred in.
func (e *StoreError) WithOperation(operation string) *StoreError {
	e.Operation = operation
	return e
}

// WithKey sets the object key the error relates to.
func (e *StoreError) WithKey(key string) *StoreError {
	e.Key = key
	return e
}

// WithCause sets the underlying cause.
func (e *StoreError) WithCause(cause error) *StoreError {
	e.Cause = cause
	return e
}

// WithHTTPStatus records the backend HTTP status that produced the error.
func (e *StoreError) WithHTTPStatus(status int) *StoreError {
	e.HTTPStatus = status
	return e
}

// IsRetryable reports whether err is a StoreError marked retryable.
func IsRetryable(err error) bool {
	if se, ok := err.(*StoreError); ok {
		return se.Retryable
	}
	return false
}

// IsNotFound reports whether err represents an absent object or bucket.
func IsNotFound(err error) bool {
	if se, ok := err.(*StoreError); ok {
		return se.Code == ErrCodeObjectNotFound || se.Code == ErrCodeBucketNotFound
	}
	return false
}

// FromHTTPStatus classifies a non-2xx backend response into a StoreError.
// 429 and 5xx are retryable; other 4xx are fatal.
func FromHTTPStatus(status int, operation, key string) *StoreError {
	var e *StoreError
	switch {
	case status == 404:
		e = New(ErrCodeObjectNotFound, "object not found")
	case status == 401 || status == 403:
		e = Newf(ErrCodeAuthenticationFailed,
			"request signature rejected (status %d); verify access key, secret key, and signing region", status)
	case status == 429:
		e = New(ErrCodeThrottled, "request throttled by backend")
	case status >= 500:
		e = Newf(ErrCodeServiceUnavailable, "backend returned status %d", status)
	default:
		e = Newf(ErrCodeOperationFailed, "backend returned status %d", status)
	}
	return e.WithOperation(operation).WithKey(key).WithHTTPStatus(status)
}

// GetRecommendation returns a remediation hint for auth and network errors.
func (e *StoreError) GetRecommendation() string {
	recommendations := map[ErrorCode]string{
		ErrCodeAuthenticationFailed: "Verify your access key ID and secret access key are correct, " +
			"and that the signing region matches the bucket's endpoint.",
		ErrCodeCredentialsMissing: "Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables " +
			"or configure credentials in ~/.aws/credentials.",
		ErrCodeBucketNotFound: "The configured bucket does not exist or is not accessible. " +
			"Verify the bucket name and endpoint.",
		ErrCodeConnectionTimeout: "Check network connectivity to the configured endpoint. " +
			"Consider increasing timeout values in the store configuration.",
		ErrCodeThrottled: "The backend is rate limiting requests. " +
			"Reduce request concurrency or increase retry delays.",
	}
	if rec, ok := recommendations[e.Code]; ok {
		return rec
	}
	return ""
}
