// Package errors provides the standardized error type shared by jobs, stores and the HTTP layer.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeStoreQueryFailed ErrorCode = "STORE_QUERY_FAILED"
	ErrCodeStoreWriteFailed ErrorCode = "STORE_WRITE_FAILED"

	ErrCodeRatingSourceUnavailable       ErrorCode = "RATING_SOURCE_UNAVAILABLE"
	ErrCodeRatingSourceUnattributed      ErrorCode = "RATING_SOURCE_UNATTRIBUTED"
	ErrCodeRatingSourceMalformedResponse ErrorCode = "RATING_SOURCE_MALFORMED_RESPONSE"

	ErrCodeMailSendFailed ErrorCode = "MAIL_SEND_FAILED"

	ErrCodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"
	ErrCodeIllegalTransition    ErrorCode = "ILLEGAL_TRANSITION"
	ErrCodeInvalidAnalyticsType ErrorCode = "INVALID_ANALYTICS_TYPE"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Error categories.
const (
	CategoryTransient      = "transient"
	CategoryUnattributed   = "unattributed"
	CategoryAuthentication = "authentication"
	CategoryDomain         = "domain"
	CategoryInternal       = "internal"
)

// StandardError represents a structured application error.
// Callers match on Code, never on Message or Details.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is matches another StandardError by code.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// Category returns the taxonomy bucket of the error code.
func (e *StandardError) Category() string {
	return GetErrorCategory(e.Code)
}

func newError(code ErrorCode, message string, cause error, retryable bool) *StandardError {
	stdErr := &StandardError{
		Code:      code,
		Message:   message,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
	if cause != nil {
		stdErr.Details = cause.Error()
	}
	return stdErr
}

// ==========================
// 2. Error Constructors
// ==========================

// NewStoreQueryFailedError wraps a failed registry or outbox read.
func NewStoreQueryFailedError(operation string, err error) *StandardError {
	return newError(ErrCodeStoreQueryFailed, "Store read failed", err, true).
		WithMetadata("operation", operation)
}

// NewStoreWriteFailedError wraps a failed batched registry or outbox write.
func NewStoreWriteFailedError(operation string, err error) *StandardError {
	return newError(ErrCodeStoreWriteFailed, "Store write failed", err, true).
		WithMetadata("operation", operation)
}

// NewRatingSourceUnavailableError wraps a transport failure talking to the rating source.
func NewRatingSourceUnavailableError(err error) *StandardError {
	return newError(ErrCodeRatingSourceUnavailable, "Rating source unavailable", err, true)
}

// NewRatingSourceUnattributedError reports a failure envelope that names no handle.
func NewRatingSourceUnattributedError(comment string) *StandardError {
	stdErr := newError(ErrCodeRatingSourceUnattributed, "Rating source failure not attributable to a handle", nil, true)
	stdErr.Details = comment
	return stdErr.WithMetadata("comment", comment)
}

// NewRatingSourceMalformedResponseError reports a body that matches neither envelope.
func NewRatingSourceMalformedResponseError(details string) *StandardError {
	stdErr := newError(ErrCodeRatingSourceMalformedResponse, "Rating source returned a malformed response", nil, true)
	stdErr.Details = details
	return stdErr
}

// NewMailSendFailedError wraps a failed bulk send. Nothing in the batch is marked sent.
func NewMailSendFailedError(notificationType string, err error) *StandardError {
	return newError(ErrCodeMailSendFailed, "Mail send failed", err, true).
		WithMetadata("notificationType", notificationType)
}

// NewAuthenticationError rejects a request that failed the shared-secret check.
func NewAuthenticationError(details string) *StandardError {
	stdErr := newError(ErrCodeAuthenticationFailed, "Authentication failed", nil, false)
	stdErr.Details = details
	return stdErr
}

// NewIllegalTransitionError wraps a refused handle state transition.
func NewIllegalTransitionError(err error) *StandardError {
	return newError(ErrCodeIllegalTransition, "Illegal handle state transition", err, false)
}

// NewInvalidAnalyticsTypeError rejects an unknown analytics badge type.
func NewInvalidAnalyticsTypeError(analyticsType string) *StandardError {
	stdErr := newError(ErrCodeInvalidAnalyticsType, "Invalid analytics type", nil, false)
	stdErr.Details = fmt.Sprintf("analytics type %q is not supported", analyticsType)
	return stdErr.WithMetadata("type", analyticsType)
}

// NewInternalError wraps anything that is not already a StandardError.
func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err, false)
}

// ==========================
// 3. Utility Functions
// ==========================

// AsStandardError finds a StandardError in err's chain.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	stdErr, ok := AsStandardError(err)
	return ok && stdErr.Code == code
}

// IsRetryableErrorCode reports whether the next scheduled tick can be expected to succeed.
func IsRetryableErrorCode(code ErrorCode) bool {
	switch GetErrorCategory(code) {
	case CategoryTransient, CategoryUnattributed:
		return true
	default:
		return false
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeStoreQueryFailed,
		ErrCodeStoreWriteFailed,
		ErrCodeRatingSourceUnavailable,
		ErrCodeRatingSourceMalformedResponse,
		ErrCodeMailSendFailed:
		return CategoryTransient
	case ErrCodeRatingSourceUnattributed:
		return CategoryUnattributed
	case ErrCodeAuthenticationFailed:
		return CategoryAuthentication
	case ErrCodeIllegalTransition, ErrCodeInvalidAnalyticsType:
		return CategoryDomain
	default:
		return CategoryInternal
	}
}
