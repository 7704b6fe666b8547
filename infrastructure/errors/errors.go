// Package errors defines the typed error vocabulary of the lifecycle
// manager: a structured ServiceError carrying a code and HTTP status, plus
// one constructor per lifecycle error kind with its propagation rule
// documented at the constructor.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies one error kind.
type ErrorCode string

const (
	ErrCodeInternal          ErrorCode = "SVC_5001"
	ErrCodeRateLimitExceeded ErrorCode = "SVC_5006"

	// Transport: connection/TLS/timeout talking to a cluster — retried
	// with backoff.
	ErrCodeTransport ErrorCode = "ILM_6001"
	// HealthGate: cluster health below the family's required color —
	// retried for the cycle budget, with the fallback gate applied on the
	// final attempt.
	ErrCodeHealthGate ErrorCode = "ILM_6002"
	// Malformed: the cluster returned a payload missing expected keys —
	// recorded and the affected index is skipped.
	ErrCodeMalformed ErrorCode = "ILM_6003"
	// Verification: accounting drift at or above the tolerance —
	// non-fatal, triggers a notification.
	ErrCodeVerification ErrorCode = "ILM_6004"
	// Configuration: missing settings or missing tenant file — fatal at
	// startup only.
	ErrCodeConfiguration ErrorCode = "ILM_6005"
)

// ServiceError is a structured error with code, message, and HTTP status.
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails adds a detail key to the error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a ServiceError.
func New(code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap creates a ServiceError around an underlying error.
func Wrap(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Internal wraps an unexpected failure on the ops surface.
func Internal(message string, err error) *ServiceError {
	return Wrap(ErrCodeInternal, message, http.StatusInternalServerError, err)
}

// RateLimitExceeded reports a throttled ops-surface request.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded", http.StatusTooManyRequests).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

// Transport wraps a connection, TLS, or timeout failure talking to a
// cluster. Transport errors are retried with backoff by the resilience
// layer.
func Transport(cluster string, err error) *ServiceError {
	return Wrap(ErrCodeTransport, "cluster transport failure", http.StatusBadGateway, err).
		WithDetails("cluster", cluster)
}

// HealthGate reports a cluster health color below the family's required
// threshold. Retried for the remainder of the cycle budget; the caller may
// substitute the fallback gate on the final attempt.
func HealthGate(cluster, required, observed string) *ServiceError {
	return New(ErrCodeHealthGate, "cluster health below required gate", http.StatusServiceUnavailable).
		WithDetails("cluster", cluster).
		WithDetails("required", required).
		WithDetails("observed", observed)
}

// Malformed reports a cluster response missing expected keys. The affected
// index is skipped; the engine continues with the remainder.
func Malformed(index, reason string) *ServiceError {
	return New(ErrCodeMalformed, "malformed cluster response", http.StatusBadGateway).
		WithDetails("index", index).
		WithDetails("reason", reason)
}

// Verification reports an accounting drift at or above tolerance.
// Non-fatal; the caller is expected to emit a notification and continue.
func Verification(tenant string, driftGB float64) *ServiceError {
	return New(ErrCodeVerification, "accounting drift exceeds tolerance", http.StatusOK).
		WithDetails("tenant", tenant).
		WithDetails("drift_gb", driftGB)
}

// Configuration reports a missing setting or tenant file. Fatal at startup
// only.
func Configuration(message string, err error) *ServiceError {
	return Wrap(ErrCodeConfiguration, message, http.StatusInternalServerError, err)
}

// IsServiceError checks whether err carries a ServiceError.
func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

// GetServiceError extracts a ServiceError from an error chain, or nil.
func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

// GetHTTPStatus returns the HTTP status for an error chain.
func GetHTTPStatus(err error) int {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
