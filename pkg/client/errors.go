package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when a configured retry cap is reached.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// StatusError reports a non-2xx response. Retryable classes only surface
// when a retry cap is configured; everything else surfaces immediately.
type StatusError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("api returned status code %d (%s): %s", e.StatusCode, e.ErrorClass, e.Message)
}

// NetworkError reports a transport-level failure (DNS, connection reset,
// TLS, truncated body). It is never retried.
type NetworkError struct {
	Err error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassRateLimit, ErrorClassTimeout, ErrorClassServer:
		return true
	default:
		// Client errors and transport failures are fatal.
		return false
	}
}
