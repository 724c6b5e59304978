package adaptors

import (
	"fmt"
	"time"
)

// AdaptorError represents a general backend failure.
// It includes the endpoint slug, HTTP status code, and underlying error.
type AdaptorError struct {
	// Endpoint is the slug of the endpoint that returned the error
	Endpoint string

	// StatusCode is the HTTP status code (0 if not applicable)
	StatusCode int

	// Message is the error message
	Message string

	// Code is a machine-readable error code
	Code string

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *AdaptorError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("endpoint %q error (status %d): %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("endpoint %q error: %s", e.Endpoint, e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *AdaptorError) Unwrap() error {
	return e.Cause
}

// AuthError represents an authentication failure against a backend.
// This occurs when the backend rejects the API key (HTTP 401 or 403).
type AuthError struct {
	// Endpoint is the slug of the endpoint that rejected authentication
	Endpoint string

	// Message is the error message from the backend
	Message string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("endpoint %q authentication failed: %s", e.Endpoint, e.Message)
}

// TimeoutError represents a backend call that exceeded its deadline.
// The router treats a timeout as a target failure, never as fatal.
type TimeoutError struct {
	// Endpoint is the slug of the endpoint where the timeout occurred
	Endpoint string

	// Timeout is the configured timeout duration
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("endpoint %q request timeout after %s", e.Endpoint, e.Timeout)
}

// ParseError represents a malformed backend response.
type ParseError struct {
	// Endpoint is the slug of the endpoint that returned the malformed response
	Endpoint string

	// RawResponse is the raw response body that failed to parse
	RawResponse string

	// Cause is the underlying parse error
	Cause error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("endpoint %q response parse error: %v", e.Endpoint, e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// StreamError represents an error that occurred mid-stream.
// It is delivered through the chunk channel, not as a function return.
type StreamError struct {
	// Endpoint is the slug of the endpoint where the error occurred
	Endpoint string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("endpoint %q stream error: %s: %v", e.Endpoint, e.Message, e.Cause)
	}
	return fmt.Sprintf("endpoint %q stream error: %s", e.Endpoint, e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *StreamError) Unwrap() error {
	return e.Cause
}

// ConfigError represents an invalid adaptor configuration.
// Unknown adaptor types and missing required config keys are rejected at
// configuration load time, never at call time.
type ConfigError struct {
	// Endpoint is the slug with invalid configuration
	Endpoint string

	// Field is the configuration field that is invalid
	Field string

	// Message describes the configuration error
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("endpoint %q configuration error for field %q: %s",
		e.Endpoint, e.Field, e.Message)
}

// BatchNotSupportedError is returned when SubmitBatch is called on an
// adaptor that does not implement batch execution.
type BatchNotSupportedError struct {
	// Endpoint is the slug of the endpoint
	Endpoint string
}

// Error implements the error interface.
func (e *BatchNotSupportedError) Error() string {
	return fmt.Sprintf("endpoint %q does not support batch execution", e.Endpoint)
}
