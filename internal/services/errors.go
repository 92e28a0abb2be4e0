package services

import "fmt"

// ValidationError covers malformed input and duplicate unique fields (400).
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "Validation error"
}

// UnauthorizedError covers bad credentials, disabled accounts and bad tokens (401).
type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }

// NotFoundError is also returned for resources owned by someone else.
type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

// UpstreamError wraps a failed call to the generative-language API (502).
type UpstreamError struct {
	Message string
	Err     error
}

func (e *UpstreamError) Error() string { return fmt.Sprintf("%s: %v", e.Message, e.Err) }

func (e *UpstreamError) Unwrap() error { return e.Err }

func fieldError(field, message string) *ValidationError {
	return &ValidationError{Message: message, Fields: map[string]string{field: message}}
}
