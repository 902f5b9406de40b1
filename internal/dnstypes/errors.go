package dnstypes

import (
	"errors"
	"fmt"
)

// ErrorClass is the retry classification of a provider error,
// decided once where the provider response is parsed.
type ErrorClass string

const (
	ClassTransient   ErrorClass = "transient"
	ClassRateLimited ErrorClass = "rate_limited"
	ClassPermanent   ErrorClass = "permanent"
)

// ProviderError is returned by provider clients for every failed call
type ProviderError struct {
	Class      ErrorClass
	HTTPStatus int    // 0 when no response was received
	Code       int    // provider specific error code, 0 if none
	Message    string // unstructured provider message
	Err        error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s provider error (status=%d, code=%d): %s", e.Class, e.HTTPStatus, e.Code, msg)
	}
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("%s provider error (status=%d): %s", e.Class, e.HTTPStatus, msg)
	}
	return fmt.Sprintf("%s provider error: %s", e.Class, msg)
}

// Unwrap returns the underlying error
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as a retryable provider error
func NewTransientError(message string, err error) *ProviderError {
	return &ProviderError{Class: ClassTransient, Message: message, Err: err}
}

// ClassOf returns the retry class of err.
// Unknown errors, timeouts and network failures are transient.
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ""
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Class
	}
	return ClassTransient
}
