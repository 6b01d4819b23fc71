// Package errors defines the router's typed error taxonomy.
package errors

import (
	"fmt"
	"strings"
)

// ErrorType classifies a router error
type ErrorType string

const (
	// ErrTypeAuth represents an invalid or missing webhook signature
	ErrTypeAuth ErrorType = "auth_invalid_signature"
	// ErrTypeValidation represents a malformed payload
	ErrTypeValidation ErrorType = "malformed_payload"
	// ErrTypeDisabled represents an administratively disabled router
	ErrTypeDisabled ErrorType = "service_disabled"
	// ErrTypeRateLimit represents a per-sender rate limit rejection
	ErrTypeRateLimit ErrorType = "rate_limited"
	// ErrTypeDuplicate represents a message id that was already claimed
	ErrTypeDuplicate ErrorType = "duplicate_message"
	// ErrTypeUnmatched represents a message with no matching route
	ErrTypeUnmatched ErrorType = "unmatched_route"
	// ErrTypeDownstream represents a failed downstream destination call
	ErrTypeDownstream ErrorType = "downstream_error"
	// ErrTypeConfig represents a configuration error
	ErrTypeConfig ErrorType = "config"
	// ErrTypeInternal represents an unexpected internal error
	ErrTypeInternal ErrorType = "internal"
)

// AppError is a structured router error
type AppError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	parts := []string{string(e.Type), e.Message}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause=%v", e.Cause))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context={%s}", strings.Join(contextParts, ", ")))
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// AuthError creates a signature verification error
func AuthError(msg string) *AppError {
	return &AppError{Type: ErrTypeAuth, Message: msg}
}

// ValidationError creates a malformed payload error
func ValidationError(msg string) *AppError {
	return &AppError{Type: ErrTypeValidation, Message: msg}
}

// DisabledError creates a service disabled error
func DisabledError(msg string) *AppError {
	return &AppError{Type: ErrTypeDisabled, Message: msg}
}

// RateLimitError creates a rate limit error for a sender
func RateLimitError(sender string) *AppError {
	return &AppError{
		Type:    ErrTypeRateLimit,
		Message: fmt.Sprintf("rate limit exceeded for %s", sender),
	}
}

// DuplicateError creates a duplicate message error
func DuplicateError(messageID string) *AppError {
	return &AppError{
		Type:    ErrTypeDuplicate,
		Message: fmt.Sprintf("message %s already claimed", messageID),
	}
}

// UnmatchedError creates an unmatched route error
func UnmatchedError(msg string) *AppError {
	return &AppError{Type: ErrTypeUnmatched, Message: msg}
}

// DownstreamError creates a downstream destination error
func DownstreamError(destination string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeDownstream,
		Message: fmt.Sprintf("destination %s failed", destination),
		Cause:   cause,
	}
}

// ConfigError creates a configuration error
func ConfigError(msg string) *AppError {
	return &AppError{Type: ErrTypeConfig, Message: msg}
}

// InternalError creates an internal error
func InternalError(msg string, cause error) *AppError {
	return &AppError{Type: ErrTypeInternal, Message: msg, Cause: cause}
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	if err == nil {
		return false
	}

	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}

	return appErr.Type == errType
}

// GetType returns the error type if it's an AppError, otherwise ErrTypeInternal
func GetType(err error) ErrorType {
	if err == nil {
		return ""
	}

	appErr, ok := err.(*AppError)
	if !ok {
		return ErrTypeInternal
	}

	return appErr.Type
}
