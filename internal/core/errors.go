// Package core provides core types and interfaces for the arena gateway.
package core

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// ErrorType represents the type of error that occurred
type ErrorType string

const (
	// ErrorTypeProvider indicates a hosted LLM provider failure
	ErrorTypeProvider ErrorType = "provider_error"
	// ErrorTypeInvalidRequest indicates a client error (4xx)
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	// ErrorTypeAuthentication indicates an authentication error (401)
	ErrorTypeAuthentication ErrorType = "authentication_error"
	// ErrorTypeNotFound indicates an unknown model, agent or participant
	ErrorTypeNotFound ErrorType = "not_found_error"
	// ErrorTypeChain indicates an on-chain oracle failure
	ErrorTypeChain ErrorType = "chain_error"
	// ErrorTypeMalformedResponse indicates the oracle replied in an unexpected shape
	ErrorTypeMalformedResponse ErrorType = "malformed_response_error"
)

// Error codes refine an ErrorType so callers can tell failure modes apart.
const (
	CodeValidation              = "validation_error"
	CodeUnknownParticipant      = "unknown_participant"
	CodeParticipantNotFound     = "participant_not_found"
	CodeChainSubmitFailed       = "chain_submit_failed"
	CodeChainReverted           = "chain_reverted"
	CodeChainTimeout            = "chain_timeout"
	CodeMalformedOracleResponse = "malformed_oracle_response"
	CodeProviderUnavailable     = "provider_unavailable"
)

// GatewayError is the base error type for all gateway errors
type GatewayError struct {
	Type       ErrorType `json:"type"`
	Code       string    `json:"code,omitempty"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code"`
	Provider   string    `json:"provider,omitempty"`
	// Original error for debugging (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface
func (e *GatewayError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *GatewayError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts the error to a JSON-compatible map
func (e *GatewayError) ToJSON() map[string]interface{} {
	body := map[string]interface{}{
		"type":    e.Type,
		"message": e.Message,
	}
	if e.Code != "" {
		body["code"] = e.Code
	}
	return map[string]interface{}{"error": body}
}

// NewValidationError creates a new invalid request error (400)
func NewValidationError(message string, err error) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeInvalidRequest,
		Code:       CodeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

// NewUnknownParticipantError is returned by the dispatcher when a model or agent
// name resolves to nothing. It is a client error (400).
func NewUnknownParticipantError(name string) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeInvalidRequest,
		Code:       CodeUnknownParticipant,
		Message:    "unknown model or agent: " + name,
		StatusCode: http.StatusBadRequest,
	}
}

// NewParticipantNotFoundError is returned by the ranking engine (404).
func NewParticipantNotFoundError(kind Kind, name string) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeNotFound,
		Code:       CodeParticipantNotFound,
		Message:    fmt.Sprintf("%s not found: %s", kind, name),
		StatusCode: http.StatusNotFound,
	}
}

// NewNotFoundError creates a new not found error (404)
func NewNotFoundError(message string) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewAuthenticationError creates a new authentication error (401)
func NewAuthenticationError(message string) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewChainError creates an oracle bridge failure. code is one of the CodeChain* constants.
func NewChainError(code, message string, err error) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeChain,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewMalformedOracleResponseError reports an oracle reply that is not the expected record.
func NewMalformedOracleResponseError(message string, err error) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeMalformedResponse,
		Code:       CodeMalformedOracleResponse,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewProviderError creates a hosted provider error carrying the upstream status.
// It is used by the HTTP client layer; the dispatcher converts it to ProviderUnavailable.
func NewProviderError(provider string, statusCode int, message string, err error) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeProvider,
		Message:    message,
		StatusCode: statusCode,
		Provider:   provider,
		Err:        err,
	}
}

// NewProviderUnavailableError wraps any hosted-provider failure as a 500.
func NewProviderUnavailableError(provider string, err error) *GatewayError {
	message := "provider call failed"
	if err != nil {
		message = err.Error()
		var gwErr *GatewayError
		if errors.As(err, &gwErr) {
			message = gwErr.Message
		}
	}
	return &GatewayError{
		Type:       ErrorTypeProvider,
		Code:       CodeProviderUnavailable,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Provider:   provider,
		Err:        err,
	}
}

// ParseProviderError parses an error response from a provider and returns an appropriate GatewayError
func ParseProviderError(provider string, statusCode int, body []byte, originalErr error) *GatewayError {
	message := extractErrorMessage(body)

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		err := NewAuthenticationError(message)
		err.Provider = provider
		return err
	case statusCode >= 400 && statusCode < 500:
		return NewProviderError(provider, statusCode, message, originalErr)
	default:
		return NewProviderError(provider, http.StatusBadGateway, message, originalErr)
	}
}

// HasCode reports whether err is a GatewayError with the given code.
func HasCode(err error, code string) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr) && gwErr.Code == code
}

// extractErrorMessage pulls error.message out of an OpenAI- or Anthropic-style
// error body, falling back to the raw body.
func extractErrorMessage(body []byte) string {
	if msg := gjson.GetBytes(body, "error.message"); msg.Type == gjson.String && msg.Str != "" {
		return msg.Str
	}
	if msg := gjson.GetBytes(body, "message"); msg.Type == gjson.String && msg.Str != "" {
		return msg.Str
	}
	return string(body)
}
