// Package core provides core types and interfaces for the custom LLM server.
package core

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorType represents the category of error returned to clients
type ErrorType string

const (
	// ErrorTypeAuthentication indicates a rejected credential (401)
	ErrorTypeAuthentication ErrorType = "authentication_error"
	// ErrorTypeInvalidRequest indicates a client error (4xx)
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	// ErrorTypeServer indicates an unexpected failure, including upstream provider failures (5xx)
	ErrorTypeServer ErrorType = "server_error"
)

// Discriminated error codes carried in the "code" field of error envelopes.
const (
	CodeMissingAuthorization       = "missing_authorization"
	CodeInvalidAuthorizationFormat = "invalid_authorization_format"
	CodeInvalidAPIKey              = "invalid_api_key"

	CodeMissingJSON        = "missing_json"
	CodeMissingMessages    = "missing_messages"
	CodeInvalidMessages    = "invalid_messages"
	CodeInvalidTemperature = "invalid_temperature"
	CodeRequestTooLarge    = "request_too_large"

	CodeInternalError = "internal_error"
	CodeProviderError = "provider_error"
)

// GatewayError is the base error type for all errors surfaced over HTTP
type GatewayError struct {
	Type       ErrorType `json:"type"`
	Code       string    `json:"code"`
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
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts the error to the OpenAI-style error envelope
func (e *GatewayError) ToJSON() map[string]interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"message": e.Message,
			"type":    e.Type,
			"code":    e.Code,
		},
	}
}

// ToVapiJSON converts the error to the flat envelope used by the Vapi endpoint
func (e *GatewayError) ToVapiJSON() map[string]string {
	return map[string]string{"error": e.Message}
}

// NewAuthenticationError creates a new authentication error (401)
func NewAuthenticationError(code, message string) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeAuthentication,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewInvalidRequestError creates a new invalid request error (400)
func NewInvalidRequestError(code, message string, err error) *GatewayError {
	return NewInvalidRequestErrorWithStatus(http.StatusBadRequest, code, message, err)
}

// NewInvalidRequestErrorWithStatus creates a new invalid request error with a specific status code
func NewInvalidRequestErrorWithStatus(statusCode int, code, message string, err error) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeInvalidRequest,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// NewServerError creates a new internal error (500)
func NewServerError(message string, err error) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeServer,
		Code:       CodeInternalError,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewProviderError creates an error for a failed upstream call.
// Upstream failures are reported to clients as 500s.
func NewProviderError(provider string, message string, err error) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeServer,
		Code:       CodeProviderError,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Provider:   provider,
		Err:        err,
	}
}

// ParseErrorResponse parses an error body returned by an OpenAI-compatible server
// (an upstream provider or this server) and returns the matching GatewayError.
func ParseErrorResponse(provider string, statusCode int, body []byte) *GatewayError {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}

	message := string(body)
	code := ""
	errType := ""
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Error) > 0 {
		var detailed struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    any    `json:"code"`
		}
		var flat string
		switch {
		case json.Unmarshal(envelope.Error, &detailed) == nil && detailed.Message != "":
			message = detailed.Message
			errType = detailed.Type
			if s, ok := detailed.Code.(string); ok {
				code = s
			}
		case json.Unmarshal(envelope.Error, &flat) == nil && flat != "":
			message = flat
		}
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		e := NewAuthenticationError(code, message)
		e.StatusCode = statusCode
		e.Provider = provider
		return e
	case statusCode >= 400 && statusCode < 500:
		e := NewInvalidRequestErrorWithStatus(statusCode, code, message, nil)
		e.Provider = provider
		return e
	default:
		e := NewProviderError(provider, message, nil)
		if errType == string(ErrorTypeServer) && code != "" {
			e.Code = code
		}
		if statusCode >= 500 {
			e.StatusCode = statusCode
		}
		return e
	}
}
