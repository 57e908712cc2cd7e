// Package core provides shared types and the error taxonomy for the
// OpenAI-compatible files client.
package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the type of error that occurred
type ErrorType string

const (
	// ErrorTypeTransport indicates a network-level failure (connection,
	// DNS, timeout) before any HTTP status was received
	ErrorTypeTransport ErrorType = "transport_error"
	// ErrorTypeAPI indicates a server-side error response (5xx)
	ErrorTypeAPI ErrorType = "api_error"
	// ErrorTypeRateLimit indicates a rate limit error (429)
	ErrorTypeRateLimit ErrorType = "rate_limit_error"
	// ErrorTypeInvalidRequest indicates a client error (4xx)
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	// ErrorTypeAuthentication indicates an authentication error (401)
	ErrorTypeAuthentication ErrorType = "authentication_error"
	// ErrorTypeNotFound indicates a not found error (404)
	ErrorTypeNotFound ErrorType = "not_found_error"
	// ErrorTypeSerialization indicates a 2xx body that does not decode
	// into the expected schema
	ErrorTypeSerialization ErrorType = "serialization_error"
)

// ClientError is the base error type for all failures surfaced by the client
type ClientError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code"`
	// Code and Param carry the machine-readable fields of the server's
	// error envelope when present
	Code     string `json:"code,omitempty"`
	Param    string `json:"param,omitempty"`
	Provider string `json:"provider,omitempty"`
	// Original error for debugging (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface
func (e *ClientError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *ClientError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *ClientError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	// Default status codes based on error type
	switch e.Type {
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeAPI, ErrorTypeTransport, ErrorTypeSerialization:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts the error to the OpenAI-style wire envelope
func (e *ClientError) ToJSON() map[string]interface{} {
	inner := map[string]interface{}{
		"type":    e.Type,
		"message": e.Message,
	}
	if e.Code != "" {
		inner["code"] = e.Code
	}
	if e.Param != "" {
		inner["param"] = e.Param
	}
	return map[string]interface{}{"error": inner}
}

// NewTransportError creates a transport-level error (no HTTP status received)
func NewTransportError(provider string, message string, err error) *ClientError {
	return &ClientError{
		Type:     ErrorTypeTransport,
		Message:  message,
		Provider: provider,
		Err:      err,
	}
}

// NewAPIError creates a server-side API error (5xx)
func NewAPIError(provider string, statusCode int, message string, err error) *ClientError {
	return &ClientError{
		Type:       ErrorTypeAPI,
		Message:    message,
		StatusCode: statusCode,
		Provider:   provider,
		Err:        err,
	}
}

// NewRateLimitError creates a new rate limit error (429)
func NewRateLimitError(provider string, message string) *ClientError {
	return &ClientError{
		Type:       ErrorTypeRateLimit,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
		Provider:   provider,
	}
}

// NewInvalidRequestError creates a new invalid request error (400)
func NewInvalidRequestError(message string, err error) *ClientError {
	return NewInvalidRequestErrorWithStatus(http.StatusBadRequest, message, err)
}

// NewInvalidRequestErrorWithStatus creates a new invalid request error with a specific status code
func NewInvalidRequestErrorWithStatus(statusCode int, message string, err error) *ClientError {
	return &ClientError{
		Type:       ErrorTypeInvalidRequest,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// NewAuthenticationError creates a new authentication error (401)
func NewAuthenticationError(provider string, message string) *ClientError {
	return &ClientError{
		Type:       ErrorTypeAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
		Provider:   provider,
	}
}

// NewNotFoundError creates a new not found error (404)
func NewNotFoundError(message string) *ClientError {
	return &ClientError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewSerializationError creates an error for a response body that does not
// match the expected schema
func NewSerializationError(provider string, message string, err error) *ClientError {
	return &ClientError{
		Type:     ErrorTypeSerialization,
		Message:  message,
		Provider: provider,
		Err:      err,
	}
}

// errorEnvelope is the OpenAI-style error body returned for non-2xx statuses
type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
		Param   string `json:"param"`
	} `json:"error"`
}

// ParseAPIError parses a non-2xx response and returns an appropriate ClientError
func ParseAPIError(provider string, statusCode int, body []byte, originalErr error) *ClientError {
	var envelope errorEnvelope

	message := string(body)
	var code, param string
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
		code = envelope.Error.Code
		param = envelope.Error.Param
	}
	if message == "" {
		message = http.StatusText(statusCode)
	}

	// Determine error type based on status code
	var clientErr *ClientError
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		clientErr = NewAuthenticationError(provider, message)
	case statusCode == http.StatusTooManyRequests:
		clientErr = NewRateLimitError(provider, message)
	case statusCode == http.StatusNotFound:
		clientErr = NewNotFoundError(message)
		clientErr.Provider = provider
		clientErr.Err = originalErr
	case statusCode >= 400 && statusCode < 500:
		// Other client errors keep their original status code
		clientErr = NewInvalidRequestErrorWithStatus(statusCode, message, originalErr)
		clientErr.Provider = provider
	case statusCode >= 500:
		// Preserve the original 5xx status to keep its semantic meaning
		clientErr = NewAPIError(provider, statusCode, message, originalErr)
	default:
		clientErr = NewAPIError(provider, http.StatusBadGateway, message, originalErr)
	}

	clientErr.Code = code
	clientErr.Param = param
	return clientErr
}

// IsNotFound reports whether err is a not-found API error
func IsNotFound(err error) bool {
	return hasErrorType(err, ErrorTypeNotFound)
}

// IsRateLimit reports whether err is a rate limit error
func IsRateLimit(err error) bool {
	return hasErrorType(err, ErrorTypeRateLimit)
}

// IsAuthentication reports whether err is an authentication error
func IsAuthentication(err error) bool {
	return hasErrorType(err, ErrorTypeAuthentication)
}

// IsTransport reports whether err is a transport-level failure
func IsTransport(err error) bool {
	return hasErrorType(err, ErrorTypeTransport)
}

// IsSerialization reports whether err is a response decoding failure
func IsSerialization(err error) bool {
	return hasErrorType(err, ErrorTypeSerialization)
}

func hasErrorType(err error, t ErrorType) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == t
	}
	return false
}
