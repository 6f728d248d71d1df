package models

import (
	"fmt"
	"net/http"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeValidation represents malformed request errors (400)
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeAuthentication represents authentication errors (401)
	ErrorTypeAuthentication ErrorType = "authentication"
	// ErrorTypeNotFound represents resource not found errors (404)
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeRateLimit represents admission rejections (429)
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeAdapterConfig represents missing provider credentials or other
	// deployment defects (500). Distinct from authentication: these are not
	// the client's fault.
	ErrorTypeAdapterConfig ErrorType = "adapter_config"
	// ErrorTypeUpstream represents provider transport/HTTP failures (502)
	ErrorTypeUpstream ErrorType = "upstream"
	// ErrorTypeInternal represents unexpected defects (500)
	ErrorTypeInternal ErrorType = "internal"
)

// AppError is the structured error carried through the request pipeline and
// mapped to the uniform JSON envelope at the HTTP boundary.
type AppError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	// ProviderStatus holds the upstream HTTP status for upstream errors.
	ProviderStatus int   `json:"provider_status,omitempty"`
	StatusCode     int   `json:"-"`
	Cause          error `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// GetStatusCode returns the HTTP status code for the error
func (e *AppError) GetStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}
	switch e.Type {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewValidationError creates a validation error
func NewValidationError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NewAuthenticationError creates an authentication error
func NewAuthenticationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewNotFoundError creates a not-found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewRateLimitError creates an admission rejection error
func NewRateLimitError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeRateLimit,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
	}
}

// NewAdapterConfigError reports missing or unusable provider configuration.
func NewAdapterConfigError(provider, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeAdapterConfig,
		Message:    fmt.Sprintf("provider %s: %s", provider, message),
		StatusCode: http.StatusInternalServerError,
	}
}

// NewUpstreamError wraps a provider transport or HTTP failure. providerStatus
// is the upstream status code when known, 0 otherwise.
func NewUpstreamError(provider string, providerStatus int, message string, cause error) *AppError {
	return &AppError{
		Type:           ErrorTypeUpstream,
		Message:        fmt.Sprintf("provider %s error: %s", provider, message),
		ProviderStatus: providerStatus,
		StatusCode:     http.StatusBadGateway,
		Cause:          cause,
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// ErrorBody is the inner object of the uniform error envelope.
type ErrorBody struct {
	Message    string `json:"message"`
	Type       string `json:"type"`
	StatusCode int    `json:"status_code"`
}

// ErrorEnvelope is the JSON body returned for every failed request.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// SanitizeError converts any error to an AppError safe for external
// consumption. Unclassified errors become generic internal errors so raw
// failure detail never reaches the caller.
func SanitizeError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Type:           appErr.Type,
			Message:        appErr.Message,
			ProviderStatus: appErr.ProviderStatus,
			StatusCode:     appErr.GetStatusCode(),
		}
	}
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    "an unexpected error occurred",
		StatusCode: http.StatusInternalServerError,
	}
}

// Envelope renders the error as the uniform wire envelope.
func (e *AppError) Envelope() ErrorEnvelope {
	return ErrorEnvelope{Error: ErrorBody{
		Message:    e.Message,
		Type:       string(e.Type),
		StatusCode: e.GetStatusCode(),
	}}
}
