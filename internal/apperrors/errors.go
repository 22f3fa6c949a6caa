package apperrors

import (
	"errors"
	"net/http"
)

// =============================================================================
// Error Codes
// =============================================================================

type ErrorCode string

const (
	ErrorCodeInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrorCodeValidationError    ErrorCode = "VALIDATION_ERROR"
	ErrorCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrorCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrorCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrorCodeZoneNotFound       ErrorCode = "ZONE_NOT_FOUND"
	ErrorCodeEventNotFound      ErrorCode = "EVENT_NOT_FOUND"
	ErrorCodeInvalidEventType   ErrorCode = "INVALID_EVENT_TYPE"
	ErrorCodeAuthPairingExpired ErrorCode = "AUTH_PAIRING_EXPIRED"
	ErrorCodeAuthPairingInvalid ErrorCode = "AUTH_PAIRING_INVALID"
	ErrorCodeAuthTokenExpired   ErrorCode = "AUTH_TOKEN_EXPIRED"
	ErrorCodeAuthTokenInvalid   ErrorCode = "AUTH_TOKEN_INVALID"
	ErrorCodeAuthScopeDenied    ErrorCode = "AUTH_SCOPE_DENIED"
)

// =============================================================================
// Stripe API Error Types
// =============================================================================

// ErrorType categorizes errors following Stripe API conventions.
type ErrorType string

const (
	// ErrorTypeInvalidRequest indicates invalid parameters, missing required fields, etc.
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	// ErrorTypeAPIError indicates an internal API error.
	ErrorTypeAPIError ErrorType = "api_error"
	// ErrorTypeAuthError indicates authentication or authorization failure.
	ErrorTypeAuthError ErrorType = "authentication_error"
)

// StripeErrorBody is the Stripe-style error payload.
// Format: {"type": "invalid_request_error", "code": "NOT_FOUND", "message": "..."}
type StripeErrorBody struct {
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// AppError is the base error type for HTTP responses.
type AppError struct {
	Code       ErrorCode
	Message    string
	StatusCode int
	Details    map[string]any
}

func (err *AppError) Error() string {
	return err.Message
}

// StripeErrorBody returns the error in Stripe API format.
func (err *AppError) StripeErrorBody() StripeErrorBody {
	errType := ErrorTypeAPIError
	switch {
	case err.StatusCode == http.StatusUnauthorized || err.StatusCode == http.StatusForbidden:
		errType = ErrorTypeAuthError
	case err.StatusCode >= 400 && err.StatusCode < 500:
		errType = ErrorTypeInvalidRequest
	}

	return StripeErrorBody{
		Type:    errType,
		Code:    string(err.Code),
		Message: err.Message,
		Details: err.Details,
	}
}

func NewAppError(code ErrorCode, message string, statusCode int, details map[string]any) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Details:    details,
	}
}

func NewValidationError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodeValidationError, message, http.StatusBadRequest, details)
}

func NewUnauthorizedError(message string, code ...ErrorCode) *AppError {
	errCode := ErrorCodeUnauthorized
	if len(code) > 0 {
		errCode = code[0]
	}
	return NewAppError(errCode, message, http.StatusUnauthorized, nil)
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return NewAppError(code, message, http.StatusForbidden, nil)
}

func NewNotFoundResource(code ErrorCode, resource, id string) *AppError {
	message := resource + " not found"
	details := map[string]any{
		"resource": resource,
	}
	if id != "" {
		message = resource + " not found: " + id
		details["id"] = id
	}
	return NewAppError(code, message, http.StatusNotFound, details)
}

func NewServiceUnavailableError(message string) *AppError {
	return NewAppError(ErrorCodeServiceUnavailable, message, http.StatusServiceUnavailable, nil)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrorCodeInternalError, message, http.StatusInternalServerError, nil)
}

// EnsureAppError converts an arbitrary error into an AppError, unwrapping
// when an AppError sits inside a wrapped chain.
func EnsureAppError(err error) *AppError {
	if err == nil {
		return NewInternalError("Unknown error")
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError("Internal server error")
}
