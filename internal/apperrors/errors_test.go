package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStripeErrorBodyType(t *testing.T) {
	require.Equal(t, ErrorTypeInvalidRequest, NewValidationError("bad", nil).StripeErrorBody().Type)
	require.Equal(t, ErrorTypeAuthError, NewUnauthorizedError("nope").StripeErrorBody().Type)
	require.Equal(t, ErrorTypeAPIError, NewInternalError("boom").StripeErrorBody().Type)
	require.Equal(t, ErrorTypeAPIError, NewServiceUnavailableError("down").StripeErrorBody().Type)
}

func TestNewUnauthorizedErrorCustomCode(t *testing.T) {
	err := NewUnauthorizedError("expired", ErrorCodeAuthTokenExpired)
	require.Equal(t, ErrorCodeAuthTokenExpired, err.Code)
	require.Equal(t, http.StatusUnauthorized, err.StatusCode)
}

func TestNewNotFoundResource(t *testing.T) {
	err := NewNotFoundResource(ErrorCodeZoneNotFound, "Zone", "RINCON_1")
	require.Equal(t, ErrorCodeZoneNotFound, err.Code)
	require.Equal(t, http.StatusNotFound, err.StatusCode)
	require.Equal(t, "Zone not found: RINCON_1", err.Message)
	require.Equal(t, "RINCON_1", err.Details["id"])

	err = NewNotFoundResource(ErrorCodeNotFound, "Zone", "")
	require.Equal(t, "Zone not found", err.Message)
	require.NotContains(t, err.Details, "id")
}

func TestEnsureAppError(t *testing.T) {
	require.Equal(t, ErrorCodeInternalError, EnsureAppError(nil).Code)
	require.Equal(t, ErrorCodeInternalError, EnsureAppError(errors.New("plain")).Code)

	wrapped := fmt.Errorf("handler: %w", NewValidationError("bad volume", nil))
	appErr := EnsureAppError(wrapped)
	require.Equal(t, ErrorCodeValidationError, appErr.Code)
	require.Equal(t, http.StatusBadRequest, appErr.StatusCode)
}
