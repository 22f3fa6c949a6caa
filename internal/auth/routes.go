package auth

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/strefethen/sonos-multiroom-go/internal/api"
	"github.com/strefethen/sonos-multiroom-go/internal/apperrors"
	"github.com/strefethen/sonos-multiroom-go/internal/config"
)

// RegisterRoutes wires the pairing and refresh routes to the router.
func RegisterRoutes(router chi.Router, store *PairingStore, cfg config.Config, logger *log.Logger) {
	if logger == nil {
		logger = log.Default()
	}

	router.Method(http.MethodPost, "/v1/auth/pair/start", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		store.CleanupExpired()

		pairCode, err := store.Create(api.GetRequestID(r))
		if err != nil {
			return apperrors.NewInternalError("Failed to generate pairing code")
		}

		// The code is only shown in the server log so pairing needs console access.
		logger.Printf("AUTH: pairing code generated - enter this on your control surface: %s", pairCode)

		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object":       "pairing_start",
			"pairing_hint": "Enter the pairing code shown in the server log",
		})
	}))

	router.Method(http.MethodPost, "/v1/auth/pair/complete", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		var body struct {
			PairCode    string `json:"pair_code"`
			SurfaceName string `json:"surface_name"`
			Scope       string `json:"scope"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return apperrors.NewValidationError("pair_code is required", nil)
		}
		if body.PairCode == "" {
			return apperrors.NewValidationError("pair_code is required", nil)
		}
		if body.SurfaceName == "" {
			return apperrors.NewValidationError("surface_name is required", nil)
		}

		scope, err := ParseScope(body.Scope)
		if err != nil {
			return apperrors.NewValidationError("scope must be control or monitor", map[string]any{"scope": body.Scope})
		}

		found, expired := store.Redeem(body.PairCode)
		if !found {
			return apperrors.NewUnauthorizedError("Invalid or expired pairing code", apperrors.ErrorCodeAuthPairingInvalid)
		}
		if expired {
			return apperrors.NewUnauthorizedError("Pairing code has expired", apperrors.ErrorCodeAuthPairingExpired)
		}

		tokens, err := GenerateTokenPair(cfg, TokenPayload{
			Sub:         uuid.NewString(),
			SurfaceName: body.SurfaceName,
			Scope:       scope,
		})
		if err != nil {
			return apperrors.NewInternalError("Failed to generate token pair")
		}
		logger.Printf("AUTH: paired control surface %q (%s)", body.SurfaceName, scope)

		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":         "token_pair",
			"access_token":   tokens.AccessToken,
			"refresh_token":  tokens.RefreshToken,
			"expires_in_sec": tokens.ExpiresInSec,
			"scope":          scope,
		})
	}))

	router.Method(http.MethodPost, "/v1/auth/refresh", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken == "" {
			return apperrors.NewValidationError("refresh_token is required", nil)
		}

		accessToken, expiresIn, err := RefreshAccessToken(cfg, body.RefreshToken)
		if err != nil {
			switch {
			case errors.Is(err, ErrTokenExpired):
				return apperrors.NewUnauthorizedError("Refresh token has expired", apperrors.ErrorCodeAuthTokenExpired)
			case errors.Is(err, ErrTokenType):
				return apperrors.NewUnauthorizedError("Invalid token: expected refresh token", apperrors.ErrorCodeAuthTokenInvalid)
			default:
				return apperrors.NewUnauthorizedError("Invalid refresh token", apperrors.ErrorCodeAuthTokenInvalid)
			}
		}

		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":         "token_refresh",
			"access_token":   accessToken,
			"expires_in_sec": expiresIn,
		})
	}))
}
