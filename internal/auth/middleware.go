package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/strefethen/sonos-multiroom-go/internal/api"
	"github.com/strefethen/sonos-multiroom-go/internal/apperrors"
	"github.com/strefethen/sonos-multiroom-go/internal/config"
)

var publicRoutes = map[string]struct{}{
	"/v1/auth/pair/start":    {},
	"/v1/auth/pair/complete": {},
	"/v1/auth/refresh":       {},
}

// Prefixes served without credentials. Players send GENA NOTIFY unauthenticated.
var publicPrefixes = []string{
	"/v1/health",
	"/v1/openapi",
	"/upnp/notify",
}

// streamPaths accept the token as a query parameter, since browsers
// cannot set headers on websocket upgrades.
var streamPaths = map[string]struct{}{
	"/v1/zones/stream": {},
}

// Middleware validates JWT tokens for protected routes.
func Middleware(cfg config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicRoute(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			if isTestModeRequest(r, cfg) {
				user := User{
					Sub:         "test-surface",
					SurfaceName: "Test Surface",
					Scope:       ScopeControl,
					Type:        TokenTypeAccess,
				}
				next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
				return
			}

			token, appErr := bearerToken(r)
			if appErr != nil {
				api.WriteError(w, r, appErr)
				return
			}

			payload, err := VerifyToken(cfg, token)
			if err != nil {
				if errors.Is(err, ErrTokenExpired) {
					api.WriteError(w, r, apperrors.NewUnauthorizedError("Token has expired", apperrors.ErrorCodeAuthTokenExpired))
					return
				}
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Invalid token", apperrors.ErrorCodeAuthTokenInvalid))
				return
			}

			if payload.Type != TokenTypeAccess {
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Invalid token type", apperrors.ErrorCodeAuthTokenInvalid))
				return
			}

			user := User{
				Sub:         payload.Sub,
				SurfaceName: payload.SurfaceName,
				Scope:       payload.Scope,
				Type:        payload.Type,
			}
			if !user.CanControl() && !readOnlyMethod(r.Method) {
				api.WriteError(w, r, apperrors.NewForbiddenError(
					"Surface "+user.SurfaceName+" is paired for monitoring only", apperrors.ErrorCodeAuthScopeDenied))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func bearerToken(r *http.Request) (string, *apperrors.AppError) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if _, ok := streamPaths[r.URL.Path]; ok {
			if token := r.URL.Query().Get("access_token"); token != "" {
				return token, nil
			}
		}
		return "", apperrors.NewUnauthorizedError("Missing Authorization header")
	}
	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || token == "" {
		return "", apperrors.NewUnauthorizedError("Invalid Authorization header format")
	}
	return token, nil
}

func isPublicRoute(path string) bool {
	if _, ok := publicRoutes[path]; ok {
		return true
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func readOnlyMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}

func isTestModeRequest(r *http.Request, cfg config.Config) bool {
	if !cfg.AllowTestMode {
		return false
	}
	if cfg.NodeEnv != "development" {
		return false
	}
	return r.Header.Get("x-test-mode") == "true"
}
