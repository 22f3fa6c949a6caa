package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/strefethen/sonos-multiroom-go/internal/config"
)

// Token issuer and audience.
const (
	Issuer   = "sonos-multiroom"
	Audience = "sonos-multiroom-surface"
)

// TokenType describes access vs refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Scope limits what a paired surface may do. Monitor surfaces (wall
// displays, dashboards) can read zone state and stream it but cannot
// issue commands.
type Scope string

const (
	ScopeControl Scope = "control"
	ScopeMonitor Scope = "monitor"
)

// ParseScope maps a requested scope to a known one. Empty means control.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopeControl:
		return ScopeControl, nil
	case ScopeMonitor:
		return ScopeMonitor, nil
	}
	return "", fmt.Errorf("%w: %q", ErrScopeUnknown, s)
}

// TokenPayload identifies a paired control surface.
type TokenPayload struct {
	Sub         string
	SurfaceName string
	Scope       Scope
	Type        TokenType
}

// TokenPair is returned for pairing and refresh flows.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresInSec int
}

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenType    = errors.New("token has invalid type")
	ErrScopeUnknown = errors.New("unknown surface scope")
)

type tokenClaims struct {
	SurfaceName string    `json:"surfaceName"`
	Scope       Scope     `json:"scope"`
	Type        TokenType `json:"type"`
	jwt.RegisteredClaims
}

// GenerateTokenPair creates a new access and refresh token.
func GenerateTokenPair(cfg config.Config, payload TokenPayload) (TokenPair, error) {
	accessToken, err := generateToken(cfg, payload, TokenTypeAccess, cfg.JWTAccessTokenExpirySec)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := generateToken(cfg, payload, TokenTypeRefresh, cfg.JWTRefreshTokenExpirySec)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresInSec: cfg.JWTAccessTokenExpirySec,
	}, nil
}

// RefreshAccessToken validates a refresh token and returns a new access token.
func RefreshAccessToken(cfg config.Config, refreshToken string) (string, int, error) {
	payload, err := VerifyToken(cfg, refreshToken)
	if err != nil {
		return "", 0, err
	}
	if payload.Type != TokenTypeRefresh {
		return "", 0, ErrTokenType
	}
	accessToken, err := generateToken(cfg, payload, TokenTypeAccess, cfg.JWTAccessTokenExpirySec)
	if err != nil {
		return "", 0, err
	}
	return accessToken, cfg.JWTAccessTokenExpirySec, nil
}

// VerifyToken parses and validates the JWT.
func VerifyToken(cfg config.Config, token string) (TokenPayload, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithAudience(Audience),
		jwt.WithIssuer(Issuer),
	)

	claims := &tokenClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return TokenPayload{}, ErrTokenExpired
		}
		return TokenPayload{}, ErrTokenInvalid
	}
	if parsed == nil || !parsed.Valid {
		return TokenPayload{}, ErrTokenInvalid
	}

	payload := TokenPayload{
		Sub:         claims.Subject,
		SurfaceName: claims.SurfaceName,
		Scope:       claims.Scope,
		Type:        claims.Type,
	}
	if payload.Sub == "" || payload.SurfaceName == "" {
		return TokenPayload{}, ErrTokenInvalid
	}
	if payload.Scope != ScopeControl && payload.Scope != ScopeMonitor {
		return TokenPayload{}, ErrTokenInvalid
	}
	if payload.Type != TokenTypeAccess && payload.Type != TokenTypeRefresh {
		return TokenPayload{}, ErrTokenInvalid
	}

	return payload, nil
}

func generateToken(cfg config.Config, payload TokenPayload, tokenType TokenType, expirySec int) (string, error) {
	scope, err := ParseScope(string(payload.Scope))
	if err != nil {
		return "", err
	}
	now := time.Now()
	claims := tokenClaims{
		SurfaceName: payload.SurfaceName,
		Scope:       scope,
		Type:        tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   payload.Sub,
			Issuer:    Issuer,
			Audience:  []string{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expirySec) * time.Second)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}
