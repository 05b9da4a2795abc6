package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lllypuk/creatordash/internal/domain/uuid"
)

// Context keys for authentication data.
type contextKey string

const (
	// ContextKeyUserID is the context key for user ID.
	ContextKeyUserID contextKey = "user_id"

	// ContextKeyEmail is the context key for user email.
	ContextKeyEmail contextKey = "email"

	// ContextKeyRole is the context key for the backend role claim.
	ContextKeyRole contextKey = "role"

	// ContextKeyAccessToken is the context key for the raw bearer token.
	ContextKeyAccessToken contextKey = "access_token"
)

// TokenQueryParam carries the access token for clients that cannot set headers (browser websockets).
const TokenQueryParam = "token"

// Auth errors.
var (
	ErrMissingAuthHeader = errors.New("missing authorization header")
	ErrInvalidAuthHeader = errors.New("invalid authorization header format")
	ErrInvalidToken      = errors.New("invalid token")
	ErrTokenExpired      = errors.New("token expired")
)

// TokenClaims represents the claims extracted from an access token.
type TokenClaims struct {
	// UserID is the authenticated user's id (the token subject).
	UserID uuid.UUID

	// Email is the user's email address.
	Email string

	// Role is the backend role, normally "authenticated".
	Role string

	// ExpiresAt is the token expiration time.
	ExpiresAt time.Time
}

// TokenValidator defines the interface for validating access tokens.
type TokenValidator interface {
	// ValidateToken validates a token and returns the claims.
	ValidateToken(ctx context.Context, token string) (*TokenClaims, error)
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	// Logger is the structured logger for auth events.
	Logger *slog.Logger

	// TokenValidator validates access tokens.
	TokenValidator TokenValidator

	// SkipPaths are paths that don't require authentication.
	SkipPaths []string

	// AllowQueryToken enables the ?token= fallback when no Authorization header is present.
	AllowQueryToken bool
}

// DefaultAuthConfig returns an AuthConfig with sensible defaults.
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Logger:          slog.Default(),
		SkipPaths:       []string{"/health", "/ready"},
		AllowQueryToken: true,
	}
}

// Auth returns an authentication middleware with the given configuration.
func Auth(config AuthConfig) echo.MiddlewareFunc {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	skipPaths := make(map[string]struct{}, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipPaths[path] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path

			if _, ok := skipPaths[path]; ok {
				return next(c)
			}

			token, err := extractToken(c, config.AllowQueryToken)
			if err != nil {
				return respondAuthError(c, err)
			}

			if config.TokenValidator == nil {
				config.Logger.Error("token validator not configured")
				return respondAuthError(c, ErrInvalidToken)
			}

			claims, err := config.TokenValidator.ValidateToken(c.Request().Context(), token)
			if err != nil {
				config.Logger.Warn("token validation failed",
					slog.String("error", err.Error()),
					slog.String("path", path),
					slog.String("remote_ip", c.RealIP()),
				)
				return respondAuthError(c, err)
			}

			enrichContext(c, claims, token)

			config.Logger.Debug("user authenticated",
				slog.String("user_id", claims.UserID.String()),
				slog.String("path", path),
			)

			return next(c)
		}
	}
}

// extractToken reads the bearer token, falling back to the token query parameter.
func extractToken(c echo.Context, allowQuery bool) (string, error) {
	if header := c.Request().Header.Get(echo.HeaderAuthorization); header != "" {
		return extractBearerToken(header)
	}

	if allowQuery {
		if token := c.QueryParam(TokenQueryParam); token != "" {
			return token, nil
		}
	}

	return "", ErrMissingAuthHeader
}

// extractBearerToken extracts the token from a Bearer authorization header.
func extractBearerToken(authHeader string) (string, error) {
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return "", ErrInvalidAuthHeader
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
	if token == "" {
		return "", ErrInvalidAuthHeader
	}

	return token, nil
}

func enrichContext(c echo.Context, claims *TokenClaims, token string) {
	c.Set(string(ContextKeyUserID), claims.UserID)
	c.Set(string(ContextKeyEmail), claims.Email)
	c.Set(string(ContextKeyRole), claims.Role)
	c.Set(string(ContextKeyAccessToken), token)
}

// respondAuthError sends an authentication error response.
func respondAuthError(c echo.Context, err error) error {
	code := "UNAUTHORIZED"
	message := "Authentication required"

	switch {
	case errors.Is(err, ErrMissingAuthHeader):
		message = "Missing authorization header"
	case errors.Is(err, ErrInvalidAuthHeader):
		message = "Invalid authorization header format"
	case errors.Is(err, ErrTokenExpired):
		message = "Token has expired"
		code = "TOKEN_EXPIRED"
	case errors.Is(err, ErrInvalidToken):
		message = "Invalid token"
	}

	return c.JSON(http.StatusUnauthorized, map[string]any{
		"success": false,
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// GetUserID extracts the user ID from the echo context.
func GetUserID(c echo.Context) uuid.UUID {
	if id, ok := c.Get(string(ContextKeyUserID)).(uuid.UUID); ok {
		return id
	}
	return uuid.UUID("")
}

// GetEmail extracts the email from the echo context.
func GetEmail(c echo.Context) string {
	if email, ok := c.Get(string(ContextKeyEmail)).(string); ok {
		return email
	}
	return ""
}

// GetRole extracts the backend role from the echo context.
func GetRole(c echo.Context) string {
	if role, ok := c.Get(string(ContextKeyRole)).(string); ok {
		return role
	}
	return ""
}

// GetAccessToken returns the token the request was authenticated with.
func GetAccessToken(c echo.Context) string {
	if token, ok := c.Get(string(ContextKeyAccessToken)).(string); ok {
		return token
	}
	return ""
}

// StaticTokenValidator accepts "dev-token-<user uuid>" tokens. Mock mode only.
type StaticTokenValidator struct {
	ttl time.Duration
}

// DevTokenPrefix prefixes tokens accepted by StaticTokenValidator.
const DevTokenPrefix = "dev-token-"

// NewStaticTokenValidator creates a new static token validator.
func NewStaticTokenValidator() *StaticTokenValidator {
	const devTokenExpiration = 24 * time.Hour
	return &StaticTokenValidator{ttl: devTokenExpiration}
}

// ValidateToken parses the user id out of a dev token.
func (v *StaticTokenValidator) ValidateToken(_ context.Context, token string) (*TokenClaims, error) {
	if !strings.HasPrefix(token, DevTokenPrefix) {
		return nil, ErrInvalidToken
	}

	id, err := uuid.ParseUUID(strings.TrimPrefix(token, DevTokenPrefix))
	if err != nil {
		return nil, ErrInvalidToken
	}

	return &TokenClaims{
		UserID:    id,
		Email:     "dev-" + id.String() + "@example.com",
		Role:      "authenticated",
		ExpiresAt: time.Now().Add(v.ttl),
	}, nil
}
