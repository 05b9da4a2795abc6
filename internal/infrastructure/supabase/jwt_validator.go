package supabase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// JWT validation errors.
var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrInvalidClaims   = errors.New("invalid claims")
	ErrMissingSubject  = errors.New("missing subject claim")
	ErrTokenExpired    = errors.New("token expired")
	ErrInvalidIssuer   = errors.New("invalid issuer")
	ErrInvalidAudience = errors.New("invalid audience")
	ErrJWKSFetchFailed = errors.New("failed to fetch JWKS")
)

// Default validator settings.
const (
	DefaultAudience        = "authenticated"
	DefaultLeeway          = 30 * time.Second
	DefaultRefreshInterval = 1 * time.Hour
)

// TokenClaims are the validated claims of a Supabase access token.
type TokenClaims struct {
	UserID       string
	Email        string
	Role         string
	SessionID    string
	UserMetadata map[string]any
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// JWTValidatorConfig configures a JWTValidator.
type JWTValidatorConfig struct {
	// URL is the project URL; the issuer is URL + "/auth/v1".
	URL string
	// JWTSecret selects legacy HS256 validation. When empty, keys come from the project's JWKS.
	JWTSecret       string
	Audience        string
	Leeway          time.Duration
	RefreshInterval time.Duration
	Logger          *slog.Logger
}

// JWTValidator validates Supabase access tokens offline.
type JWTValidator struct {
	keyfunc   jwt.Keyfunc
	methods   []string
	config    JWTValidatorConfig
	issuerURL string
	logger    *slog.Logger
	cancel    context.CancelFunc
}

// NewJWTValidator creates a validator. In JWKS mode the key set is fetched now and refreshed
// in the background until Close.
func NewJWTValidator(config JWTValidatorConfig) (*JWTValidator, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("%w: URL is required", ErrJWKSFetchFailed)
	}
	if config.Audience == "" {
		config.Audience = DefaultAudience
	}
	if config.Leeway == 0 {
		config.Leeway = DefaultLeeway
	}
	if config.RefreshInterval == 0 {
		config.RefreshInterval = DefaultRefreshInterval
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	v := &JWTValidator{
		config:    config,
		issuerURL: strings.TrimRight(config.URL, "/") + "/auth/v1",
		logger:    logger,
	}

	if config.JWTSecret != "" {
		secret := []byte(config.JWTSecret)
		v.keyfunc = func(*jwt.Token) (any, error) { return secret, nil }
		v.methods = []string{jwt.SigningMethodHS256.Alg()}
		logger.Info("initializing JWT validator", slog.String("mode", "hs256"))
		return v, nil
	}

	jwksURL := v.issuerURL + "/.well-known/jwks.json"
	logger.Info("initializing JWT validator",
		slog.String("mode", "jwks"),
		slog.String("jwks_url", jwksURL),
		slog.Duration("refresh_interval", config.RefreshInterval),
	)

	ctx, cancel := context.WithCancel(context.Background())

	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Ctx:             ctx,
		RefreshInterval: config.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("failed to refresh JWKS", slog.Any("error", err))
		},
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrJWKSFetchFailed, err)
	}

	jwks, err := keyfunc.New(keyfunc.Options{Ctx: ctx, Storage: storage})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrJWKSFetchFailed, err)
	}

	v.keyfunc = jwks.Keyfunc
	v.methods = []string{
		jwt.SigningMethodES256.Alg(),
		jwt.SigningMethodRS256.Alg(),
	}
	v.cancel = cancel
	return v, nil
}

// Validate checks signature, expiry, issuer and audience and returns the claims.
func (v *JWTValidator) Validate(_ context.Context, tokenString string) (*TokenClaims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.Parse(tokenString, v.keyfunc,
		jwt.WithValidMethods(v.methods),
		jwt.WithLeeway(v.config.Leeway),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(v.issuerURL),
		jwt.WithAudience(v.config.Audience),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, fmt.Errorf("%w: %w", ErrInvalidIssuer, err)
		case errors.Is(err, jwt.ErrTokenInvalidAudience):
			return nil, fmt.Errorf("%w: %w", ErrInvalidAudience, err)
		default:
			return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
		}
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidClaims
	}
	return extractClaims(claims)
}

func extractClaims(claims jwt.MapClaims) (*TokenClaims, error) {
	tc := &TokenClaims{}

	tc.UserID, _ = claims["sub"].(string)
	if tc.UserID == "" {
		return nil, ErrMissingSubject
	}

	tc.Email, _ = claims["email"].(string)
	tc.Role, _ = claims["role"].(string)
	tc.SessionID, _ = claims["session_id"].(string)
	tc.UserMetadata, _ = claims["user_metadata"].(map[string]any)

	if iat, ok := claims["iat"].(float64); ok {
		tc.IssuedAt = time.Unix(int64(iat), 0)
	}
	if exp, ok := claims["exp"].(float64); ok {
		tc.ExpiresAt = time.Unix(int64(exp), 0)
	}

	return tc, nil
}

// Close stops the background JWKS refresh.
func (v *JWTValidator) Close() error {
	if v.cancel != nil {
		v.logger.Info("closing JWT validator")
		v.cancel()
	}
	return nil
}
