package middleware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/creatordash/internal/domain/uuid"
	"github.com/lllypuk/creatordash/internal/middleware"
	"github.com/lllypuk/creatordash/tests/testutil"
)

type mockTokenValidator struct {
	claims *middleware.TokenClaims
	err    error
	seen   []string
}

func (m *mockTokenValidator) ValidateToken(_ context.Context, token string) (*middleware.TokenClaims, error) {
	m.seen = append(m.seen, token)
	return m.claims, m.err
}

var testUserID = uuid.MustParseUUID("0b7c4d2e-9f31-4a8e-b6d5-3c2f1e0a9b87")

type authProbe struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Token  string `json:"token"`
}

func newAuthEcho(config middleware.AuthConfig) *echo.Echo {
	config.Logger = testutil.DiscardLogger()

	e := echo.New()
	e.Use(middleware.Auth(config))
	probe := func(c echo.Context) error {
		return c.JSON(http.StatusOK, authProbe{
			UserID: middleware.GetUserID(c).String(),
			Email:  middleware.GetEmail(c),
			Role:   middleware.GetRole(c),
			Token:  middleware.GetAccessToken(c),
		})
	}
	e.GET("/api/v1/dashboard", probe)
	e.GET("/api/v1/ws", probe)
	e.GET("/health", probe)
	return e
}

func decodeAuthError(t *testing.T, rec *httptest.ResponseRecorder) (string, string) {
	t.Helper()

	var body struct {
		Success bool              `json:"success"`
		Error   map[string]string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	return body.Error["code"], body.Error["message"]
}

func validClaims() *middleware.TokenClaims {
	return &middleware.TokenClaims{
		UserID:    testUserID,
		Email:     "creator@example.com",
		Role:      "authenticated",
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func TestDefaultAuthConfig(t *testing.T) {
	config := middleware.DefaultAuthConfig()

	assert.NotNil(t, config.Logger)
	assert.ElementsMatch(t, []string{"/health", "/ready"}, config.SkipPaths)
	assert.True(t, config.AllowQueryToken)
}

func TestAuth_BearerToken(t *testing.T) {
	validator := &mockTokenValidator{claims: validClaims()}
	e := newAuthEcho(middleware.AuthConfig{TokenValidator: validator})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer header-token")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var probe authProbe
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &probe))
	assert.Equal(t, authProbe{
		UserID: testUserID.String(),
		Email:  "creator@example.com",
		Role:   "authenticated",
		Token:  "header-token",
	}, probe)
	assert.Equal(t, []string{"header-token"}, validator.seen)
}

func TestAuth_QueryToken(t *testing.T) {
	validator := &mockTokenValidator{claims: validClaims()}

	t.Run("allowed", func(t *testing.T) {
		e := newAuthEcho(middleware.AuthConfig{TokenValidator: validator, AllowQueryToken: true})

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ws?token=query-token", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var probe authProbe
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &probe))
		assert.Equal(t, "query-token", probe.Token)
	})

	t.Run("disabled", func(t *testing.T) {
		e := newAuthEcho(middleware.AuthConfig{TokenValidator: validator})

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ws?token=query-token", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		_, message := decodeAuthError(t, rec)
		assert.Equal(t, "Missing authorization header", message)
	})

	t.Run("header wins", func(t *testing.T) {
		validator.seen = nil
		e := newAuthEcho(middleware.AuthConfig{TokenValidator: validator, AllowQueryToken: true})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/ws?token=query-token", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer header-token")
		e.ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, []string{"header-token"}, validator.seen)
	})
}

func TestAuth_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		validator *mockTokenValidator
		code      string
		message   string
	}{
		{
			name:      "missing header",
			validator: &mockTokenValidator{claims: validClaims()},
			code:      "UNAUTHORIZED",
			message:   "Missing authorization header",
		},
		{
			name:      "basic scheme",
			header:    "Basic dXNlcjpwYXNz",
			validator: &mockTokenValidator{claims: validClaims()},
			code:      "UNAUTHORIZED",
			message:   "Invalid authorization header format",
		},
		{
			name:      "empty bearer",
			header:    "Bearer ",
			validator: &mockTokenValidator{claims: validClaims()},
			code:      "UNAUTHORIZED",
			message:   "Invalid authorization header format",
		},
		{
			name:      "invalid token",
			header:    "Bearer bad",
			validator: &mockTokenValidator{err: middleware.ErrInvalidToken},
			code:      "UNAUTHORIZED",
			message:   "Invalid token",
		},
		{
			name:      "expired token",
			header:    "Bearer old",
			validator: &mockTokenValidator{err: middleware.ErrTokenExpired},
			code:      "TOKEN_EXPIRED",
			message:   "Token has expired",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newAuthEcho(middleware.AuthConfig{TokenValidator: tt.validator})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			code, message := decodeAuthError(t, rec)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.message, message)
		})
	}
}

func TestAuth_SkipPaths(t *testing.T) {
	validator := &mockTokenValidator{err: middleware.ErrInvalidToken}
	e := newAuthEcho(middleware.AuthConfig{TokenValidator: validator, SkipPaths: []string{"/health"}})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, validator.seen)
}

func TestAuth_NoTokenValidator(t *testing.T) {
	e := newAuthEcho(middleware.AuthConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestContextAccessorsEmpty(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	assert.True(t, middleware.GetUserID(c).IsZero())
	assert.Empty(t, middleware.GetEmail(c))
	assert.Empty(t, middleware.GetRole(c))
	assert.Empty(t, middleware.GetAccessToken(c))
}

func TestStaticTokenValidator(t *testing.T) {
	validator := middleware.NewStaticTokenValidator()
	ctx := context.Background()

	claims, err := validator.ValidateToken(ctx, middleware.DevTokenPrefix+testUserID.String())
	require.NoError(t, err)
	assert.Equal(t, testUserID, claims.UserID)
	assert.Equal(t, "authenticated", claims.Role)
	assert.True(t, claims.ExpiresAt.After(time.Now()))

	for _, token := range []string{"", "dev-token-", "dev-token-not-a-uuid", "Bearer x", testUserID.String()} {
		_, err = validator.ValidateToken(ctx, token)
		assert.ErrorIs(t, err, middleware.ErrInvalidToken, token)
	}
}
