package httpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/creatordash/internal/infrastructure/httpserver"
	"github.com/lllypuk/creatordash/internal/middleware"
	"github.com/lllypuk/creatordash/tests/testutil"
)

func denyAll(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Request().Header.Get(echo.HeaderAuthorization) == "" {
			return c.NoContent(http.StatusUnauthorized)
		}
		return next(c)
	}
}

func newRouter(config httpserver.RouterConfig) *httpserver.Router {
	config.Logger = testutil.DiscardLogger()
	return httpserver.NewRouter(echo.New(), config)
}

func serve(r *httpserver.Router, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	r.Echo().ServeHTTP(rec, req)
	return rec
}

func TestDefaultRouterConfig(t *testing.T) {
	config := httpserver.DefaultRouterConfig()

	assert.NotNil(t, config.Logger)
	assert.Equal(t, "/api/v1", config.APIPrefix)
}

func TestRouter_APIGroupRequiresAuth(t *testing.T) {
	r := newRouter(httpserver.RouterConfig{AuthMiddleware: denyAll})
	r.API().GET("/dashboard", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/api/v1/dashboard", nil).Code)

	rec := serve(r, http.MethodGet, "/api/v1/dashboard", http.Header{echo.HeaderAuthorization: {"Bearer x"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestRouter_NoAuthMiddleware(t *testing.T) {
	r := newRouter(httpserver.RouterConfig{APIPrefix: "/v2"})
	r.API().GET("/stats", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/v2/stats", nil).Code)
}

func TestRouter_RateLimitAfterAuth(t *testing.T) {
	store := middleware.NewMemoryRateLimitStore()
	r := newRouter(httpserver.RouterConfig{
		AuthMiddleware: denyAll,
		RateLimitMiddleware: middleware.RateLimit(middleware.RateLimitConfig{
			Logger: testutil.DiscardLogger(),
			Store:  store,
			Limit:  1,
		}),
	})
	r.API().GET("/stats", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// rejected by auth before the limiter counts
	for range 3 {
		assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/api/v1/stats", nil).Code)
	}

	authed := http.Header{echo.HeaderAuthorization: {"Bearer x"}}
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/v1/stats", authed).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, http.MethodGet, "/api/v1/stats", authed).Code)
}

func TestRouter_RecoversPanics(t *testing.T) {
	r := newRouter(httpserver.RouterConfig{})
	r.API().GET("/boom", func(echo.Context) error { panic("kaboom") })

	rec := serve(r, http.MethodGet, "/api/v1/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}

type fixedChecker struct {
	ready      bool
	components []httpserver.ComponentStatus
}

func (f fixedChecker) IsReady(context.Context) bool { return f.ready }

func (f fixedChecker) GetHealthStatus(context.Context) []httpserver.ComponentStatus {
	return f.components
}

func TestRouter_HealthEndpoints(t *testing.T) {
	r := newRouter(httpserver.RouterConfig{AuthMiddleware: denyAll})
	r.RegisterHealthEndpoints(fixedChecker{
		ready: false,
		components: []httpserver.ComponentStatus{
			{Name: "backend", Status: httpserver.StatusUnhealthy, Message: "down"},
		},
	})

	rec := serve(r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	rec = serve(r, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = serve(r, http.MethodGet, "/health/details", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body httpserver.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, httpserver.StatusUnhealthy, body.Status)
	require.Len(t, body.Components, 1)
	assert.Equal(t, "down", body.Components[0].Message)
}

func TestChecks(t *testing.T) {
	ok := func(context.Context) error { return nil }
	fail := func(context.Context) error { return errors.New("connection refused") }

	t.Run("non-critical failure degrades", func(t *testing.T) {
		checks := httpserver.Checks{
			{Name: "backend", Probe: ok, Critical: true},
			{Name: "redis", Probe: fail},
		}

		assert.True(t, checks.IsReady(context.Background()))
		assert.Equal(t, []httpserver.ComponentStatus{
			{Name: "backend", Status: httpserver.StatusHealthy},
			{Name: "redis", Status: httpserver.StatusDegraded, Message: "connection refused"},
		}, checks.GetHealthStatus(context.Background()))
	})

	t.Run("critical failure", func(t *testing.T) {
		checks := httpserver.Checks{{Name: "backend", Probe: fail, Critical: true}}

		assert.False(t, checks.IsReady(context.Background()))
		assert.Equal(t, httpserver.StatusUnhealthy, checks.GetHealthStatus(context.Background())[0].Status)
	})
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "creatordash_test_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Inc()

	r := newRouter(httpserver.RouterConfig{AuthMiddleware: denyAll})
	r.RegisterMetricsEndpoint(registry)

	rec := serve(r, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "creatordash_test_total 1")
}

type pingRegistrar struct{}

func (pingRegistrar) RegisterRoutes(g *echo.Group) {
	g.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })
}

func TestRouter_RegisterAll(t *testing.T) {
	r := newRouter(httpserver.RouterConfig{})
	r.RegisterAll(pingRegistrar{})

	rec := serve(r, http.MethodGet, "/api/v1/ping", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
}
