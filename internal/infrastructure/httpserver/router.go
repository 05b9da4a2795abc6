package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lllypuk/creatordash/internal/middleware"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	// Logger is the structured logger for router events.
	Logger *slog.Logger

	// AuthMiddleware guards the API group.
	AuthMiddleware echo.MiddlewareFunc

	// RateLimitMiddleware, when set, applies to the API group after authentication so
	// limits are keyed per user.
	RateLimitMiddleware echo.MiddlewareFunc

	// CORSOrigins lists allowed browser origins. Empty allows any origin.
	CORSOrigins []string

	// APIPrefix is the prefix for all API routes. Default is "/api/v1".
	APIPrefix string
}

// DefaultRouterConfig returns a RouterConfig with sensible defaults.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		Logger:    slog.Default(),
		APIPrefix: "/api/v1",
	}
}

// Router wires the global middleware chain and the API group.
type Router struct {
	echo   *echo.Echo
	config RouterConfig
	logger *slog.Logger
	api    *echo.Group
}

// NewRouter creates a new router with the given configuration.
func NewRouter(e *echo.Echo, config RouterConfig) *Router {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.APIPrefix == "" {
		config.APIPrefix = "/api/v1"
	}

	r := &Router{
		echo:   e,
		config: config,
		logger: config.Logger,
	}

	// Logging sits outside recovery so a recovered panic still gets a request line.
	e.Use(middleware.Logging(middleware.LoggingConfig{
		Logger:    config.Logger,
		SkipPaths: []string{"/health", "/ready", "/metrics"},
	}))
	e.Use(middleware.Recovery(config.Logger))
	e.Use(middleware.CORS(config.CORSOrigins...))

	var groupMiddleware []echo.MiddlewareFunc
	if config.AuthMiddleware != nil {
		groupMiddleware = append(groupMiddleware, config.AuthMiddleware)
	} else {
		r.logger.Warn("no auth middleware configured, API routes are public")
	}
	if config.RateLimitMiddleware != nil {
		groupMiddleware = append(groupMiddleware, config.RateLimitMiddleware)
	}
	r.api = e.Group(config.APIPrefix, groupMiddleware...)

	return r
}

// Echo returns the underlying Echo instance.
func (r *Router) Echo() *echo.Echo {
	return r.echo
}

// API returns the authenticated API group.
func (r *Router) API() *echo.Group {
	return r.api
}

// RegisterHealthEndpoints registers /health, /ready and /health/details.
func (r *Router) RegisterHealthEndpoints(checker HealthChecker) {
	NewHealthEndpoints(checker).Register(r.echo)
}

// RegisterMetricsEndpoint exposes the gatherer's metrics at /metrics.
func (r *Router) RegisterMetricsEndpoint(gatherer prometheus.Gatherer) {
	r.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

// RouteRegistrar defines the interface for registering routes.
type RouteRegistrar interface {
	RegisterRoutes(g *echo.Group)
}

// RegisterAll registers all route registrars on the API group.
func (r *Router) RegisterAll(registrars ...RouteRegistrar) {
	for _, registrar := range registrars {
		registrar.RegisterRoutes(r.api)
	}
}

// PrintRoutes logs all registered routes at debug level.
func (r *Router) PrintRoutes() {
	for _, route := range r.echo.Routes() {
		r.logger.Debug("registered route",
			slog.String("method", route.Method),
			slog.String("path", route.Path),
		)
	}
}
