package main

import (
	"github.com/labstack/echo/v4"

	"github.com/lllypuk/creatordash/internal/infrastructure/httpserver"
	"github.com/lllypuk/creatordash/internal/middleware"
)

// SetupRoutes configures all API routes and middleware chains.
func SetupRoutes(c *Container, e *echo.Echo) *httpserver.Router {
	routerConfig := httpserver.RouterConfig{
		Logger: c.Logger,
		AuthMiddleware: middleware.Auth(middleware.AuthConfig{
			Logger:          c.Logger,
			TokenValidator:  c.TokenValidator,
			SkipPaths:       []string{"/health", "/ready", "/health/details", "/metrics"},
			AllowQueryToken: c.Config.Auth.AllowQueryToken,
		}),
		CORSOrigins: c.Config.CORS.AllowedOrigins,
		APIPrefix:   "/api/v1",
	}

	if c.Config.RateLimit.Enabled {
		routerConfig.RateLimitMiddleware = middleware.RateLimitByUser(middleware.RateLimitConfig{
			Logger: c.Logger,
			Store:  c.RateLimitStore,
			Limit:  c.Config.RateLimit.Requests,
			Window: c.Config.RateLimit.Window,
		})
	}

	router := httpserver.NewRouter(e, routerConfig)

	router.RegisterHealthEndpoints(c.HealthChecks())
	router.RegisterMetricsEndpoint(c.Registry)

	router.RegisterAll(c.DashboardHandler, c.ProfileHandler)
	c.WSHandler.RegisterRoutesWithGroup(router.API())

	// Log all registered routes in debug mode
	if c.Config.IsDevelopment() {
		router.PrintRoutes()
	}

	return router
}
