package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/creatordash/internal/config"
	"github.com/lllypuk/creatordash/internal/infrastructure/httpserver"
	"github.com/lllypuk/creatordash/internal/middleware"
	"github.com/lllypuk/creatordash/tests/testutil"
)

func mockConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.App.Mode = config.AppModeMock
	return cfg
}

func newMockContainer(t *testing.T) *Container {
	t.Helper()

	c, err := NewContainer(mockConfig(), WithLogger(testutil.DiscardLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewContainer_MockMode(t *testing.T) {
	c := newMockContainer(t)

	assert.Nil(t, c.MongoDB)
	assert.Nil(t, c.Redis)
	assert.NotNil(t, c.MemoryFeed)
	assert.NotNil(t, c.Backend.Records)
	assert.NotNil(t, c.Backend.Procedures)
	assert.NotNil(t, c.Backend.Storage)
	assert.NotNil(t, c.Backend.Identity)
	assert.NotNil(t, c.Backend.Changes)
	assert.NotNil(t, c.Hub)
	assert.NotNil(t, c.Registry)
	assert.NotNil(t, c.Sessions)
	assert.NotNil(t, c.DashboardHandler)
	assert.NotNil(t, c.ProfileHandler)
	assert.NotNil(t, c.WSHandler)

	assert.IsType(t, &middleware.StaticTokenValidator{}, c.TokenValidator)
	assert.IsType(t, &middleware.MemoryRateLimitStore{}, c.RateLimitStore)
	assert.Nil(t, c.JWTValidator)
}

func TestNewContainer_UnreachableMongo(t *testing.T) {
	testutil.SkipIfShort(t)

	cfg := config.DefaultConfig()
	cfg.Supabase.URL = "https://project.supabase.co"
	cfg.Supabase.ServiceKey = "key"
	cfg.Backend.Type = config.BackendMongoDB
	cfg.Redis.Addr = "127.0.0.1:1"

	c, err := NewContainer(cfg, WithLogger(testutil.DiscardLogger()))

	require.Error(t, err)
	assert.Nil(t, c)
	assert.Contains(t, err.Error(), "redis")
}

func TestContainer_ValidateWiring(t *testing.T) {
	c := newMockContainer(t)
	require.NoError(t, c.validateWiring())

	c.Config.App.Mode = config.AppModeReal
	err := c.validateWiring()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dev token validator")

	c.Config.App.Mode = config.AppModeMock
	c.WSHandler = nil
	err = c.validateWiring()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handlers not initialized")
}

func TestContainer_HealthChecks(t *testing.T) {
	c := newMockContainer(t)
	checks := c.HealthChecks()

	require.Len(t, checks, 2)
	assert.Equal(t, "websocket_hub", checks[0].Name)
	assert.Equal(t, "dashboard_sessions", checks[1].Name)
	assert.False(t, checks.IsReady(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.StartHub(ctx)

	require.Eventually(t, func() bool { return checks.IsReady(context.Background()) }, time.Second, 10*time.Millisecond)
	statuses := checks.GetHealthStatus(context.Background())
	require.Len(t, statuses, 2)
	assert.Equal(t, httpserver.StatusHealthy, statuses[0].Status)
}

func TestContainer_CloseIsSafeTwice(t *testing.T) {
	c, err := NewContainer(mockConfig(), WithLogger(testutil.DiscardLogger()))
	require.NoError(t, err)

	require.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}
