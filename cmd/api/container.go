// Package main provides the API server entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/lllypuk/creatordash/internal/application/profile"
	"github.com/lllypuk/creatordash/internal/application/shared"
	"github.com/lllypuk/creatordash/internal/application/stats"
	"github.com/lllypuk/creatordash/internal/config"
	"github.com/lllypuk/creatordash/internal/dashboard"
	"github.com/lllypuk/creatordash/internal/gateway"
	httphandler "github.com/lllypuk/creatordash/internal/handler/http"
	wshandler "github.com/lllypuk/creatordash/internal/handler/websocket"
	"github.com/lllypuk/creatordash/internal/infrastructure/changefeed"
	"github.com/lllypuk/creatordash/internal/infrastructure/healthcheck"
	"github.com/lllypuk/creatordash/internal/infrastructure/httpserver"
	"github.com/lllypuk/creatordash/internal/infrastructure/memory"
	"github.com/lllypuk/creatordash/internal/infrastructure/metrics"
	mongodbinfra "github.com/lllypuk/creatordash/internal/infrastructure/mongodb"
	"github.com/lllypuk/creatordash/internal/infrastructure/postgres"
	"github.com/lllypuk/creatordash/internal/infrastructure/supabase"
	"github.com/lllypuk/creatordash/internal/infrastructure/websocket"
	"github.com/lllypuk/creatordash/internal/middleware"
)

// Container initialization timeouts.
const (
	containerInitTimeout   = 30 * time.Second
	redisPingTimeout       = 5 * time.Second
	mongoDisconnectTimeout = 10 * time.Second
)

// uploadRateLimit is the per-user avatar upload budget per rate limit window.
const uploadRateLimit = 10

// WebSocket client configuration constants.
const (
	defaultWSWriteWait      = 10 * time.Second
	defaultWSMaxMessageSize = 65536
)

// Backend groups the data ports of whichever backend is wired.
type Backend struct {
	Records    gateway.Records
	Procedures gateway.Procedures
	Storage    gateway.Storage
	Identity   gateway.Identity
	Changes    gateway.Changes
}

// Container holds all application dependencies and manages their lifecycle.
type Container struct {
	// Configuration
	Config *config.Config
	Logger *slog.Logger

	// Infrastructure
	MongoDB     *mongo.Client
	Postgres    *pgxpool.Pool
	Redis       *redis.Client
	Backend     Backend
	MemoryFeed  *changefeed.MemoryFeed
	Hub         *websocket.Hub
	Broadcaster *websocket.Broadcaster
	Registry    *prometheus.Registry
	Metrics     *metrics.DashboardMetrics

	// Application
	Stats    *stats.Service
	Sessions *dashboard.Manager
	Avatars  *profile.AvatarUploader

	// HTTP
	DashboardHandler *httphandler.DashboardHandler
	ProfileHandler   *httphandler.ProfileHandler
	WSHandler        *wshandler.Handler

	// Auth and rate limiting
	TokenValidator middleware.TokenValidator
	JWTValidator   *supabase.JWTValidator // for cleanup on shutdown
	RateLimitStore middleware.RateLimitStore
}

// ContainerOption configures the Container.
type ContainerOption func(*Container)

// WithLogger sets a custom logger for the container.
func WithLogger(logger *slog.Logger) ContainerOption {
	return func(c *Container) {
		c.Logger = logger
	}
}

// NewContainer creates a new dependency injection container.
// The wiring mode (real/mock) is determined by config.App.Mode.
func NewContainer(cfg *config.Config, opts ...ContainerOption) (*Container, error) {
	c := &Container{
		Config: cfg,
		Logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logWiringMode()

	if err := c.setupInfrastructure(); err != nil {
		// Clean up any partially initialized resources
		_ = c.Close()
		return nil, fmt.Errorf("failed to setup infrastructure: %w", err)
	}

	c.setupMetrics()
	c.setupApplication()

	if err := c.setupAuth(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to setup auth: %w", err)
	}

	c.setupHTTPHandlers()

	if err := c.validateWiring(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("wiring validation failed: %w", err)
	}

	return c, nil
}

// logWiringMode logs the current wiring mode configuration.
func (c *Container) logWiringMode() {
	mode := c.Config.App.Mode
	if mode == "" {
		mode = config.AppModeReal
	}

	if c.Config.App.IsMockMode() {
		c.Logger.Warn("container starting in MOCK mode",
			slog.String("mode", string(mode)),
			slog.Bool("is_development", c.Config.IsDevelopment()),
		)
		return
	}

	c.Logger.Info("container starting in REAL mode",
		slog.String("mode", string(mode)),
		slog.String("backend", c.Config.Backend.Type),
		slog.Bool("is_development", c.Config.IsDevelopment()),
	)
}

// validateWiring ensures all required dependencies are properly initialized.
func (c *Container) validateWiring() error {
	var errs []error

	b := c.Backend
	if b.Records == nil || b.Procedures == nil || b.Storage == nil || b.Identity == nil || b.Changes == nil {
		errs = append(errs, errors.New("backend ports not initialized"))
	}
	if c.Hub == nil {
		errs = append(errs, errors.New("websocket hub not initialized"))
	}
	if c.TokenValidator == nil {
		errs = append(errs, errors.New("token validator not initialized"))
	}
	if c.Config.App.IsRealMode() {
		if _, isStatic := c.TokenValidator.(*middleware.StaticTokenValidator); isStatic {
			errs = append(errs, errors.New("dev token validator is not allowed in real mode"))
		}
	}
	if c.Sessions == nil || c.DashboardHandler == nil || c.ProfileHandler == nil || c.WSHandler == nil {
		errs = append(errs, errors.New("handlers not initialized"))
	}

	return errors.Join(errs...)
}

// setupInfrastructure connects the configured backend and starts nothing yet.
func (c *Container) setupInfrastructure() error {
	ctx, cancel := context.WithTimeout(context.Background(), containerInitTimeout)
	defer cancel()

	if c.Config.App.IsRealMode() && c.Config.Redis.Enabled() {
		if err := c.setupRedis(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}

	switch {
	case c.Config.App.IsMockMode():
		c.setupMemoryBackend()
	case strings.EqualFold(c.Config.Backend.Type, config.BackendMongoDB):
		if err := c.setupMongoBackend(ctx); err != nil {
			return fmt.Errorf("mongodb: %w", err)
		}
	case strings.EqualFold(c.Config.Backend.Type, config.BackendPostgres):
		if err := c.setupPostgresBackend(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	default:
		if err := c.setupSupabaseBackend(); err != nil {
			return fmt.Errorf("supabase: %w", err)
		}
	}

	c.Hub = websocket.NewHub(websocket.WithHubLogger(c.Logger))
	c.Broadcaster = websocket.NewBroadcaster(c.Hub, websocket.WithBroadcasterLogger(c.Logger))

	return nil
}

// setupRedis initializes the Redis client.
func (c *Container) setupRedis(ctx context.Context) error {
	c.Redis = redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Addr,
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
		PoolSize: c.Config.Redis.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()

	if pingErr := c.Redis.Ping(pingCtx).Err(); pingErr != nil {
		return fmt.Errorf("failed to ping: %w", pingErr)
	}

	c.Logger.InfoContext(ctx, "connected to Redis",
		slog.String("addr", c.Config.Redis.Addr),
	)

	return nil
}

// setupMemoryBackend wires the in-process backend used in mock mode.
func (c *Container) setupMemoryBackend() {
	c.MemoryFeed = changefeed.NewMemoryFeed(changefeed.WithMemoryLogger(c.Logger))
	backend := memory.NewBackend(
		memory.WithPublisher(c.MemoryFeed),
		memory.WithLogger(c.Logger),
	)
	c.Backend = Backend{
		Records:    backend,
		Procedures: backend,
		Storage:    backend,
		Identity:   backend,
		Changes:    c.MemoryFeed,
	}
	c.Logger.Debug("memory backend initialized")
}

// newSupabaseClient creates the REST client used for records, storage and identity.
func (c *Container) newSupabaseClient() (*supabase.Client, error) {
	return supabase.NewClient(c.Config.Supabase.URL, c.Config.Supabase.APIKey(),
		supabase.WithLogger(c.Logger),
	)
}

// setupSupabaseBackend wires the hosted backend: PostgREST records, storage, auth and realtime.
func (c *Container) setupSupabaseBackend() error {
	client, err := c.newSupabaseClient()
	if err != nil {
		return err
	}

	rt, err := c.newRealtime()
	if err != nil {
		return err
	}

	c.Backend = Backend{
		Records:    client,
		Procedures: client,
		Storage:    client,
		Identity:   client,
		Changes:    rt,
	}
	c.Logger.Info("supabase backend initialized", slog.String("url", client.BaseURL()))
	return nil
}

// newRealtime creates the change feed client of the hosted project.
func (c *Container) newRealtime() (*supabase.Realtime, error) {
	rt, err := supabase.NewRealtime(c.Config.Supabase.URL, c.Config.Supabase.APIKey(),
		supabase.WithRealtimeLogger(c.Logger),
		supabase.WithHeartbeat(c.Config.Supabase.RealtimeHeartbeat),
		supabase.WithSchema(c.Config.Supabase.Schema),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create realtime client: %w", err)
	}
	return rt, nil
}

// setupPostgresBackend reads and writes rows over a direct database connection. Realtime keeps
// following the same tables, so the change feed, storage and identity stay with the hosted project.
func (c *Container) setupPostgresBackend(ctx context.Context) error {
	poolCfg, err := pgxpool.ParseConfig(c.Config.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("invalid dsn: %w", err)
	}
	poolCfg.MaxConns = c.Config.Postgres.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("failed to create pool: %w", err)
	}
	c.Postgres = pool

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping: %w", err)
	}

	if c.Config.Postgres.AutoMigrate {
		if err := postgres.Migrate(ctx, pool, c.Config.Supabase.Schema); err != nil {
			return err
		}
	}

	client, err := c.newSupabaseClient()
	if err != nil {
		return err
	}
	rt, err := c.newRealtime()
	if err != nil {
		return err
	}

	store := postgres.NewStore(pool,
		postgres.WithSchema(c.Config.Supabase.Schema),
		postgres.WithLogger(c.Logger),
	)
	c.Backend = Backend{
		Records:    store,
		Procedures: store,
		Storage:    client,
		Identity:   client,
		Changes:    rt,
	}
	c.Logger.InfoContext(ctx, "postgres backend initialized",
		slog.String("host", poolCfg.ConnConfig.Host),
		slog.String("schema", c.Config.Supabase.Schema),
	)
	return nil
}

// setupMongoBackend wires MongoDB records with a Redis change feed. Storage and identity stay
// with the hosted project that issues the access tokens.
func (c *Container) setupMongoBackend(ctx context.Context) error {
	if c.Redis == nil {
		return errors.New("redis is required for the mongodb change feed")
	}

	clientOpts := options.Client().
		ApplyURI(c.Config.MongoDB.URI).
		SetMaxPoolSize(c.Config.MongoDB.MaxPoolSize)

	client, connectErr := mongo.Connect(clientOpts)
	if connectErr != nil {
		return fmt.Errorf("failed to connect: %w", connectErr)
	}
	c.MongoDB = client

	pingCtx, cancel := context.WithTimeout(ctx, c.Config.MongoDB.Timeout)
	defer cancel()

	if pingErr := client.Ping(pingCtx, nil); pingErr != nil {
		return fmt.Errorf("failed to ping: %w", pingErr)
	}

	c.Logger.InfoContext(ctx, "connected to MongoDB",
		slog.String("database", c.Config.MongoDB.Database),
	)

	feed := changefeed.NewRedisFeed(c.Redis,
		changefeed.WithLogger(c.Logger),
		changefeed.WithChannelPrefix(c.Config.Redis.ChannelPrefix),
	)
	store := mongodbinfra.NewStore(client.Database(c.Config.MongoDB.Database),
		mongodbinfra.WithPublisher(feed),
		mongodbinfra.WithLogger(c.Logger),
	)

	indexCtx, indexCancel := context.WithTimeout(ctx, c.Config.MongoDB.Timeout)
	defer indexCancel()

	if indexErr := store.EnsureIndexes(indexCtx); indexErr != nil {
		return fmt.Errorf("failed to create indexes: %w", indexErr)
	}

	hosted, err := c.newSupabaseClient()
	if err != nil {
		return fmt.Errorf("supabase: %w", err)
	}

	c.Backend = Backend{
		Records:    store,
		Procedures: store,
		Storage:    hosted,
		Identity:   hosted,
		Changes:    feed,
	}
	c.Logger.InfoContext(ctx, "mongodb backend initialized")
	return nil
}

// setupMetrics creates the Prometheus registry and dashboard collectors.
func (c *Container) setupMetrics() {
	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.Metrics = metrics.NewDashboardMetrics(c.Registry)
}

// setupApplication wires stats, avatar uploads and the session manager.
func (c *Container) setupApplication() {
	cfg := c.Config

	c.Stats = stats.NewService(c.Backend.Records, c.Backend.Procedures,
		stats.WithLogger(c.Logger),
		stats.WithRefreshInterval(cfg.Sync.StatsRefreshInterval),
	)

	c.Avatars = profile.NewAvatarUploader(c.Backend.Storage, c.Backend.Identity,
		profile.WithLogger(c.Logger),
		profile.WithBucket(cfg.Supabase.AvatarBucket),
		profile.WithMaxSize(cfg.Profile.AvatarMaxSize),
	)

	c.Sessions = dashboard.NewManager(c.Backend.Records, c.Backend.Changes, c.Stats,
		dashboard.WithPusher(metrics.NewInstrumentedPusher(c.Broadcaster, c.Metrics)),
		dashboard.WithLogger(c.Logger),
		dashboard.WithSignalWindow(cfg.Sync.SignalWindow),
		dashboard.WithReconnect(shared.ReconnectPolicy{
			Enabled:        cfg.Sync.Reconnect.Enabled,
			InitialBackoff: cfg.Sync.Reconnect.InitialBackoff,
			MaxBackoff:     cfg.Sync.Reconnect.MaxBackoff,
			Factor:         cfg.Sync.Reconnect.Factor,
			MaxAttempts:    cfg.Sync.Reconnect.MaxAttempts,
		}),
	)

	metrics.RegisterGauges(c.Registry, c.Sessions.Len, c.Hub.ClientCount)
}

// setupAuth selects the token validator and the rate limit store.
func (c *Container) setupAuth() error {
	if c.Redis != nil {
		c.RateLimitStore = middleware.NewRedisRateLimitStore(c.Redis, middleware.DefaultRateLimitKeyPrefix)
	} else {
		c.RateLimitStore = middleware.NewMemoryRateLimitStore()
	}

	if c.Config.App.IsMockMode() {
		c.TokenValidator = middleware.NewStaticTokenValidator()
		c.Logger.Warn("accepting dev tokens", slog.String("prefix", middleware.DevTokenPrefix))
		return nil
	}

	validator, err := supabase.NewJWTValidator(supabase.JWTValidatorConfig{
		URL:             c.Config.Supabase.URL,
		JWTSecret:       c.Config.Auth.JWTSecret,
		Audience:        c.Config.Auth.Audience,
		Leeway:          c.Config.Auth.Leeway,
		RefreshInterval: c.Config.Auth.RefreshInterval,
		Logger:          c.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create JWT validator: %w", err)
	}
	c.JWTValidator = validator
	c.TokenValidator = middleware.NewSupabaseValidatorAdapter(validator)
	return nil
}

// setupHTTPHandlers creates the REST and websocket handlers.
func (c *Container) setupHTTPHandlers() {
	c.DashboardHandler = httphandler.NewDashboardHandler(c.Sessions, c.Stats)

	profileOpts := []httphandler.ProfileOption{httphandler.WithUploadObserver(c.Metrics.ObserveUpload)}
	if c.Config.RateLimit.Enabled {
		// Uploads get a tighter budget than the rest of the API.
		profileOpts = append(profileOpts, httphandler.WithUploadLimit(middleware.RateLimit(middleware.RateLimitConfig{
			Logger: c.Logger,
			Store:  c.RateLimitStore,
			Limit:  uploadRateLimit,
			Window: c.Config.RateLimit.Window,
			KeyFunc: func(ec echo.Context) string {
				return "ratelimit:avatar:" + middleware.GetUserID(ec).String()
			},
		})))
	}
	c.ProfileHandler = httphandler.NewProfileHandler(c.Avatars, profileOpts...)

	ws := c.Config.WebSocket
	c.WSHandler = wshandler.NewHandler(c.Hub, c.Sessions,
		wshandler.WithHandlerLogger(c.Logger),
		wshandler.WithHandlerConfig(wshandler.HandlerConfig{
			ReadBufferSize:  ws.ReadBufferSize,
			WriteBufferSize: ws.WriteBufferSize,
			ClientConfig: websocket.ClientConfig{
				ReadBufferSize:  ws.ReadBufferSize,
				WriteBufferSize: ws.WriteBufferSize,
				PingInterval:    ws.PingInterval,
				PongWait:        ws.PongTimeout,
				WriteWait:       defaultWSWriteWait,
				MaxMessageSize:  defaultWSMaxMessageSize,
			},
		}),
	)
}

// HealthChecks lists the probes behind /ready and /health/details.
func (c *Container) HealthChecks() httpserver.Checks {
	checks := httpserver.Checks{
		healthcheck.Hub(c.Hub),
		healthcheck.SessionLoad(c.Sessions.Len),
	}

	if c.MongoDB != nil {
		checks = append(checks, healthcheck.MongoDB(c.MongoDB))
	}
	if c.Postgres != nil {
		checks = append(checks, healthcheck.Postgres(c.Postgres))
	}
	if c.Redis != nil {
		// Only the mongodb change feed depends on Redis; rate limiting falls open.
		checks = append(checks, healthcheck.Redis(c.Redis, c.MongoDB != nil))
	}

	return checks
}

// StartHub starts the WebSocket hub.
// This should be called before the HTTP server starts accepting requests.
func (c *Container) StartHub(ctx context.Context) {
	go c.Hub.Run(ctx)
	c.Logger.InfoContext(ctx, "websocket hub started")
}

// Close releases resources in reverse order of creation.
func (c *Container) Close() error {
	var errs []error

	if c.Sessions != nil {
		if err := c.Sessions.CloseAll(); err != nil {
			errs = append(errs, fmt.Errorf("sessions: %w", err))
		}
	}

	if c.JWTValidator != nil {
		if err := c.JWTValidator.Close(); err != nil {
			errs = append(errs, fmt.Errorf("jwt validator: %w", err))
		}
	}

	if c.MemoryFeed != nil {
		if err := c.MemoryFeed.Close(); err != nil {
			errs = append(errs, fmt.Errorf("memory feed: %w", err))
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		} else {
			c.Logger.Debug("redis connection closed")
		}
	}

	if c.Postgres != nil {
		c.Postgres.Close()
		c.Logger.Debug("postgres pool closed")
	}

	if c.MongoDB != nil {
		ctx, cancel := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
		defer cancel()

		if err := c.MongoDB.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb disconnect: %w", err))
		} else {
			c.Logger.Debug("mongodb connection closed")
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	c.Logger.Info("all container resources closed")
	return nil
}
