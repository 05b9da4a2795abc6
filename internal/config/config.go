// Package config provides configuration loading and validation for the application.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration constants.
const (
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 8080
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second

	DefaultMongoDBTimeout     = 10 * time.Second
	DefaultMongoDBMaxPoolSize = 100

	DefaultPostgresMaxConns = 10

	DefaultRedisPoolSize = 10

	DefaultWSBufferSize   = 1024
	DefaultWSPingInterval = 30 * time.Second
	DefaultWSPongTimeout  = 60 * time.Second

	DefaultJWTLeeway          = 30 * time.Second
	DefaultJWTRefreshInterval = 1 * time.Hour

	DefaultRealtimeHeartbeat = 25 * time.Second

	DefaultSignalWindow         = 2 * time.Second
	DefaultStatsRefreshInterval = time.Hour
	DefaultReconnectInitial     = time.Second
	DefaultReconnectMax         = 30 * time.Second
	DefaultReconnectFactor      = 2.0

	DefaultRateLimitRequests = 120
	DefaultRateLimitWindow   = time.Minute
	DefaultAvatarMaxSize     = 5 << 20
)

// AppMode defines the application wiring mode.
type AppMode string

// Application wiring modes.
const (
	// AppModeReal wires the backend named by backend.type.
	AppModeReal AppMode = "real"

	// AppModeMock wires the in-memory backend and accepts dev tokens.
	// Not allowed in production.
	AppModeMock AppMode = "mock"
)

// Backend types for real mode.
const (
	BackendSupabase = "supabase"
	BackendMongoDB  = "mongodb"
	BackendPostgres = "postgres"
)

// Config holds the complete application configuration.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Backend   BackendConfig   `yaml:"backend"`
	Supabase  SupabaseConfig  `yaml:"supabase"`
	MongoDB   MongoDBConfig   `yaml:"mongodb"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Log       LogConfig       `yaml:"log"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	CORS      CORSConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Sync      SyncConfig      `yaml:"sync"`
	Profile   ProfileConfig   `yaml:"profile"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	// Mode controls dependency wiring: "real" (default) or "mock".
	Mode AppMode `yaml:"mode" env:"APP_MODE"`

	// Name is the application name used in logs.
	Name string `yaml:"name" env:"APP_NAME"`

	// Production forbids mock mode and dev tokens.
	Production bool `yaml:"production" env:"APP_PRODUCTION"`
}

// IsRealMode returns true if the application should use real implementations.
func (c AppConfig) IsRealMode() bool {
	return c.Mode == "" || c.Mode == AppModeReal
}

// IsMockMode returns true if the application should use mock implementations.
func (c AppConfig) IsMockMode() bool {
	return c.Mode == AppModeMock
}

// ServerConfig holds HTTP server configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type ServerConfig struct {
	Host            string        `yaml:"host" env:"SERVER_HOST"`
	Port            int           `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
}

// Address returns the full server address (host:port).
func (c ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// BackendConfig selects the data backend in real mode.
type BackendConfig struct {
	Type string `yaml:"type" env:"BACKEND_TYPE"` // supabase | mongodb | postgres
}

// SupabaseConfig holds the hosted backend project settings.
//
//nolint:golines // Struct tags require longer lines for readability
type SupabaseConfig struct {
	URL               string        `yaml:"url" env:"SUPABASE_URL"`
	AnonKey           string        `yaml:"anon_key" env:"SUPABASE_ANON_KEY"`
	ServiceKey        string        `yaml:"service_key" env:"SUPABASE_SERVICE_KEY"`
	Schema            string        `yaml:"schema" env:"SUPABASE_SCHEMA"`
	RealtimeHeartbeat time.Duration `yaml:"realtime_heartbeat" env:"SUPABASE_REALTIME_HEARTBEAT"`
	AvatarBucket      string        `yaml:"avatar_bucket" env:"SUPABASE_AVATAR_BUCKET"`
}

// APIKey returns the key used for REST and realtime calls.
func (c SupabaseConfig) APIKey() string {
	if c.ServiceKey != "" {
		return c.ServiceKey
	}
	return c.AnonKey
}

// MongoDBConfig holds MongoDB connection configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type MongoDBConfig struct {
	URI         string        `yaml:"uri" env:"MONGODB_URI"`
	Database    string        `yaml:"database" env:"MONGODB_DATABASE"`
	Timeout     time.Duration `yaml:"timeout" env:"MONGODB_TIMEOUT"`
	MaxPoolSize uint64        `yaml:"max_pool_size" env:"MONGODB_MAX_POOL_SIZE"`
}

// PostgresConfig holds the direct database connection of the postgres backend.
//
//nolint:golines // Struct tags require longer lines for readability
type PostgresConfig struct {
	DSN         string `yaml:"dsn" env:"POSTGRES_DSN"`
	MaxConns    int32  `yaml:"max_conns" env:"POSTGRES_MAX_CONNS"`
	AutoMigrate bool   `yaml:"auto_migrate" env:"POSTGRES_AUTO_MIGRATE"`
}

// RedisConfig holds Redis connection configuration. An empty Addr disables Redis.
//
//nolint:golines // Struct tags require longer lines for readability
type RedisConfig struct {
	Addr          string `yaml:"addr" env:"REDIS_ADDR"`
	Password      string `yaml:"password" env:"REDIS_PASSWORD"`
	DB            int    `yaml:"db" env:"REDIS_DB"`
	PoolSize      int    `yaml:"pool_size" env:"REDIS_POOL_SIZE"`
	ChannelPrefix string `yaml:"channel_prefix" env:"REDIS_CHANNEL_PREFIX"`
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// AuthConfig holds access token validation settings.
//
//nolint:golines // Struct tags require longer lines for readability
type AuthConfig struct {
	// JWTSecret selects HS256 validation; empty means JWKS.
	JWTSecret       string        `yaml:"jwt_secret" env:"AUTH_JWT_SECRET"`
	Audience        string        `yaml:"audience" env:"AUTH_AUDIENCE"`
	Leeway          time.Duration `yaml:"leeway" env:"AUTH_LEEWAY"`
	RefreshInterval time.Duration `yaml:"refresh_interval" env:"AUTH_JWKS_REFRESH_INTERVAL"`
	// AllowQueryToken accepts ?token= for browser websockets.
	AllowQueryToken bool `yaml:"allow_query_token" env:"AUTH_ALLOW_QUERY_TOKEN"`
}

// LogConfig holds logging configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`   // debug | info | warn | error
	Format string `yaml:"format" env:"LOG_FORMAT"` // json | text
}

// WebSocketConfig holds WebSocket server configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" env:"WS_READ_BUFFER_SIZE"`
	WriteBufferSize int           `yaml:"write_buffer_size" env:"WS_WRITE_BUFFER_SIZE"`
	PingInterval    time.Duration `yaml:"ping_interval" env:"WS_PING_INTERVAL"`
	PongTimeout     time.Duration `yaml:"pong_timeout" env:"WS_PONG_TIMEOUT"`
}

// CORSConfig lists allowed browser origins. Empty allows any origin without credentials.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// RateLimitConfig limits API requests per user.
//
//nolint:golines // Struct tags require longer lines for readability
type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled" env:"RATE_LIMIT_ENABLED"`
	Requests int           `yaml:"requests" env:"RATE_LIMIT_REQUESTS"`
	Window   time.Duration `yaml:"window" env:"RATE_LIMIT_WINDOW"`
}

// SyncConfig tunes the notification and stats synchronisation.
//
//nolint:golines // Struct tags require longer lines for readability
type SyncConfig struct {
	SignalWindow         time.Duration   `yaml:"signal_window" env:"SYNC_SIGNAL_WINDOW"`
	StatsRefreshInterval time.Duration   `yaml:"stats_refresh_interval" env:"SYNC_STATS_REFRESH_INTERVAL"`
	Reconnect            ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig controls reopening of dropped change subscriptions.
//
//nolint:golines // Struct tags require longer lines for readability
type ReconnectConfig struct {
	Enabled        bool          `yaml:"enabled" env:"SYNC_RECONNECT_ENABLED"`
	InitialBackoff time.Duration `yaml:"initial_backoff" env:"SYNC_RECONNECT_INITIAL_BACKOFF"`
	MaxBackoff     time.Duration `yaml:"max_backoff" env:"SYNC_RECONNECT_MAX_BACKOFF"`
	Factor         float64       `yaml:"factor" env:"SYNC_RECONNECT_FACTOR"`
	MaxAttempts    int           `yaml:"max_attempts" env:"SYNC_RECONNECT_MAX_ATTEMPTS"`
}

// ProfileConfig limits avatar uploads.
type ProfileConfig struct {
	AvatarMaxSize int64 `yaml:"avatar_max_size" env:"PROFILE_AVATAR_MAX_SIZE"`
}

// Configuration errors.
var (
	ErrConfigNotFound     = errors.New("configuration file not found")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrMissingRequired    = errors.New("missing required configuration")
	ErrInvalidDuration    = errors.New("invalid duration format")
	ErrInvalidLogLevel    = errors.New("invalid log level: must be debug, info, warn, or error")
	ErrInvalidLogFormat   = errors.New("invalid log format: must be json or text")
	ErrInvalidBackendType = errors.New("invalid backend type: must be supabase, mongodb or postgres")
	ErrInvalidAppMode     = errors.New("invalid app mode: must be real or mock")
	ErrMockModeInProd     = errors.New("mock mode is not allowed in production")
)

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Mode: AppModeReal,
			Name: "creatordash",
		},
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Backend: BackendConfig{
			Type: BackendSupabase,
		},
		Supabase: SupabaseConfig{
			Schema:            "public",
			RealtimeHeartbeat: DefaultRealtimeHeartbeat,
			AvatarBucket:      "profile-pictures",
		},
		MongoDB: MongoDBConfig{
			URI:         "mongodb://localhost:27017",
			Database:    "creatordash",
			Timeout:     DefaultMongoDBTimeout,
			MaxPoolSize: DefaultMongoDBMaxPoolSize,
		},
		Postgres: PostgresConfig{
			MaxConns: DefaultPostgresMaxConns,
		},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			PoolSize:      DefaultRedisPoolSize,
			ChannelPrefix: "creatordash:changes:",
		},
		Auth: AuthConfig{
			Audience:        "authenticated",
			Leeway:          DefaultJWTLeeway,
			RefreshInterval: DefaultJWTRefreshInterval,
			AllowQueryToken: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  DefaultWSBufferSize,
			WriteBufferSize: DefaultWSBufferSize,
			PingInterval:    DefaultWSPingInterval,
			PongTimeout:     DefaultWSPongTimeout,
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Requests: DefaultRateLimitRequests,
			Window:   DefaultRateLimitWindow,
		},
		Sync: SyncConfig{
			SignalWindow:         DefaultSignalWindow,
			StatsRefreshInterval: DefaultStatsRefreshInterval,
			Reconnect: ReconnectConfig{
				InitialBackoff: DefaultReconnectInitial,
				MaxBackoff:     DefaultReconnectMax,
				Factor:         DefaultReconnectFactor,
			},
		},
		Profile: ProfileConfig{
			AvatarMaxSize: DefaultAvatarMaxSize,
		},
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	var errs []error

	errs = c.validateApp(errs)
	errs = c.validateServer(errs)
	errs = c.validateBackend(errs)
	errs = c.validateLog(errs)
	errs = c.validateWebSocket(errs)
	errs = c.validateRateLimit(errs)
	errs = c.validateSync(errs)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, errors.Join(errs...))
	}

	return nil
}

// validateApp validates application configuration.
func (c *Config) validateApp(errs []error) []error {
	if c.App.Mode != "" && c.App.Mode != AppModeReal && c.App.Mode != AppModeMock {
		errs = append(errs, fmt.Errorf("%w: got %q", ErrInvalidAppMode, c.App.Mode))
	}
	if c.App.IsMockMode() && c.App.Production {
		errs = append(errs, ErrMockModeInProd)
	}
	return errs
}

// validateServer validates server configuration.
func (c *Config) validateServer(errs []error) []error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, errors.New("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, errors.New("server.write_timeout must be positive"))
	}
	return errs
}

// validateBackend checks the settings of the selected backend. Access tokens, avatars and user
// metadata always live in the hosted project; mongodb replaces records and the change feed,
// postgres replaces records only.
// Mock mode needs none of it.
func (c *Config) validateBackend(errs []error) []error {
	if c.App.IsMockMode() {
		return errs
	}

	if c.Supabase.URL == "" {
		errs = append(errs, fmt.Errorf("%w: supabase.url", ErrMissingRequired))
	}
	if c.Supabase.APIKey() == "" {
		errs = append(errs, fmt.Errorf("%w: supabase.service_key or supabase.anon_key", ErrMissingRequired))
	}

	switch strings.ToLower(c.Backend.Type) {
	case BackendSupabase:
	case BackendMongoDB:
		if c.MongoDB.URI == "" {
			errs = append(errs, fmt.Errorf("%w: mongodb.uri", ErrMissingRequired))
		}
		if c.MongoDB.Database == "" {
			errs = append(errs, fmt.Errorf("%w: mongodb.database", ErrMissingRequired))
		}
		if !c.Redis.Enabled() {
			errs = append(errs, fmt.Errorf("%w: redis.addr (mongodb change feed)", ErrMissingRequired))
		}
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, fmt.Errorf("%w: postgres.dsn", ErrMissingRequired))
		}
		if c.Postgres.MaxConns < 1 {
			errs = append(errs, errors.New("postgres.max_conns must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: got %q", ErrInvalidBackendType, c.Backend.Type))
	}
	return errs
}

// validateLog validates logging configuration.
func (c *Config) validateLog(errs []error) []error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, ErrInvalidLogLevel)
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[strings.ToLower(c.Log.Format)] {
		errs = append(errs, ErrInvalidLogFormat)
	}
	return errs
}

// validateWebSocket validates WebSocket configuration.
func (c *Config) validateWebSocket(errs []error) []error {
	if c.WebSocket.ReadBufferSize <= 0 {
		errs = append(errs, errors.New("websocket.read_buffer_size must be positive"))
	}
	if c.WebSocket.WriteBufferSize <= 0 {
		errs = append(errs, errors.New("websocket.write_buffer_size must be positive"))
	}
	if c.WebSocket.PingInterval <= 0 {
		errs = append(errs, errors.New("websocket.ping_interval must be positive"))
	}
	if c.WebSocket.PongTimeout <= c.WebSocket.PingInterval {
		errs = append(errs, errors.New("websocket.pong_timeout must exceed websocket.ping_interval"))
	}
	return errs
}

func (c *Config) validateRateLimit(errs []error) []error {
	if !c.RateLimit.Enabled {
		return errs
	}
	if c.RateLimit.Requests <= 0 {
		errs = append(errs, errors.New("rate_limit.requests must be positive"))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate_limit.window must be positive"))
	}
	return errs
}

func (c *Config) validateSync(errs []error) []error {
	if c.Sync.SignalWindow <= 0 {
		errs = append(errs, errors.New("sync.signal_window must be positive"))
	}
	if c.Sync.StatsRefreshInterval <= 0 {
		errs = append(errs, errors.New("sync.stats_refresh_interval must be positive"))
	}
	if r := c.Sync.Reconnect; r.Enabled {
		if r.InitialBackoff <= 0 || r.MaxBackoff < r.InitialBackoff {
			errs = append(errs, errors.New("sync.reconnect backoff must satisfy 0 < initial_backoff <= max_backoff"))
		}
		if r.Factor < 1 {
			errs = append(errs, errors.New("sync.reconnect.factor must be at least 1"))
		}
		if r.MaxAttempts < 0 {
			errs = append(errs, errors.New("sync.reconnect.max_attempts must not be negative"))
		}
	}
	if c.Profile.AvatarMaxSize <= 0 {
		errs = append(errs, errors.New("profile.avatar_max_size must be positive"))
	}
	return errs
}

// Load loads configuration from the default config file and environment variables.
func Load() (*Config, error) {
	return LoadFromPath("")
}

// LoadFromPath loads configuration from a specific file path.
// If path is empty, it tries to find the config file in standard locations.
func LoadFromPath(path string) (*Config, error) {
	loader := NewLoader()
	return loader.Load(path)
}

// Loader handles configuration loading from files and environment variables.
type Loader struct {
	configPaths []string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		configPaths: []string{
			"configs/config.yaml",
			"config.yaml",
			"/etc/creatordash/config.yaml",
		},
	}
}

// WithConfigPaths sets custom config paths to search.
func (l *Loader) WithConfigPaths(paths []string) *Loader {
	l.configPaths = paths
	return l
}

// Load loads configuration from file and environment variables.
func (l *Loader) Load(path string) (*Config, error) {
	// Start with default config
	cfg := DefaultConfig()

	// Determine config file path
	configPath := path
	if configPath == "" {
		// Check CONFIG_PATH environment variable first
		if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
			configPath = envPath
		} else {
			// Search in standard locations
			for _, p := range l.configPaths {
				if _, err := os.Stat(p); err == nil {
					configPath = p
					break
				}
			}
		}
	}

	// Load from file if found
	if configPath != "" {
		if err := l.loadFromFile(cfg, configPath); err != nil {
			// Only return error if path was explicitly specified
			if path != "" || os.Getenv("CONFIG_PATH") != "" {
				return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
			}
			// Otherwise, continue with defaults + env vars
		}
	}

	// Override with environment variables
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Validate the final configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func (l *Loader) loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if unmarshalErr := yaml.Unmarshal(data, cfg); unmarshalErr != nil {
		return fmt.Errorf("failed to parse config file: %w", unmarshalErr)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.loadEnvToStruct(reflect.ValueOf(cfg).Elem())
}

// loadEnvToStruct recursively loads environment variables into a struct.
func (l *Loader) loadEnvToStruct(v reflect.Value) error {
	t := v.Type()

	for i := range v.NumField() {
		field := v.Field(i)
		fieldType := t.Field(i)

		// Handle embedded structs
		if field.Kind() == reflect.Struct {
			if err := l.loadEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		// Get env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		// Get environment variable value
		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}

		// Set field value based on type
		if err := l.setFieldFromEnv(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s from env %s: %w", fieldType.Name, envTag, err)
		}
	}

	return nil
}

// setFieldFromEnv sets a struct field value from an environment variable string.
//
//nolint:exhaustive // We only support a subset of reflect.Kind for config values
func (l *Loader) setFieldFromEnv(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// Check if it's a time.Duration
		if field.Type() == reflect.TypeFor[time.Duration]() {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("%w: %s", ErrInvalidDuration, value)
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %s", value)
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid unsigned integer value: %s", value)
		}
		field.SetUint(u)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value: %s", value)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type())
		}
		var items []string
		for item := range strings.SplitSeq(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		field.Set(reflect.ValueOf(items))

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float value: %s", value)
		}
		field.SetFloat(f)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// IsDevelopment returns true if the log level indicates a development environment.
func (c *Config) IsDevelopment() bool {
	return strings.ToLower(c.Log.Level) == "debug"
}
