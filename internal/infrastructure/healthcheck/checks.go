// Package healthcheck builds the dependency probes served on /ready and /health/details.
package healthcheck

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/lllypuk/creatordash/internal/infrastructure/httpserver"
)

// DefaultSessionWarningThreshold is the open session count above which the service reports degraded.
const DefaultSessionWarningThreshold = 5000

// ErrHubStopped is reported while the websocket hub is not running.
var ErrHubStopped = errors.New("websocket hub not running")

// HubState reports whether the websocket hub loop is running.
type HubState interface {
	IsRunning() bool
}

// MongoDB pings the client. Critical.
func MongoDB(client *mongo.Client) httpserver.Check {
	return httpserver.Check{
		Name:     "mongodb",
		Critical: true,
		Probe: func(ctx context.Context) error {
			return client.Ping(ctx, nil)
		},
	}
}

// Postgres pings the pool. Critical.
func Postgres(pool *pgxpool.Pool) httpserver.Check {
	return httpserver.Check{
		Name:     "postgres",
		Critical: true,
		Probe: func(ctx context.Context) error {
			return pool.Ping(ctx)
		},
	}
}

// Redis pings the client. critical is false when Redis only backs rate limiting.
func Redis(client redis.Cmdable, critical bool) httpserver.Check {
	return httpserver.Check{
		Name:     "redis",
		Critical: critical,
		Probe: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	}
}

// Hub checks the websocket hub. Critical.
func Hub(hub HubState) httpserver.Check {
	return httpserver.Check{
		Name:     "websocket_hub",
		Critical: true,
		Probe: func(context.Context) error {
			if !hub.IsRunning() {
				return ErrHubStopped
			}
			return nil
		},
	}
}

// SessionLoadOption configures SessionLoad.
type SessionLoadOption func(*sessionLoad)

type sessionLoad struct {
	count     func() int
	threshold int
}

// WithWarningThreshold sets the open session count that degrades the service.
func WithWarningThreshold(n int) SessionLoadOption {
	return func(s *sessionLoad) {
		if n > 0 {
			s.threshold = n
		}
	}
}

// SessionLoad reports degraded when more sessions are open than the warning threshold.
// Each session holds two change subscriptions, so this tracks backend channel usage.
func SessionLoad(count func() int, opts ...SessionLoadOption) httpserver.Check {
	s := &sessionLoad{count: count, threshold: DefaultSessionWarningThreshold}
	for _, opt := range opts {
		opt(s)
	}

	return httpserver.Check{
		Name: "dashboard_sessions",
		Probe: func(context.Context) error {
			if n := s.count(); n > s.threshold {
				return fmt.Errorf("%d open sessions exceed warning threshold %d", n, s.threshold)
			}
			return nil
		},
	}
}
