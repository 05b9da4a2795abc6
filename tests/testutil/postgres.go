package testutil

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresContainerStartupTimeout = 90 * time.Second
	postgresCleanupTimeout          = 5 * time.Second
)

var (
	sharedPostgresDSN  string
	sharedPostgresErr  error
	sharedPostgresOnce sync.Once
	sharedPostgres     testcontainers.Container
)

func sharedPostgresContainer(ctx context.Context) (string, error) {
	sharedPostgresOnce.Do(func() {
		sharedPostgres, sharedPostgresDSN, sharedPostgresErr = startPostgresContainer(ctx)
	})
	return sharedPostgresDSN, sharedPostgresErr
}

func startPostgresContainer(ctx context.Context) (testcontainers.Container, string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "creatordash",
			"POSTGRES_PASSWORD": "creatordash",
			"POSTGRES_DB":       "creatordash",
		},
		// The server restarts once after initdb.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(postgresContainerStartupTimeout),
	}

	cont, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to start Postgres container: %w", err)
	}

	host, err := cont.Host(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := cont.MappedPort(ctx, "5432")
	if err != nil {
		return nil, "", fmt.Errorf("failed to get container port: %w", err)
	}

	dsn := fmt.Sprintf("postgres://creatordash:creatordash@%s/creatordash?sslmode=disable",
		net.JoinHostPort(host, port.Port()))
	return cont, dsn, nil
}

// SetupTestPostgres returns a pool on the shared Postgres container and a schema unique to
// the test. The schema is dropped when the test ends. Skipped in -short mode.
func SetupTestPostgres(t *testing.T) (*pgxpool.Pool, string) {
	t.Helper()
	SkipIfShort(t)

	ctx, cancel := context.WithTimeout(context.Background(), postgresContainerStartupTimeout)
	defer cancel()

	dsn, err := sharedPostgresContainer(ctx)
	if err != nil {
		t.Fatalf("Failed to get shared Postgres container: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to create Postgres pool: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Fatalf("Failed to ping Postgres: %v", err)
	}

	schema := strings.ToLower(testDBName(t.Name()))

	t.Cleanup(func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), postgresCleanupTimeout)
		defer cleanupCancel()
		_, _ = pool.Exec(cleanupCtx, "DROP SCHEMA IF EXISTS "+pgx.Identifier{schema}.Sanitize()+" CASCADE")
		pool.Close()
	})

	return pool, schema
}
