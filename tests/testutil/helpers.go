// Package testutil holds helpers shared by tests across packages.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

const contextTimeout = 30 * time.Second

// NewTestContext creates a context that is cancelled when the test ends.
func NewTestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), contextTimeout)
	t.Cleanup(cancel)
	return ctx
}

// SkipIfShort skips tests that need containers when running with -short.
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
