// Package changefeed delivers row change events to push-channel subscribers.
package changefeed

import (
	"context"

	"github.com/lllypuk/creatordash/internal/gateway"
)

// Publisher announces row changes to interested subscribers.
type Publisher interface {
	Publish(ctx context.Context, evt gateway.ChangeEvent) error
}

// Feed is a Publisher that also opens push channels.
type Feed interface {
	Publisher
	gateway.Changes
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, gateway.ChangeEvent) error { return nil }
