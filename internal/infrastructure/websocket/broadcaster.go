package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lllypuk/creatordash/internal/domain/uuid"
)

// OutboundMessage is the envelope of every server-to-browser message.
type OutboundMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Broadcaster encodes typed messages and routes them to a user's connections.
type Broadcaster struct {
	hub    *Hub
	logger *slog.Logger
}

// BroadcasterOption configures a Broadcaster.
type BroadcasterOption func(*Broadcaster)

// WithBroadcasterLogger sets the logger for the broadcaster.
func WithBroadcasterLogger(logger *slog.Logger) BroadcasterOption {
	return func(b *Broadcaster) {
		b.logger = logger
	}
}

// NewBroadcaster creates a new Broadcaster.
func NewBroadcaster(hub *Hub, opts ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{
		hub:    hub,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Push sends a message of msgType to every connection of the user. Users without
// connections are skipped.
func (b *Broadcaster) Push(ctx context.Context, userID uuid.UUID, msgType string, data any) error {
	if b.hub.UserConnectionCount(userID) == 0 {
		return nil
	}

	payload, err := json.Marshal(OutboundMessage{Type: msgType, Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", msgType, err)
	}

	b.hub.SendToUser(userID, payload)

	b.logger.DebugContext(ctx, "sent message to user",
		slog.String("type", msgType),
		slog.String("user_id", userID.String()),
	)
	return nil
}
