package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/lllypuk/creatordash/internal/domain/errs"
	"github.com/lllypuk/creatordash/internal/gateway"
)

const defaultChannelPrefix = "changes:"

// changeEnvelope is the wire form of a change event on a Redis channel.
type changeEnvelope struct {
	ID              string             `json:"id"`
	Kind            gateway.ChangeKind `json:"kind"`
	Table           string             `json:"table"`
	Record          gateway.Record     `json:"record,omitempty"`
	OldRecord       gateway.Record     `json:"old_record,omitempty"`
	CommitTimestamp time.Time          `json:"commit_timestamp"`
}

func (e changeEnvelope) event() gateway.ChangeEvent {
	return gateway.ChangeEvent{
		Kind:            e.Kind,
		Table:           e.Table,
		Record:          e.Record,
		OldRecord:       e.OldRecord,
		CommitTimestamp: e.CommitTimestamp,
	}
}

// RedisFeed fans change events out over Redis Pub/Sub, one channel per table.
// Row filters are applied on the subscriber side.
type RedisFeed struct {
	client        *redis.Client
	channelPrefix string
	buffer        int
	logger        *slog.Logger
}

// RedisOption configures a RedisFeed.
type RedisOption func(*RedisFeed)

// WithLogger sets the logger for the feed.
func WithLogger(logger *slog.Logger) RedisOption {
	return func(f *RedisFeed) {
		f.logger = logger
	}
}

// WithChannelPrefix sets a prefix for Redis channel names.
func WithChannelPrefix(prefix string) RedisOption {
	return func(f *RedisFeed) {
		f.channelPrefix = prefix
	}
}

// WithStreamBuffer sets the per-subscription event buffer.
func WithStreamBuffer(n int) RedisOption {
	return func(f *RedisFeed) {
		f.buffer = n
	}
}

// NewRedisFeed creates a feed on client.
func NewRedisFeed(client *redis.Client, opts ...RedisOption) *RedisFeed {
	f := &RedisFeed{
		client:        client,
		channelPrefix: defaultChannelPrefix,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Publish sends evt to the channel of its table.
func (f *RedisFeed) Publish(ctx context.Context, evt gateway.ChangeEvent) error {
	if evt.Table == "" {
		return errors.New("change event table cannot be empty")
	}

	envelope := changeEnvelope{
		ID:              uuid.New().String(),
		Kind:            evt.Kind,
		Table:           evt.Table,
		Record:          evt.Record,
		OldRecord:       evt.OldRecord,
		CommitTimestamp: evt.CommitTimestamp,
	}
	if envelope.CommitTimestamp.IsZero() {
		envelope.CommitTimestamp = time.Now().UTC()
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	channel := f.channelName(evt.Table)
	if publishErr := f.client.Publish(ctx, channel, data).Err(); publishErr != nil {
		return fmt.Errorf("failed to publish change to Redis: %w", errs.Unavailable(publishErr))
	}

	f.logger.DebugContext(ctx, "change published",
		slog.String("change_id", envelope.ID),
		slog.String("kind", string(evt.Kind)),
		slog.String("channel", channel),
	)
	return nil
}

// Subscribe opens a push channel for topic. It returns once Redis confirmed the subscription.
func (f *RedisFeed) Subscribe(ctx context.Context, topic gateway.Topic) (gateway.Subscription, error) {
	channel := f.channelName(topic.Table)
	pubsub := f.client.Subscribe(ctx, channel)

	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, errs.Unavailable(err))
	}

	stream := gateway.NewStream(f.buffer, pubsub.Close)
	go f.pump(pubsub.Channel(), topic, stream)

	f.logger.DebugContext(ctx, "redis feed subscription opened",
		slog.String("topic", topic.String()),
		slog.String("channel", channel),
	)
	return stream, nil
}

func (f *RedisFeed) pump(msgCh <-chan *redis.Message, topic gateway.Topic, stream *gateway.Stream) {
	for {
		select {
		case <-stream.Done():
			return
		case msg, ok := <-msgCh:
			if !ok {
				stream.Drop(errors.New("redis message channel closed"))
				return
			}

			var envelope changeEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
				f.logger.Error("failed to unmarshal change event",
					slog.String("channel", msg.Channel),
					slog.String("error", err.Error()),
				)
				continue
			}

			evt := envelope.event()
			if !topic.Matches(evt) {
				continue
			}
			if !stream.Deliver(evt) {
				return
			}
		}
	}
}

func (f *RedisFeed) channelName(table string) string {
	return f.channelPrefix + table
}

var _ Feed = (*RedisFeed)(nil)
