package changefeed

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/lllypuk/creatordash/internal/domain/errs"
	"github.com/lllypuk/creatordash/internal/gateway"
)

// MemoryFeed is an in-process change feed.
type MemoryFeed struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*memorySub
	closed bool
	buffer int
	logger *slog.Logger
}

type memorySub struct {
	topic  gateway.Topic
	stream *gateway.Stream
}

// MemoryOption configures a MemoryFeed.
type MemoryOption func(*MemoryFeed)

// WithMemoryLogger sets the logger.
func WithMemoryLogger(logger *slog.Logger) MemoryOption {
	return func(f *MemoryFeed) {
		f.logger = logger
	}
}

// WithBuffer sets the per-subscription event buffer.
func WithBuffer(n int) MemoryOption {
	return func(f *MemoryFeed) {
		f.buffer = n
	}
}

// NewMemoryFeed creates an empty feed.
func NewMemoryFeed(opts ...MemoryOption) *MemoryFeed {
	f := &MemoryFeed{
		subs:   make(map[int]*memorySub),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Subscribe opens a push channel for topic.
func (f *MemoryFeed) Subscribe(ctx context.Context, topic gateway.Topic) (gateway.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, errs.ErrClosed
	}

	id := f.nextID
	f.nextID++

	stream := gateway.NewStream(f.buffer, func() error {
		f.remove(id)
		return nil
	})
	f.subs[id] = &memorySub{topic: topic, stream: stream}

	f.logger.DebugContext(ctx, "memory feed subscription opened",
		slog.String("topic", topic.String()),
		slog.Int("subscription_id", id),
	)
	return stream, nil
}

// Publish delivers evt to every subscription whose topic matches. It blocks while a matching
// subscriber's buffer is full.
func (f *MemoryFeed) Publish(ctx context.Context, evt gateway.ChangeEvent) error {
	if evt.Table == "" {
		return errors.New("change event table cannot be empty")
	}

	for _, s := range f.matching(evt) {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.Deliver(evt)
	}
	return nil
}

// Subscribers returns the number of open subscriptions.
func (f *MemoryFeed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// DropAll ends every open subscription as if the remote side had gone away.
func (f *MemoryFeed) DropAll(cause error) {
	for _, s := range f.snapshot() {
		s.Drop(cause)
	}
}

// Close drops all subscriptions and rejects new ones.
func (f *MemoryFeed) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()

	f.DropAll(errs.ErrClosed)
	return nil
}

func (f *MemoryFeed) matching(evt gateway.ChangeEvent) []*gateway.Stream {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*gateway.Stream, 0, len(f.subs))
	for _, id := range slices.Sorted(maps.Keys(f.subs)) {
		if s := f.subs[id]; s.topic.Matches(evt) {
			out = append(out, s.stream)
		}
	}
	return out
}

func (f *MemoryFeed) snapshot() []*gateway.Stream {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*gateway.Stream, 0, len(f.subs))
	for _, s := range f.subs {
		out = append(out, s.stream)
	}
	return out
}

func (f *MemoryFeed) remove(id int) {
	f.mu.Lock()
	delete(f.subs, id)
	f.mu.Unlock()
}

var _ Feed = (*MemoryFeed)(nil)
