package shared_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/creatordash/internal/application/shared"
	"github.com/lllypuk/creatordash/internal/domain/errs"
	"github.com/lllypuk/creatordash/internal/gateway"
	"github.com/lllypuk/creatordash/internal/infrastructure/changefeed"
)

const waitFor = 2 * time.Second

var topic = gateway.Topic{Table: gateway.TableMessages, Column: gateway.ColumnReceiverID, Value: "u1"}

type recorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *recorder) handle(_ context.Context, evt gateway.ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, evt.Record.String("id"))
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func message(id string) gateway.ChangeEvent {
	return gateway.ChangeEvent{
		Kind:   gateway.ChangeInsert,
		Table:  gateway.TableMessages,
		Record: gateway.Record{"id": id, "receiver_id": "u1"},
	}
}

type failingChanges struct{}

func (failingChanges) Subscribe(context.Context, gateway.Topic) (gateway.Subscription, error) {
	return nil, errors.New("dial tcp: connection refused")
}

// countingChanges counts Subscribe calls made through it.
type countingChanges struct {
	gateway.Changes
	calls atomic.Int32
}

func (c *countingChanges) Subscribe(ctx context.Context, t gateway.Topic) (gateway.Subscription, error) {
	c.calls.Add(1)
	return c.Changes.Subscribe(ctx, t)
}

func TestListen_DeliversInOrder(t *testing.T) {
	ctx := context.Background()
	feed := changefeed.NewMemoryFeed()
	rec := &recorder{}

	l, err := shared.Listen(ctx, feed, topic, rec.handle, shared.ReconnectPolicy{}, nil)
	require.NoError(t, err)
	defer l.Close()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, feed.Publish(ctx, message(id)))
	}

	assert.Eventually(t, func() bool { return len(rec.snapshot()) == 3 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, rec.snapshot())
}

func TestListen_SubscribeFailure(t *testing.T) {
	_, err := shared.Listen(context.Background(), failingChanges{}, topic, func(context.Context, gateway.ChangeEvent) {},
		shared.ReconnectPolicy{}, nil)

	require.ErrorIs(t, err, errs.ErrBackendUnavailable)
}

func TestListener_CloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	feed := changefeed.NewMemoryFeed()
	rec := &recorder{}

	l, err := shared.Listen(ctx, feed, topic, rec.handle, shared.ReconnectPolicy{}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, feed.Subscribers())

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	assert.Equal(t, 0, feed.Subscribers())

	require.NoError(t, feed.Publish(ctx, message("late")))
	assert.Empty(t, rec.snapshot())
}

func TestListener_DropWithoutReconnect(t *testing.T) {
	ctx := context.Background()
	feed := changefeed.NewMemoryFeed()
	changes := &countingChanges{Changes: feed}
	rec := &recorder{}

	l, err := shared.Listen(ctx, changes, topic, rec.handle, shared.ReconnectPolicy{}, nil)
	require.NoError(t, err)
	defer l.Close()

	feed.DropAll(errors.New("socket closed"))

	require.Eventually(t, func() bool { return feed.Subscribers() == 0 }, waitFor, time.Millisecond)
	assert.Never(t, func() bool { return changes.calls.Load() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestListener_ReconnectsAfterDrop(t *testing.T) {
	ctx := context.Background()
	feed := changefeed.NewMemoryFeed()
	rec := &recorder{}

	policy := shared.ReconnectPolicy{
		Enabled:        true,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		MaxAttempts:    5,
	}
	l, err := shared.Listen(ctx, feed, topic, rec.handle, policy, nil)
	require.NoError(t, err)
	defer l.Close()

	feed.DropAll(errors.New("socket closed"))

	require.Eventually(t, func() bool { return feed.Subscribers() == 1 }, waitFor, time.Millisecond)
	require.NoError(t, feed.Publish(ctx, message("after")))

	assert.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, []string{"after"}, rec.snapshot())

	require.NoError(t, l.Close())
	assert.Equal(t, 0, feed.Subscribers())
}

func TestListener_GivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	feed := changefeed.NewMemoryFeed()
	changes := &countingChanges{Changes: feed}

	policy := shared.ReconnectPolicy{
		Enabled:        true,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		MaxAttempts:    2,
	}
	l, err := shared.Listen(ctx, changes, topic, func(context.Context, gateway.ChangeEvent) {}, policy, nil)
	require.NoError(t, err)

	require.NoError(t, feed.Close())

	// One open plus two failed reopens.
	require.Eventually(t, func() bool { return changes.calls.Load() == 3 }, waitFor, time.Millisecond)
	assert.Never(t, func() bool { return changes.calls.Load() > 3 }, 50*time.Millisecond, 5*time.Millisecond)
	require.NoError(t, l.Close())
}

func TestListener_BacksOffBetweenReopens(t *testing.T) {
	ctx := context.Background()
	feed := changefeed.NewMemoryFeed()
	changes := &countingChanges{Changes: feed}

	policy := shared.ReconnectPolicy{
		Enabled:        true,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     time.Second,
		MaxAttempts:    3,
	}
	l, err := shared.Listen(ctx, changes, topic, func(context.Context, gateway.ChangeEvent) {}, policy, nil)
	require.NoError(t, err)

	feed.DropAll(errors.New("socket closed"))

	// The first reopen waits out the initial interval.
	assert.Never(t, func() bool { return changes.calls.Load() > 1 }, 100*time.Millisecond, 5*time.Millisecond)
	require.Eventually(t, func() bool { return changes.calls.Load() == 2 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 1, feed.Subscribers())

	require.NoError(t, l.Close())
	assert.Equal(t, 0, feed.Subscribers())
}

func TestValidateUserID(t *testing.T) {
	err := shared.ValidateUserID("")
	require.ErrorIs(t, err, errs.ErrInvalidInput)

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "userID", verr.Field)

	assert.NoError(t, shared.ValidateUserID("b3c0c7a2-9a51-4a5e-8d33-53b6fb3d8c3e"))
}
