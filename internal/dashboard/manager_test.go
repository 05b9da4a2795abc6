package dashboard_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/creatordash/internal/application/stats"
	"github.com/lllypuk/creatordash/internal/clock"
	"github.com/lllypuk/creatordash/internal/dashboard"
	"github.com/lllypuk/creatordash/internal/domain/errs"
	"github.com/lllypuk/creatordash/internal/domain/uuid"
	"github.com/lllypuk/creatordash/internal/gateway"
	"github.com/lllypuk/creatordash/internal/infrastructure/changefeed"
	"github.com/lllypuk/creatordash/internal/infrastructure/memory"
	"github.com/lllypuk/creatordash/tests/testutil"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

var t0 = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type pushed struct {
	userID  uuid.UUID
	msgType string
	data    any
}

// recordingPusher remembers every pushed message.
type recordingPusher struct {
	mu   sync.Mutex
	msgs []pushed
}

func (p *recordingPusher) Push(_ context.Context, userID uuid.UUID, msgType string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, pushed{userID: userID, msgType: msgType, data: data})
	return nil
}

func (p *recordingPusher) count(msgType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, m := range p.msgs {
		if m.msgType == msgType {
			n++
		}
	}
	return n
}

func (p *recordingPusher) lastState() (dashboard.State, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := len(p.msgs) - 1; i >= 0; i-- {
		if st, ok := p.msgs[i].data.(dashboard.State); ok {
			return st, true
		}
	}
	return dashboard.State{}, false
}

type fixture struct {
	userID  uuid.UUID
	feed    *changefeed.MemoryFeed
	backend *memory.Backend
	pusher  *recordingPusher
	manager *dashboard.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fake := clock.NewFake(t0)
	f := &fixture{
		userID: uuid.NewUUID(),
		feed:   changefeed.NewMemoryFeed(changefeed.WithMemoryLogger(testutil.DiscardLogger())),
		pusher: &recordingPusher{},
	}
	f.backend = memory.NewBackend(
		memory.WithPublisher(f.feed),
		memory.WithClock(fake),
		memory.WithLogger(testutil.DiscardLogger()),
	)

	st := stats.NewService(f.backend, f.backend,
		stats.WithClock(fake),
		stats.WithLogger(testutil.DiscardLogger()),
	)
	f.manager = dashboard.NewManager(f.backend, f.feed, st,
		dashboard.WithPusher(f.pusher),
		dashboard.WithClock(fake),
		dashboard.WithLogger(testutil.DiscardLogger()),
	)
	t.Cleanup(func() { _ = f.manager.CloseAll() })
	return f
}

func (f *fixture) seed() {
	uid := f.userID.String()
	f.backend.Seed(gateway.TableNotifications,
		gateway.Record{"id": "n1", "user_id": uid, "title": "Old", "created_at": t0.Add(-2 * time.Hour), "read": true},
		gateway.Record{"id": "n2", "user_id": uid, "title": "New", "created_at": t0.Add(-5 * time.Minute), "read": false},
	)
	f.backend.Seed(gateway.TableMessages,
		gateway.Record{"id": "m1", "receiver_id": uid, "read_at": nil},
	)
	f.backend.Seed(gateway.TableChannelViews,
		gateway.Record{"user_id": uid, "day": "2025-03-02", "views": 42},
	)
}

// acquire holds the user's session for the rest of the test.
func (f *fixture) acquire(t *testing.T) *dashboard.Session {
	t.Helper()
	s, release, err := f.manager.Acquire(context.Background(), f.userID)
	require.NoError(t, err)
	t.Cleanup(release)
	return s
}

func TestManager_AcquireLoadsState(t *testing.T) {
	f := newFixture(t)
	f.seed()

	s := f.acquire(t)

	st := s.State()
	assert.Equal(t, f.userID.String(), st.UserID)
	require.Len(t, st.Notifications, 2)
	assert.Equal(t, "n2", st.Notifications[0].ID)
	assert.Equal(t, "5m ago", st.Notifications[0].Time)
	assert.Equal(t, 1, st.UnreadCount)
	assert.True(t, st.HasNewNotification)
	assert.True(t, st.HasUnreadMessages)

	require.Eventually(t, func() bool {
		latest, ok := f.pusher.lastState()
		return ok && latest.Stats != nil && latest.Stats.MonthlyViews == 42
	}, waitFor, tick)
}

func TestManager_InsertPushesStateAndChime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := f.acquire(t)

	_, err := f.backend.Insert(ctx, gateway.TableNotifications, gateway.Record{
		"id":      "n9",
		"user_id": f.userID.String(),
		"title":   "Payout sent",
		"read":    false,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return f.pusher.count(dashboard.MessageChime) == 1 }, waitFor, tick)
	require.Eventually(t, func() bool {
		latest, ok := f.pusher.lastState()
		return ok && len(latest.Notifications) == 1 && latest.Notifications[0].ID == "n9"
	}, waitFor, tick)
	assert.Equal(t, 1, s.State().UnreadCount)
}

func TestManager_MessageFlipPushesState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := f.acquire(t)
	assert.False(t, s.State().HasUnreadMessages)

	_, err := f.backend.Insert(ctx, gateway.TableMessages, gateway.Record{
		"receiver_id": f.userID.String(),
		"read_at":     nil,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		latest, ok := f.pusher.lastState()
		return ok && latest.HasUnreadMessages
	}, waitFor, tick)
}

func TestSession_MarkAllAndClear(t *testing.T) {
	f := newFixture(t)
	f.seed()
	ctx := context.Background()

	s := f.acquire(t)

	require.NoError(t, s.MarkAllAsRead(ctx))
	st := s.State()
	assert.Len(t, st.Notifications, 2)
	assert.Zero(t, st.UnreadCount)
	assert.False(t, st.HasNewNotification)

	require.NoError(t, s.ClearAll(ctx))
	assert.Empty(t, s.State().Notifications)

	latest, ok := f.pusher.lastState()
	require.True(t, ok)
	assert.Empty(t, latest.Notifications)
}

func TestSession_MarkAllFailure(t *testing.T) {
	f := newFixture(t)
	f.seed()
	ctx := context.Background()

	s := f.acquire(t)

	f.backend.InjectError(memory.OpUpdate, errs.ErrBackendUnavailable)
	err := s.MarkAllAsRead(ctx)
	require.ErrorIs(t, err, errs.ErrBackendUnavailable)
	assert.Equal(t, 1, s.State().UnreadCount)
}

func TestManager_AcquireRelease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s1, release1, err := f.manager.Acquire(ctx, f.userID)
	require.NoError(t, err)
	s2, release2, err := f.manager.Acquire(ctx, f.userID)
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, f.manager.Len())
	// one channel for notifications, one for messages
	assert.Equal(t, 2, f.feed.Subscribers())

	release1()
	release1()
	assert.Equal(t, 1, f.manager.Len())

	release2()
	assert.Zero(t, f.manager.Len())
	assert.Zero(t, f.feed.Subscribers())

	s3, release3, err := f.manager.Acquire(ctx, f.userID)
	require.NoError(t, err)
	defer release3()
	assert.NotSame(t, s1, s3)
}

func TestManager_AcquireFailsWhenChannelCannotOpen(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.feed.Close())

	_, release, err := f.manager.Acquire(context.Background(), f.userID)
	release()
	require.ErrorIs(t, err, errs.ErrBackendUnavailable)
	assert.Zero(t, f.manager.Len())
}

func TestManager_Validation(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.manager.Acquire(context.Background(), "")
	require.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestManager_CloseAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, release1, err := f.manager.Acquire(ctx, f.userID)
	require.NoError(t, err)
	_, release2, err := f.manager.Acquire(ctx, uuid.NewUUID())
	require.NoError(t, err)

	require.NoError(t, f.manager.CloseAll())
	assert.Zero(t, f.manager.Len())
	assert.Zero(t, f.feed.Subscribers())

	// releases after CloseAll are harmless
	release1()
	release2()
	assert.Zero(t, f.manager.Len())

	_, _, err = f.manager.Acquire(ctx, f.userID)
	require.ErrorIs(t, err, errs.ErrClosed)
}
