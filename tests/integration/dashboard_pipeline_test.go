package integration_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/creatordash/internal/application/stats"
	"github.com/lllypuk/creatordash/internal/clock"
	"github.com/lllypuk/creatordash/internal/dashboard"
	"github.com/lllypuk/creatordash/internal/domain/uuid"
	"github.com/lllypuk/creatordash/internal/gateway"
	"github.com/lllypuk/creatordash/internal/infrastructure/changefeed"
	"github.com/lllypuk/creatordash/internal/infrastructure/mongodb"
	"github.com/lllypuk/creatordash/tests/testutil"
)

const (
	waitFor = 5 * time.Second
	tick    = 20 * time.Millisecond
)

var t0 = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type pipeline struct {
	store   *mongodb.Store
	manager *dashboard.Manager
	clock   *clock.Fake
}

// newPipeline wires the self-hosted backend: Mongo for rows, Redis pub/sub for changes.
func newPipeline(t *testing.T) *pipeline {
	t.Helper()

	db := testutil.SetupTestMongoDB(t)
	client, prefix := testutil.SetupTestRedisWithPrefix(t)
	feed := changefeed.NewRedisFeed(client,
		changefeed.WithChannelPrefix(prefix),
		changefeed.WithLogger(testutil.DiscardLogger()),
	)
	fake := clock.NewFake(t0)

	store := mongodb.NewStore(db,
		mongodb.WithPublisher(feed),
		mongodb.WithClock(fake),
		mongodb.WithLogger(testutil.DiscardLogger()),
	)
	require.NoError(t, store.EnsureIndexes(testutil.NewTestContext(t)))

	st := stats.NewService(store, store,
		stats.WithClock(fake),
		stats.WithLogger(testutil.DiscardLogger()),
	)
	manager := dashboard.NewManager(store, feed, st,
		dashboard.WithClock(fake),
		dashboard.WithLogger(testutil.DiscardLogger()),
	)
	t.Cleanup(func() { _ = manager.CloseAll() })

	return &pipeline{store: store, manager: manager, clock: fake}
}

func TestDashboardPipeline_LiveNotifications(t *testing.T) {
	p := newPipeline(t)
	ctx := testutil.NewTestContext(t)
	userID := uuid.NewUUID()
	uid := userID.String()

	_, err := p.store.Insert(ctx, gateway.TableNotifications, gateway.Record{
		"user_id": uid, "title": "Welcome", "content": "hello", "read": true,
	})
	require.NoError(t, err)

	session, release, err := p.manager.Acquire(ctx, userID)
	require.NoError(t, err)
	t.Cleanup(release)

	initial := session.State()
	require.Len(t, initial.Notifications, 1)
	assert.Equal(t, 0, initial.UnreadCount)
	assert.False(t, initial.HasUnreadMessages)

	p.clock.Advance(time.Minute)
	_, err = p.store.Insert(ctx, gateway.TableNotifications, gateway.Record{
		"user_id": uid, "title": "New subscriber", "content": "someone joined", "read": false,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return session.State().UnreadCount == 1
	}, waitFor, tick)

	st := session.State()
	require.Len(t, st.Notifications, 2)
	assert.Equal(t, "New subscriber", st.Notifications[0].Title)

	// Rows of other users never reach this dashboard.
	_, err = p.store.Insert(ctx, gateway.TableNotifications, gateway.Record{
		"user_id": uuid.NewUUID().String(), "title": "Not yours", "read": false,
	})
	require.NoError(t, err)

	_, err = p.store.Insert(ctx, gateway.TableMessages, gateway.Record{
		"receiver_id": uid, "content": "hi", "read_at": nil,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return session.State().HasUnreadMessages
	}, waitFor, tick)
	assert.Len(t, session.State().Notifications, 2)
}

func TestDashboardPipeline_MarkAllAsRead(t *testing.T) {
	p := newPipeline(t)
	ctx := testutil.NewTestContext(t)
	userID := uuid.NewUUID()
	uid := userID.String()

	for _, title := range []string{"first", "second"} {
		_, err := p.store.Insert(ctx, gateway.TableNotifications, gateway.Record{
			"user_id": uid, "title": title, "read": false,
		})
		require.NoError(t, err)
	}

	session, release, err := p.manager.Acquire(ctx, userID)
	require.NoError(t, err)
	t.Cleanup(release)
	require.Equal(t, 2, session.State().UnreadCount)

	require.NoError(t, session.MarkAllAsRead(ctx))
	assert.Equal(t, 0, session.State().UnreadCount)

	rows, err := p.store.Select(ctx, gateway.Query{
		Table:   gateway.TableNotifications,
		Filters: []gateway.Filter{gateway.Eq(gateway.ColumnUserID, uid), gateway.Eq(gateway.ColumnRead, false)},
	})
	require.NoError(t, err)
	assert.Empty(t, rows)

	// The update events echo back through Redis without resurrecting unread items.
	assert.Never(t, func() bool {
		return session.State().UnreadCount != 0
	}, 300*time.Millisecond, tick)
}

func TestDashboardPipeline_Stats(t *testing.T) {
	p := newPipeline(t)
	ctx := testutil.NewTestContext(t)
	userID := uuid.NewUUID()
	uid := userID.String()

	for _, row := range []gateway.Record{
		{"user_id": uid, "day": "2025-03-01", "views": 40},
		{"user_id": uid, "day": "2025-03-09", "views": 2},
		{"user_id": uid, "day": "2025-02-28", "views": 1000},
	} {
		_, err := p.store.Insert(ctx, gateway.TableChannelViews, row)
		require.NoError(t, err)
	}
	_, err := p.store.Insert(ctx, gateway.TableUserRequests, gateway.Record{
		"user_id": uid, "youtube_links": []any{"https://youtube.com/@a", "https://youtube.com/@b"},
	})
	require.NoError(t, err)

	session, release, err := p.manager.Acquire(ctx, userID)
	require.NoError(t, err)
	t.Cleanup(release)

	require.Eventually(t, func() bool {
		return session.State().Stats != nil
	}, waitFor, tick)

	got := session.State().Stats
	assert.Equal(t, int64(42), got.MonthlyViews)
	assert.Equal(t, 2, got.LinkedChannels)
}

func TestDashboardPipeline_SharedSession(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	userID := uuid.NewUUID()

	first, release1, err := p.manager.Acquire(ctx, userID)
	require.NoError(t, err)
	second, release2, err := p.manager.Acquire(ctx, userID)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, p.manager.Len())

	release1()
	assert.Equal(t, 1, p.manager.Len())
	release2()
	assert.Equal(t, 0, p.manager.Len())
}
