package httphandler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/creatordash/internal/application/stats"
	"github.com/lllypuk/creatordash/internal/clock"
	"github.com/lllypuk/creatordash/internal/dashboard"
	"github.com/lllypuk/creatordash/internal/domain/uuid"
	"github.com/lllypuk/creatordash/internal/gateway"
	httphandler "github.com/lllypuk/creatordash/internal/handler/http"
	"github.com/lllypuk/creatordash/internal/infrastructure/changefeed"
	"github.com/lllypuk/creatordash/internal/infrastructure/memory"
	"github.com/lllypuk/creatordash/internal/middleware"
	"github.com/lllypuk/creatordash/tests/testutil"
)

var t0 = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type dashboardFixture struct {
	userID  uuid.UUID
	backend *memory.Backend
	feed    *changefeed.MemoryFeed
	manager *dashboard.Manager
	stats   *stats.Service
	handler *httphandler.DashboardHandler
}

func newDashboardFixture(t *testing.T) *dashboardFixture {
	t.Helper()

	fake := clock.NewFake(t0)
	logger := testutil.DiscardLogger()
	f := &dashboardFixture{
		userID: uuid.NewUUID(),
		feed:   changefeed.NewMemoryFeed(changefeed.WithMemoryLogger(logger)),
	}
	f.backend = memory.NewBackend(
		memory.WithPublisher(f.feed),
		memory.WithClock(fake),
		memory.WithLogger(logger),
	)

	f.stats = stats.NewService(f.backend, f.backend, stats.WithClock(fake), stats.WithLogger(logger))
	f.manager = dashboard.NewManager(f.backend, f.feed, f.stats,
		dashboard.WithClock(fake),
		dashboard.WithLogger(logger),
	)
	f.handler = httphandler.NewDashboardHandler(f.manager, f.stats)

	t.Cleanup(func() { _ = f.manager.CloseAll() })
	return f
}

func (f *dashboardFixture) seed() {
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

// call runs h with an authenticated context and decodes the envelope.
func call(t *testing.T, h echo.HandlerFunc, method string, userID uuid.UUID) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(method, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if !userID.IsZero() {
		c.Set(string(middleware.ContextKeyUserID), userID)
	}

	require.NoError(t, h(c))

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func TestDashboardHandler_Dashboard(t *testing.T) {
	f := newDashboardFixture(t)
	f.seed()

	rec, env := call(t, f.handler.Dashboard, http.MethodGet, f.userID)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)

	var st dashboard.State
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, f.userID.String(), st.UserID)
	require.Len(t, st.Notifications, 2)
	assert.Equal(t, "n2", st.Notifications[0].ID)
	assert.Equal(t, "5m ago", st.Notifications[0].Time)
	assert.Equal(t, 1, st.UnreadCount)
	assert.True(t, st.HasNewNotification)
	assert.True(t, st.HasUnreadMessages)
}

func TestDashboardHandler_ReleasesSession(t *testing.T) {
	f := newDashboardFixture(t)

	rec, _ := call(t, f.handler.Dashboard, http.MethodGet, f.userID)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, f.manager.Len())
}

func TestDashboardHandler_SharesOpenSession(t *testing.T) {
	f := newDashboardFixture(t)
	f.seed()

	s, release, err := f.manager.Acquire(context.Background(), f.userID)
	require.NoError(t, err)
	defer release()

	rec, _ := call(t, f.handler.MarkAllRead, http.MethodPost, f.userID)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 0, s.State().UnreadCount)
	assert.Equal(t, 1, f.manager.Len())
}

func TestDashboardHandler_Notifications(t *testing.T) {
	f := newDashboardFixture(t)
	f.seed()

	rec, env := call(t, f.handler.Notifications, http.MethodGet, f.userID)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp httphandler.NotificationsResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Len(t, resp.Notifications, 2)
	assert.Equal(t, 1, resp.UnreadCount)
	assert.True(t, resp.HasNewNotification)
}

func TestDashboardHandler_MarkAllRead(t *testing.T) {
	f := newDashboardFixture(t)
	f.seed()

	rec, env := call(t, f.handler.MarkAllRead, http.MethodPost, f.userID)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp httphandler.NotificationsResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, 0, resp.UnreadCount)
	assert.False(t, resp.HasNewNotification)
	for _, n := range resp.Notifications {
		assert.True(t, n.Read, n.ID)
	}

	for _, row := range f.backend.Rows(gateway.TableNotifications) {
		assert.Equal(t, true, row["read"])
	}
}

func TestDashboardHandler_Clear(t *testing.T) {
	f := newDashboardFixture(t)
	f.seed()

	rec, env := call(t, f.handler.Clear, http.MethodPost, f.userID)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp httphandler.NotificationsResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Empty(t, resp.Notifications)
	assert.Equal(t, 0, resp.UnreadCount)

	// Cleared items come back read on the next load.
	_, env = call(t, f.handler.Notifications, http.MethodGet, f.userID)
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Len(t, resp.Notifications, 2)
	assert.Equal(t, 0, resp.UnreadCount)
}

func TestDashboardHandler_MarkAllReadFailure(t *testing.T) {
	f := newDashboardFixture(t)
	f.seed()
	f.backend.InjectError(memory.OpUpdate, errors.New("connection reset"))

	rec, env := call(t, f.handler.MarkAllRead, http.MethodPost, f.userID)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, "SERVICE_UNAVAILABLE", env.Error.Code)
}

func TestDashboardHandler_UnreadMessages(t *testing.T) {
	f := newDashboardFixture(t)

	_, env := call(t, f.handler.UnreadMessages, http.MethodGet, f.userID)
	var resp httphandler.UnreadMessagesResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.False(t, resp.HasUnread)

	f.seed()

	_, env = call(t, f.handler.UnreadMessages, http.MethodGet, f.userID)
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.True(t, resp.HasUnread)
}

func TestDashboardHandler_Stats(t *testing.T) {
	f := newDashboardFixture(t)
	f.seed()

	rec, env := call(t, f.handler.Stats, http.MethodGet, f.userID)
	assert.Equal(t, http.StatusOK, rec.Code)

	var st stats.Stats
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, int64(42), st.MonthlyViews)
	assert.Equal(t, 0, st.LinkedChannels)

	// Without a session nothing is kept for the user.
	_, kept := f.stats.Latest(f.userID)
	assert.False(t, kept)
}

func TestDashboardHandler_StatsUnavailable(t *testing.T) {
	f := newDashboardFixture(t)
	f.backend.InjectError(memory.OpCall, errors.New("timeout"))

	rec, env := call(t, f.handler.Stats, http.MethodGet, f.userID)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "SERVICE_UNAVAILABLE", env.Error.Code)
}

func TestDashboardHandler_SessionUnavailable(t *testing.T) {
	f := newDashboardFixture(t)
	require.NoError(t, f.feed.Close())

	rec, env := call(t, f.handler.Dashboard, http.MethodGet, f.userID)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, env.Success)
}

func TestDashboardHandler_Unauthorized(t *testing.T) {
	f := newDashboardFixture(t)

	handlers := map[string]echo.HandlerFunc{
		"dashboard":     f.handler.Dashboard,
		"notifications": f.handler.Notifications,
		"read-all":      f.handler.MarkAllRead,
		"clear":         f.handler.Clear,
		"messages":      f.handler.UnreadMessages,
		"stats":         f.handler.Stats,
	}
	for name, h := range handlers {
		t.Run(name, func(t *testing.T) {
			rec, env := call(t, h, http.MethodGet, uuid.UUID(""))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
		})
	}
	assert.Equal(t, 0, f.manager.Len())
}

func TestDashboardHandler_RegisterRoutes(t *testing.T) {
	f := newDashboardFixture(t)

	e := echo.New()
	f.handler.RegisterRoutes(e.Group("/api/v1"))

	routes := make(map[string]bool)
	for _, r := range e.Routes() {
		routes[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /api/v1/dashboard",
		"GET /api/v1/notifications",
		"POST /api/v1/notifications/read-all",
		"POST /api/v1/notifications/clear",
		"GET /api/v1/messages/unread",
		"GET /api/v1/stats",
	} {
		assert.True(t, routes[want], want)
	}
}
