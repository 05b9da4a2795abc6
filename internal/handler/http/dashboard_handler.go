// Package httphandler holds the REST handlers of the dashboard API.
package httphandler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lllypuk/creatordash/internal/application/stats"
	"github.com/lllypuk/creatordash/internal/dashboard"
	"github.com/lllypuk/creatordash/internal/domain/uuid"
	"github.com/lllypuk/creatordash/internal/infrastructure/httpserver"
	"github.com/lllypuk/creatordash/internal/middleware"
)

// NotificationsResponse is the notification dropdown.
type NotificationsResponse struct {
	Notifications      []dashboard.NotificationView `json:"notifications"`
	UnreadCount        int                          `json:"unreadCount"`
	HasNewNotification bool                         `json:"hasNewNotification"`
}

// UnreadMessagesResponse backs the messages badge.
type UnreadMessagesResponse struct {
	HasUnread bool `json:"hasUnread"`
}

// SessionManager hands out reference-counted dashboard sessions.
// Declared on the consumer side per project guidelines.
type SessionManager interface {
	Acquire(ctx context.Context, userID uuid.UUID) (*dashboard.Session, func(), error)
}

// StatsFetcher reads the stats cards.
type StatsFetcher interface {
	Read(ctx context.Context, userID uuid.UUID) (stats.Stats, error)
}

// DashboardHandler serves the dashboard state over plain HTTP. Requests share the user's
// live session when a socket holds it open; otherwise one is opened for the request.
type DashboardHandler struct {
	sessions SessionManager
	stats    StatsFetcher
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(sessions SessionManager, statsFetcher StatsFetcher) *DashboardHandler {
	return &DashboardHandler{
		sessions: sessions,
		stats:    statsFetcher,
	}
}

// RegisterRoutes registers dashboard routes on the authenticated API group.
func (h *DashboardHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/dashboard", h.Dashboard)
	g.GET("/notifications", h.Notifications)
	g.POST("/notifications/read-all", h.MarkAllRead)
	g.POST("/notifications/clear", h.Clear)
	g.GET("/messages/unread", h.UnreadMessages)
	g.GET("/stats", h.Stats)
}

// Dashboard handles GET /api/v1/dashboard.
func (h *DashboardHandler) Dashboard(c echo.Context) error {
	return h.withSession(c, func(s *dashboard.Session) error {
		return httpserver.RespondOK(c, s.State())
	})
}

// Notifications handles GET /api/v1/notifications.
func (h *DashboardHandler) Notifications(c echo.Context) error {
	return h.withSession(c, func(s *dashboard.Session) error {
		return httpserver.RespondOK(c, toNotificationsResponse(s.State()))
	})
}

// MarkAllRead handles POST /api/v1/notifications/read-all.
func (h *DashboardHandler) MarkAllRead(c echo.Context) error {
	return h.withSession(c, func(s *dashboard.Session) error {
		if err := s.MarkAllAsRead(c.Request().Context()); err != nil {
			return handleError(c, err)
		}
		return httpserver.RespondOK(c, toNotificationsResponse(s.State()))
	})
}

// Clear handles POST /api/v1/notifications/clear.
func (h *DashboardHandler) Clear(c echo.Context) error {
	return h.withSession(c, func(s *dashboard.Session) error {
		if err := s.ClearAll(c.Request().Context()); err != nil {
			return handleError(c, err)
		}
		return httpserver.RespondOK(c, toNotificationsResponse(s.State()))
	})
}

// UnreadMessages handles GET /api/v1/messages/unread.
func (h *DashboardHandler) UnreadMessages(c echo.Context) error {
	return h.withSession(c, func(s *dashboard.Session) error {
		return httpserver.RespondOK(c, UnreadMessagesResponse{HasUnread: s.State().HasUnreadMessages})
	})
}

// Stats handles GET /api/v1/stats. It always fetches fresh figures.
func (h *DashboardHandler) Stats(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID.IsZero() {
		return httpserver.RespondErrorWithCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
	}

	st, err := h.stats.Read(c.Request().Context(), userID)
	if err != nil {
		return handleError(c, err)
	}
	return httpserver.RespondOK(c, st)
}

func (h *DashboardHandler) withSession(c echo.Context, fn func(*dashboard.Session) error) error {
	userID := middleware.GetUserID(c)
	if userID.IsZero() {
		return httpserver.RespondErrorWithCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
	}

	session, release, err := h.sessions.Acquire(c.Request().Context(), userID)
	if err != nil {
		return handleError(c, err)
	}
	defer release()

	return fn(session)
}

func toNotificationsResponse(st dashboard.State) NotificationsResponse {
	return NotificationsResponse{
		Notifications:      st.Notifications,
		UnreadCount:        st.UnreadCount,
		HasNewNotification: st.HasNewNotification,
	}
}
