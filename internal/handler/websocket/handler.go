// Package websocket provides the HTTP handler that turns an authenticated request into a
// live dashboard connection.
package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/lllypuk/creatordash/internal/dashboard"
	"github.com/lllypuk/creatordash/internal/domain/uuid"
	ws "github.com/lllypuk/creatordash/internal/infrastructure/websocket"
	"github.com/lllypuk/creatordash/internal/middleware"
)

// Commands a connected dashboard may send.
const (
	CommandMarkAllRead = "notifications.mark_all_read"
	CommandClear       = "notifications.clear"
	CommandRefresh     = "dashboard.refresh"
)

const (
	defaultHandlerReadBufferSize  = 1024
	defaultHandlerWriteBufferSize = 1024
	defaultCommandTimeout         = 10 * time.Second
)

// SessionManager hands out reference-counted dashboard sessions.
type SessionManager interface {
	Acquire(ctx context.Context, userID uuid.UUID) (*dashboard.Session, func(), error)
}

// Handler handles WebSocket HTTP requests.
type Handler struct {
	hub            *ws.Hub
	sessions       SessionManager
	upgrader       websocket.Upgrader
	logger         *slog.Logger
	clientConfig   ws.ClientConfig
	commandTimeout time.Duration
}

// HandlerConfig holds configuration for the WebSocket handler.
type HandlerConfig struct {
	ReadBufferSize  int
	WriteBufferSize int

	// CheckOrigin reports whether the request origin is acceptable. Nil allows every origin.
	CheckOrigin func(r *http.Request) bool

	ClientConfig ws.ClientConfig

	// CommandTimeout bounds each client command.
	CommandTimeout time.Duration
}

// DefaultHandlerConfig returns a default configuration.
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		ReadBufferSize:  defaultHandlerReadBufferSize,
		WriteBufferSize: defaultHandlerWriteBufferSize,
		ClientConfig:    ws.DefaultClientConfig(),
		CommandTimeout:  defaultCommandTimeout,
	}
}

// HandlerOption configures the Handler.
type HandlerOption func(*Handler)

// WithHandlerLogger sets the logger for the handler.
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithHandlerConfig sets the handler configuration.
func WithHandlerConfig(config HandlerConfig) HandlerOption {
	return func(h *Handler) {
		if config.ReadBufferSize > 0 {
			h.upgrader.ReadBufferSize = config.ReadBufferSize
		}
		if config.WriteBufferSize > 0 {
			h.upgrader.WriteBufferSize = config.WriteBufferSize
		}
		if config.CheckOrigin != nil {
			h.upgrader.CheckOrigin = config.CheckOrigin
		}
		if config.CommandTimeout > 0 {
			h.commandTimeout = config.CommandTimeout
		}
		if config.ClientConfig != (ws.ClientConfig{}) {
			h.clientConfig = config.ClientConfig
		}
	}
}

// NewHandler creates a new WebSocket handler.
func NewHandler(hub *ws.Hub, sessions SessionManager, opts ...HandlerOption) *Handler {
	h := &Handler{
		hub:      hub,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  defaultHandlerReadBufferSize,
			WriteBufferSize: defaultHandlerWriteBufferSize,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:         slog.Default(),
		clientConfig:   ws.DefaultClientConfig(),
		commandTimeout: defaultCommandTimeout,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// HandleWebSocket opens (or joins) the user's dashboard session, upgrades the connection and
// registers the client. The session reference is dropped when the socket closes.
func (h *Handler) HandleWebSocket(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID.IsZero() {
		h.logger.Warn("websocket connection rejected: authentication required",
			slog.String("remote_ip", c.RealIP()),
		)
		return c.JSON(http.StatusUnauthorized, map[string]any{
			"success": false,
			"error": map[string]string{
				"code":    "UNAUTHORIZED",
				"message": "Authentication required",
			},
		})
	}

	session, release, err := h.sessions.Acquire(c.Request().Context(), userID)
	if err != nil {
		h.logger.Error("failed to open dashboard session",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()),
		)
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"success": false,
			"error": map[string]string{
				"code":    "SERVICE_UNAVAILABLE",
				"message": "Dashboard is temporarily unavailable",
			},
		})
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		release()
		h.logger.Error("websocket upgrade failed",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()),
		)
		return nil // Upgrade already sent an error response
	}

	client := ws.NewClient(
		h.hub,
		conn,
		userID,
		ws.WithClientConfig(h.clientConfig),
		ws.WithClientLogger(h.logger),
		ws.WithMessageHandler(h.commandHandler(session)),
		ws.WithOnClose(release),
	)

	h.hub.Register(client)

	h.logger.Info("websocket connection established",
		slog.String("user_id", userID.String()),
		slog.String("remote_ip", c.RealIP()),
	)

	go client.WritePump()
	go client.ReadPump()

	// The first state push may have happened before this socket was registered.
	client.SendJSON(ws.OutboundMessage{Type: dashboard.MessageState, Data: session.State()})

	return nil
}

// commandHandler runs dashboard commands against the session. The resulting state reaches
// the client through the session's pusher.
func (h *Handler) commandHandler(session *dashboard.Session) ws.MessageHandler {
	return func(ctx context.Context, c *ws.Client, msg ws.ClientMessage) {
		ctx, cancel := context.WithTimeout(ctx, h.commandTimeout)
		defer cancel()

		var err error
		switch msg.Type {
		case CommandMarkAllRead:
			err = session.MarkAllAsRead(ctx)
		case CommandClear:
			err = session.ClearAll(ctx)
		case CommandRefresh:
			err = session.Refresh(ctx)
		default:
			c.SendError("unknown message type: " + msg.Type)
			return
		}

		if err != nil {
			h.logger.WarnContext(ctx, "dashboard command failed",
				slog.String("user_id", c.UserID().String()),
				slog.String("command", msg.Type),
				slog.String("error", err.Error()),
			)
			c.SendError(msg.Type + " failed")
		}
	}
}

// RegisterRoutesWithGroup registers the WebSocket handler with an Echo group.
func (h *Handler) RegisterRoutesWithGroup(g *echo.Group) {
	g.GET("/ws", h.HandleWebSocket)
}
