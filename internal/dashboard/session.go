// Package dashboard ties the per-user pieces of the creator dashboard together: the
// notification engine, the unread-message watcher and the stats refresher. Every change is
// pushed to the user's connected sockets as a full state snapshot.
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lllypuk/creatordash/internal/application/message"
	"github.com/lllypuk/creatordash/internal/application/notification"
	"github.com/lllypuk/creatordash/internal/application/stats"
	domain "github.com/lllypuk/creatordash/internal/domain/notification"
	"github.com/lllypuk/creatordash/internal/domain/uuid"
)

// Message types pushed to the user's sockets.
const (
	MessageState = "dashboard.state"
	MessageChime = "notification.chime"
)

// Pusher delivers a typed message to every socket of a user.
type Pusher interface {
	Push(ctx context.Context, userID uuid.UUID, msgType string, data any) error
}

// NopPusher drops every message.
type NopPusher struct{}

// Push implements Pusher.
func (NopPusher) Push(context.Context, uuid.UUID, string, any) error { return nil }

// NotificationView is one entry of the notification dropdown.
type NotificationView struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Time      string    `json:"time"`
	CreatedAt time.Time `json:"createdAt"`
	Read      bool      `json:"read"`
}

// State is everything the dashboard header and cards render.
type State struct {
	UserID             string             `json:"userId"`
	Notifications      []NotificationView `json:"notifications"`
	UnreadCount        int                `json:"unreadCount"`
	HasNewNotification bool               `json:"hasNewNotification"`
	HasUnreadMessages  bool               `json:"hasUnreadMessages"`
	Stats              *stats.Stats       `json:"stats,omitempty"`
}

// Session is the live dashboard of one user.
type Session struct {
	userID  uuid.UUID
	engine  *notification.Engine
	watcher *message.Watcher
	stats   *stats.Service
	pusher  Pusher
	logger  *slog.Logger

	cancel   context.CancelFunc
	statsRun chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func newSession(userID uuid.UUID, cfg sessionConfig) *Session {
	s := &Session{
		userID:   userID,
		stats:    cfg.stats,
		pusher:   cfg.pusher,
		logger:   cfg.logger.With(slog.String("user_id", userID.String())),
		statsRun: make(chan struct{}),
	}

	chime := notification.ChimeFunc(func(ctx context.Context) error {
		return s.pusher.Push(ctx, s.userID, MessageChime, nil)
	})

	engineOpts := []notification.Option{
		notification.WithLogger(cfg.logger),
		notification.WithClock(cfg.clock),
		notification.WithChime(chime),
		notification.WithSignalWindow(cfg.signalWindow),
		notification.WithReconnect(cfg.reconnect),
		notification.WithSignalListener(func(bool) { s.pushState(context.Background()) }),
	}
	s.engine = notification.NewEngine(cfg.records, cfg.changes, engineOpts...)
	s.watcher = message.NewWatcher(cfg.records, cfg.changes,
		message.WithLogger(cfg.logger),
		message.WithReconnect(cfg.reconnect),
	)
	return s
}

// open loads the initial state and opens both push channels. A failed initial fetch leaves
// the list empty and is only logged; a channel that cannot be opened fails the session.
func (s *Session) open(ctx context.Context) error {
	if _, err := s.engine.Load(ctx, s.userID); err != nil {
		s.logger.WarnContext(ctx, "initial notification load failed", slog.String("error", err.Error()))
	}
	if _, err := s.watcher.Recount(ctx, s.userID); err != nil {
		s.logger.WarnContext(ctx, "initial unread count failed", slog.String("error", err.Error()))
	}

	onInsert := func(domain.Notification) { s.pushState(context.Background()) }
	if err := s.engine.Subscribe(ctx, s.userID, onInsert); err != nil {
		return errors.Join(err, s.engine.Close())
	}

	onUnread := func(bool) { s.pushState(context.Background()) }
	if err := s.watcher.Watch(ctx, s.userID, onUnread); err != nil {
		return errors.Join(err, s.engine.Close(), s.watcher.Close())
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	go func() {
		defer close(s.statsRun)
		_ = s.stats.Run(runCtx, s.userID, func(stats.Stats) { s.pushState(runCtx) })
	}()

	s.logger.InfoContext(ctx, "dashboard session opened")
	s.pushState(ctx)
	return nil
}

// UserID returns the session's identity.
func (s *Session) UserID() uuid.UUID { return s.userID }

// State returns a snapshot of the dashboard.
func (s *Session) State() State {
	items := s.engine.Notifications()
	views := make([]NotificationView, 0, len(items))
	for _, n := range items {
		views = append(views, NotificationView{
			ID:        n.ID(),
			Title:     n.Title(),
			Content:   n.Content(),
			Time:      n.Time(),
			CreatedAt: n.CreatedAt(),
			Read:      n.IsRead(),
		})
	}

	st := State{
		UserID:             s.userID.String(),
		Notifications:      views,
		UnreadCount:        s.engine.UnreadCount(),
		HasNewNotification: s.engine.HasNewNotification(),
		HasUnreadMessages:  s.watcher.HasUnread(),
	}
	if latest, ok := s.stats.Latest(s.userID); ok {
		st.Stats = &latest
	}
	return st
}

// MarkAllAsRead marks every notification read and pushes the new state.
func (s *Session) MarkAllAsRead(ctx context.Context) error {
	if err := s.engine.MarkAllAsRead(ctx, s.userID); err != nil {
		return err
	}
	s.pushState(ctx)
	return nil
}

// ClearAll empties the notification list and pushes the new state.
func (s *Session) ClearAll(ctx context.Context) error {
	if err := s.engine.ClearAll(ctx, s.userID); err != nil {
		return err
	}
	s.pushState(ctx)
	return nil
}

// Refresh refetches the list, the unread flag and the stats.
func (s *Session) Refresh(ctx context.Context) error {
	_, loadErr := s.engine.Load(ctx, s.userID)
	_, countErr := s.watcher.Recount(ctx, s.userID)
	_, statsErr := s.stats.Fetch(ctx, s.userID)
	s.pushState(ctx)
	return errors.Join(loadErr, countErr, statsErr)
}

// Close releases both channels and stops the stats refresher. Only the first call does any work.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
			<-s.statsRun
		}
		s.closeErr = errors.Join(s.engine.Close(), s.watcher.Close())
		s.stats.Forget(s.userID)
		s.logger.Info("dashboard session closed")
	})
	return s.closeErr
}

func (s *Session) pushState(ctx context.Context) {
	if err := s.pusher.Push(ctx, s.userID, MessageState, s.State()); err != nil {
		s.logger.DebugContext(ctx, "failed to push dashboard state", slog.String("error", err.Error()))
	}
}
