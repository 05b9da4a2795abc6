// Package message tracks whether a creator has unread direct messages.
package message

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lllypuk/creatordash/internal/application/shared"
	"github.com/lllypuk/creatordash/internal/domain/errs"
	"github.com/lllypuk/creatordash/internal/domain/uuid"
	"github.com/lllypuk/creatordash/internal/gateway"
)

// Watcher keeps the unread-message flag of one identity. The flag is always recomputed with a
// full recount; change events are only a trigger.
type Watcher struct {
	records   gateway.Records
	changes   gateway.Changes
	logger    *slog.Logger
	reconnect shared.ReconnectPolicy

	subMu    sync.Mutex
	listener *shared.Listener

	mu        sync.RWMutex
	userID    uuid.UUID
	hasUnread bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithReconnect enables reopening a dropped push channel.
func WithReconnect(p shared.ReconnectPolicy) Option {
	return func(w *Watcher) {
		w.reconnect = p
	}
}

// NewWatcher creates a watcher with the flag lowered.
func NewWatcher(records gateway.Records, changes gateway.Changes, opts ...Option) *Watcher {
	w := &Watcher{
		records: records,
		changes: changes,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Recount queries the user's unread messages and updates the flag. On failure the flag is
// left unchanged and the error wraps errs.ErrBackendUnavailable.
func (w *Watcher) Recount(ctx context.Context, userID uuid.UUID) (bool, error) {
	if err := shared.ValidateUserID(userID); err != nil {
		return false, err
	}

	rows, err := w.records.Select(ctx, gateway.Query{
		Table:   gateway.TableMessages,
		Columns: []string{"id"},
		Filters: []gateway.Filter{
			gateway.Eq(gateway.ColumnReceiverID, userID.String()),
			gateway.IsNull(gateway.ColumnReadAt),
		},
	})
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to count unread messages",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()),
		)
		return w.HasUnread(), fmt.Errorf("failed to count unread messages: %w", errs.Unavailable(err))
	}

	unread := len(rows) > 0

	w.mu.Lock()
	if w.userID.IsZero() {
		w.userID = userID
	}
	if w.userID == userID {
		w.hasUnread = unread
	}
	w.mu.Unlock()

	return unread, nil
}

// Watch opens the push channel on the user's messages. Every event, whatever its kind, triggers
// exactly one recount; onChange, if not nil, is called when the flag flips. Watching again for
// the bound identity is a no-op; watching another identity releases the previous channel first.
func (w *Watcher) Watch(ctx context.Context, userID uuid.UUID, onChange func(hasUnread bool)) error {
	if err := shared.ValidateUserID(userID); err != nil {
		return err
	}

	w.subMu.Lock()
	defer w.subMu.Unlock()

	if w.listener != nil && w.currentUser() == userID {
		return nil
	}
	w.bindLocked(userID)

	topic := gateway.Topic{
		Table:  gateway.TableMessages,
		Column: gateway.ColumnReceiverID,
		Value:  userID.String(),
	}
	handle := func(ctx context.Context, evt gateway.ChangeEvent) {
		w.logger.DebugContext(ctx, "message change received",
			slog.String("kind", string(evt.Kind)),
			slog.String("user_id", userID.String()),
		)

		before := w.HasUnread()
		after, err := w.Recount(ctx, userID)
		if err != nil {
			return
		}
		if after != before && onChange != nil {
			onChange(after)
		}
	}

	l, err := shared.Listen(ctx, w.changes, topic, handle, w.reconnect, w.logger)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to open message channel",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()),
		)
		return err
	}
	w.listener = l
	return nil
}

// HasUnread reports the last successfully computed flag.
func (w *Watcher) HasUnread() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.hasUnread
}

// Close releases the push channel. Calling it again is a no-op.
func (w *Watcher) Close() error {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	return w.closeListenerLocked()
}

func (w *Watcher) bindLocked(userID uuid.UUID) {
	prev := w.currentUser()
	if prev == userID {
		return
	}
	if err := w.closeListenerLocked(); err != nil {
		w.logger.Warn("failed to release message channel",
			slog.String("user_id", prev.String()),
			slog.String("error", err.Error()),
		)
	}

	w.mu.Lock()
	w.userID = userID
	w.hasUnread = false
	w.mu.Unlock()
}

func (w *Watcher) closeListenerLocked() error {
	if w.listener == nil {
		return nil
	}
	err := w.listener.Close()
	w.listener = nil
	return err
}

func (w *Watcher) currentUser() uuid.UUID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.userID
}
