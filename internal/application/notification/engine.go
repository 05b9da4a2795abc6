// Package notification keeps a creator's notification list in sync with the backend:
// an initial fetch reconciled with a live stream of inserts, bulk read marking and the
// transient new-notification signal.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/lllypuk/creatordash/internal/application/shared"
	"github.com/lllypuk/creatordash/internal/clock"
	"github.com/lllypuk/creatordash/internal/domain/errs"
	"github.com/lllypuk/creatordash/internal/domain/notification"
	"github.com/lllypuk/creatordash/internal/domain/uuid"
	"github.com/lllypuk/creatordash/internal/gateway"
	"github.com/lllypuk/creatordash/internal/reltime"
)

// Engine owns the local notification list of one identity at a time.
type Engine struct {
	records gateway.Records
	changes gateway.Changes

	logger    *slog.Logger
	clock     clock.Clock
	chime     Chime
	window    time.Duration
	reconnect shared.ReconnectPolicy
	onSignal  func(active bool)

	formatter *reltime.Formatter
	signal    *Signal

	// subMu serializes Subscribe, Close and identity switches.
	subMu    sync.Mutex
	listener *shared.Listener

	mu     sync.RWMutex
	userID uuid.UUID
	items  []notification.Notification
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock sets the clock used for display times and the signal timer.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithChime sets the audible cue for unread inserts.
func WithChime(c Chime) Option {
	return func(e *Engine) {
		e.chime = c
	}
}

// WithSignalWindow overrides DefaultSignalWindow.
func WithSignalWindow(d time.Duration) Option {
	return func(e *Engine) {
		e.window = d
	}
}

// WithReconnect enables reopening a dropped push channel.
func WithReconnect(p shared.ReconnectPolicy) Option {
	return func(e *Engine) {
		e.reconnect = p
	}
}

// WithSignalListener registers a callback for signal flips.
func WithSignalListener(fn func(active bool)) Option {
	return func(e *Engine) {
		e.onSignal = fn
	}
}

// NewEngine creates an engine with an empty list and no identity.
func NewEngine(records gateway.Records, changes gateway.Changes, opts ...Option) *Engine {
	e := &Engine{
		records: records,
		changes: changes,
		logger:  slog.Default(),
		clock:   clock.New(),
		chime:   NopChime{},
		window:  DefaultSignalWindow,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.formatter = reltime.NewFormatter(e.clock)
	e.signal = NewSignal(e.clock, e.window, e.onSignal)
	return e
}

// Load replaces the local list with the user's notifications, newest first.
// On failure the list is left empty and the error wraps errs.ErrBackendUnavailable.
func (e *Engine) Load(ctx context.Context, userID uuid.UUID) ([]notification.Notification, error) {
	if err := shared.ValidateUserID(userID); err != nil {
		return nil, err
	}
	e.bind(userID)

	rows, err := e.records.Select(ctx, gateway.Query{
		Table:   gateway.TableNotifications,
		Filters: []gateway.Filter{gateway.Eq(gateway.ColumnUserID, userID.String())},
		Order:   &gateway.Order{Column: gateway.ColumnCreatedAt, Descending: true},
	})
	if err != nil {
		e.replace(userID, nil)
		e.logger.ErrorContext(ctx, "failed to load notifications",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to load notifications: %w", errs.Unavailable(err))
	}

	items := make([]notification.Notification, 0, len(rows))
	for _, row := range rows {
		n, decodeErr := decodeNotification(row)
		if decodeErr != nil {
			e.logger.WarnContext(ctx, "skipping malformed notification row",
				slog.String("user_id", userID.String()),
				slog.String("error", decodeErr.Error()),
			)
			continue
		}
		items = append(items, n.WithTime(e.formatter.FormatSince(n.CreatedAt())))
	}

	items = e.replace(userID, items)

	e.logger.DebugContext(ctx, "notifications loaded",
		slog.String("user_id", userID.String()),
		slog.Int("count", len(items)),
	)

	if notification.AnyUnread(items) {
		e.signal.Raise()
	}
	return slices.Clone(items), nil
}

// Subscribe opens the push channel for the user's notification inserts. onInsert, if not nil,
// is called from the channel goroutine after each insert is integrated; it must not call Close.
// Subscribing again for the bound identity is a no-op. Subscribing for another identity
// first tears the previous one down.
func (e *Engine) Subscribe(
	ctx context.Context,
	userID uuid.UUID,
	onInsert func(notification.Notification),
) error {
	if err := shared.ValidateUserID(userID); err != nil {
		return err
	}

	e.subMu.Lock()
	defer e.subMu.Unlock()

	if e.listener != nil && e.currentUser() == userID {
		e.logger.DebugContext(ctx, "notification channel already open",
			slog.String("user_id", userID.String()),
		)
		return nil
	}
	e.bindLocked(userID)

	topic := gateway.Topic{
		Table:  gateway.TableNotifications,
		Column: gateway.ColumnUserID,
		Value:  userID.String(),
	}
	handle := func(ctx context.Context, evt gateway.ChangeEvent) {
		e.handleChange(ctx, userID, evt, onInsert)
	}

	l, err := shared.Listen(ctx, e.changes, topic, handle, e.reconnect, e.logger)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to open notification channel",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()),
		)
		return err
	}
	e.listener = l
	return nil
}

// MarkAllAsRead flags every notification of the user as read in the backend and, once the
// write succeeded, locally. The signal is cleared.
func (e *Engine) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	if err := e.markAllRead(ctx, userID); err != nil {
		return fmt.Errorf("failed to mark notifications as read: %w", err)
	}

	e.mu.Lock()
	if e.userID == userID {
		for i := range e.items {
			e.items[i].MarkAsRead()
		}
	}
	e.mu.Unlock()

	e.signal.Clear()
	return nil
}

// ClearAll issues the same backend write as MarkAllAsRead but empties the local list on success.
// Notifications are not deleted remotely; a later Load brings them back as read.
func (e *Engine) ClearAll(ctx context.Context, userID uuid.UUID) error {
	if err := e.markAllRead(ctx, userID); err != nil {
		return fmt.Errorf("failed to clear notifications: %w", err)
	}

	e.mu.Lock()
	if e.userID == userID {
		e.items = nil
	}
	e.mu.Unlock()

	e.signal.Clear()
	return nil
}

// Close releases the push channel and stops the signal timer. Only the first call after a
// Subscribe does any work.
func (e *Engine) Close() error {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	err := e.closeListenerLocked()
	e.signal.Clear()
	return err
}

// Notifications returns a snapshot of the local list, newest first.
func (e *Engine) Notifications() []notification.Notification {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.items)
}

// UnreadCount returns the number of unread notifications in the local list.
func (e *Engine) UnreadCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	count := 0
	for _, n := range e.items {
		if !n.IsRead() {
			count++
		}
	}
	return count
}

// HasNewNotification reports whether the new-notification signal is up.
func (e *Engine) HasNewNotification() bool {
	return e.signal.Active()
}

// UserID returns the bound identity, or "" before the first Load or Subscribe.
func (e *Engine) UserID() uuid.UUID {
	return e.currentUser()
}

func (e *Engine) markAllRead(ctx context.Context, userID uuid.UUID) error {
	if err := shared.ValidateUserID(userID); err != nil {
		return err
	}

	err := e.records.Update(ctx,
		gateway.TableNotifications,
		[]gateway.Filter{gateway.Eq(gateway.ColumnUserID, userID.String())},
		gateway.Record{gateway.ColumnRead: true},
	)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to update notifications",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()),
		)
		return errs.Unavailable(err)
	}
	return nil
}

func (e *Engine) handleChange(
	ctx context.Context,
	userID uuid.UUID,
	evt gateway.ChangeEvent,
	onInsert func(notification.Notification),
) {
	if evt.Kind != gateway.ChangeInsert {
		e.logger.DebugContext(ctx, "ignoring notification change",
			slog.String("kind", string(evt.Kind)),
			slog.String("user_id", userID.String()),
		)
		return
	}

	n, err := decodeNotification(evt.Record)
	if err != nil {
		e.logger.WarnContext(ctx, "dropping malformed notification insert",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	n = n.WithTime(e.formatter.FormatSince(n.CreatedAt()))

	if !e.prepend(userID, n) {
		e.logger.WarnContext(ctx, "dropping duplicate notification insert",
			slog.String("user_id", userID.String()),
			slog.String("notification_id", n.ID()),
		)
		return
	}

	if !n.IsRead() {
		e.signal.Raise()
		if chimeErr := e.chime.Play(ctx); chimeErr != nil {
			e.logger.DebugContext(ctx, "chime failed",
				slog.String("user_id", userID.String()),
				slog.String("error", chimeErr.Error()),
			)
		}
	}

	if onInsert != nil {
		onInsert(n)
	}
}

// prepend adds n at the head of the list. It reports false when n belongs to another identity
// or its id is already present.
func (e *Engine) prepend(userID uuid.UUID, n notification.Notification) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.userID != userID {
		return false
	}
	if slices.ContainsFunc(e.items, func(existing notification.Notification) bool {
		return existing.ID() == n.ID()
	}) {
		return false
	}

	e.items = slices.Insert(e.items, 0, n)
	return true
}

// replace installs items for userID, keeping the first row of any repeated id.
// It returns the installed list.
func (e *Engine) replace(userID uuid.UUID, items []notification.Notification) []notification.Notification {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.userID != userID {
		return nil
	}
	e.items = dedupe(items)
	return e.items
}

func (e *Engine) bind(userID uuid.UUID) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.bindLocked(userID)
}

// bindLocked switches the engine to userID, tearing down the previous identity. subMu must be held.
func (e *Engine) bindLocked(userID uuid.UUID) {
	prev := e.currentUser()
	if prev == userID {
		return
	}

	if !prev.IsZero() {
		if err := e.closeListenerLocked(); err != nil {
			e.logger.Warn("failed to release notification channel",
				slog.String("user_id", prev.String()),
				slog.String("error", err.Error()),
			)
		}
		e.signal.Clear()
	}

	e.mu.Lock()
	e.userID = userID
	e.items = nil
	e.mu.Unlock()
}

func (e *Engine) closeListenerLocked() error {
	if e.listener == nil {
		return nil
	}
	err := e.listener.Close()
	e.listener = nil
	return err
}

func (e *Engine) currentUser() uuid.UUID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.userID
}

func dedupe(items []notification.Notification) []notification.Notification {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, n := range items {
		if _, ok := seen[n.ID()]; ok {
			continue
		}
		seen[n.ID()] = struct{}{}
		out = append(out, n)
	}
	return out
}
