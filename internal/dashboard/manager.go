package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lllypuk/creatordash/internal/application/shared"
	"github.com/lllypuk/creatordash/internal/application/stats"
	"github.com/lllypuk/creatordash/internal/clock"
	"github.com/lllypuk/creatordash/internal/domain/errs"
	"github.com/lllypuk/creatordash/internal/domain/uuid"
	"github.com/lllypuk/creatordash/internal/gateway"
)

type sessionConfig struct {
	records      gateway.Records
	changes      gateway.Changes
	stats        *stats.Service
	pusher       Pusher
	logger       *slog.Logger
	clock        clock.Clock
	signalWindow time.Duration
	reconnect    shared.ReconnectPolicy
}

// Manager keeps at most one Session per user.
type Manager struct {
	cfg sessionConfig

	mu      sync.Mutex
	entries map[uuid.UUID]*entry
	closed  bool
}

// entry guards one user's session. A retired entry has been removed from the manager and
// must not be reused.
type entry struct {
	mu      sync.Mutex
	session *Session
	refs    int
	retired bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.cfg.logger = logger
	}
}

// WithPusher sets where state snapshots and chimes are sent.
func WithPusher(p Pusher) Option {
	return func(m *Manager) {
		m.cfg.pusher = p
	}
}

// WithClock sets the clock used by the notification engines.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.cfg.clock = c
	}
}

// WithSignalWindow sets how long the new-notification signal stays up.
func WithSignalWindow(d time.Duration) Option {
	return func(m *Manager) {
		m.cfg.signalWindow = d
	}
}

// WithReconnect enables reopening dropped push channels.
func WithReconnect(p shared.ReconnectPolicy) Option {
	return func(m *Manager) {
		m.cfg.reconnect = p
	}
}

// NewManager creates a manager. stats is shared by all sessions.
func NewManager(records gateway.Records, changes gateway.Changes, st *stats.Service, opts ...Option) *Manager {
	m := &Manager{
		cfg: sessionConfig{
			records: records,
			changes: changes,
			stats:   st,
			pusher:  NopPusher{},
			logger:  slog.Default(),
			clock:   clock.New(),
		},
		entries: make(map[uuid.UUID]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire opens the user's session and holds a reference to it. The returned release
// function drops the reference; the last release closes the session. Calling release more
// than once has no further effect.
func (m *Manager) Acquire(ctx context.Context, userID uuid.UUID) (*Session, func(), error) {
	s, e, err := m.acquire(ctx, userID)
	if err != nil {
		return nil, func() {}, err
	}

	var once sync.Once
	release := func() {
		once.Do(func() { m.release(userID, e) })
	}
	return s, release, nil
}

// CloseAll closes every session and refuses new ones.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	m.closed = true
	entries := make(map[uuid.UUID]*entry, len(m.entries))
	for id, e := range m.entries {
		entries[id] = e
	}
	m.mu.Unlock()

	var closeErrs []error
	for id, e := range entries {
		e.mu.Lock()
		closeErrs = append(closeErrs, m.retireLocked(id, e))
		e.mu.Unlock()
	}
	return errors.Join(closeErrs...)
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Manager) acquire(ctx context.Context, userID uuid.UUID) (*Session, *entry, error) {
	if err := shared.ValidateUserID(userID); err != nil {
		return nil, nil, err
	}

	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, nil, errs.ErrClosed
		}
		e, ok := m.entries[userID]
		if !ok {
			e = &entry{}
			m.entries[userID] = e
		}
		m.mu.Unlock()

		e.mu.Lock()
		if e.retired {
			// lost a race with a release or CloseAll; the map already holds a fresh entry or none
			e.mu.Unlock()
			continue
		}

		if e.session == nil {
			s := newSession(userID, m.cfg)
			if err := s.open(ctx); err != nil {
				_ = m.retireLocked(userID, e)
				e.mu.Unlock()
				return nil, nil, err
			}
			e.session = s
		}
		e.refs++
		s := e.session
		e.mu.Unlock()
		return s, e, nil
	}
}

func (m *Manager) release(userID uuid.UUID, e *entry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.retired {
		return
	}
	e.refs--
	if e.refs > 0 {
		return
	}
	if err := m.retireLocked(userID, e); err != nil {
		m.cfg.logger.Warn("failed to close dashboard session",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// retireLocked closes the entry's session and removes the entry. e.mu must be held.
func (m *Manager) retireLocked(userID uuid.UUID, e *entry) error {
	if e.retired {
		return nil
	}
	e.retired = true

	m.mu.Lock()
	if m.entries[userID] == e {
		delete(m.entries, userID)
	}
	m.mu.Unlock()

	if e.session == nil {
		return nil
	}
	return e.session.Close()
}
