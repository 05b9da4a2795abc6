// Package stats fetches the aggregate numbers shown on the dashboard cards.
package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lllypuk/creatordash/internal/application/shared"
	"github.com/lllypuk/creatordash/internal/clock"
	"github.com/lllypuk/creatordash/internal/domain/errs"
	"github.com/lllypuk/creatordash/internal/domain/uuid"
	"github.com/lllypuk/creatordash/internal/gateway"
)

const (
	// DefaultRefreshInterval matches the hourly refresh of the dashboard cards.
	DefaultRefreshInterval = time.Hour

	fetchTimeout = 30 * time.Second
	monthLayout  = "2006-01-02"

	columnYoutubeLinks = "youtube_links"
)

// Stats are a creator's aggregate numbers.
type Stats struct {
	MonthlyViews   int64     `json:"monthlyViews"`
	LinkedChannels int       `json:"linkedChannels"`
	FetchedAt      time.Time `json:"fetchedAt"`
}

// Service reads stats from the backend and remembers the last good value per user.
type Service struct {
	records  gateway.Records
	procs    gateway.Procedures
	clock    clock.Clock
	logger   *slog.Logger
	interval time.Duration

	mu   sync.RWMutex
	last map[uuid.UUID]Stats
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock sets the clock that decides the current month.
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// WithRefreshInterval sets how often Run refetches.
func WithRefreshInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.interval = d
		}
	}
}

// NewService creates a stats service.
func NewService(records gateway.Records, procs gateway.Procedures, opts ...Option) *Service {
	s := &Service{
		records:  records,
		procs:    procs,
		clock:    clock.New(),
		logger:   slog.Default(),
		interval: DefaultRefreshInterval,
		last:     make(map[uuid.UUID]Stats),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch reads the stats like Read and keeps a successful result as the user's last good
// value until Forget.
func (s *Service) Fetch(ctx context.Context, userID uuid.UUID) (Stats, error) {
	st, err := s.Read(ctx, userID)
	if err != nil {
		return Stats{}, err
	}

	s.mu.Lock()
	s.last[userID] = st
	s.mu.Unlock()

	return st, nil
}

// Read reads the current month's views and the number of linked channels without
// remembering the result.
func (s *Service) Read(ctx context.Context, userID uuid.UUID) (Stats, error) {
	if err := shared.ValidateUserID(userID); err != nil {
		return Stats{}, err
	}

	now := s.clock.Now()

	var views int64
	err := s.procs.Call(ctx, gateway.ProcMonthlyViews, map[string]any{
		"p_user_id": userID.String(),
		"p_month":   now.UTC().Format(monthLayout),
	}, &views)
	if err != nil {
		return s.fail(ctx, userID, fmt.Errorf("failed to fetch monthly views: %w", errs.Unavailable(err)))
	}

	channels, err := s.linkedChannels(ctx, userID)
	if err != nil {
		return s.fail(ctx, userID, fmt.Errorf("failed to fetch linked channels: %w", errs.Unavailable(err)))
	}

	return Stats{MonthlyViews: views, LinkedChannels: channels, FetchedAt: now}, nil
}

// Latest returns the last good value for the user.
func (s *Service) Latest(userID uuid.UUID) (Stats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.last[userID]
	return st, ok
}

// Forget drops the remembered value for the user.
func (s *Service) Forget(userID uuid.UUID) {
	s.mu.Lock()
	delete(s.last, userID)
	s.mu.Unlock()
}

// Run fetches immediately and then on every refresh interval until ctx is cancelled.
// onUpdate, if not nil, receives every successful result. Failures are logged and the last
// good value is kept.
func (s *Service) Run(ctx context.Context, userID uuid.UUID, onUpdate func(Stats)) error {
	if err := shared.ValidateUserID(userID); err != nil {
		return err
	}

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.refresh(ctx, userID, onUpdate)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			s.refresh(ctx, userID, onUpdate)
		}
	}
}

func (s *Service) refresh(ctx context.Context, userID uuid.UUID, onUpdate func(Stats)) {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	st, err := s.Fetch(fetchCtx, userID)
	if err != nil {
		return
	}
	if onUpdate != nil {
		onUpdate(st)
	}
}

func (s *Service) linkedChannels(ctx context.Context, userID uuid.UUID) (int, error) {
	rows, err := s.records.Select(ctx, gateway.Query{
		Table:   gateway.TableUserRequests,
		Columns: []string{columnYoutubeLinks},
		Filters: []gateway.Filter{gateway.Eq(gateway.ColumnUserID, userID.String())},
		Limit:   1,
	})
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	var row struct {
		YoutubeLinks []json.RawMessage `json:"youtube_links"`
	}
	if err := rows[0].Decode(&row); err != nil {
		return 0, errors.Join(errs.ErrBackendRejected, err)
	}
	return len(row.YoutubeLinks), nil
}

func (s *Service) fail(ctx context.Context, userID uuid.UUID, err error) (Stats, error) {
	if !errors.Is(err, context.Canceled) {
		s.logger.ErrorContext(ctx, "failed to fetch stats",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()),
		)
	}
	return Stats{}, err
}
