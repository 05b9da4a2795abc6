package shared

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lllypuk/creatordash/internal/domain/errs"
	"github.com/lllypuk/creatordash/internal/gateway"
)

// Default reconnect backoff.
const (
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 30 * time.Second
	defaultBackoffFactor  = 2.0
)

// ReconnectPolicy controls whether a dropped push channel is reopened.
// The zero value never reconnects.
type ReconnectPolicy struct {
	Enabled        bool
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Factor         float64
	// MaxAttempts bounds consecutive failed reopen attempts; 0 means unbounded.
	MaxAttempts int
}

func (p ReconnectPolicy) withDefaults() ReconnectPolicy {
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = defaultInitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = defaultMaxBackoff
	}
	if p.Factor < 1 {
		p.Factor = defaultBackoffFactor
	}
	return p
}

// backOff builds the delay schedule of one reopen cycle. It stops after MaxAttempts
// delays or once ctx is done.
func (p ReconnectPolicy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialBackoff
	exp.MaxInterval = p.MaxBackoff
	exp.Multiplier = p.Factor
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Reset()

	var b backoff.BackOff = exp
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts))
	}
	return backoff.WithContext(b, ctx)
}

// Handler receives the events of one push channel, serially and in delivery order.
type Handler func(ctx context.Context, evt gateway.ChangeEvent)

// Listener keeps exactly one push channel open for a topic and feeds its events to a handler
// from a single goroutine.
type Listener struct {
	changes gateway.Changes
	topic   gateway.Topic
	handle  Handler
	policy  ReconnectPolicy
	logger  *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	current gateway.Subscription

	once     sync.Once
	closeErr error
}

// Listen opens the channel for topic and starts delivering events to handle.
// The open itself honors ctx; the running listener lives until Close.
func Listen(
	ctx context.Context,
	changes gateway.Changes,
	topic gateway.Topic,
	handle Handler,
	policy ReconnectPolicy,
	logger *slog.Logger,
) (*Listener, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sub, err := changes.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, errs.Unavailable(err))
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l := &Listener{
		changes: changes,
		topic:   topic,
		handle:  handle,
		policy:  policy.withDefaults(),
		logger:  logger,
		cancel:  cancel,
		done:    make(chan struct{}),
		current: sub,
	}

	logger.DebugContext(ctx, "push channel opened", slog.String("topic", topic.String()))

	go l.run(runCtx, sub)
	return l, nil
}

// Close releases the channel and waits for the delivery goroutine to exit.
// No handler call happens after Close returns. Only the first call does any work.
func (l *Listener) Close() error {
	l.once.Do(func() {
		l.cancel()

		l.mu.Lock()
		sub := l.current
		l.mu.Unlock()

		if sub != nil {
			l.closeErr = sub.Close()
		}
		<-l.done
	})
	return l.closeErr
}

func (l *Listener) run(ctx context.Context, sub gateway.Subscription) {
	defer close(l.done)

	for {
		for evt := range sub.Events() {
			if ctx.Err() != nil {
				return
			}
			l.handle(ctx, evt)
		}

		if ctx.Err() != nil {
			return
		}

		dropErr := sub.Err()
		if dropErr == nil {
			dropErr = errs.ErrSubscriptionDropped
		}
		l.logger.WarnContext(ctx, "push channel dropped",
			slog.String("topic", l.topic.String()),
			slog.String("error", dropErr.Error()),
		)

		if !l.policy.Enabled {
			return
		}

		next := l.reopen(ctx)
		if next == nil {
			return
		}
		sub = next
	}
}

// reopen retries Subscribe on the policy's backoff schedule, waiting before every attempt.
// It returns nil when the listener was closed or attempts were exhausted.
func (l *Listener) reopen(ctx context.Context) gateway.Subscription {
	schedule := l.policy.backOff(ctx)

	for attempt := 1; ; attempt++ {
		wait := schedule.NextBackOff()
		if wait == backoff.Stop {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		sub, err := l.changes.Subscribe(ctx, l.topic)
		if err == nil {
			l.mu.Lock()
			if ctx.Err() != nil {
				l.mu.Unlock()
				_ = sub.Close()
				return nil
			}
			l.current = sub
			l.mu.Unlock()

			l.logger.InfoContext(ctx, "push channel reopened",
				slog.String("topic", l.topic.String()),
				slog.Int("attempt", attempt),
			)
			return sub
		}

		if errors.Is(err, context.Canceled) {
			return nil
		}
		l.logger.WarnContext(ctx, "push channel reopen failed",
			slog.String("topic", l.topic.String()),
			slog.Int("attempt", attempt),
			slog.Duration("waited", wait),
			slog.String("error", err.Error()),
		)
	}

	if ctx.Err() != nil {
		return nil
	}
	l.logger.ErrorContext(ctx, "giving up on push channel",
		slog.String("topic", l.topic.String()),
		slog.Int("max_attempts", l.policy.MaxAttempts),
	)
	return nil
}
