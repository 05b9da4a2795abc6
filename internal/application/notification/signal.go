package notification

import (
	"sync"
	"time"

	"github.com/lllypuk/creatordash/internal/clock"
)

// DefaultSignalWindow is how long the new-notification signal stays up after the last raise.
const DefaultSignalWindow = 2 * time.Second

// Signal is the transient "something new arrived" flag behind the bell animation.
// At most one expiry timer is outstanding; raising again restarts it.
type Signal struct {
	clock    clock.Clock
	window   time.Duration
	onChange func(active bool)

	mu     sync.Mutex
	active bool
	timer  clock.Timer
	gen    uint64
}

// NewSignal creates a lowered signal. onChange, if not nil, is called outside the lock
// whenever the flag flips.
func NewSignal(c clock.Clock, window time.Duration, onChange func(active bool)) *Signal {
	if c == nil {
		c = clock.New()
	}
	if window <= 0 {
		window = DefaultSignalWindow
	}
	return &Signal{clock: c, window: window, onChange: onChange}
}

// Raise sets the flag and (re)starts the expiry timer.
func (s *Signal) Raise() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = s.clock.AfterFunc(s.window, func() { s.expire(gen) })
	changed := !s.active
	s.active = true
	s.mu.Unlock()

	if changed {
		s.notify(true)
	}
}

// Clear lowers the flag and cancels any pending expiry.
func (s *Signal) Clear() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	changed := s.active
	s.active = false
	s.mu.Unlock()

	if changed {
		s.notify(false)
	}
}

// Active reports whether the flag is up.
func (s *Signal) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Signal) expire(gen uint64) {
	s.mu.Lock()
	// A timer that lost a race with Raise or Clear must not lower the new state.
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	changed := s.active
	s.active = false
	s.mu.Unlock()

	if changed {
		s.notify(false)
	}
}

func (s *Signal) notify(active bool) {
	if s.onChange != nil {
		s.onChange(active)
	}
}
