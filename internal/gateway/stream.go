package gateway

import (
	"fmt"
	"sync"

	"github.com/lllypuk/creatordash/internal/domain/errs"
)

const defaultStreamBuffer = 64

// Stream is the Subscription implementation shared by the adapters. The adapter's reader
// goroutine calls Deliver for each event and Drop when the remote side goes away; the
// consumer reads Events and calls Close.
type Stream struct {
	events  chan ChangeEvent
	done    chan struct{}
	onClose func() error

	mu    sync.Mutex
	ended bool

	errMu sync.Mutex
	err   error

	once     sync.Once
	closeErr error
}

// NewStream creates a stream. onClose, if not nil, runs exactly once when the stream ends.
func NewStream(buffer int, onClose func() error) *Stream {
	if buffer <= 0 {
		buffer = defaultStreamBuffer
	}
	return &Stream{
		events:  make(chan ChangeEvent, buffer),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

// Events returns the ordered event channel. It is closed when the stream ends.
func (s *Stream) Events() <-chan ChangeEvent { return s.events }

// Done is closed as soon as the stream starts ending.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Deliver queues evt. It blocks while the buffer is full and returns false once the stream has ended.
func (s *Stream) Deliver(evt ChangeEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return false
	}
	select {
	case s.events <- evt:
		return true
	case <-s.done:
		return false
	}
}

// Drop ends the stream because the remote side closed it.
func (s *Stream) Drop(cause error) {
	if cause == nil {
		s.finish(errs.ErrSubscriptionDropped)
		return
	}
	s.finish(fmt.Errorf("%w: %w", errs.ErrSubscriptionDropped, cause))
}

// Close releases the stream. Only the first call does any work.
func (s *Stream) Close() error {
	s.finish(nil)
	return s.closeErr
}

// Err reports why the stream ended; nil while open or after Close.
func (s *Stream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Stream) finish(err error) {
	s.once.Do(func() {
		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()

		close(s.done)

		s.mu.Lock()
		s.ended = true
		close(s.events)
		s.mu.Unlock()

		if s.onClose != nil {
			s.closeErr = s.onClose()
		}
	})
}

var _ Subscription = (*Stream)(nil)
