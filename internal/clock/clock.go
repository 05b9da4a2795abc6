// Package clock is the time source shared by the dashboard services. Production code gets
// the wall clock; tests get a clockwork fake they advance by hand.
package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

type (
	// Clock supplies the current time, one-shot timers and tickers.
	Clock = clockwork.Clock
	// Timer is a timer created by AfterFunc or NewTimer.
	Timer = clockwork.Timer
	// Fake is a manually advanced clock. AfterFunc callbacks run on their own goroutine
	// once Advance moves past their deadline.
	Fake = clockwork.FakeClock
)

// New returns the system clock.
func New() Clock {
	return clockwork.NewRealClock()
}

// NewFake returns a Fake clock positioned at now.
func NewFake(now time.Time) *Fake {
	return clockwork.NewFakeClockAt(now)
}
