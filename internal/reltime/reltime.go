// Package reltime renders timestamps as short elapsed-time labels ("5m ago").
package reltime

import (
	"fmt"
	"time"

	"github.com/lllypuk/creatordash/internal/clock"
)

const (
	hoursPerDay = 24
	daysPerWeek = 7

	// DateLayout is used once a timestamp is older than a week.
	DateLayout = "Jan 2, 2006"
)

// Format returns the label for t as seen at now. Labels never get more recent as now-t grows.
func Format(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}

	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < hoursPerDay*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < daysPerWeek*hoursPerDay*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/hoursPerDay))
	default:
		return t.In(now.Location()).Format(DateLayout)
	}
}

// Formatter formats against a clock.
type Formatter struct {
	clock clock.Clock
}

// NewFormatter creates a Formatter. A nil clock means the system clock.
func NewFormatter(c clock.Clock) *Formatter {
	if c == nil {
		c = clock.New()
	}
	return &Formatter{clock: c}
}

// FormatSince formats t relative to the formatter's current time.
func (f *Formatter) FormatSince(t time.Time) string {
	return Format(t, f.clock.Now())
}
