package notification

import "context"

// Chime plays the audible cue for a newly arrived unread notification.
type Chime interface {
	Play(ctx context.Context) error
}

// ChimeFunc adapts a function to Chime.
type ChimeFunc func(ctx context.Context) error

// Play calls f.
func (f ChimeFunc) Play(ctx context.Context) error { return f(ctx) }

// NopChime is silent.
type NopChime struct{}

// Play does nothing.
func (NopChime) Play(context.Context) error { return nil }
