package throttle

import (
	"log/slog"
	"time"
)

// Option configures a Throttler.
type Option func(*Throttler)

// WithLogger sets the logger used for backoff diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(t *Throttler) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithJitter replaces the jitter function. Mostly useful in tests that need
// deterministic delays.
func WithJitter(fn func(time.Duration) time.Duration) Option {
	return func(t *Throttler) {
		if fn != nil {
			t.jitter = fn
		}
	}
}
