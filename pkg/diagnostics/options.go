package diagnostics

import (
	"log/slog"
	"time"
)

// Option configures a Reporter.
type Option func(*Reporter)

// WithLogger sets the logger for delivery and persistence failures.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reporter) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) {
		if now != nil {
			r.now = now
		}
	}
}
