package events

import (
	"log/slog"
	"time"
)

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger for delivery failures and dropped events.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock replaces time.Now for event timestamps and debug windows.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}
