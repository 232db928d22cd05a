package fetcher

import (
	"log/slog"
	"time"
)

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithReport sends the user as a REPORT body instead of in the URL path.
func WithReport(enabled bool) Option {
	return func(f *Fetcher) { f.useReport = enabled }
}

// WithReasons asks the backend to include evaluation reasons.
func WithReasons(enabled bool) Option {
	return func(f *Fetcher) { f.withReasons = enabled }
}

// WithTimeout bounds a single fetch.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.timeout = d }
}

// WithConnectivity installs the check run before every request.
func WithConnectivity(connected func() bool) Option {
	return func(f *Fetcher) {
		if connected != nil {
			f.connected = connected
		}
	}
}

// WithLogger sets the logger used for fetch failures.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}
