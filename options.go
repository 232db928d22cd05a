package flagsync

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/flagsync/pkg/kvstore"
	"github.com/dmitrymomot/flagsync/pkg/signal"
)

type options struct {
	logger       *slog.Logger
	kv           kvstore.Store
	connectivity signal.Observable[bool]
	foreground   signal.Observable[bool]
	httpClient   func(env string) *http.Client
	now          func() time.Time
	retryDelay   time.Duration
}

// Option configures a Client.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithKVStore persists flag snapshots, the anonymous user key and the
// diagnostic id in kv. The client does not close it.
func WithKVStore(kv kvstore.Store) Option {
	return func(o *options) {
		if kv != nil {
			o.kv = kv
		}
	}
}

// WithConnectivity subscribes the client to network availability.
func WithConnectivity(s signal.Observable[bool]) Option {
	return func(o *options) { o.connectivity = s }
}

// WithForeground subscribes the client to application visibility.
func WithForeground(s signal.Observable[bool]) Option {
	return func(o *options) { o.foreground = s }
}

// WithHTTPClient replaces the per-environment connection pool factory.
func WithHTTPClient(fn func(env string) *http.Client) Option {
	return func(o *options) {
		if fn != nil {
			o.httpClient = fn
		}
	}
}

// WithClock replaces time.Now for events and diagnostics.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRetryDelay sets the base reconnect and SetOnline backoff delay.
func WithRetryDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retryDelay = d
		}
	}
}
