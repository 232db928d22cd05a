package updater

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/flagsync/pkg/transport"
)

// Config describes where and how often a Processor synchronizes.
type Config struct {
	Mode        Mode
	StreamURI   string
	Credentials transport.Credentials
	// Client is the environment's shared pool. The stream uses its
	// transport without a request timeout.
	Client *http.Client

	PollingInterval           time.Duration
	BackgroundPollingInterval time.Duration
	DisableBackgroundPolling  bool

	// RetryDelay and MaxRetryDelay bound the reconnect backoff.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	// StreamReadTimeout closes a stream that stays silent this long.
	StreamReadTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.Client == nil {
		c.Client = http.DefaultClient
	}
	if c.PollingInterval <= 0 {
		c.PollingInterval = 5 * time.Minute
	}
	if c.BackgroundPollingInterval <= 0 {
		c.BackgroundPollingInterval = time.Hour
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = 10 * time.Minute
	}
	if c.StreamReadTimeout <= 0 {
		c.StreamReadTimeout = 5 * time.Minute
	}
}

// StreamInitHook observes every stream connection attempt.
type StreamInitHook func(started time.Time, took time.Duration, failed bool)

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger for state changes and connection errors.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithForeground sets the initial visibility. Defaults to true.
func WithForeground(fg bool) Option {
	return func(p *Processor) { p.foreground = fg }
}

// WithStreamInitHook reports stream connection attempts, e.g. to
// diagnostics.
func WithStreamInitHook(h StreamInitHook) Option {
	return func(p *Processor) { p.onStreamInit = h }
}

// WithJitter overrides the backoff jitter.
func WithJitter(fn func(time.Duration) time.Duration) Option {
	return func(p *Processor) { p.jitter = fn }
}
