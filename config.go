package flagsync

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultEnvironment is the name of the environment of the primary mobile key.
const DefaultEnvironment = "default"

const (
	DefaultBaseURI   = "https://app.launchdarkly.com"
	DefaultStreamURI = "https://clientstream.launchdarkly.com"
	DefaultEventsURI = "https://mobile.launchdarkly.com"

	DefaultPollingInterval             = 5 * time.Minute
	DefaultBackgroundPollingInterval   = time.Hour
	DefaultEventsCapacity              = 100
	DefaultEventsFlushInterval         = 30 * time.Second
	DefaultConnectionTimeout           = 10 * time.Second
	DefaultDiagnosticRecordingInterval = 15 * time.Minute
	DefaultMaxCachedUsers              = 5

	MinPollingInterval             = 5 * time.Minute
	MinBackgroundPollingInterval   = 15 * time.Minute
	MinDiagnosticRecordingInterval = 5 * time.Minute
)

// Config holds every client setting. Fields carry env tags so a Config can
// be read from the process environment with LoadConfig; programmatic
// callers start from DefaultConfig.
//
// Example:
//
//	FLAGSYNC_MOBILE_KEY=mob-xxx
//	FLAGSYNC_SECONDARY_MOBILE_KEYS=staging:mob-yyy,qa:mob-zzz
//	FLAGSYNC_STREAM=false
type Config struct {
	MobileKey string `env:"FLAGSYNC_MOBILE_KEY,required"`
	// SecondaryMobileKeys maps environment names to mobile keys.
	SecondaryMobileKeys map[string]string `env:"FLAGSYNC_SECONDARY_MOBILE_KEYS"`

	BaseURI   string `env:"FLAGSYNC_BASE_URI" envDefault:"https://app.launchdarkly.com"`
	StreamURI string `env:"FLAGSYNC_STREAM_URI" envDefault:"https://clientstream.launchdarkly.com"`
	EventsURI string `env:"FLAGSYNC_EVENTS_URI" envDefault:"https://mobile.launchdarkly.com"`

	Stream    bool `env:"FLAGSYNC_STREAM" envDefault:"true"`
	UseReport bool `env:"FLAGSYNC_USE_REPORT" envDefault:"false"`
	Offline   bool `env:"FLAGSYNC_OFFLINE" envDefault:"false"`

	PollingInterval           time.Duration `env:"FLAGSYNC_POLLING_INTERVAL" envDefault:"5m"`
	BackgroundPollingInterval time.Duration `env:"FLAGSYNC_BACKGROUND_POLLING_INTERVAL" envDefault:"1h"`
	DisableBackgroundPolling  bool          `env:"FLAGSYNC_DISABLE_BACKGROUND_POLLING" envDefault:"false"`

	EventsCapacity      int           `env:"FLAGSYNC_EVENTS_CAPACITY" envDefault:"100"`
	EventsFlushInterval time.Duration `env:"FLAGSYNC_EVENTS_FLUSH_INTERVAL" envDefault:"30s"`
	ConnectionTimeout   time.Duration `env:"FLAGSYNC_CONNECTION_TIMEOUT" envDefault:"10s"`
	InlineUsersInEvents bool          `env:"FLAGSYNC_INLINE_USERS_IN_EVENTS" envDefault:"false"`
	EvaluationReasons   bool          `env:"FLAGSYNC_EVALUATION_REASONS" envDefault:"false"`

	DiagnosticOptOut            bool          `env:"FLAGSYNC_DIAGNOSTIC_OPT_OUT" envDefault:"false"`
	DiagnosticRecordingInterval time.Duration `env:"FLAGSYNC_DIAGNOSTIC_RECORDING_INTERVAL" envDefault:"15m"`

	MaxCachedUsers int `env:"FLAGSYNC_MAX_CACHED_USERS" envDefault:"5"`

	WrapperName    string `env:"FLAGSYNC_WRAPPER_NAME"`
	WrapperVersion string `env:"FLAGSYNC_WRAPPER_VERSION"`
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig(mobileKey string) Config {
	return Config{
		MobileKey:                   mobileKey,
		BaseURI:                     DefaultBaseURI,
		StreamURI:                   DefaultStreamURI,
		EventsURI:                   DefaultEventsURI,
		Stream:                      true,
		PollingInterval:             DefaultPollingInterval,
		BackgroundPollingInterval:   DefaultBackgroundPollingInterval,
		EventsCapacity:              DefaultEventsCapacity,
		EventsFlushInterval:         DefaultEventsFlushInterval,
		ConnectionTimeout:           DefaultConnectionTimeout,
		DiagnosticRecordingInterval: DefaultDiagnosticRecordingInterval,
		MaxCachedUsers:              DefaultMaxCachedUsers,
	}
}

// LoadConfig reads a Config from the environment after loading the given
// .env files. With no files it tries ./.env and ignores its absence.
// The result is normalized and validated.
func LoadConfig(files ...string) (Config, error) {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, errors.Join(ErrParsingConfig, err)
		}
	} else if err := godotenv.Load(files...); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Normalize fills zero values with defaults and raises intervals below
// their minimums. In polling mode an unchanged flush interval follows the
// polling interval.
func (c Config) Normalize() Config {
	orDefault := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	orDefault(&c.BaseURI, DefaultBaseURI)
	orDefault(&c.StreamURI, DefaultStreamURI)
	orDefault(&c.EventsURI, DefaultEventsURI)

	if c.PollingInterval < MinPollingInterval {
		c.PollingInterval = MinPollingInterval
	}
	if c.BackgroundPollingInterval <= 0 {
		c.BackgroundPollingInterval = DefaultBackgroundPollingInterval
	}
	if c.BackgroundPollingInterval < MinBackgroundPollingInterval {
		c.BackgroundPollingInterval = MinBackgroundPollingInterval
	}
	if c.DiagnosticRecordingInterval <= 0 {
		c.DiagnosticRecordingInterval = DefaultDiagnosticRecordingInterval
	}
	if c.DiagnosticRecordingInterval < MinDiagnosticRecordingInterval {
		c.DiagnosticRecordingInterval = MinDiagnosticRecordingInterval
	}
	if c.EventsCapacity <= 0 {
		c.EventsCapacity = DefaultEventsCapacity
	}
	if c.EventsFlushInterval <= 0 {
		c.EventsFlushInterval = DefaultEventsFlushInterval
	}
	if !c.Stream && c.EventsFlushInterval == DefaultEventsFlushInterval {
		c.EventsFlushInterval = c.PollingInterval
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = DefaultConnectionTimeout
	}
	if c.MaxCachedUsers <= 0 {
		c.MaxCachedUsers = DefaultMaxCachedUsers
	}
	return c
}

// Validate reports the first invalid setting joined with ErrInvalidConfig.
func (c Config) Validate() error {
	if c.MobileKey == "" {
		return errors.Join(ErrInvalidConfig, errors.New("mobile key is required"))
	}

	seen := map[string]string{c.MobileKey: DefaultEnvironment}
	for name, key := range c.SecondaryMobileKeys {
		switch {
		case name == "" || name == DefaultEnvironment:
			return errors.Join(ErrInvalidConfig, fmt.Errorf("environment name %q is reserved", name))
		case key == "":
			return errors.Join(ErrInvalidConfig, fmt.Errorf("environment %q has an empty mobile key", name))
		}
		if other, dup := seen[key]; dup {
			return errors.Join(ErrInvalidConfig,
				fmt.Errorf("environments %q and %q share a mobile key", other, name))
		}
		seen[key] = name
	}

	for field, raw := range map[string]string{
		"base URI":   c.BaseURI,
		"stream URI": c.StreamURI,
		"events URI": c.EventsURI,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.Join(ErrInvalidConfig, fmt.Errorf("%s %q is not an absolute URL", field, raw))
		}
	}
	return nil
}

// environments returns every environment name with its mobile key.
func (c Config) environments() map[string]string {
	out := make(map[string]string, len(c.SecondaryMobileKeys)+1)
	for name, key := range c.SecondaryMobileKeys {
		out[name] = key
	}
	out[DefaultEnvironment] = c.MobileKey
	return out
}

// diagnosticConfiguration describes the settings in diagnostic init events.
// Keys are never included.
func (c Config) diagnosticConfiguration() map[string]any {
	return map[string]any{
		"customBaseURI":                     c.BaseURI != DefaultBaseURI,
		"customStreamURI":                   c.StreamURI != DefaultStreamURI,
		"customEventsURI":                   c.EventsURI != DefaultEventsURI,
		"eventsCapacity":                    c.EventsCapacity,
		"connectTimeoutMillis":              c.ConnectionTimeout.Milliseconds(),
		"eventsFlushIntervalMillis":         c.EventsFlushInterval.Milliseconds(),
		"streamingDisabled":                 !c.Stream,
		"pollingIntervalMillis":             c.PollingInterval.Milliseconds(),
		"backgroundPollingIntervalMillis":   c.BackgroundPollingInterval.Milliseconds(),
		"backgroundPollingDisabled":         c.DisableBackgroundPolling,
		"useReport":                         c.UseReport,
		"evaluationReasonsRequested":        c.EvaluationReasons,
		"inlineUsersInEvents":               c.InlineUsersInEvents,
		"maxCachedUsers":                    c.MaxCachedUsers,
		"mobileKeyCount":                    len(c.SecondaryMobileKeys) + 1,
		"diagnosticRecordingIntervalMillis": c.DiagnosticRecordingInterval.Milliseconds(),
	}
}
