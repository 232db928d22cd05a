package flagsync_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/flagsync"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flagsync.env")
	require.NoError(t, os.WriteFile(path, []byte(
		"FLAGSYNC_MOBILE_KEY=mob-from-file\n"+
			"FLAGSYNC_SECONDARY_MOBILE_KEYS=staging:mob-staging,qa:mob-qa\n"+
			"FLAGSYNC_STREAM=false\n"+
			"FLAGSYNC_POLLING_INTERVAL=10m\n",
	), 0o600))
	t.Setenv("FLAGSYNC_EVENTS_CAPACITY", "250")
	t.Cleanup(func() {
		for _, k := range []string{
			"FLAGSYNC_MOBILE_KEY", "FLAGSYNC_SECONDARY_MOBILE_KEYS",
			"FLAGSYNC_STREAM", "FLAGSYNC_POLLING_INTERVAL",
		} {
			_ = os.Unsetenv(k)
		}
	})

	cfg, err := flagsync.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "mob-from-file", cfg.MobileKey)
	assert.Equal(t, map[string]string{"staging": "mob-staging", "qa": "mob-qa"}, cfg.SecondaryMobileKeys)
	assert.False(t, cfg.Stream)
	assert.Equal(t, 10*time.Minute, cfg.PollingInterval)
	assert.Equal(t, 250, cfg.EventsCapacity)
	assert.Equal(t, flagsync.DefaultBaseURI, cfg.BaseURI)
	// polling mode: the default flush interval follows the polling interval
	assert.Equal(t, 10*time.Minute, cfg.EventsFlushInterval)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := flagsync.LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.ErrorIs(t, err, flagsync.ErrParsingConfig)
}

func TestConfigNormalize(t *testing.T) {
	t.Parallel()

	cfg := flagsync.Config{
		MobileKey:                   "mob",
		Stream:                      true,
		PollingInterval:             time.Second,
		BackgroundPollingInterval:   time.Minute,
		DiagnosticRecordingInterval: time.Minute,
	}.Normalize()

	assert.Equal(t, flagsync.MinPollingInterval, cfg.PollingInterval)
	assert.Equal(t, flagsync.MinBackgroundPollingInterval, cfg.BackgroundPollingInterval)
	assert.Equal(t, flagsync.MinDiagnosticRecordingInterval, cfg.DiagnosticRecordingInterval)
	assert.Equal(t, flagsync.DefaultEventsFlushInterval, cfg.EventsFlushInterval)
	assert.Equal(t, flagsync.DefaultEventsCapacity, cfg.EventsCapacity)
	assert.Equal(t, flagsync.DefaultStreamURI, cfg.StreamURI)
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*flagsync.Config)
	}{
		{"missing mobile key", func(c *flagsync.Config) { c.MobileKey = "" }},
		{"reserved environment name", func(c *flagsync.Config) {
			c.SecondaryMobileKeys = map[string]string{flagsync.DefaultEnvironment: "mob-2"}
		}},
		{"empty secondary key", func(c *flagsync.Config) {
			c.SecondaryMobileKeys = map[string]string{"staging": ""}
		}},
		{"duplicate mobile key", func(c *flagsync.Config) {
			c.SecondaryMobileKeys = map[string]string{"staging": c.MobileKey}
		}},
		{"relative base URI", func(c *flagsync.Config) { c.BaseURI = "/flags" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := flagsync.DefaultConfig("mob-1")
			tt.mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), flagsync.ErrInvalidConfig)
		})
	}

	require.NoError(t, flagsync.DefaultConfig("mob-1").Validate())
}
