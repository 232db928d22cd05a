// Command flagsync prints and watches the feature flags of a user.
//
// Configuration is read from FLAGSYNC_* environment variables and an
// optional .env file. Flag snapshots are cached in a pebble database so the
// last known values are available offline.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/flagsync"
	"github.com/dmitrymomot/flagsync/pkg/kvstore"
	"github.com/dmitrymomot/flagsync/pkg/logger"
	"github.com/dmitrymomot/flagsync/pkg/user"
)

type rootFlags struct {
	envFile     string
	cacheDir    string
	userKey     string
	environment string
	timeout     time.Duration
	logLevel    string
	offline     bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:          "flagsync",
		Short:        "Feature flag sync client",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.envFile, "env-file", "", "Load configuration from this .env file")
	pf.StringVar(&f.cacheDir, "cache-dir", defaultCacheDir(), "Directory of the flag cache")
	pf.StringVar(&f.userKey, "user", "", "User key (anonymous when empty)")
	pf.StringVar(&f.environment, "environment", flagsync.DefaultEnvironment, "Environment name")
	pf.DurationVar(&f.timeout, "timeout", 10*time.Second, "How long to wait for the first sync")
	pf.StringVar(&f.logLevel, "log-level", os.Getenv("FLAGSYNC_LOG_LEVEL"), "Log level: debug|info|warn|error")
	pf.BoolVar(&f.offline, "offline", false, "Use cached flags only")

	root.AddCommand(newFlagsCommand(f), newWatchCommand(f))
	return root
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ".flagsync"
	}
	return filepath.Join(dir, "flagsync")
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelWarn
	}
	return l
}

// session is an open client with its cache.
type session struct {
	client *flagsync.Client
	env    *flagsync.Environment
	cache  *kvstore.Pebble
	log    *slog.Logger
}

func (s *session) close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.client.Close(ctx); err != nil {
		s.log.WarnContext(ctx, "final event delivery failed", logger.Error(err))
	}
	if err := s.cache.Close(); err != nil {
		s.log.WarnContext(ctx, "closing cache", logger.Error(err))
	}
}

func open(ctx context.Context, f *rootFlags) (*session, error) {
	log := logger.New(
		logger.WithLevel(parseLevel(f.logLevel)),
		logger.WithTextFormatter(),
		logger.WithOutput(os.Stderr),
		logger.WithAttr(slog.String("service", "flagsync")),
	)

	var files []string
	if f.envFile != "" {
		files = append(files, f.envFile)
	}
	cfg, err := flagsync.LoadConfig(files...)
	if err != nil {
		return nil, err
	}
	if f.offline {
		cfg.Offline = true
	}

	cache, err := kvstore.OpenPebble(kvstore.PebbleOptions{Dir: f.cacheDir})
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	client, started := flagsync.New(cfg, user.User{Key: f.userKey},
		flagsync.WithLogger(log),
		flagsync.WithKVStore(cache),
	)
	if client == nil {
		_ = cache.Close()
		_, err := started.Await()
		return nil, err
	}
	s := &session{client: client, cache: cache, log: log}

	if _, err := started.AwaitWithTimeout(f.timeout); err != nil {
		log.WarnContext(ctx, "using cached flags", logger.Error(err))
	}
	env, err := client.Environment(f.environment)
	if err != nil {
		s.close(ctx)
		return nil, err
	}
	s.env = env
	return s, nil
}
