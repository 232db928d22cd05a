package flagstore

import (
	"log/slog"

	"github.com/dmitrymomot/flagsync/pkg/kvstore"
)

// Option configures a Store.
type Option func(*Store)

// WithKVStore sets where snapshots are persisted. Defaults to an in-memory
// store.
func WithKVStore(kv kvstore.Store) Option {
	return func(s *Store) {
		if kv != nil {
			s.kv = kv
		}
	}
}

// WithMaxCachedUsers bounds how many user snapshots are kept. Zero or a
// negative value keeps all of them.
func WithMaxCachedUsers(n int) Option {
	return func(s *Store) { s.maxCachedUsers = n }
}

// WithLogger sets the logger for persistence failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}
