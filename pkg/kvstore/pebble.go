package kvstore

import (
	"context"
	"errors"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// PebbleOptions configures OpenPebble.
type PebbleOptions struct {
	// Dir is the database directory. Required.
	Dir string
	// FS overrides the filesystem, e.g. vfs.NewMem() in tests.
	FS vfs.FS
	// NoSync skips the WAL fsync on writes.
	NoSync bool
}

// Pebble is a Store backed by an embedded Pebble database.
type Pebble struct {
	db        *pebble.DB
	writeOpts *pebble.WriteOptions
}

var _ Store = (*Pebble)(nil)

// OpenPebble creates or opens a database under opts.Dir.
func OpenPebble(opts PebbleOptions) (*Pebble, error) {
	if opts.Dir == "" {
		return nil, ErrMissingDir
	}
	po := &pebble.Options{}
	if opts.FS != nil {
		po.FS = opts.FS
	}
	db, err := pebble.Open(opts.Dir, po)
	if err != nil {
		return nil, errors.Join(ErrOpen, err)
	}
	wo := pebble.Sync
	if opts.NoSync {
		wo = pebble.NoSync
	}
	return &Pebble{db: db, writeOpts: wo}, nil
}

// Get returns a copy of the value stored under key.
func (p *Pebble) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, closer, err := p.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = closer.Close() }()
	return append([]byte(nil), val...), true, nil
}

// Put writes value under key with the configured sync mode.
func (p *Pebble) Put(_ context.Context, key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	return p.db.Set([]byte(key), value, p.writeOpts)
}

// Delete removes key.
func (p *Pebble) Delete(_ context.Context, key string) error {
	return p.db.Delete([]byte(key), p.writeOpts)
}

// Close flushes and closes the database.
func (p *Pebble) Close() error {
	return p.db.Close()
}
