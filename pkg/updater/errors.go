package updater

import "errors"

var (
	// ErrStopped fails a start future when Stop is called before the first
	// successful sync.
	ErrStopped = errors.New("updater: stopped before initialization")
	// ErrNoSyncer is returned by New without a Syncer.
	ErrNoSyncer = errors.New("updater: syncer is required")
)
