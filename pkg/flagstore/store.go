package flagstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/dmitrymomot/flagsync/pkg/kvstore"
	"github.com/dmitrymomot/flagsync/pkg/logger"
)

const defaultMaxCachedUsers = 5

// Listener is called with each change to the key it was registered for.
type Listener func(Change)

// StoreListener is called once per committed mutation with every change
// it produced, NOOP entries excluded.
type StoreListener func([]Change)

// ListenerID identifies a registration for UnregisterListener.
type ListenerID uint64

type keyListener struct {
	key string
	fn  Listener
}

// Store is the flag cache of one environment. It holds the flags of a
// single active user at a time.
//
// Reads never block on I/O. Mutations are serialized; listeners run after
// the mutation is committed, on the mutating goroutine, in commit order.
// A listener must not mutate the store it listens to.
type Store struct {
	envID          string
	kv             kvstore.Store
	maxCachedUsers int
	logger         *slog.Logger

	// writeMu serializes mutations, identity switches and their
	// notifications.
	writeMu sync.Mutex
	index   *userIndex

	mu       sync.RWMutex
	flags    map[string]Flag
	userHash string

	lmu            sync.RWMutex
	nextID         ListenerID
	listeners      map[ListenerID]keyListener
	storeListeners map[ListenerID]StoreListener
}

// New creates an empty store for the environment envID.
func New(envID string, opts ...Option) *Store {
	s := &Store{
		envID:          envID,
		kv:             kvstore.NewMemory(),
		maxCachedUsers: defaultMaxCachedUsers,
		logger:         logger.Nop(),
		flags:          map[string]Flag{},
		listeners:      map[ListenerID]keyListener{},
		storeListeners: map[ListenerID]StoreListener{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("flagstore"), logger.Environment(envID))
	return s
}

func (s *Store) snapshotKey(hash string) string {
	return fmt.Sprintf("flags/%s/%s", s.envID, hash)
}

func (s *Store) indexKey() string {
	return "index/" + s.envID
}

// GetFlag returns the flag for key from memory.
func (s *Store) GetFlag(key string) (Flag, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.flags[key]
	return f, ok
}

// AllFlags returns a copy of the active flags.
func (s *Store) AllFlags() map[string]Flag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.flags)
}

// UserHash returns the hash of the active user, empty before the first
// SwitchIdentity.
func (s *Store) UserHash() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userHash
}

// SwitchIdentity makes userHash the active user, loading its persisted
// snapshot when there is one. The previous user's flags are left as they
// are. Listeners are not notified.
func (s *Store) SwitchIdentity(ctx context.Context, userHash string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.loadIndex(ctx); err != nil {
		s.logger.WarnContext(ctx, "discarding unreadable user index", logger.Error(err))
		s.index = newUserIndex(s.maxCachedUsers, nil)
	}

	flags := map[string]Flag{}
	data, found, err := s.kv.Get(ctx, s.snapshotKey(userHash))
	switch {
	case err != nil:
		s.logger.WarnContext(ctx, "failed to read cached flags", logger.Error(err))
	case found:
		if loaded, derr := decodeSnapshot(data); derr != nil {
			s.logger.WarnContext(ctx, "discarding unreadable cached flags", logger.Error(derr))
		} else {
			flags = loaded
		}
	}

	s.mu.Lock()
	s.flags = flags
	s.userHash = userHash
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "switched identity", logger.Count(len(flags)))
	return s.touchIndex(ctx, userHash)
}

func (s *Store) loadIndex(ctx context.Context) error {
	if s.index != nil {
		return nil
	}
	data, found, err := s.kv.Get(ctx, s.indexKey())
	if err != nil {
		return err
	}
	var hashes []string
	if found {
		if hashes, err = decodeIndex(data); err != nil {
			return err
		}
	}
	s.index = newUserIndex(s.maxCachedUsers, hashes)
	return nil
}

// touchIndex records hash as most recently used and drops snapshots of
// evicted users.
func (s *Store) touchIndex(ctx context.Context, hash string) error {
	evicted := s.index.touch(hash)
	var errs []error
	for _, h := range evicted {
		if err := s.kv.Delete(ctx, s.snapshotKey(h)); err != nil {
			errs = append(errs, err)
		}
	}
	data, err := encodeIndex(s.index.hashes())
	if err == nil {
		err = s.kv.Put(ctx, s.indexKey(), data)
	}
	errs = append(errs, err)
	if err := errors.Join(errs...); err != nil {
		return errors.Join(ErrPersist, err)
	}
	if len(evicted) > 0 {
		s.logger.DebugContext(ctx, "evicted cached users", logger.Count(len(evicted)))
	}
	return nil
}

// ApplyFullUpdate replaces every flag of the active user. The new set is
// persisted after the in-memory commit; a persistence error is returned
// but does not undo the commit.
func (s *Store) ApplyFullUpdate(ctx context.Context, flags map[string]Flag) ([]Change, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := make(map[string]Flag, len(flags))
	for k, f := range flags {
		if f.Key == "" {
			f.Key = k
		}
		next[k] = f
	}

	s.mu.Lock()
	prev := s.flags
	hash := s.userHash
	s.flags = next
	s.mu.Unlock()

	var changes []Change
	for k, f := range next {
		if old, ok := prev[k]; !ok || !sameEvaluation(old, f) {
			changes = append(changes, Change{Key: k, Type: ChangeUpdate})
		}
	}
	for k := range prev {
		if _, ok := next[k]; !ok {
			changes = append(changes, Change{Key: k, Type: ChangeDelete})
		}
	}

	err := s.persist(ctx, hash, next)
	s.notify(changes)
	return changes, err
}

// ApplyPatch upserts one flag. A patch whose version is not newer than the
// stored flag is a NOOP.
func (s *Store) ApplyPatch(ctx context.Context, flag Flag) (Change, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	old, exists := s.flags[flag.Key]
	if exists && (flag.Version <= old.Version || sameEvaluation(old, flag)) {
		s.mu.Unlock()
		return Change{Key: flag.Key, Type: ChangeNoOp}, nil
	}
	next := maps.Clone(s.flags)
	next[flag.Key] = flag
	s.flags = next
	hash := s.userHash
	s.mu.Unlock()

	c := Change{Key: flag.Key, Type: ChangeUpdate}
	err := s.persist(ctx, hash, next)
	s.notify([]Change{c})
	return c, err
}

// ApplyDelete removes key if version is newer than the stored flag.
func (s *Store) ApplyDelete(ctx context.Context, key string, version int) (Change, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	old, exists := s.flags[key]
	if !exists || version <= old.Version {
		s.mu.Unlock()
		return Change{Key: key, Type: ChangeNoOp}, nil
	}
	next := maps.Clone(s.flags)
	delete(next, key)
	s.flags = next
	hash := s.userHash
	s.mu.Unlock()

	c := Change{Key: key, Type: ChangeDelete}
	err := s.persist(ctx, hash, next)
	s.notify([]Change{c})
	return c, err
}

func (s *Store) persist(ctx context.Context, hash string, flags map[string]Flag) error {
	if hash == "" {
		return nil
	}
	data, err := encodeSnapshot(flags)
	if err == nil {
		err = s.kv.Put(ctx, s.snapshotKey(hash), data)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "failed to persist flags", logger.Error(err))
		return errors.Join(ErrPersist, err)
	}
	return nil
}

// RegisterListener subscribes fn to changes of key.
func (s *Store) RegisterListener(key string, fn Listener) ListenerID {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.nextID++
	s.listeners[s.nextID] = keyListener{key: key, fn: fn}
	return s.nextID
}

// RegisterStoreListener subscribes fn to every committed mutation.
func (s *Store) RegisterStoreListener(fn StoreListener) ListenerID {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.nextID++
	s.storeListeners[s.nextID] = fn
	return s.nextID
}

// UnregisterListener removes a registration made by either Register method.
func (s *Store) UnregisterListener(id ListenerID) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	delete(s.listeners, id)
	delete(s.storeListeners, id)
}

func (s *Store) notify(changes []Change) {
	if len(changes) == 0 {
		return
	}

	s.lmu.RLock()
	var keyed []keyListener
	for _, l := range s.listeners {
		keyed = append(keyed, l)
	}
	var whole []StoreListener
	for _, l := range s.storeListeners {
		whole = append(whole, l)
	}
	s.lmu.RUnlock()

	for _, c := range changes {
		for _, l := range keyed {
			if l.key == c.Key {
				s.call(func() { l.fn(c) })
			}
		}
	}
	for _, l := range whole {
		s.call(func() { l(changes) })
	}
}

func (s *Store) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("flag listener panicked", slog.Any("panic", r))
		}
	}()
	fn()
}
