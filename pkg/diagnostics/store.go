package diagnostics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/dmitrymomot/flagsync/pkg/kvstore"
)

type persisted struct {
	DiagnosticID string `json:"diagnosticId"`
	DataSince    int64  `json:"dataSince"`
}

// Store holds the durable installation id and the counters accumulated
// between statistics events.
type Store struct {
	kv  kvstore.Store
	key string

	id    ID
	newID bool

	mu          sync.Mutex
	dataSince   time.Time
	streamInits []StreamInit
}

// OpenStore loads the installation id of environment env, generating and
// persisting a new one on first use.
func OpenStore(ctx context.Context, kv kvstore.Store, env, mobileKey string, now time.Time) (*Store, error) {
	s := &Store{kv: kv, key: "diagnostics/" + env}

	data, found, err := kv.Get(ctx, s.key)
	if err != nil {
		return nil, errors.Join(ErrStore, err)
	}

	var p persisted
	if found {
		if err := json.Unmarshal(data, &p); err != nil {
			found = false
		}
	}
	if !found || p.DiagnosticID == "" {
		p = persisted{DiagnosticID: uuid.NewString(), DataSince: now.UnixMilli()}
		s.newID = true
	}

	s.id = NewID(p.DiagnosticID, mobileKey)
	s.dataSince = time.UnixMilli(p.DataSince)
	if err := s.save(ctx, p); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) save(ctx context.Context, p persisted) error {
	data, err := json.Marshal(p)
	if err != nil {
		return errors.Join(ErrStore, err)
	}
	if err := s.kv.Put(ctx, s.key, data); err != nil {
		return errors.Join(ErrStore, err)
	}
	return nil
}

// ID returns the diagnostic id.
func (s *Store) ID() ID { return s.id }

// IsNewID reports whether the id was generated by this OpenStore call.
func (s *Store) IsNewID() bool { return s.newID }

// DataSince returns the start of the current statistics window.
func (s *Store) DataSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dataSince
}

// AddStreamInit records one stream connection attempt.
func (s *Store) AddStreamInit(started time.Time, took time.Duration, failed bool) {
	s.mu.Lock()
	s.streamInits = append(s.streamInits, StreamInit{
		Timestamp:      started.UnixMilli(),
		DurationMillis: took.Milliseconds(),
		Failed:         failed,
	})
	s.mu.Unlock()
}

// CurrentStatsAndReset builds a statistics event for the window ending at
// now and starts a new window. The event is valid even when persisting the
// new window start fails; the error is wrapped with ErrStore.
func (s *Store) CurrentStatsAndReset(ctx context.Context, dropped, inLastBatch int64, now time.Time) (StatisticsEvent, error) {
	s.mu.Lock()
	ev := StatisticsEvent{
		Kind:              KindStatistics,
		ID:                s.id,
		CreationDate:      now.UnixMilli(),
		DataSinceDate:     s.dataSince.UnixMilli(),
		DroppedEvents:     dropped,
		EventsInLastBatch: inLastBatch,
		StreamInits:       s.streamInits,
	}
	if ev.StreamInits == nil {
		ev.StreamInits = []StreamInit{}
	}
	s.streamInits = nil
	s.dataSince = now
	s.mu.Unlock()

	return ev, s.save(ctx, persisted{DiagnosticID: s.id.DiagnosticID, DataSince: now.UnixMilli()})
}
