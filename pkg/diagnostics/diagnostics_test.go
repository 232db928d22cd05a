package diagnostics_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/flagsync/pkg/diagnostics"
	"github.com/dmitrymomot/flagsync/pkg/kvstore"
	"github.com/dmitrymomot/flagsync/pkg/transport"
)

const (
	waitFor   = 2 * time.Second
	tick      = 5 * time.Millisecond
	mobileKey = "mob-this_is_a_fake_key"
)

type backend struct {
	srv    *httptest.Server
	mu     sync.Mutex
	events []map[string]any
	auth   []string
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{}
	r := chi.NewRouter()
	r.Post("/mobile/events/diagnostic", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			http.Error(w, "bad content type", http.StatusBadRequest)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		var ev map[string]any
		if err := json.Unmarshal(raw, &ev); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		b.events = append(b.events, ev)
		b.auth = append(b.auth, r.Header.Get("Authorization"))
		b.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	})
	b.srv = httptest.NewServer(r)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) kinds() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, ev := range b.events {
		kind, _ := ev["kind"].(string)
		out = append(out, kind)
	}
	return out
}

func (b *backend) last() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return nil
	}
	return b.events[len(b.events)-1]
}

type stats struct {
	dropped atomic.Int64
	batch   atomic.Int64
}

func (s *stats) DroppedEvents() int64     { return s.dropped.Swap(0) }
func (s *stats) EventsInLastBatch() int64 { return s.batch.Load() }

func config(b *backend, interval time.Duration) diagnostics.Config {
	return diagnostics.Config{
		EventsURI:   b.srv.URL,
		Credentials: transport.Credentials{MobileKey: mobileKey},
		Client:      b.srv.Client(),
		Interval:    interval,
		SDK:         diagnostics.SDKInfo{Name: "flagsync-go", Version: transport.Version},
	}
}

func TestNewID(t *testing.T) {
	t.Parallel()

	id := diagnostics.NewID("abc", "this_is_a_fake_key")
	assert.Equal(t, "ke_key", id.SDKKeySuffix)
	assert.Equal(t, "abc", id.DiagnosticID)

	short := diagnostics.NewID("abc", "key")
	assert.Equal(t, "key", short.SDKKeySuffix)

	raw, err := json.Marshal(id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"diagnosticId":"abc","sdkKeySuffix":"ke_key"}`, string(raw))
}

func TestStore(t *testing.T) {
	t.Parallel()

	t.Run("id is generated once and persisted", func(t *testing.T) {
		t.Parallel()
		kv := kvstore.NewMemory()

		first, err := diagnostics.OpenStore(t.Context(), kv, "default", mobileKey, time.Now())
		require.NoError(t, err)
		assert.True(t, first.IsNewID())
		assert.NotEmpty(t, first.ID().DiagnosticID)

		second, err := diagnostics.OpenStore(t.Context(), kv, "default", mobileKey, time.Now())
		require.NoError(t, err)
		assert.False(t, second.IsNewID())
		assert.Equal(t, first.ID(), second.ID())
	})

	t.Run("environments have separate ids", func(t *testing.T) {
		t.Parallel()
		kv := kvstore.NewMemory()

		a, err := diagnostics.OpenStore(t.Context(), kv, "a", mobileKey, time.Now())
		require.NoError(t, err)
		b, err := diagnostics.OpenStore(t.Context(), kv, "b", mobileKey, time.Now())
		require.NoError(t, err)
		assert.NotEqual(t, a.ID().DiagnosticID, b.ID().DiagnosticID)
	})

	t.Run("stats reset the window", func(t *testing.T) {
		t.Parallel()
		start := time.UnixMilli(1_700_000_000_000)
		s, err := diagnostics.OpenStore(t.Context(), kvstore.NewMemory(), "default", mobileKey, start)
		require.NoError(t, err)

		s.AddStreamInit(start, 250*time.Millisecond, false)
		s.AddStreamInit(start.Add(time.Second), time.Second, true)

		end := start.Add(time.Minute)
		ev, err := s.CurrentStatsAndReset(t.Context(), 3, 7, end)
		require.NoError(t, err)
		assert.Equal(t, diagnostics.KindStatistics, ev.Kind)
		assert.Equal(t, start.UnixMilli(), ev.DataSinceDate)
		assert.Equal(t, end.UnixMilli(), ev.CreationDate)
		assert.EqualValues(t, 3, ev.DroppedEvents)
		assert.EqualValues(t, 7, ev.EventsInLastBatch)
		require.Len(t, ev.StreamInits, 2)
		assert.EqualValues(t, 250, ev.StreamInits[0].DurationMillis)
		assert.True(t, ev.StreamInits[1].Failed)

		assert.Equal(t, end.UnixMilli(), s.DataSince().UnixMilli())
		next, err := s.CurrentStatsAndReset(t.Context(), 0, 0, end.Add(time.Minute))
		require.NoError(t, err)
		assert.Empty(t, next.StreamInits)
		assert.NotNil(t, next.StreamInits)
	})

	t.Run("window start survives reopen", func(t *testing.T) {
		t.Parallel()
		kv := kvstore.NewMemory()
		start := time.UnixMilli(1_700_000_000_000)
		s, err := diagnostics.OpenStore(t.Context(), kv, "default", mobileKey, start)
		require.NoError(t, err)

		end := start.Add(time.Minute)
		_, err = s.CurrentStatsAndReset(t.Context(), 0, 0, end)
		require.NoError(t, err)

		reopened, err := diagnostics.OpenStore(t.Context(), kv, "default", mobileKey, end.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, end.UnixMilli(), reopened.DataSince().UnixMilli())
	})

	t.Run("persist failure is reported with the event", func(t *testing.T) {
		t.Parallel()
		kv := &flakyKV{Store: kvstore.NewMemory()}
		start := time.UnixMilli(1_700_000_000_000)
		s, err := diagnostics.OpenStore(t.Context(), kv, "default", mobileKey, start)
		require.NoError(t, err)

		kv.fail.Store(true)
		end := start.Add(time.Minute)
		ev, err := s.CurrentStatsAndReset(t.Context(), 2, 0, end)
		require.ErrorIs(t, err, diagnostics.ErrStore)
		assert.EqualValues(t, 2, ev.DroppedEvents)
		assert.Equal(t, end.UnixMilli(), s.DataSince().UnixMilli())
	})
}

type flakyKV struct {
	kvstore.Store
	fail atomic.Bool
}

func (f *flakyKV) Put(ctx context.Context, key string, value []byte) error {
	if f.fail.Load() {
		return errors.New("disk full")
	}
	return f.Store.Put(ctx, key, value)
}

func TestReporter(t *testing.T) {
	t.Parallel()

	t.Run("init is sent for a new id only", func(t *testing.T) {
		t.Parallel()
		b := newBackend(t)
		kv := kvstore.NewMemory()

		store, err := diagnostics.OpenStore(t.Context(), kv, "default", mobileKey, time.Now())
		require.NoError(t, err)
		r := diagnostics.NewReporter(config(b, time.Hour), store, &stats{})
		r.Start()
		require.Eventually(t, func() bool { return len(b.kinds()) == 1 }, waitFor, tick)
		r.Stop()

		ev := b.last()
		assert.Equal(t, diagnostics.KindInit, ev["kind"])
		assert.Equal(t, "api_key "+mobileKey, b.auth[0])
		sdk, _ := ev["sdk"].(map[string]any)
		assert.Equal(t, "flagsync-go", sdk["name"])
		id, _ := ev["id"].(map[string]any)
		assert.Equal(t, "ke_key", id["sdkKeySuffix"])

		r.Start()
		r.Stop()

		reopened, err := diagnostics.OpenStore(t.Context(), kv, "default", mobileKey, time.Now())
		require.NoError(t, err)
		r2 := diagnostics.NewReporter(config(b, time.Hour), reopened, &stats{})
		r2.Start()
		time.Sleep(50 * time.Millisecond)
		r2.Stop()

		assert.Equal(t, []string{diagnostics.KindInit}, b.kinds())
	})

	t.Run("overdue window reports immediately", func(t *testing.T) {
		t.Parallel()
		b := newBackend(t)
		kv := kvstore.NewMemory()

		_, err := diagnostics.OpenStore(t.Context(), kv, "default", mobileKey, time.Now().Add(-2*time.Hour))
		require.NoError(t, err)
		store, err := diagnostics.OpenStore(t.Context(), kv, "default", mobileKey, time.Now())
		require.NoError(t, err)
		require.False(t, store.IsNewID())

		src := &stats{}
		src.dropped.Store(4)
		src.batch.Store(9)
		store.AddStreamInit(time.Now(), 10*time.Millisecond, false)

		r := diagnostics.NewReporter(config(b, time.Hour), store, src)
		r.Start()
		defer r.Stop()

		require.Eventually(t, func() bool { return len(b.kinds()) == 1 }, waitFor, tick)
		ev := b.last()
		assert.Equal(t, diagnostics.KindStatistics, ev["kind"])
		assert.EqualValues(t, 4, ev["droppedEvents"])
		assert.EqualValues(t, 9, ev["eventsInLastBatch"])
		inits, _ := ev["streamInits"].([]any)
		assert.Len(t, inits, 1)
	})

	t.Run("statistics repeat at the interval", func(t *testing.T) {
		t.Parallel()
		b := newBackend(t)

		store, err := diagnostics.OpenStore(t.Context(), kvstore.NewMemory(), "default", mobileKey, time.Now())
		require.NoError(t, err)
		r := diagnostics.NewReporter(config(b, 30*time.Millisecond), store, &stats{})
		r.Start()
		defer r.Stop()

		require.Eventually(t, func() bool { return len(b.kinds()) >= 3 }, waitFor, tick)
		kinds := b.kinds()
		assert.Equal(t, diagnostics.KindInit, kinds[0])
		assert.Equal(t, diagnostics.KindStatistics, kinds[1])
		assert.Equal(t, diagnostics.KindStatistics, kinds[2])
	})

	t.Run("background pauses statistics", func(t *testing.T) {
		t.Parallel()
		b := newBackend(t)

		store, err := diagnostics.OpenStore(t.Context(), kvstore.NewMemory(), "default", mobileKey, time.Now())
		require.NoError(t, err)
		r := diagnostics.NewReporter(config(b, 30*time.Millisecond), store, &stats{})
		r.Start()
		require.Eventually(t, func() bool { return len(b.kinds()) >= 2 }, waitFor, tick)

		r.SetForeground(false)
		n := len(b.kinds())
		time.Sleep(100 * time.Millisecond)
		assert.Len(t, b.kinds(), n)

		r.SetForeground(true)
		defer r.Stop()
		require.Eventually(t, func() bool { return len(b.kinds()) > n }, waitFor, tick)
		assert.NotContains(t, b.kinds()[n:], diagnostics.KindInit)
	})

	t.Run("offline skips statistics", func(t *testing.T) {
		t.Parallel()
		b := newBackend(t)

		kv := kvstore.NewMemory()
		_, err := diagnostics.OpenStore(t.Context(), kv, "default", mobileKey, time.Now())
		require.NoError(t, err)
		store, err := diagnostics.OpenStore(t.Context(), kv, "default", mobileKey, time.Now())
		require.NoError(t, err)

		cfg := config(b, 20*time.Millisecond)
		cfg.Connected = func() bool { return false }
		r := diagnostics.NewReporter(cfg, store, &stats{})
		r.Start()
		time.Sleep(100 * time.Millisecond)
		r.Stop()

		assert.Empty(t, b.kinds())
	})
}
