package updater_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/flagsync/pkg/async"
	"github.com/dmitrymomot/flagsync/pkg/transport"
	"github.com/dmitrymomot/flagsync/pkg/updater"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func noJitter(d time.Duration) time.Duration { return d }

type fakeSyncer struct {
	mu    sync.Mutex
	err   error
	calls atomic.Int32
}

func (s *fakeSyncer) Sync(context.Context) error {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSyncer) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

type streamBackend struct {
	srv      *httptest.Server
	status   atomic.Int32
	requests atomic.Int32
	open     atomic.Int32
	maxOpen  atomic.Int32
	auth     atomic.Value
	quit     chan struct{}
}

func newStreamBackend(t *testing.T) *streamBackend {
	t.Helper()
	b := &streamBackend{quit: make(chan struct{})}
	b.status.Store(http.StatusOK)

	r := chi.NewRouter()
	r.Get("/mping", func(w http.ResponseWriter, r *http.Request) {
		b.requests.Add(1)
		b.auth.Store(r.Header.Get("Authorization"))
		if code := int(b.status.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			return
		}

		n := b.open.Add(1)
		defer b.open.Add(-1)
		for {
			m := b.maxOpen.Load()
			if n <= m || b.maxOpen.CompareAndSwap(m, n) {
				break
			}
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "event: ping\ndata: {}\n\n")
		w.(http.Flusher).Flush()

		select {
		case <-r.Context().Done():
		case <-b.quit:
		}
	})
	b.srv = httptest.NewServer(r)
	t.Cleanup(func() {
		close(b.quit)
		b.srv.Close()
	})
	return b
}

func newProcessor(t *testing.T, cfg updater.Config, s updater.Syncer, opts ...updater.Option) *updater.Processor {
	t.Helper()
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 10 * time.Millisecond
	}
	if cfg.MaxRetryDelay == 0 {
		cfg.MaxRetryDelay = 40 * time.Millisecond
	}
	opts = append([]updater.Option{updater.WithJitter(noJitter)}, opts...)
	p, err := updater.New(cfg, s, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Stop)
	return p
}

func awaitDone(t *testing.T, f *async.Future[struct{}]) error {
	t.Helper()
	_, err := f.AwaitWithTimeout(waitFor)
	require.NotErrorIs(t, err, async.ErrTimeout, "future did not complete")
	return err
}

func TestNewRequiresSyncer(t *testing.T) {
	t.Parallel()
	_, err := updater.New(updater.Config{}, nil)
	assert.ErrorIs(t, err, updater.ErrNoSyncer)
}

func TestPolling(t *testing.T) {
	t.Parallel()

	t.Run("initializes and keeps polling", func(t *testing.T) {
		s := &fakeSyncer{}
		p := newProcessor(t, updater.Config{Mode: updater.ModePolling, PollingInterval: 20 * time.Millisecond}, s)

		assert.Equal(t, updater.StateStopped, p.State())
		require.NoError(t, awaitDone(t, p.Start(context.Background())))
		assert.True(t, p.IsInitialized())
		assert.Equal(t, updater.StateInitialized, p.State())

		require.Eventually(t, func() bool { return s.calls.Load() >= 3 }, waitFor, tick)
	})

	t.Run("401 stops permanently and fails start", func(t *testing.T) {
		s := &fakeSyncer{}
		s.setErr(&transport.StatusError{Code: http.StatusUnauthorized})
		p := newProcessor(t, updater.Config{Mode: updater.ModePolling}, s)

		err := awaitDone(t, p.Start(context.Background()))
		var se *transport.StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusUnauthorized, se.Code)
		assert.Equal(t, updater.StateStopped, p.State())
		assert.False(t, p.Running())
		assert.False(t, p.IsInitialized())

		calls := s.calls.Load()
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, calls, s.calls.Load(), "no retries after a fatal error")

		err = awaitDone(t, p.Start(context.Background()))
		assert.ErrorAs(t, err, &se)
	})

	t.Run("500 retries and leaves start pending", func(t *testing.T) {
		s := &fakeSyncer{}
		s.setErr(&transport.StatusError{Code: http.StatusInternalServerError})
		p := newProcessor(t, updater.Config{Mode: updater.ModePolling}, s)

		f := p.Start(context.Background())
		require.Eventually(t, func() bool { return s.calls.Load() >= 3 }, waitFor, tick)
		assert.False(t, f.IsComplete())
		assert.Equal(t, updater.StateReconnecting, p.State())

		s.setErr(nil)
		require.NoError(t, awaitDone(t, f))
		assert.Equal(t, updater.StateInitialized, p.State())
	})

	t.Run("network errors are retried", func(t *testing.T) {
		s := &fakeSyncer{}
		s.setErr(errors.Join(transport.ErrTransport, errors.New("connection reset")))
		p := newProcessor(t, updater.Config{Mode: updater.ModePolling}, s)

		f := p.Start(context.Background())
		require.Eventually(t, func() bool { return s.calls.Load() >= 2 }, waitFor, tick)
		assert.False(t, f.IsComplete())
	})

	t.Run("background interval", func(t *testing.T) {
		s := &fakeSyncer{}
		p := newProcessor(t, updater.Config{
			Mode:                      updater.ModePolling,
			PollingInterval:           time.Hour,
			BackgroundPollingInterval: 20 * time.Millisecond,
		}, s)

		require.NoError(t, awaitDone(t, p.Start(context.Background())))
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, int32(1), s.calls.Load())

		p.SetForeground(false)
		require.Eventually(t, func() bool { return s.calls.Load() >= 4 }, waitFor, tick)
	})
}

func TestStop(t *testing.T) {
	t.Parallel()

	t.Run("fails pending start", func(t *testing.T) {
		s := &fakeSyncer{}
		s.setErr(&transport.StatusError{Code: http.StatusServiceUnavailable})
		p := newProcessor(t, updater.Config{Mode: updater.ModePolling}, s)

		f := p.Start(context.Background())
		require.Eventually(t, func() bool { return s.calls.Load() >= 1 }, waitFor, tick)

		p.Stop()
		assert.ErrorIs(t, awaitDone(t, f), updater.ErrStopped)
		assert.Equal(t, updater.StateStopped, p.State())

		calls := s.calls.Load()
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, calls, s.calls.Load(), "pending retry must be cancelled")
	})

	t.Run("idempotent and restartable", func(t *testing.T) {
		s := &fakeSyncer{}
		p := newProcessor(t, updater.Config{Mode: updater.ModePolling}, s)

		p.Stop()
		require.NoError(t, awaitDone(t, p.Start(context.Background())))
		p.Stop()
		p.Stop()
		assert.False(t, p.Running())

		require.NoError(t, awaitDone(t, p.Start(context.Background())))
		assert.True(t, p.Running())
	})

	t.Run("start while running returns same future", func(t *testing.T) {
		s := &fakeSyncer{}
		s.setErr(&transport.StatusError{Code: http.StatusServiceUnavailable})
		p := newProcessor(t, updater.Config{Mode: updater.ModePolling}, s)

		f1 := p.Start(context.Background())
		f2 := p.Start(context.Background())
		assert.Same(t, f1, f2)
	})
}

func TestStreaming(t *testing.T) {
	t.Parallel()

	creds := transport.Credentials{MobileKey: "mob-key"}

	t.Run("message triggers resync and initializes", func(t *testing.T) {
		b := newStreamBackend(t)
		s := &fakeSyncer{}
		p := newProcessor(t, updater.Config{Mode: updater.ModeStreaming, StreamURI: b.srv.URL, Credentials: creds}, s)

		require.NoError(t, awaitDone(t, p.Start(context.Background())))
		assert.Equal(t, updater.StateInitialized, p.State())
		assert.GreaterOrEqual(t, s.calls.Load(), int32(1))
		assert.Equal(t, "mob-key", b.auth.Load())
	})

	t.Run("401 on stream is fatal", func(t *testing.T) {
		b := newStreamBackend(t)
		b.status.Store(http.StatusUnauthorized)
		s := &fakeSyncer{}
		p := newProcessor(t, updater.Config{Mode: updater.ModeStreaming, StreamURI: b.srv.URL, Credentials: creds}, s)

		err := awaitDone(t, p.Start(context.Background()))
		require.Error(t, err)
		assert.True(t, transport.IsFatal(err))
		assert.Equal(t, updater.StateStopped, p.State())

		reqs := b.requests.Load()
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, reqs, b.requests.Load())
		assert.Zero(t, s.calls.Load())
	})

	t.Run("500 on stream reconnects", func(t *testing.T) {
		b := newStreamBackend(t)
		b.status.Store(http.StatusInternalServerError)
		s := &fakeSyncer{}
		p := newProcessor(t, updater.Config{Mode: updater.ModeStreaming, StreamURI: b.srv.URL, Credentials: creds}, s)

		f := p.Start(context.Background())
		require.Eventually(t, func() bool { return b.requests.Load() >= 3 }, waitFor, tick)
		assert.False(t, f.IsComplete())
		assert.Equal(t, updater.StateReconnecting, p.State())

		b.status.Store(http.StatusOK)
		require.NoError(t, awaitDone(t, f))
	})

	t.Run("restart keeps one connection", func(t *testing.T) {
		b := newStreamBackend(t)
		s := &fakeSyncer{}
		p := newProcessor(t, updater.Config{Mode: updater.ModeStreaming, StreamURI: b.srv.URL, Credentials: creds}, s)

		require.NoError(t, awaitDone(t, p.Start(context.Background())))
		for range 5 {
			p.Restart(context.Background())
			time.Sleep(20 * time.Millisecond)
		}
		require.Eventually(t, func() bool { return b.requests.Load() >= 4 }, waitFor, tick)
		require.Eventually(t, func() bool { return b.open.Load() <= 1 }, waitFor, tick)
		assert.LessOrEqual(t, b.maxOpen.Load(), int32(2), "old connection is closed before the next one is used")
	})

	t.Run("background switches to polling", func(t *testing.T) {
		b := newStreamBackend(t)
		s := &fakeSyncer{}
		p := newProcessor(t, updater.Config{
			Mode:                      updater.ModeStreaming,
			StreamURI:                 b.srv.URL,
			Credentials:               creds,
			BackgroundPollingInterval: 20 * time.Millisecond,
		}, s)

		require.NoError(t, awaitDone(t, p.Start(context.Background())))
		p.SetForeground(false)
		require.Eventually(t, func() bool { return b.open.Load() == 0 }, waitFor, tick)

		before := s.calls.Load()
		require.Eventually(t, func() bool { return s.calls.Load() >= before+3 }, waitFor, tick)

		reqs := b.requests.Load()
		p.SetForeground(true)
		require.Eventually(t, func() bool { return b.requests.Load() > reqs }, waitFor, tick)
	})

	t.Run("background polling disabled idles", func(t *testing.T) {
		b := newStreamBackend(t)
		s := &fakeSyncer{}
		p := newProcessor(t, updater.Config{
			Mode:                      updater.ModeStreaming,
			StreamURI:                 b.srv.URL,
			Credentials:               creds,
			BackgroundPollingInterval: 10 * time.Millisecond,
			DisableBackgroundPolling:  true,
		}, s)

		require.NoError(t, awaitDone(t, p.Start(context.Background())))
		p.SetForeground(false)
		require.Eventually(t, func() bool { return b.open.Load() == 0 }, waitFor, tick)
		calls := s.calls.Load()
		time.Sleep(60 * time.Millisecond)
		assert.Equal(t, calls, s.calls.Load())
	})

	t.Run("stream init hook", func(t *testing.T) {
		b := newStreamBackend(t)
		var inits atomic.Int32
		p := newProcessor(t,
			updater.Config{Mode: updater.ModeStreaming, StreamURI: b.srv.URL, Credentials: creds},
			&fakeSyncer{},
			updater.WithStreamInitHook(func(_ time.Time, _ time.Duration, failed bool) {
				if !failed {
					inits.Add(1)
				}
			}),
		)
		require.NoError(t, awaitDone(t, p.Start(context.Background())))
		assert.Equal(t, int32(1), inits.Load())
	})
}
