package diagnostics

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/dmitrymomot/flagsync/pkg/logger"
	"github.com/dmitrymomot/flagsync/pkg/transport"
)

// DefaultInterval is the statistics recording interval.
const DefaultInterval = 15 * time.Minute

// StatsSource reports event delivery counters. DroppedEvents must reset
// its counter on read.
type StatsSource interface {
	DroppedEvents() int64
	EventsInLastBatch() int64
}

// Config describes where diagnostics are sent.
type Config struct {
	EventsURI     string
	Credentials   transport.Credentials
	Client        *http.Client
	Interval      time.Duration
	SDK           SDKInfo
	Configuration any
	Connected     func() bool
}

// Reporter sends the init event for new installations and periodic
// statistics while the application is in the foreground.
type Reporter struct {
	cfg    Config
	store  *Store
	stats  StatsSource
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	initSent bool
	stop     chan struct{}
	done     chan struct{}
}

// NewReporter creates a reporter for store. Call Start to run it.
func NewReporter(cfg Config, store *Store, stats StatsSource, opts ...Option) *Reporter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.Connected == nil {
		cfg.Connected = func() bool { return true }
	}
	r := &Reporter{
		cfg:    cfg,
		store:  store,
		stats:  stats,
		logger: logger.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(logger.Component("diagnostics"))
	return r
}

// Start runs the scheduler. It is a no-op when already running.
func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		return
	}
	sendInit := r.store.IsNewID() && !r.initSent
	r.initSent = true
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.run(r.stop, r.done, sendInit)
}

// Stop halts the scheduler and waits for an in-progress send.
func (r *Reporter) Stop() {
	r.mu.Lock()
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// SetForeground resumes the scheduler in the foreground and pauses it in
// the background. The statistics window keeps accumulating while paused.
func (r *Reporter) SetForeground(foreground bool) {
	if foreground {
		r.Start()
	} else {
		r.Stop()
	}
}

// RecordStreamInit implements the stream init hook of the update processor.
func (r *Reporter) RecordStreamInit(started time.Time, took time.Duration, failed bool) {
	r.store.AddStreamInit(started, took, failed)
}

func (r *Reporter) initialDelay() time.Duration {
	d := r.cfg.Interval - r.now().Sub(r.store.DataSince())
	return min(max(d, 0), r.cfg.Interval)
}

func (r *Reporter) run(stop, done chan struct{}, sendInit bool) {
	defer close(done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	if sendInit {
		ev := newInitEvent(r.store.ID(), r.cfg.SDK, r.cfg.Configuration, r.now())
		r.send(ctx, ev)
	}

	timer := time.NewTimer(r.initialDelay())
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-timer.C:
		}
		r.sendStatistics(ctx)
		timer.Reset(r.cfg.Interval)
	}
}

func (r *Reporter) sendStatistics(ctx context.Context) {
	if !r.cfg.Connected() {
		return
	}
	ev, err := r.store.CurrentStatsAndReset(ctx, r.stats.DroppedEvents(), r.stats.EventsInLastBatch(), r.now())
	if err != nil {
		r.logger.Warn("diagnostic window not persisted", logger.Error(err))
	}
	r.send(ctx, ev)
}

func (r *Reporter) send(ctx context.Context, ev any) {
	if err := r.post(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Debug("diagnostic event not delivered", logger.Error(err))
	}
}

func (r *Reporter) post(ctx context.Context, ev any) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return errors.Join(transport.ErrSerialization, err)
	}
	url := transport.JoinURL(r.cfg.EventsURI, "/mobile/events/diagnostic")
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Join(transport.ErrConfiguration, err)
	}
	r.cfg.Credentials.Apply(req.Header, false)
	req.Header.Set("Content-Type", "application/json")

	_, _, err = transport.Do(ctx, r.cfg.Client, req)
	return err
}
