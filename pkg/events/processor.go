package events

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/dmitrymomot/flagsync/pkg/logger"
	"github.com/dmitrymomot/flagsync/pkg/transport"
)

// SchemaVersion is sent in the X-LaunchDarkly-Event-Schema header.
const SchemaVersion = "3"

// Config describes where and how often events are delivered.
type Config struct {
	EventsURI     string
	Credentials   transport.Credentials
	Client        *http.Client
	Capacity      int
	FlushInterval time.Duration
	// Connected is checked right before every send.
	Connected func() bool
}

// Processor buffers analytics events and delivers them in batches.
// Enqueue never blocks on the network: it appends to a bounded in-memory
// queue and returns. One worker goroutine drains the queue on a ticker and
// on Flush. Delivery is at most once.
type Processor struct {
	cfg        Config
	logger     *slog.Logger
	summarizer *Summarizer
	now        func() time.Time

	mu    sync.Mutex
	queue []Event

	dropped    atomic.Int64
	lastBatch  atomic.Int64
	serverTime atomic.Int64

	// flushMu makes drain-and-send one critical section.
	flushMu sync.Mutex
	flushCh chan struct{}

	workerMu sync.Mutex
	offline  bool
	stop     chan struct{}
	done     chan struct{}
}

// New creates a processor. Call Start to run its worker.
func New(cfg Config, opts ...Option) *Processor {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.Connected == nil {
		cfg.Connected = func() bool { return true }
	}

	p := &Processor{
		cfg:        cfg,
		logger:     logger.Nop(),
		summarizer: NewSummarizer(),
		now:        time.Now,
		queue:      make([]Event, 0, cfg.Capacity),
		flushCh:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(logger.Component("events"))
	return p
}

// Enqueue adds e to the queue. It returns false and counts a dropped
// event when the queue is full.
func (p *Processor) Enqueue(e Event) bool {
	p.mu.Lock()
	if len(p.queue) >= p.cfg.Capacity {
		p.mu.Unlock()
		n := p.dropped.Add(1)
		p.logger.Warn("event queue full, dropping event",
			slog.String("kind", e.EventKind()),
			logger.Count(int(n)))
		return false
	}
	p.queue = append(p.queue, e)
	p.mu.Unlock()
	return true
}

// Summarize counts an evaluation into the pending summary.
func (p *Processor) Summarize(ev Evaluation) {
	p.summarizer.Record(ev, p.now())
}

// Len returns the number of queued events.
func (p *Processor) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Flush asks the worker to deliver now. It does not wait.
func (p *Processor) Flush() {
	select {
	case p.flushCh <- struct{}{}:
	default:
	}
}

// Start runs the worker unless it is running or the processor is offline.
func (p *Processor) Start() {
	p.workerMu.Lock()
	defer p.workerMu.Unlock()
	if p.offline || p.stop != nil {
		return
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.run(p.stop, p.done)
}

// Stop halts the worker and waits for an in-progress send to finish.
// Queued events are kept.
func (p *Processor) Stop() {
	p.workerMu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.workerMu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// SetOffline stops the worker while offline and restarts it when back
// online. Enqueue keeps accepting events in either state.
func (p *Processor) SetOffline(offline bool) {
	p.workerMu.Lock()
	p.offline = offline
	p.workerMu.Unlock()

	if offline {
		p.Stop()
	} else {
		p.Start()
	}
}

// Close stops the worker and makes one last delivery attempt.
func (p *Processor) Close(ctx context.Context) error {
	p.Stop()
	p.workerMu.Lock()
	offline := p.offline
	p.workerMu.Unlock()
	if offline {
		return nil
	}
	return p.flush(ctx)
}

// ServerTime returns the clock of the events service as of the last
// successful delivery, or the zero time.
func (p *Processor) ServerTime() time.Time {
	ms := p.serverTime.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// DebugWindowOpen reports whether a debug window ending at until is still
// open, by both the local clock and the last known server clock.
func (p *Processor) DebugWindowOpen(until time.Time) bool {
	return until.After(p.now()) && until.After(p.ServerTime())
}

// DroppedEvents returns the number of dropped events since the last call
// and resets the counter.
func (p *Processor) DroppedEvents() int64 {
	return p.dropped.Swap(0)
}

// EventsInLastBatch returns the size of the last delivered batch.
func (p *Processor) EventsInLastBatch() int64 {
	return p.lastBatch.Load()
}

func (p *Processor) run(stop, done chan struct{}) {
	defer close(done)

	// A send in progress outlives stop. Transport timeouts bound it.
	ctx := context.Background()

	t := time.NewTicker(p.cfg.FlushInterval)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C:
		case <-p.flushCh:
		}
		if err := p.flush(ctx); err != nil {
			p.logger.Warn("event delivery failed, batch dropped", logger.Error(err))
		}
	}
}

// flush drains the queue and the summary and posts them as one batch.
func (p *Processor) flush(ctx context.Context) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	if !p.cfg.Connected() {
		return nil
	}

	p.mu.Lock()
	batch := p.queue
	p.queue = make([]Event, 0, p.cfg.Capacity)
	p.mu.Unlock()

	if summary, ok := p.summarizer.Snapshot(); ok {
		batch = append(batch, summary)
	}
	if len(batch) == 0 {
		return nil
	}
	p.lastBatch.Store(int64(len(batch)))
	return p.post(ctx, batch)
}

func (p *Processor) post(ctx context.Context, batch []Event) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return errors.Join(transport.ErrSerialization, err)
	}

	url := transport.JoinURL(p.cfg.EventsURI, "/mobile/events/")
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Join(transport.ErrConfiguration, err)
	}
	p.cfg.Credentials.Apply(req.Header, false)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-LaunchDarkly-Event-Schema", SchemaVersion)

	_, resp, err := transport.Do(ctx, p.cfg.Client, req)
	if err != nil {
		return err
	}
	if ts, ok := transport.ServerTime(resp); ok {
		p.serverTime.Store(ts.UnixMilli())
	}
	p.logger.Debug("delivered events", logger.Count(len(batch)), logger.URL(url))
	return nil
}
