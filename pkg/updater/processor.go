package updater

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/launchdarkly/eventsource"

	"github.com/dmitrymomot/flagsync/pkg/async"
	"github.com/dmitrymomot/flagsync/pkg/logger"
	"github.com/dmitrymomot/flagsync/pkg/statemachine"
	"github.com/dmitrymomot/flagsync/pkg/throttle"
	"github.com/dmitrymomot/flagsync/pkg/transport"
)

// Syncer performs a full flag resynchronization.
type Syncer interface {
	Sync(ctx context.Context) error
}

// SyncFunc adapts a function to Syncer.
type SyncFunc func(ctx context.Context) error

// Sync calls f(ctx).
func (f SyncFunc) Sync(ctx context.Context) error { return f(ctx) }

// Processor keeps a flag store fresh, either from an event stream or by
// polling. Every failure is handled internally: fatal errors stop the
// processor for good, anything else schedules a throttled reconnect. The
// only way an error leaves the processor is the future returned by Start.
type Processor struct {
	cfg          Config
	syncer       Syncer
	streamClient *http.Client
	logger       *slog.Logger
	onStreamInit StreamInitHook
	jitter       func(time.Duration) time.Duration

	sm        *statemachine.Machine[State, trigger]
	throttler *throttle.Throttler

	initialized atomic.Bool

	// mu guards everything below. Teardown of the previous connection and
	// registration of the next one happen under one critical section.
	mu         sync.Mutex
	running    bool
	fatalErr   error
	foreground bool
	gen        uint64
	failedGen  uint64
	stream     *eventsource.Stream
	cancel     context.CancelFunc
	lifeCtx    context.Context
	lifeCancel context.CancelFunc
	promise    *async.Promise[struct{}]
}

// New builds a stopped processor.
func New(cfg Config, syncer Syncer, opts ...Option) (*Processor, error) {
	if syncer == nil {
		return nil, ErrNoSyncer
	}
	cfg.setDefaults()

	p := &Processor{
		cfg:        cfg,
		syncer:     syncer,
		logger:     logger.Nop(),
		foreground: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(logger.Component("updater"), slog.String("mode", cfg.Mode.String()))
	p.streamClient = &http.Client{Transport: cfg.Client.Transport}
	p.sm = newStateMachine(p.logger)

	topts := []throttle.Option{throttle.WithLogger(p.logger)}
	if p.jitter != nil {
		topts = append(topts, throttle.WithJitter(p.jitter))
	}
	p.throttler = throttle.New(p.connect, cfg.RetryDelay, cfg.MaxRetryDelay, topts...)
	return p, nil
}

// Start begins synchronizing. The future resolves after the first
// successful sync and fails on a fatal error or when Stop comes first.
// Calling Start on a running processor returns the pending future.
func (p *Processor) Start(ctx context.Context) *async.Future[struct{}] {
	p.mu.Lock()
	if p.fatalErr != nil {
		err := p.fatalErr
		p.mu.Unlock()
		return async.Failed[struct{}](err)
	}
	if p.running {
		f := p.promise.Future()
		p.mu.Unlock()
		return f
	}

	p.running = true
	p.initialized.Store(false)
	p.promise = async.NewPromise[struct{}]()
	p.lifeCtx, p.lifeCancel = context.WithCancel(context.WithoutCancel(ctx))
	_, _ = p.sm.Fire(triggerStart)
	f := p.promise.Future()
	p.mu.Unlock()

	p.logger.InfoContext(ctx, "starting update processor")
	p.throttler.AttemptRun()
	return f
}

// Stop tears down the connection and cancels pending retries. It is
// immediate and idempotent.
func (p *Processor) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked(ErrStopped)
}

// Restart drops the current connection and reconnects right away.
func (p *Processor) Restart(ctx context.Context) *async.Future[struct{}] {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return p.Start(ctx)
	}
	p.throttler.Cancel()
	f := p.promise.Future()
	p.mu.Unlock()

	p.throttler.AttemptRun()
	return f
}

// SetForeground switches between foreground and background operation. In
// the background a streaming processor closes its stream and polls at the
// background interval instead, unless background polling is disabled.
func (p *Processor) SetForeground(fg bool) {
	p.mu.Lock()
	if p.foreground == fg {
		p.mu.Unlock()
		return
	}
	p.foreground = fg
	running := p.running
	if running {
		p.throttler.Cancel()
	}
	p.mu.Unlock()

	p.logger.Debug("visibility changed", slog.Bool("foreground", fg))
	if running {
		p.throttler.AttemptRun()
	}
}

// IsInitialized reports whether a sync succeeded since the last Start.
func (p *Processor) IsInitialized() bool {
	return p.initialized.Load()
}

// State returns the current connection state.
func (p *Processor) State() State {
	return p.sm.Current()
}

// Running reports whether the processor is between Start and Stop.
func (p *Processor) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Processor) stopLocked(reason error) {
	if !p.running {
		return
	}
	p.running = false
	p.gen++
	p.teardownLocked()
	p.throttler.Cancel()
	_, _ = p.sm.Fire(triggerStop)
	p.promise.Reject(reason)
	p.lifeCancel()
	p.logger.Info("update processor stopped")
}

// Must be called with lock held.
func (p *Processor) teardownLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if p.stream != nil {
		p.stream.Close()
		p.stream = nil
	}
}

// connect is the throttled action: it replaces whatever connection exists
// with a fresh one for the current mode and visibility.
func (p *Processor) connect() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.teardownLocked()
	p.gen++
	gen := p.gen
	ctx, cancel := context.WithCancel(p.lifeCtx)
	p.cancel = cancel

	streaming := p.cfg.Mode == ModeStreaming && p.foreground
	interval := p.cfg.PollingInterval
	if !p.foreground {
		interval = p.cfg.BackgroundPollingInterval
	}
	idle := !p.foreground && p.cfg.DisableBackgroundPolling
	if idle {
		// Nothing will sync until the foreground returns; do not keep
		// Start callers waiting.
		p.promise.Resolve(struct{}{})
	}
	p.mu.Unlock()

	switch {
	case idle:
		p.logger.Debug("background polling disabled, idling")
	case streaming:
		p.openStream(ctx, gen)
	default:
		go p.poll(ctx, gen, interval)
	}
}

func (p *Processor) openStream(ctx context.Context, gen uint64) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, transport.JoinURL(p.cfg.StreamURI, "/mping"), nil)
	if err != nil {
		p.fail(gen, errors.Join(transport.ErrConfiguration, err))
		return
	}
	p.cfg.Credentials.Apply(req.Header, true)
	req.Header.Set("Accept", "text/event-stream")

	started := time.Now()
	stream, err := eventsource.SubscribeWithRequestAndOptions(req,
		eventsource.StreamOptionHTTPClient(p.streamClient),
		eventsource.StreamOptionReadTimeout(p.cfg.StreamReadTimeout),
		eventsource.StreamOptionErrorHandler(func(err error) eventsource.StreamErrorHandlerResult {
			go p.fail(gen, classifyStreamError(err))
			return eventsource.StreamErrorHandlerResult{CloseNow: true}
		}),
	)
	if p.onStreamInit != nil {
		p.onStreamInit(started, time.Since(started), err != nil)
	}
	if err != nil {
		p.fail(gen, classifyStreamError(err))
		return
	}

	p.mu.Lock()
	if gen != p.gen || !p.running {
		p.mu.Unlock()
		stream.Close()
		return
	}
	p.stream = stream
	p.mu.Unlock()

	p.logger.Info("stream connected", logger.URL(req.URL.String()))
	go p.consume(ctx, gen, stream)
}

func (p *Processor) consume(ctx context.Context, gen uint64, stream *eventsource.Stream) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-stream.Events:
			if !ok {
				return
			}
			// The payload only signals that something changed.
			p.logger.Debug("stream message received", slog.String("event", ev.Event()))
			p.sync(ctx, gen)
		}
	}
}

func (p *Processor) poll(ctx context.Context, gen uint64, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		if !p.sync(ctx, gen) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// sync runs one resync and records its outcome. It reports whether the
// caller should keep going.
func (p *Processor) sync(ctx context.Context, gen uint64) bool {
	err := p.syncer.Sync(ctx)
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		p.fail(gen, err)
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen || !p.running {
		return false
	}
	_, _ = p.sm.Fire(triggerSynced)
	if !p.initialized.Swap(true) {
		p.logger.Info("update processor initialized")
	}
	p.throttler.Reset()
	p.promise.Resolve(struct{}{})
	return true
}

// fail classifies err for connection generation gen. Only the first
// failure of a generation counts.
func (p *Processor) fail(gen uint64, err error) {
	p.mu.Lock()
	if gen != p.gen || !p.running || p.failedGen == gen {
		p.mu.Unlock()
		return
	}
	p.failedGen = gen

	if transport.IsFatal(err) {
		p.logger.Error("non-retriable error, stopping update processor", logger.Error(err))
		p.fatalErr = err
		p.stopLocked(err)
		p.mu.Unlock()
		return
	}

	p.logger.Warn("update failed, reconnecting", logger.Error(err))
	_, _ = p.sm.Fire(triggerRetry)
	p.teardownLocked()
	p.mu.Unlock()

	p.throttler.AttemptRun()
}

func classifyStreamError(err error) error {
	var se eventsource.SubscriptionError
	if errors.As(err, &se) {
		return &transport.StatusError{Code: se.Code, Body: se.Message}
	}
	var sep *eventsource.SubscriptionError
	if errors.As(err, &sep) {
		return &transport.StatusError{Code: sep.Code, Body: sep.Message}
	}
	return errors.Join(transport.ErrTransport, err)
}
