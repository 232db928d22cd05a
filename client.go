package flagsync

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/flagsync/pkg/async"
	"github.com/dmitrymomot/flagsync/pkg/events"
	"github.com/dmitrymomot/flagsync/pkg/flagstore"
	"github.com/dmitrymomot/flagsync/pkg/kvstore"
	"github.com/dmitrymomot/flagsync/pkg/logger"
	"github.com/dmitrymomot/flagsync/pkg/throttle"
	"github.com/dmitrymomot/flagsync/pkg/transport"
	"github.com/dmitrymomot/flagsync/pkg/user"
)

const (
	onlineRetryDelay    = time.Second
	onlineMaxRetryDelay = time.Hour
	anonymousKeyKey     = "anonymous/key"
)

// Client owns one Environment per configured mobile key and applies
// identity, connectivity and visibility changes to all of them.
// Evaluation and tracking methods act on the default environment.
type Client struct {
	cfg    Config
	opts   options
	logger *slog.Logger

	ident        *identity
	anonymousKey string
	envs         map[string]*Environment
	names        []string

	// mu serializes offline, online and visibility transitions.
	mu         sync.Mutex
	offline    atomic.Bool
	connected  atomic.Bool
	foreground atomic.Bool
	closed     bool

	identifyMu     sync.Mutex
	onlineThrottle *throttle.Throttler
	lifeCtx        context.Context
	lifeCancel     context.CancelFunc
	subs           sync.WaitGroup
}

// New builds the client, switches every environment to u and starts
// synchronizing unless the configuration asks for offline mode.
// The future resolves once every environment completed its first sync or
// a retriable failure left it reconnecting in the background, and fails
// only for fatal errors. An invalid configuration returns a nil client
// and a failed future.
func New(cfg Config, u user.User, opts ...Option) (*Client, *async.Future[struct{}]) {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, async.Failed[struct{}](err)
	}

	o := options{
		logger:     logger.Nop(),
		kv:         kvstore.NewMemory(),
		now:        time.Now,
		retryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = func(string) *http.Client {
			return transport.NewHTTPClient(transport.WithConnectTimeout(cfg.ConnectionTimeout))
		}
	}

	c := &Client{
		cfg:    cfg,
		opts:   o,
		logger: o.logger.With(logger.Component("client")),
		ident:  &identity{},
		envs:   map[string]*Environment{},
	}
	c.lifeCtx, c.lifeCancel = context.WithCancel(context.Background())
	c.offline.Store(cfg.Offline)
	c.connected.Store(o.connectivity == nil || o.connectivity.Get())
	c.foreground.Store(o.foreground == nil || o.foreground.Get())
	c.onlineThrottle = throttle.New(c.applyOnline, onlineRetryDelay, onlineMaxRetryDelay,
		throttle.WithLogger(c.logger))

	ctx := c.lifeCtx
	c.anonymousKey = c.loadAnonymousKey(ctx)
	u = u.WithDefaultKey(c.anonymousKey)
	hash, err := u.Hash()
	if err != nil {
		return nil, async.Failed[struct{}](errors.Join(ErrInvalidUser, err))
	}
	c.ident.set(u, hash)

	for name, key := range cfg.environments() {
		env, err := newEnvironment(ctx, c, name, key)
		if err != nil {
			return nil, async.Failed[struct{}](errors.Join(ErrInvalidConfig, err))
		}
		env.switchIdentity(ctx, hash)
		c.envs[name] = env
		c.names = append(c.names, name)
	}
	slices.Sort(c.names)

	started := c.start(ctx)
	c.subscribe()
	return c, started
}

// loadAnonymousKey returns the persisted key for users without one,
// generating it on first use.
func (c *Client) loadAnonymousKey(ctx context.Context) string {
	data, found, err := c.opts.kv.Get(ctx, anonymousKeyKey)
	if err == nil && found && len(data) > 0 {
		return string(data)
	}
	key := uuid.NewString()
	if err := c.opts.kv.Put(ctx, anonymousKeyKey, []byte(key)); err != nil {
		c.logger.WarnContext(ctx, "anonymous user key not persisted", logger.Error(err))
	}
	return key
}

func (c *Client) start(ctx context.Context) *async.Future[struct{}] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.offline.Load() {
		for _, env := range c.envs {
			env.goOffline()
		}
		c.logger.InfoContext(ctx, "started in offline mode")
		return async.Resolved(struct{}{})
	}
	u, _ := c.ident.get()
	for _, env := range c.envs {
		env.events.Enqueue(events.NewIdentifyEvent(u, env.now()))
	}
	if !c.connected.Load() {
		return async.Resolved(struct{}{})
	}

	futures := make([]*async.Future[struct{}], 0, len(c.envs))
	for _, env := range c.envs {
		futures = append(futures, env.goOnline(ctx, c.foreground.Load()))
	}
	return settle(ctx, futures)
}

// settle resolves once every future completed and fails with the fatal
// errors among them.
func settle(ctx context.Context, futures []*async.Future[struct{}]) *async.Future[struct{}] {
	return async.Async(context.WithoutCancel(ctx), futures,
		func(_ context.Context, fs []*async.Future[struct{}]) (struct{}, error) {
			results, _ := async.WaitAllSettled(fs...)
			var errs []error
			for _, r := range results {
				if transport.IsFatal(r.Err) {
					errs = append(errs, r.Err)
				}
			}
			return struct{}{}, errors.Join(errs...)
		})
}

func (c *Client) subscribe() {
	if s := c.opts.connectivity; s != nil {
		ch := s.Subscribe(c.lifeCtx)
		c.subs.Add(1)
		go func() {
			defer c.subs.Done()
			for v := range ch {
				c.setConnected(v)
			}
		}()
	}
	if s := c.opts.foreground; s != nil {
		ch := s.Subscribe(c.lifeCtx)
		c.subs.Add(1)
		go func() {
			defer c.subs.Done()
			for v := range ch {
				c.SetForeground(v)
			}
		}()
	}
}

// Identify switches every environment to u, records one identify event
// per environment and resyncs them in parallel. The future resolves when
// every resync completed or failed, and fails only for fatal errors.
func (c *Client) Identify(ctx context.Context, u user.User) *async.Future[struct{}] {
	c.identifyMu.Lock()
	defer c.identifyMu.Unlock()

	if c.isClosed() {
		return async.Failed[struct{}](ErrClosed)
	}

	u = u.WithDefaultKey(c.anonymousKey)
	hash, err := u.Hash()
	if err != nil {
		return async.Failed[struct{}](errors.Join(ErrInvalidUser, err))
	}
	c.ident.set(u, hash)
	c.logger.InfoContext(ctx, "identify", logger.UserKey(u.Key))

	futures := make([]*async.Future[struct{}], 0, len(c.envs))
	for _, name := range c.names {
		futures = append(futures, c.envs[name].identify(ctx, u, hash))
	}
	return settle(ctx, futures)
}

// SetOffline stops all network activity. Events keep queueing.
func (c *Client) SetOffline() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.onlineThrottle.Cancel()
	c.offline.Store(true)
	for _, env := range c.envs {
		env.goOffline()
	}
	c.logger.Info("offline")
}

// SetOnline leaves offline mode. Repeated calls are throttled with
// exponential backoff between one second and one hour.
func (c *Client) SetOnline() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.offline.Store(false)
	c.mu.Unlock()
	c.onlineThrottle.AttemptRun()
}

func (c *Client) applyOnline() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.offline.Load() || !c.connected.Load() {
		return
	}
	for _, env := range c.envs {
		env.goOnline(c.lifeCtx, c.foreground.Load())
	}
	c.logger.Info("online")
}

func (c *Client) setConnected(connected bool) {
	if c.connected.Swap(connected) == connected {
		return
	}
	c.logger.Info("connectivity changed", slog.Bool("connected", connected))
	if connected {
		if !c.offline.Load() {
			c.onlineThrottle.AttemptRun()
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for _, env := range c.envs {
		env.disconnect()
	}
}

// SetForeground switches every environment between foreground and
// background operation.
func (c *Client) SetForeground(fg bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.foreground.Swap(fg) == fg {
		return
	}
	online := !c.offline.Load() && c.connected.Load()
	for _, env := range c.envs {
		env.setForeground(fg, online)
	}
}

// IsOffline reports whether SetOffline or the configuration put the
// client offline.
func (c *Client) IsOffline() bool {
	return c.offline.Load()
}

// IsInitialized reports whether the default environment has synced.
func (c *Client) IsInitialized() bool {
	return c.def().IsInitialized()
}

// Environment returns the environment called name.
func (c *Client) Environment(name string) (*Environment, error) {
	env, ok := c.envs[name]
	if !ok {
		return nil, ErrUnknownEnvironment
	}
	return env, nil
}

// Environments returns the sorted environment names.
func (c *Client) Environments() []string {
	return slices.Clone(c.names)
}

func (c *Client) def() *Environment {
	return c.envs[DefaultEnvironment]
}

// Variation evaluates key in the default environment.
func (c *Client) Variation(key string, fallback any) any {
	return c.def().Variation(key, fallback)
}

// VariationDetail evaluates key in the default environment.
func (c *Client) VariationDetail(key string, fallback any) EvaluationDetail {
	return c.def().VariationDetail(key, fallback)
}

// Track records a custom event in the default environment.
func (c *Client) Track(name string, data any, metric *float64) {
	c.def().Track(name, data, metric)
}

// AllFlags returns the flag values of the default environment.
func (c *Client) AllFlags() map[string]any {
	return c.def().AllFlags()
}

// RegisterFlagListener watches key in the default environment.
func (c *Client) RegisterFlagListener(key string, fn flagstore.Listener) flagstore.ListenerID {
	return c.def().RegisterFlagListener(key, fn)
}

// UnregisterFlagListener removes a listener registered with
// RegisterFlagListener.
func (c *Client) UnregisterFlagListener(id flagstore.ListenerID) {
	c.def().UnregisterFlagListener(id)
}

// Flush asks every environment to deliver its events now.
func (c *Client) Flush() {
	for _, env := range c.envs {
		env.Flush()
	}
}

// Close stops every environment and makes a final event delivery.
// The KV store is left open.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.onlineThrottle.Cancel()
	c.mu.Unlock()

	c.lifeCancel()
	c.subs.Wait()

	var errs []error
	for _, name := range c.names {
		if err := c.envs[name].close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
