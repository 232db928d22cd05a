package flagsync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrymomot/flagsync/pkg/async"
	"github.com/dmitrymomot/flagsync/pkg/diagnostics"
	"github.com/dmitrymomot/flagsync/pkg/events"
	"github.com/dmitrymomot/flagsync/pkg/fetcher"
	"github.com/dmitrymomot/flagsync/pkg/flagstore"
	"github.com/dmitrymomot/flagsync/pkg/logger"
	"github.com/dmitrymomot/flagsync/pkg/transport"
	"github.com/dmitrymomot/flagsync/pkg/updater"
	"github.com/dmitrymomot/flagsync/pkg/user"
)

// identity is the user shared by every environment of a client.
type identity struct {
	mu   sync.RWMutex
	user user.User
	hash string
}

func (i *identity) get() (user.User, string) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.user, i.hash
}

func (i *identity) set(u user.User, hash string) {
	i.mu.Lock()
	i.user, i.hash = u, hash
	i.mu.Unlock()
}

// Environment is the pipeline of one mobile key: a flag store kept in sync
// by its own update processor, plus event and diagnostic delivery.
type Environment struct {
	name   string
	cfg    Config
	client *Client
	ident  *identity
	logger *slog.Logger
	now    func() time.Time

	http      *http.Client
	fetcher   *fetcher.Fetcher
	store     *flagstore.Store
	events    *events.Processor
	processor *updater.Processor
	reporter  *diagnostics.Reporter // nil when opted out

	// syncMu orders identity switches with full updates.
	syncMu sync.Mutex
}

// storageID keys persisted data by mobile key without storing the key.
func storageID(mobileKey string) string {
	sum := sha256.Sum256([]byte(mobileKey))
	return hex.EncodeToString(sum[:8])
}

func newEnvironment(ctx context.Context, c *Client, name, mobileKey string) (*Environment, error) {
	cfg := c.cfg
	l := c.logger.With(logger.Environment(name))
	creds := transport.Credentials{
		MobileKey:      mobileKey,
		WrapperName:    cfg.WrapperName,
		WrapperVersion: cfg.WrapperVersion,
	}
	sid := storageID(mobileKey)

	e := &Environment{
		name:   name,
		cfg:    cfg,
		client: c,
		ident:  c.ident,
		logger: l,
		now:    c.opts.now,
		http:   c.opts.httpClient(name),
	}

	e.fetcher = fetcher.New(e.http, cfg.BaseURI, creds,
		fetcher.WithReport(cfg.UseReport),
		fetcher.WithReasons(cfg.EvaluationReasons),
		fetcher.WithTimeout(cfg.ConnectionTimeout),
		fetcher.WithConnectivity(c.connected.Load),
		fetcher.WithLogger(l),
	)
	e.store = flagstore.New(sid,
		flagstore.WithKVStore(c.opts.kv),
		flagstore.WithMaxCachedUsers(cfg.MaxCachedUsers),
		flagstore.WithLogger(l),
	)
	e.events = events.New(events.Config{
		EventsURI:     cfg.EventsURI,
		Credentials:   creds,
		Client:        e.http,
		Capacity:      cfg.EventsCapacity,
		FlushInterval: cfg.EventsFlushInterval,
		Connected:     c.connected.Load,
	}, events.WithLogger(l), events.WithClock(e.now))

	popts := []updater.Option{
		updater.WithLogger(l),
		updater.WithForeground(c.foreground.Load()),
	}
	if !cfg.DiagnosticOptOut {
		store, err := diagnostics.OpenStore(ctx, c.opts.kv, sid, mobileKey, e.now())
		if err != nil {
			l.WarnContext(ctx, "diagnostics disabled", logger.Error(err))
		} else {
			e.reporter = diagnostics.NewReporter(diagnostics.Config{
				EventsURI:   cfg.EventsURI,
				Credentials: creds,
				Client:      e.http,
				Interval:    cfg.DiagnosticRecordingInterval,
				SDK: diagnostics.SDKInfo{
					Name:           "flagsync-go",
					Version:        transport.Version,
					WrapperName:    cfg.WrapperName,
					WrapperVersion: cfg.WrapperVersion,
				},
				Configuration: cfg.diagnosticConfiguration(),
				Connected:     c.connected.Load,
			}, store, e.events, diagnostics.WithLogger(l), diagnostics.WithClock(e.now))
			popts = append(popts, updater.WithStreamInitHook(e.reporter.RecordStreamInit))
		}
	}

	mode := updater.ModePolling
	if cfg.Stream {
		mode = updater.ModeStreaming
	}
	p, err := updater.New(updater.Config{
		Mode:                      mode,
		StreamURI:                 cfg.StreamURI,
		Credentials:               creds,
		Client:                    e.http,
		PollingInterval:           cfg.PollingInterval,
		BackgroundPollingInterval: cfg.BackgroundPollingInterval,
		DisableBackgroundPolling:  cfg.DisableBackgroundPolling,
		RetryDelay:                c.opts.retryDelay,
	}, updater.SyncFunc(e.sync), popts...)
	if err != nil {
		return nil, err
	}
	e.processor = p
	return e, nil
}

// Name returns the environment name.
func (e *Environment) Name() string { return e.name }

// sync fetches the current user's flags and commits them. A result for a
// user that is no longer current is discarded.
func (e *Environment) sync(ctx context.Context) error {
	u, hash := e.ident.get()
	flags, err := e.fetcher.Fetch(ctx, u)
	if err != nil {
		return err
	}

	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	if e.store.UserHash() != hash {
		e.logger.DebugContext(ctx, "discarding flags of a previous user")
		return nil
	}
	changes, err := e.store.ApplyFullUpdate(ctx, flags)
	if err != nil {
		if !errors.Is(err, flagstore.ErrPersist) {
			return err
		}
		e.logger.WarnContext(ctx, "flags applied but not persisted", logger.Error(err))
	}
	e.logger.DebugContext(ctx, "flags synchronized",
		logger.Count(len(flags)),
		slog.Int("changed", countChanged(changes)),
	)
	return nil
}

func countChanged(changes []flagstore.Change) int {
	n := 0
	for _, ch := range changes {
		if ch.Type != flagstore.ChangeNoOp {
			n++
		}
	}
	return n
}

// switchIdentity activates the cache of hash.
func (e *Environment) switchIdentity(ctx context.Context, hash string) {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()
	if err := e.store.SwitchIdentity(ctx, hash); err != nil {
		e.logger.WarnContext(ctx, "user cache index not updated", logger.Error(err))
	}
}

// identify switches to u, records the identify event and resyncs once.
// The future fails only for fatal errors.
func (e *Environment) identify(ctx context.Context, u user.User, hash string) *async.Future[struct{}] {
	e.switchIdentity(ctx, hash)
	e.events.Enqueue(events.NewIdentifyEvent(u, e.now()))

	return async.Async(ctx, hash, func(ctx context.Context, _ string) (struct{}, error) {
		err := e.sync(ctx)
		switch {
		case err == nil:
		case transport.IsFatal(err):
			e.logger.ErrorContext(ctx, "identify rejected", logger.Error(err))
			return struct{}{}, err
		default:
			e.logger.InfoContext(ctx, "identify resync failed, cached flags kept", logger.Error(err))
		}
		return struct{}{}, nil
	})
}

// goOnline starts synchronization and delivery.
func (e *Environment) goOnline(ctx context.Context, foreground bool) *async.Future[struct{}] {
	e.fetcher.SetOffline(false)
	e.events.SetOffline(false)
	if e.reporter != nil && foreground {
		e.reporter.Start()
	}
	return e.processor.Start(ctx)
}

// goOffline stops network activity. Events keep queueing.
func (e *Environment) goOffline() {
	e.fetcher.SetOffline(true)
	e.processor.Stop()
	e.events.SetOffline(true)
	if e.reporter != nil {
		e.reporter.Stop()
	}
}

// disconnect pauses network activity until connectivity returns.
func (e *Environment) disconnect() {
	e.processor.Stop()
	if e.reporter != nil {
		e.reporter.Stop()
	}
}

func (e *Environment) setForeground(fg bool, online bool) {
	e.processor.SetForeground(fg)
	if e.reporter == nil {
		return
	}
	if fg && online {
		e.reporter.Start()
	} else {
		e.reporter.Stop()
	}
}

func (e *Environment) close(ctx context.Context) error {
	e.processor.Stop()
	if e.reporter != nil {
		e.reporter.Stop()
	}
	return e.events.Close(ctx)
}

// IsInitialized reports whether the environment completed a sync since it
// was last started. An offline client counts as initialized.
func (e *Environment) IsInitialized() bool {
	return e.client.IsOffline() || e.processor.IsInitialized()
}

// State returns the update processor state.
func (e *Environment) State() updater.State {
	return e.processor.State()
}

// AllFlags returns the value of every flag of the current user.
func (e *Environment) AllFlags() map[string]any {
	flags := e.store.AllFlags()
	out := make(map[string]any, len(flags))
	for k, f := range flags {
		out[k] = f.Value
	}
	return out
}

// Track records a custom event.
func (e *Environment) Track(name string, data any, metric *float64) {
	u, _ := e.ident.get()
	e.events.Enqueue(events.NewCustomEvent(name, u, data, metric, e.cfg.InlineUsersInEvents, e.now()))
}

// RegisterFlagListener calls fn after every committed change of key.
func (e *Environment) RegisterFlagListener(key string, fn flagstore.Listener) flagstore.ListenerID {
	return e.store.RegisterListener(key, fn)
}

// RegisterStoreListener calls fn with the changes of every commit.
func (e *Environment) RegisterStoreListener(fn flagstore.StoreListener) flagstore.ListenerID {
	return e.store.RegisterStoreListener(fn)
}

// UnregisterFlagListener removes a listener of this environment.
func (e *Environment) UnregisterFlagListener(id flagstore.ListenerID) {
	e.store.UnregisterListener(id)
}

// Flush asks the event processor to deliver now.
func (e *Environment) Flush() {
	e.events.Flush()
}
