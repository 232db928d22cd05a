package throttle

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/flagsync/pkg/logger"
)

// Throttler runs one action at a time with jittered exponential backoff
// between consecutive attempts. Safe for concurrent use.
type Throttler struct {
	action   func()
	retry    time.Duration
	maxRetry time.Duration
	jitter   func(time.Duration) time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	attempts int
	timer    *time.Timer
	pending  bool
	running  bool
	rearm    bool
	epoch    uint64 // bumped by Cancel so an already-fired timer is ignored
}

// New creates a throttler for action. retry is the base delay and maxRetry
// caps the pre-jitter delay.
func New(action func(), retry, maxRetry time.Duration, opts ...Option) *Throttler {
	t := &Throttler{
		action:   action,
		retry:    retry,
		maxRetry: maxRetry,
		jitter:   Jitter,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// AttemptRun schedules the action. The first attempt runs immediately;
// later attempts wait for the backoff delay of the current attempt index.
func (t *Throttler) AttemptRun() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending {
		return
	}
	if t.running {
		t.rearm = true
		return
	}
	t.scheduleLocked()
}

// Cancel drops any pending run and resets the attempt counter.
// A run that is already executing is not interrupted; an AttemptRun made
// after Cancel while it executes is honored once it returns.
func (t *Throttler) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.epoch++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.pending = false
	t.rearm = false
	t.attempts = 0
}

// Reset marks the last run as successful: the next AttemptRun is immediate
// again. A pending run is left in place.
func (t *Throttler) Reset() {
	t.mu.Lock()
	t.attempts = 0
	t.mu.Unlock()
}

// Attempts reports how many runs were scheduled since the last Reset/Cancel.
func (t *Throttler) Attempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

// Pending reports whether a run is scheduled but has not started yet.
func (t *Throttler) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Must be called with lock held.
func (t *Throttler) scheduleLocked() {
	var delay time.Duration
	if t.attempts > 0 {
		delay = t.jitter(Backoff(t.retry, t.maxRetry, t.attempts))
		t.logger.Debug("throttling next attempt",
			logger.Attempt(t.attempts),
			logger.Delay(delay))
	}
	t.attempts++
	t.pending = true

	epoch := t.epoch
	t.timer = time.AfterFunc(delay, func() { t.fire(epoch) })
}

func (t *Throttler) fire(epoch uint64) {
	t.mu.Lock()
	if epoch != t.epoch || !t.pending {
		t.mu.Unlock()
		return
	}
	t.pending = false
	t.running = true
	t.timer = nil
	t.mu.Unlock()

	t.action()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	if t.rearm {
		t.rearm = false
		t.scheduleLocked()
	}
}
