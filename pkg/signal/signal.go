package signal

import (
	"context"
	"sync"
)

// Observable is a value that changes over time, such as network
// reachability or whether the application is in the foreground.
type Observable[T any] interface {
	// Get returns the current value.
	Get() T
	// Subscribe returns a channel that first yields the current value and
	// then every later change. A slow reader only sees the latest value.
	// The channel is closed when ctx is done or the source is closed.
	Subscribe(ctx context.Context) <-chan T
}

type subscriber[T any] struct {
	ch chan T
}

// push replaces any unread value with v.
func (s *subscriber[T]) push(v T) {
	for {
		select {
		case s.ch <- v:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// Value is an in-memory Observable holding the last value set.
// All methods are safe for concurrent use.
type Value[T comparable] struct {
	mu     sync.Mutex
	value  T
	subs   map[*subscriber[T]]struct{}
	closed bool
}

var _ Observable[bool] = (*Value[bool])(nil)

// NewValue returns a Value holding initial.
func NewValue[T comparable](initial T) *Value[T] {
	return &Value[T]{
		value: initial,
		subs:  make(map[*subscriber[T]]struct{}),
	}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value
}

// Set stores x and notifies subscribers. Setting the current value again is
// a no-op. Reports whether the value changed.
func (v *Value[T]) Set(x T) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed || v.value == x {
		return false
	}
	v.value = x
	for s := range v.subs {
		s.push(x)
	}
	return true
}

// Subscribe returns a channel that yields the current value, then the
// latest value after each change. It closes when ctx is done or the Value
// is closed.
func (v *Value[T]) Subscribe(ctx context.Context) <-chan T {
	s := &subscriber[T]{ch: make(chan T, 1)}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		close(s.ch)
		return s.ch
	}
	s.ch <- v.value
	v.subs[s] = struct{}{}

	go func() {
		<-ctx.Done()
		v.unsubscribe(s)
	}()
	return s.ch
}

func (v *Value[T]) unsubscribe(s *subscriber[T]) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.subs[s]; ok {
		delete(v.subs, s)
		close(s.ch)
	}
}

// Close closes every subscription. Later Set calls are ignored.
func (v *Value[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	for s := range v.subs {
		close(s.ch)
	}
	clear(v.subs)
}
