package async

import (
	"context"
	"sync"
	"time"
)

// Future is the read side of a value that becomes available later.
// A Future completes exactly once.
type Future[U any] struct {
	result U
	err    error
	once   sync.Once
	done   chan struct{}
}

func newFuture[U any]() *Future[U] {
	return &Future[U]{done: make(chan struct{})}
}

// complete stores the outcome and wakes waiters. Later calls are ignored.
// Reports whether this call completed the future.
func (f *Future[U]) complete(res U, err error) bool {
	completed := false
	f.once.Do(func() {
		f.result = res
		f.err = err
		close(f.done)
		completed = true
	})
	return completed
}

// Await blocks until the future completes.
func (f *Future[U]) Await() (U, error) {
	<-f.done
	return f.result, f.err
}

// AwaitContext blocks until the future completes or ctx is done.
func (f *Future[U]) AwaitContext(ctx context.Context) (U, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		var zero U
		return zero, ctx.Err()
	}
}

// AwaitWithTimeout waits at most timeout. Returns ErrTimeout if the future
// is still pending after that.
func (f *Future[U]) AwaitWithTimeout(timeout time.Duration) (U, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-f.done:
		return f.result, f.err
	case <-t.C:
		var zero U
		return zero, ErrTimeout
	}
}

// Done returns a channel closed on completion.
func (f *Future[U]) Done() <-chan struct{} {
	return f.done
}

// IsComplete reports completion without blocking.
func (f *Future[U]) IsComplete() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Promise is the write side of a Future.
type Promise[U any] struct {
	future *Future[U]
}

// NewPromise returns a pending promise.
func NewPromise[U any]() *Promise[U] {
	return &Promise[U]{future: newFuture[U]()}
}

// Future returns the future bound to this promise.
func (p *Promise[U]) Future() *Future[U] {
	return p.future
}

// Resolve completes the future with a value. Returns false when the future
// was already completed.
func (p *Promise[U]) Resolve(v U) bool {
	return p.future.complete(v, nil)
}

// Reject completes the future with err. Returns false when the future was
// already completed.
func (p *Promise[U]) Reject(err error) bool {
	var zero U
	return p.future.complete(zero, err)
}

// Settled reports whether Resolve or Reject has been called.
func (p *Promise[U]) Settled() bool {
	return p.future.IsComplete()
}

// Resolved returns an already completed future holding v.
func Resolved[U any](v U) *Future[U] {
	f := newFuture[U]()
	f.complete(v, nil)
	return f
}

// Failed returns an already completed future holding err.
func Failed[U any](err error) *Future[U] {
	f := newFuture[U]()
	var zero U
	f.complete(zero, err)
	return f
}
