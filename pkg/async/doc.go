// Package async provides generic completion signals.
//
// A Future is the read side of a result that arrives later; a Promise is the
// write side. Components that start background work return a Future and keep
// the Promise, resolving or rejecting it exactly once:
//
//	p := async.NewPromise[struct{}]()
//	go func() {
//	    if err := sync(ctx); err != nil {
//	        p.Reject(err)
//	        return
//	    }
//	    p.Resolve(struct{}{})
//	}()
//	_, err := p.Future().AwaitWithTimeout(5 * time.Second)
//
// Async runs a function in its own goroutine and returns its Future.
// WaitAll stops at the first failure, while WaitAllSettled waits for every
// future and reports each outcome.
package async
