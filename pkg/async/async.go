package async

import (
	"context"
	"errors"
)

// Async runs fn in its own goroutine and returns a Future for its result.
// If ctx is already done, fn is not called and the future fails with ctx.Err().
func Async[T any, U any](ctx context.Context, param T, fn func(context.Context, T) (U, error)) *Future[U] {
	f := newFuture[U]()

	go func() {
		if err := ctx.Err(); err != nil {
			var zero U
			f.complete(zero, err)
			return
		}
		res, err := fn(ctx, param)
		f.complete(res, err)
	}()

	return f
}

// WaitAll awaits every future in order and stops at the first error.
func WaitAll[U any](futures ...*Future[U]) ([]U, error) {
	results := make([]U, len(futures))

	for i, future := range futures {
		result, err := future.Await()
		results[i] = result
		if err != nil {
			return results, err
		}
	}

	return results, nil
}

// Result is the outcome of one settled future.
type Result[U any] struct {
	Value U
	Err   error
}

// WaitAllSettled awaits every future regardless of failures and returns
// their outcomes in input order together with all errors joined.
func WaitAllSettled[U any](futures ...*Future[U]) ([]Result[U], error) {
	results := make([]Result[U], len(futures))
	var errs []error

	for i, future := range futures {
		v, err := future.Await()
		results[i] = Result[U]{Value: v, Err: err}
		if err != nil {
			errs = append(errs, err)
		}
	}

	return results, errors.Join(errs...)
}
