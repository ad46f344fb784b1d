// Package async runs work in goroutines and hands back futures for the
// result. Panics inside a task are recovered and reported as errors.
package async

import (
	"context"
	"fmt"
	"time"
)

// Future is the eventual result of a task started with Run.
type Future[T any] struct {
	done   chan struct{}
	result T
	err    error
}

// Run starts fn in its own goroutine. A ctx that is already cancelled
// completes the future with ctx.Err() without calling fn.
func Run[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("%w: %v", ErrPanic, r)
			}
		}()
		if err := ctx.Err(); err != nil {
			f.err = err
			return
		}
		f.result, f.err = fn(ctx)
	}()
	return f
}

// Detached runs fn on a context that survives cancellation of ctx but keeps
// its values, bounded by timeout. It is meant for best-effort side effects
// triggered from request handlers.
func Detached(ctx context.Context, timeout time.Duration, fn func(context.Context) error) *Future[struct{}] {
	return Run(context.WithoutCancel(ctx), func(ctx context.Context) (struct{}, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return struct{}{}, fn(ctx)
	})
}

// Await blocks until the task finishes.
func (f *Future[T]) Await() (T, error) {
	<-f.done
	return f.result, f.err
}

// AwaitTimeout is Await bounded by d.
func (f *Future[T]) AwaitTimeout(d time.Duration) (T, error) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-f.done:
		return f.result, f.err
	case <-t.C:
		var zero T
		return zero, ErrTimeout
	}
}

func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// WaitAll collects results in order and returns the first error.
func WaitAll[T any](futures ...*Future[T]) ([]T, error) {
	results := make([]T, len(futures))
	var firstErr error
	for i, f := range futures {
		r, err := f.Await()
		results[i] = r
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return results, firstErr
}
