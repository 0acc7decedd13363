// Package future provides the suspending form of sqlforge's blocking calls.
//
// Go(ctx, fn) runs fn on its own goroutine and returns immediately; Await blocks until the
// result is ready or the awaiting context ends. A caller that no longer needs the result simply
// never awaits it. Work is never cancelled mid-execution by an abandoned Await.
package future

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Future is the eventual result of one call.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Go starts fn and returns its future. fn receives ctx unchanged.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.val, f.err = fn(ctx)
	}()
	return f
}

// Ready returns an already-completed future.
func Ready[T any](v T, err error) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), val: v, err: err}
	close(f.done)
	return f
}

// Await waits for the result. If ctx ends first, Await returns ctx.Err() and the call keeps
// running to completion in the background.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// All awaits every future and returns their values in order, or the first error.
func All[T any](ctx context.Context, fs ...*Future[T]) ([]T, error) {
	out := make([]T, len(fs))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range fs {
		g.Go(func() error {
			v, err := f.Await(gctx)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
