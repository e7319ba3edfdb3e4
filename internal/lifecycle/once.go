package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
)

// Once runs an initialiser at most once for the lifetime of the value and
// caches its result. Start never blocks the caller.
type Once[T any] struct {
	start sync.Once
	done  chan struct{}
	started atomic.Bool

	value T
	err   error
}

// NewOnce creates an unstarted Once.
func NewOnce[T any]() *Once[T] {
	return &Once[T]{done: make(chan struct{})}
}

// Start launches fn in a new goroutine the first time it is called. Later
// calls are no-ops and reuse the cached result. fn is detached from ctx
// cancellation so an early unmount cannot poison the cached result, but it
// keeps ctx values.
func (o *Once[T]) Start(ctx context.Context, fn func(context.Context) (T, error)) {
	o.start.Do(func() {
		o.started.Store(true)
		go func() {
			defer close(o.done)
			o.value, o.err = fn(context.WithoutCancel(ctx))
		}()
	})
}

// Done is closed once the initialiser has returned.
func (o *Once[T]) Done() <-chan struct{} {
	return o.done
}

// Resolved reports whether the initialiser has returned.
func (o *Once[T]) Resolved() bool {
	select {
	case <-o.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the initialiser has returned or ctx is done.
func (o *Once[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-o.done:
		return o.value, o.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Started reports whether the initialiser has been launched.
func (o *Once[T]) Started() bool {
	return o.started.Load()
}
