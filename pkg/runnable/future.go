package runnable

import "context"

// Future is the handle of an asynchronous call.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Async runs fn on a new goroutine and returns its Future.
func Async[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = panicError(r)
			}
		}()
		f.val, f.err = fn(ctx)
	}()
	return f
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the call finished or ctx is done. Abandoning a Future
// through ctx does not cancel the call; cancel the context passed to Go.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
