// Package future provides a result-bearing completion handle: a done channel
// plus a result slot that is written exactly once.
//
// Any number of goroutines may wait on the same Future. Waiters that arrive
// after settlement observe the stored result immediately, which is what lets
// callers memoize an in-flight operation instead of starting a second one.
package future

import (
	"context"
	"sync"
)

// Future holds the eventual result of an operation.
type Future[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

// New returns an unsettled Future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a Future already settled with v.
func Resolved[T any](v T) *Future[T] {
	f := New[T]()
	f.Resolve(v)
	return f
}

// Resolve settles the future with v. Only the first Resolve or Reject wins.
func (f *Future[T]) Resolve(v T) bool {
	return f.settle(v, nil)
}

// Reject settles the future with err. Only the first Resolve or Reject wins.
func (f *Future[T]) Reject(err error) bool {
	var zero T
	return f.settle(zero, err)
}

func (f *Future[T]) settle(v T, err error) bool {
	settled := false
	f.once.Do(func() {
		f.val = v
		f.err = err
		settled = true
		close(f.done)
	})
	return settled
}

// Done is closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether the future has a result.
func (f *Future[T]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Peek returns the result without blocking. ok is false while unsettled.
func (f *Future[T]) Peek() (v T, err error, ok bool) {
	if !f.Settled() {
		return v, nil, false
	}
	return f.val, f.err, true
}

// Wait blocks until the future settles or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
