// Package loop implements the single logical thread the orchestrator runs on.
//
// Every inbound event (listener connect, control message, timer, completion
// of a background operation) is posted to the Loop as a closure. The Loop
// executes closures strictly one at a time, so a handler that does not block
// sees shared state without interference from any other handler. Blocking
// work belongs on its own goroutine, which posts its continuation back.
package loop

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// Scheduler accepts work for a later turn.
type Scheduler interface {
	Post(fn func())
}

// Loop is a serial FIFO executor. The zero value is not usable; call New.
type Loop struct {
	logger *slog.Logger

	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
}

var _ Scheduler = (*Loop)(nil)

// New creates a Loop. A nil logger discards output.
func New(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loop{
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
}

// Post queues fn to run after everything already queued. It never blocks,
// so handlers running on the loop may post follow-up work.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run executes queued work until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if fn, ok := l.next(); ok {
			l.exec(fn)
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-l.wake:
		}
	}
}

// Call runs fn on the loop and waits for it to finish.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitIdle returns once all work queued before the call has executed, or
// after ceiling, whichever comes first. It must not be called from a task
// running on the loop itself.
func (l *Loop) WaitIdle(ctx context.Context, ceiling time.Duration) error {
	done := make(chan struct{})
	l.Post(func() { close(done) })

	timer := time.NewTimer(ceiling)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Pending reports the number of queued tasks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop task panicked",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}
