package updater

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/five82/jpdict/internal/future"
	"github.com/five82/jpdict/internal/jpdict"
	"github.com/five82/jpdict/internal/telemetry"
)

// Updatable runs one update attempt.
type Updatable interface {
	Update(ctx context.Context, force bool) error
}

// ErrorEvent describes a failed attempt. NextRetry is nil when the sequence
// has ended.
type ErrorEvent struct {
	Err        error
	Kind       string
	RetryCount int
	NextRetry  *time.Time
}

// RetryParams configures one retry sequence.
type RetryParams struct {
	Handle     Updatable
	Force      bool
	OnStart    func()
	OnComplete func()
	OnError    func(ErrorEvent)
}

// RetrierOptions configures a Retrier.
type RetrierOptions struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// NewBackOff overrides the interval policy; InitialInterval and
	// MaxInterval are ignored when it is set.
	NewBackOff func() backoff.BackOff
	Now        func() time.Time
	After      func(time.Duration) <-chan time.Time
	Logger     *slog.Logger
	Metrics    *telemetry.Metrics
}

// Retrier runs update attempts with exponential backoff, at most one
// sequence per handle.
type Retrier struct {
	newBackOff func() backoff.BackOff
	now        func() time.Time
	after      func(time.Duration) <-chan time.Time
	logger     *slog.Logger
	metrics    *telemetry.Metrics

	mu      sync.Mutex
	running map[Updatable]*sequence
}

type sequence struct {
	cancel    context.CancelFunc
	cancelled atomic.Bool
	kick      chan struct{}
	done      *future.Future[struct{}]
}

// NewRetrier creates a Retrier.
func NewRetrier(opts RetrierOptions) *Retrier {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	initial := opts.InitialInterval
	if initial <= 0 {
		initial = 3 * time.Second
	}
	maxInterval := opts.MaxInterval
	if maxInterval <= 0 {
		maxInterval = 12 * time.Hour
	}
	newBackOff := opts.NewBackOff
	if newBackOff == nil {
		newBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initial
			b.Multiplier = 2
			b.RandomizationFactor = 0.1
			b.MaxInterval = maxInterval
			b.Reset()
			return b
		}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	after := opts.After
	if after == nil {
		after = time.After
	}
	return &Retrier{
		newBackOff: newBackOff,
		now:        now,
		after:      after,
		logger:     logger,
		metrics:    opts.Metrics,
		running:    make(map[Updatable]*sequence),
	}
}

// Run starts a retry sequence for p.Handle, or joins the one already running.
// Joining with Force set cuts short a pending backoff wait. The returned
// future resolves when the sequence ends.
func (r *Retrier) Run(ctx context.Context, p RetryParams) *future.Future[struct{}] {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.running[p.Handle]
	if ok && !prev.cancelled.Load() {
		if p.Force {
			select {
			case prev.kick <- struct{}{}:
			default:
			}
		}
		return prev.done
	}

	seqCtx, cancel := context.WithCancel(ctx)
	seq := &sequence{
		cancel: cancel,
		kick:   make(chan struct{}, 1),
		done:   future.New[struct{}](),
	}
	r.running[p.Handle] = seq

	go func() {
		// A cancelled sequence may still be finishing its last attempt.
		if prev != nil {
			<-prev.done.Done()
		}
		r.run(seqCtx, seq, p)
	}()
	return seq.done
}

// Cancel stops the sequence running for h. The attempt in flight is
// abandoned and reported as aborted; no further attempt is made.
func (r *Retrier) Cancel(h Updatable) bool {
	r.mu.Lock()
	seq, ok := r.running[h]
	r.mu.Unlock()
	if !ok || seq.cancelled.Load() {
		return false
	}
	seq.cancelled.Store(true)
	seq.cancel()
	return true
}

// Running reports whether a sequence is active for h.
func (r *Retrier) Running(h Updatable) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	seq, ok := r.running[h]
	return ok && !seq.cancelled.Load()
}

func (r *Retrier) run(ctx context.Context, seq *sequence, p RetryParams) {
	defer func() {
		r.mu.Lock()
		if r.running[p.Handle] == seq {
			delete(r.running, p.Handle)
		}
		r.mu.Unlock()
		seq.cancel()
		seq.done.Resolve(struct{}{})
	}()

	b := r.newBackOff()
	retryCount := 0
	for {
		if seq.cancelled.Load() {
			r.aborted(p, retryCount)
			return
		}

		call(p.OnStart)
		err := p.Handle.Update(ctx, p.Force)

		if seq.cancelled.Load() {
			r.aborted(p, retryCount)
			return
		}
		if err == nil {
			r.metrics.RecordUpdateAttempt("success")
			call(p.OnComplete)
			return
		}

		kind := jpdict.ErrorKind(err)
		wait := backoff.Stop
		if jpdict.Retryable(err) {
			wait = b.NextBackOff()
		}
		if wait == backoff.Stop {
			r.metrics.RecordUpdateAttempt("terminal")
			r.logger.Info("update failed", "kind", kind, "error", err, "retry_count", retryCount)
			if p.OnError != nil {
				p.OnError(ErrorEvent{Err: err, Kind: kind, RetryCount: retryCount})
			}
			return
		}

		r.metrics.RecordUpdateAttempt("transient")
		next := r.now().Add(wait)
		r.logger.Info("update failed, retrying",
			"kind", kind, "error", err, "retry_count", retryCount, "wait", wait)
		if p.OnError != nil {
			p.OnError(ErrorEvent{Err: err, Kind: kind, RetryCount: retryCount, NextRetry: &next})
		}

		select {
		case <-r.after(wait):
		case <-seq.kick:
			r.logger.Info("update retry resumed early", "retry_count", retryCount)
		case <-ctx.Done():
		}
		retryCount++
	}
}

func (r *Retrier) aborted(p RetryParams, retryCount int) {
	r.metrics.RecordUpdateAttempt("aborted")
	r.logger.Info("update cancelled", "retry_count", retryCount)
	if p.OnError != nil {
		p.OnError(ErrorEvent{Err: jpdict.ErrAborted, Kind: jpdict.KindAbort, RetryCount: retryCount})
	}
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}
