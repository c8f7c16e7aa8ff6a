// Package broadcast pushes database state snapshots to connected listeners.
//
// Notify only marks the broadcaster dirty; the snapshot is built and sent on
// the next loop turn, so any burst of Notify calls within one turn produces a
// single emission built from the state at the end of the burst.
package broadcast

import (
	"log/slog"
	"sync"
	"time"

	"github.com/five82/jpdict/internal/jpdict"
	"github.com/five82/jpdict/internal/lifecycle"
	"github.com/five82/jpdict/internal/loop"
	"github.com/five82/jpdict/internal/protocol"
	"github.com/five82/jpdict/internal/report"
	"github.com/five82/jpdict/internal/telemetry"
)

// Channel is a connected listener.
type Channel interface {
	Post(msg protocol.DbStateUpdate) error
}

// LastUpdateReader reads the persisted time of the last successful update.
type LastUpdateReader interface {
	LastUpdate() (time.Time, bool, error)
}

// Options configures a Broadcaster.
type Options struct {
	Loop loop.Scheduler
	// Handle returns the current database handle.
	Handle func() lifecycle.Handle
	// LastError returns the most recent update error, if any.
	LastError func() *jpdict.UpdateErrorState
	Store     LastUpdateReader
	Reporter  report.Reporter
	// OnFlush runs after every emission attempt, including those with no
	// listeners.
	OnFlush func()
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// Broadcaster tracks listeners and debounces emissions to them.
type Broadcaster struct {
	loop      loop.Scheduler
	handle    func() lifecycle.Handle
	lastError func() *jpdict.UpdateErrorState
	store     LastUpdateReader
	reporter  report.Reporter
	onFlush   func()
	logger    *slog.Logger
	metrics   *telemetry.Metrics

	mu       sync.Mutex
	channels map[Channel]struct{}
	pending  bool
	all      bool
	targets  map[Channel]struct{}
}

// New creates a Broadcaster.
func New(opts Options) *Broadcaster {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	handle := opts.Handle
	if handle == nil {
		handle = func() lifecycle.Handle { return nil }
	}
	lastError := opts.LastError
	if lastError == nil {
		lastError = func() *jpdict.UpdateErrorState { return nil }
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = report.NewLogReporter(logger, report.Options{})
	}
	onFlush := opts.OnFlush
	if onFlush == nil {
		onFlush = func() {}
	}
	return &Broadcaster{
		loop:      opts.Loop,
		handle:    handle,
		lastError: lastError,
		store:     opts.Store,
		reporter:  reporter,
		onFlush:   onFlush,
		logger:    logger,
		metrics:   opts.Metrics,
		channels:  make(map[Channel]struct{}),
		targets:   make(map[Channel]struct{}),
	}
}

// Register adds c to the listener set. Registering twice has no effect.
func (b *Broadcaster) Register(c Channel) {
	b.mu.Lock()
	b.channels[c] = struct{}{}
	n := len(b.channels)
	b.mu.Unlock()
	b.metrics.SetListeners(n)
}

// Unregister removes c from the listener set.
func (b *Broadcaster) Unregister(c Channel) {
	b.mu.Lock()
	delete(b.channels, c)
	delete(b.targets, c)
	n := len(b.channels)
	b.mu.Unlock()
	b.metrics.SetListeners(n)
}

// Len returns the number of registered listeners.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.channels)
}

// Notify schedules an emission. With no targets every listener receives it;
// otherwise only the given listeners do. It is safe to call from any
// goroutine.
func (b *Broadcaster) Notify(targets ...Channel) {
	b.mu.Lock()
	if len(targets) == 0 {
		b.all = true
	}
	for _, c := range targets {
		b.targets[c] = struct{}{}
	}
	schedule := !b.pending
	b.pending = true
	b.mu.Unlock()

	if schedule {
		b.loop.Post(b.flush)
	}
}

func (b *Broadcaster) flush() {
	defer b.onFlush()

	recipients := b.takeRecipients()
	if len(recipients) == 0 {
		return
	}

	msg, ok := b.snapshot()
	if !ok {
		return
	}

	b.metrics.RecordEmission()
	for _, c := range recipients {
		if err := c.Post(msg); err != nil {
			b.logger.Warn("posting state to listener failed", "error", err)
		}
	}
}

// takeRecipients clears the pending request and returns the registered
// listeners it addressed.
func (b *Broadcaster) takeRecipients() []Channel {
	b.mu.Lock()
	defer b.mu.Unlock()

	all := b.all
	targets := b.targets
	b.pending = false
	b.all = false
	b.targets = make(map[Channel]struct{})

	var out []Channel
	for c := range b.channels {
		if _, ok := targets[c]; all || ok {
			out = append(out, c)
		}
	}
	return out
}

// snapshot builds the message from current state. It reports false while
// the database has not finished opening, since its versions are unknown
// until then.
func (b *Broadcaster) snapshot() (protocol.DbStateUpdate, bool) {
	h := b.handle()
	if h == nil {
		return protocol.DbStateUpdate{}, false
	}
	state := h.State()
	if state == jpdict.Unavailable {
		return protocol.DbStateUpdate{}, false
	}

	msg := protocol.NewDbStateUpdate(state, h.UpdateState(), b.lastError(), h.DataVersions())
	if msg.UpdateState.LastCheck == nil {
		msg.UpdateState.LastCheck = b.storedLastCheck()
	}
	return msg, true
}

// storedLastCheck substitutes the persisted update time for a handle that
// has not checked for updates in this process.
func (b *Broadcaster) storedLastCheck() *time.Time {
	if b.store == nil {
		return nil
	}
	t, ok, err := b.store.LastUpdate()
	if err != nil {
		b.reporter.Notify(err, report.SeverityWarning)
		return nil
	}
	if !ok {
		return nil
	}
	return &t
}
