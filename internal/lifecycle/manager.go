// Package lifecycle owns the single current database handle and the
// bounded-retry procedure that opens it.
package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/five82/jpdict/internal/future"
	"github.com/five82/jpdict/internal/jpdict"
	"github.com/five82/jpdict/internal/telemetry"
)

// Handle is an open (or opening) database.
type Handle interface {
	Ready(ctx context.Context) error
	State() jpdict.Availability
	UpdateState() jpdict.UpdateState
	DataVersions() jpdict.DataVersions
	SetPreferredLang(ctx context.Context, lang string) error
	Update(ctx context.Context, force bool) error
	GetKanji(ctx context.Context, chars []string) ([]jpdict.KanjiResult, error)
	Destroy(ctx context.Context) error
	Close() error
}

var _ Handle = (*jpdict.Database)(nil)

// Hooks are attached to every handle the Manager constructs.
type Hooks struct {
	OnChange  func()
	OnWarning func(message string)
}

// Factory constructs a fresh handle wired to hooks.
type Factory func(hooks Hooks) Handle

// IdleFunc waits for an idle slot between open attempts.
type IdleFunc func(ctx context.Context) error

const (
	// DefaultMaxRetries bounds the open procedure at four attempts.
	DefaultMaxRetries  = 3
	DefaultIdleCeiling = time.Second
)

// Options configures a Manager.
type Options struct {
	Factory Factory
	// OnChange is the broadcaster's debounce trigger.
	OnChange   func()
	OnWarning  func(message string)
	Idle       IdleFunc
	MaxRetries int
	Logger     *slog.Logger
	Metrics    *telemetry.Metrics
}

// Manager runs the open procedure and tracks the current handle.
type Manager struct {
	factory    Factory
	onChange   func()
	onWarning  func(string)
	idle       IdleFunc
	maxRetries int
	logger     *slog.Logger
	metrics    *telemetry.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	handle  Handle
	current *future.Future[Handle]
}

// New creates a Manager. Nothing is opened until Open is called.
func New(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	onChange := opts.OnChange
	if onChange == nil {
		onChange = func() {}
	}
	onWarning := opts.OnWarning
	if onWarning == nil {
		onWarning = func(string) {}
	}
	idle := opts.Idle
	if idle == nil {
		idle = sleepIdle(DefaultIdleCeiling)
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		factory:    opts.Factory,
		onChange:   onChange,
		onWarning:  onWarning,
		idle:       idle,
		maxRetries: maxRetries,
		logger:     logger,
		metrics:    opts.Metrics,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func sleepIdle(d time.Duration) IdleFunc {
	return func(ctx context.Context) error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Open starts the open procedure on first use and returns its future. Later
// calls return the same future, settled or not. A rejected future stays
// rejected until DestroyAndReopen is called.
func (m *Manager) Open() *future.Future[Handle] {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		return m.current
	}
	return m.startLocked()
}

// DestroyAndReopen restarts the open procedure with a fresh retry count. If
// an open is already in flight its future is returned instead, so there is
// never more than one.
func (m *Manager) DestroyAndReopen() *future.Future[Handle] {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && !m.current.Settled() {
		return m.current
	}
	return m.startLocked()
}

// Initialized returns the most recent open future, or nil before the first Open.
func (m *Manager) Initialized() *future.Future[Handle] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Handle returns the current handle. It is nil only before the first Open.
func (m *Manager) Handle() Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle
}

// Destroy deletes the current handle's data.
func (m *Manager) Destroy(ctx context.Context) error {
	h := m.Handle()
	if h == nil {
		return nil
	}
	return h.Destroy(ctx)
}

// Shutdown stops any open procedure and closes the current handle.
func (m *Manager) Shutdown() {
	m.cancel()
	m.mu.Lock()
	h := m.handle
	m.mu.Unlock()
	if h != nil {
		if err := h.Close(); err != nil {
			m.logger.Warn("closing database failed", "error", err)
		}
	}
}

func (m *Manager) startLocked() *future.Future[Handle] {
	f := future.New[Handle]()
	m.current = f
	go m.run(f)
	return f
}

func (m *Manager) run(f *future.Future[Handle]) {
	retries := 0
	for {
		h := m.replaceHandle()

		err := h.Ready(m.ctx)
		m.metrics.RecordOpenAttempt(err == nil)
		if err == nil {
			m.logger.Info("database opened", "attempt", retries+1, "state", h.State())
			f.Resolve(h)
			return
		}

		m.logger.Warn("database open failed", "attempt", retries+1, "error", err)
		if retries >= m.maxRetries || m.ctx.Err() != nil {
			f.Reject(err)
			m.onChange()
			return
		}
		retries++

		if err := m.idle(m.ctx); err != nil {
			f.Reject(err)
			return
		}
	}
}

// replaceHandle closes the previous handle and installs a fresh one.
func (m *Manager) replaceHandle() Handle {
	m.mu.Lock()
	prev := m.handle
	m.mu.Unlock()

	if prev != nil {
		if err := prev.Close(); err != nil {
			m.logger.Warn("closing previous database failed", "error", err)
		}
	}

	h := m.factory(Hooks{OnChange: m.onChange, OnWarning: m.onWarning})

	m.mu.Lock()
	m.handle = h
	m.mu.Unlock()
	m.onChange()
	return h
}
