package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/jpdict/internal/jpdict"
)

type fakeHandle struct {
	readyErr error
	closeErr error
	hooks    Hooks
	closed   atomic.Bool
}

func (h *fakeHandle) Ready(context.Context) error { return h.readyErr }
func (h *fakeHandle) State() jpdict.Availability {
	if h.readyErr != nil {
		return jpdict.Unavailable
	}
	return jpdict.Empty
}
func (h *fakeHandle) UpdateState() jpdict.UpdateState                { return jpdict.UpdateState{} }
func (h *fakeHandle) DataVersions() jpdict.DataVersions              { return jpdict.DataVersions{} }
func (h *fakeHandle) SetPreferredLang(context.Context, string) error { return nil }
func (h *fakeHandle) Update(context.Context, bool) error             { return nil }
func (h *fakeHandle) Destroy(context.Context) error                  { return nil }
func (h *fakeHandle) GetKanji(context.Context, []string) ([]jpdict.KanjiResult, error) {
	return nil, nil
}
func (h *fakeHandle) Close() error {
	h.closed.Store(true)
	return h.closeErr
}

// scriptedFactory fails the first failures attempts, then succeeds.
type scriptedFactory struct {
	mu       sync.Mutex
	failures int
	built    []*fakeHandle
}

func (f *scriptedFactory) build(hooks Hooks) Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := &fakeHandle{hooks: hooks, closeErr: errors.New("close failed")}
	if len(f.built) < f.failures {
		h.readyErr = errors.New("open failed")
	}
	f.built = append(f.built, h)
	return h
}

func (f *scriptedFactory) attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.built)
}

func noIdle(context.Context) error { return nil }

func waitSettled[T any](t *testing.T, f interface {
	Wait(context.Context) (T, error)
}) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := f.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	return v, err
}

func TestManager_RetryCeilingIsFourAttempts(t *testing.T) {
	factory := &scriptedFactory{failures: 100}
	var idles atomic.Int32
	m := New(Options{
		Factory: factory.build,
		Idle: func(context.Context) error {
			idles.Add(1)
			return nil
		},
	})
	t.Cleanup(m.Shutdown)

	_, err := waitSettled[Handle](t, m.Open())
	require.Error(t, err)
	assert.Equal(t, 4, factory.attempts())
	assert.Equal(t, int32(3), idles.Load())

	// The rejected future is sticky for Open.
	_, err = waitSettled[Handle](t, m.Open())
	require.Error(t, err)
	assert.Equal(t, 4, factory.attempts())

	// DestroyAndReopen starts over with a fresh count.
	_, err = waitSettled[Handle](t, m.DestroyAndReopen())
	require.Error(t, err)
	assert.Equal(t, 8, factory.attempts())
}

func TestManager_SucceedsAfterRetriesAndSwallowsCloseErrors(t *testing.T) {
	factory := &scriptedFactory{failures: 2}
	m := New(Options{Factory: factory.build, Idle: noIdle})
	t.Cleanup(m.Shutdown)

	h, err := waitSettled[Handle](t, m.Open())
	require.NoError(t, err)
	assert.Equal(t, 3, factory.attempts())
	assert.Same(t, factory.built[2], h)
	assert.Same(t, h, m.Handle())

	assert.True(t, factory.built[0].closed.Load())
	assert.True(t, factory.built[1].closed.Load())
	assert.False(t, factory.built[2].closed.Load())
}

func TestManager_OpenIsMemoized(t *testing.T) {
	release := make(chan struct{})
	factory := &scriptedFactory{failures: 1}
	m := New(Options{
		Factory: factory.build,
		Idle: func(ctx context.Context) error {
			<-release
			return nil
		},
	})
	t.Cleanup(m.Shutdown)

	first := m.Open()
	second := m.Open()
	third := m.DestroyAndReopen()
	assert.Same(t, first, second)
	assert.Same(t, first, third)
	assert.Same(t, first, m.Initialized())

	close(release)
	_, err := waitSettled[Handle](t, first)
	require.NoError(t, err)
	assert.Equal(t, 2, factory.attempts())
}

func TestManager_WiresHandlesToChangeTrigger(t *testing.T) {
	var triggers atomic.Int32
	var warnings atomic.Int32
	factory := &scriptedFactory{}
	m := New(Options{
		Factory:   factory.build,
		Idle:      noIdle,
		OnChange:  func() { triggers.Add(1) },
		OnWarning: func(string) { warnings.Add(1) },
	})
	t.Cleanup(m.Shutdown)

	_, err := waitSettled[Handle](t, m.Open())
	require.NoError(t, err)

	before := triggers.Load()
	factory.built[0].hooks.OnChange()
	factory.built[0].hooks.OnWarning("odd data")
	assert.Equal(t, before+1, triggers.Load())
	assert.Equal(t, int32(1), warnings.Load())
}

func TestManager_ShutdownStopsRetrying(t *testing.T) {
	factory := &scriptedFactory{failures: 100}
	m := New(Options{Factory: factory.build})

	f := m.Open()
	m.Shutdown()

	_, err := waitSettled[Handle](t, f)
	require.Error(t, err)
	assert.LessOrEqual(t, factory.attempts(), 2)
}

func TestManager_DestroyWithoutHandleIsNoOp(t *testing.T) {
	m := New(Options{Factory: (&scriptedFactory{}).build})
	t.Cleanup(m.Shutdown)
	assert.NoError(t, m.Destroy(context.Background()))
	assert.Nil(t, m.Initialized())
}
