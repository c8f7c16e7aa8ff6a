package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/five82/jpdict/internal/jpdict"
	"github.com/five82/jpdict/internal/lifecycle"
	"github.com/five82/jpdict/internal/localstore"
	"github.com/five82/jpdict/internal/loop"
	"github.com/five82/jpdict/internal/protocol"
	"github.com/five82/jpdict/internal/report"
)

type stubHandle struct {
	state    jpdict.Availability
	update   jpdict.UpdateState
	versions jpdict.DataVersions
	reads    int
}

func (h *stubHandle) Ready(context.Context) error { return nil }
func (h *stubHandle) State() jpdict.Availability {
	h.reads++
	return h.state
}
func (h *stubHandle) UpdateState() jpdict.UpdateState                { return h.update }
func (h *stubHandle) DataVersions() jpdict.DataVersions              { return h.versions }
func (h *stubHandle) SetPreferredLang(context.Context, string) error { return nil }
func (h *stubHandle) Update(context.Context, bool) error             { return nil }
func (h *stubHandle) Destroy(context.Context) error                  { return nil }
func (h *stubHandle) Close() error                                   { return nil }
func (h *stubHandle) GetKanji(context.Context, []string) ([]jpdict.KanjiResult, error) {
	return nil, nil
}

type recordingChannel struct {
	mu   sync.Mutex
	err  error
	msgs []protocol.DbStateUpdate
}

func (c *recordingChannel) Post(msg protocol.DbStateUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *recordingChannel) Messages() []protocol.DbStateUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.DbStateUpdate(nil), c.msgs...)
}

type fixedStore struct {
	t   time.Time
	ok  bool
	err error
}

func (s fixedStore) LastUpdate() (time.Time, bool, error) { return s.t, s.ok, s.err }

type fixture struct {
	loop     *loop.Manual
	handle   *stubHandle
	reporter *report.Recorder
	flushes  int
	lastErr  *jpdict.UpdateErrorState
	b        *Broadcaster
}

func newFixture(store LastUpdateReader) *fixture {
	f := &fixture{
		loop:     &loop.Manual{},
		handle:   &stubHandle{state: jpdict.Ok},
		reporter: &report.Recorder{},
	}
	f.b = New(Options{
		Loop:      f.loop,
		Handle:    func() lifecycle.Handle { return f.handle },
		LastError: func() *jpdict.UpdateErrorState { return f.lastErr },
		Store:     store,
		Reporter:  f.reporter,
		OnFlush:   func() { f.flushes++ },
	})
	return f
}

func TestBroadcaster_NoListenersComputesNothing(t *testing.T) {
	f := newFixture(nil)

	f.b.Notify()
	f.b.Notify()
	assert.Equal(t, 1, f.loop.RunPending())

	assert.Zero(t, f.handle.reads)
	assert.Equal(t, 1, f.flushes)
}

func TestBroadcaster_BurstCollapsesToLatestState(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(nil)
		ch := &recordingChannel{}
		f.b.Register(ch)

		phases := rapid.SliceOfN(rapid.SampledFrom([]jpdict.UpdatePhase{
			jpdict.PhaseIdle, jpdict.PhaseChecking, jpdict.PhaseDownloading, jpdict.PhaseApplying,
		}), 1, 40).Draw(t, "phases")

		for _, p := range phases {
			f.handle.update.Phase = p
			f.b.Notify()
		}
		if n := f.loop.RunPending(); n != 1 {
			t.Fatalf("ran %d flushes, want 1", n)
		}

		msgs := ch.Messages()
		if len(msgs) != 1 {
			t.Fatalf("got %d messages, want 1", len(msgs))
		}
		if got, want := msgs[0].UpdateState.Phase, phases[len(phases)-1]; got != want {
			t.Fatalf("phase = %v, want %v", got, want)
		}
	})
}

func TestBroadcaster_SeparateTurnsEmitSeparately(t *testing.T) {
	f := newFixture(nil)
	ch := &recordingChannel{}
	f.b.Register(ch)

	f.b.Notify()
	f.loop.RunPending()
	f.b.Notify()
	f.loop.RunPending()

	assert.Len(t, ch.Messages(), 2)
}

func TestBroadcaster_SnapshotCarriesCurrentState(t *testing.T) {
	f := newFixture(nil)
	ch := &recordingChannel{}
	f.b.Register(ch)

	check := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	f.handle.update = jpdict.UpdateState{Phase: jpdict.PhaseDownloading, Progress: 0.3, LastCheck: &check}
	f.handle.versions = jpdict.DataVersions{Kanji: &jpdict.DataVersion{Major: 1}, Radicals: &jpdict.DataVersion{Major: 1}}
	f.lastErr = &jpdict.UpdateErrorState{Kind: jpdict.KindDownload, RetryCount: 1}

	f.b.Notify()
	f.loop.RunPending()

	msgs := ch.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.TypeDbStateUpdated, msgs[0].Type)
	assert.Equal(t, jpdict.Ok, msgs[0].State)
	assert.Equal(t, 0.3, msgs[0].UpdateState.Progress)
	assert.Equal(t, f.lastErr, msgs[0].UpdateError)
	assert.Equal(t, &check, msgs[0].UpdateState.LastCheck)
	assert.Equal(t, 1, msgs[0].Versions.Kanji.Major)
}

func TestBroadcaster_UnopenedDatabaseIsNotBroadcast(t *testing.T) {
	f := newFixture(nil)
	f.handle.state = jpdict.Unavailable
	ch := &recordingChannel{}
	f.b.Register(ch)

	f.b.Notify()
	f.loop.RunPending()

	assert.Empty(t, ch.Messages())
	assert.Equal(t, 1, f.flushes)
}

func TestBroadcaster_LastCheckFallsBackToStore(t *testing.T) {
	stored := time.UnixMilli(1709251200000)
	f := newFixture(fixedStore{t: stored, ok: true})
	ch := &recordingChannel{}
	f.b.Register(ch)

	f.b.Notify()
	f.loop.RunPending()

	msgs := ch.Messages()
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].UpdateState.LastCheck)
	assert.True(t, stored.Equal(*msgs[0].UpdateState.LastCheck))
	assert.Nil(t, f.handle.update.LastCheck)
}

func TestBroadcaster_StoreFailureIsReportedAndIgnored(t *testing.T) {
	storeErr := &localstore.Error{Key: localstore.KeyLastUpdate, Action: "get", Err: errors.New("corrupt")}
	f := newFixture(fixedStore{err: storeErr})
	ch := &recordingChannel{}
	f.b.Register(ch)

	f.b.Notify()
	f.loop.RunPending()

	msgs := ch.Messages()
	require.Len(t, msgs, 1)
	assert.Nil(t, msgs[0].UpdateState.LastCheck)

	reports := f.reporter.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, report.SeverityWarning, reports[0].Severity)
	assert.ErrorIs(t, reports[0].Err, storeErr)
}

func TestBroadcaster_PostFailureDoesNotStopOthers(t *testing.T) {
	f := newFixture(nil)
	broken := &recordingChannel{err: errors.New("disconnected")}
	ok1 := &recordingChannel{}
	ok2 := &recordingChannel{}
	f.b.Register(ok1)
	f.b.Register(broken)
	f.b.Register(ok2)

	f.b.Notify()
	assert.NotPanics(t, func() { f.loop.RunPending() })

	assert.Len(t, ok1.Messages(), 1)
	assert.Len(t, ok2.Messages(), 1)
	assert.Empty(t, f.reporter.Reports())
}

func TestBroadcaster_TargetedNotify(t *testing.T) {
	f := newFixture(nil)
	a := &recordingChannel{}
	b := &recordingChannel{}
	f.b.Register(a)
	f.b.Register(b)

	f.b.Notify(a)
	f.loop.RunPending()
	assert.Len(t, a.Messages(), 1)
	assert.Empty(t, b.Messages())

	// A broadcast in the same turn widens the targeted request.
	f.b.Notify(a)
	f.b.Notify()
	f.loop.RunPending()
	assert.Len(t, a.Messages(), 2)
	assert.Len(t, b.Messages(), 1)
}

func TestBroadcaster_RegistryMembership(t *testing.T) {
	f := newFixture(nil)
	a := &recordingChannel{}
	b := &recordingChannel{}

	f.b.Register(a)
	f.b.Register(a)
	f.b.Register(b)
	assert.Equal(t, 2, f.b.Len())

	f.b.Notify(b)
	f.b.Unregister(b)
	f.loop.RunPending()
	assert.Empty(t, b.Messages())
	assert.Empty(t, a.Messages())
	assert.Equal(t, 1, f.b.Len())
}
