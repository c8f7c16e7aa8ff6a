package ui

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/jpdict/internal/jpdict"
	"github.com/five82/jpdict/internal/port"
	"github.com/five82/jpdict/internal/protocol"
)

type fakeConn struct {
	mu      sync.Mutex
	updates []protocol.DbStateUpdate
	sent    []string
	sendErr error
}

func (c *fakeConn) Recv() (protocol.DbStateUpdate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.updates) == 0 {
		return protocol.DbStateUpdate{}, port.ErrClosed
	}
	next := c.updates[0]
	c.updates = c.updates[1:]
	return next, nil
}

func (c *fakeConn) Send(msgType, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msgType)
	return c.sendErr
}

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestModel(conn *fakeConn) Model {
	return New(Options{Conn: conn, Now: func() time.Time { return testNow }})
}

func runeKey(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want Model", next)
	}
	return model, cmd
}

func TestStateUpdateRendersAndKeepsReading(t *testing.T) {
	checked := testNow.Add(-3 * time.Hour)
	conn := &fakeConn{updates: []protocol.DbStateUpdate{
		protocol.NewDbStateUpdate(jpdict.Empty, jpdict.UpdateState{Phase: jpdict.PhaseIdle}, nil, jpdict.DataVersions{}),
	}}
	m := newTestModel(conn)

	msg := recvCmd(conn)()
	if _, ok := msg.(stateMsg); !ok {
		t.Fatalf("recv produced %T, want stateMsg", msg)
	}
	m, cmd := update(t, m, stateMsg(protocol.NewDbStateUpdate(
		jpdict.Ok,
		jpdict.UpdateState{Phase: jpdict.PhaseDownloading, Progress: 0.5, Series: "kanji", LastCheck: &checked},
		nil,
		jpdict.DataVersions{Kanji: &jpdict.DataVersion{Major: 4, Minor: 0, Patch: 1, Lang: "en"}},
	)))
	if cmd == nil {
		t.Fatalf("expected a follow-up receive command")
	}

	view := m.View()
	for _, want := range []string{"ok", "downloading", "kanji", "3h ago", "Radicals"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}

	// The queued update was already consumed; the next receive ends.
	if msg := cmd(); msg == nil {
		t.Fatalf("follow-up command returned nil")
	} else if _, ok := msg.(connErrorMsg); !ok {
		t.Fatalf("follow-up produced %T, want connErrorMsg", msg)
	}
}

func TestUpdateErrorRendered(t *testing.T) {
	next := testNow.Add(5 * time.Minute)
	m := newTestModel(&fakeConn{})
	m, _ = update(t, m, stateMsg(protocol.NewDbStateUpdate(
		jpdict.Ok,
		jpdict.UpdateState{Phase: jpdict.PhaseIdle},
		&jpdict.UpdateErrorState{Kind: "DownloadError", Message: "offline", RetryCount: 2, NextRetry: &next},
		jpdict.DataVersions{},
	)))

	view := m.View()
	for _, want := range []string{"DownloadError: offline", "retry 2", "in 5m", "never"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}

func TestKeysSendRequests(t *testing.T) {
	cases := []struct {
		key  string
		want string
	}{
		{"u", protocol.TypeUpdateDB},
		{"c", protocol.TypeCancelUpdateDB},
		{"d", protocol.TypeDeleteDB},
	}
	for _, tc := range cases {
		conn := &fakeConn{}
		m := newTestModel(conn)
		m, cmd := update(t, m, runeKey(tc.key))
		if cmd == nil {
			t.Fatalf("key %q returned no command", tc.key)
		}
		m, _ = update(t, m, cmd())
		if len(conn.sent) != 1 || conn.sent[0] != tc.want {
			t.Fatalf("key %q sent %v, want [%s]", tc.key, conn.sent, tc.want)
		}
		if !strings.Contains(m.View(), "sent "+tc.want) {
			t.Fatalf("key %q status not shown:\n%s", tc.key, m.View())
		}
	}
}

func TestSendFailureShown(t *testing.T) {
	conn := &fakeConn{sendErr: errors.New("broken pipe")}
	m := newTestModel(conn)
	m, cmd := update(t, m, runeKey("u"))
	m, _ = update(t, m, cmd())
	if !strings.Contains(m.View(), "updatedb failed: broken pipe") {
		t.Fatalf("send failure not shown:\n%s", m.View())
	}
}

func TestClosedConnectionDisablesRequests(t *testing.T) {
	conn := &fakeConn{}
	m := newTestModel(conn)
	m, _ = update(t, m, connErrorMsg{err: port.ErrClosed})

	if !strings.Contains(m.View(), "Daemon closed the connection") {
		t.Fatalf("closed connection not shown:\n%s", m.View())
	}
	_, cmd := update(t, m, runeKey("u"))
	if cmd != nil {
		t.Fatalf("expected no request after the connection closed")
	}
}

func TestQuitAndHelp(t *testing.T) {
	m := newTestModel(&fakeConn{})

	m, _ = update(t, m, runeKey("?"))
	if !strings.Contains(m.View(), "Keyboard Shortcuts") {
		t.Fatalf("help not shown:\n%s", m.View())
	}
	// Any key closes help, including quit.
	m, cmd := update(t, m, runeKey("q"))
	if cmd != nil || strings.Contains(m.View(), "Keyboard Shortcuts") {
		t.Fatalf("expected help to close without quitting")
	}

	_, cmd = update(t, m, runeKey("q"))
	if cmd == nil {
		t.Fatalf("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("q did not quit")
	}
}

func TestCycleTheme(t *testing.T) {
	m := newTestModel(&fakeConn{})
	if m.theme.Name != "Nightfox" {
		t.Fatalf("default theme = %q, want Nightfox", m.theme.Name)
	}
	for _, want := range []string{"Kanagawa", "Slate", "Nightfox"} {
		m, _ = update(t, m, runeKey("T"))
		if m.theme.Name != want {
			t.Fatalf("theme = %q, want %q", m.theme.Name, want)
		}
	}
}

func TestThemeFallbacks(t *testing.T) {
	if got := GetTheme("missing").Name; got != "Nightfox" {
		t.Fatalf("GetTheme(missing) = %q, want Nightfox", got)
	}
	if got := NextTheme("missing"); got != "Nightfox" {
		t.Fatalf("NextTheme(missing) = %q, want Nightfox", got)
	}
	if len(ThemeNames()) != 3 {
		t.Fatalf("ThemeNames = %v", ThemeNames())
	}
}

func TestThemesColorEveryState(t *testing.T) {
	states := []string{
		jpdict.Unavailable.String(), jpdict.Empty.String(), jpdict.Ok.String(),
		jpdict.PhaseIdle.String(), jpdict.PhaseChecking.String(),
		jpdict.PhaseDownloading.String(), jpdict.PhaseApplying.String(),
		"error",
	}
	for _, name := range ThemeNames() {
		th := GetTheme(name)
		if th.Name != name {
			t.Fatalf("GetTheme(%q).Name = %q", name, th.Name)
		}
		for _, s := range states {
			if th.StatusColors[s] == "" {
				t.Fatalf("theme %s has no color for %q", name, s)
			}
		}
	}
}
