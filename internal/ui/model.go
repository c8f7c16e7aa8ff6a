package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/jpdict/internal/jpdict"
	"github.com/five82/jpdict/internal/port"
	"github.com/five82/jpdict/internal/protocol"
)

// Conn is the listener side of the daemon socket.
type Conn interface {
	Recv() (protocol.DbStateUpdate, error)
	Send(msgType, message string) error
}

// Options configures the UI.
type Options struct {
	Conn      Conn
	ThemeName string
	// Now is used for relative times; defaults to time.Now.
	Now func() time.Time
}

type stateMsg protocol.DbStateUpdate

type connErrorMsg struct{ err error }

type sentMsg struct {
	msgType string
	err     error
}

// Model is the root application state for Bubble Tea.
type Model struct {
	conn Conn
	now  func() time.Time

	theme    Theme
	keys     keyMap
	help     help.Model
	spinner  spinner.Model
	progress progress.Model
	showHelp bool

	state       *protocol.DbStateUpdate
	lastUpdated time.Time
	connErr     error
	status      string
}

// New creates the watch model.
func New(opts Options) Model {
	themeName := opts.ThemeName
	if themeName == "" {
		themeName = themeOrder[0]
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		conn:     opts.Conn,
		now:      now,
		theme:    GetTheme(themeName),
		keys:     DefaultKeyMap(),
		help:     help.New(),
		spinner:  sp,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(recvCmd(m.conn), m.spinner.Tick)
}

func recvCmd(c Conn) tea.Cmd {
	return func() tea.Msg {
		s, err := c.Recv()
		if err != nil {
			return connErrorMsg{err: err}
		}
		return stateMsg(s)
	}
}

func sendCmd(c Conn, msgType string) tea.Cmd {
	return func() tea.Msg {
		return sentMsg{msgType: msgType, err: c.Send(msgType, "")}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		m.progress.Width = max(10, min(msg.Width-4, 60))
		return m, nil

	case stateMsg:
		s := protocol.DbStateUpdate(msg)
		m.state = &s
		m.lastUpdated = m.now()
		return m, recvCmd(m.conn)

	case connErrorMsg:
		m.connErr = msg.err
		return m, nil

	case sentMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %v", msg.msgType, msg.err)
		} else {
			m.status = "sent " + msg.msgType
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		// Any key closes help
		m.showHelp = false
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil
	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		return m, nil
	}

	if m.connErr != nil {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Update):
		return m, sendCmd(m.conn, protocol.TypeUpdateDB)
	case key.Matches(msg, m.keys.Cancel):
		return m, sendCmd(m.conn, protocol.TypeCancelUpdateDB)
	case key.Matches(msg, m.keys.Delete):
		return m, sendCmd(m.conn, protocol.TypeDeleteDB)
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	styles := m.theme.Styles()

	var b strings.Builder
	b.WriteString(styles.Logo.Render("jpdict"))
	b.WriteString(styles.FaintText.Render("  " + m.theme.Name))
	if m.state != nil {
		b.WriteString(styles.FaintText.Render("  updated " + m.relativeTime(&m.lastUpdated)))
	}
	b.WriteString("\n\n")

	if m.showHelp {
		b.WriteString(styles.Text.Bold(true).Render("Keyboard Shortcuts"))
		b.WriteString("\n")
		b.WriteString(m.help.FullHelpView(m.keys.FullHelp()))
		b.WriteString("\n")
		return b.String()
	}

	switch {
	case m.state == nil && m.connErr == nil:
		b.WriteString(m.spinner.View() + " Waiting for daemon...\n")
	case m.state != nil:
		b.WriteString(m.renderState(styles))
	}

	if m.connErr != nil {
		b.WriteString("\n")
		b.WriteString(styles.DangerText.Render(connErrorText(m.connErr)))
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(styles.MutedText.Render(m.status))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	return b.String()
}

func (m Model) renderState(styles Styles) string {
	s := m.state
	var b strings.Builder

	row := func(label, value string) {
		b.WriteString(styles.MutedText.Render(fmt.Sprintf("%-12s", label)))
		b.WriteString(value)
		b.WriteString("\n")
	}

	availability := s.State.String()
	row("Database", styles.StatusStyle(availability).Render(availability))

	phase := s.UpdateState.Phase
	phaseText := styles.StatusStyle(phase.String()).Render(phase.String())
	if phase != jpdict.PhaseIdle {
		phaseText = m.spinner.View() + " " + phaseText
	}
	row("Update", phaseText)
	if phase == jpdict.PhaseDownloading || phase == jpdict.PhaseApplying {
		label := s.UpdateState.Series
		if label == "" {
			label = "data"
		}
		row("", m.progress.ViewAs(s.UpdateState.Progress)+" "+styles.FaintText.Render(label))
	}

	row("Kanji", versionText(s.Versions.Kanji))
	row("Radicals", versionText(s.Versions.Radicals))
	row("Last check", m.relativeTime(s.UpdateState.LastCheck))

	if e := s.UpdateError; e != nil {
		text := e.Kind
		if e.Message != "" {
			text += ": " + e.Message
		}
		value := styles.StatusStyle("error").Render("error") + " " + styles.DangerText.Render(text)
		if e.RetryCount > 0 {
			retry := fmt.Sprintf("retry %d", e.RetryCount)
			if e.NextRetry != nil {
				retry += ", next " + m.relativeTime(e.NextRetry)
			}
			value += " " + styles.WarningText.Render("("+retry+")")
		}
		row("Error", value)
	}
	return b.String()
}

func versionText(v *jpdict.DataVersion) string {
	if v == nil {
		return "-"
	}
	return v.String()
}

func (m Model) relativeTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	d := m.now().Sub(*t)
	future := d < 0
	if future {
		d = -d
	}
	var text string
	switch {
	case d < time.Minute:
		text = fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		text = fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		text = fmt.Sprintf("%dh", int(d.Hours()))
	default:
		text = fmt.Sprintf("%dd", int(d.Hours()/24))
	}
	if future {
		return "in " + text
	}
	return text + " ago"
}

func connErrorText(err error) string {
	if errors.Is(err, port.ErrClosed) {
		return "Daemon closed the connection"
	}
	return "Connection error: " + err.Error()
}

var _ tea.Model = Model{}

// Run starts the watch client and blocks until the user quits.
func Run(opts Options) error {
	p := tea.NewProgram(New(opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
