package indicator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// ErrVectorUnsupported is returned by sinks that cannot display SVG icons.
var ErrVectorUnsupported = errors.New("vector icons not supported")

// Sink is the action button.
type Sink interface {
	SetIcon(ctx context.Context, path string) error
	SetRasterIcon(ctx context.Context, paths map[int]string) error
	SetBadge(ctx context.Context, text, color string) error
	SetTitle(ctx context.Context, title string) error
}

// RasterSizes are the pixel sizes of the raster icon variants.
var RasterSizes = []int{16, 32, 48}

// IconPath returns the vector icon path for an icon name.
func IconPath(icon string) string {
	return "images/jpdict-" + icon + ".svg"
}

// RasterPaths returns the raster icon paths for an icon name. The animated
// loading icon only exists as a vector, so its disabled variant stands in.
func RasterPaths(icon string) map[int]string {
	if strings.HasPrefix(icon, "loading") {
		icon = strings.Replace(icon, "loading", "disabled", 1)
	}
	paths := make(map[int]string, len(RasterSizes))
	for _, size := range RasterSizes {
		paths[size] = fmt.Sprintf("images/jpdict-%s-%d.png", icon, size)
	}
	return paths
}

// Apply shows vi on sink, falling back to raster icons when the sink rejects
// the vector one. The badge and title are set even if the icon fails.
func Apply(ctx context.Context, sink Sink, vi VisualIndicator) error {
	var errs []error
	if err := sink.SetIcon(ctx, IconPath(vi.Icon)); err != nil {
		if err := sink.SetRasterIcon(ctx, RasterPaths(vi.Icon)); err != nil {
			errs = append(errs, fmt.Errorf("set icon %s: %w", vi.Icon, err))
		}
	}
	if err := sink.SetBadge(ctx, vi.BadgeText, vi.BadgeColor); err != nil {
		errs = append(errs, fmt.Errorf("set badge: %w", err))
	}
	if err := sink.SetTitle(ctx, Title(vi.TitleKey)); err != nil {
		errs = append(errs, fmt.Errorf("set title: %w", err))
	}
	return errors.Join(errs...)
}

// Applied is the state a RecordingSink has been given.
type Applied struct {
	Icon       string         `json:"icon,omitempty"`
	RasterIcon map[int]string `json:"rasterIcon,omitempty"`
	BadgeText  string         `json:"badgeText"`
	BadgeColor string         `json:"badgeColor,omitempty"`
	Title      string         `json:"title"`
}

// RecordingSink keeps the most recently applied indicator in memory.
type RecordingSink struct {
	// RejectVector makes SetIcon fail like a host without SVG support.
	RejectVector bool

	mu      sync.Mutex
	current Applied
}

var _ Sink = (*RecordingSink)(nil)

func (s *RecordingSink) SetIcon(_ context.Context, path string) error {
	if s.RejectVector {
		return ErrVectorUnsupported
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Icon = path
	s.current.RasterIcon = nil
	return nil
}

func (s *RecordingSink) SetRasterIcon(_ context.Context, paths map[int]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Icon = ""
	s.current.RasterIcon = paths
	return nil
}

func (s *RecordingSink) SetBadge(_ context.Context, text, color string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.BadgeText = text
	s.current.BadgeColor = color
	return nil
}

func (s *RecordingSink) SetTitle(_ context.Context, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Title = title
	return nil
}

// Current returns a copy of the applied state.
func (s *RecordingSink) Current() Applied {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.current
	out.RasterIcon = maps.Clone(s.current.RasterIcon)
	return out
}

// TerminalSink prints one styled status line per applied indicator. It
// has no use for vector icons and always asks for the raster fallback.
type TerminalSink struct {
	w io.Writer

	mu    sync.Mutex
	icon  string
	badge string
	color string

	iconStyle  lipgloss.Style
	titleStyle lipgloss.Style
}

var _ Sink = (*TerminalSink)(nil)

// NewTerminalSink creates a TerminalSink writing to w.
func NewTerminalSink(w io.Writer) *TerminalSink {
	return &TerminalSink{
		w:          w,
		iconStyle:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7aa2f7")),
		titleStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("#c0caf5")),
	}
}

func (s *TerminalSink) SetIcon(context.Context, string) error {
	return ErrVectorUnsupported
}

func (s *TerminalSink) SetRasterIcon(_ context.Context, paths map[int]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := strings.TrimPrefix(paths[16], "images/jpdict-")
	s.icon = strings.TrimSuffix(name, "-16.png")
	return nil
}

func (s *TerminalSink) SetBadge(_ context.Context, text, color string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.badge, s.color = text, color
	return nil
}

// SetTitle completes an update and writes the line.
func (s *TerminalSink) SetTitle(_ context.Context, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line := s.iconStyle.Render("["+s.icon+"]") + " " + s.titleStyle.Render(title)
	if s.badge != "" {
		badge := lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#1a1b26")).
			Background(terminalColor(s.color)).
			Padding(0, 1)
		line += " " + badge.Render(s.badge)
	}
	_, err := fmt.Fprintln(s.w, line)
	return err
}

var terminalColors = map[string]string{
	BadgeColorWarning: "#e0af68",
}

func terminalColor(name string) lipgloss.Color {
	if hex, ok := terminalColors[name]; ok {
		return lipgloss.Color(hex)
	}
	return lipgloss.Color(name)
}
