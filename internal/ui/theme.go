package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme is a named palette for the watch client.
type Theme struct {
	Name string

	Background string // badge text
	Text       string
	Muted      string // row labels, status line
	Faint      string // header details
	Warning    string // logo, retry details
	Danger     string // update errors

	// Badge colors keyed by availability or update phase.
	StatusColors map[string]string
}

// Styles contains pre-built Lipgloss styles for the theme.
type Styles struct {
	Text        lipgloss.Style
	MutedText   lipgloss.Style
	FaintText   lipgloss.Style
	WarningText lipgloss.Style
	DangerText  lipgloss.Style
	Logo        lipgloss.Style

	statusColors map[string]string
	background   string
	muted        string
}

// Styles returns Lipgloss styles for this theme.
func (t Theme) Styles() Styles {
	return Styles{
		Text:        lipgloss.NewStyle().Foreground(lipgloss.Color(t.Text)),
		MutedText:   lipgloss.NewStyle().Foreground(lipgloss.Color(t.Muted)),
		FaintText:   lipgloss.NewStyle().Foreground(lipgloss.Color(t.Faint)),
		WarningText: lipgloss.NewStyle().Foreground(lipgloss.Color(t.Warning)),
		DangerText:  lipgloss.NewStyle().Foreground(lipgloss.Color(t.Danger)).Bold(true),
		Logo:        lipgloss.NewStyle().Foreground(lipgloss.Color(t.Warning)).Bold(true),

		statusColors: t.StatusColors,
		background:   t.Background,
		muted:        t.Muted,
	}
}

// StatusStyle returns a badge style for an availability or update phase.
func (s Styles) StatusStyle(status string) lipgloss.Style {
	color := s.statusColors[status]
	if color == "" {
		color = s.muted
	}
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(s.background)).
		Background(lipgloss.Color(color)).
		Padding(0, 1)
}

var themes = map[string]Theme{
	"Nightfox": nightfoxTheme(),
	"Kanagawa": kanagawaTheme(),
	"Slate":    slateTheme(),
}

var themeOrder = []string{"Nightfox", "Kanagawa", "Slate"}

// GetTheme returns a theme by name, falling back to the first theme.
func GetTheme(name string) Theme {
	if t, ok := themes[name]; ok {
		return t
	}
	return themes[themeOrder[0]]
}

// NextTheme returns the next theme name in the cycle.
func NextTheme(current string) string {
	for i, name := range themeOrder {
		if name == current {
			return themeOrder[(i+1)%len(themeOrder)]
		}
	}
	return themeOrder[0]
}

// ThemeNames returns available theme names.
func ThemeNames() []string {
	return themeOrder
}

// https://github.com/EdenEast/nightfox.nvim
func nightfoxTheme() Theme {
	return Theme{
		Name:       "Nightfox",
		Background: "#131a24",
		Text:       "#cdcecf",
		Muted:      "#738091",
		Faint:      "#71839b",
		Warning:    "#dbc074",
		Danger:     "#c94f6d",
		StatusColors: map[string]string{
			"unavailable": "#c94f6d",
			"empty":       "#dbc074",
			"ok":          "#81b29a",
			"idle":        "#738091",
			"checking":    "#63cdcf",
			"downloading": "#719cd6",
			"updatingdb":  "#9d79d6",
			"error":       "#c94f6d",
		},
	}
}

// https://github.com/rebelot/kanagawa.nvim
func kanagawaTheme() Theme {
	return Theme{
		Name:       "Kanagawa",
		Background: "#16161D",
		Text:       "#DCD7BA",
		Muted:      "#C8C093",
		Faint:      "#727169",
		Warning:    "#E6C384",
		Danger:     "#E46876",
		StatusColors: map[string]string{
			"unavailable": "#E46876",
			"empty":       "#E6C384",
			"ok":          "#98BB6C",
			"idle":        "#727169",
			"checking":    "#7FB4CA",
			"downloading": "#7E9CD8",
			"updatingdb":  "#957FB8",
			"error":       "#E46876",
		},
	}
}

// Tailwind slate/sky: https://tailwindcss.com/docs/colors
func slateTheme() Theme {
	return Theme{
		Name:       "Slate",
		Background: "#020617",
		Text:       "#f1f5f9",
		Muted:      "#94a3b8",
		Faint:      "#64748b",
		Warning:    "#f59e0b",
		Danger:     "#ef4444",
		StatusColors: map[string]string{
			"unavailable": "#dc2626",
			"empty":       "#f59e0b",
			"ok":          "#16a34a",
			"idle":        "#64748b",
			"checking":    "#38bdf8",
			"downloading": "#0ea5e9",
			"updatingdb":  "#06b6d4",
			"error":       "#dc2626",
		},
	}
}
