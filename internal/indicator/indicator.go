// Package indicator derives the action button's icon, badge and title from
// orchestrator state, and applies the result to a sink.
package indicator

import (
	"math"
	"slices"
	"strconv"

	"github.com/five82/jpdict/internal/jpdict"
	"github.com/five82/jpdict/internal/state"
)

// Title keys.
const (
	TitleDisabled    = "command_toggle_disabled"
	TitleEnabled     = "command_toggle_enabled"
	TitleLoading     = "command_toggle_loading"
	TitleLoadError   = "error_loading_dictionary"
	TitleChecking    = "command_toggle_checking"
	TitleDownloading = "command_toggle_downloading"
	TitleUpdating    = "command_toggle_updating"
	TitleUpdateError = "command_toggle_update_error"
)

// BadgeColorWarning is the badge color for a failed update.
const BadgeColorWarning = "yellow"

// Input is everything the indicator depends on.
type Input struct {
	PopupStyle string
	Enabled    bool
	DictState  state.DictState
	DbState    jpdict.Availability
	Update     jpdict.UpdateState
	LastError  *jpdict.UpdateErrorState
}

// VisualIndicator is what the action button shows.
type VisualIndicator struct {
	Icon       string `json:"icon"`
	BadgeText  string `json:"badgeText"`
	BadgeColor string `json:"badgeColor,omitempty"`
	TitleKey   string `json:"titleKey"`
}

// Project computes the indicator for in. The base icon comes from the
// enabled flag and dictionary state, the update phase is overlaid on it, and
// an update error badge overrides the title last.
func Project(in Input) VisualIndicator {
	icon, title := "disabled", TitleDisabled
	if in.Enabled {
		switch in.DictState {
		case state.DictOk:
			icon, title = in.PopupStyle, TitleEnabled
		case state.DictLoading:
			icon, title = "loading", TitleLoading
		case state.DictError:
			icon, title = "error", TitleLoadError
		}
	}

	switch in.Update.Phase {
	case jpdict.PhaseChecking:
		// -0 rather than -indeterminate avoids flicker when a check is quick.
		icon += "-0"
		title = TitleChecking
	case jpdict.PhaseDownloading:
		// Only these icons have progress variants.
		if slices.Contains([]string{in.PopupStyle, "disabled", "loading"}, icon) {
			icon += "-" + progressStep(in.Update.Progress)
		}
		title = TitleDownloading
	case jpdict.PhaseApplying:
		icon += "-indeterminate"
		title = TitleUpdating
	}

	vi := VisualIndicator{Icon: icon, TitleKey: title}
	if in.DbState != jpdict.Ok && in.LastError != nil && in.LastError.Kind != jpdict.KindAbort {
		vi.BadgeText = "!"
		vi.BadgeColor = BadgeColorWarning
		vi.TitleKey = TitleUpdateError
	}
	return vi
}

// progressStep rounds p to the nearest fifth and returns it as a percentage.
func progressStep(p float64) string {
	p = max(0, min(1, p))
	return strconv.Itoa(int(math.Round(p*5)) * 20)
}

var titles = map[string]string{
	TitleDisabled:    "Enable jpdict",
	TitleEnabled:     "Disable jpdict",
	TitleLoading:     "Loading dictionary...",
	TitleLoadError:   "Failed to load dictionary",
	TitleChecking:    "Checking for dictionary updates...",
	TitleDownloading: "Downloading dictionary update...",
	TitleUpdating:    "Updating dictionary...",
	TitleUpdateError: "Dictionary update failed",
}

// Title returns the display text for a title key, or the key itself when it
// has none.
func Title(key string) string {
	if s, ok := titles[key]; ok {
		return s
	}
	return key
}
