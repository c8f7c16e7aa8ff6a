package jpdict

import (
	"fmt"
	"time"
)

// Availability describes whether the database can answer queries.
type Availability int

const (
	// Unavailable means the database could not be opened (or has been closed).
	Unavailable Availability = iota
	// Empty means the database opened but holds no data yet.
	Empty
	// Ok means the database is queryable.
	Ok
)

var availabilityNames = map[Availability]string{
	Unavailable: "unavailable",
	Empty:       "empty",
	Ok:          "ok",
}

func (a Availability) String() string {
	if name, ok := availabilityNames[a]; ok {
		return name
	}
	return fmt.Sprintf("availability(%d)", int(a))
}

// MarshalText implements encoding.TextMarshaler.
func (a Availability) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Availability) UnmarshalText(text []byte) error {
	for k, v := range availabilityNames {
		if v == string(text) {
			*a = k
			return nil
		}
	}
	return fmt.Errorf("unknown availability %q", text)
}

// UpdatePhase is where a background refresh is in its cycle.
type UpdatePhase int

const (
	PhaseIdle UpdatePhase = iota
	PhaseChecking
	PhaseDownloading
	PhaseApplying
)

var phaseNames = map[UpdatePhase]string{
	PhaseIdle:        "idle",
	PhaseChecking:    "checking",
	PhaseDownloading: "downloading",
	PhaseApplying:    "updatingdb",
}

func (p UpdatePhase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p UpdatePhase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *UpdatePhase) UnmarshalText(text []byte) error {
	for k, v := range phaseNames {
		if v == string(text) {
			*p = k
			return nil
		}
	}
	return fmt.Errorf("unknown update phase %q", text)
}

// UpdateState is the database's view of an in-progress refresh.
//
// LastCheck is only set once a check has run in this process; it is not a
// persisted value.
type UpdateState struct {
	Phase     UpdatePhase `json:"state"`
	Progress  float64     `json:"progress,omitempty"`
	Series    string      `json:"series,omitempty"`
	LastCheck *time.Time  `json:"lastCheck"`
}

// DataVersion identifies one published data series.
type DataVersion struct {
	Major          int    `json:"major"`
	Minor          int    `json:"minor"`
	Patch          int    `json:"patch"`
	DateOfCreation string `json:"dateOfCreation"`
	Lang           string `json:"lang"`
}

func (v DataVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Same reports whether two versions describe identical data.
func (v *DataVersion) Same(other *DataVersion) bool {
	if v == nil || other == nil {
		return v == other
	}
	return v.Major == other.Major &&
		v.Minor == other.Minor &&
		v.Patch == other.Patch &&
		v.Lang == other.Lang
}

// DataVersions holds the version of every series stored in the database.
type DataVersions struct {
	Kanji    *DataVersion `json:"kanji"`
	Radicals *DataVersion `json:"radicals"`
}

// Complete reports whether every series has a version.
func (v DataVersions) Complete() bool {
	return v.Kanji != nil && v.Radicals != nil
}

func (v DataVersions) clone() DataVersions {
	out := DataVersions{}
	if v.Kanji != nil {
		k := *v.Kanji
		out.Kanji = &k
	}
	if v.Radicals != nil {
		r := *v.Radicals
		out.Radicals = &r
	}
	return out
}

// UpdateErrorState records the most recent failed update. Each new value
// replaces the previous one.
type UpdateErrorState struct {
	Kind       string     `json:"name"`
	Message    string     `json:"message"`
	RetryCount int        `json:"retryCount"`
	NextRetry  *time.Time `json:"nextRetry,omitempty"`
}

// Readings groups the readings of a kanji.
type Readings struct {
	On     []string `json:"on,omitempty"`
	Kun    []string `json:"kun,omitempty"`
	Nanori []string `json:"na,omitempty"`
}

// KanjiRecord is one kanji as published by the data server.
type KanjiRecord struct {
	Character  string   `json:"c"`
	Readings   Readings `json:"r"`
	Meanings   []string `json:"m"`
	RadicalID  int      `json:"rad"`
	Strokes    int      `json:"s"`
	Grade      int      `json:"gr,omitempty"`
	Frequency  int      `json:"f,omitempty"`
	Components []string `json:"comp,omitempty"`
}

// Radical is one radical as published by the data server.
type Radical struct {
	ID       int      `json:"id"`
	Glyph    string   `json:"r"`
	Meanings []string `json:"m"`
}

// KanjiResult is a kanji lookup result with its radical resolved.
type KanjiResult struct {
	KanjiRecord
	Radical *Radical `json:"radical,omitempty"`
}
