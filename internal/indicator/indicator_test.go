package indicator

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/five82/jpdict/internal/jpdict"
	"github.com/five82/jpdict/internal/state"
)

func downloading(p float64) jpdict.UpdateState {
	return jpdict.UpdateState{Phase: jpdict.PhaseDownloading, Progress: p}
}

func TestProject(t *testing.T) {
	t.Parallel()

	netErr := &jpdict.UpdateErrorState{Kind: "NetworkError"}
	abortErr := &jpdict.UpdateErrorState{Kind: jpdict.KindAbort}

	tests := []struct {
		name string
		in   Input
		want VisualIndicator
	}{
		{
			name: "disabled",
			in:   Input{PopupStyle: "blue", DictState: state.DictOk, DbState: jpdict.Ok},
			want: VisualIndicator{Icon: "disabled", TitleKey: TitleDisabled},
		},
		{
			name: "enabled",
			in:   Input{PopupStyle: "blue", Enabled: true, DictState: state.DictOk, DbState: jpdict.Ok},
			want: VisualIndicator{Icon: "blue", TitleKey: TitleEnabled},
		},
		{
			name: "loading",
			in:   Input{PopupStyle: "blue", Enabled: true, DictState: state.DictLoading},
			want: VisualIndicator{Icon: "loading", TitleKey: TitleLoading},
		},
		{
			name: "dictionary error",
			in:   Input{PopupStyle: "blue", Enabled: true, DictState: state.DictError},
			want: VisualIndicator{Icon: "error", TitleKey: TitleLoadError},
		},
		{
			name: "downloading rounds to a fifth",
			in:   Input{PopupStyle: "blue", Enabled: true, DictState: state.DictOk, DbState: jpdict.Ok, Update: downloading(0.43)},
			want: VisualIndicator{Icon: "blue-40", TitleKey: TitleDownloading},
		},
		{
			name: "downloading while disabled",
			in:   Input{PopupStyle: "blue", DbState: jpdict.Ok, Update: downloading(1)},
			want: VisualIndicator{Icon: "disabled-100", TitleKey: TitleDownloading},
		},
		{
			name: "error icon has no progress variant",
			in:   Input{PopupStyle: "blue", Enabled: true, DictState: state.DictError, DbState: jpdict.Ok, Update: downloading(0.5)},
			want: VisualIndicator{Icon: "error", TitleKey: TitleDownloading},
		},
		{
			name: "checking",
			in:   Input{PopupStyle: "black", Enabled: true, DictState: state.DictOk, DbState: jpdict.Ok, Update: jpdict.UpdateState{Phase: jpdict.PhaseChecking}},
			want: VisualIndicator{Icon: "black-0", TitleKey: TitleChecking},
		},
		{
			name: "applying",
			in:   Input{PopupStyle: "blue", Enabled: true, DictState: state.DictOk, DbState: jpdict.Ok, Update: jpdict.UpdateState{Phase: jpdict.PhaseApplying}},
			want: VisualIndicator{Icon: "blue-indeterminate", TitleKey: TitleUpdating},
		},
		{
			name: "update error on unavailable database",
			in:   Input{PopupStyle: "blue", Enabled: true, DictState: state.DictOk, DbState: jpdict.Unavailable, LastError: netErr},
			want: VisualIndicator{Icon: "blue", BadgeText: "!", BadgeColor: BadgeColorWarning, TitleKey: TitleUpdateError},
		},
		{
			name: "badge wins the title over the phase",
			in:   Input{PopupStyle: "blue", Enabled: true, DictState: state.DictOk, DbState: jpdict.Empty, LastError: netErr, Update: downloading(0.2)},
			want: VisualIndicator{Icon: "blue-20", BadgeText: "!", BadgeColor: BadgeColorWarning, TitleKey: TitleUpdateError},
		},
		{
			name: "no badge when database is ok",
			in:   Input{PopupStyle: "blue", Enabled: true, DictState: state.DictOk, DbState: jpdict.Ok, LastError: netErr},
			want: VisualIndicator{Icon: "blue", TitleKey: TitleEnabled},
		},
		{
			name: "no badge for abort",
			in:   Input{PopupStyle: "blue", Enabled: true, DictState: state.DictOk, DbState: jpdict.Empty, LastError: abortErr},
			want: VisualIndicator{Icon: "blue", TitleKey: TitleEnabled},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Project(tt.in))
		})
	}
}

func TestProject_DownloadStepsAreFifths(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := rapid.Float64Range(0, 1).Draw(t, "progress")
		style := rapid.SampledFrom([]string{"blue", "black", "yellow", "natural"}).Draw(t, "style")

		vi := Project(Input{PopupStyle: style, Enabled: true, DictState: state.DictOk, DbState: jpdict.Ok, Update: downloading(p)})

		suffix, ok := strings.CutPrefix(vi.Icon, style+"-")
		if !ok {
			t.Fatalf("icon %q lacks prefix %q", vi.Icon, style+"-")
		}
		step, err := strconv.Atoi(suffix)
		if err != nil {
			t.Fatalf("icon %q has non-numeric step", vi.Icon)
		}
		if step%20 != 0 || step < 0 || step > 100 {
			t.Fatalf("step %d is not a multiple of 20 in [0,100]", step)
		}
		if diff := float64(step)/100 - p; diff > 0.1+1e-9 || diff < -0.1-1e-9 {
			t.Fatalf("step %d too far from progress %v", step, p)
		}
	})
}

func TestRasterPaths(t *testing.T) {
	t.Parallel()

	assert.Equal(t, map[int]string{
		16: "images/jpdict-blue-40-16.png",
		32: "images/jpdict-blue-40-32.png",
		48: "images/jpdict-blue-40-48.png",
	}, RasterPaths("blue-40"))
	assert.Equal(t, "images/jpdict-disabled-60-32.png", RasterPaths("loading-60")[32])
}

func TestApply_VectorIcon(t *testing.T) {
	t.Parallel()

	var sink RecordingSink
	err := Apply(context.Background(), &sink, VisualIndicator{Icon: "loading", TitleKey: TitleLoading})
	require.NoError(t, err)

	got := sink.Current()
	assert.Equal(t, "images/jpdict-loading.svg", got.Icon)
	assert.Nil(t, got.RasterIcon)
	assert.Equal(t, "Loading dictionary...", got.Title)
	assert.Empty(t, got.BadgeText)
}

func TestApply_RasterFallback(t *testing.T) {
	t.Parallel()

	sink := RecordingSink{RejectVector: true}
	vi := VisualIndicator{Icon: "loading-20", BadgeText: "!", BadgeColor: BadgeColorWarning, TitleKey: TitleUpdateError}
	require.NoError(t, Apply(context.Background(), &sink, vi))

	got := sink.Current()
	assert.Empty(t, got.Icon)
	assert.Equal(t, "images/jpdict-disabled-20-48.png", got.RasterIcon[48])
	assert.Equal(t, "!", got.BadgeText)
	assert.Equal(t, "yellow", got.BadgeColor)
	assert.Equal(t, "Dictionary update failed", got.Title)
}

type brokenSink struct{ RecordingSink }

func (*brokenSink) SetRasterIcon(context.Context, map[int]string) error {
	return errors.New("no icons at all")
}

func TestApply_IconFailureStillSetsTitle(t *testing.T) {
	t.Parallel()

	sink := &brokenSink{RecordingSink{RejectVector: true}}
	err := Apply(context.Background(), sink, VisualIndicator{Icon: "blue", TitleKey: TitleEnabled})
	require.ErrorContains(t, err, "no icons at all")
	assert.Equal(t, "Disable jpdict", sink.Current().Title)
}

func TestTerminalSink(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewTerminalSink(&buf)

	require.NoError(t, Apply(context.Background(), sink, VisualIndicator{Icon: "blue-40", TitleKey: TitleDownloading}))
	require.NoError(t, Apply(context.Background(), sink, VisualIndicator{Icon: "loading", BadgeText: "!", BadgeColor: BadgeColorWarning, TitleKey: TitleUpdateError}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "[blue-40]")
	assert.Contains(t, lines[0], "Downloading dictionary update...")
	assert.Contains(t, lines[1], "[disabled]")
	assert.Contains(t, lines[1], "!")
}

func TestTitleUnknownKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "some_key", Title("some_key"))
}
