package search

import (
	"context"
	"fmt"

	"github.com/five82/jpdict/internal/future"
	"github.com/five82/jpdict/internal/jpdict"
	"github.com/five82/jpdict/internal/lifecycle"
	"github.com/five82/jpdict/internal/report"
)

// Opener exposes the database open procedure.
type Opener interface {
	Initialized() *future.Future[lifecycle.Handle]
}

// KanjiBackend answers kanji lookups from the database. Every failure is
// reported and turned into "no result".
type KanjiBackend struct {
	opener   Opener
	reporter report.Reporter
}

var _ KanjiSearcher = (*KanjiBackend)(nil)

// NewKanjiBackend creates a KanjiBackend.
func NewKanjiBackend(opener Opener, reporter report.Reporter) *KanjiBackend {
	if reporter == nil {
		reporter = report.NewLogReporter(nil, report.Options{})
	}
	return &KanjiBackend{opener: opener, reporter: reporter}
}

// SearchKanji returns the entry for kanji, or nil.
func (k *KanjiBackend) SearchKanji(ctx context.Context, kanji string) (*jpdict.KanjiResult, error) {
	r := []rune(kanji)
	if len(r) == 0 || r[0] < 0x3000 {
		return nil, nil
	}

	init := k.opener.Initialized()
	if init == nil {
		return nil, nil
	}
	h, err := init.Wait(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, nil
	}
	if h.State() == jpdict.Empty {
		return nil, nil
	}

	results, err := h.GetKanji(ctx, []string{kanji})
	if err != nil {
		k.reporter.Notify(err, report.SeverityError)
		return nil, nil
	}
	if len(results) == 0 {
		return nil, nil
	}
	if len(results) > 1 {
		k.reporter.NotifyMessage(fmt.Sprintf("Got more than one result for %s", kanji), report.SeverityWarning)
	}
	return &results[0], nil
}
