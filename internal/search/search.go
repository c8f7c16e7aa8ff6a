// Package search cycles a lookup across the ordered dictionaries until one
// of them has a result.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/five82/jpdict/internal/flatdict"
	"github.com/five82/jpdict/internal/jpdict"
	"github.com/five82/jpdict/internal/report"
)

// Mode selects where a search starts.
type Mode int

const (
	// Default starts from the first dictionary.
	Default Mode = iota
	// NextDict starts from the dictionary after the one last shown.
	NextDict
	// ForceKanji looks up the first character in the kanji dictionary only.
	ForceKanji
)

// ParseMode parses the dictOption of a search request.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "default":
		return Default, nil
	case "next":
		return NextDict, nil
	case "kanji":
		return ForceKanji, nil
	default:
		return Default, fmt.Errorf("unknown dictionary option %q", s)
	}
}

// Kind tags a Result.
type Kind string

const (
	KindWords Kind = "words"
	KindNames Kind = "names"
	KindKanji Kind = "kanji"
)

// Result is one dictionary's answer. Exactly one of Words and Kanji is set,
// according to Kind.
type Result struct {
	Kind  Kind                 `json:"type"`
	Words *flatdict.WordResult `json:"words,omitempty"`
	Kanji *jpdict.KanjiResult  `json:"kanji,omitempty"`
	// Index is the position of the dictionary that answered.
	Index int `json:"index"`
}

// WordSearcher looks up words and names.
type WordSearcher interface {
	WordSearch(ctx context.Context, p flatdict.WordSearchParams) (*flatdict.WordResult, error)
}

// KanjiSearcher looks up a single kanji.
type KanjiSearcher interface {
	SearchKanji(ctx context.Context, kanji string) (*jpdict.KanjiResult, error)
}

const (
	dictCount  = 3
	kanjiIndex = 1
	nameIndex  = 2
)

// Options configures a Cycler.
type Options struct {
	// Words returns the loaded word dictionary, or nil when none is loaded.
	Words func() WordSearcher
	Kanji KanjiSearcher
	// ShowRomaji reports whether romanized input and output are wanted.
	ShowRomaji func() bool
	Reporter   report.Reporter
	Logger     *slog.Logger
}

// Cycler remembers which dictionary was shown last.
type Cycler struct {
	words      func() WordSearcher
	kanji      KanjiSearcher
	showRomaji func() bool
	reporter   report.Reporter
	logger     *slog.Logger

	// mu serializes searches; cursor is only touched under it.
	mu     sync.Mutex
	cursor int
}

// NewCycler creates a Cycler.
func NewCycler(opts Options) *Cycler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	words := opts.Words
	if words == nil {
		words = func() WordSearcher { return nil }
	}
	showRomaji := opts.ShowRomaji
	if showRomaji == nil {
		showRomaji = func() bool { return false }
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = report.NewLogReporter(logger, report.Options{})
	}
	return &Cycler{
		words:      words,
		kanji:      opts.Kanji,
		showRomaji: showRomaji,
		reporter:   reporter,
		logger:     logger,
	}
}

// Search looks text up according to mode. It returns nil when no dictionary
// has a result.
func (c *Cycler) Search(ctx context.Context, text string, mode Mode) (*Result, error) {
	words := c.words()
	if words == nil {
		c.reporter.NotifyMessage("Dictionary not initialized in search", report.SeverityWarning)
		return nil, flatdict.ErrNotLoaded
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch mode {
	case ForceKanji:
		return c.searchKanji(ctx, text)
	case Default:
		c.cursor = 0
	case NextDict:
		c.cursor = (c.cursor + 1) % dictCount
	}

	start := c.cursor
	for {
		res, err := c.searchCurrent(ctx, words, text)
		if err != nil {
			return nil, err
		}
		if res != nil {
			res.Index = c.cursor
			return res, nil
		}
		c.cursor = (c.cursor + 1) % dictCount
		if c.cursor == start {
			c.logger.Debug("no dictionary matched", "text", text)
			return nil, nil
		}
	}
}

func (c *Cycler) searchCurrent(ctx context.Context, words WordSearcher, text string) (*Result, error) {
	switch c.cursor {
	case kanjiIndex:
		return c.searchKanji(ctx, text)
	case nameIndex:
		res, err := words.WordSearch(ctx, flatdict.WordSearchParams{Input: text, DoNames: true})
		if err != nil || res == nil {
			return nil, err
		}
		return &Result{Kind: KindNames, Words: res}, nil
	default:
		res, err := words.WordSearch(ctx, flatdict.WordSearchParams{Input: text, IncludeRomaji: c.showRomaji()})
		if err != nil || res == nil {
			return nil, err
		}
		return &Result{Kind: KindWords, Words: res}, nil
	}
}

func (c *Cycler) searchKanji(ctx context.Context, text string) (*Result, error) {
	if c.kanji == nil || text == "" {
		return nil, nil
	}
	first := []rune(text)[0]
	k, err := c.kanji.SearchKanji(ctx, string(first))
	if err != nil || k == nil {
		return nil, err
	}
	return &Result{Kind: KindKanji, Kanji: k, Index: kanjiIndex}, nil
}
