// Package flatdict is the word and name dictionary, loaded from flat
// tab-separated files.
package flatdict

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

const (
	WordsFile = "words.tsv"
	NamesFile = "names.tsv"

	defaultMaxResults = 7
)

// ErrNotLoaded is returned when the word dictionary is needed but has not
// been loaded.
var ErrNotLoaded = errors.New("dictionary not loaded")

// Entry is one dictionary entry.
type Entry struct {
	Headword string   `json:"headword"`
	Reading  string   `json:"reading,omitempty"`
	Romaji   string   `json:"romaji,omitempty"`
	Glosses  []string `json:"glosses"`
}

// WordResult is the outcome of a successful lookup. MatchLen counts the
// normalized characters of the input that matched.
type WordResult struct {
	Data     []Entry `json:"data"`
	More     bool    `json:"more"`
	MatchLen int     `json:"matchLen"`
	Names    bool    `json:"names,omitempty"`
}

// WordSearchParams controls a lookup.
type WordSearchParams struct {
	Input   string
	DoNames bool
	// IncludeRomaji also matches romanized input and keeps romaji in results.
	IncludeRomaji bool
	MaxResults    int
}

// TranslateResult is the outcome of translating a run of text.
type TranslateResult struct {
	Data    []Entry `json:"data"`
	TextLen int     `json:"textLen"`
	More    bool    `json:"more"`
}

// Dict holds the word and name indexes. It is read-only once loaded and safe
// for concurrent use.
type Dict struct {
	words *index
	names *index
}

type index struct {
	entries []Entry
	keys    map[string][]int
	romaji  map[string][]int
	maxKey  int
}

// Load reads WordsFile and, if present, NamesFile from dir.
func Load(dir string) (*Dict, error) {
	words, err := loadIndex(filepath.Join(dir, WordsFile))
	if err != nil {
		return nil, err
	}
	if words == nil {
		return nil, fmt.Errorf("load %s: %w", WordsFile, os.ErrNotExist)
	}
	names, err := loadIndex(filepath.Join(dir, NamesFile))
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = newIndex()
	}
	return &Dict{words: words, names: names}, nil
}

// loadIndex returns nil, nil for a missing file.
func loadIndex(path string) (*index, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open dictionary: %w", err)
	}
	defer file.Close()

	idx, err := parse(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return idx, nil
}

func parse(r io.Reader) (*index, error) {
	idx := newIndex()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 4 || fields[0] == "" {
			return nil, fmt.Errorf("line %d: want 4 tab-separated fields", lineNo)
		}
		idx.add(Entry{
			Headword: fields[0],
			Reading:  fields[1],
			Romaji:   fields[2],
			Glosses:  splitGlosses(fields[3]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	return idx, nil
}

func splitGlosses(s string) []string {
	var out []string
	for _, g := range strings.Split(s, ";") {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	return out
}

func newIndex() *index {
	return &index{keys: make(map[string][]int), romaji: make(map[string][]int)}
}

func (x *index) add(e Entry) {
	i := len(x.entries)
	x.entries = append(x.entries, e)
	x.addKey(x.keys, Normalize(e.Headword), i)
	if e.Reading != "" {
		x.addKey(x.keys, Normalize(e.Reading), i)
	}
	if e.Romaji != "" {
		x.addKey(x.romaji, strings.ToLower(e.Romaji), i)
	}
}

func (x *index) addKey(m map[string][]int, key string, i int) {
	ids := m[key]
	if len(ids) > 0 && ids[len(ids)-1] == i {
		return
	}
	m[key] = append(ids, i)
	if n := len([]rune(key)); n > x.maxKey {
		x.maxKey = n
	}
}

// Normalize folds width variants, composes combining marks, and maps
// katakana to hiragana so that lookups are insensitive to all three.
func Normalize(s string) string {
	s = norm.NFC.String(width.Fold.String(s))
	return strings.Map(func(r rune) rune {
		if r >= 'ァ' && r <= 'ヶ' {
			return r - 0x60
		}
		return r
	}, s)
}

// WordSearch returns the entries for the longest prefix of p.Input found in
// the dictionary, or nil when nothing matches.
func (d *Dict) WordSearch(ctx context.Context, p WordSearchParams) (*WordResult, error) {
	if d == nil || d.words == nil {
		return nil, ErrNotLoaded
	}
	idx := d.words
	if p.DoNames {
		idx = d.names
	}
	limit := p.MaxResults
	if limit <= 0 {
		limit = defaultMaxResults
	}

	input := []rune(Normalize(p.Input))
	for n := min(len(input), idx.maxKey); n > 0; n-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		prefix := string(input[:n])
		ids := idx.keys[prefix]
		if p.IncludeRomaji {
			ids = merge(ids, idx.romaji[strings.ToLower(prefix)])
		}
		if len(ids) == 0 {
			continue
		}

		res := &WordResult{MatchLen: n, Names: p.DoNames}
		for _, i := range ids {
			if len(res.Data) == limit {
				res.More = true
				break
			}
			e := idx.entries[i]
			if !p.IncludeRomaji {
				e.Romaji = ""
			}
			res.Data = append(res.Data, e)
		}
		return res, nil
	}
	return nil, nil
}

func merge(a, b []int) []int {
	if len(b) == 0 {
		return a
	}
	out := append([]int(nil), a...)
	for _, id := range b {
		found := false
		for _, have := range a {
			if have == id {
				found = true
				break
			}
		}
		if !found {
			out = append(out, id)
		}
	}
	return out
}

// Translate scans text left to right, taking the longest word match at each
// position and skipping characters that match nothing.
func (d *Dict) Translate(ctx context.Context, text string, includeRomaji bool) (*TranslateResult, error) {
	if d == nil || d.words == nil {
		return nil, ErrNotLoaded
	}
	res := &TranslateResult{}
	rest := []rune(Normalize(text))
	for len(rest) > 0 {
		if len(res.Data) >= defaultMaxResults*3 {
			res.More = true
			break
		}
		word, err := d.WordSearch(ctx, WordSearchParams{
			Input:         string(rest),
			IncludeRomaji: includeRomaji,
			MaxResults:    1,
		})
		if err != nil {
			return nil, err
		}
		if word == nil {
			rest = rest[1:]
			continue
		}
		res.Data = append(res.Data, word.Data...)
		res.TextLen += word.MatchLen
		rest = rest[word.MatchLen:]
	}
	if len(res.Data) == 0 {
		return nil, nil
	}
	return res, nil
}

// Len returns the number of word and name entries.
func (d *Dict) Len() (words, names int) {
	return len(d.words.entries), len(d.names.entries)
}
