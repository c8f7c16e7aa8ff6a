// Package localstore persists the small set of key-value entries jpdict keeps
// between runs. Entries are stored in ~/.local/share/jpdict/state.toml.
//
// A missing file or a missing key is a valid state, never an error. Read and
// write failures are returned as *Error so callers can log them and carry on
// with a default.
package localstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	toml "github.com/pelletier/go-toml/v2"
)

// Keys of the persisted entries.
const (
	KeyEnabled    = "enabled"
	KeyLastUpdate = "lastUpdateKanjiDb"
	KeyInstallID  = "installId"
)

const defaultStorePath = "~/.local/share/jpdict/state.toml"

// Error is a failed read or write of one entry.
type Error struct {
	Key    string
	Action string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Action, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type entries struct {
	Enabled    *bool  `toml:"enabled,omitempty"`
	LastUpdate *int64 `toml:"lastUpdateKanjiDb,omitempty"`
	InstallID  string `toml:"installId,omitempty"`
}

// Store reads and writes entries in a single TOML file. It is safe for
// concurrent use.
type Store struct {
	path string
	mu   sync.Mutex
}

// DefaultPath returns the default store file path.
func DefaultPath() string {
	return defaultStorePath
}

// Open returns a Store backed by path. The file is created on first write.
func Open(path string) (*Store, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	return &Store{path: resolved}, nil
}

// Path returns the resolved file path.
func (s *Store) Path() string {
	return s.path
}

// Enabled reports the persisted enabled flag. Absent means false.
func (s *Store) Enabled() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.read()
	if err != nil {
		return false, &Error{Key: KeyEnabled, Action: "get", Err: err}
	}
	return e.Enabled != nil && *e.Enabled, nil
}

// SetEnabled persists the enabled flag.
func (s *Store) SetEnabled(v bool) error {
	return s.update(KeyEnabled, "set", func(e *entries) { e.Enabled = &v })
}

// RemoveEnabled deletes the enabled flag.
func (s *Store) RemoveEnabled() error {
	return s.update(KeyEnabled, "remove", func(e *entries) { e.Enabled = nil })
}

// LastUpdate returns the time of the last successful data update. ok is
// false when no update has been recorded.
func (s *Store) LastUpdate() (t time.Time, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.read()
	if err != nil {
		return time.Time{}, false, &Error{Key: KeyLastUpdate, Action: "get", Err: err}
	}
	if e.LastUpdate == nil {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(*e.LastUpdate), true, nil
}

// SetLastUpdate records t as the last successful data update, with
// millisecond precision.
func (s *Store) SetLastUpdate(t time.Time) error {
	ms := t.UnixMilli()
	return s.update(KeyLastUpdate, "set", func(e *entries) { e.LastUpdate = &ms })
}

// InstallID returns a random identifier for this installation, creating and
// persisting one on first use.
func (s *Store) InstallID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.read()
	if err != nil {
		return "", &Error{Key: KeyInstallID, Action: "get", Err: err}
	}
	if e.InstallID != "" {
		return e.InstallID, nil
	}
	e.InstallID = uuid.NewString()
	if err := s.write(e); err != nil {
		return e.InstallID, &Error{Key: KeyInstallID, Action: "set", Err: err}
	}
	return e.InstallID, nil
}

func (s *Store) update(key, action string, fn func(*entries)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.read()
	if err != nil {
		return &Error{Key: key, Action: action, Err: err}
	}
	fn(&e)
	if err := s.write(e); err != nil {
		return &Error{Key: key, Action: action, Err: err}
	}
	return nil
}

func (s *Store) read() (entries, error) {
	var e entries

	file, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return e, nil
		}
		return e, err
	}
	defer func() { _ = file.Close() }()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return e, err
	}
	if err := toml.Unmarshal(bytes, &e); err != nil {
		return entries{}, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return e, nil
}

func (s *Store) write(e entries) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	bytes, err := toml.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entries: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, bytes, 0o644); err != nil {
		return fmt.Errorf("write entries: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace entries: %w", err)
	}
	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultStorePath)
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
