package state

import (
	"sync"
	"time"

	"github.com/five82/jpdict/internal/jpdict"
)

// DictState is the load state of the flat-file word dictionary.
type DictState int

const (
	DictLoading DictState = iota
	DictOk
	DictError
)

func (s DictState) String() string {
	switch s {
	case DictOk:
		return "ok"
	case DictError:
		return "error"
	default:
		return "loading"
	}
}

// Snapshot is a copy of the orchestrator's mutable state.
type Snapshot struct {
	Enabled         bool
	DictState       DictState
	LastUpdateError *jpdict.UpdateErrorState
	LastChanged     time.Time
}

// Store holds the orchestrator's mutable flags. Every write goes through a
// setter so the change time is tracked in one place.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// SetEnabled records whether lookups are switched on.
func (s *Store) SetEnabled(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Enabled = v
	s.snapshot.LastChanged = time.Now()
}

// SetDictState records the flat-file dictionary load state.
func (s *Store) SetDictState(v DictState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.DictState = v
	s.snapshot.LastChanged = time.Now()
}

// SetLastUpdateError replaces the recorded update error. nil clears it.
func (s *Store) SetLastUpdateError(e *jpdict.UpdateErrorState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.LastUpdateError = cloneError(e)
	s.snapshot.LastChanged = time.Now()
}

// Enabled reports whether lookups are switched on.
func (s *Store) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.Enabled
}

// LastUpdateError returns a copy of the recorded update error.
func (s *Store) LastUpdateError() *jpdict.UpdateErrorState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneError(s.snapshot.LastUpdateError)
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.LastUpdateError = cloneError(s.snapshot.LastUpdateError)
	return snap
}

func cloneError(e *jpdict.UpdateErrorState) *jpdict.UpdateErrorState {
	if e == nil {
		return nil
	}
	dup := *e
	if e.NextRetry != nil {
		t := *e.NextRetry
		dup.NextRetry = &t
	}
	return &dup
}
