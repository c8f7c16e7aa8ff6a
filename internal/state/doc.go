// Package state holds the orchestrator's mutable flags.
//
// # Overview
//
// Three values are shared between the event handlers, the update scheduler
// and the indicator: whether lookups are enabled, the load state of the
// flat-file dictionary, and the most recent update error. They live in one
// Store so that every mutation goes through a setter.
//
// Handlers on the orchestrator loop are the only writers. Readers outside
// the loop (the HTTP control surface, the broadcaster's snapshot) take a
// copy with Snapshot or one of the single-value accessors.
//
// # Update Error Semantics
//
// SetLastUpdateError replaces the previous value; there is never more than
// one recorded error. A successful update clears it with nil. Both the
// setter and the readers copy the value, so callers may keep or modify what
// they hold.
//
//	store.SetLastUpdateError(&jpdict.UpdateErrorState{Kind: "DownloadError"})
//	snap := store.Snapshot()
//	snap.LastUpdateError.RetryCount = 9 // does not affect store
//
// # Testing Considerations
//
// The zero Store is ready to use: lookups disabled, dictionary loading, no
// error.
package state
