// Package dataserver provides an HTTP client for the kanji data server.
//
// # Overview
//
// The data server publishes one small version manifest per language and one
// JSON-lines file per data series. The client implements jpdict.Source, so a
// jpdict.Database can refresh itself without knowing about HTTP.
//
// # Files
//
//   - version-<lang>.json: the current version of every series
//   - kanji-rc-<lang>-<major>.ljson: one kanji record per line
//   - radicals-rc-<lang>-<major>.ljson: one radical record per line
//
// File names are resolved relative to the configured data_url, which keeps
// its path prefix.
//
// # Error Handling
//
// Errors are mapped onto the jpdict taxonomy:
//
//   - HTTP 4xx/5xx, truncated bodies and malformed lines: *jpdict.DownloadError (retryable)
//   - DNS failures and unreachable networks: jpdict.ErrOffline
//   - Cancellation of the caller's context: the context error, unchanged
//
// The client never retries on its own. Retry policy belongs to the updater.
//
// # Progress
//
// Series downloads report progress from bytes read against Content-Length,
// in steps of at least one percent, and always finish with 1.
package dataserver
