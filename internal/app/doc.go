// Package app provides the orchestration layer for jpdict.
//
// # Overview
//
// This package wires together configuration, the kanji database lifecycle,
// the update scheduler, the listener broadcaster, the action button and the
// word dictionary. It serves as the composition root where all dependencies
// are initialized and connected, and it owns the handlers for every inbound
// event.
//
// # Architecture
//
// Everything that changes orchestrator state runs on a single loop.Loop:
//
//  1. Load configuration from ~/.config/jpdict/config.toml
//  2. Open the persisted state store and create the metrics registry
//  3. Construct the lifecycle manager, broadcaster, scheduler and cycler
//  4. Start the loop, the HTTP server and listener socket, the config
//     watcher and the periodic update poller
//  5. Post the startup task: open the database, check for updates and
//     restore the enabled flag from the previous run
//
// Handlers that need to wait (loading the dictionary, awaiting the database,
// destroying it) do so on their own goroutine and post their continuation
// back to the loop.
//
// # Components
//
//   - app.go: Options, New and Run; construction of every component
//   - handlers.go: enable/disable, listener requests, runtime requests and
//     config changes
//   - poller.go: Background goroutine that re-checks for updates periodically
//
// # Data Flow
//
//	┌──────────────┐
//	│   Run()      │ Start everything
//	└──────┬───────┘
//	       │
//	       ├─────> loop.Run()          Serial event loop
//	       ├─────> server.Serve()      HTTP routes + listener socket
//	       ├─────> config.Watch()      Live config changes
//	       ├─────> StartPoller()       Hourly MaybeUpdate
//	       └─────> startup()           Open, MaybeUpdate, restore enabled
//
//	Database change:
//	┌─────────────────────────────────────────┐
//	│ handle OnChange                         │
//	│  └─> broadcaster.Notify()               │
//	│      └─> next loop turn: flush          │
//	│          ├─> post snapshot to listeners │
//	│          └─> refreshIndicator()         │
//	└─────────────────────────────────────────┘
//
// # Listener Requests
//
//   - updatedb: force an update, or reopen an unavailable database first
//   - cancelupdatedb: cancel the running update; no retry follows
//   - deletedb: destroy the stored data
//   - reporterror: forward the message to the reporter
//
// # Error Handling
//
// Fatal errors (returned from New or Run):
//   - State store path cannot be resolved
//   - Metrics registration or data client initialization failure
//   - HTTP or socket listener cannot be opened
//
// Everything else is reported and the orchestrator keeps running: failed
// updates are retried by the scheduler, a dictionary that fails to load
// leaves lookups off, and persisted store failures are logged as warnings.
package app
