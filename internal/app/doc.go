// Package app provides the orchestration layer for the vapor console.
//
// # Overview
//
// This package wires together configuration, persisted preferences, the API
// client, the domain stores and the UI. It is the composition root: every
// service is constructed here and handed to its dependents explicitly.
//
// # Architecture
//
//  1. Load the console config from ~/.config/vapor-console/config.toml
//  2. Open the prefs file and watch it for writes by other instances
//  3. Build auth tokens, the API client, the bus and the UI state service
//  4. Build the virtualization and kubernetes services over the client
//  5. Subscribe to auth:logout to clear every store
//  6. Load the virtualization collections, then start the poller
//  7. Start the VM state feed watcher
//  8. Start the TUI and block until the user exits or the context cancels
//
// # Components
//
//   - app.go: Build, Services and Run
//   - poller.go: background refresh of the collections
//
// # Data Flow
//
//	┌──────────────┐
//	│   Run()      │ Initialize everything
//	└──────┬───────┘
//	       │
//	       ├─────> config.Load()          Read console config
//	       ├─────> prefs.Open()/Watch()   Persistent key-value store
//	       ├─────> Build()                Wire services
//	       ├─────> Initialize()           First load of every collection
//	       ├─────> StartPoller()          Periodic Refresh
//	       ├─────> Watcher.Run()          vm-state-change patches
//	       └─────> ui.Run()               Start TUI (blocks)
//
// # Polling Behavior
//
// The poller calls Refresh on each target every interval (poll_seconds,
// default 10s). When a round fails the next one is delayed by doubling the
// interval up to 30 seconds. The next round is a new request; failed requests
// are never retried.
//
// # Error Handling
//
// Fatal errors (returned from Run):
//   - Config file invalid
//   - Prefs file cannot be resolved
//   - API client initialization failure
//
// Recoverable errors (logged, polling continues):
//   - Collection fetch failures, also surfaced on each collection's error
//   - WebSocket disconnects, redialled with backoff
//
// # Usage Example
//
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//
//	if err := app.Run(ctx, app.Options{PollEvery: 5}); err != nil {
//		klog.Fatalf("vapor-console failed: %v", err)
//	}
package app
