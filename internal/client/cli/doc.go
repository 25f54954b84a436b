// Package cli provides the interactive casekeeper command-line client.
//
// It wires configuration, local storage, the transport, the encrypted store
// and the operation queue into an interactive REPL that keeps working while
// the server is unreachable. Operations submitted offline are queued per
// user and replayed in order once the connectivity watcher sees the server
// again.
//
// Key features:
//   - Offline login / logout, and logout-and-clear (forget)
//   - Encrypted per-user records: get / set / rm
//   - Submit operations, inspect the queue, force online / offline
//   - Access token management
//
// The REPL is started via App.Run(ctx) and the watcher via App.Watch(ctx).
package cli
