// Package state persists RateWatch run state across process boundaries.
//
// This package is internal to RateWatch and owns the files in the state
// directory that the daemon, the CLI, and post-job CI steps share:
//
//   - state.json: the reduced run state, replaced atomically on every write
//   - ratewatch.pid: the detached daemon's PID for a later stop command
//   - diagnostics.ndjson: optional per-poll diagnostics (written by
//     internal/diag)
//   - daemon.log: the detached daemon's log output
//
// State writes go through a temp file followed by a rename, so a reader in
// another process always sees a complete JSON document. Reads distinguish a
// missing file ([ErrNotFound], expected on first run) from one whose content
// cannot be trusted ([ErrInvalid]).
package state
