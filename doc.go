// Package ratewatch provides a background daemon that samples a GitHub-style
// /rate_limit endpoint for the lifetime of a CI job and reduces the noisy
// window counters into stable per-bucket usage totals.
//
// The provider's raw counters are awkward to consume directly: `used` drops
// to zero whenever a window resets, and the reset timestamp itself can
// rotate on idle buckets without any reset actually happening. The daemon's
// reducer disambiguates those cases and maintains monotonic totals (see
// internal/reducer), so "how many requests did this job really spend"
// survives any number of window rollovers.
//
// # Quick Start
//
// Run the daemon in-process until the context ends:
//
//	rw, err := ratewatch.New(
//	    ratewatch.WithToken(os.Getenv("GITHUB_TOKEN")),
//	    ratewatch.WithStateDir("/tmp/ratewatch"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
//	defer stop()
//
//	err = rw.Run(ctx) // blocks until signalled, fatal throttling, or max lifetime
//
// The ratewatch CLI wraps this same API with detached spawning, PID handoff
// and report rendering; see cmd/ratewatch.
//
// # Scheduling
//
// Polls normally happen at the configured interval, but the daemon tightens
// the schedule around window resets: when a bucket's reset is seconds away
// it brackets the boundary with a poll shortly before and shortly after, so
// the pre-reset usage peak is captured rather than averaged away. A debounce
// floor keeps several buckets resetting together from turning that into a
// poll storm, and provider throttling (403/429) switches the loop into
// conservative backoff with exponential waits for secondary limits.
//
// # State
//
// Everything the daemon knows lives in one JSON document, rewritten
// atomically after every poll:
//
//	<state_dir>/state.json         reduced totals and run counters
//	<state_dir>/ratewatch.pid      PID handoff for a later stop command
//	<state_dir>/daemon.log         daemon log (JSON lines, rotated)
//	<state_dir>/diagnostics.ndjson optional per-poll trace
//
// Readers never observe partial writes; a crashed run leaves the last
// complete snapshot behind.
//
// # Architecture
//
// The implementation is split across internal packages:
//
//   - internal/reducer: the bucket reduction state machine
//   - internal/poller: HTTP client, sleep planner, backoff controller, poll pipeline
//   - internal/state: atomic state persistence and the PID file
//   - internal/diag: best-effort NDJSON diagnostics
//   - internal/proc: detached spawn and kill-with-verification
//   - internal/report: table/markdown/JSON/YAML rendering of a finished run
//
// The internal packages are not part of the public API and may change
// without notice.
package ratewatch
