// Package poller drives RateWatch's polling of a /rate_limit endpoint.
//
// This package is internal to RateWatch and contains the pieces of the poll
// pipeline:
//
//   - [Client]: HTTP client fetching rate-limit snapshots, with connection
//     pooling and response size limits
//   - [ComputePlan]: adaptive sleep planner that brackets window resets
//   - [Classify] and [Handle]: backoff controller for 403/429 responses
//   - [Poller]: one poll attempt end to end, including persistence and
//     diagnostics
//
// The planner and controller are pure functions over the reduced state and
// never perform I/O; the Client and Poller own all network and filesystem
// effects. Users of the ratewatch library should not need to interact with
// this package directly.
package poller
