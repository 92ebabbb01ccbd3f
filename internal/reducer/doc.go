// Package reducer implements the bucket-reduction state machine for RateWatch.
//
// This package is internal to RateWatch and turns the noisy window counters
// reported by a /rate_limit endpoint into monotonic per-bucket usage totals.
// The provider's "used" counter drops back toward zero whenever a quota window
// resets, so naive deltas between polls under-count; the reducer detects
// window boundaries and attributes usage across them.
//
// The main components are:
//
//   - [Sample]: one bucket observation from the provider
//   - [Response]: a decoded /rate_limit body
//   - [Bucket]: the per-bucket accumulator (total_used is never decreased)
//   - [State]: the whole-run accumulator persisted between polls
//   - [UpdateBucket]: the three-way branch that classifies each new sample
//
// All functions here are pure with respect to I/O: they never fail and never
// touch the network or filesystem. State mutation follows a single-writer
// discipline (the daemon's poll loop); persistence lives in internal/state.
package reducer
