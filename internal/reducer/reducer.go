package reducer

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Sample is one bucket observation as reported by the provider.
// Reset is an epoch-seconds timestamp of the current window's end.
type Sample struct {
	Limit     int   `json:"limit"`
	Used      int   `json:"used"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"`
}

// Response is a decoded /rate_limit body. Resources maps bucket names
// (core, search, graphql, ...) to their current samples. Rate is the
// provider's legacy top-level alias for the core bucket.
type Response struct {
	Resources map[string]Sample `json:"resources"`
	Rate      *Sample           `json:"rate,omitempty"`
}

// Core returns the headline sample: the legacy rate alias when present,
// otherwise the core resource. The second return is false when neither
// exists.
func (r *Response) Core() (Sample, bool) {
	if r.Rate != nil {
		return *r.Rate, true
	}
	s, ok := r.Resources["core"]
	return s, ok
}

// Bucket accumulates usage for a single quota bucket across the run.
// TotalUsed only ever grows; FirstUsed and FirstRemaining freeze the
// baseline observation so reports can show consumption since start.
type Bucket struct {
	LastReset      int64 `json:"last_reset"`
	LastUsed       int   `json:"last_used"`
	TotalUsed      int   `json:"total_used"`
	WindowsCrossed int   `json:"windows_crossed"`
	Anomalies      int   `json:"anomalies"`
	FirstUsed      int   `json:"first_used"`
	FirstRemaining int   `json:"first_remaining"`
	Limit          int   `json:"limit"`
	Remaining      int   `json:"remaining"`
	LastSeen       int64 `json:"last_seen_ts"`
}

// State is the whole-run accumulator persisted after every poll. Timestamp
// fields are epoch seconds; StoppedAt and PollerStartedAt are zero until the
// corresponding event happens.
type State struct {
	RunID                  string            `json:"run_id"`
	Buckets                map[string]Bucket `json:"buckets"`
	StartedAt              int64             `json:"started_at_ts"`
	StoppedAt              int64             `json:"stopped_at_ts"`
	PollerStartedAt        int64             `json:"poller_started_at_ts"`
	PollCount              int               `json:"poll_count"`
	PollFailures           int               `json:"poll_failures"`
	SecondaryRateLimitHits int               `json:"secondary_rate_limit_hits"`
	LastError              string            `json:"last_error"`
}

// Update describes what a single sample did to one bucket.
type Update struct {
	Bucket        string
	Delta         int
	New           bool
	WindowCrossed bool
	Anomaly       bool
}

// New returns a fresh run state with a generated run ID and no buckets.
func New(now int64) *State {
	return &State{
		RunID:     uuid.NewString(),
		Buckets:   make(map[string]Bucket),
		StartedAt: now,
	}
}

// InitBucket creates the baseline accumulator for a bucket seen for the
// first time. No usage is attributed to the baseline poll: TotalUsed starts
// at zero and the first observation is frozen for later reporting.
func InitBucket(s Sample, ts int64) Bucket {
	return Bucket{
		LastReset:      s.Reset,
		LastUsed:       s.Used,
		FirstUsed:      s.Used,
		FirstRemaining: s.Remaining,
		Limit:          s.Limit,
		Remaining:      s.Remaining,
		LastSeen:       ts,
	}
}

// UpdateBucket folds one sample into an existing bucket and reports what
// happened. The three cases:
//
//  1. The reset timestamp changed and the used counter dropped: a genuine
//     window reset. Everything the provider now reports as used happened
//     after the boundary, so it is attributed in full.
//  2. The reset timestamp changed but usage did not drop: the provider
//     rotated the timestamp (clock skew, sliding windows) without zeroing
//     the counter. Treated as a normal delta, no crossing.
//  3. Same window: the delta since the last poll. A negative delta here is
//     provider noise and is recorded as an anomaly instead of corrupting
//     the total.
//
// Every case refreshes LastReset, LastUsed, Limit, Remaining and LastSeen
// from the sample. TotalUsed never decreases.
func UpdateBucket(b Bucket, s Sample, ts int64) (Bucket, Update) {
	var u Update
	switch {
	case s.Reset != b.LastReset && s.Used < b.LastUsed:
		b.WindowsCrossed++
		b.TotalUsed += s.Used
		u.Delta = s.Used
		u.WindowCrossed = true
	case s.Reset != b.LastReset:
		d := s.Used - b.LastUsed
		b.TotalUsed += d
		u.Delta = d
	default:
		d := s.Used - b.LastUsed
		if d < 0 {
			b.Anomalies++
			u.Anomaly = true
		} else {
			b.TotalUsed += d
			u.Delta = d
		}
	}

	b.LastReset = s.Reset
	b.LastUsed = s.Used
	b.Limit = s.Limit
	b.Remaining = s.Remaining
	b.LastSeen = ts
	return b, u
}

// Reduce folds a full response into the state: new buckets are initialised,
// known buckets are updated, and buckets absent from this response are
// carried over untouched. Updates are returned in bucket-name order so logs
// and diagnostics are deterministic. A successful reduce increments
// PollCount and clears LastError.
func (st *State) Reduce(resp *Response, ts int64) []Update {
	names := make([]string, 0, len(resp.Resources))
	for name := range resp.Resources {
		names = append(names, name)
	}
	sort.Strings(names)

	updates := make([]Update, 0, len(names))
	for _, name := range names {
		s := resp.Resources[name]
		b, ok := st.Buckets[name]
		if !ok {
			st.Buckets[name] = InitBucket(s, ts)
			updates = append(updates, Update{Bucket: name, New: true})
			continue
		}
		nb, u := UpdateBucket(b, s, ts)
		u.Bucket = name
		st.Buckets[name] = nb
		updates = append(updates, u)
	}

	st.PollCount++
	st.LastError = ""
	return updates
}

// RecordFailure notes a failed poll attempt. The secondary flag additionally
// bumps the abuse-limit counter surfaced in reports.
func (st *State) RecordFailure(msg string, secondary bool) {
	st.PollFailures++
	st.LastError = msg
	if secondary {
		st.SecondaryRateLimitHits++
	}
}

// MarkStopped records the shutdown timestamp. Safe to call more than once;
// the last call wins, so a stop command can finalise state a crashed daemon
// left behind.
func (st *State) MarkStopped(now int64) {
	st.StoppedAt = now
}

// Attempts returns the total number of polls attempted, successful or not.
func (st *State) Attempts() int {
	return st.PollCount + st.PollFailures
}

// Validate checks the structural invariants a persisted state must satisfy
// before it can be trusted by a reader in another process.
func (st *State) Validate() error {
	if st.Buckets == nil {
		return errors.New("buckets map is missing")
	}
	if st.StartedAt <= 0 {
		return errors.New("started_at_ts must be positive")
	}
	if st.PollCount < 0 || st.PollFailures < 0 || st.SecondaryRateLimitHits < 0 {
		return errors.New("poll counters must not be negative")
	}
	for name, b := range st.Buckets {
		if name == "" {
			return errors.New("bucket with empty name")
		}
		if b.LastSeen <= 0 {
			return fmt.Errorf("bucket %q: last_seen_ts must be positive", name)
		}
		if b.TotalUsed < 0 || b.WindowsCrossed < 0 || b.Anomalies < 0 {
			return fmt.Errorf("bucket %q: counters must not be negative", name)
		}
		if b.Limit < 0 || b.Remaining < 0 {
			return fmt.Errorf("bucket %q: limit fields must not be negative", name)
		}
	}
	return nil
}
