// Package diag appends best-effort JSONL diagnostics for RateWatch polls.
//
// One JSON object per line: successful polls record a per-bucket snapshot,
// throttled polls record the backoff decision. Diagnostics must never affect
// the daemon, so every failure here is logged at debug level and swallowed,
// and all methods are no-ops on a nil *Writer.
package diag

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/jpalmerr/ratewatch/internal/reducer"
)

// Writer appends diagnostics records to a single JSONL file.
type Writer struct {
	mu     sync.Mutex
	f      *os.File
	logger *zap.Logger
}

// Open creates or opens the diagnostics file for appending. A nil logger
// defaults to a no-op logger.
func Open(path string, logger *zap.Logger) (*Writer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open diagnostics file: %w", err)
	}
	return &Writer{f: f, logger: logger}, nil
}

// bucketRecord is one bucket's entry in a snapshot line.
type bucketRecord struct {
	Used           int   `json:"used"`
	Remaining      int   `json:"remaining"`
	Limit          int   `json:"limit"`
	Reset          int64 `json:"reset"`
	Delta          int   `json:"delta"`
	TotalUsed      int   `json:"total_used"`
	WindowsCrossed int   `json:"windows_crossed"`
}

// ThrottleRecord describes one backoff decision taken after a throttled
// response.
type ThrottleRecord struct {
	Status       int    `json:"status"`
	Kind         string `json:"kind"`
	Message      string `json:"message,omitempty"`
	WaitMs       int64  `json:"wait_ms"`
	BlockedUntil int64  `json:"blocked_until_ts"`
	Consecutive  int    `json:"consecutive"`
	Fatal        bool   `json:"fatal"`
}

// line is the envelope every record shares. Error lines carry an empty
// buckets object so consumers can parse both shapes uniformly.
type line struct {
	Timestamp  int64                   `json:"timestamp"`
	PollNumber int                     `json:"poll_number"`
	Buckets    map[string]bucketRecord `json:"buckets"`
	Error      *ThrottleRecord         `json:"error,omitempty"`
}

// Snapshot records the buckets observed by one successful poll. The updates
// identify which buckets this response actually carried; their accumulated
// values come from the state.
func (w *Writer) Snapshot(ts int64, pollNumber int, st *reducer.State, updates []reducer.Update) {
	if w == nil {
		return
	}

	buckets := make(map[string]bucketRecord, len(updates))
	for _, u := range updates {
		b, ok := st.Buckets[u.Bucket]
		if !ok {
			continue
		}
		buckets[u.Bucket] = bucketRecord{
			Used:           b.LastUsed,
			Remaining:      b.Remaining,
			Limit:          b.Limit,
			Reset:          b.LastReset,
			Delta:          u.Delta,
			TotalUsed:      b.TotalUsed,
			WindowsCrossed: b.WindowsCrossed,
		}
	}
	w.append(line{Timestamp: ts, PollNumber: pollNumber, Buckets: buckets})
}

// Throttle records a backoff decision taken after a throttled poll.
func (w *Writer) Throttle(ts int64, pollNumber int, rec ThrottleRecord) {
	if w == nil {
		return
	}
	w.append(line{Timestamp: ts, PollNumber: pollNumber, Buckets: map[string]bucketRecord{}, Error: &rec})
}

func (w *Writer) append(l line) {
	data, err := json.Marshal(l)
	if err != nil {
		w.logger.Debug("diagnostics marshal failed", zap.Error(err))
		return
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.f.Write(data); err != nil {
		w.logger.Debug("diagnostics write failed", zap.Error(err))
	}
}

// Close releases the file handle. Safe on a nil writer.
func (w *Writer) Close() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.f.Close()
}
