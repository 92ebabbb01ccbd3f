package main

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// mockBucket simulates one quota bucket: usage creeps up on every poll and
// the window rotates once its reset timestamp passes.
type mockBucket struct {
	limit   int
	used    int
	reset   time.Time
	window  time.Duration
	maxStep int
}

// advance moves the bucket forward to now and reports whether the window
// rotated.
func (b *mockBucket) advance(now time.Time) bool {
	if now.After(b.reset) {
		b.used = rand.Intn(b.maxStep + 1)
		b.reset = now.Add(b.window)
		return true
	}
	b.used += rand.Intn(b.maxStep + 1)
	if b.used > b.limit {
		b.used = b.limit
	}
	return false
}

type rateSample struct {
	Limit     int   `json:"limit"`
	Used      int   `json:"used"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"`
}

func (b *mockBucket) sample() rateSample {
	return rateSample{
		Limit:     b.limit,
		Used:      b.used,
		Remaining: b.limit - b.used,
		Reset:     b.reset.Unix(),
	}
}

// StartMockRateLimitServer runs a mock /rate_limit endpoint whose buckets
// burn quota on every request. Windows are deliberately short so crossings
// show up within a minute, and roughly 5% of polls answer with a secondary
// rate limit to exercise the backoff path.
// Call this in a goroutine before starting the daemon.
func StartMockRateLimitServer(addr string) {
	logger, _ := zap.NewDevelopment()

	var (
		mu      sync.Mutex
		buckets = map[string]*mockBucket{
			"core":    {limit: 5000, window: 45 * time.Second, maxStep: 40},
			"search":  {limit: 30, window: 15 * time.Second, maxStep: 3},
			"graphql": {limit: 5000, window: 60 * time.Second, maxStep: 12},
		}
	)
	now := time.Now()
	for _, b := range buckets {
		b.reset = now.Add(b.window)
	}

	http.HandleFunc("/rate_limit", func(w http.ResponseWriter, r *http.Request) {
		// simulate small latency variance
		time.Sleep(time.Duration(20+rand.Intn(80)) * time.Millisecond)

		if rand.Intn(20) == 0 {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"message": "You have exceeded a secondary rate limit. Please wait a few minutes before you try again.",
			})
			logger.Warn("served a secondary rate limit")
			return
		}

		mu.Lock()
		now := time.Now()
		resources := make(map[string]rateSample, len(buckets))
		for name, b := range buckets {
			if b.advance(now) {
				logger.Info("window rotated",
					zap.String("bucket", name),
					zap.Time("next_reset", b.reset))
			}
			resources[name] = b.sample()
		}
		core := resources["core"]
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{
			"resources": resources,
			"rate":      core,
		}); err != nil {
			logger.Error("failed to write response", zap.Error(err))
		}
	})

	if err := http.ListenAndServe(addr, nil); err != nil {
		logger.Error("mock server error", zap.Error(err))
	}
}
