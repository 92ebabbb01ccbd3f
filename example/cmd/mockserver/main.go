// Standalone mock /rate_limit server for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	export RATEWATCH_TOKEN=demo-token
//	export RATEWATCH_BASE_URL=http://localhost:9999
//	go run ./cmd/ratewatch start
//	go run ./cmd/ratewatch status
package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

func main() {
	fmt.Println("Mock rate-limit server starting on :9999")
	fmt.Println("Buckets: core (45s window), search (15s), graphql (60s)")
	fmt.Println("~5% of polls answer with a secondary rate limit")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

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
		_ = json.NewEncoder(w).Encode(map[string]any{
			"resources": resources,
			"rate":      core,
		})
	})

	if err := http.ListenAndServe(":9999", nil); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

type mockBucket struct {
	limit   int
	used    int
	reset   time.Time
	window  time.Duration
	maxStep int
}

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
