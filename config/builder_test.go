package config

import (
	"testing"
	"time"

	"github.com/jpalmerr/ratewatch"
)

func TestBuildOptions(t *testing.T) {
	cfg := &Config{
		Token:        "ghp_test",
		BaseURL:      "http://localhost:9999",
		StateDir:     "/tmp/rw-build",
		PollInterval: 12 * time.Second,
		Debounce:     time.Second,
		MaxLifetime:  time.Hour,
		FetchTimeout: 4 * time.Second,
		Diagnostics:  true,
		LogLevel:     "info",
	}

	rw, err := ratewatch.New(BuildOptions(cfg)...)
	if err != nil {
		t.Fatalf("New(BuildOptions()) error = %v", err)
	}

	if rw.StateDir() != "/tmp/rw-build" {
		t.Errorf("StateDir() = %q, want %q", rw.StateDir(), "/tmp/rw-build")
	}
	if rw.PollInterval() != 12*time.Second {
		t.Errorf("PollInterval() = %v, want 12s", rw.PollInterval())
	}
}

func TestBuildOptions_EmptyTokenAccepted(t *testing.T) {
	cfg := &Config{
		BaseURL:      DefaultBaseURL,
		StateDir:     DefaultStateDir(),
		PollInterval: DefaultPollInterval,
		Debounce:     DefaultDebounce,
		MaxLifetime:  DefaultMaxLifetime,
		FetchTimeout: DefaultFetchTimeout,
	}

	if _, err := ratewatch.New(BuildOptions(cfg)...); err != nil {
		t.Fatalf("New(BuildOptions()) with empty token error = %v", err)
	}
}

func TestBuildOptions_InvalidConfigSurfacesThroughNew(t *testing.T) {
	// Load validates bounds itself; BuildOptions passes values through, so
	// an out-of-band Config still fails at construction rather than later.
	cfg := &Config{
		BaseURL:      DefaultBaseURL,
		StateDir:     DefaultStateDir(),
		PollInterval: -time.Second,
		MaxLifetime:  DefaultMaxLifetime,
		FetchTimeout: DefaultFetchTimeout,
	}

	if _, err := ratewatch.New(BuildOptions(cfg)...); err == nil {
		t.Fatal("New(BuildOptions()) expected error for negative interval, got nil")
	}
}
