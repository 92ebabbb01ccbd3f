package ratewatch

import (
	"errors"
	"time"

	"go.uber.org/zap"
)

// dConfig holds mutable state during Daemon construction.
type dConfig struct {
	token        string
	baseURL      string
	stateDir     string
	pollInterval time.Duration
	debounce     time.Duration
	maxLifetime  time.Duration
	fetchTimeout time.Duration
	diagnostics  bool
	logger       *zap.Logger
}

// Option is a function that configures a [Daemon] during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*dConfig) error

// WithToken sets the API token sent as a Bearer credential on every poll.
//
// An empty token is allowed; the provider then answers with the much
// smaller unauthenticated quota, which is still valid telemetry.
func WithToken(token string) Option {
	return func(cfg *dConfig) error {
		cfg.token = token
		return nil
	}
}

// WithBaseURL sets the API root the daemon polls, e.g. for GitHub
// Enterprise or a local mock. The /rate_limit path is appended by the
// client. Defaults to https://api.github.com.
//
// Returns an error if the URL is empty.
func WithBaseURL(baseURL string) Option {
	return func(cfg *dConfig) error {
		if baseURL == "" {
			return errors.New("base URL cannot be empty")
		}
		cfg.baseURL = baseURL
		return nil
	}
}

// WithStateDir sets the directory holding the state file, PID file, daemon
// log, and optional diagnostics. The directory is created on startup if
// missing. Defaults to a fixed path under the system temp directory.
//
// Returns an error if the path is empty.
func WithStateDir(dir string) Option {
	return func(cfg *dConfig) error {
		if dir == "" {
			return errors.New("state directory cannot be empty")
		}
		cfg.stateDir = dir
		return nil
	}
}

// WithPollInterval sets the baseline time between polls. The daemon
// shortens individual sleeps when a window reset is near, so this is the
// cadence during quiet stretches, not a fixed period. Defaults to 30s.
//
// Returns an error if the duration is zero or negative.
func WithPollInterval(d time.Duration) Option {
	return func(cfg *dConfig) error {
		if d <= 0 {
			return errors.New("poll interval must be positive")
		}
		cfg.pollInterval = d
		return nil
	}
}

// WithDebounce sets the minimum sleep between any two polls. When several
// buckets reset within seconds of each other the planner would otherwise
// schedule a poll storm; the debounce floor merges them. Defaults to 2s.
//
// Returns an error if the duration is negative.
func WithDebounce(d time.Duration) Option {
	return func(cfg *dConfig) error {
		if d < 0 {
			return errors.New("debounce cannot be negative")
		}
		cfg.debounce = d
		return nil
	}
}

// WithMaxLifetime sets the hard cap on daemon runtime. The daemon
// self-terminates cleanly when it is reached, a backstop against becoming
// a permanent orphan when a job is killed before its stop hook runs.
// Defaults to 6h.
//
// Returns an error if the duration is zero or negative.
func WithMaxLifetime(d time.Duration) Option {
	return func(cfg *dConfig) error {
		if d <= 0 {
			return errors.New("max lifetime must be positive")
		}
		cfg.maxLifetime = d
		return nil
	}
}

// WithFetchTimeout bounds each HTTP request to the rate-limit endpoint.
// Defaults to 10s.
//
// Returns an error if the duration is zero or negative.
func WithFetchTimeout(d time.Duration) Option {
	return func(cfg *dConfig) error {
		if d <= 0 {
			return errors.New("fetch timeout must be positive")
		}
		cfg.fetchTimeout = d
		return nil
	}
}

// WithDiagnostics enables the per-poll NDJSON trace written next to the
// state file. Diagnostic writes are best effort and never fail a poll.
func WithDiagnostics(enabled bool) Option {
	return func(cfg *dConfig) error {
		cfg.diagnostics = enabled
		return nil
	}
}

// WithLogger sets the [zap.Logger] the daemon logs through. If not
// specified, logging is disabled via [zap.NewNop].
//
// Returns an error if the logger is nil.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *dConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}
