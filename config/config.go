// Package config provides configuration loading for ratewatch.
//
// Settings are resolved from three layers, in increasing precedence:
//
//  1. Built-in defaults
//  2. An optional YAML file (ratewatch.yaml in the working directory,
//     or an explicit path)
//  3. RATEWATCH_* environment variables and CLI flag overrides
//
// Example configuration:
//
//	base_url: https://api.github.com
//	poll_interval: 30s
//	state_dir: /tmp/ratewatch
//	diagnostics: true
//
// The API token is read from RATEWATCH_TOKEN, falling back to GITHUB_TOKEN
// so GitHub Actions jobs work without extra wiring. A token never comes
// from the YAML file; CI secrets belong in the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Defaults applied when neither the file nor the environment sets a value.
const (
	DefaultBaseURL      = "https://api.github.com"
	DefaultPollInterval = 30 * time.Second
	DefaultDebounce     = 2 * time.Second
	DefaultMaxLifetime  = 6 * time.Hour
	DefaultFetchTimeout = 10 * time.Second
	DefaultLogLevel     = "info"
)

// minPollInterval is the minimum allowed polling interval.
// This prevents accidentally hammering the rate-limit endpoint itself.
const minPollInterval = 1 * time.Second

// DefaultStateDir returns the default state directory: a fixed path under
// the system temp directory, so every ratewatch command in a job resolves
// the same files without coordination.
func DefaultStateDir() string {
	return filepath.Join(os.TempDir(), "ratewatch")
}

// Config is the resolved ratewatch configuration.
//
// Use [Load] to create one; a zero Config has not had defaults applied.
type Config struct {
	// Token is the API token sent as a Bearer credential.
	// Read from RATEWATCH_TOKEN or GITHUB_TOKEN, never from the file.
	// Commands that poll refuse to run without it; read-only commands
	// (status, report, stop) do not need it.
	Token string `mapstructure:"token"`

	// BaseURL is the API root the daemon polls, e.g. https://api.github.com.
	// The /rate_limit path is appended by the client.
	BaseURL string `mapstructure:"base_url"`

	// StateDir is the directory holding state.json, the PID file, the
	// daemon log, and optional diagnostics.
	StateDir string `mapstructure:"state_dir"`

	// PollInterval is the baseline time between polls. The daemon sleeps
	// less when a window reset is near. Must be at least 1s.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// Debounce is the minimum sleep between any two polls, bounding the
	// request rate when the planner wants to poll aggressively.
	Debounce time.Duration `mapstructure:"debounce"`

	// MaxLifetime is the hard cap on daemon runtime, a backstop for jobs
	// that never call stop. Must be at least PollInterval.
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`

	// FetchTimeout bounds each HTTP request to the rate-limit endpoint.
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`

	// Diagnostics enables the per-poll NDJSON trace next to the state file.
	Diagnostics bool `mapstructure:"diagnostics"`

	// LogLevel sets daemon log verbosity: debug, info, warn, or error.
	LogLevel string `mapstructure:"log_level"`

	// File is the config file the values were loaded from, empty when
	// running on defaults and environment alone.
	File string `mapstructure:"-"`
}

// Option adjusts how [Load] resolves configuration.
type Option func(v *viper.Viper)

// WithFile makes Load read the given config file instead of searching the
// working directory. Unlike the default search, a missing explicit file is
// an error.
func WithFile(path string) Option {
	return func(v *viper.Viper) {
		if path != "" {
			v.SetConfigFile(path)
		}
	}
}

// WithOverride pins a single key to a fixed value, taking precedence over
// both the file and the environment. The CLI uses it to apply flags the
// user set explicitly. Keys match the mapstructure tags on [Config], e.g.
// "poll_interval" or "state_dir".
func WithOverride(key string, value any) Option {
	return func(v *viper.Viper) {
		v.Set(key, value)
	}
}

// Load resolves the configuration from defaults, an optional YAML file,
// and RATEWATCH_* environment variables, then validates it.
//
// Without [WithFile], Load looks for ratewatch.yaml in the working
// directory and silently continues on defaults when there is none.
func Load(opts ...Option) (*Config, error) {
	v := viper.New()
	v.SetConfigName("ratewatch")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RATEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("token", "RATEWATCH_TOKEN", "GITHUB_TOKEN")

	v.SetDefault("base_url", DefaultBaseURL)
	v.SetDefault("state_dir", DefaultStateDir())
	v.SetDefault("poll_interval", DefaultPollInterval)
	v.SetDefault("debounce", DefaultDebounce)
	v.SetDefault("max_lifetime", DefaultMaxLifetime)
	v.SetDefault("fetch_timeout", DefaultFetchTimeout)
	v.SetDefault("diagnostics", false)
	v.SetDefault("log_level", DefaultLogLevel)

	for _, opt := range opts {
		opt(v)
	}

	if err := v.ReadInConfig(); err != nil {
		// a missing file is fine unless one was named explicitly
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate checks bounds and formats. Token presence is deliberately not
// checked here; only commands that poll require one.
func (c *Config) validate() error {
	if c.PollInterval < minPollInterval {
		return fmt.Errorf("poll_interval must be at least %s, got %s", minPollInterval, c.PollInterval)
	}
	if c.Debounce < 0 {
		return fmt.Errorf("debounce cannot be negative, got %s", c.Debounce)
	}
	if c.MaxLifetime < c.PollInterval {
		return fmt.Errorf("max_lifetime must be at least the poll interval (%s), got %s",
			c.PollInterval, c.MaxLifetime)
	}
	if c.FetchTimeout < time.Second {
		return fmt.Errorf("fetch_timeout must be at least 1s, got %s", c.FetchTimeout)
	}
	if c.StateDir == "" {
		return fmt.Errorf("state_dir is required")
	}

	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	parsed, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("base_url scheme must be http or https, got %q", parsed.Scheme)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}
	return nil
}

// RedactedToken returns a printable placeholder for the token: "(not set)"
// when empty, a fixed mask otherwise. The token value itself is never
// echoed back.
func (c *Config) RedactedToken() string {
	if c.Token == "" {
		return "(not set)"
	}
	return "****"
}
