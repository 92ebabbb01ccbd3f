package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate points the loader at an empty working directory and clears the
// ambient token variables, so the host environment cannot leak into tests.
func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("RATEWATCH_TOKEN", "")
	t.Setenv("GITHUB_TOKEN", "")
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Token != "" {
		t.Errorf("Token = %q, want empty", cfg.Token)
	}
	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, DefaultBaseURL)
	}
	if cfg.StateDir != DefaultStateDir() {
		t.Errorf("StateDir = %q, want %q", cfg.StateDir, DefaultStateDir())
	}
	if cfg.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %v, want 30s", cfg.PollInterval)
	}
	if cfg.Debounce != 2*time.Second {
		t.Errorf("Debounce = %v, want 2s", cfg.Debounce)
	}
	if cfg.MaxLifetime != 6*time.Hour {
		t.Errorf("MaxLifetime = %v, want 6h", cfg.MaxLifetime)
	}
	if cfg.FetchTimeout != 10*time.Second {
		t.Errorf("FetchTimeout = %v, want 10s", cfg.FetchTimeout)
	}
	if cfg.Diagnostics {
		t.Error("Diagnostics = true, want false")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.File != "" {
		t.Errorf("File = %q, want empty", cfg.File)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "custom.yaml")
	yaml := `
base_url: http://localhost:8080
state_dir: /var/lib/ratewatch
poll_interval: 45s
debounce: 1s
max_lifetime: 2h
fetch_timeout: 5s
diagnostics: true
log_level: debug
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(WithFile(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BaseURL != "http://localhost:8080" {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, "http://localhost:8080")
	}
	if cfg.StateDir != "/var/lib/ratewatch" {
		t.Errorf("StateDir = %q, want %q", cfg.StateDir, "/var/lib/ratewatch")
	}
	if cfg.PollInterval != 45*time.Second {
		t.Errorf("PollInterval = %v, want 45s", cfg.PollInterval)
	}
	if cfg.Debounce != time.Second {
		t.Errorf("Debounce = %v, want 1s", cfg.Debounce)
	}
	if cfg.MaxLifetime != 2*time.Hour {
		t.Errorf("MaxLifetime = %v, want 2h", cfg.MaxLifetime)
	}
	if cfg.FetchTimeout != 5*time.Second {
		t.Errorf("FetchTimeout = %v, want 5s", cfg.FetchTimeout)
	}
	if !cfg.Diagnostics {
		t.Error("Diagnostics = false, want true")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.File != path {
		t.Errorf("File = %q, want %q", cfg.File, path)
	}
}

func TestLoad_SearchesWorkingDirectory(t *testing.T) {
	isolate(t)

	yaml := "poll_interval: 12s\n"
	if err := os.WriteFile("ratewatch.yaml", []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PollInterval != 12*time.Second {
		t.Errorf("PollInterval = %v, want 12s", cfg.PollInterval)
	}
	if cfg.File == "" {
		t.Error("File is empty, want path of discovered ratewatch.yaml")
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolate(t)

	_, err := Load(WithFile(filepath.Join(t.TempDir(), "nope.yaml")))
	if err == nil {
		t.Fatal("Load() with missing explicit file: expected error, got nil")
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("{poll_interval: [unclosed"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	_, err := Load(WithFile(path))
	if err == nil {
		t.Fatal("Load() with malformed YAML: expected error, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("RATEWATCH_BASE_URL", "http://localhost:9999")
	t.Setenv("RATEWATCH_POLL_INTERVAL", "5s")
	t.Setenv("RATEWATCH_DIAGNOSTICS", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BaseURL != "http://localhost:9999" {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, "http://localhost:9999")
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v, want 5s", cfg.PollInterval)
	}
	if !cfg.Diagnostics {
		t.Error("Diagnostics = false, want true")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	isolate(t)
	t.Setenv("RATEWATCH_POLL_INTERVAL", "5s")

	path := filepath.Join(t.TempDir(), "ratewatch.yaml")
	if err := os.WriteFile(path, []byte("poll_interval: 45s\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(WithFile(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v, want 5s (env over file)", cfg.PollInterval)
	}
}

func TestLoad_TokenFallsBackToGithubToken(t *testing.T) {
	isolate(t)
	t.Setenv("GITHUB_TOKEN", "ghs_fallback")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Token != "ghs_fallback" {
		t.Errorf("Token = %q, want %q", cfg.Token, "ghs_fallback")
	}
}

func TestLoad_TokenPrefersRatewatchToken(t *testing.T) {
	isolate(t)
	t.Setenv("GITHUB_TOKEN", "ghs_fallback")
	t.Setenv("RATEWATCH_TOKEN", "ghp_primary")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Token != "ghp_primary" {
		t.Errorf("Token = %q, want %q", cfg.Token, "ghp_primary")
	}
}

func TestLoad_OverrideWinsOverEnv(t *testing.T) {
	isolate(t)
	t.Setenv("RATEWATCH_POLL_INTERVAL", "5s")

	cfg, err := Load(WithOverride("poll_interval", 7*time.Second))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PollInterval != 7*time.Second {
		t.Errorf("PollInterval = %v, want 7s (override over env)", cfg.PollInterval)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr string
	}{
		{
			name:    "interval below minimum",
			opts:    []Option{WithOverride("poll_interval", 500*time.Millisecond)},
			wantErr: "poll_interval must be at least",
		},
		{
			name:    "negative debounce",
			opts:    []Option{WithOverride("debounce", -time.Second)},
			wantErr: "debounce cannot be negative",
		},
		{
			name:    "lifetime below interval",
			opts:    []Option{WithOverride("max_lifetime", 10*time.Second)},
			wantErr: "max_lifetime must be at least",
		},
		{
			name:    "fetch timeout below minimum",
			opts:    []Option{WithOverride("fetch_timeout", 100*time.Millisecond)},
			wantErr: "fetch_timeout must be at least",
		},
		{
			name:    "empty state dir",
			opts:    []Option{WithOverride("state_dir", "")},
			wantErr: "state_dir is required",
		},
		{
			name:    "unsupported base_url scheme",
			opts:    []Option{WithOverride("base_url", "ftp://example.com")},
			wantErr: "scheme must be http or https",
		},
		{
			name:    "unknown log level",
			opts:    []Option{WithOverride("log_level", "loud")},
			wantErr: "log_level must be",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)

			_, err := Load(tt.opts...)
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestRedactedToken(t *testing.T) {
	unset := &Config{}
	if got := unset.RedactedToken(); got != "(not set)" {
		t.Errorf("RedactedToken() = %q, want %q", got, "(not set)")
	}

	set := &Config{Token: "ghp_supersecret"}
	got := set.RedactedToken()
	if strings.Contains(got, "supersecret") {
		t.Errorf("RedactedToken() = %q, leaks the token", got)
	}
	if got != "****" {
		t.Errorf("RedactedToken() = %q, want %q", got, "****")
	}
}
