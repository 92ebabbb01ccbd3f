package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jpalmerr/ratewatch/internal/reducer"
	"github.com/jpalmerr/ratewatch/internal/state"
)

// isolate gives the test a clean working directory and strips ambient
// credentials and CI variables so host configuration cannot leak in.
func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("RATEWATCH_TOKEN", "")
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GITHUB_STEP_SUMMARY", "")
}

// executeCmd runs the root command with the given args and returns captured
// stdout and any error. Flag values persist on the shared command tree
// between invocations, so the volatile ones are reset afterwards; tests
// always pass --state-dir explicitly for the same reason.
func executeCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	// capture stdout
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	rootCmd.SetArgs(args)
	err := rootCmd.Execute()

	// restore stdout
	_ = w.Close()
	os.Stdout = old
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)

	_ = rootCmd.PersistentFlags().Set("config", "")
	_ = reportCmd.Flags().Set("out", "")
	_ = reportCmd.Flags().Set("fail-on-anomalies", "false")
	_ = statusCmd.Flags().Set("output", "table")

	return buf.String(), err
}

// seedState writes a small finished-run state file into dir: two successful
// polls over the core and search buckets, then a clean stop.
func seedState(t *testing.T, dir string) *reducer.State {
	t.Helper()

	store := state.NewStore(dir)
	if err := store.EnsureDir(); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}

	now := time.Now().Unix()
	st := reducer.New(now - 120)
	st.PollerStartedAt = now - 119
	st.Reduce(&reducer.Response{Resources: map[string]reducer.Sample{
		"core":   {Limit: 5000, Used: 12, Remaining: 4988, Reset: now + 1800},
		"search": {Limit: 30, Used: 0, Remaining: 30, Reset: now + 60},
	}}, now-119)
	st.Reduce(&reducer.Response{Resources: map[string]reducer.Sample{
		"core":   {Limit: 5000, Used: 40, Remaining: 4960, Reset: now + 1800},
		"search": {Limit: 30, Used: 2, Remaining: 28, Reset: now + 60},
	}}, now-60)
	st.MarkStopped(now - 30)

	if err := store.Save(st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	return st
}

func TestRunValidate_Defaults(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	output, err := executeCmd(t, "validate", "--state-dir", dir)
	if err != nil {
		t.Fatalf("validate command error = %v", err)
	}

	expectedPhrases := []string{
		"Config is valid!",
		"Token:         (not set)",
		"Base URL:      https://api.github.com",
		"Poll interval: 30s",
		"no token is set",
	}
	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, output)
		}
	}
}

func TestRunValidate_ConfigFile(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	t.Setenv("RATEWATCH_TOKEN", "ghp_secret")

	configPath := filepath.Join(t.TempDir(), "ratewatch.yaml")
	configContent := `
poll_interval: 45s
debounce: 5s
log_level: debug
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	output, err := executeCmd(t, "validate", "-c", configPath, "--state-dir", dir)
	if err != nil {
		t.Fatalf("validate command error = %v", err)
	}

	expectedPhrases := []string{
		"Config is valid!",
		"Token:         ****",
		"Poll interval: 45s",
		"Debounce:      5s",
		"Log level:     debug",
		"Config file:   " + configPath,
	}
	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, output)
		}
	}
	if strings.Contains(output, "ghp_secret") {
		t.Error("output leaked the raw token")
	}
}

func TestRunValidate_InvalidConfig(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(configPath, []byte("poll_interval: 200ms\n"), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	_, err := executeCmd(t, "validate", "-c", configPath, "--state-dir", dir)
	if err == nil {
		t.Fatal("validate command expected error for invalid config, got nil")
	}
	if !strings.Contains(err.Error(), "poll_interval must be at least") {
		t.Errorf("error should mention the interval floor, got: %v", err)
	}
}

func TestRunStatus_RendersTable(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	st := seedState(t, dir)

	output, err := executeCmd(t, "status", "--state-dir", dir, "-o", "table")
	if err != nil {
		t.Fatalf("status command error = %v", err)
	}

	for _, phrase := range []string{"run " + st.RunID, "core", "search", "polls 2 ok / 0 failed"} {
		if !strings.Contains(output, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, output)
		}
	}
}

func TestRunStatus_NoState(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	_, err := executeCmd(t, "status", "--state-dir", dir, "-o", "table")
	if err == nil {
		t.Fatal("status command expected error without state, got nil")
	}
	if !strings.Contains(err.Error(), "has ratewatch been started?") {
		t.Errorf("error should point at the missing state, got: %v", err)
	}
}

func TestRunStatus_UnsupportedFormat(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	seedState(t, dir)

	_, err := executeCmd(t, "status", "--state-dir", dir, "-o", "xml")
	if err == nil {
		t.Fatal("status command expected error for unknown format, got nil")
	}
	if !strings.Contains(err.Error(), "unsupported output format") {
		t.Errorf("error should mention the format, got: %v", err)
	}
}

func TestRunReport_WritesToStdout(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	seedState(t, dir)

	output, err := executeCmd(t, "report", "--state-dir", dir)
	if err != nil {
		t.Fatalf("report command error = %v", err)
	}

	for _, phrase := range []string{"### API rate limit usage", "| core |", "Requests attributed"} {
		if !strings.Contains(output, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, output)
		}
	}
}

func TestRunReport_AppendsToOutFile(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	seedState(t, dir)

	out := filepath.Join(t.TempDir(), "summary.md")
	if err := os.WriteFile(out, []byte("# Job summary\n"), 0o644); err != nil {
		t.Fatalf("failed to seed summary file: %v", err)
	}

	output, err := executeCmd(t, "report", "--state-dir", dir, "--out", out)
	if err != nil {
		t.Fatalf("report command error = %v", err)
	}
	if !strings.Contains(output, "usage summary appended to") {
		t.Errorf("stdout should confirm the destination, got: %s", output)
	}

	content, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("failed to read summary file: %v", err)
	}
	if !strings.HasPrefix(string(content), "# Job summary\n") {
		t.Error("existing summary content was not preserved")
	}
	if !strings.Contains(string(content), "### API rate limit usage") {
		t.Errorf("summary file missing the report section\nGot: %s", content)
	}
}

func TestRunReport_UsesStepSummaryEnv(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	seedState(t, dir)

	out := filepath.Join(t.TempDir(), "step_summary")
	t.Setenv("GITHUB_STEP_SUMMARY", out)

	if _, err := executeCmd(t, "report", "--state-dir", dir); err != nil {
		t.Fatalf("report command error = %v", err)
	}

	content, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("failed to read step summary: %v", err)
	}
	if !strings.Contains(string(content), "| core |") {
		t.Errorf("step summary missing bucket rows\nGot: %s", content)
	}
}

func TestRunReport_FailOnAnomalies(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	st := seedState(t, dir)

	// clean run: the flag is a no-op
	if _, err := executeCmd(t, "report", "--state-dir", dir, "--fail-on-anomalies"); err != nil {
		t.Fatalf("report command error on clean state = %v", err)
	}

	// a used counter dropping inside the same window is an anomaly
	now := time.Now().Unix()
	core := st.Buckets["core"]
	st.Reduce(&reducer.Response{Resources: map[string]reducer.Sample{
		"core": {Limit: 5000, Used: core.LastUsed - 5, Remaining: 4965, Reset: core.LastReset},
	}}, now)
	store := state.NewStore(dir)
	if err := store.Save(st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	_, err := executeCmd(t, "report", "--state-dir", dir, "--fail-on-anomalies")
	if err == nil {
		t.Fatal("report command expected error for anomalous state, got nil")
	}
	if !strings.Contains(err.Error(), "usage anomalies recorded") {
		t.Errorf("error should mention anomalies, got: %v", err)
	}
}

func TestVersionCmd(t *testing.T) {
	output, err := executeCmd(t, "version")
	if err != nil {
		t.Fatalf("version command error = %v", err)
	}
	if !strings.Contains(output, "ratewatch dev") {
		t.Errorf("output missing version line\nGot: %s", output)
	}
	if !strings.Contains(output, "commit: none") {
		t.Errorf("output missing commit line\nGot: %s", output)
	}
}
