package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jpalmerr/ratewatch/config"
	"github.com/jpalmerr/ratewatch/internal/proc"
	"github.com/jpalmerr/ratewatch/internal/reducer"
	"github.com/jpalmerr/ratewatch/internal/state"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// startCmd spawns the polling daemon as a detached background process.
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the polling daemon in the background",
	Long: `Start the polling daemon as a detached background process.

The command writes a baseline state snapshot, spawns "ratewatch run" with
the resolved configuration frozen into its environment, records the child's
PID for a later "ratewatch stop", and waits until the daemon confirms it
booted by stamping the state file.

Requires a token (RATEWATCH_TOKEN or GITHUB_TOKEN).

Example:
  ratewatch start
  ratewatch start --interval 15s --diagnostics
  ratewatch start --no-wait`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().Duration("interval", 0, "baseline poll interval (overrides config)")
	startCmd.Flags().Bool("diagnostics", false, "write a per-poll NDJSON trace (overrides config)")
	startCmd.Flags().Bool("no-wait", false, "do not wait for the daemon's startup confirmation")
}

func runStart(cmd *cobra.Command, args []string) error {
	logger := newCLILogger()
	defer func() { _ = logger.Sync() }()

	cfg, err := resolveConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Token == "" {
		return errors.New("a token is required to poll; set RATEWATCH_TOKEN or GITHUB_TOKEN")
	}

	store := state.NewStore(cfg.StateDir)
	if err := store.EnsureDir(); err != nil {
		return err
	}

	// refuse to double-start; clean up a PID left by a crashed run
	if pid, err := store.ReadPID(); err == nil {
		alive, _ := proc.Alive(pid)
		if alive {
			return fmt.Errorf("ratewatch is already running with PID %d (state dir %s)", pid, cfg.StateDir)
		}
		logger.Warn("removing stale PID file", zap.Int("pid", pid))
		_ = store.RemovePID()
	}

	// The parent writes the very first snapshot; the daemon takes over
	// write ownership from its first poll on.
	st := reducer.New(time.Now().Unix())
	if err := store.Save(st); err != nil {
		return fmt.Errorf("failed to write baseline state: %w", err)
	}

	pid, err := proc.Spawn(proc.SpawnOptions{
		Args: []string{"run"},
		Env:  daemonEnv(cfg),
		Dir:  cfg.StateDir,
	})
	if err != nil {
		return fmt.Errorf("failed to spawn daemon: %w", err)
	}

	if err := store.WritePID(pid); err != nil {
		// without the PID file the stop hook could never find the child,
		// so don't leave it running
		_ = proc.Kill(pid)
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	if noWait, _ := cmd.Flags().GetBool("no-wait"); noWait {
		fmt.Printf("ratewatch daemon spawned (PID %d), not waiting for startup\n", pid)
		return nil
	}

	if err := store.WaitForPollerStart(state.DefaultStartupTimeout); err != nil {
		return fmt.Errorf("daemon did not confirm startup: %w (log: %s)", err, store.LogPath())
	}

	fmt.Printf("ratewatch daemon started (PID %d)\n", pid)
	fmt.Printf("  run id: %s\n", st.RunID)
	fmt.Printf("  state:  %s\n", store.StatePath())
	return nil
}

// daemonEnv freezes the resolved configuration into RATEWATCH_* variables
// for the child, replacing any ambient values so the daemon cannot resolve
// a different configuration than the one start validated.
func daemonEnv(cfg *config.Config) []string {
	overrides := map[string]string{
		"RATEWATCH_TOKEN":         cfg.Token,
		"RATEWATCH_BASE_URL":      cfg.BaseURL,
		"RATEWATCH_STATE_DIR":     cfg.StateDir,
		"RATEWATCH_POLL_INTERVAL": cfg.PollInterval.String(),
		"RATEWATCH_DEBOUNCE":      cfg.Debounce.String(),
		"RATEWATCH_MAX_LIFETIME":  cfg.MaxLifetime.String(),
		"RATEWATCH_FETCH_TIMEOUT": cfg.FetchTimeout.String(),
		"RATEWATCH_DIAGNOSTICS":   strconv.FormatBool(cfg.Diagnostics),
		"RATEWATCH_LOG_LEVEL":     cfg.LogLevel,
	}

	env := make([]string, 0, len(overrides)+len(os.Environ()))
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[key]; ok {
			continue
		}
		env = append(env, kv)
	}
	for key, value := range overrides {
		env = append(env, key+"="+value)
	}
	return env
}
