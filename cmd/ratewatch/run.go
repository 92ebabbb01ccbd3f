package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/jpalmerr/ratewatch"
	"github.com/jpalmerr/ratewatch/config"
	"github.com/jpalmerr/ratewatch/internal/state"
	"github.com/spf13/cobra"
)

// runCmd runs the polling daemon in the foreground.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the polling daemon in the foreground",
	Long: `Run the polling daemon in the foreground.

This is the process "ratewatch start" spawns in the background, but it can
also be run directly, e.g. under a process supervisor or for debugging.

The daemon will:
  - Load existing state from the state directory, or start fresh
  - Poll the provider's rate-limit endpoint, tightening around window resets
  - Persist the reduced state atomically after every poll

It runs until interrupted (SIGTERM/SIGINT), the max lifetime passes, or
the provider's secondary rate limiting escalates to fatal.

Logs go to daemon.log in the state directory.

Example:
  ratewatch run
  ratewatch run --interval 15s --diagnostics`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Duration("interval", 0, "baseline poll interval (overrides config)")
	runCmd.Flags().Bool("diagnostics", false, "write a per-poll NDJSON trace (overrides config)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Token == "" {
		return errors.New("a token is required to poll; set RATEWATCH_TOKEN or GITHUB_TOKEN")
	}

	// the log file lives next to the state file, so the directory must
	// exist before the logger does
	store := state.NewStore(cfg.StateDir)
	if err := store.EnsureDir(); err != nil {
		return err
	}

	logger := newDaemonLogger(store.LogPath(), cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	opts := append(config.BuildOptions(cfg), ratewatch.WithLogger(logger))
	rw, err := ratewatch.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	// cancel on SIGTERM (the stop command) or SIGINT (foreground ^C)
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	return rw.Run(ctx)
}
