package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/jpalmerr/ratewatch/internal/proc"
	"github.com/jpalmerr/ratewatch/internal/report"
	"github.com/jpalmerr/ratewatch/internal/state"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// stopCmd terminates the background daemon and finalizes the state file.
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background daemon and finalize the state file",
	Long: `Stop the background daemon started by "ratewatch start".

The daemon is sent SIGTERM and given a grace period to flush its state;
if it does not exit in time it is killed and the state file is finalized
here instead. A missing PID file means nothing is running, which is not
an error: the stop hook must be safe to call unconditionally.

Example:
  ratewatch stop`,
	RunE: runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	logger := newCLILogger()
	defer func() { _ = logger.Sync() }()

	cfg, err := resolveConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store := state.NewStore(cfg.StateDir)
	pid, err := store.ReadPID()
	if errors.Is(err, state.ErrNotFound) {
		fmt.Println("ratewatch is not running (no PID file)")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read PID file: %w", err)
	}

	res, err := proc.KillWithVerification(pid, proc.DefaultKillGrace)
	switch {
	case errors.Is(err, proc.ErrNotFound):
		logger.Warn("daemon already exited", zap.Int("pid", pid))
	case err != nil:
		return fmt.Errorf("failed to stop daemon: %w", err)
	case res.Escalated:
		logger.Warn("daemon ignored SIGTERM, killed", zap.Int("pid", pid))
	default:
		fmt.Printf("ratewatch daemon stopped (PID %d)\n", pid)
	}

	_ = store.RemovePID()

	// the daemon finalizes on SIGTERM; cover the paths where it could not
	st, err := store.Load()
	switch {
	case errors.Is(err, state.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("failed to load state: %w", err)
	}
	if st.StoppedAt == 0 {
		st.MarkStopped(time.Now().Unix())
		if err := store.Save(st); err != nil {
			return fmt.Errorf("failed to finalize state: %w", err)
		}
	}

	rep := report.Build(st, time.Now())
	fmt.Printf("  polls: %d ok / %d failed, %d requests attributed across %d buckets\n",
		rep.PollCount, rep.PollFailures, rep.TotalUsed, len(rep.Rows))
	fmt.Printf("  state: %s\n", store.StatePath())
	return nil
}
