package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/jpalmerr/ratewatch/internal/report"
	"github.com/jpalmerr/ratewatch/internal/state"
	"github.com/spf13/cobra"
)

// statusCmd renders the current reduced state.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current rate-limit usage",
	Long: `Show the per-bucket usage recorded so far, whether the daemon is still
running or already stopped.

Example:
  ratewatch status
  ratewatch status --output json`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringP("output", "o", "table", "output format: table, markdown, json, or yaml")
}

func runStatus(cmd *cobra.Command, args []string) error {
	value, _ := cmd.Flags().GetString("output")
	format, err := report.ParseFormat(value)
	if err != nil {
		return err
	}

	cfg, err := resolveConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store := state.NewStore(cfg.StateDir)
	st, err := store.Load()
	if errors.Is(err, state.ErrNotFound) {
		return fmt.Errorf("no state found in %s; has ratewatch been started?", cfg.StateDir)
	}
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	out, err := report.NewFormatter(format).Format(report.Build(st, time.Now()))
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}
