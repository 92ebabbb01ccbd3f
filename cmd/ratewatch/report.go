package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jpalmerr/ratewatch/internal/report"
	"github.com/jpalmerr/ratewatch/internal/state"
	"github.com/spf13/cobra"
)

// reportCmd renders the markdown usage summary for the job log.
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render the markdown usage summary",
	Long: `Render the run's usage summary as GitHub-flavored markdown.

The output destination is resolved in order: --out, then the
GITHUB_STEP_SUMMARY environment variable (set by GitHub Actions), then
stdout. File destinations are appended to, matching how Actions treats
the step summary file.

With --fail-on-anomalies the command exits non-zero when any bucket
recorded a usage anomaly, so a job can surface miscounted windows.

Example:
  ratewatch report
  ratewatch report --out usage.md
  ratewatch report --fail-on-anomalies`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().String("out", "", "file to append the summary to (default: $GITHUB_STEP_SUMMARY or stdout)")
	reportCmd.Flags().Bool("fail-on-anomalies", false, "exit non-zero when any bucket recorded anomalies")
}

func runReport(cmd *cobra.Command, args []string) error {
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

	rep := report.Build(st, time.Now())
	md, err := report.NewFormatter(report.FormatMarkdown).Format(rep)
	if err != nil {
		return err
	}

	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		out = os.Getenv("GITHUB_STEP_SUMMARY")
	}
	if out == "" {
		fmt.Print(md)
	} else {
		if err := appendToFile(out, md); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
		fmt.Printf("usage summary appended to %s\n", out)
	}

	if failOn, _ := cmd.Flags().GetBool("fail-on-anomalies"); failOn {
		var anomalies int
		for _, row := range rep.Rows {
			anomalies += row.Anomalies
		}
		if anomalies > 0 {
			return fmt.Errorf("%d usage anomalies recorded; see the summary table", anomalies)
		}
	}
	return nil
}

func appendToFile(path, content string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
