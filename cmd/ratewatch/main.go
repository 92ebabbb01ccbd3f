// Package main is the entry point for the ratewatch CLI.
//
// ratewatch watches a GitHub-style /rate_limit endpoint for the duration of
// a CI job and turns the provider's noisy window counters into stable
// per-bucket usage totals. The usual shape is a daemon spawned at the start
// of a job and stopped at the end:
//
//	ratewatch start     # spawn the polling daemon in the background
//	...the job runs...
//	ratewatch stop      # stop the daemon and finalize the state file
//	ratewatch report    # render the usage summary for the job log
//
// Additional commands:
//
//	ratewatch run       # run the daemon in the foreground
//	ratewatch status    # show current usage (table/json/yaml/markdown)
//	ratewatch validate  # check the effective configuration
//	ratewatch version   # show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "ratewatch",
	Short: "Track API rate-limit usage for the lifetime of a CI job",
	Long: `ratewatch polls the provider's rate-limit endpoint in the background and
reduces the raw counters into per-bucket usage totals that survive window
resets.

Quick start in a CI job:

  ratewatch start                # before the work
  ...                            # the job spends API quota
  ratewatch stop                 # after the work
  ratewatch report               # markdown summary, e.g. into $GITHUB_STEP_SUMMARY

Configuration comes from RATEWATCH_* environment variables, an optional
ratewatch.yaml, and flags. The token is read from RATEWATCH_TOKEN or
GITHUB_TOKEN.`,
	// No Run/RunE means this just shows help when called without subcommands
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this ratewatch binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ratewatch %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to config file (default: ./ratewatch.yaml if present)")
	rootCmd.PersistentFlags().String("state-dir", "", "directory for state, PID and log files (overrides config)")

	rootCmd.AddCommand(versionCmd)
}
