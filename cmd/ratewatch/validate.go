package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// validateCmd resolves the effective config without starting anything.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the effective configuration",
	Long: `Resolve and validate the ratewatch configuration without starting the
daemon. Defaults, the config file, and RATEWATCH_* environment variables
are all applied, so the output shows exactly what start would use.

It's useful for catching CI misconfiguration before a job depends on the
telemetry being collected.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  ratewatch validate
  ratewatch validate -c ratewatch.yaml
  RATEWATCH_POLL_INTERVAL=10s ratewatch validate`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  Token:         %s\n", cfg.RedactedToken())
	fmt.Printf("  Base URL:      %s\n", cfg.BaseURL)
	fmt.Printf("  State dir:     %s\n", cfg.StateDir)
	fmt.Printf("  Poll interval: %s\n", cfg.PollInterval)
	fmt.Printf("  Debounce:      %s\n", cfg.Debounce)
	fmt.Printf("  Max lifetime:  %s\n", cfg.MaxLifetime)
	fmt.Printf("  Fetch timeout: %s\n", cfg.FetchTimeout)
	fmt.Printf("  Diagnostics:   %t\n", cfg.Diagnostics)
	fmt.Printf("  Log level:     %s\n", cfg.LogLevel)
	if cfg.File != "" {
		fmt.Printf("  Config file:   %s\n", cfg.File)
	}
	if cfg.Token == "" {
		fmt.Printf("\nNote: no token is set; start and run will refuse to poll.\n")
	}

	return nil
}
