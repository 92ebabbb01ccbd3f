package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jpalmerr/ratewatch"
	"github.com/jpalmerr/ratewatch/internal/report"
	"github.com/jpalmerr/ratewatch/internal/state"
	"go.uber.org/zap"
)

func main() {
	// start mock provider (see mock_server.go)
	go StartMockRateLimitServer(":9999")
	time.Sleep(100 * time.Millisecond)

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	stateDir := filepath.Join(os.TempDir(), "ratewatch-demo")

	// 5s polls against the mock: short enough that window crossings and
	// boundary bursts show up while you watch
	rw, err := ratewatch.New(
		ratewatch.WithToken("demo-token"),
		ratewatch.WithBaseURL("http://localhost:9999"),
		ratewatch.WithStateDir(stateDir),
		ratewatch.WithPollInterval(5*time.Second),
		ratewatch.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal("failed to create daemon", zap.Error(err))
	}

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   ratewatch Demo                                      ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Polling http://localhost:9999/rate_limit every 5s   ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   The mock provider:                                  ║")
	fmt.Println("  ║   • rotates bucket windows every 15-60 seconds        ║")
	fmt.Println("  ║   • answers ~5% of polls with a secondary limit       ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop and print the usage table      ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rw.Run(ctx); err != nil {
		logger.Fatal("ratewatch error", zap.Error(err))
	}

	// render what the run accumulated, the same table `ratewatch status` shows
	st, err := state.NewStore(stateDir).Load()
	if err != nil {
		logger.Fatal("failed to load state", zap.Error(err))
	}
	out, err := report.NewFormatter(report.FormatTable).Format(report.Build(st, time.Now()))
	if err != nil {
		logger.Fatal("failed to render report", zap.Error(err))
	}
	fmt.Println()
	fmt.Print(out)
}
