package main

import (
	"github.com/jpalmerr/ratewatch/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// resolveConfig loads the effective configuration for a command: defaults,
// then an optional YAML file, then RATEWATCH_* environment variables, then
// any flags the user set explicitly.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	var opts []config.Option

	if file, _ := cmd.Flags().GetString("config"); file != "" {
		opts = append(opts, config.WithFile(file))
	}
	if cmd.Flags().Changed("state-dir") {
		dir, _ := cmd.Flags().GetString("state-dir")
		opts = append(opts, config.WithOverride("state_dir", dir))
	}
	if cmd.Flags().Changed("interval") {
		d, _ := cmd.Flags().GetDuration("interval")
		opts = append(opts, config.WithOverride("poll_interval", d))
	}
	if cmd.Flags().Changed("diagnostics") {
		on, _ := cmd.Flags().GetBool("diagnostics")
		opts = append(opts, config.WithOverride("diagnostics", on))
	}

	return config.Load(opts...)
}

// newCLILogger creates a console logger on stderr for interactive commands.
// Command results go to stdout via fmt; the logger carries progress and
// warnings only.
func newCLILogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.DisableCaller = true
	cfg.DisableStacktrace = true

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// newDaemonLogger creates the JSON file logger the detached daemon writes
// to. The daemon's stdio is detached from the job, so the log file is its
// only output channel; rotation keeps it bounded on long runs.
func newDaemonLogger(path, level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	sink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 2,
		MaxAge:     7, // days
	})

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), sink, lvl)

	return zap.New(core)
}
