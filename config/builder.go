package config

import (
	"github.com/jpalmerr/ratewatch"
)

// BuildOptions converts a resolved Config into the option list for
// [ratewatch.New].
//
// Logging settings are not part of the list: the CLI owns logger
// construction and passes it separately via [ratewatch.WithLogger].
func BuildOptions(cfg *Config) []ratewatch.Option {
	opts := []ratewatch.Option{
		ratewatch.WithToken(cfg.Token),
		ratewatch.WithBaseURL(cfg.BaseURL),
		ratewatch.WithStateDir(cfg.StateDir),
		ratewatch.WithPollInterval(cfg.PollInterval),
		ratewatch.WithDebounce(cfg.Debounce),
		ratewatch.WithMaxLifetime(cfg.MaxLifetime),
		ratewatch.WithFetchTimeout(cfg.FetchTimeout),
	}
	if cfg.Diagnostics {
		opts = append(opts, ratewatch.WithDiagnostics(true))
	}
	return opts
}
