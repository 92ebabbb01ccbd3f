package ratewatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/jpalmerr/ratewatch/internal/diag"
	"github.com/jpalmerr/ratewatch/internal/poller"
	"github.com/jpalmerr/ratewatch/internal/reducer"
	"github.com/jpalmerr/ratewatch/internal/state"
)

const (
	defaultBaseURL      = "https://api.github.com"
	defaultPollInterval = 30 * time.Second
	defaultDebounce     = 2 * time.Second
	defaultMaxLifetime  = 6 * time.Hour
	defaultFetchTimeout = 10 * time.Second
)

// ErrSecondaryLimit is returned by [Daemon.Run] when the provider kept
// answering with secondary rate limits and the backoff controller gave up.
// The final state snapshot is persisted before Run returns it.
var ErrSecondaryLimit = errors.New("giving up after repeated secondary rate limits")

// Daemon is the rate-limit polling loop.
//
// A Daemon polls the provider's rate-limit endpoint, reduces each response
// into monotonic per-bucket usage totals, and persists the result after
// every poll. It is created with [New] and driven with [Daemon.Run].
//
// The typical lifecycle is:
//
//	rw, err := ratewatch.New(ratewatch.WithToken(token))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
//	defer stop()
//
//	err = rw.Run(ctx) // blocks until stopped
//
// The caller controls shutdown via the context; the daemon additionally
// stops on its own when the configured max lifetime passes or when
// throttling escalates to fatal.
type Daemon struct {
	token        string
	baseURL      string
	pollInterval time.Duration
	debounce     time.Duration
	maxLifetime  time.Duration
	fetchTimeout time.Duration
	diagnostics  bool
	logger       *zap.Logger
	store        *state.Store
}

// New creates a [Daemon] with the given options.
//
// All options have defaults: polling against https://api.github.com every
// 30s with a 2s debounce, a 6h lifetime cap, state under the system temp
// directory, no token, and no logging. Returns an error if any option is
// invalid.
func New(opts ...Option) (*Daemon, error) {
	cfg := &dConfig{
		baseURL:      defaultBaseURL,
		stateDir:     filepath.Join(os.TempDir(), "ratewatch"),
		pollInterval: defaultPollInterval,
		debounce:     defaultDebounce,
		maxLifetime:  defaultMaxLifetime,
		fetchTimeout: defaultFetchTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.maxLifetime < cfg.pollInterval {
		return nil, fmt.Errorf("max lifetime %s is shorter than the poll interval %s",
			cfg.maxLifetime, cfg.pollInterval)
	}

	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Daemon{
		token:        cfg.token,
		baseURL:      cfg.baseURL,
		pollInterval: cfg.pollInterval,
		debounce:     cfg.debounce,
		maxLifetime:  cfg.maxLifetime,
		fetchTimeout: cfg.fetchTimeout,
		diagnostics:  cfg.diagnostics,
		logger:       logger,
		store:        state.NewStore(cfg.stateDir),
	}, nil
}

// StateDir returns the directory holding the daemon's files.
func (d *Daemon) StateDir() string {
	return d.store.Dir()
}

// PollInterval returns the configured baseline interval between polls.
func (d *Daemon) PollInterval() time.Duration {
	return d.pollInterval
}

// Run executes the polling loop until the context is cancelled, the max
// lifetime passes, or throttling escalates to fatal.
//
// On startup Run loads the state file if one exists (the spawning process
// may have written a baseline snapshot) and otherwise starts fresh, then
// records poller_started_at_ts before the first network call so the
// spawning process can verify the daemon booted.
//
// Run always finalizes: the state is marked stopped and persisted on every
// exit path. Returns nil on cancellation or lifetime expiry, and
// [ErrSecondaryLimit] when the backoff controller aborted the run.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info("ratewatch starting",
		zap.String("base_url", d.baseURL),
		zap.String("state_dir", d.store.Dir()),
		zap.Duration("poll_interval", d.pollInterval),
		zap.Duration("max_lifetime", d.maxLifetime),
	)

	if err := d.store.EnsureDir(); err != nil {
		return err
	}

	st, err := d.store.Load()
	switch {
	case errors.Is(err, state.ErrNotFound):
		st = reducer.New(time.Now().Unix())
		d.logger.Info("no existing state, starting fresh", zap.String("run_id", st.RunID))
	case err != nil:
		// a malformed state file is a setup problem, not something to
		// silently overwrite
		return fmt.Errorf("failed to load state: %w", err)
	default:
		d.logger.Info("resuming existing state",
			zap.String("run_id", st.RunID),
			zap.Int("poll_count", st.PollCount),
		)
	}

	// Liveness marker, persisted before any network call so the spawning
	// process can tell a slow first poll from a dead child.
	st.PollerStartedAt = time.Now().Unix()
	st.StoppedAt = 0
	if err := d.store.Save(st); err != nil {
		return fmt.Errorf("failed to persist startup marker: %w", err)
	}

	client := poller.NewClient(d.baseURL, d.fetchTimeout)
	defer client.Close()

	var dw *diag.Writer
	if d.diagnostics {
		w, err := diag.Open(d.store.DiagPath(), d.logger)
		if err != nil {
			d.logger.Warn("diagnostics disabled", zap.Error(err))
		} else {
			dw = w
			defer dw.Close()
		}
	}

	p := poller.NewPoller(client.Fetch, d.token, d.store, dw, d.logger)

	runCtx, cancel := context.WithTimeout(ctx, d.maxLifetime)
	defer cancel()

	loopErr := d.loop(runCtx, p, st)

	switch {
	case loopErr != nil:
	case ctx.Err() != nil:
		d.logger.Info("shutdown signal received")
	case runCtx.Err() == context.DeadlineExceeded:
		d.logger.Info("max lifetime reached", zap.Duration("lifetime", d.maxLifetime))
	}

	st.MarkStopped(time.Now().Unix())
	if err := d.store.Save(st); err != nil {
		d.logger.Error("failed to persist final state", zap.Error(err))
		if loopErr == nil {
			loopErr = fmt.Errorf("failed to persist final state: %w", err)
		}
	}

	if loopErr != nil {
		d.logger.Error("ratewatch aborted", zap.Error(loopErr))
		return loopErr
	}

	d.logger.Info("ratewatch stopped",
		zap.Int("polls", st.PollCount),
		zap.Int("failures", st.PollFailures),
	)
	return nil
}

// loop drives poll cycles until the context ends or a poll is fatal.
func (d *Daemon) loop(ctx context.Context, p *poller.Poller, st *reducer.State) error {
	// Immediate baseline poll: the first snapshot anchors every bucket's
	// first_used/first_remaining before any waiting happens.
	ctrl, out := p.Perform(ctx, st, poller.Control{})
	if out.Fatal {
		return ErrSecondaryLimit
	}

	for {
		plan := poller.ComputePlan(st, d.pollInterval, time.Now())
		plan = poller.ApplyDebounce(plan, d.debounce)
		plan = poller.Gate(plan, ctrl, time.Now())

		if err := sleepCtx(ctx, plan.Sleep); err != nil {
			return nil
		}
		ctrl, out = p.Perform(ctx, st, ctrl)
		if out.Fatal {
			return ErrSecondaryLimit
		}

		if plan.Burst {
			// second half of the bracket: poll again shortly after the
			// boundary the previous poll targeted
			if err := sleepCtx(ctx, plan.BurstGap); err != nil {
				return nil
			}
			ctrl, out = p.Perform(ctx, st, ctrl)
			if out.Fatal {
				return ErrSecondaryLimit
			}
		}
	}
}

// sleepCtx sleeps for dur or until the context ends, whichever comes first.
func sleepCtx(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
