package poller

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/jpalmerr/ratewatch/internal/diag"
	"github.com/jpalmerr/ratewatch/internal/reducer"
	"github.com/jpalmerr/ratewatch/internal/state"
)

// Outcome summarises one poll attempt for the daemon loop.
type Outcome struct {
	// Success is true when the provider answered and the state was reduced.
	Success bool

	// Fatal is true when the backoff controller decided the run must stop.
	Fatal bool

	// Updates holds the per-bucket effects of a successful poll.
	Updates []reducer.Update

	// Err carries the failure, or a persistence error on an otherwise
	// successful poll.
	Err error
}

// Poller performs one poll attempt end to end: fetch, reduce or classify,
// persist, and emit diagnostics.
type Poller struct {
	fetch  FetchFunc
	token  string
	store  *state.Store
	diag   *diag.Writer
	logger *zap.Logger
	now    func() time.Time
}

// NewPoller wires a poll pipeline. The diagnostics writer may be nil to
// disable diagnostics; a nil logger defaults to a no-op logger.
func NewPoller(fetch FetchFunc, token string, store *state.Store, dw *diag.Writer, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		fetch:  fetch,
		token:  token,
		store:  store,
		diag:   dw,
		logger: logger,
		now:    time.Now,
	}
}

// Perform runs one poll attempt against st and returns the updated backoff
// control with the outcome. st is mutated and persisted either way. A
// persistence failure after a successful fetch is reported in the outcome
// but does not fail the poll: mid-run state is best effort, the next save
// catches up.
func (p *Poller) Perform(ctx context.Context, st *reducer.State, c Control) (Control, Outcome) {
	start := p.now()
	resp, err := p.fetch(ctx, p.token)
	if err != nil {
		if ctx.Err() != nil {
			// the daemon is shutting down, not a real poll failure
			return c, Outcome{Err: err}
		}
		return p.performFailure(st, c, err, p.now())
	}

	now := p.now()
	ts := now.Unix()
	updates := st.Reduce(resp, ts)

	out := Outcome{Success: true, Updates: updates}
	if err := p.store.Save(st); err != nil {
		p.logger.Warn("failed to persist state", zap.Error(err))
		out.Err = err
	}

	p.logSuccess(st, resp, updates, now.Sub(start))
	p.diag.Snapshot(ts, st.Attempts(), st, updates)

	// a successful poll clears any backoff block
	return Control{}, out
}

func (p *Poller) performFailure(st *reducer.State, c Control, err error, now time.Time) (Control, Outcome) {
	out := Outcome{Err: err}
	ts := now.Unix()

	var se *StatusError
	if !errors.As(err, &se) {
		// transport or decode failure; the controller only reacts to
		// classified provider responses
		st.RecordFailure(err.Error(), false)
		p.logger.Warn("poll failed", zap.Error(err))
		p.saveAfterFailure(st)
		return c, out
	}

	kind := Classify(&se.Details)
	if kind == "" {
		st.RecordFailure(se.Error(), false)
		p.logger.Warn("poll failed", zap.Int("status", se.Details.StatusCode), zap.Error(err))
		p.saveAfterFailure(st)
		return c, out
	}

	var dec Decision
	c, dec = Handle(c, &se.Details, now)
	st.RecordFailure(se.Error(), kind == KindSecondary)
	out.Fatal = dec.Fatal

	p.logger.Warn("rate limited",
		zap.String("kind", string(kind)),
		zap.Int("status", se.Details.StatusCode),
		zap.Duration("wait", dec.Wait),
		zap.Int("consecutive", dec.Consecutive),
		zap.Bool("fatal", dec.Fatal),
	)
	p.diag.Throttle(ts, st.Attempts(), diag.ThrottleRecord{
		Status:       se.Details.StatusCode,
		Kind:         string(kind),
		Message:      se.Details.Message,
		WaitMs:       dec.Wait.Milliseconds(),
		BlockedUntil: dec.BlockedUntil.Unix(),
		Consecutive:  dec.Consecutive,
		Fatal:        dec.Fatal,
	})

	p.saveAfterFailure(st)
	return c, out
}

func (p *Poller) saveAfterFailure(st *reducer.State) {
	if err := p.store.Save(st); err != nil {
		p.logger.Warn("failed to persist state", zap.Error(err))
	}
}

func (p *Poller) logSuccess(st *reducer.State, resp *reducer.Response, updates []reducer.Update, latency time.Duration) {
	for _, u := range updates {
		if u.WindowCrossed {
			p.logger.Info("window reset crossed",
				zap.String("bucket", u.Bucket),
				zap.Int("delta", u.Delta),
				zap.Int("total_used", st.Buckets[u.Bucket].TotalUsed),
			)
		}
		if u.Anomaly {
			p.logger.Info("usage anomaly", zap.String("bucket", u.Bucket))
		}
	}

	fields := []zap.Field{
		zap.Int("poll", st.PollCount),
		zap.Duration("latency", latency),
	}
	if core, ok := resp.Core(); ok {
		fields = append(fields, zap.Int("core_remaining", core.Remaining))
	}
	p.logger.Debug("poll complete", fields...)
}
