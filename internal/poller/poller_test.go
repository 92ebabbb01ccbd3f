package poller

import (
	"bufio"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jpalmerr/ratewatch/internal/diag"
	"github.com/jpalmerr/ratewatch/internal/reducer"
	"github.com/jpalmerr/ratewatch/internal/state"
)

func fakeResponse(used int, reset int64) *reducer.Response {
	return &reducer.Response{Resources: map[string]reducer.Sample{
		"core": {Limit: 5000, Used: used, Remaining: 5000 - used, Reset: reset},
	}}
}

func TestPoller_Perform_Success(t *testing.T) {
	store := state.NewStore(t.TempDir())
	st := reducer.New(1000)

	var gotToken string
	fetch := func(ctx context.Context, token string) (*reducer.Response, error) {
		gotToken = token
		return fakeResponse(10, 4600), nil
	}
	p := NewPoller(fetch, "test-token", store, nil, nil)

	// a pre-existing block must not survive a successful poll
	blocked := Control{SecondaryConsecutive: 2, BlockedUntil: time.Now().Add(time.Hour)}
	c, out := p.Perform(context.Background(), st, blocked)

	if !out.Success || out.Err != nil {
		t.Fatalf("outcome = %+v, want clean success", out)
	}
	if gotToken != "test-token" {
		t.Errorf("token = %q, want test-token", gotToken)
	}
	if c != (Control{}) {
		t.Errorf("control = %+v, want cleared", c)
	}
	if st.PollCount != 1 {
		t.Errorf("PollCount = %v, want 1", st.PollCount)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("state not persisted: %v", err)
	}
	if loaded.Buckets["core"].Limit != 5000 {
		t.Errorf("persisted core limit = %v, want 5000", loaded.Buckets["core"].Limit)
	}
}

func TestPoller_Perform_SecondaryRateLimit(t *testing.T) {
	store := state.NewStore(t.TempDir())
	st := reducer.New(1000)

	fetch := func(ctx context.Context, token string) (*reducer.Response, error) {
		return nil, &StatusError{Details: Details{
			StatusCode: 403,
			Message:    "You have exceeded a secondary rate limit",
		}}
	}
	p := NewPoller(fetch, "tok", store, nil, nil)

	c, out := p.Perform(context.Background(), st, Control{})

	if out.Success {
		t.Error("Success = true, want false")
	}
	if out.Fatal {
		t.Error("Fatal = true on first hit, want false")
	}
	if c.SecondaryConsecutive != 1 {
		t.Errorf("SecondaryConsecutive = %v, want 1", c.SecondaryConsecutive)
	}
	if c.BlockedUntil.IsZero() {
		t.Error("BlockedUntil not set after a throttle")
	}
	if st.SecondaryRateLimitHits != 1 {
		t.Errorf("SecondaryRateLimitHits = %v, want 1", st.SecondaryRateLimitHits)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("state not persisted after failure: %v", err)
	}
	if loaded.PollFailures != 1 {
		t.Errorf("persisted PollFailures = %v, want 1", loaded.PollFailures)
	}
}

// TestPoller_Perform_FatalEscalation verifies the fifth consecutive
// secondary hit tells the daemon to stop.
func TestPoller_Perform_FatalEscalation(t *testing.T) {
	store := state.NewStore(t.TempDir())
	st := reducer.New(1000)

	fetch := func(ctx context.Context, token string) (*reducer.Response, error) {
		return nil, &StatusError{Details: Details{StatusCode: 403, Message: "secondary rate limit"}}
	}
	p := NewPoller(fetch, "tok", store, nil, nil)

	c := Control{}
	var out Outcome
	for i := 0; i < 5; i++ {
		c, out = p.Perform(context.Background(), st, c)
		wantFatal := i == 4
		if out.Fatal != wantFatal {
			t.Errorf("hit %d: Fatal = %v, want %v", i+1, out.Fatal, wantFatal)
		}
	}

	if st.SecondaryRateLimitHits != 5 {
		t.Errorf("SecondaryRateLimitHits = %v, want 5", st.SecondaryRateLimitHits)
	}
}

// TestPoller_Perform_TransportFailure verifies network errors never touch
// the backoff controller: a flaky connection must not defuse (or build) an
// abuse-backoff chain.
func TestPoller_Perform_TransportFailure(t *testing.T) {
	store := state.NewStore(t.TempDir())
	st := reducer.New(1000)

	fetch := func(ctx context.Context, token string) (*reducer.Response, error) {
		return nil, errors.New("dial tcp: connection refused")
	}
	p := NewPoller(fetch, "tok", store, nil, nil)

	before := Control{SecondaryConsecutive: 2}
	c, out := p.Perform(context.Background(), st, before)

	if c != before {
		t.Errorf("control = %+v, want untouched %+v", c, before)
	}
	if out.Success {
		t.Error("Success = true, want false")
	}
	if st.PollFailures != 1 {
		t.Errorf("PollFailures = %v, want 1", st.PollFailures)
	}
	if st.SecondaryRateLimitHits != 0 {
		t.Errorf("SecondaryRateLimitHits = %v, want 0", st.SecondaryRateLimitHits)
	}
	if st.LastError == "" {
		t.Error("LastError empty, want the transport error recorded")
	}
}

func TestPoller_Perform_WritesDiagnostics(t *testing.T) {
	store := state.NewStore(t.TempDir())
	st := reducer.New(1000)

	dw, err := diag.Open(store.DiagPath(), nil)
	if err != nil {
		t.Fatalf("diag.Open() = %v", err)
	}
	defer dw.Close()

	calls := 0
	fetch := func(ctx context.Context, token string) (*reducer.Response, error) {
		calls++
		if calls == 1 {
			return fakeResponse(10, 4600), nil
		}
		return nil, &StatusError{Details: Details{StatusCode: 429, Remaining: intPtr(0)}}
	}
	p := NewPoller(fetch, "tok", store, dw, nil)

	c := Control{}
	c, _ = p.Perform(context.Background(), st, c)
	_, _ = p.Perform(context.Background(), st, c)

	f, err := os.Open(store.DiagPath())
	if err != nil {
		t.Fatalf("open diagnostics: %v", err)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
	}
	if lines != 2 {
		t.Errorf("diagnostics lines = %v, want 2 (snapshot + throttle)", lines)
	}
}

// TestPoller_Perform_PersistFailure verifies a successful poll with a
// failing state directory still reports success, carrying the save error.
func TestPoller_Perform_PersistFailure(t *testing.T) {
	store := state.NewStore("/nonexistent/ratewatch-test")
	st := reducer.New(1000)

	fetch := func(ctx context.Context, token string) (*reducer.Response, error) {
		return fakeResponse(10, 4600), nil
	}
	p := NewPoller(fetch, "tok", store, nil, nil)

	_, out := p.Perform(context.Background(), st, Control{})

	if !out.Success {
		t.Error("Success = false, want true despite save failure")
	}
	if out.Err == nil {
		t.Error("Err = nil, want the save failure surfaced")
	}
}
