package poller

import (
	"net/http"
	"strings"
	"time"
)

const (
	// conservativeBackoff is the flat wait applied to any throttled
	// response that carries no better hint.
	conservativeBackoff = 60 * time.Second

	// secondaryFatalAfter is the number of consecutive secondary-limit
	// hits after which the daemon gives up rather than keep doubling.
	secondaryFatalAfter = 5
)

// Kind classifies a throttled provider response.
type Kind string

const (
	// KindPrimary is the ordinary quota limit: remaining hit zero and the
	// window reset tells us when capacity returns.
	KindPrimary Kind = "primary"

	// KindSecondary is the abuse-detection limit. Repeated hits escalate
	// exponentially and eventually stop the daemon.
	KindSecondary Kind = "secondary"

	// KindUnknown is a 403/429 that matches neither signature.
	KindUnknown Kind = "unknown"
)

// Classify decides which limit a failed response tripped. Only 403 and 429
// carry rate-limit semantics; any other status returns the zero Kind and
// the controller is left alone.
func Classify(d *Details) Kind {
	if d == nil {
		return ""
	}
	if d.StatusCode != http.StatusForbidden && d.StatusCode != http.StatusTooManyRequests {
		return ""
	}
	msg := strings.ToLower(d.Message)
	if strings.Contains(msg, "secondary") || strings.Contains(msg, "abuse") {
		return KindSecondary
	}
	if d.Remaining != nil && *d.Remaining == 0 {
		return KindPrimary
	}
	return KindUnknown
}

// Control is the in-memory backoff state threaded through the poll loop.
// It is deliberately not persisted: a restarted daemon starts unblocked,
// and any successful poll clears it wholesale.
type Control struct {
	// BlockedUntil is the instant polling may resume. Zero when unblocked.
	BlockedUntil time.Time

	// SecondaryConsecutive counts back-to-back secondary-limit hits.
	SecondaryConsecutive int
}

// Decision explains one controller step for logging and diagnostics.
type Decision struct {
	Kind         Kind
	Wait         time.Duration
	BlockedUntil time.Time
	Consecutive  int
	Fatal        bool
}

// Handle folds one throttled response into the control state and returns
// the updated state with the decision taken.
//
// The base wait is the most conservative of the available hints (see
// [conservativeBase]). Secondary limits double the base per consecutive hit
// and turn fatal at the fifth. A primary limit resolves exactly when the
// provider's window resets, so a known reset takes precedence over the
// base; unknown limits block until the base. Both clear the secondary
// chain. An unclassifiable event returns both values unchanged.
func Handle(c Control, d *Details, now time.Time) (Control, Decision) {
	kind := Classify(d)
	if kind == "" {
		return c, Decision{}
	}

	base := conservativeBase(d, now)

	if kind == KindSecondary {
		n := c.SecondaryConsecutive + 1
		wait := base.Sub(now) * time.Duration(1<<(n-1))
		c.SecondaryConsecutive = n
		c.BlockedUntil = now.Add(wait)
		return c, Decision{
			Kind:         kind,
			Wait:         wait,
			BlockedUntil: c.BlockedUntil,
			Consecutive:  n,
			Fatal:        n >= secondaryFatalAfter,
		}
	}

	next := base
	if kind == KindPrimary && d.Reset != nil {
		next = time.Unix(*d.Reset, 0)
	}
	wait := next.Sub(now)
	if wait < 0 {
		wait = 0
	}
	c.SecondaryConsecutive = 0
	c.BlockedUntil = next
	return c, Decision{
		Kind:         kind,
		Wait:         wait,
		BlockedUntil: next,
	}
}

// conservativeBase picks the latest of the candidate ready times: a flat
// 60s backoff, the provider's retry-after, and the window reset when the
// provider reports nothing remaining.
func conservativeBase(d *Details, now time.Time) time.Time {
	base := now.Add(conservativeBackoff)
	if d.RetryAfter != nil {
		if t := now.Add(time.Duration(*d.RetryAfter) * time.Second); t.After(base) {
			base = t
		}
	}
	if d.Remaining != nil && *d.Remaining == 0 && d.Reset != nil {
		if t := time.Unix(*d.Reset, 0); t.After(base) {
			base = t
		}
	}
	return base
}

// Gate stretches a plan while a backoff block is in force: the sleep is
// raised to cover the remaining block time and bursting is suppressed.
// An expired or absent block passes the plan through untouched.
func Gate(p Plan, c Control, now time.Time) Plan {
	if c.BlockedUntil.IsZero() || !c.BlockedUntil.After(now) {
		return p
	}
	if remaining := c.BlockedUntil.Sub(now); p.Sleep < remaining {
		p.Sleep = remaining
	}
	p.Burst = false
	p.BurstGap = 0
	return p
}
