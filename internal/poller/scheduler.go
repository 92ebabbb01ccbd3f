package poller

import (
	"time"

	"github.com/jpalmerr/ratewatch/internal/reducer"
)

// scheduling constants for bracketing provider reset boundaries
const (
	// fastPollInterval is the cadence used when a known reset boundary has
	// already passed but the provider still reports the old window.
	fastPollInterval = 2 * time.Second

	// burstThreshold is how close a reset must be before the planner
	// schedules a poll on each side of the boundary.
	burstThreshold = 8 * time.Second

	// preResetBuffer places the pre-boundary poll this far before the reset.
	preResetBuffer = 3 * time.Second

	// defaultBurstGap separates the two polls of a burst, landing the second
	// one a few seconds after the boundary.
	defaultBurstGap = 6 * time.Second

	// minSleep floors every computed wait to keep the loop off the CPU.
	minSleep = time.Second
)

// Plan is one scheduling decision: how long to sleep before the next poll,
// and whether to follow that poll with a second one bracketing a reset
// boundary (Burst), BurstGap later.
type Plan struct {
	Sleep    time.Duration
	Burst    bool
	BurstGap time.Duration
}

// ComputePlan decides the next wait from the current reduced state.
//
// Only active buckets steer the schedule: ones this run has actually used
// and whose reset timestamp is known. The soonest such reset is bracketed
// so usage on both sides of the boundary is observed:
//
//   - boundary already passed: poll fast until the provider rotates the
//     window, capped at the base interval;
//   - boundary within burstThreshold: poll shortly before it and again
//     BurstGap later;
//   - boundary before the next base poll: land just before it;
//   - otherwise: the base interval.
//
// The reset timestamps are epoch seconds, so the plan is computed at
// second granularity.
func ComputePlan(st *reducer.State, base time.Duration, now time.Time) Plan {
	resetAt, ok := soonestActiveReset(st)
	if !ok {
		return Plan{Sleep: base}
	}

	until := time.Duration(resetAt-now.Unix()) * time.Second
	switch {
	case until <= 0:
		return Plan{Sleep: min(fastPollInterval, base)}
	case until <= burstThreshold:
		return Plan{
			Sleep:    max(until-preResetBuffer, minSleep),
			Burst:    true,
			BurstGap: defaultBurstGap,
		}
	case until < base:
		return Plan{Sleep: max(until-preResetBuffer, minSleep)}
	default:
		return Plan{Sleep: base}
	}
}

// soonestActiveReset returns the earliest known reset among buckets with
// usage attributed this run. The second return is false when no bucket
// qualifies.
func soonestActiveReset(st *reducer.State) (int64, bool) {
	var soonest int64
	found := false
	for _, b := range st.Buckets {
		if b.TotalUsed <= 0 || b.LastReset <= 0 {
			continue
		}
		if !found || b.LastReset < soonest {
			soonest = b.LastReset
			found = true
		}
	}
	return soonest, found
}

// ApplyDebounce floors the plan's waits so buckets resetting within seconds
// of each other cannot drive the poll cadence below d. A non-positive d
// leaves the plan untouched.
func ApplyDebounce(p Plan, d time.Duration) Plan {
	if d <= 0 {
		return p
	}
	if p.Sleep < d {
		p.Sleep = d
	}
	if p.Burst && p.BurstGap < d {
		p.BurstGap = d
	}
	return p
}
