// Package planner implements the dispatch planner (component C5) and
// the send cache it produces (component C6): given a flow table
// snapshot, it computes the macro-period as the LCM of the active
// flows' periods, materialises the sorted per-macro-period send
// timeline, and flags intra-period collisions.
package planner

import (
	"sort"
	"time"

	"github.com/rs/xid"

	"github.com/ttswitch/ttcore/pkg/flowtable"
	"github.com/ttswitch/ttcore/pkg/ttserr"
)

// DefaultMaxEntries bounds the materialised timeline length N. A port
// whose flow mix would require more slots per macro-period than this
// fails planning with OutOfMemory rather than building an unbounded
// array.
const DefaultMaxEntries = 1 << 20

// Options tunes a single Plan call.
type Options struct {
	// MaxEntries caps N; zero selects DefaultMaxEntries.
	MaxEntries int
}

// Collision reports two flows materialising at the same offset within
// the macro-period (I6). Planning still completes and publishes a
// cache when collisions are present; the caller decides how loudly to
// report them (see pkg/scheduler).
type Collision struct {
	Time  time.Duration
	FlowA flowtable.FlowID
	FlowB flowtable.FlowID
}

// SendCache is the planner's materialised, sorted timeline of
// (time, flow_id) pairs within one macro-period (C6), consumed
// read-only by the port scheduler's send loop.
type SendCache struct {
	PlanID      xid.ID
	MacroPeriod time.Duration
	SendTimes   []time.Duration // strictly increasing modulo collisions, all < MacroPeriod
	FlowIDs     []flowtable.FlowID
	Collisions  []Collision
}

// Len is the number of (time, flow_id) slots in one macro-period.
func (c *SendCache) Len() int { return len(c.SendTimes) }

func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b uint64) uint64 {
	return a / gcd(a, b) * b
}

// Plan computes a SendCache from a flow table snapshot. It must only
// be invoked while the owning port scheduler is not Running (§4.5);
// Plan itself is synchronous and stateless and may be called any
// number of times.
func Plan(table *flowtable.Table, opts Options) (*SendCache, error) {
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	live := table.Live()
	if len(live) == 0 {
		return &SendCache{PlanID: xid.New(), MacroPeriod: 1}, nil
	}

	macro := uint64(live[0].Period)
	for _, d := range live[1:] {
		macro = lcm(macro, uint64(d.Period))
	}

	n := 0
	for _, d := range live {
		n += int(macro / uint64(d.Period))
		if n > maxEntries {
			return nil, ttserr.Newf(ttserr.OutOfMemory, "send cache would need %d+ entries, exceeds cap %d", n, maxEntries)
		}
	}

	times := make([]time.Duration, 0, n)
	ids := make([]flowtable.FlowID, 0, n)
	for _, d := range live {
		count := macro / uint64(d.Period)
		for j := uint64(0); j < count; j++ {
			t := uint64(d.Offset) + j*uint64(d.Period)
			times = append(times, time.Duration(t))
			ids = append(ids, d.FlowID)
		}
	}

	sortParallel(times, ids)

	var collisions []Collision
	for k := 1; k < len(times); k++ {
		if times[k] == times[k-1] {
			collisions = append(collisions, Collision{Time: times[k], FlowA: ids[k-1], FlowB: ids[k]})
		}
	}

	return &SendCache{
		PlanID:      xid.New(),
		MacroPeriod: time.Duration(macro),
		SendTimes:   times,
		FlowIDs:     ids,
		Collisions:  collisions,
	}, nil
}

type parallelSort struct {
	times []time.Duration
	ids   []flowtable.FlowID
}

func (s parallelSort) Len() int           { return len(s.times) }
func (s parallelSort) Less(i, j int) bool { return s.times[i] < s.times[j] }
func (s parallelSort) Swap(i, j int) {
	s.times[i], s.times[j] = s.times[j], s.times[i]
	s.ids[i], s.ids[j] = s.ids[j], s.ids[i]
}

// sortParallel sorts times ascending, permuting ids identically. Any
// O(N log N) algorithm satisfies the spec; sort.Sort's introspective
// quicksort-then-heapsort avoids the deep recursion a naive quicksort
// risks on already-sorted input (see DESIGN NOTES "Recursive sort").
func sortParallel(times []time.Duration, ids []flowtable.FlowID) {
	sort.Sort(parallelSort{times: times, ids: ids})
}
