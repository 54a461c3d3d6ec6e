package flowtable

import (
	"runtime"
	"sync/atomic"
)

// Guard publishes a *Table for wait-free readers and defers the point
// at which a replaced Table becomes safe to reclaim until every reader
// that began before the swap has released it — an epoch-based stand-in
// for the kernel datapath's RCU grace period (original_source uses
// rcu_assign_pointer/call_rcu around tt_table swaps). Go's garbage
// collector frees the actual memory; Guard exists to give callers a
// place to hook cleanup (metrics, pooling) that must not run early,
// per DESIGN NOTES §9 "Deferred reclamation of tables/descriptors".
//
// No RCU library appears anywhere in the example pack, so this is
// built directly on sync/atomic rather than adopted from a third-party
// dependency; see DESIGN.md.
type Guard struct {
	cur    atomic.Pointer[Table]
	epoch  atomic.Uint64
	active [2]atomic.Int64
}

// NewGuard publishes an initial table.
func NewGuard(initial *Table) *Guard {
	g := &Guard{}
	g.cur.Store(initial)
	return g
}

// Enter begins a read-side critical section: it returns the currently
// published table and a release function the caller must call exactly
// once when done with it. Enter never blocks and never allocates.
func (g *Guard) Enter() (*Table, func()) {
	parity := g.epoch.Load() & 1
	g.active[parity].Add(1)
	t := g.cur.Load()
	return t, func() { g.active[parity].Add(-1) }
}

// Load is a convenience for a single wait-free lookup that doesn't need
// to hold the table across multiple operations.
func (g *Guard) Load() *Table {
	t, done := g.Enter()
	done()
	return t
}

// Replace publishes next and, once every reader that entered under the
// previous epoch has exited, invokes onReclaimed (which may be nil).
// Replace itself does not block; quiescence is awaited on a background
// goroutine so control-plane mutation latency never depends on
// in-flight fast-path readers.
func (g *Guard) Replace(next *Table, onReclaimed func()) {
	g.cur.Store(next)
	prev := g.epoch.Load() & 1
	g.epoch.Add(1)
	go func() {
		for g.active[prev].Load() > 0 {
			runtime.Gosched()
		}
		if onReclaimed != nil {
			onReclaimed()
		}
	}()
}
