package planner

import (
	"sort"
	"time"

	"github.com/ttswitch/ttcore/pkg/flowtable"
)

// Due describes the outcome of a NextDue search: the slot that has
// just come due (whose flow should be transmitted now), how long until
// the following slot, and the absolute clock time the current slot is
// aimed at (its next occurrence, if the clock is already past it).
type Due struct {
	Index          int
	FlowID         flowtable.FlowID
	WaitNS         uint64
	AbsoluteSendNS uint64
}

// NextDue implements the send cache's next-due search (§4.6): given
// the current clock reading, it locates the slot that has just become
// due and reports how long to wait before the next one. The selected
// FlowID is the current slot's flow — the key subtlety being that each
// firing transmits the slot that just came due, not the slot it's
// about to re-arm for.
func (c *SendCache) NextDue(nowNS uint64) Due {
	n := len(c.SendTimes)
	if n == 0 {
		// Empty cache: nothing to send, re-check after one macro-period.
		return Due{Index: -1, WaitNS: uint64(c.MacroPeriod), AbsoluteSendNS: nowNS + uint64(c.MacroPeriod)}
	}

	macro := uint64(c.MacroPeriod)
	modTime := time.Duration(nowNS % macro)

	idx := sort.Search(n, func(i int) bool { return c.SendTimes[i] > modTime }) - 1
	if idx < 0 {
		idx = n - 1
	}

	nextIdx := (idx + 1) % n

	var waitNS uint64
	if nextIdx == 0 {
		waitNS = uint64(c.SendTimes[0]) + macro - uint64(c.SendTimes[idx])
	} else {
		waitNS = uint64(c.SendTimes[nextIdx]) - uint64(c.SendTimes[idx])
	}

	var absoluteSendNS uint64
	if modTime > c.SendTimes[idx] {
		absoluteSendNS = nowNS + (macro - uint64(modTime) + uint64(c.SendTimes[idx]))
	} else {
		absoluteSendNS = nowNS + (uint64(c.SendTimes[idx]) - uint64(modTime))
	}

	return Due{
		Index:          idx,
		FlowID:         c.FlowIDs[idx],
		WaitNS:         waitNS,
		AbsoluteSendNS: absoluteSendNS,
	}
}
