// Package flowtable implements the flow table (component C4): a
// sparse, index-addressed map from a flow id to a scheduling
// descriptor, optimised for wait-free reads on the packet-forwarding
// fast path and infrequent coordinated mutation. The dense-array
// layout and grow/shrink rules are ported from
// original_source/datapath/tt.c's tt_table_alloc/tt_table_realloc/
// tt_table_item_insert/tt_table_delete_item.
package flowtable

import (
	"time"

	"github.com/ttswitch/ttcore/pkg/ttserr"
)

// FlowID is the dense index used to key both the send and arrive tables.
type FlowID = uint16

// MinTableSize is the smallest table a Table is ever allocated with (I3).
const MinTableSize uint16 = 16

// maxFlowIDSlots bounds insert's flow_id+MinTableSize growth so it never
// overflows FlowID's uint16 range.
const maxFlowIDSlots = 1<<16 - 1

// Descriptor is an immutable scheduling entry: a flow's period, phase,
// buffer handle, and expected length. Period must be > 0 and Offset
// must be < Period; Insert validates both.
//
// ExecuteAt mirrors ofproto/tt.h's execute_time: a control-plane
// activation timestamp carried through to the datapath command and
// otherwise unused there. It's preserved here (zero value = activate
// immediately, today's only behaviour) rather than dropped; see
// SPEC_FULL.md §7.1 and DESIGN.md's Open Question (c) for why no
// deferred-activation scheduler reads it yet.
type Descriptor struct {
	FlowID    FlowID
	BufferID  uint32
	Period    time.Duration
	Offset    time.Duration
	Length    uint32
	ExecuteAt time.Time
}

// Table is a dense-array flow descriptor store. Its zero value is not
// valid; use Alloc. Table values are treated as immutable once
// published: Insert and Delete return a new Table rather than mutating
// the receiver, so a concurrent reader holding an older *Table always
// sees a consistent view (I1, I2, I3).
type Table struct {
	max   uint16
	count uint16
	slots []*Descriptor
}

// Alloc creates an empty table with at least MinTableSize slots (I3).
func Alloc(size uint16) *Table {
	if size < MinTableSize {
		size = MinTableSize
	}
	return &Table{max: size, slots: make([]*Descriptor, size)}
}

// Max reports the table's current slot count.
func (t *Table) Max() uint16 {
	if t == nil {
		return 0
	}
	return t.max
}

// NumItems reports the number of occupied slots (I1).
func (t *Table) NumItems() uint16 {
	if t == nil {
		return 0
	}
	return t.count
}

// Lookup is the wait-free fast-path read: it returns (nil, false) if
// flow_id is at or past max, or the slot is empty.
func (t *Table) Lookup(id FlowID) (*Descriptor, bool) {
	if t == nil || int(id) >= len(t.slots) {
		return nil, false
	}
	d := t.slots[id]
	if d == nil {
		return nil, false
	}
	return d, true
}

// Insert returns a new Table with descriptor installed at its FlowID
// slot, growing the table first (I5) if FlowID is at or past the
// current max. The source table is left untouched.
func (t *Table) Insert(d Descriptor) (*Table, error) {
	if d.Period <= 0 {
		return nil, ttserr.New(ttserr.Invalid, "period must be > 0")
	}
	if d.Offset < 0 || d.Offset >= d.Period {
		return nil, ttserr.New(ttserr.Invalid, "offset must satisfy 0 <= offset < period")
	}

	base := t
	if base == nil {
		base = Alloc(MinTableSize)
	}

	newMax := base.max
	if uint32(d.FlowID) >= uint32(base.max) {
		grown := uint32(d.FlowID) + uint32(MinTableSize)
		if grown > maxFlowIDSlots {
			return nil, ttserr.Newf(ttserr.Invalid, "flow id %d would require an unrepresentable table size", d.FlowID)
		}
		newMax = uint16(grown)
	}

	nt := &Table{max: newMax, count: base.count, slots: make([]*Descriptor, newMax)}
	copy(nt.slots, base.slots)
	existed := nt.slots[d.FlowID] != nil
	dd := d
	nt.slots[d.FlowID] = &dd
	if !existed {
		nt.count++
	}
	return nt, nil
}

// Delete returns a new Table with flow_id's slot cleared, applying the
// shrink rule (I4): once max >= 2*MinTableSize and the post-delete
// count is at or below max/3, the table is halved, provided every
// remaining live flow_id still fits below the halved max. If it
// wouldn't fit (or in a real allocator, if the halved allocation
// failed), the larger table is kept and the delete still succeeds.
func (t *Table) Delete(id FlowID) (*Table, error) {
	if t == nil || int(id) >= len(t.slots) || t.slots[id] == nil {
		return t, ttserr.New(ttserr.NotFound, "flow id not present")
	}

	nt := &Table{max: t.max, count: t.count, slots: append([]*Descriptor(nil), t.slots...)}
	nt.slots[id] = nil
	nt.count--

	if nt.max >= 2*MinTableSize && nt.count <= nt.max/3 {
		if shrunk, ok := shrink(nt); ok {
			return shrunk, nil
		}
	}
	return nt, nil
}

func shrink(t *Table) (*Table, bool) {
	newMax := t.max / 2
	out := &Table{max: newMax, slots: make([]*Descriptor, newMax)}
	for i, d := range t.slots {
		if d == nil {
			continue
		}
		if i >= len(out.slots) {
			return nil, false
		}
		out.slots[i] = d
		out.count++
	}
	return out, true
}

// Live returns the occupied descriptors in index order, for planning.
func (t *Table) Live() []*Descriptor {
	if t == nil {
		return nil
	}
	out := make([]*Descriptor, 0, t.count)
	for _, d := range t.slots {
		if d != nil {
			out = append(out, d)
		}
	}
	return out
}
