// Package packetbuffer implements the per-datapath flow_id -> latest
// frame mailbox (component C8) shared by ingress producers and the
// scheduler's timer-driven consumer.
package packetbuffer

import (
	"sync/atomic"
	"time"

	"github.com/ttswitch/ttcore/pkg/flowtable"
	"github.com/ttswitch/ttcore/pkg/frame"
)

// Entry pairs a buffered frame with its arrival time, used by the
// scheduler to detect staleness (spec §8 scenario 5).
type Entry struct {
	Frame     *frame.Frame
	ArrivalAt time.Time
}

// Buffer retains at most one frame per flow id. Put overwrites any
// previously buffered frame for that flow; Take atomically clears and
// returns the slot. Both are O(1) and safe for concurrent use by
// multiple producers and one consumer.
type Buffer struct {
	slots []atomic.Pointer[Entry]
}

// New allocates a Buffer sized for flow ids in [0, size).
func New(size uint16) *Buffer {
	return &Buffer{slots: make([]atomic.Pointer[Entry], size)}
}

// Put stores frame/arrivalAt for flowID, replacing whatever was
// buffered previously. Out-of-range flow ids are silently dropped —
// the caller is expected to have validated flowID against its flow
// table before buffering.
func (b *Buffer) Put(flowID flowtable.FlowID, f *frame.Frame, arrivalAt time.Time) {
	if int(flowID) >= len(b.slots) {
		return
	}
	b.slots[flowID].Store(&Entry{Frame: f, ArrivalAt: arrivalAt})
}

// Take atomically clears and returns the slot for flowID. ok is false
// if the flow id is out of range or nothing was buffered.
func (b *Buffer) Take(flowID flowtable.FlowID) (e Entry, ok bool) {
	if int(flowID) >= len(b.slots) {
		return Entry{}, false
	}
	entry := b.slots[flowID].Swap(nil)
	if entry == nil {
		return Entry{}, false
	}
	return *entry, true
}

// Len reports the number of flow id slots the buffer was sized for.
func (b *Buffer) Len() int { return len(b.slots) }
