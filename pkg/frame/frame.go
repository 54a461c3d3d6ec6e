// Package frame implements the byte-buffer abstraction (component C2)
// that the TT codec and send loop operate on: a buffer with writable
// head-room and push/pull of fixed-length prefixes, modelled after the
// Linux sk_buff operations the TT datapath is ported from (skb_cow_head,
// skb_push, skb_pull).
package frame

import (
	"sync/atomic"

	"github.com/ttswitch/ttcore/pkg/ttserr"
)

// MaxAlloc bounds how large a single frame's backing storage may grow.
// Real allocators fail under memory pressure long before any single
// frame approaches this; the cap exists so OutOfMemory/NotWritable
// paths are exercisable deterministically in tests.
const MaxAlloc = 1 << 20

type shared struct {
	refs int32
}

// Frame is a reference to a backing byte buffer plus a [start,end)
// window into it. Multiple Frame values can Share() the same backing
// buffer (modelling skb_get/skb_clone); mutation requires EnsureWritable
// first.
type Frame struct {
	buf    []byte
	start  int
	end    int
	macLen int
	refs   *shared
}

// New builds a Frame wrapping payload, with headroom extra bytes of
// writable space before it (for later PushFront calls) and macLen
// bytes at the front of payload treated as the Ethernet header.
func New(macLen int, payload []byte, headroom int) *Frame {
	total := headroom + len(payload)
	buf := make([]byte, total)
	copy(buf[headroom:], payload)
	return &Frame{buf: buf, start: headroom, end: total, macLen: macLen, refs: &shared{refs: 1}}
}

// Len returns the number of live bytes in the frame.
func (f *Frame) Len() int { return f.end - f.start }

// Bytes returns the frame's live window. The returned slice aliases the
// frame's backing storage and is only valid until the next Push/Pull
// call, which may reallocate.
func (f *Frame) Bytes() []byte { return f.buf[f.start:f.end] }

// MacLen reports the Ethernet header length this frame was built with.
func (f *Frame) MacLen() int { return f.macLen }

// SetMacLen overrides the Ethernet header length, e.g. after a codec
// operation changes the framing.
func (f *Frame) SetMacLen(n int) { f.macLen = n }

// MacHeader returns the Ethernet header prefix of the frame's live window.
func (f *Frame) MacHeader() []byte { return f.Bytes()[:f.macLen] }

// Headroom reports how many writable bytes precede the live window.
func (f *Frame) Headroom() int { return f.start }

func (f *Frame) headroomEnsure(n int) error {
	if f.start >= n {
		return nil
	}
	need := n - f.start
	newTotal := len(f.buf) + need
	if newTotal > MaxAlloc {
		return ttserr.Newf(ttserr.OutOfMemory, "headroom growth to %d bytes exceeds cap", newTotal)
	}
	nb := make([]byte, newTotal)
	newStart := f.start + need
	copy(nb[newStart:], f.buf[f.start:f.end])
	f.buf = nb
	f.end = newStart + (f.end - f.start)
	f.start = newStart
	return nil
}

// PushFront grows head-room if necessary and exposes n additional bytes
// at the front of the live window. The content of those bytes is
// unspecified; callers must overwrite them.
func (f *Frame) PushFront(n int) error {
	if err := f.headroomEnsure(n); err != nil {
		return err
	}
	f.start -= n
	return nil
}

// PullFront removes n bytes from the front of the live window.
func (f *Frame) PullFront(n int) {
	f.start += n
}

// Share returns a new Frame handle aliasing the same backing storage,
// incrementing the shared reference count. Mutating a shared Frame
// without EnsureWritable first corrupts the other handle's view.
func (f *Frame) Share() *Frame {
	atomic.AddInt32(&f.refs.refs, 1)
	return &Frame{buf: f.buf, start: f.start, end: f.end, macLen: f.macLen, refs: f.refs}
}

func (f *Frame) isUnique() bool {
	return atomic.LoadInt32(&f.refs.refs) == 1
}

// EnsureWritable guarantees the frame's storage is not shared with any
// other Frame handle, copying the underlying bytes if necessary. It
// fails with NotWritable, not OutOfMemory, because from the caller's
// perspective the frame simply cannot be mutated in place.
func (f *Frame) EnsureWritable() error {
	if f.isUnique() {
		return nil
	}
	total := f.end - f.start
	if total > MaxAlloc {
		return ttserr.New(ttserr.NotWritable, "frame too large to privatize")
	}
	nb := make([]byte, total)
	copy(nb, f.buf[f.start:f.end])
	atomic.AddInt32(&f.refs.refs, -1)
	f.buf = nb
	f.start = 0
	f.end = total
	f.refs = &shared{refs: 1}
	return nil
}

// CloneForTx returns an independent, owned copy of the frame, suitable
// for handing to a device send primitive; later changes to either frame
// do not affect the other.
func (f *Frame) CloneForTx() (*Frame, error) {
	total := f.end - f.start
	if total > MaxAlloc {
		return nil, ttserr.Newf(ttserr.OutOfMemory, "clone of %d bytes exceeds cap", total)
	}
	nb := make([]byte, total)
	copy(nb, f.buf[f.start:f.end])
	return &Frame{buf: nb, start: 0, end: total, macLen: f.macLen, refs: &shared{refs: 1}}, nil
}
