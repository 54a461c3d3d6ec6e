package datapath

import (
	"sync"
	"testing"
	"time"

	"github.com/ttswitch/ttcore/pkg/clock"
	"github.com/ttswitch/ttcore/pkg/flowtable"
	"github.com/ttswitch/ttcore/pkg/frame"
	"github.com/ttswitch/ttcore/pkg/ttcodec"
)

// fakeClock/fakeTimer mirror pkg/scheduler's test doubles; Datapath
// needs its own copy since they're unexported there.
type fakeClock struct {
	mu  sync.Mutex
	now uint64
}

func (c *fakeClock) NowNS() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type fakeTimer struct {
	mu      sync.Mutex
	pending bool
	handler func()
}

func (t *fakeTimer) ArmAbsolute(_ uint64, handler func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = true
	t.handler = handler
	return nil
}

func (t *fakeTimer) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := t.pending
	t.pending = false
	return was
}

func newTestDatapath() *Datapath {
	clk := &fakeClock{}
	return New(Options{
		NewClock: func() clock.Clock { return clk },
		NewTimer: func() clock.Timer { return &fakeTimer{} },
	})
}

func TestModifyLookupSendEntryRoundTrip(t *testing.T) {
	d := newTestDatapath()
	desc := flowtable.Descriptor{FlowID: 5, Period: time.Millisecond, Offset: 10 * time.Microsecond}
	if err := d.ModifySendEntry("eth0", 0, desc); err != nil {
		t.Fatalf("ModifySendEntry: %v", err)
	}
	got, ok := d.LookupSendEntry("eth0", 0, 5)
	if !ok || got.Period != desc.Period || got.Offset != desc.Offset {
		t.Fatalf("LookupSendEntry = %+v, %v; want %+v, true", got, ok, desc)
	}
}

func TestDifferentTableIDsAreIsolated(t *testing.T) {
	d := newTestDatapath()
	desc := flowtable.Descriptor{FlowID: 1, Period: time.Millisecond}
	if err := d.ModifySendEntry("eth0", 0, desc); err != nil {
		t.Fatalf("ModifySendEntry table 0: %v", err)
	}
	if _, ok := d.LookupSendEntry("eth0", 1, 1); ok {
		t.Fatal("table 1 should not see table 0's entry")
	}
}

func TestUnknownPortLookupMisses(t *testing.T) {
	d := newTestDatapath()
	if _, ok := d.LookupSendEntry("ghost", 0, 1); ok {
		t.Fatal("lookup on a never-created port should miss, not create it")
	}
	if d.IsRunning("ghost", 0) {
		t.Fatal("IsRunning on a never-created port should be false")
	}
}

func TestDeleteSendTableOnUnknownPortFails(t *testing.T) {
	d := newTestDatapath()
	if err := d.DeleteSendTable("ghost", 0); err == nil {
		t.Fatal("expected NotFound deleting the send table of a never-created port")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	d := newTestDatapath()
	d.EnsurePort("eth0", 0, nil)
	if err := d.StartTTSchedule("eth0", 0); err != nil {
		t.Fatalf("StartTTSchedule: %v", err)
	}
	if !d.IsRunning("eth0", 0) {
		t.Fatal("expected is_running() true after start_tt_schedule")
	}
	if err := d.FinishTTSchedule("eth0", 0); err != nil {
		t.Fatalf("FinishTTSchedule: %v", err)
	}
	if d.IsRunning("eth0", 0) {
		t.Fatal("expected is_running() false after finish_tt_schedule")
	}
}

func TestClassifyArrivalRegisteredReturnsDescriptor(t *testing.T) {
	d := newTestDatapath()
	desc := flowtable.Descriptor{FlowID: 9, Period: time.Millisecond}
	if err := d.ModifyArriveEntry("eth0", 0, desc); err != nil {
		t.Fatalf("ModifyArriveEntry: %v", err)
	}

	f := frame.New(ttcodec.DefaultMacLen, make([]byte, ttcodec.DefaultMacLen+ttcodec.TTHeaderLen), 0)
	b := f.Bytes()
	// Stamp a TT EtherType + shim flow id directly, mirroring a frame
	// already converted by ttcodec.TRDPToTT.
	b[12], b[13] = byte(ttcodec.EtherTypeTT>>8), byte(ttcodec.EtherTypeTT)
	b[ttcodec.DefaultMacLen], b[ttcodec.DefaultMacLen+1] = 0, 9

	flowID, gotDesc, registered := d.ClassifyArrival("eth0", 0, f)
	if flowID != 9 || !registered || gotDesc.Period != desc.Period {
		t.Fatalf("ClassifyArrival = (%d, %+v, %v), want (9, %+v, true)", flowID, gotDesc, registered, desc)
	}
}

func TestClassifyArrivalUnregisteredStillReturnsFlowID(t *testing.T) {
	d := newTestDatapath()
	d.EnsurePort("eth0", 0, nil)

	f := frame.New(ttcodec.DefaultMacLen, make([]byte, ttcodec.DefaultMacLen+ttcodec.TTHeaderLen), 0)
	b := f.Bytes()
	b[12], b[13] = byte(ttcodec.EtherTypeTT>>8), byte(ttcodec.EtherTypeTT)
	b[ttcodec.DefaultMacLen], b[ttcodec.DefaultMacLen+1] = 0, 42

	flowID, _, registered := d.ClassifyArrival("eth0", 0, f)
	if flowID != 42 || registered {
		t.Fatalf("ClassifyArrival = (%d, _, %v), want (42, _, false)", flowID, registered)
	}
}
