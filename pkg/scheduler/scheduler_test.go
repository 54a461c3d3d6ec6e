package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/ttswitch/ttcore/pkg/clock"
	"github.com/ttswitch/ttcore/pkg/flowtable"
	"github.com/ttswitch/ttcore/pkg/frame"
	"github.com/ttswitch/ttcore/pkg/packetbuffer"
)

// fakeClock/fakeTimer give deterministic, manually-driven control over
// time for the scheduler tests below, rather than racing real
// wall-clock nanoseconds.
type fakeClock struct {
	mu  sync.Mutex
	now uint64

	// sequence, when non-empty, overrides now: each call to NowNS
	// consumes the next value (the last value repeats once exhausted).
	// Used to simulate time passing between a handler's two reads of
	// "now" without a real clock race.
	sequence []uint64
	reads    int
}

func (c *fakeClock) NowNS() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sequence) > 0 {
		idx := c.reads
		if idx >= len(c.sequence) {
			idx = len(c.sequence) - 1
		}
		c.reads++
		return c.sequence[idx]
	}
	return c.now
}

func (c *fakeClock) set(n uint64) {
	c.mu.Lock()
	c.now = n
	c.mu.Unlock()
}

func (c *fakeClock) setSequence(vals ...uint64) {
	c.mu.Lock()
	c.sequence = vals
	c.reads = 0
	c.mu.Unlock()
}

type fakeTimer struct {
	mu      sync.Mutex
	pending bool
	handler func()
}

func (t *fakeTimer) ArmAbsolute(deadlineNS uint64, handler func()) error {
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

// fire invokes the currently armed handler synchronously, as a real
// timer thread would.
func (t *fakeTimer) fire() {
	t.mu.Lock()
	h := t.handler
	t.mu.Unlock()
	if h != nil {
		h()
	}
}

func newTestScheduler(t *testing.T) (*Scheduler, *fakeClock, *fakeTimer) {
	t.Helper()
	clk := &fakeClock{}
	tm := &fakeTimer{}
	buf := packetbuffer.New(64)
	var _ clock.Clock = clk
	var _ clock.Timer = tm
	s := New(clk, tm, buf, nil, nil, Options{AdvanceTime: 0})
	return s, clk, tm
}

func TestStartEmptyTableIsNoOpArm(t *testing.T) {
	s, _, tm := newTestScheduler(t)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.State() != Running {
		t.Fatalf("State() = %v, want Running", s.State())
	}
	if !tm.pending {
		t.Fatal("expected a timer to be armed after Start on an empty table")
	}
	s.Cancel()
	if s.State() != Idle {
		t.Fatalf("State() after Cancel = %v, want Idle", s.State())
	}
}

func TestMutateSendTableRejectedWhileRunning(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	err := s.ModifySendEntry(flowtable.Descriptor{FlowID: 1, Period: time.Millisecond})
	if err == nil {
		t.Fatal("expected Busy rejecting a send-table mutation while Running")
	}
}

func TestHandlerSendsDueFrameAndRearms(t *testing.T) {
	s, clk, tm := newTestScheduler(t)
	if err := s.ModifySendEntry(flowtable.Descriptor{FlowID: 7, Period: time.Millisecond, Offset: 200 * time.Microsecond}); err != nil {
		t.Fatalf("ModifySendEntry: %v", err)
	}

	var sent *frame.Frame
	s.send = func(f *frame.Frame) error { sent = f; return nil }

	f := frame.New(14, []byte("payload"), 2)
	s.PutFrame(7, f, time.Now())

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !tm.pending {
		t.Fatal("expected timer armed after Start")
	}

	clk.set(200_000) // exactly the due offset
	tm.fire()

	if sent == nil {
		t.Fatal("expected the due frame to be handed to the send collaborator")
	}
	if !tm.pending {
		t.Fatal("expected the handler to re-arm the timer for the next slot")
	}
	s.Cancel()
}

func TestHandlerDropsMissedDeadline(t *testing.T) {
	s, clk, tm := newTestScheduler(t)
	if err := s.ModifySendEntry(flowtable.Descriptor{FlowID: 2, Period: time.Millisecond, Offset: 100 * time.Microsecond}); err != nil {
		t.Fatalf("ModifySendEntry: %v", err)
	}

	sentCount := 0
	s.send = func(f *frame.Frame) error { sentCount++; return nil }
	s.PutFrame(2, frame.New(14, []byte("x"), 2), time.Now())

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// First read (computing due) sees t=0, so the target is the slot's
	// offset, 100_000ns. The second read (handlerTick's post-dequeue
	// recheck) jumps far past it, simulating scheduling delay between
	// computing the target and reaching the deadline check.
	clk.setSequence(0, 500_000)
	tm.fire()

	if sentCount != 0 {
		t.Fatalf("sentCount = %d, want 0 (deadline already missed)", sentCount)
	}
	s.Cancel()
}

func TestCancelIsNoOpWhenNotRunning(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	s.Cancel() // must not panic or block
	if s.State() != Idle {
		t.Fatalf("State() = %v, want Idle", s.State())
	}
}
