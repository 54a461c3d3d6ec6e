package packetbuffer

import (
	"testing"
	"time"

	"github.com/ttswitch/ttcore/pkg/frame"
)

func TestPutTakeRoundTrip(t *testing.T) {
	b := New(16)
	f := frame.New(14, []byte("hello"), 0)
	now := time.Now()

	b.Put(3, f, now)
	entry, ok := b.Take(3)
	if !ok {
		t.Fatal("Take(3) missing after Put")
	}
	if entry.Frame != f || !entry.ArrivalAt.Equal(now) {
		t.Fatalf("Take returned %+v, want frame=%p arrivalAt=%v", entry, f, now)
	}
}

func TestTakeClearsSlot(t *testing.T) {
	b := New(16)
	b.Put(1, frame.New(14, nil, 0), time.Now())
	if _, ok := b.Take(1); !ok {
		t.Fatal("first Take should succeed")
	}
	if _, ok := b.Take(1); ok {
		t.Fatal("second Take should miss — slot must be cleared (exchange-with-null)")
	}
}

func TestPutOverwritesPrevious(t *testing.T) {
	b := New(16)
	first := frame.New(14, []byte("first"), 0)
	second := frame.New(14, []byte("second"), 0)
	b.Put(5, first, time.Now())
	b.Put(5, second, time.Now())

	entry, ok := b.Take(5)
	if !ok || entry.Frame != second {
		t.Fatalf("Take(5) = %+v, want the overwriting frame", entry)
	}
}

func TestOutOfRangeFlowIDIsNoop(t *testing.T) {
	b := New(4)
	b.Put(100, frame.New(14, nil, 0), time.Now())
	if _, ok := b.Take(100); ok {
		t.Fatal("Take(100) should miss: Put on an out-of-range flow id must be a no-op")
	}
}
