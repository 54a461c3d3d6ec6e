package clock

import (
	"sync"
	"time"
)

// fallbackTimer backs Timer with time.AfterFunc. It is sufficient for
// tests and non-Linux development but is not sub-microsecond precise —
// the same documented limitation in spirit as
// pkg/tcpinfo/tcpinfo_other.go's ErrNotImplemented for platforms
// lacking a real syscall backend.
type fallbackTimer struct {
	mu      sync.Mutex
	t       *time.Timer
	pending bool
}

func newFallbackTimer() Timer {
	return &fallbackTimer{}
}

func (f *fallbackTimer) ArmAbsolute(deadlineNS uint64, handler func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.t != nil {
		f.t.Stop()
	}

	now := uint64(time.Now().UnixNano())
	var d time.Duration
	if deadlineNS > now {
		d = time.Duration(deadlineNS - now)
	}

	f.pending = true
	f.t = time.AfterFunc(d, func() {
		f.mu.Lock()
		fire := f.pending
		f.pending = false
		f.mu.Unlock()
		if fire {
			handler()
		}
	})
	return nil
}

func (f *fallbackTimer) Cancel() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	wasPending := f.pending
	f.pending = false
	if f.t != nil {
		f.t.Stop()
	}
	return wasPending
}
