//go:build linux

package clock

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/docker/docker/pkg/parsers/kernel"
	"golang.org/x/sys/unix"

	"github.com/ttswitch/ttcore/pkg/ttserr"
)

// timerfd was introduced in Linux 2.6.25; below that we fall back to
// the portable time.AfterFunc backend (see fallback.go, which is built
// on every platform), selected by the version gate below.
var timerfdSupported bool

func init() {
	v, err := kernel.GetKernelVersion()
	if err != nil {
		timerfdSupported = false
		return
	}
	timerfdSupported = kernel.CompareKernelVersion(*v, kernel.VersionInfo{Kernel: 2, Major: 6, Minor: 25}) >= 0
}

// MonotonicClock reads CLOCK_MONOTONIC via clock_gettime(2).
type MonotonicClock struct{}

func NewClock() Clock { return MonotonicClock{} }

func (MonotonicClock) NowNS() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		// CLOCK_MONOTONIC is always available on Linux; a failure here
		// means something is badly wrong with the process, not a
		// recoverable condition on the fast path.
		panic(err)
	}
	return uint64(ts.Sec)*uint64(time.Second) + uint64(ts.Nsec)
}

// timerfdTimer backs Timer with timerfd_create(CLOCK_MONOTONIC, ...)
// plus a reader goroutine blocked in unix.Read, mirroring the
// "platform owns a private syscall-backed type" split the teacher
// uses for pkg/tcpinfo/tcpinfo_linux.go wrapping pkg/linux.GetTCPInfo.
type timerfdTimer struct {
	fd      int
	mu      sync.Mutex
	pending atomic.Bool
	gen     atomic.Uint64
}

// NewTimer returns the Linux timerfd-backed Timer when the running
// kernel supports it, else a portable time.AfterFunc fallback.
func NewTimer() Timer {
	if !timerfdSupported {
		return newFallbackTimer()
	}
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, 0)
	if err != nil {
		return newFallbackTimer()
	}
	return &timerfdTimer{fd: fd}
}

func (t *timerfdTimer) ArmAbsolute(deadlineNS uint64, handler func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	spec := unix.ItimerSpec{
		Value: unix.NsecToTimespec(int64(deadlineNS)),
	}
	if err := unix.TimerfdSettime(t.fd, unix.TFD_TIMER_ABSTIME, &spec, nil); err != nil {
		return ttserr.Newf(ttserr.Invalid, "timerfd_settime: %v", err)
	}

	t.pending.Store(true)
	myGen := t.gen.Add(1)

	go func() {
		buf := make([]byte, 8)
		for {
			n, err := unix.Read(t.fd, buf)
			if err != nil || n != 8 {
				return
			}
			if t.gen.Load() != myGen {
				// Superseded by a later ArmAbsolute/Cancel; this
				// expiry belongs to a stale arming.
				return
			}
			if t.pending.CompareAndSwap(true, false) {
				handler()
			}
			return
		}
	}()
	return nil
}

func (t *timerfdTimer) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	wasPending := t.pending.CompareAndSwap(true, false)
	t.gen.Add(1) // invalidate any in-flight reader goroutine
	var disarm unix.ItimerSpec
	_ = unix.TimerfdSettime(t.fd, unix.TFD_TIMER_ABSTIME, &disarm, nil)
	return wasPending
}
