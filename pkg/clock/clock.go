// Package clock provides the monotonic time source and armable
// one-shot timer the port scheduler drives its send loop with.
package clock

// Clock is a monotonic nanosecond timestamp source sharing one epoch
// with every Timer it arms.
type Clock interface {
	NowNS() uint64
}

// Timer is an hrtimer-like armable one-shot. ArmAbsolute schedules
// handler to run at deadlineNS on this Clock's epoch, replacing any
// previously armed deadline. Cancel is idempotent: calling it after
// the timer has already fired, or more than once, is a no-op that
// reports false.
type Timer interface {
	ArmAbsolute(deadlineNS uint64, handler func()) error
	Cancel() (wasPending bool)
}
