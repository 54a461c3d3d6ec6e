//go:build !linux

package clock

import "time"

// SystemClock backs Clock with time.Now on platforms without a
// timerfd/clock_gettime binding wired up.
type SystemClock struct{}

func NewClock() Clock { return SystemClock{} }

func (SystemClock) NowNS() uint64 { return uint64(time.Now().UnixNano()) }

// NewTimer returns the portable time.AfterFunc-backed Timer; see
// fallback.go.
func NewTimer() Timer { return newFallbackTimer() }
