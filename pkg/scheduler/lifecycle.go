package scheduler

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ttswitch/ttcore/pkg/planner"
	"github.com/ttswitch/ttcore/pkg/ttserr"
)

// Start transitions Idle/Planned -> Running (spec §4.7): cancels any
// stray timer, invokes the planner, and arms the timer at the first
// macro-period boundary minus advance_time. A planning failure
// propagates and leaves the scheduler in Planned.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.state != Idle && s.state != Planned {
		s.mu.Unlock()
		return ttserr.Newf(ttserr.Busy, "cannot start from state %s", s.state)
	}
	s.timer.Cancel()
	s.armed = false
	table := s.sendGuard.Load()
	s.mu.Unlock()

	cache, err := planner.Plan(table, s.plannerOpts)
	if err != nil {
		s.mu.Lock()
		s.state = Planned
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache = cache
	s.state = Planned

	if s.metric != nil {
		s.metric.SetPlannerEntries(s.port, cache.Len())
	}
	if s.metric != nil {
		for range cache.Collisions {
			s.metric.Collision(s.port)
		}
	}
	if len(cache.Collisions) > 0 && s.logLimiter.Allow() {
		logrus.WithFields(logrus.Fields{
			"port":       s.port,
			"plan_id":    cache.PlanID.String(),
			"collisions": len(cache.Collisions),
		}).Info("tt scheduler: send cache has intra-macro-period collisions")
	}

	now := s.clk.NowNS()
	macro := uint64(cache.MacroPeriod)
	if macro == 0 {
		macro = 1
	}
	firstBoundary := now + (macro - now%macro)
	advanceNS := uint64(s.advanceTime)
	var deadline uint64
	if firstBoundary > advanceNS {
		deadline = firstBoundary - advanceNS
	} else {
		deadline = now
	}

	if err := s.timer.ArmAbsolute(deadline, s.handlerTick); err != nil {
		return err
	}
	s.armed = true
	s.state = Running
	return nil
}

// Cancel transitions Running -> Idle (spec §4.7 cancel()): clears the
// armed flag so the next handler invocation doesn't re-arm, cancels
// any pending timer, then blocks until any in-flight handler
// invocation completes (spec §8 scenario 6).
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	if s.state != Running {
		s.mu.Unlock()
		return
	}
	s.state = Cancelling
	s.armed = false
	s.mu.Unlock()

	for s.timer.Cancel() {
		// Loop per spec §4.7: "then loop on Timer::cancel() until it
		// returns false" — guards the case a re-arm races the cancel.
	}

	s.handlerMu.Lock()
	s.handlerMu.Unlock() //nolint:staticcheck // synchronizes with any in-flight handlerTick, nothing to hold past this point

	s.mu.Lock()
	s.state = Idle
	s.mu.Unlock()
}

// IsRunning reports whether the scheduler is currently Running.
func (s *Scheduler) IsRunning() bool {
	return s.State() == Running
}

// handlerTick is the Clock.Timer handler: §4.7 timer_handler().
func (s *Scheduler) handlerTick() {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()

	s.mu.Lock()
	armed := s.armed
	cache := s.cache
	s.mu.Unlock()
	if cache == nil {
		return
	}

	now := s.clk.NowNS()
	due := cache.NextDue(now)

	waitNS := due.WaitNS
	if waitNS == 0 {
		// Two flows share the exact same tick (spec §4.7 step 3):
		// push the next arming past the current twin.
		waitNS = due.AbsoluteSendNS - now + uint64(s.advanceTime)
	}

	if armed {
		if err := s.timer.ArmAbsolute(now+waitNS, s.handlerTick); err != nil && s.logLimiter.Allow() {
			logrus.WithError(err).WithField("port", s.port).Warn("tt scheduler: failed to re-arm timer")
		}
	}

	if due.Index < 0 {
		return // empty send cache — nothing to dequeue or transmit
	}

	entry, ok := s.buf.Take(due.FlowID)
	if !ok {
		return // nothing buffered for this flow at this tick
	}

	// Re-read the clock: the dequeue above may have taken long enough,
	// under scheduling pressure, for the target to have already passed.
	now = s.clk.NowNS()
	if due.AbsoluteSendNS < now {
		if s.metric != nil {
			s.metric.MissedDeadline(s.port)
		}
		if s.logLimiter.Allow() {
			logrus.WithFields(logrus.Fields{"port": s.port, "flow_id": due.FlowID}).
				Info("tt scheduler: missed deadline, dropping frame")
		}
		return
	}

	for {
		now = s.clk.NowNS()
		if due.AbsoluteSendNS <= now || due.AbsoluteSendNS-now <= uint64(s.advanceTime) {
			break
		}
		// Busy-wait the final advance_time window (spec §9 "Busy-wait":
		// must not be replaced by a sleep).
	}

	if time.Since(entry.ArrivalAt) >= cache.MacroPeriod {
		if s.metric != nil {
			s.metric.StaleFrameDropped(s.port)
		}
		if s.logLimiter.Allow() {
			logrus.WithFields(logrus.Fields{"port": s.port, "flow_id": due.FlowID}).
				Info("tt scheduler: stale frame, dropping")
		}
		return
	}

	clone, err := entry.Frame.CloneForTx()
	if err != nil {
		if s.logLimiter.Allow() {
			logrus.WithError(err).WithField("port", s.port).Warn("tt scheduler: failed to clone frame for tx")
		}
		return
	}
	if s.send != nil {
		if err := s.send(clone); err != nil && s.logLimiter.Allow() {
			logrus.WithError(err).WithField("port", s.port).Warn("tt scheduler: device send failed")
		}
	}
}
