// Package scheduler implements the per-port send loop (component C7):
// a state machine that owns a port's send/arrive flow tables, plans
// and arms a send cache, and busy-waits the final advance_time window
// for sub-microsecond transmit precision.
package scheduler

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ttswitch/ttcore/pkg/clock"
	"github.com/ttswitch/ttcore/pkg/flowtable"
	"github.com/ttswitch/ttcore/pkg/frame"
	"github.com/ttswitch/ttcore/pkg/packetbuffer"
	"github.com/ttswitch/ttcore/pkg/planner"
	"github.com/ttswitch/ttcore/pkg/ttmetrics"
	"github.com/ttswitch/ttcore/pkg/ttserr"
)

// State is the scheduler's lifecycle state (spec §3 Port Scheduler
// State).
type State int

const (
	Idle State = iota
	TableMutating
	Planned
	Running
	Cancelling
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case TableMutating:
		return "table_mutating"
	case Planned:
		return "planned"
	case Running:
		return "running"
	case Cancelling:
		return "cancelling"
	default:
		return "unknown"
	}
}

// DefaultAdvanceTime is the busy-wait threshold applied when Options
// doesn't set one (spec §4.7 "default 40µs").
const DefaultAdvanceTime = 40 * time.Microsecond

// SendFunc is the external device-transmit collaborator: send(port, frame).
// Device transmit primitives are explicitly out of scope (spec §1);
// this is the trait-like interface the core hands its output to.
type SendFunc func(f *frame.Frame) error

// Options tunes a Scheduler.
type Options struct {
	AdvanceTime    time.Duration
	PlannerOptions planner.Options
	Port           string // label used on ttmetrics series
	LogLimiter     *rate.Limiter
}

// Scheduler is one egress port's TT send loop (spec §3/§4.7/§5).
type Scheduler struct {
	clk    clock.Clock
	timer  clock.Timer
	buf    *packetbuffer.Buffer
	metric *ttmetrics.Registry
	send   SendFunc

	advanceTime time.Duration
	plannerOpts planner.Options
	port        string
	logLimiter  *rate.Limiter

	mu          sync.Mutex
	handlerMu   sync.Mutex
	state       State
	sendGuard   *flowtable.Guard
	arriveGuard *flowtable.Guard
	cache       *planner.SendCache
	armed       bool
}

// New builds a Scheduler over the given Clock/Timer/PacketBuffer and
// device-send collaborator. Initial send/arrive tables are empty.
func New(clk clock.Clock, timer clock.Timer, buf *packetbuffer.Buffer, metric *ttmetrics.Registry, send SendFunc, opts Options) *Scheduler {
	advance := opts.AdvanceTime
	if advance <= 0 {
		advance = DefaultAdvanceTime
	}
	limiter := opts.LogLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(time.Second), 5)
	}
	return &Scheduler{
		clk:         clk,
		timer:       timer,
		buf:         buf,
		metric:      metric,
		send:        send,
		advanceTime: advance,
		plannerOpts: opts.PlannerOptions,
		port:        opts.Port,
		logLimiter:  limiter,
		state:       Idle,
		sendGuard:   flowtable.NewGuard(flowtable.Alloc(flowtable.MinTableSize)),
		arriveGuard: flowtable.NewGuard(flowtable.Alloc(flowtable.MinTableSize)),
	}
}

// State reports the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// mutateSendTable applies fn to the current send table and publishes
// the result. It's rejected with Busy while Running, per spec §4.7
// "Any descriptor mutation while Running is rejected with Busy".
func (s *Scheduler) mutateSendTable(fn func(*flowtable.Table) (*flowtable.Table, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Running || s.state == Cancelling {
		return ttserr.New(ttserr.Busy, "cannot mutate send table while scheduler is running")
	}
	prevState := s.state
	s.state = TableMutating

	cur := s.sendGuard.Load()
	next, err := fn(cur)
	if err != nil {
		s.state = prevState
		return err
	}

	grew := next.Max() != cur.Max() && next.Max() > cur.Max()
	shrank := next.Max() != cur.Max() && next.Max() < cur.Max()
	s.sendGuard.Replace(next, nil)
	if s.metric != nil {
		if grew {
			s.metric.TableGrow(s.port)
		}
		if shrank {
			s.metric.TableShrink(s.port)
		}
	}
	s.cache = nil
	s.state = Idle
	return nil
}

// ModifySendEntry inserts or replaces a descriptor in the send table.
func (s *Scheduler) ModifySendEntry(d flowtable.Descriptor) error {
	return s.mutateSendTable(func(t *flowtable.Table) (*flowtable.Table, error) {
		return t.Insert(d)
	})
}

// DeleteSendEntry removes a descriptor from the send table.
func (s *Scheduler) DeleteSendEntry(flowID flowtable.FlowID) error {
	return s.mutateSendTable(func(t *flowtable.Table) (*flowtable.Table, error) {
		return t.Delete(flowID)
	})
}

// DeleteSendTable resets the send table to empty.
func (s *Scheduler) DeleteSendTable() error {
	return s.mutateSendTable(func(*flowtable.Table) (*flowtable.Table, error) {
		return flowtable.Alloc(flowtable.MinTableSize), nil
	})
}

// ModifyArriveEntry inserts or replaces a descriptor in the
// receive-side arrive table. The arrive table never drives the timer
// (spec §3); mutation is allowed in any state except while cancelling.
func (s *Scheduler) ModifyArriveEntry(d flowtable.Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Cancelling {
		return ttserr.New(ttserr.Busy, "cannot mutate arrive table while scheduler is cancelling")
	}
	cur := s.arriveGuard.Load()
	next, err := cur.Insert(d)
	if err != nil {
		return err
	}
	s.arriveGuard.Replace(next, nil)
	return nil
}

// DeleteArriveEntry removes a descriptor from the arrive table.
func (s *Scheduler) DeleteArriveEntry(flowID flowtable.FlowID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.arriveGuard.Load()
	next, err := cur.Delete(flowID)
	if err != nil {
		return err
	}
	s.arriveGuard.Replace(next, nil)
	return nil
}

// DeleteArriveTable resets the arrive table to empty.
func (s *Scheduler) DeleteArriveTable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.arriveGuard.Replace(flowtable.Alloc(flowtable.MinTableSize), nil)
}

// LookupSendEntry and LookupArriveEntry are wait-free descriptor reads.
func (s *Scheduler) LookupSendEntry(flowID flowtable.FlowID) (flowtable.Descriptor, bool) {
	d, ok := s.sendGuard.Load().Lookup(flowID)
	if !ok {
		return flowtable.Descriptor{}, false
	}
	return *d, true
}

// LookupArriveEntry looks up the arrive table. Per Open Question (b),
// the result is informational only — the core never acts on a miss
// beyond making it observable; see ClassifyArrival in pkg/datapath for
// the caller that turns a miss into a metric.
func (s *Scheduler) LookupArriveEntry(flowID flowtable.FlowID) (flowtable.Descriptor, bool) {
	d, ok := s.arriveGuard.Load().Lookup(flowID)
	if !ok {
		return flowtable.Descriptor{}, false
	}
	return *d, true
}

// PutFrame buffers a frame for flowID, to be sent by the next matching
// timer firing.
func (s *Scheduler) PutFrame(flowID flowtable.FlowID, f *frame.Frame, arrivalAt time.Time) {
	s.buf.Put(flowID, f, arrivalAt)
}
