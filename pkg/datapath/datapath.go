// Package datapath implements the Datapath/Port ownership layer: the
// control-plane surface spec.md §6 names (modify_send_entry,
// lookup_arrive_entry, start_tt_schedule, ...), each taking a TableID
// per SPEC_FULL.md §7.2, routed to the right port's *scheduler.Scheduler.
// It's grounded on original_source/ofproto/tt.c's table_id-keyed
// control records and the teacher's pattern, in pkg/linux/init.go, of
// a small top-level registry owning per-interface state.
package datapath

import (
	"sync"
	"time"

	"github.com/ttswitch/ttcore/pkg/clock"
	"github.com/ttswitch/ttcore/pkg/flowtable"
	"github.com/ttswitch/ttcore/pkg/frame"
	"github.com/ttswitch/ttcore/pkg/packetbuffer"
	"github.com/ttswitch/ttcore/pkg/scheduler"
	"github.com/ttswitch/ttcore/pkg/ttcodec"
	"github.com/ttswitch/ttcore/pkg/ttmetrics"
	"github.com/ttswitch/ttcore/pkg/ttserr"
)

// TableID distinguishes multiple logical send/arrive tables hosted on
// the same port (SPEC_FULL.md §7.2, grounded on ofproto/tt.c keying
// control records by (table_id, port, direction, flow_id)). The
// common single-table case uses TableID 0.
type TableID uint32

// tableKey addresses one of a port's (possibly several) logical
// tables.
type tableKey struct {
	port string
	id   TableID
}

// Datapath owns every Port on a switch instance, keyed by port name.
// It is the thing a control-plane protocol handler (OF-TT extension,
// gRPC, CLI) is built on top of.
type Datapath struct {
	mu     sync.RWMutex
	ports  map[tableKey]*Port
	metric *ttmetrics.Registry

	newClock func() clock.Clock
	newTimer func() clock.Timer
	bufSize  uint16
}

// Options configures a Datapath.
type Options struct {
	Metric *ttmetrics.Registry
	// NewClock/NewTimer default to clock.NewClock/clock.NewTimer when
	// nil; tests substitute fakes here instead of through per-port
	// constructors.
	NewClock func() clock.Clock
	NewTimer func() clock.Timer
	// BufferSize sizes each port's packetbuffer.Buffer; defaults to
	// flowtable.MinTableSize slots when zero.
	BufferSize uint16
}

// New builds an empty Datapath.
func New(opts Options) *Datapath {
	bufSize := opts.BufferSize
	if bufSize == 0 {
		bufSize = flowtable.MinTableSize
	}
	newClock := opts.NewClock
	if newClock == nil {
		newClock = clock.NewClock
	}
	newTimer := opts.NewTimer
	if newTimer == nil {
		newTimer = clock.NewTimer
	}
	return &Datapath{
		ports:    make(map[tableKey]*Port),
		metric:   opts.Metric,
		newClock: newClock,
		newTimer: newTimer,
		bufSize:  bufSize,
	}
}

// Port is one switch port's TT state: a scheduler plus the send
// collaborator it transmits through.
type Port struct {
	Name  string
	ID    TableID
	Sched *scheduler.Scheduler
	Buf   *packetbuffer.Buffer
}

// portOrNew returns the existing (port, tableID) pair or lazily
// creates one — control commands may arrive for a port before any
// descriptor names it, mirroring the kernel datapath's lazy vport
// creation.
func (d *Datapath) portOrNew(port string, id TableID, send scheduler.SendFunc) *Port {
	key := tableKey{port: port, id: id}

	d.mu.RLock()
	p, ok := d.ports[key]
	d.mu.RUnlock()
	if ok {
		return p
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.ports[key]; ok {
		return p
	}
	buf := packetbuffer.New(d.bufSize)
	sched := scheduler.New(d.newClock(), d.newTimer(), buf, d.metric, send, scheduler.Options{
		Port: port,
	})
	p = &Port{Name: port, ID: id, Sched: sched, Buf: buf}
	d.ports[key] = p
	return p
}

// Port looks up an existing port/table, without creating one.
func (d *Datapath) Port(port string, id TableID) (*Port, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.ports[tableKey{port: port, id: id}]
	return p, ok
}

// EnsurePort creates (or returns) the named port/table, wiring send as
// its device-transmit collaborator if it doesn't exist yet.
func (d *Datapath) EnsurePort(port string, id TableID, send scheduler.SendFunc) *Port {
	return d.portOrNew(port, id, send)
}

// ModifySendEntry implements modify_send_entry(port, table_id, descriptor).
func (d *Datapath) ModifySendEntry(port string, id TableID, desc flowtable.Descriptor) error {
	p := d.portOrNew(port, id, nil)
	return p.Sched.ModifySendEntry(desc)
}

// DeleteSendEntry implements delete_send_entry(port, table_id, flow_id).
func (d *Datapath) DeleteSendEntry(port string, id TableID, flowID flowtable.FlowID) error {
	p, ok := d.Port(port, id)
	if !ok {
		return ttserr.New(ttserr.NotFound, "unknown port/table")
	}
	return p.Sched.DeleteSendEntry(flowID)
}

// DeleteSendTable implements delete_send_table(port, table_id).
func (d *Datapath) DeleteSendTable(port string, id TableID) error {
	p, ok := d.Port(port, id)
	if !ok {
		return ttserr.New(ttserr.NotFound, "unknown port/table")
	}
	return p.Sched.DeleteSendTable()
}

// ModifyArriveEntry implements modify_arrive_entry(port, table_id, descriptor).
func (d *Datapath) ModifyArriveEntry(port string, id TableID, desc flowtable.Descriptor) error {
	p := d.portOrNew(port, id, nil)
	return p.Sched.ModifyArriveEntry(desc)
}

// DeleteArriveEntry implements delete_arrive_entry(port, table_id, flow_id).
func (d *Datapath) DeleteArriveEntry(port string, id TableID, flowID flowtable.FlowID) error {
	p, ok := d.Port(port, id)
	if !ok {
		return ttserr.New(ttserr.NotFound, "unknown port/table")
	}
	return p.Sched.DeleteArriveEntry(flowID)
}

// DeleteArriveTable implements delete_arrive_table(port, table_id).
func (d *Datapath) DeleteArriveTable(port string, id TableID) error {
	p, ok := d.Port(port, id)
	if !ok {
		return ttserr.New(ttserr.NotFound, "unknown port/table")
	}
	p.Sched.DeleteArriveTable()
	return nil
}

// LookupSendEntry implements lookup_send_entry(port, table_id, flow_id).
func (d *Datapath) LookupSendEntry(port string, id TableID, flowID flowtable.FlowID) (flowtable.Descriptor, bool) {
	p, ok := d.Port(port, id)
	if !ok {
		return flowtable.Descriptor{}, false
	}
	return p.Sched.LookupSendEntry(flowID)
}

// LookupArriveEntry implements lookup_arrive_entry(port, table_id, flow_id).
func (d *Datapath) LookupArriveEntry(port string, id TableID, flowID flowtable.FlowID) (flowtable.Descriptor, bool) {
	p, ok := d.Port(port, id)
	if !ok {
		return flowtable.Descriptor{}, false
	}
	return p.Sched.LookupArriveEntry(flowID)
}

// StartTTSchedule implements start_tt_schedule(port, table_id).
func (d *Datapath) StartTTSchedule(port string, id TableID) error {
	p, ok := d.Port(port, id)
	if !ok {
		return ttserr.New(ttserr.NotFound, "unknown port/table")
	}
	return p.Sched.Start()
}

// FinishTTSchedule implements finish_tt_schedule(port, table_id).
func (d *Datapath) FinishTTSchedule(port string, id TableID) error {
	p, ok := d.Port(port, id)
	if !ok {
		return ttserr.New(ttserr.NotFound, "unknown port/table")
	}
	p.Sched.Cancel()
	return nil
}

// IsRunning implements is_running(port, table_id).
func (d *Datapath) IsRunning(port string, id TableID) bool {
	p, ok := d.Port(port, id)
	if !ok {
		return false
	}
	return p.Sched.IsRunning()
}

// ClassifyArrival is the Port's ingress handler for an already-classified
// TT frame (pkg/ttcodec.Classify == TT): it reads the shim flow id,
// looks it up in the arrive table, and — per SPEC_FULL.md §7.3 — bumps
// the tt_arrive_unregistered_total counter on a miss without ever
// dropping or delaying the frame. The lookup result is returned purely
// for callers that want it (e.g. logging); it is never used to gate
// forwarding, mirroring vport.c's receive path.
func (d *Datapath) ClassifyArrival(port string, id TableID, f *frame.Frame) (flowID flowtable.FlowID, desc flowtable.Descriptor, registered bool) {
	flowID, ok := ttcodec.ShimFlowID(f)
	if !ok {
		return 0, flowtable.Descriptor{}, false
	}
	p, ok := d.Port(port, id)
	if !ok {
		if d.metric != nil {
			d.metric.ArriveUnregistered(port)
		}
		return flowID, flowtable.Descriptor{}, false
	}
	desc, registered = p.Sched.LookupArriveEntry(flowID)
	if !registered && d.metric != nil {
		d.metric.ArriveUnregistered(port)
	}
	return flowID, desc, registered
}

// PutFrame buffers a frame for transmission on port/table's send loop.
func (d *Datapath) PutFrame(port string, id TableID, flowID flowtable.FlowID, f *frame.Frame) error {
	p, ok := d.Port(port, id)
	if !ok {
		return ttserr.New(ttserr.NotFound, "unknown port/table")
	}
	p.Sched.PutFrame(flowID, f, time.Now())
	return nil
}
