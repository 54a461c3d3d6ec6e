// Package ttmetrics exposes the core's diagnostics as Prometheus
// collectors, following the teacher's pkg/exporter.TCPInfoCollector
// shape (a mutex-guarded custom prometheus.Collector built from a
// small constructor) adapted from per-connection TCP gauges to
// per-port TT scheduling counters.
package ttmetrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds the counters a Datapath's ports report into. Unlike
// the teacher's TCPInfoCollector, which polls getsockopt on Collect,
// these are plain counters/gauges the scheduler increments directly
// on the events they describe — there's no syscall to poll here.
type Registry struct {
	mu sync.Mutex

	missedDeadlines    *prometheus.CounterVec
	collisions         *prometheus.CounterVec
	staleFramesDropped *prometheus.CounterVec
	tableGrowEvents    *prometheus.CounterVec
	tableShrinkEvents  *prometheus.CounterVec
	arriveUnregistered *prometheus.CounterVec
	plannerEntries     *prometheus.GaugeVec
}

// NewRegistry builds a Registry with the given constant labels applied
// to every metric, mirroring NewTCPInfoCollector's constLabels
// parameter.
func NewRegistry(constLabels prometheus.Labels) *Registry {
	portLabels := []string{"port"}
	return &Registry{
		missedDeadlines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "tt_missed_deadlines_total",
			Help:        "Number of send slots whose absolute_send_ns had already passed when the handler reached them.",
			ConstLabels: constLabels,
		}, portLabels),
		collisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "tt_collisions_total",
			Help:        "Number of intra-macro-period send-time collisions detected by the planner.",
			ConstLabels: constLabels,
		}, portLabels),
		staleFramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "tt_stale_frames_dropped_total",
			Help:        "Number of buffered frames dropped because they were older than one macro-period at send time.",
			ConstLabels: constLabels,
		}, portLabels),
		tableGrowEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "tt_table_grow_total",
			Help:        "Number of flow table reallocations triggered by an out-of-range flow id on insert.",
			ConstLabels: constLabels,
		}, portLabels),
		tableShrinkEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "tt_table_shrink_total",
			Help:        "Number of flow table reallocations triggered by the shrink rule on delete.",
			ConstLabels: constLabels,
		}, portLabels),
		arriveUnregistered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "tt_arrive_unregistered_total",
			Help:        "Number of classified TT frames whose flow id had no arrive-table entry. Informational only; frames are never dropped for this reason.",
			ConstLabels: constLabels,
		}, portLabels),
		plannerEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "tt_planner_entries",
			Help:        "Number of (send_time, flow_id) slots in the most recently published send cache.",
			ConstLabels: constLabels,
		}, portLabels),
	}
}

// MustRegister registers every collector on reg, mirroring the
// teacher's prometheus.MustRegister(exp) call in cmd/exporter_example1.
func (r *Registry) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		r.missedDeadlines,
		r.collisions,
		r.staleFramesDropped,
		r.tableGrowEvents,
		r.tableShrinkEvents,
		r.arriveUnregistered,
		r.plannerEntries,
	)
}

func (r *Registry) MissedDeadline(port string) { r.missedDeadlines.WithLabelValues(port).Inc() }
func (r *Registry) Collision(port string) { r.collisions.WithLabelValues(port).Inc() }
func (r *Registry) StaleFrameDropped(port string) {
	r.staleFramesDropped.WithLabelValues(port).Inc()
}
func (r *Registry) TableGrow(port string) { r.tableGrowEvents.WithLabelValues(port).Inc() }
func (r *Registry) TableShrink(port string) { r.tableShrinkEvents.WithLabelValues(port).Inc() }
func (r *Registry) ArriveUnregistered(port string) { r.arriveUnregistered.WithLabelValues(port).Inc() }
func (r *Registry) SetPlannerEntries(port string, n int) {
	r.plannerEntries.WithLabelValues(port).Set(float64(n))
}
