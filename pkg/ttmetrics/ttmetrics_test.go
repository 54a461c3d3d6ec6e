package ttmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, cv *prometheus.CounterVec, port string) float64 {
	t.Helper()
	var m dto.Metric
	if err := cv.WithLabelValues(port).Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestRegistryCountersIncrement(t *testing.T) {
	r := NewRegistry(prometheus.Labels{"app": "test"})

	r.MissedDeadline("eth0")
	r.MissedDeadline("eth0")
	r.Collision("eth0")
	r.StaleFrameDropped("eth0")
	r.TableGrow("eth0")
	r.TableShrink("eth0")
	r.ArriveUnregistered("eth0")

	if got := counterValue(t, r.missedDeadlines, "eth0"); got != 2 {
		t.Fatalf("missedDeadlines = %v, want 2", got)
	}
	if got := counterValue(t, r.collisions, "eth0"); got != 1 {
		t.Fatalf("collisions = %v, want 1", got)
	}
	if got := counterValue(t, r.staleFramesDropped, "eth0"); got != 1 {
		t.Fatalf("staleFramesDropped = %v, want 1", got)
	}
	if got := counterValue(t, r.tableGrowEvents, "eth0"); got != 1 {
		t.Fatalf("tableGrowEvents = %v, want 1", got)
	}
	if got := counterValue(t, r.tableShrinkEvents, "eth0"); got != 1 {
		t.Fatalf("tableShrinkEvents = %v, want 1", got)
	}
	if got := counterValue(t, r.arriveUnregistered, "eth0"); got != 1 {
		t.Fatalf("arriveUnregistered = %v, want 1", got)
	}
}

func TestRegistryIsolatesPortLabels(t *testing.T) {
	r := NewRegistry(nil)
	r.MissedDeadline("eth0")
	if got := counterValue(t, r.missedDeadlines, "eth1"); got != 0 {
		t.Fatalf("eth1 missedDeadlines = %v, want 0 (unaffected by eth0 increments)", got)
	}
}

func TestMustRegisterPanicsOnDuplicate(t *testing.T) {
	reg := prometheus.NewRegistry()
	r1 := NewRegistry(prometheus.Labels{"app": "dup"})
	r1.MustRegister(reg)

	r2 := NewRegistry(prometheus.Labels{"app": "dup"})
	defer func() {
		if recover() == nil {
			t.Fatal("expected MustRegister to panic on a duplicate collector registration")
		}
	}()
	r2.MustRegister(reg)
}
