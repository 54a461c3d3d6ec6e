// Command ttplan is an offline planner: it reads a flow table
// description (JSON) and prints the resulting send cache timeline,
// without ever touching a clock, timer, or device. Useful for
// validating a flow mix's macro-period and collisions before loading
// it into a running cmd/ttpland instance.
//
// Mirrors the teacher's cmd/get in shape: a small single-file main
// using logrus for diagnostics and os.Args/flag for input.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ttswitch/ttcore/pkg/flowtable"
	"github.com/ttswitch/ttcore/pkg/planner"
)

// flowJSON is the wire shape of one flow in the input file, using
// plain integers (nanoseconds) to avoid requiring a duration-parsing
// convention for callers that generate this file programmatically.
type flowJSON struct {
	FlowID   flowtable.FlowID `json:"flow_id"`
	PeriodNS int64            `json:"period_ns"`
	OffsetNS int64            `json:"offset_ns"`
	Length   uint32           `json:"length"`
	BufferID uint32           `json:"buffer_id"`
}

func main() {
	path := flag.String("f", "", "path to a JSON file listing flows ([]flowJSON); '-' reads stdin")
	maxEntries := flag.Int("max-entries", 0, "cap on materialised send-cache entries (0 = planner default)")
	flag.Parse()

	flows, err := loadFlows(*path)
	if err != nil {
		logrus.Fatalf("ttplan: %v", err)
	}

	table := flowtable.Alloc(flowtable.MinTableSize)
	for _, f := range flows {
		d := flowtable.Descriptor{
			FlowID:   f.FlowID,
			Period:   time.Duration(f.PeriodNS),
			Offset:   time.Duration(f.OffsetNS),
			Length:   f.Length,
			BufferID: f.BufferID,
		}
		table, err = table.Insert(d)
		if err != nil {
			logrus.Fatalf("ttplan: insert flow %d: %v", f.FlowID, err)
		}
	}

	cache, err := planner.Plan(table, planner.Options{MaxEntries: *maxEntries})
	if err != nil {
		logrus.Fatalf("ttplan: plan: %v", err)
	}

	fmt.Printf("plan_id=%s macro_period=%s entries=%d collisions=%d\n",
		cache.PlanID.String(), cache.MacroPeriod, cache.Len(), len(cache.Collisions))
	for i := range cache.SendTimes {
		fmt.Printf("%6d  t=%-12s flow_id=%d\n", i, cache.SendTimes[i], cache.FlowIDs[i])
	}
	for _, c := range cache.Collisions {
		logrus.Warnf("collision at t=%s between flow %d and flow %d", c.Time, c.FlowA, c.FlowB)
	}
}

func loadFlows(path string) ([]flowJSON, error) {
	var r *os.File
	if path == "" || path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	var flows []flowJSON
	if err := json.NewDecoder(r).Decode(&flows); err != nil {
		return nil, fmt.Errorf("decode flow list: %w", err)
	}
	return flows, nil
}
