// Command ttpland is a small daemon wiring a pkg/datapath.Datapath to
// a Prometheus /metrics endpoint, mirroring the teacher's
// cmd/exporter_example1 shape (build a collector, MustRegister it,
// serve promhttp.Handler()) with the TCP-info exporter replaced by
// pkg/ttmetrics and the hallucinated TCP connection replaced by a demo
// TT port.
package main

import (
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/ttswitch/ttcore/pkg/datapath"
	"github.com/ttswitch/ttcore/pkg/flowtable"
	"github.com/ttswitch/ttcore/pkg/ttmetrics"
)

func main() {
	listen := flag.String("listen", ":18080", "address to serve /metrics on")
	port := flag.String("port", "demo0", "demo port name to register a send table under")
	flag.Parse()

	hostname, err := os.Hostname()
	if err != nil {
		logrus.Fatalf("ttpland: hostname: %v", err)
	}

	metric := ttmetrics.NewRegistry(prometheus.Labels{
		"app":      "ttpland",
		"hostname": hostname,
	})
	metric.MustRegister(prometheus.DefaultRegisterer)

	dp := datapath.New(datapath.Options{Metric: metric})

	// A demo flow so the process has something to plan/run; a real
	// deployment drives these through whatever control-plane protocol
	// sits in front of Datapath (spec §1's "other control mechanisms").
	if err := dp.ModifySendEntry(*port, 0, flowtable.Descriptor{
		FlowID: 1,
		Period: time.Millisecond,
		Offset: 0,
		Length: 64,
	}); err != nil {
		logrus.Fatalf("ttpland: seeding demo flow: %v", err)
	}
	if err := dp.StartTTSchedule(*port, 0); err != nil {
		logrus.Fatalf("ttpland: start_tt_schedule: %v", err)
	}
	logrus.Infof("ttpland: running demo port %q, serving metrics on %s", *port, *listen)

	http.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(*listen, nil); err != nil {
		logrus.Fatalf("ttpland: http: %v", err)
	}
}
