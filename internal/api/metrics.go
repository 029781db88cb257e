package api

import (
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/AaronLay10/orle/internal/process"
	"github.com/AaronLay10/orle/internal/version"
)

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

// metricsHandler returns Prometheus-compatible metrics in text format.
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	st := s.proc.Stats()
	uptime := time.Since(s.start).Seconds()
	sinks := s.sinkStates()

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	header := func(name, mtype, help string) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
	}
	sample := func(name string, value interface{}, labels string) {
		fmt.Fprintf(w, "%s{%s} %v\n", name, labels, value)
	}
	writeMetric := func(name, mtype, help string, value interface{}, labels string) {
		header(name, mtype, help)
		sample(name, value, labels)
	}

	labels := fmt.Sprintf(`world="%d",instance="%s",version="%s"`, s.worldID, hostname, version.Version)

	writeMetric("orle_uptime_seconds", "gauge",
		"Number of seconds since the worker started", uptime, labels)

	writeMetric("orle_jobs_processed_total", "counter",
		"Total number of job documents processed since startup", st.Processed, labels)

	writeMetric("orle_jobs_failed_total", "counter",
		"Total number of job documents whose manifest recorded an error", st.Failed, labels)

	header("orle_process_state", "gauge", "Current process state (1 for the active state)")
	for _, state := range process.States {
		sample("orle_process_state", boolGauge(st.State == state), fmt.Sprintf(`%s,state="%s"`, labels, state))
	}

	writeMetric("orle_events_total", "counter",
		"Total number of events emitted since startup", s.em.TotalCount(), labels)

	if len(sinks) > 0 {
		names := make([]string, 0, len(sinks))
		for name := range sinks {
			names = append(names, name)
		}
		sort.Strings(names)
		header("orle_sink_connected", "gauge", "Whether the event sink is connected (1) or not (0)")
		for _, name := range names {
			sample("orle_sink_connected", boolGauge(sinks[name]), fmt.Sprintf(`%s,sink="%s"`, labels, name))
		}
	}

	writeMetric("orle_ws_clients", "gauge",
		"Number of active WebSocket client connections", s.em.SubscriberCount(), labels)
}
