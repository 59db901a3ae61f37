package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// Cycles counts completed control-loop cycles by outcome
	Cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "control_loop_cycles_total", Help: "Control loop cycles by outcome."},
		[]string{"outcome"},
	)
	// PhaseDuration records per-phase execution time in seconds
	PhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "control_loop_phase_duration_seconds", Help: "Control loop phase duration in seconds.", Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30}},
		[]string{"phase"},
	)
	// IssuesDetected counts issues surfaced by reasoning, by type and severity
	IssuesDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "issues_detected_total", Help: "Issues detected by type and severity."},
		[]string{"type", "severity"},
	)
	// Decisions counts evaluated decisions by action type and approval path
	Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "decisions_total", Help: "Decisions by action type and approval path."},
		[]string{"action_type", "approval"},
	)
	// Assignments counts assignment runs by strategy
	Assignments = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "assignment_runs_total", Help: "Assignment runs by strategy."},
		[]string{"strategy"},
	)
	// UnassignedLoads tracks loads left unassigned after the latest run
	UnassignedLoads = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "unassigned_loads", Help: "Loads left unassigned by the latest assignment run."},
	)
)

// RegisterDefault registers collectors to the dedicated registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(Cycles)
		Registry.MustRegister(PhaseDuration)
		Registry.MustRegister(IssuesDetected)
		Registry.MustRegister(Decisions)
		Registry.MustRegister(Assignments)
		Registry.MustRegister(UnassignedLoads)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
