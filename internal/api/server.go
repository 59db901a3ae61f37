package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleetops/internal/agent"
	"fleetops/internal/metrics"
	"fleetops/internal/opt"
	"fleetops/internal/store"
	"fleetops/internal/webhooks"
)

// Server holds the HTTP surface's collaborators. Everything is injected;
// construction happens in main.
type Server struct {
	St       store.Store
	Runner   *agent.Runner
	Exec     agent.Executor
	Assign   *opt.AssignmentEngine
	Broker   EventBroker
	Pub      *webhooks.Publisher
	Strategy opt.Strategy
	Lg       *slog.Logger
}

func NewServer(st store.Store, runner *agent.Runner, exec agent.Executor, assign *opt.AssignmentEngine,
	broker EventBroker, pub *webhooks.Publisher, strategy opt.Strategy, lg *slog.Logger) *Server {
	if lg == nil {
		lg = slog.Default()
	}
	if assign == nil {
		assign = opt.NewAssignmentEngine(nil)
	}
	if broker == nil {
		broker = NewMemoryBroker()
	}
	if strategy == "" {
		strategy = opt.StrategyGreedyHeap
	}
	return &Server{St: st, Runner: runner, Exec: exec, Assign: assign, Broker: broker, Pub: pub, Strategy: strategy, Lg: lg}
}

// Handler builds the routed and instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Fleet
	mux.HandleFunc("/api/v1/trucks", s.TrucksHandler)
	mux.HandleFunc("/api/v1/trucks/", s.TruckByIDHandler) // includes /position, /readings
	mux.HandleFunc("/api/v1/loads", s.LoadsHandler)
	mux.HandleFunc("/api/v1/loads/", s.LoadByIDHandler)
	mux.HandleFunc("/api/v1/traffic", s.TrafficHandler)

	// Optimization
	mux.HandleFunc("/api/v1/assignments", s.AssignmentsHandler)
	mux.HandleFunc("/api/v1/routes/plan", s.RoutePlanHandler)

	// Agent control loop
	mux.HandleFunc("/api/v1/agent/start", s.AgentStartHandler)
	mux.HandleFunc("/api/v1/agent/stop", s.AgentStopHandler)
	mux.HandleFunc("/api/v1/agent/status", s.AgentStatusHandler)
	mux.HandleFunc("/api/v1/agent/cycle", s.AgentCycleHandler)
	mux.HandleFunc("/api/v1/cycles", s.CyclesHandler)

	// Decisions and approvals
	mux.HandleFunc("/api/v1/decisions", s.DecisionsHandler)
	mux.HandleFunc("/api/v1/decisions/", s.DecisionByIDHandler) // includes /approve, /reject

	// Live events
	mux.HandleFunc("/api/v1/events/stream", s.EventStreamHandler)
	mux.HandleFunc("/api/v1/events/ws", s.EventWSHandler)

	// Operational
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	return s.instrument(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// streaming endpoints need Flusher/Hijacker, skip the recorder
		if r.URL.Path == "/api/v1/events/stream" || r.URL.Path == "/api/v1/events/ws" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		label := r.Pattern
		if label == "" {
			label = r.URL.Path
		}
		status := strconv.Itoa(rec.status)
		metrics.HTTPRequests.WithLabelValues(r.Method, label, status).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, label, status).Observe(time.Since(start).Seconds())
		s.Lg.Debug("http", "method", r.Method, "path", r.URL.Path, "status", rec.status, "dur", time.Since(start))
	})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := s.St.ListTrucks(r.Context()); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Store unavailable", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
