package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"fleetops/internal/metrics"
	"fleetops/internal/model"
	"fleetops/internal/opt"
	"fleetops/internal/perceive"
	"fleetops/internal/store"
)

// TrucksHandler handles GET/POST /api/v1/trucks
func (s *Server) TrucksHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		trucks, err := s.St.ListTrucks(r.Context())
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List trucks failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": trucks})
	case http.MethodPost:
		var t model.Truck
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if t.ID == "" {
			t.ID = "truck_" + uuid.NewString()
		}
		if t.Status == "" {
			t.Status = model.TruckIdle
		}
		if t.CurrentLocation != nil {
			if err := t.CurrentLocation.Validate(); err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid location", err.Error(), r.URL.Path)
				return
			}
		}
		if t.CapacityKg <= 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid truck", "capacityKg must be positive", r.URL.Path)
			return
		}
		if err := s.St.PutTruck(r.Context(), t); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Save truck failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, t)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// TruckByIDHandler handles /api/v1/trucks/{id}, /{id}/position and /{id}/readings
func (s *Server) TruckByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/trucks/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeProblem(w, http.StatusBadRequest, "Missing truck id", "", r.URL.Path)
		return
	}
	id := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		t, err := s.St.GetTruck(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Truck not found", id, r.URL.Path)
			return
		}
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Get truck failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, t)
		return
	}

	switch parts[1] {
	case "position":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var reading model.GPSReading
		if err := json.NewDecoder(r.Body).Decode(&reading); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		reading.TruckID = id
		if reading.Timestamp.IsZero() {
			reading.Timestamp = time.Now().UTC()
		}
		if err := perceive.ValidateReading(reading, time.Now()); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid reading", err.Error(), r.URL.Path)
			return
		}
		if err := s.St.UpdateTruckPosition(r.Context(), reading); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeProblem(w, http.StatusNotFound, "Truck not found", id, r.URL.Path)
				return
			}
			writeProblem(w, http.StatusInternalServerError, "Update position failed", err.Error(), r.URL.Path)
			return
		}
		s.Broker.Publish(TopicFleet, Event{Type: "truck.position", Data: map[string]any{
			"truckId":  id,
			"lat":      reading.Location.Latitude,
			"lon":      reading.Location.Longitude,
			"speedKmh": reading.SpeedKmh,
		}})
		writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
	case "readings":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}
		readings, err := s.St.RecentGPSReadings(r.Context(), id, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List readings failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": readings})
	default:
		writeProblem(w, http.StatusNotFound, "Unknown resource", parts[1], r.URL.Path)
	}
}

// LoadsHandler handles GET/POST /api/v1/loads
func (s *Server) LoadsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		loads, err := s.St.ListLoads(r.Context())
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List loads failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": loads})
	case http.MethodPost:
		var l model.Load
		if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if l.ID == "" {
			l.ID = "load_" + uuid.NewString()
		}
		if l.WeightKg <= 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid load", "weightKg must be positive", r.URL.Path)
			return
		}
		if err := l.PickupLocation.Validate(); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid pickup location", err.Error(), r.URL.Path)
			return
		}
		if err := l.DeliveryLocation.Validate(); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid delivery location", err.Error(), r.URL.Path)
			return
		}
		if err := s.St.PutLoad(r.Context(), l); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Save load failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, l)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// LoadByIDHandler handles GET /api/v1/loads/{id}
func (s *Server) LoadByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/loads/"), "/")
	l, err := s.St.GetLoad(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Load not found", id, r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Get load failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"load":   l,
		"status": l.LifecycleStatus(),
	})
}

// TrafficHandler handles GET/PUT /api/v1/traffic
func (s *Server) TrafficHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		conds, err := s.St.ListTrafficConditions(r.Context())
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List traffic failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": conds})
	case http.MethodPut:
		var conds []model.TrafficCondition
		if err := json.NewDecoder(r.Body).Decode(&conds); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := s.St.PutTrafficConditions(r.Context(), conds); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Save traffic failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"updated": len(conds)})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// AssignmentsHandler handles POST /api/v1/assignments: run the assignment
// engine over the current fleet and, unless dryRun, commit the result.
func (s *Server) AssignmentsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Strategy string `json:"strategy"`
		DryRun   bool   `json:"dryRun"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	strategy := s.Strategy
	if req.Strategy != "" {
		switch opt.Strategy(req.Strategy) {
		case opt.StrategyGreedyHeap, opt.StrategyGreedy, opt.StrategyPriorityFirst:
			strategy = opt.Strategy(req.Strategy)
		default:
			writeProblem(w, http.StatusBadRequest, "Unknown strategy", req.Strategy, r.URL.Path)
			return
		}
	}

	snap, err := s.St.Snapshot(r.Context())
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Snapshot failed", err.Error(), r.URL.Path)
		return
	}
	sol := s.Assign.AssignLoads(snap.Trucks, snap.Loads, strategy, time.Now())
	metrics.Assignments.WithLabelValues(string(strategy)).Inc()
	metrics.UnassignedLoads.Set(float64(len(sol.UnassignedLoads)))

	if !req.DryRun {
		if err := s.commitAssignments(r, sol.Assignments); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Commit assignments failed", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"strategy": string(strategy), "dryRun": req.DryRun, "solution": sol})
}

func (s *Server) commitAssignments(r *http.Request, assignments []opt.Assignment) error {
	ctx := r.Context()
	for _, a := range assignments {
		l, err := s.St.GetLoad(ctx, a.LoadID)
		if err != nil {
			return err
		}
		l.AssignedTruckID = a.TruckID
		if err := s.St.PutLoad(ctx, l); err != nil {
			return err
		}
		t, err := s.St.GetTruck(ctx, a.TruckID)
		if err != nil {
			return err
		}
		if t.Status == model.TruckIdle {
			t.Status = model.TruckEnRoute
		}
		if t.CurrentLoadID == "" {
			t.CurrentLoadID = a.LoadID
		}
		if err := s.St.PutTruck(ctx, t); err != nil {
			return err
		}
		s.Broker.Publish(TopicFleet, Event{Type: "load.assigned", Data: map[string]any{
			"loadId": a.LoadID, "truckId": a.TruckID,
		}})
	}
	return nil
}

// RoutePlanHandler handles POST /api/v1/routes/plan: optimize a stop order
// for one truck over a set of loads under current traffic.
func (s *Server) RoutePlanHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		TruckID string   `json:"truckId"`
		LoadIDs []string `json:"loadIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if req.TruckID == "" || len(req.LoadIDs) == 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid request", "truckId and loadIds required", r.URL.Path)
		return
	}
	t, err := s.St.GetTruck(r.Context(), req.TruckID)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Truck not found", req.TruckID, r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Get truck failed", err.Error(), r.URL.Path)
		return
	}
	loads := make([]model.Load, 0, len(req.LoadIDs))
	for _, id := range req.LoadIDs {
		l, err := s.St.GetLoad(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Load not found", id, r.URL.Path)
			return
		}
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Get load failed", err.Error(), r.URL.Path)
			return
		}
		loads = append(loads, l)
	}
	traffic, err := s.St.ListTrafficConditions(r.Context())
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List traffic failed", err.Error(), r.URL.Path)
		return
	}
	route := s.Assign.Routes.Optimize(t, loads, traffic)
	writeJSON(w, http.StatusOK, route)
}
