package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"fleetops/internal/model"
	"fleetops/internal/store"
)

// AgentStartHandler handles POST /api/v1/agent/start
func (s *Server) AgentStartHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	// the loop outlives the request
	started := s.Runner.Start(context.Background())
	if !started {
		writeJSON(w, http.StatusConflict, map[string]any{"running": true, "started": false})
		return
	}
	s.Broker.Publish(TopicAgent, Event{Type: "agent.started"})
	writeJSON(w, http.StatusAccepted, map[string]any{"started": true})
}

// AgentStopHandler handles POST /api/v1/agent/stop
func (s *Server) AgentStopHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	stopped := s.Runner.Stop()
	if stopped {
		s.Broker.Publish(TopicAgent, Event{Type: "agent.stopped"})
	}
	writeJSON(w, http.StatusOK, map[string]any{"stopped": stopped})
}

// AgentStatusHandler handles GET /api/v1/agent/status
func (s *Server) AgentStatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.Runner.Status())
}

// AgentCycleHandler handles POST /api/v1/agent/cycle: one synchronous cycle.
func (s *Server) AgentCycleHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	state, outcome := s.Runner.RunOnce(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"outcome": string(outcome), "state": state})
}

// CyclesHandler handles GET /api/v1/cycles
func (s *Server) CyclesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	cycles, err := s.St.ListCycles(r.Context(), limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List cycles failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": cycles})
}

// DecisionsHandler handles GET /api/v1/decisions?status=pending
func (s *Server) DecisionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	status := model.DecisionStatus(r.URL.Query().Get("status"))
	decisions, err := s.St.ListDecisions(r.Context(), status)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List decisions failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": decisions})
}

// DecisionByIDHandler handles /api/v1/decisions/{id}, /{id}/approve, /{id}/reject
func (s *Server) DecisionByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/decisions/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeProblem(w, http.StatusBadRequest, "Missing decision id", "", r.URL.Path)
		return
	}
	id := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		d, err := s.St.GetDecision(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Decision not found", id, r.URL.Path)
			return
		}
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Get decision failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, d)
		return
	}

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch parts[1] {
	case "approve":
		s.approveDecision(w, r, id)
	case "reject":
		s.rejectDecision(w, r, id)
	default:
		writeProblem(w, http.StatusNotFound, "Unknown action", parts[1], r.URL.Path)
	}
}

func (s *Server) approveDecision(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		ApprovedBy string `json:"approvedBy"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.ApprovedBy == "" {
		req.ApprovedBy = "operator"
	}

	d, err := s.St.GetDecision(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Decision not found", id, r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Get decision failed", err.Error(), r.URL.Path)
		return
	}
	if d.Status != model.DecisionPending {
		writeProblem(w, http.StatusConflict, "Decision not pending", string(d.Status), r.URL.Path)
		return
	}

	d, err = s.St.SetDecisionStatus(r.Context(), id, model.DecisionApproved, req.ApprovedBy)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Approve failed", err.Error(), r.URL.Path)
		return
	}
	results := s.Exec.Execute(r.Context(), d)

	s.Broker.Publish(TopicDecisions, Event{Type: "decision.approved", Data: map[string]any{
		"decisionId": id, "approvedBy": req.ApprovedBy,
	}})
	s.Pub.Emit("decision.approved", map[string]any{"decisionId": id, "actionType": string(d.ActionType)})
	writeJSON(w, http.StatusOK, map[string]any{"decision": d, "actionResults": results})
}

func (s *Server) rejectDecision(w http.ResponseWriter, r *http.Request, id string) {
	d, err := s.St.GetDecision(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Decision not found", id, r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Get decision failed", err.Error(), r.URL.Path)
		return
	}
	if d.Status != model.DecisionPending {
		writeProblem(w, http.StatusConflict, "Decision not pending", string(d.Status), r.URL.Path)
		return
	}
	d, err = s.St.SetDecisionStatus(r.Context(), id, model.DecisionRejected, "")
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Reject failed", err.Error(), r.URL.Path)
		return
	}
	s.Broker.Publish(TopicDecisions, Event{Type: "decision.rejected", Data: map[string]any{"decisionId": id}})
	writeJSON(w, http.StatusOK, d)
}
