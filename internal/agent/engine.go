package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"fleetops/internal/decide"
	"fleetops/internal/metrics"
	"fleetops/internal/model"
	"fleetops/internal/plan"
	"fleetops/internal/reason"
	"fleetops/internal/store"
)

// Outcome is the transition taken at the end of a cycle's feedback phase.
type Outcome string

const (
	OutcomeContinue Outcome = "continue"
	OutcomeStop     Outcome = "stop"
	OutcomeHuman    Outcome = "human"
	OutcomeError    Outcome = "error"
)

// Observer produces point-in-time fleet snapshots.
type Observer interface {
	Observe(ctx context.Context) (model.Snapshot, error)
}

// Executor performs a decision's primitive actions against live state.
type Executor interface {
	Execute(ctx context.Context, d model.Decision) []model.ActionResult
}

// Engine runs one observe/reason/plan/decide/act/feedback cycle at a time.
// All collaborators are injected; the engine holds no global state.
type Engine struct {
	observer  Observer
	analyzer  reason.SituationAnalyzer
	planner   *plan.Generator
	evaluator *decide.Evaluator
	executor  Executor
	st        store.Store
	lg        *slog.Logger

	// OnEvent, when set, receives phase transitions for the event stream.
	OnEvent func(kind string, payload any)

	totalCycles int
}

func NewEngine(observer Observer, analyzer reason.SituationAnalyzer, planner *plan.Generator,
	evaluator *decide.Evaluator, executor Executor, st store.Store, lg *slog.Logger) *Engine {
	if lg == nil {
		lg = slog.Default()
	}
	return &Engine{
		observer:  observer,
		analyzer:  analyzer,
		planner:   planner,
		evaluator: evaluator,
		executor:  executor,
		st:        st,
		lg:        lg,
	}
}

func (e *Engine) emit(kind string, payload any) {
	if e.OnEvent != nil {
		e.OnEvent(kind, payload)
	}
}

// RunCycle executes one full cycle. A phase failure is captured in the
// state's error message and forces a stop transition; it never panics out.
func (e *Engine) RunCycle(ctx context.Context) (model.AgentState, Outcome) {
	state := model.AgentState{
		CycleID:        uuid.NewString(),
		CurrentPhase:   model.PhaseObserve,
		ContinueLoop:   true,
		CycleStartTime: time.Now().UTC(),
		TotalCycles:    e.totalCycles,
	}
	e.lg.Info("cycle starting", "cycle", state.CycleID)

	phases := []struct {
		name model.Phase
		fn   func(context.Context, *model.AgentState) error
	}{
		{model.PhaseObserve, e.observe},
		{model.PhaseReason, e.reason},
		{model.PhasePlan, e.plan},
		{model.PhaseDecide, e.decide},
		{model.PhaseAct, e.act},
	}
	for _, p := range phases {
		if state.ErrorMessage != "" {
			break
		}
		state.CurrentPhase = p.name
		e.runPhase(ctx, p.name, &state, p.fn)
	}

	state.CurrentPhase = model.PhaseFeedback
	outcome := e.feedback(ctx, &state)

	e.totalCycles++
	state.TotalCycles = e.totalCycles
	end := time.Now().UTC()
	state.CycleEndTime = &end

	metrics.Cycles.WithLabelValues(string(outcome)).Inc()
	if err := e.st.RecordCycle(ctx, store.CycleRecord{
		CycleID:     state.CycleID,
		StartedAt:   state.CycleStartTime,
		Duration:    end.Sub(state.CycleStartTime),
		IssuesFound: len(state.CurrentIssues),
		DecisionID:  decisionID(state.SelectedDecision),
		Outcome:     string(outcome),
		Error:       state.ErrorMessage,
	}); err != nil {
		e.lg.Warn("recording cycle failed", "error", err)
	}
	e.lg.Info("cycle finished",
		"cycle", state.CycleID,
		"outcome", outcome,
		"issues", len(state.CurrentIssues),
		"duration", end.Sub(state.CycleStartTime))
	e.emit("cycle.finished", map[string]any{"cycleId": state.CycleID, "outcome": outcome})
	return state, outcome
}

// runPhase guards a phase: errors and panics both land in ErrorMessage so
// the transition check stops the loop instead of looping past a failure.
func (e *Engine) runPhase(ctx context.Context, name model.Phase, state *model.AgentState, fn func(context.Context, *model.AgentState) error) {
	start := time.Now()
	defer func() {
		metrics.PhaseDuration.WithLabelValues(string(name)).Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			state.ErrorMessage = fmt.Sprintf("%s phase panic: %v", name, r)
			e.lg.Error("phase panicked", "phase", name, "panic", r)
		}
	}()
	if err := fn(ctx, state); err != nil {
		state.ErrorMessage = fmt.Sprintf("%s phase: %v", name, err)
		e.lg.Error("phase failed", "phase", name, "error", err)
	}
}

func (e *Engine) observe(ctx context.Context, state *model.AgentState) error {
	snap, err := e.observer.Observe(ctx)
	if err != nil {
		return err
	}
	state.Snapshot = snap
	if snap.Degraded {
		e.lg.Warn("observing degraded", "cycle", state.CycleID)
	}
	e.emit("phase.observe", map[string]any{
		"cycleId": state.CycleID,
		"trucks":  len(snap.Trucks),
		"loads":   len(snap.Loads),
	})
	return nil
}

func (e *Engine) reason(ctx context.Context, state *model.AgentState) error {
	res, err := e.analyzer.Analyze(ctx, state.Snapshot)
	if err != nil {
		return err
	}
	res.Issues = reason.PrioritizeIssues(res.Issues)
	state.ReasoningResult = &res
	state.CurrentIssues = res.Issues
	for _, is := range res.Issues {
		metrics.IssuesDetected.WithLabelValues(is.Type, is.Severity).Inc()
	}
	e.emit("phase.reason", map[string]any{"cycleId": state.CycleID, "issues": len(res.Issues)})
	return nil
}

func (e *Engine) plan(ctx context.Context, state *model.AgentState) error {
	if len(state.CurrentIssues) == 0 {
		return nil
	}
	merged := model.PlanningResult{
		ComparisonMatrix: map[string]model.ScenarioScores{},
	}
	bestScore := -1.0
	for _, issue := range state.CurrentIssues {
		res := e.planner.Generate(issue, state.Snapshot)
		merged.Scenarios = append(merged.Scenarios, res.Scenarios...)
		for id, scores := range res.ComparisonMatrix {
			merged.ComparisonMatrix[id] = scores
			if scores.Overall > bestScore {
				bestScore = scores.Overall
				merged.RecommendedScenarioID = id
			}
		}
		if merged.IssueID == "" {
			merged.IssueID = issue.ID
		}
	}
	state.PlanningResult = &merged
	state.Scenarios = merged.Scenarios
	e.emit("phase.plan", map[string]any{"cycleId": state.CycleID, "scenarios": len(merged.Scenarios)})
	return nil
}

func (e *Engine) decide(ctx context.Context, state *model.AgentState) error {
	if len(state.CurrentIssues) == 0 {
		return nil
	}
	res := e.evaluator.Evaluate(state.Scenarios)
	state.DecisionResult = &res
	state.SelectedDecision = res.SelectedDecision
	if res.RequiresHumanApproval {
		state.RequiresHumanIntervention = true
	}

	if res.SelectedDecision != nil {
		approval := "auto"
		if res.RequiresHumanApproval {
			approval = "human"
		}
		metrics.Decisions.WithLabelValues(string(res.SelectedDecision.ActionType), approval).Inc()
		if err := e.st.SaveDecision(ctx, *res.SelectedDecision); err != nil {
			return err
		}
		e.emit("decision.created", res.SelectedDecision)
	}
	return nil
}

func (e *Engine) act(ctx context.Context, state *model.AgentState) error {
	if state.SelectedDecision == nil {
		return nil
	}
	if state.RequiresHumanIntervention {
		e.lg.Info("decision held for approval",
			"cycle", state.CycleID, "decision", state.SelectedDecision.ID)
		return nil
	}
	results := e.executor.Execute(ctx, *state.SelectedDecision)
	state.ActionResults = append(state.ActionResults, results...)
	for _, r := range results {
		if !r.Success {
			// executor failures are recoverable, feedback sees them
			e.lg.Warn("action failed", "decision", r.DecisionID, "message", r.Message)
		}
	}
	e.emit("phase.act", map[string]any{"cycleId": state.CycleID, "actions": len(results)})
	return nil
}

// feedback evaluates the transition rule: error beats human beats an
// explicit stop beats the no-issues exit; otherwise the loop continues.
func (e *Engine) feedback(ctx context.Context, state *model.AgentState) Outcome {
	fb := model.FeedbackResult{SystemHealth: "healthy"}
	for _, r := range state.ActionResults {
		if r.Success {
			fb.SucceededActions++
		} else {
			fb.FailedActions++
		}
	}
	if fb.FailedActions > 0 || state.Snapshot.Degraded {
		fb.SystemHealth = "degraded"
	}
	if state.ErrorMessage != "" {
		fb.SystemHealth = "error"
	}
	state.FeedbackResult = &fb

	switch {
	case state.ErrorMessage != "":
		return OutcomeError
	case state.RequiresHumanIntervention:
		return OutcomeHuman
	case !state.ContinueLoop:
		return OutcomeStop
	case len(state.CurrentIssues) == 0:
		return OutcomeStop
	default:
		return OutcomeContinue
	}
}

func decisionID(d *model.Decision) string {
	if d == nil {
		return ""
	}
	return d.ID
}
