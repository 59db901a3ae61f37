package agent

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"fleetops/internal/decide"
	"fleetops/internal/model"
	"fleetops/internal/perceive"
	"fleetops/internal/plan"
	"fleetops/internal/reason"
	"fleetops/internal/store"
)

func newTestEngine(t *testing.T, st store.Store) *Engine {
	t.Helper()
	ev, err := decide.NewEvaluator(decide.DefaultWeights(), 0)
	if err != nil {
		t.Fatal(err)
	}
	lg := slog.Default()
	return NewEngine(
		perceive.NewStoreProvider(lg, st),
		reason.NewRuleAnalyzer(),
		plan.NewGenerator(nil, 0),
		ev,
		NewStoreExecutor(st, lg),
		st,
		lg,
	)
}

func TestRunCycleNoIssuesStops(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	loc := model.Location{Latitude: 40.7, Longitude: -74.0}
	_ = st.PutTruck(ctx, model.Truck{ID: "t1", Status: model.TruckIdle, CurrentLocation: &loc, CapacityKg: 9000, FuelLevelPercent: 95})

	state, outcome := newTestEngine(t, st).RunCycle(ctx)
	if outcome != OutcomeStop {
		t.Fatalf("healthy fleet should stop the loop, got %s", outcome)
	}
	if state.ErrorMessage != "" {
		t.Fatalf("unexpected error: %s", state.ErrorMessage)
	}
	if len(state.CurrentIssues) != 0 {
		t.Fatalf("expected no issues, got %v", state.CurrentIssues)
	}
	cycles, _ := st.ListCycles(ctx, 10)
	if len(cycles) != 1 || cycles[0].Outcome != string(OutcomeStop) {
		t.Fatalf("cycle not recorded: %v", cycles)
	}
}

type failingObserver struct{}

func (failingObserver) Observe(ctx context.Context) (model.Snapshot, error) {
	return model.Snapshot{}, errors.New("collectors offline")
}

func TestRunCyclePhaseFailureStops(t *testing.T) {
	st := store.NewMemory()
	e := newTestEngine(t, st)
	e.observer = failingObserver{}

	state, outcome := e.RunCycle(context.Background())
	if outcome != OutcomeError {
		t.Fatalf("phase failure must stop the loop, got %s", outcome)
	}
	if state.ErrorMessage == "" {
		t.Fatal("error message must be recorded")
	}
	if state.FeedbackResult == nil || state.FeedbackResult.SystemHealth != "error" {
		t.Fatalf("feedback should report error health: %+v", state.FeedbackResult)
	}
}

func TestRunCycleStuckTruckActsAndContinues(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	t1Loc := model.Location{Latitude: 40.70, Longitude: -74.00}
	t2Loc := model.Location{Latitude: 40.72, Longitude: -74.02}
	_ = st.PutTruck(ctx, model.Truck{ID: "T1", Status: model.TruckStuck, CurrentLocation: &t1Loc, CurrentLoadID: "L1", CapacityKg: 10000, FuelLevelPercent: 80})
	_ = st.PutTruck(ctx, model.Truck{ID: "T2", Status: model.TruckIdle, CurrentLocation: &t2Loc, CapacityKg: 10000, FuelLevelPercent: 90})
	_ = st.PutLoad(ctx, model.Load{
		ID:               "L1",
		WeightKg:         2000,
		Priority:         model.PriorityHigh,
		PickupLocation:   model.Location{Latitude: 40.71, Longitude: -74.01},
		DeliveryLocation: model.Location{Latitude: 40.80, Longitude: -73.95},
		AssignedTruckID:  "T1",
	})

	state, outcome := newTestEngine(t, st).RunCycle(ctx)
	if state.ErrorMessage != "" {
		t.Fatalf("unexpected error: %s", state.ErrorMessage)
	}
	if len(state.CurrentIssues) == 0 {
		t.Fatal("stuck truck should surface an issue")
	}
	if len(state.Scenarios) == 0 {
		t.Fatal("planning should produce scenarios")
	}
	if state.SelectedDecision == nil {
		t.Fatal("a decision should be selected")
	}
	switch outcome {
	case OutcomeContinue:
		if len(state.ActionResults) == 0 {
			t.Fatal("continuing cycle should have executed actions")
		}
	case OutcomeHuman:
		if len(state.ActionResults) != 0 {
			t.Fatal("held decision must not execute actions")
		}
	default:
		t.Fatalf("unexpected outcome %s", outcome)
	}

	saved, err := st.GetDecision(ctx, state.SelectedDecision.ID)
	if err != nil {
		t.Fatalf("decision not persisted: %v", err)
	}
	if outcome == OutcomeContinue && saved.Status != model.DecisionExecuted {
		t.Fatalf("executed decision should be marked executed, got %s", saved.Status)
	}
}

func TestRunCycleEscalationRequiresHuman(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	// critical load with no trucks at all: capacity_mismatch -> escalate
	_ = st.PutLoad(ctx, model.Load{
		ID:               "L1",
		WeightKg:         4000,
		Priority:         model.PriorityCritical,
		PickupLocation:   model.Location{Latitude: 40.71, Longitude: -74.01},
		DeliveryLocation: model.Location{Latitude: 40.75, Longitude: -73.98},
	})

	state, outcome := newTestEngine(t, st).RunCycle(ctx)
	if outcome != OutcomeHuman {
		t.Fatalf("escalation should hand off to a human, got %s", outcome)
	}
	if !state.RequiresHumanIntervention {
		t.Fatal("human intervention flag must be set")
	}
	if state.SelectedDecision == nil || state.SelectedDecision.ActionType != model.ActionEscalate {
		t.Fatalf("expected escalate decision, got %+v", state.SelectedDecision)
	}
	if len(state.ActionResults) != 0 {
		t.Fatal("held decision must not execute")
	}
	pending, _ := st.ListDecisions(ctx, model.DecisionPending)
	if len(pending) != 1 {
		t.Fatalf("decision should be stored pending approval, got %d", len(pending))
	}
}
