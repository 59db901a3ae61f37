package agent

import (
	"context"
	"testing"
	"time"

	"fleetops/internal/model"
	"fleetops/internal/store"
)

func TestRunnerStopsWithinOneCycleOnQuietFleet(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	loc := model.Location{Latitude: 40.7, Longitude: -74.0}
	_ = st.PutTruck(ctx, model.Truck{ID: "t1", Status: model.TruckIdle, CurrentLocation: &loc, CapacityKg: 9000, FuelLevelPercent: 95})

	r := NewRunner(newTestEngine(t, st), time.Millisecond, nil)
	if !r.Start(ctx) {
		t.Fatal("start should succeed")
	}
	if r.Start(ctx) {
		t.Fatal("second start while running should be a no-op")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := r.Status(); !s.Running {
			if s.LastOutcome != OutcomeStop {
				t.Fatalf("expected stop outcome, got %s", s.LastOutcome)
			}
			if s.LastCycle == nil || s.LastCycle.TotalCycles != 1 {
				t.Fatalf("expected exactly one cycle, got %+v", s.LastCycle)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("runner did not stop within one cycle")
}

func TestRunnerStopSignal(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	// a permanently stuck truck keeps the loop continuing until stopped
	loc := model.Location{Latitude: 40.70, Longitude: -74.00}
	loc2 := model.Location{Latitude: 40.72, Longitude: -74.02}
	_ = st.PutTruck(ctx, model.Truck{ID: "T1", Status: model.TruckStuck, CurrentLocation: &loc, CurrentLoadID: "L1", CapacityKg: 10000, FuelLevelPercent: 80})
	_ = st.PutTruck(ctx, model.Truck{ID: "T2", Status: model.TruckIdle, CurrentLocation: &loc2, CapacityKg: 10000, FuelLevelPercent: 90})
	_ = st.PutLoad(ctx, model.Load{
		ID:               "L1",
		WeightKg:         2000,
		Priority:         model.PriorityHigh,
		PickupLocation:   model.Location{Latitude: 40.71, Longitude: -74.01},
		DeliveryLocation: model.Location{Latitude: 40.80, Longitude: -73.95},
		AssignedTruckID:  "T1",
	})

	r := NewRunner(newTestEngine(t, st), time.Millisecond, nil)
	r.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	stopped := r.Stop()
	if s := r.Status(); s.Running {
		t.Fatal("runner should not be running after Stop")
	}
	// Stop returns false when the loop already exited on its own
	// (for example after a reassign decision was held for approval).
	_ = stopped
	if r.Status().LastCycle == nil {
		t.Fatal("at least one cycle should have completed")
	}
}

func TestRunOnce(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	r := NewRunner(newTestEngine(t, st), time.Second, nil)
	state, outcome := r.RunOnce(ctx)
	if outcome != OutcomeStop {
		t.Fatalf("empty fleet should stop, got %s", outcome)
	}
	if state.CycleID == "" {
		t.Fatal("cycle id missing")
	}
	if s := r.Status(); s.LastCycle == nil || s.LastCycle.CycleID != state.CycleID {
		t.Fatal("status should reflect the last cycle")
	}
}
