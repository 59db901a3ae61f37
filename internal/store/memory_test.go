package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"fleetops/internal/model"
)

func seedTruck(id string, status model.TruckStatus, lat, lon float64) model.Truck {
	loc := model.Location{Latitude: lat, Longitude: lon}
	return model.Truck{
		ID:               id,
		Name:             "Truck " + id,
		Status:           status,
		CurrentLocation:  &loc,
		CapacityKg:       10000,
		FuelLevelPercent: 90,
	}
}

func TestMemoryTruckRoundtrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.PutTruck(ctx, seedTruck("t1", model.TruckIdle, 40.7, -74.0)); err != nil {
		t.Fatal(err)
	}
	got, err := m.GetTruck(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Truck t1" || got.Status != model.TruckIdle {
		t.Fatalf("unexpected truck: %+v", got)
	}
	if _, err := m.GetTruck(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemorySnapshotIsolated(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.PutTruck(ctx, seedTruck("t1", model.TruckIdle, 40.7, -74.0)); err != nil {
		t.Fatal(err)
	}

	snap, err := m.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	// mutating the snapshot must not leak into the store
	snap.Trucks[0].Status = model.TruckStuck
	snap.Trucks[0].CurrentLocation.Latitude = 0

	got, _ := m.GetTruck(ctx, "t1")
	if got.Status != model.TruckIdle {
		t.Fatalf("snapshot mutation leaked status: %s", got.Status)
	}
	if got.CurrentLocation.Latitude != 40.7 {
		t.Fatalf("snapshot mutation leaked location: %v", got.CurrentLocation)
	}
}

func TestMemoryGPSHistoryBounded(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.PutTruck(ctx, seedTruck("t1", model.TruckEnRoute, 40.7, -74.0)); err != nil {
		t.Fatal(err)
	}
	base := time.Now().Add(-time.Hour)
	for i := 0; i < gpsHistoryLimit+20; i++ {
		r := model.GPSReading{
			TruckID:   "t1",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Location:  model.Location{Latitude: 40.7 + float64(i)*0.001, Longitude: -74.0},
			SpeedKmh:  40,
		}
		if err := m.UpdateTruckPosition(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	hist, err := m.RecentGPSReadings(ctx, "t1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != gpsHistoryLimit {
		t.Fatalf("history not bounded: %d", len(hist))
	}
	truck, _ := m.GetTruck(ctx, "t1")
	if truck.TotalDistanceKm <= 0 {
		t.Fatal("odometer should advance with position updates")
	}
	if truck.LastGPSReading == nil || !truck.LastGPSReading.Timestamp.Equal(hist[len(hist)-1].Timestamp) {
		t.Fatal("last reading should match newest history entry")
	}
}

func TestMemoryApplyDecisionReassign(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	from := seedTruck("from", model.TruckStuck, 40.7, -74.0)
	from.CurrentLoadID = "l1"
	to := seedTruck("to", model.TruckIdle, 40.71, -74.01)
	_ = m.PutTruck(ctx, from)
	_ = m.PutTruck(ctx, to)
	_ = m.PutLoad(ctx, model.Load{ID: "l1", WeightKg: 1000, Priority: model.PriorityHigh, AssignedTruckID: "from"})

	d := model.Decision{
		ID:         "d1",
		ActionType: model.ActionReassign,
		Actions: []model.Action{{
			Type:     model.ActionReassign,
			Reassign: &model.ReassignAction{FromTruckID: "from", ToTruckID: "to", LoadID: "l1"},
		}},
		Status: model.DecisionApproved,
	}
	_ = m.SaveDecision(ctx, d)
	if err := m.ApplyDecision(ctx, d); err != nil {
		t.Fatal(err)
	}

	gotFrom, _ := m.GetTruck(ctx, "from")
	gotTo, _ := m.GetTruck(ctx, "to")
	gotLoad, _ := m.GetLoad(ctx, "l1")
	if gotFrom.CurrentLoadID != "" || gotFrom.Status != model.TruckIdle {
		t.Fatalf("from truck not released: %+v", gotFrom)
	}
	if gotTo.CurrentLoadID != "l1" || gotTo.Status != model.TruckEnRoute {
		t.Fatalf("to truck not engaged: %+v", gotTo)
	}
	if gotLoad.AssignedTruckID != "to" {
		t.Fatalf("load not reassigned: %+v", gotLoad)
	}
	gotDec, _ := m.GetDecision(ctx, "d1")
	if gotDec.Status != model.DecisionExecuted {
		t.Fatalf("decision not marked executed: %s", gotDec.Status)
	}
}

func TestMemoryApplyDecisionAtomic(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_ = m.PutTruck(ctx, seedTruck("t1", model.TruckIdle, 40.7, -74.0))

	// second action references a missing load, so the first must not commit
	d := model.Decision{
		ID:         "d1",
		ActionType: model.ActionDispatch,
		Actions: []model.Action{
			{Type: model.ActionDispatch, Dispatch: &model.DispatchAction{TruckID: "t1"}},
			{Type: model.ActionReassign, Reassign: &model.ReassignAction{FromTruckID: "t1", ToTruckID: "t1", LoadID: "missing"}},
		},
	}
	if err := m.ApplyDecision(ctx, d); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	got, _ := m.GetTruck(ctx, "t1")
	if got.Status != model.TruckIdle {
		t.Fatalf("partial apply leaked: %+v", got)
	}
}

func TestMemoryDecisionWorkflow(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_ = m.SaveDecision(ctx, model.Decision{ID: "d1", Status: model.DecisionPending, DecidedAt: time.Now()})

	pending, err := m.ListDecisions(ctx, model.DecisionPending)
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected 1 pending decision, got %d (%v)", len(pending), err)
	}
	approved, err := m.SetDecisionStatus(ctx, "d1", model.DecisionApproved, "dispatcher-7")
	if err != nil {
		t.Fatal(err)
	}
	if !approved.HumanApproved || approved.ApprovedBy != "dispatcher-7" {
		t.Fatalf("approval fields not set: %+v", approved)
	}
	if _, err := m.SetDecisionStatus(ctx, "nope", model.DecisionRejected, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
