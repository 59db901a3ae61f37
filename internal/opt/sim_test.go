package opt

import (
	"testing"
	"time"

	"fleetops/internal/model"
)

func TestSimulateRouteHeavyTrafficCostsMore(t *testing.T) {
	s := NewSimulator(nil)
	now := time.Now()
	clear := s.SimulateRoute(60, 1.0, 2000, now)
	jammed := s.SimulateRoute(60, 1.7, 2000, now)

	if jammed.EstimatedTimeMin <= clear.EstimatedTimeMin {
		t.Fatalf("jammed route should take longer: %f <= %f",
			jammed.EstimatedTimeMin, clear.EstimatedTimeMin)
	}
	if jammed.EstimatedCost <= clear.EstimatedCost {
		t.Fatalf("jammed route should cost more: %f <= %f",
			jammed.EstimatedCost, clear.EstimatedCost)
	}
	if jammed.Reliability >= clear.Reliability {
		t.Fatalf("jammed route should be less reliable")
	}
	// fuel burn depends on distance and weight, not congestion
	if jammed.FuelUsedL != clear.FuelUsedL {
		t.Fatalf("fuel should not depend on traffic: %f != %f",
			jammed.FuelUsedL, clear.FuelUsedL)
	}
}

func TestSimulateReassignmentIncludesHandoff(t *testing.T) {
	s := NewSimulator(nil)
	now := time.Now()
	truck := testTruck("t2", 40.70, -74.00)
	load := testLoad("l1",
		loc(40.0+10*degPerKm, -74.0),
		loc(40.0+30*degPerKm, -74.0),
		1000, model.PriorityNormal)

	out := s.SimulateReassignment(truck, load, nil, now)
	// pure drive time at 60 km/h plus the fixed 15 minute handoff
	dist := truck.CurrentLocation.DistanceTo(load.PickupLocation) +
		load.PickupLocation.DistanceTo(load.DeliveryLocation)
	driveMin := dist / 60 * 60
	if out.EstimatedTimeMin < driveMin+14.9 {
		t.Fatalf("expected handoff time included: %f < %f", out.EstimatedTimeMin, driveMin+15)
	}
	if !out.ETA.After(now) {
		t.Fatal("ETA should be in the future")
	}
}

func TestSimulateWaitBurnsNoFuel(t *testing.T) {
	s := NewSimulator(nil)
	out := s.SimulateWait(30, time.Now())
	if out.FuelUsedL != 0 {
		t.Fatalf("waiting should not burn fuel, got %f", out.FuelUsedL)
	}
	// 0.5h * 25 driver + 0.5h * 10 * 0.5 vehicle opportunity = 15.00
	if out.EstimatedCost != 15.0 {
		t.Fatalf("expected wait cost 15.00, got %f", out.EstimatedCost)
	}
}

func TestCompareScenariosRanksBestFirst(t *testing.T) {
	s := NewSimulator(nil)
	outcomes := []SimOutcome{
		{EstimatedTimeMin: 120, EstimatedCost: 90, FuelUsedL: 30, Reliability: 0.6},
		{EstimatedTimeMin: 45, EstimatedCost: 40, FuelUsedL: 12, Reliability: 0.9},
		{EstimatedTimeMin: 80, EstimatedCost: 70, FuelUsedL: 20, Reliability: 0.7},
	}
	ranked := s.CompareScenarios(outcomes)
	if len(ranked) != 3 {
		t.Fatalf("expected 3 indexes, got %d", len(ranked))
	}
	if ranked[0] != 1 {
		t.Fatalf("outcome 1 dominates on every criterion, got rank order %v", ranked)
	}

	single := s.CompareScenarios(outcomes[:1])
	if len(single) != 1 || single[0] != 0 {
		t.Fatalf("single outcome ranks trivially, got %v", single)
	}
}

func TestCompareScenariosWeighsTimeOverCost(t *testing.T) {
	s := NewSimulator(nil)
	// fast-but-expensive vs cheap-but-slow, everything else equal: the 0.4
	// time weight must beat the 0.3 cost weight
	outcomes := []SimOutcome{
		{EstimatedTimeMin: 10, EstimatedCost: 100, FuelUsedL: 10, Reliability: 0.9},
		{EstimatedTimeMin: 100, EstimatedCost: 10, FuelUsedL: 10, Reliability: 0.9},
	}
	ranked := s.CompareScenarios(outcomes)
	if ranked[0] != 0 {
		t.Fatalf("faster scenario should win under 0.4 time / 0.3 cost, got %v", ranked)
	}
}

func TestCompareScenariosReliabilityBreaksTies(t *testing.T) {
	s := NewSimulator(nil)
	outcomes := []SimOutcome{
		{EstimatedTimeMin: 60, EstimatedCost: 50, FuelUsedL: 15, Reliability: 0.5},
		{EstimatedTimeMin: 60, EstimatedCost: 50, FuelUsedL: 15, Reliability: 0.95},
	}
	ranked := s.CompareScenarios(outcomes)
	if ranked[0] != 1 {
		t.Fatalf("higher reliability should rank first on otherwise equal outcomes, got %v", ranked)
	}
}
