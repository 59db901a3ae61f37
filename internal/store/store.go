package store

import (
	"context"
	"errors"
	"time"

	"fleetops/internal/model"
)

// Store is the fleet state repository shared by the API server, the control
// loop and the background simulator. Implementations must make Snapshot a
// point-in-time copy and ApplyDecision all-or-nothing.
type Store interface {
	// Trucks
	PutTruck(ctx context.Context, t model.Truck) error
	GetTruck(ctx context.Context, id string) (model.Truck, error)
	ListTrucks(ctx context.Context) ([]model.Truck, error)
	// UpdateTruckPosition records a GPS reading: position, last reading and
	// odometer on the truck plus an entry in the bounded reading history.
	UpdateTruckPosition(ctx context.Context, r model.GPSReading) error

	// Loads
	PutLoad(ctx context.Context, l model.Load) error
	GetLoad(ctx context.Context, id string) (model.Load, error)
	ListLoads(ctx context.Context) ([]model.Load, error)

	// Telemetry
	RecentGPSReadings(ctx context.Context, truckID string, limit int) ([]model.GPSReading, error)
	PutTrafficConditions(ctx context.Context, conds []model.TrafficCondition) error
	ListTrafficConditions(ctx context.Context) ([]model.TrafficCondition, error)

	// Decisions
	SaveDecision(ctx context.Context, d model.Decision) error
	GetDecision(ctx context.Context, id string) (model.Decision, error)
	ListDecisions(ctx context.Context, status model.DecisionStatus) ([]model.Decision, error)
	SetDecisionStatus(ctx context.Context, id string, status model.DecisionStatus, approvedBy string) (model.Decision, error)
	// ApplyDecision mutates truck/load state for every action in the
	// decision atomically and marks the decision executed.
	ApplyDecision(ctx context.Context, d model.Decision) error

	// Snapshot returns a deep copy of current fleet state.
	Snapshot(ctx context.Context) (model.Snapshot, error)

	// Cycle history
	RecordCycle(ctx context.Context, c CycleRecord) error
	ListCycles(ctx context.Context, limit int) ([]CycleRecord, error)
}

// CycleRecord summarizes one completed control-loop cycle.
type CycleRecord struct {
	CycleID     string        `json:"cycleId"`
	StartedAt   time.Time     `json:"startedAt"`
	Duration    time.Duration `json:"duration"`
	IssuesFound int           `json:"issuesFound"`
	DecisionID  string        `json:"decisionId,omitempty"`
	Outcome     string        `json:"outcome"` // continue, stop, human, error
	Error       string        `json:"error,omitempty"`
}

var ErrNotFound = errors.New("not found")

// gpsHistoryLimit bounds per-truck reading history in every implementation.
const gpsHistoryLimit = 50
