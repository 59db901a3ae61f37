package plan

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"fleetops/internal/model"
	"fleetops/internal/opt"
)

const DefaultMaxScenarios = 5

// Generator produces candidate remedial scenarios for one detected issue.
// Scenarios are ephemeral; each carries simulated cost/time/fuel estimates
// and a reliability score.
type Generator struct {
	Cost         *opt.CostModel
	Routes       *opt.RouteOptimizer
	Sim          *opt.Simulator
	MaxScenarios int
}

func NewGenerator(cost *opt.CostModel, maxScenarios int) *Generator {
	if cost == nil {
		cost = opt.DefaultCostModel()
	}
	if maxScenarios <= 0 {
		maxScenarios = DefaultMaxScenarios
	}
	return &Generator{
		Cost:         cost,
		Routes:       opt.NewRouteOptimizer(cost),
		Sim:          opt.NewSimulator(cost),
		MaxScenarios: maxScenarios,
	}
}

// Generate dispatches on the issue type and returns ranked scenarios with a
// comparison matrix. Unknown issue types get the generic monitor/escalate
// pair, never an empty plan.
func (g *Generator) Generate(issue model.Issue, snap model.Snapshot) model.PlanningResult {
	now := time.Now().UTC()
	var scenarios []model.Scenario
	switch issue.Type {
	case "stuck", "breakdown":
		scenarios = g.stuckScenarios(issue, snap, now)
	case "delay", "traffic":
		scenarios = g.delayScenarios(issue, now)
	case "capacity_mismatch":
		scenarios = g.capacityScenarios(issue, snap, now)
	default:
		scenarios = g.genericScenarios(issue)
	}

	ranked, matrix := rankScenarios(scenarios)
	if len(ranked) > g.MaxScenarios {
		ranked = ranked[:g.MaxScenarios]
	}
	result := model.PlanningResult{
		IssueID:          issue.ID,
		Scenarios:        ranked,
		ComparisonMatrix: matrix,
	}
	if len(ranked) > 0 {
		result.RecommendedScenarioID = ranked[0].ID
	}
	return result
}

func (g *Generator) stuckScenarios(issue model.Issue, snap model.Snapshot, now time.Time) []model.Scenario {
	var truck *model.Truck
	if len(issue.AffectedTruckIDs) > 0 {
		truck = truckByID(snap.Trucks, issue.AffectedTruckIDs[0])
	}
	var load *model.Load
	if truck != nil && truck.CurrentLoadID != "" {
		load = loadByID(snap.Loads, truck.CurrentLoadID)
	}

	var out []model.Scenario

	// Waiting pairs the idle cost with the travel that still remains.
	wait := g.Sim.SimulateWait(30, now)
	remaining := opt.SimOutcome{Reliability: 1.0}
	if truck != nil && truck.CurrentLocation != nil && load != nil {
		dist := truck.CurrentLocation.DistanceTo(load.DeliveryLocation)
		remaining = g.Sim.SimulateRoute(dist, 1.0, load.WeightKg, now)
	}
	out = append(out, model.Scenario{
		ID:          uuid.NewString(),
		Name:        "wait_and_resume",
		Description: "Hold position 30 minutes, then resume the planned route",
		Actions: []model.Action{{
			Type: model.ActionWait,
			Wait: &model.WaitAction{DurationMinutes: 30, TruckID: firstOrEmpty(issue.AffectedTruckIDs)},
		}},
		EstimatedCost:       wait.EstimatedCost + remaining.EstimatedCost,
		EstimatedTimeMin:    wait.EstimatedTimeMin + remaining.EstimatedTimeMin,
		EstimatedFuelLiters: remaining.FuelUsedL,
		ReliabilityScore:    minF(wait.Reliability, remaining.Reliability),
	})

	if truck != nil && truck.CurrentLocation != nil && load != nil {
		baseDist := truck.CurrentLocation.DistanceTo(load.DeliveryLocation)
		for i, detour := range []float64{1.15, 1.3} {
			sim := g.Sim.SimulateReroute(baseDist*detour, 1.0, load.WeightKg, now)
			out = append(out, model.Scenario{
				ID:          uuid.NewString(),
				Name:        fmt.Sprintf("reroute_alt_%d", i+1),
				Description: fmt.Sprintf("Detour around the blockage, %.0f%% longer but clear", (detour-1)*100),
				Actions: []model.Action{{
					Type:    model.ActionReroute,
					Reroute: &model.RerouteAction{TruckID: truck.ID, NewRoute: fmt.Sprintf("alt-%d", i+1)},
				}},
				EstimatedCost:       sim.EstimatedCost,
				EstimatedTimeMin:    sim.EstimatedTimeMin,
				EstimatedFuelLiters: sim.FuelUsedL,
				ReliabilityScore:    sim.Reliability,
			})
		}
	}

	if truck != nil && load != nil {
		if rescue := nearestIdleTruck(snap.Trucks, truck.ID, *load); rescue != nil {
			sim := g.Sim.SimulateReassignment(*rescue, *load, snap.TrafficConditions, now)
			out = append(out, model.Scenario{
				ID:          uuid.NewString(),
				Name:        "reassign_load",
				Description: fmt.Sprintf("Hand load %s over to truck %s", load.ID, rescue.ID),
				Actions: []model.Action{{
					Type:     model.ActionReassign,
					Reassign: &model.ReassignAction{FromTruckID: truck.ID, ToTruckID: rescue.ID, LoadID: load.ID},
				}},
				EstimatedCost:       sim.EstimatedCost,
				EstimatedTimeMin:    sim.EstimatedTimeMin,
				EstimatedFuelLiters: sim.FuelUsedL,
				ReliabilityScore:    sim.Reliability,
			})
		}
	}
	return out
}

func (g *Generator) delayScenarios(issue model.Issue, now time.Time) []model.Scenario {
	wait := g.Sim.SimulateWait(45, now)
	return []model.Scenario{
		{
			ID:          uuid.NewString(),
			Name:        "continue_and_notify",
			Description: "Keep driving and notify affected customers of the delay",
			Actions: []model.Action{{
				Type: model.ActionNotify,
				Notify: &model.NotifyAction{
					RecipientType: "customer",
					Message:       "Your delivery is delayed by traffic conditions",
				},
			}},
			EstimatedCost:    2,
			EstimatedTimeMin: 5,
			ReliabilityScore: 0.6,
		},
		{
			ID:          uuid.NewString(),
			Name:        "wait_out_peak",
			Description: "Wait 45 minutes for congestion to clear",
			Actions: []model.Action{{
				Type: model.ActionWait,
				Wait: &model.WaitAction{DurationMinutes: 45, TruckID: firstOrEmpty(issue.AffectedTruckIDs)},
			}},
			EstimatedCost:    wait.EstimatedCost,
			EstimatedTimeMin: wait.EstimatedTimeMin,
			ReliabilityScore: 0.75,
		},
	}
}

func (g *Generator) capacityScenarios(issue model.Issue, snap model.Snapshot, now time.Time) []model.Scenario {
	var load *model.Load
	if len(issue.AffectedLoadIDs) > 0 {
		load = loadByID(snap.Loads, issue.AffectedLoadIDs[0])
	}

	if load != nil {
		if idle := nearestIdleTruck(snap.Trucks, "", *load); idle != nil {
			sim := g.Sim.SimulateReassignment(*idle, *load, snap.TrafficConditions, now)
			return []model.Scenario{{
				ID:          uuid.NewString(),
				Name:        "dispatch_idle_truck",
				Description: fmt.Sprintf("Dispatch idle truck %s for load %s", idle.ID, load.ID),
				Actions: []model.Action{{
					Type:     model.ActionDispatch,
					Dispatch: &model.DispatchAction{TruckID: idle.ID, LoadID: load.ID},
				}},
				EstimatedCost:       sim.EstimatedCost,
				EstimatedTimeMin:    sim.EstimatedTimeMin,
				EstimatedFuelLiters: sim.FuelUsedL,
				ReliabilityScore:    0.95,
			}}
		}
	}
	return []model.Scenario{{
		ID:          uuid.NewString(),
		Name:        "escalate_capacity",
		Description: "No truck available, escalate to the dispatch manager",
		Actions: []model.Action{{
			Type:     model.ActionEscalate,
			Escalate: &model.EscalateAction{Reason: "no available truck for pending load", IssueID: issue.ID},
		}},
		EstimatedTimeMin: 10,
		ReliabilityScore: 0.8,
	}}
}

func (g *Generator) genericScenarios(issue model.Issue) []model.Scenario {
	return []model.Scenario{
		{
			ID:          uuid.NewString(),
			Name:        "monitor",
			Description: "Keep monitoring for 15 more minutes before acting",
			Actions: []model.Action{{
				Type: model.ActionWait,
				Wait: &model.WaitAction{DurationMinutes: 15},
			}},
			EstimatedTimeMin: 15,
			ReliabilityScore: 0.5,
		},
		{
			ID:          uuid.NewString(),
			Name:        "escalate_unknown",
			Description: "Escalate to a human operator",
			Actions: []model.Action{{
				Type:     model.ActionEscalate,
				Escalate: &model.EscalateAction{Reason: "unrecognized issue type: " + issue.Type, IssueID: issue.ID},
			}},
			EstimatedTimeMin: 10,
			ReliabilityScore: 0.9,
		},
	}
}

// rankScenarios scores each scenario, reliability dominating:
// 0.3*(1/(1+time/60)) + 0.2*(1/(1+cost/100)) + 0.5*reliability.
func rankScenarios(scenarios []model.Scenario) ([]model.Scenario, map[string]model.ScenarioScores) {
	matrix := make(map[string]model.ScenarioScores, len(scenarios))
	for _, s := range scenarios {
		timeScore := 1 / (1 + s.EstimatedTimeMin/60)
		costScore := 1 / (1 + s.EstimatedCost/100)
		matrix[s.ID] = model.ScenarioScores{
			Time:        timeScore,
			Cost:        costScore,
			Reliability: s.ReliabilityScore,
			Overall:     0.3*timeScore + 0.2*costScore + 0.5*s.ReliabilityScore,
		}
	}
	out := append([]model.Scenario(nil), scenarios...)
	sort.SliceStable(out, func(i, j int) bool {
		return matrix[out[i].ID].Overall > matrix[out[j].ID].Overall
	})
	return out, matrix
}

func truckByID(trucks []model.Truck, id string) *model.Truck {
	for i := range trucks {
		if trucks[i].ID == id {
			return &trucks[i]
		}
	}
	return nil
}

func loadByID(loads []model.Load, id string) *model.Load {
	for i := range loads {
		if loads[i].ID == id {
			return &loads[i]
		}
	}
	return nil
}

// nearestIdleTruck picks the closest idle truck with enough capacity,
// excluding excludeID.
func nearestIdleTruck(trucks []model.Truck, excludeID string, load model.Load) *model.Truck {
	var best *model.Truck
	bestDist := 0.0
	for i := range trucks {
		t := &trucks[i]
		if t.ID == excludeID || t.Status != model.TruckIdle || t.CurrentLocation == nil {
			continue
		}
		if t.CapacityKg < load.WeightKg {
			continue
		}
		d := t.CurrentLocation.DistanceTo(load.PickupLocation)
		if best == nil || d < bestDist {
			best = t
			bestDist = d
		}
	}
	return best
}

func firstOrEmpty(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
