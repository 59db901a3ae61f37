package opt

import (
	"container/heap"
	"math"
	"sort"
	"time"

	"fleetops/internal/model"
)

// Strategy selects how loads are matched to trucks.
type Strategy string

const (
	// StrategyGreedyHeap pops cheapest feasible (truck, load) pairs off a
	// min-heap. Fast and good enough; it does not guarantee a minimum-cost
	// matching.
	StrategyGreedyHeap Strategy = "greedy_heap"
	// StrategyGreedy list-schedules loads by priority and deadline.
	StrategyGreedy Strategy = "greedy"
	// StrategyPriorityFirst resolves urgent/critical loads before the rest.
	StrategyPriorityFirst Strategy = "priority_first"
)

// Assignment pairs a truck with a load. Output-only; recomputed every run.
type Assignment struct {
	TruckID          string    `json:"truckId"`
	LoadID           string    `json:"loadId"`
	EstimatedCost    float64   `json:"estimatedCost"`
	EstimatedTimeMin float64   `json:"estimatedTimeMinutes"`
	PickupETA        time.Time `json:"pickupEta"`
	DeliveryETA      time.Time `json:"deliveryEta"`
	ConfidenceScore  float64   `json:"confidenceScore"`
	PriorityScore    float64   `json:"priorityScore"`
}

// AssignmentSolution is the complete result of one assignment run.
// Infeasible loads surface in UnassignedLoads, never as an error.
type AssignmentSolution struct {
	Assignments       []Assignment `json:"assignments"`
	TotalCost         float64      `json:"totalCost"`
	UnassignedLoads   []string     `json:"unassignedLoads"`
	UtilizationRate   float64      `json:"utilizationRate"`
	OnTimeProbability float64      `json:"onTimeProbability"`
}

// AssignmentEngine matches loads to trucks under capacity, fuel-budget and
// deadline constraints.
type AssignmentEngine struct {
	Cost   *CostModel
	Routes *RouteOptimizer
}

func NewAssignmentEngine(cost *CostModel) *AssignmentEngine {
	if cost == nil {
		cost = DefaultCostModel()
	}
	return &AssignmentEngine{Cost: cost, Routes: NewRouteOptimizer(cost)}
}

// AssignLoads assigns unassigned loads to eligible trucks. Eligible trucks
// are idle or en-route with a known location; loads already assigned to a
// truck are skipped. Empty eligible sets short-circuit to an empty solution.
func (e *AssignmentEngine) AssignLoads(trucks []model.Truck, loads []model.Load, strategy Strategy, now time.Time) AssignmentSolution {
	eligible := make([]model.Truck, 0, len(trucks))
	for _, t := range trucks {
		if (t.Status == model.TruckIdle || t.Status == model.TruckEnRoute) && t.CurrentLocation != nil {
			eligible = append(eligible, t)
		}
	}
	pending := make([]model.Load, 0, len(loads))
	for _, l := range loads {
		if l.AssignedTruckID == "" {
			pending = append(pending, l)
		}
	}
	if len(eligible) == 0 || len(pending) == 0 {
		unassigned := make([]string, 0, len(pending))
		for _, l := range pending {
			unassigned = append(unassigned, l.ID)
		}
		return AssignmentSolution{
			Assignments:       []Assignment{},
			UnassignedLoads:   unassigned,
			UtilizationRate:   0,
			OnTimeProbability: 1.0,
		}
	}

	switch strategy {
	case StrategyGreedy:
		return e.greedy(eligible, pending, now)
	case StrategyPriorityFirst:
		return e.priorityFirst(eligible, pending, now)
	default:
		return e.greedyHeap(eligible, pending, now)
	}
}

type costPair struct {
	cost     float64
	truckIdx int
	loadIdx  int
}

type pairHeap []costPair

func (h pairHeap) Len() int           { return len(h) }
func (h pairHeap) Less(i, j int) bool { return h[i].cost < h[j].cost }
func (h pairHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *pairHeap) Push(x any)        { *h = append(*h, x.(costPair)) }
func (h *pairHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// greedyHeap builds the full feasible-cost matrix and commits pairs in
// ascending cost order, skipping trucks and loads already taken.
func (e *AssignmentEngine) greedyHeap(trucks []model.Truck, loads []model.Load, now time.Time) AssignmentSolution {
	h := &pairHeap{}
	for ti, t := range trucks {
		for li, l := range loads {
			if !e.Cost.CheckAssignmentConstraints(t, l, now) {
				continue
			}
			if cost := e.Cost.AssignmentCost(t, l); !math.IsInf(cost, 1) {
				heap.Push(h, costPair{cost: cost, truckIdx: ti, loadIdx: li})
			}
		}
	}

	assignments := []Assignment{}
	totalCost := 0.0
	usedTrucks := map[int]bool{}
	usedLoads := map[int]bool{}
	for h.Len() > 0 && len(usedLoads) < len(loads) {
		p := heap.Pop(h).(costPair)
		if usedTrucks[p.truckIdx] || usedLoads[p.loadIdx] {
			continue
		}
		assignments = append(assignments, e.buildAssignment(trucks[p.truckIdx], loads[p.loadIdx], p.cost, now))
		totalCost += p.cost
		usedTrucks[p.truckIdx] = true
		usedLoads[p.loadIdx] = true
	}
	return e.solution(trucks, loads, assignments, totalCost, len(usedTrucks))
}

// greedy sorts loads by (priority desc, deadline asc) and commits each to
// its cheapest feasible remaining truck immediately.
func (e *AssignmentEngine) greedy(trucks []model.Truck, loads []model.Load, now time.Time) AssignmentSolution {
	sorted := append([]model.Load(nil), loads...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority.Rank() != sorted[j].Priority.Rank() {
			return sorted[i].Priority.Rank() > sorted[j].Priority.Rank()
		}
		return deadlineOrMax(sorted[i]).Before(deadlineOrMax(sorted[j]))
	})

	assignments := []Assignment{}
	totalCost := 0.0
	remaining := append([]model.Truck(nil), trucks...)
	for _, l := range sorted {
		bestIdx := -1
		bestCost := math.Inf(1)
		for i, t := range remaining {
			if !e.Cost.CheckAssignmentConstraints(t, l, now) {
				continue
			}
			if cost := e.Cost.AssignmentCost(t, l); cost < bestCost {
				bestCost = cost
				bestIdx = i
			}
		}
		if bestIdx >= 0 {
			assignments = append(assignments, e.buildAssignment(remaining[bestIdx], l, bestCost, now))
			totalCost += bestCost
			remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
		}
	}
	return e.solution(trucks, loads, assignments, totalCost, len(trucks)-len(remaining))
}

// priorityFirst partitions loads into urgent/critical vs the rest, resolving
// the urgent partition by deadline first, each time picking the single best
// truck via the route optimizer.
func (e *AssignmentEngine) priorityFirst(trucks []model.Truck, loads []model.Load, now time.Time) AssignmentSolution {
	urgent := []model.Load{}
	rest := []model.Load{}
	for _, l := range loads {
		if l.Priority == model.PriorityUrgent || l.Priority == model.PriorityCritical {
			urgent = append(urgent, l)
		} else {
			rest = append(rest, l)
		}
	}
	sort.SliceStable(urgent, func(i, j int) bool {
		return deadlineOrMax(urgent[i]).Before(deadlineOrMax(urgent[j]))
	})

	assignments := []Assignment{}
	totalCost := 0.0
	remaining := append([]model.Truck(nil), trucks...)
	commit := func(l model.Load) {
		best, cost := e.Routes.FindBestTruckForLoad(l, remaining, nil)
		if best == nil {
			return
		}
		assignments = append(assignments, e.buildAssignment(*best, l, cost, now))
		totalCost += cost
		for i := range remaining {
			if remaining[i].ID == best.ID {
				remaining = append(remaining[:i], remaining[i+1:]...)
				break
			}
		}
	}
	for _, l := range urgent {
		commit(l)
	}
	for _, l := range rest {
		commit(l)
	}
	return e.solution(trucks, loads, assignments, totalCost, len(trucks)-len(remaining))
}

func (e *AssignmentEngine) buildAssignment(truck model.Truck, load model.Load, cost float64, now time.Time) Assignment {
	pickupETA := now.Add(time.Hour)
	if truck.CurrentLocation != nil {
		toPickup := truck.CurrentLocation.DistanceTo(load.PickupLocation)
		pickupETA = now.Add(time.Duration(toPickup / e.Cost.AvgSpeedKmh * float64(time.Hour)))
	}
	toDelivery := load.PickupLocation.DistanceTo(load.DeliveryLocation)
	deliveryETA := pickupETA.Add(time.Duration(toDelivery / e.Cost.AvgSpeedKmh * float64(time.Hour)))

	return Assignment{
		TruckID:          truck.ID,
		LoadID:           load.ID,
		EstimatedCost:    cost,
		EstimatedTimeMin: deliveryETA.Sub(now).Minutes(),
		PickupETA:        pickupETA,
		DeliveryETA:      deliveryETA,
		ConfidenceScore:  e.Cost.AssignmentConfidence(truck, load),
		PriorityScore:    float64(load.Priority.Rank()),
	}
}

func (e *AssignmentEngine) solution(trucks []model.Truck, loads []model.Load, assignments []Assignment, totalCost float64, trucksUsed int) AssignmentSolution {
	assigned := make(map[string]bool, len(assignments))
	for _, a := range assignments {
		assigned[a.LoadID] = true
	}
	unassigned := []string{}
	for _, l := range loads {
		if !assigned[l.ID] {
			unassigned = append(unassigned, l.ID)
		}
	}
	utilization := 0.0
	if len(trucks) > 0 {
		utilization = float64(trucksUsed) / float64(len(trucks))
	}
	onTime := 1.0
	if len(assignments) > 0 {
		sum := 0.0
		for _, a := range assignments {
			sum += a.ConfidenceScore
		}
		onTime = sum / float64(len(assignments))
	}
	return AssignmentSolution{
		Assignments:       assignments,
		TotalCost:         totalCost,
		UnassignedLoads:   unassigned,
		UtilizationRate:   utilization,
		OnTimeProbability: onTime,
	}
}

// Reassignment suggests moving a load from its current truck to a cheaper
// idle one.
type Reassignment struct {
	ToTruckID string `json:"toTruckId"`
	LoadID    string `json:"loadId"`
}

// OptimizeExistingAssignments suggests reassignments only when an idle truck
// beats the current cost by more than 20%, preventing thrash on marginal
// gains.
func (e *AssignmentEngine) OptimizeExistingAssignments(trucks []model.Truck, loads []model.Load, now time.Time) []Reassignment {
	loaded := []model.Truck{}
	idle := []model.Truck{}
	for _, t := range trucks {
		if t.CurrentLoadID != "" {
			loaded = append(loaded, t)
		}
		if t.Status == model.TruckIdle {
			idle = append(idle, t)
		}
	}
	if len(loaded) == 0 || len(idle) == 0 {
		return nil
	}
	byID := make(map[string]model.Load, len(loads))
	for _, l := range loads {
		byID[l.ID] = l
	}

	var out []Reassignment
	for _, lt := range loaded {
		load, ok := byID[lt.CurrentLoadID]
		if !ok {
			continue
		}
		currentCost := e.Cost.AssignmentCost(lt, load)
		for _, it := range idle {
			if !e.Cost.CheckAssignmentConstraints(it, load, now) {
				continue
			}
			if e.Cost.AssignmentCost(it, load) < currentCost*0.8 {
				out = append(out, Reassignment{ToTruckID: it.ID, LoadID: load.ID})
				break
			}
		}
	}
	return out
}

func deadlineOrMax(l model.Load) time.Time {
	if l.DeliveryDeadline != nil {
		return *l.DeliveryDeadline
	}
	return time.Unix(1<<62/int64(time.Second), 0)
}
