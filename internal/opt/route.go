package opt

import (
	"math"

	"fleetops/internal/model"
)

// RouteSegment is one leg of an optimized route, ending at a pickup or
// delivery stop for LoadID.
type RouteSegment struct {
	Start            model.Location `json:"start"`
	End              model.Location `json:"end"`
	Kind             string         `json:"kind"`
	LoadID           string         `json:"loadId"`
	DistanceKm       float64        `json:"distanceKm"`
	EstimatedTimeMin float64        `json:"estimatedTimeMinutes"`
	TrafficFactor    float64        `json:"trafficFactor"`
}

// OptimizedRoute is an ordered visiting plan with aggregate estimates.
type OptimizedRoute struct {
	Segments              []RouteSegment `json:"segments"`
	TotalDistanceKm       float64        `json:"totalDistanceKm"`
	TotalTimeMin          float64        `json:"totalTimeMinutes"`
	TotalCost             float64        `json:"totalCost"`
	FuelConsumptionLiters float64        `json:"fuelConsumptionLiters"`
	ConfidenceScore       float64        `json:"confidenceScore"`
}

// RouteOptimizer builds traffic-aware visiting orders for a truck's pending
// pickups and deliveries using nearest-neighbor construction with 2-opt
// improvement, then enforces pickup-before-delivery ordering.
type RouteOptimizer struct {
	Cost *CostModel
}

func NewRouteOptimizer(cost *CostModel) *RouteOptimizer {
	if cost == nil {
		cost = DefaultCostModel()
	}
	return &RouteOptimizer{Cost: cost}
}

// Optimize plans a route for truck over loads. Every load contributes a
// pickup node and a delivery node; the origin is the truck position or,
// when unknown, the first pickup.
func (r *RouteOptimizer) Optimize(truck model.Truck, loads []model.Load, traffic []model.TrafficCondition) OptimizedRoute {
	if len(loads) == 0 {
		return OptimizedRoute{Segments: []RouteSegment{}, ConfidenceScore: 1.0}
	}

	start := loads[0].PickupLocation
	if truck.CurrentLocation != nil {
		start = *truck.CurrentLocation
	}

	// node i*2 is load i's pickup, i*2+1 its delivery
	nodes := make([]model.Location, 0, len(loads)*2)
	for _, ld := range loads {
		nodes = append(nodes, ld.PickupLocation, ld.DeliveryLocation)
	}

	all := append([]model.Location{start}, nodes...)
	matrix := distanceMatrix(all)
	factor := AvgDelayFactor(traffic)

	var order []int
	if len(nodes) <= 2 {
		order = seqOrder(len(nodes))
	} else {
		order = nearestNeighborOrder(matrix)
		order = r.twoOptImprove(order, matrix)
	}
	order = enforcePickupBeforeDelivery(order, len(loads))

	segments := make([]RouteSegment, 0, len(order))
	current := start
	currentIdx := 0
	totalDistance := 0.0
	totalTime := 0.0
	for _, next := range order {
		dist := matrix[currentIdx][next+1]
		timeMin := dist / (r.Cost.BaseSpeedKmh / factor) * 60
		kind := "pickup"
		if next%2 == 1 {
			kind = "delivery"
		}
		segments = append(segments, RouteSegment{
			Start:            current,
			End:              nodes[next],
			Kind:             kind,
			LoadID:           loads[next/2].ID,
			DistanceKm:       round2(dist),
			EstimatedTimeMin: round1(timeMin),
			TrafficFactor:    factor,
		})
		totalDistance += dist
		totalTime += timeMin
		current = nodes[next]
		currentIdx = next + 1
	}

	totalWeight := 0.0
	for _, ld := range loads {
		totalWeight += ld.WeightKg
	}
	fuel := r.Cost.FuelConsumption(totalDistance, totalWeight)
	cost := fuel*r.Cost.FuelPricePerL + totalTime/60*r.Cost.HourlyRate()

	return OptimizedRoute{
		Segments:              segments,
		TotalDistanceKm:       round2(totalDistance),
		TotalTimeMin:          round1(totalTime),
		TotalCost:             round2(cost),
		FuelConsumptionLiters: round2(fuel),
		ConfidenceScore:       routeConfidence(totalDistance, traffic),
	}
}

// FindBestTruckForLoad scans candidates and returns the lowest-scoring
// feasible truck with its score, or (nil, +Inf) when no truck qualifies.
// Score is the fuel+time cost scaled by the load priority multiplier from
// find-best scoring and a low-fuel penalty.
func (r *RouteOptimizer) FindBestTruckForLoad(load model.Load, trucks []model.Truck, traffic []model.TrafficCondition) (*model.Truck, float64) {
	best := math.Inf(1)
	var bestTruck *model.Truck
	for i := range trucks {
		t := &trucks[i]
		if t.CapacityKg < load.WeightKg {
			continue
		}
		score := r.truckLoadScore(*t, load, traffic)
		if score < best {
			best = score
			bestTruck = t
		}
	}
	return bestTruck, best
}

func (r *RouteOptimizer) truckLoadScore(truck model.Truck, load model.Load, traffic []model.TrafficCondition) float64 {
	if truck.CurrentLocation == nil {
		return math.Inf(1)
	}
	toPickup := truck.CurrentLocation.DistanceTo(load.PickupLocation)
	toDelivery := load.PickupLocation.DistanceTo(load.DeliveryLocation)
	total := toPickup + toDelivery
	hours := total / r.Cost.BaseSpeedKmh * AvgDelayFactor(traffic)

	fuelCost := total * r.Cost.FuelRateLPerKm * r.Cost.FuelPricePerL
	timeCost := hours * r.Cost.HourlyRate()

	priorityFactor := 1.0
	switch load.Priority {
	case model.PriorityNormal:
		priorityFactor = 0.9
	case model.PriorityHigh:
		priorityFactor = 0.7
	case model.PriorityUrgent:
		priorityFactor = 0.5
	case model.PriorityCritical:
		priorityFactor = 0.3
	}

	fuelFactor := 1.0
	if truck.FuelLevelPercent <= 30 {
		fuelFactor = 1.5
	}
	return (fuelCost + timeCost) * priorityFactor * fuelFactor
}

func distanceMatrix(locs []model.Location) [][]float64 {
	n := len(locs)
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		for j := range m[i] {
			if i != j {
				m[i][j] = locs[i].DistanceTo(locs[j])
			}
		}
	}
	return m
}

func seqOrder(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

// nearestNeighborOrder builds an initial tour over the node part of the
// matrix, starting from the origin at matrix row 0.
func nearestNeighborOrder(matrix [][]float64) []int {
	n := len(matrix) - 1
	unvisited := make(map[int]bool, n)
	for i := 0; i < n; i++ {
		unvisited[i] = true
	}
	order := make([]int, 0, n)
	currentRow := 0 // origin
	for len(unvisited) > 0 {
		nearest := -1
		nearestDist := math.Inf(1)
		for node := range unvisited {
			if d := matrix[currentRow][node+1]; d < nearestDist {
				nearestDist = d
				nearest = node
			}
		}
		order = append(order, nearest)
		delete(unvisited, nearest)
		currentRow = nearest + 1
	}
	return order
}

// twoOptImprove repeatedly reverses the best-improving sub-segment until no
// improving move exists.
func (r *RouteOptimizer) twoOptImprove(order []int, matrix [][]float64) []int {
	best := append([]int(nil), order...)
	bestDist := tourDistance(best, matrix)
	improved := true
	for improved {
		improved = false
		for i := 0; i < len(best)-1; i++ {
			for k := i + 1; k < len(best); k++ {
				cand := twoOptSwap(best, i, k)
				if d := tourDistance(cand, matrix); d+1e-9 < bestDist {
					best = cand
					bestDist = d
					improved = true
				}
			}
		}
	}
	return best
}

func twoOptSwap(order []int, i, k int) []int {
	out := make([]int, len(order))
	copy(out, order[:i])
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = order[j]
		pos++
	}
	copy(out[pos:], order[k+1:])
	return out
}

// tourDistance measures origin -> nodes in order, using matrix rows offset
// by one for the origin.
func tourDistance(order []int, matrix [][]float64) float64 {
	total := 0.0
	row := 0
	for _, node := range order {
		total += matrix[row][node+1]
		row = node + 1
	}
	return total
}

// enforcePickupBeforeDelivery repairs the order so each load's pickup node
// (2i) precedes its delivery node (2i+1), swapping violated pairs in place
// so the rest of the tour is preserved.
func enforcePickupBeforeDelivery(order []int, numLoads int) []int {
	out := append([]int(nil), order...)
	pos := make(map[int]int, len(out))
	for i, node := range out {
		pos[node] = i
	}
	for load := 0; load < numLoads; load++ {
		pickup, delivery := load*2, load*2+1
		pPos, pOK := pos[pickup]
		dPos, dOK := pos[delivery]
		if pOK && dOK && dPos < pPos {
			out[pPos], out[dPos] = out[dPos], out[pPos]
			pos[pickup], pos[delivery] = dPos, pPos
		}
	}
	return out
}

func routeConfidence(totalDistanceKm float64, traffic []model.TrafficCondition) float64 {
	conf := 0.9
	heavy := 0
	for _, tc := range traffic {
		if tc.DelayFactor() > 1.5 {
			heavy++
		}
	}
	conf -= float64(heavy) * 0.1
	if totalDistanceKm > 200 {
		conf -= (totalDistanceKm - 200) / 1000 * 0.1
	}
	return clamp(conf, 0.3, 1.0)
}
