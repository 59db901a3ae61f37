package opt

import (
	"time"

	"fleetops/internal/model"
)

// SimOutcome is the predicted result of playing out one candidate action.
type SimOutcome struct {
	EstimatedTimeMin float64   `json:"estimatedTimeMinutes"`
	EstimatedCost    float64   `json:"estimatedCost"`
	FuelUsedL        float64   `json:"fuelUsedLiters"`
	Reliability      float64   `json:"reliability"`
	ETA              time.Time `json:"eta"`
}

// Simulator predicts time, cost and fuel outcomes for candidate actions
// without touching fleet state.
type Simulator struct {
	Cost *CostModel
}

func NewSimulator(cost *CostModel) *Simulator {
	if cost == nil {
		cost = DefaultCostModel()
	}
	return &Simulator{Cost: cost}
}

// SimulateRoute plays out driving a known distance under a traffic delay
// factor with the given cargo weight.
func (s *Simulator) SimulateRoute(distanceKm, delayFactor, cargoWeightKg float64, now time.Time) SimOutcome {
	if delayFactor <= 0 {
		delayFactor = 1.0
	}
	speed := s.Cost.BaseSpeedKmh / delayFactor
	timeMin := distanceKm / speed * 60
	fuel := s.Cost.FuelConsumption(distanceKm, cargoWeightKg)
	cost := fuel*s.Cost.FuelPricePerL + timeMin/60*s.Cost.HourlyRate()
	reliability := 1.0
	if delayFactor > 1.3 {
		reliability = 0.8
	}
	return SimOutcome{
		EstimatedTimeMin: round1(timeMin),
		EstimatedCost:    round2(cost),
		FuelUsedL:        round2(fuel),
		Reliability:      reliability,
		ETA:              now.Add(time.Duration(timeMin * float64(time.Minute))),
	}
}

// SimulateReroute evaluates an alternate route of newDistanceKm under its
// own traffic factor. Detours trade distance for lighter traffic.
func (s *Simulator) SimulateReroute(newDistanceKm, newDelayFactor, cargoWeightKg float64, now time.Time) SimOutcome {
	out := s.SimulateRoute(newDistanceKm, newDelayFactor, cargoWeightKg, now)
	// A reroute starts with less certainty than staying on a known route.
	out.Reliability -= 0.1
	if out.Reliability < 0.3 {
		out.Reliability = 0.3
	}
	return out
}

// SimulateReassignment moves a load to another truck: the new truck drives
// to the pickup, a 15 minute handoff happens, then the delivery runs as
// normal. Handoff labor is billed at the combined hourly rate.
func (s *Simulator) SimulateReassignment(newTruck model.Truck, load model.Load, traffic []model.TrafficCondition, now time.Time) SimOutcome {
	const handoffMin = 15.0

	toPickup := 0.0
	if newTruck.CurrentLocation != nil {
		toPickup = newTruck.CurrentLocation.DistanceTo(load.PickupLocation)
	}
	toDelivery := load.PickupLocation.DistanceTo(load.DeliveryLocation)
	delay := AvgDelayFactor(traffic)
	speed := s.Cost.BaseSpeedKmh / delay

	driveMin := (toPickup + toDelivery) / speed * 60
	totalMin := driveMin + handoffMin
	fuel := s.Cost.FuelConsumption(toPickup+toDelivery, load.WeightKg)
	cost := fuel*s.Cost.FuelPricePerL + totalMin/60*s.Cost.HourlyRate()

	return SimOutcome{
		EstimatedTimeMin: round1(totalMin),
		EstimatedCost:    round2(cost),
		FuelUsedL:        round2(fuel),
		Reliability:      s.Cost.AssignmentConfidence(newTruck, load),
		ETA:              now.Add(time.Duration(totalMin * float64(time.Minute))),
	}
}

// SimulateWait prices standing still for durationMin. Cost is idle driver
// time plus half the vehicle rate as opportunity cost; no fuel is burned.
func (s *Simulator) SimulateWait(durationMin float64, now time.Time) SimOutcome {
	hours := durationMin / 60
	cost := hours*s.Cost.DriverRatePerHour + hours*s.Cost.VehicleRatePerHour*0.5
	return SimOutcome{
		EstimatedTimeMin: round1(durationMin),
		EstimatedCost:    round2(cost),
		FuelUsedL:        0,
		Reliability:      0.95,
		ETA:              now.Add(time.Duration(durationMin * float64(time.Minute))),
	}
}

// PredictETA estimates arrival from a truck's position to a destination
// under current traffic.
func (s *Simulator) PredictETA(truck model.Truck, dest model.Location, traffic []model.TrafficCondition, now time.Time) time.Time {
	if truck.CurrentLocation == nil {
		return now.Add(4 * time.Hour)
	}
	dist := truck.CurrentLocation.DistanceTo(dest)
	speed := s.Cost.BaseSpeedKmh / AvgDelayFactor(traffic)
	return now.Add(time.Duration(dist / speed * float64(time.Hour)))
}

// CompareScenarios ranks outcomes by a weighted min-max normalized score
// over time, cost, fuel and reliability. Returns indexes into outcomes,
// best first. Fewer than two outcomes rank trivially.
func (s *Simulator) CompareScenarios(outcomes []SimOutcome) []int {
	n := len(outcomes)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	if n < 2 {
		return idx
	}

	times := make([]float64, n)
	costs := make([]float64, n)
	fuels := make([]float64, n)
	rels := make([]float64, n)
	for i, o := range outcomes {
		times[i] = o.EstimatedTimeMin
		costs[i] = o.EstimatedCost
		fuels[i] = o.FuelUsedL
		rels[i] = o.Reliability
	}

	scores := make([]float64, n)
	for i := range outcomes {
		// Lower is better for time, cost and fuel; reliability counts as-is.
		scores[i] = 0.3*(1-normalize(costs[i], costs)) +
			0.4*(1-normalize(times[i], times)) +
			0.2*(1-normalize(fuels[i], fuels)) +
			0.1*rels[i]
	}
	for i := 1; i < n; i++ {
		for j := i; j > 0 && scores[idx[j]] > scores[idx[j-1]]; j-- {
			idx[j], idx[j-1] = idx[j-1], idx[j]
		}
	}
	return idx
}

func normalize(v float64, all []float64) float64 {
	min, max := all[0], all[0]
	for _, x := range all[1:] {
		if x < min {
			min = x
		}
		if x > max {
			max = x
		}
	}
	if max == min {
		return 0.5
	}
	return (v - min) / (max - min)
}
