package opt

import (
	"math"
	"time"

	"fleetops/internal/model"
)

// CostModel holds the shared cost and feasibility parameters. All functions
// are pure over their inputs; degraded inputs (missing location, no traffic
// data) fall back to conservative defaults instead of failing.
type CostModel struct {
	FuelRateLPerKm     float64 // base consumption
	FuelPricePerL      float64
	DriverRatePerHour  float64
	VehicleRatePerHour float64
	BaseSpeedKmh       float64 // free-flow planning speed
	AvgSpeedKmh        float64 // ETA planning speed
	SafeSpeedKmh       float64 // conservative deadline-check speed
	TankCapacityL      float64
	WeightRateLPerKgKm float64 // extra L/km per kg carried
}

// DefaultCostModel returns the standard fleet cost parameters.
func DefaultCostModel() *CostModel {
	return &CostModel{
		FuelRateLPerKm:     0.3,
		FuelPricePerL:      1.50,
		DriverRatePerHour:  25.0,
		VehicleRatePerHour: 10.0,
		BaseSpeedKmh:       60.0,
		AvgSpeedKmh:        50.0,
		SafeSpeedKmh:       45.0,
		TankCapacityL:      200.0,
		WeightRateLPerKgKm: 0.00002,
	}
}

// HourlyRate is the combined driver and vehicle cost per hour.
func (c *CostModel) HourlyRate() float64 {
	return c.DriverRatePerHour + c.VehicleRatePerHour
}

// AvgDelayFactor averages the delay factors of the given conditions,
// defaulting to 1.0 when no traffic data is available.
func AvgDelayFactor(traffic []model.TrafficCondition) float64 {
	if len(traffic) == 0 {
		return 1.0
	}
	sum := 0.0
	for _, tc := range traffic {
		sum += tc.DelayFactor()
	}
	return sum / float64(len(traffic))
}

// FuelConsumption returns liters burned over distanceKm carrying
// totalWeightKg of cargo.
func (c *CostModel) FuelConsumption(distanceKm, totalWeightKg float64) float64 {
	rate := c.FuelRateLPerKm + c.WeightRateLPerKgKm*totalWeightKg
	return distanceKm * rate
}

// priorityMultiplier discounts cost for urgent loads so optimizers prefer
// servicing them.
func priorityMultiplier(p model.LoadPriority) float64 {
	switch p {
	case model.PriorityLow:
		return 1.2
	case model.PriorityNormal:
		return 1.0
	case model.PriorityHigh:
		return 0.8
	case model.PriorityUrgent:
		return 0.6
	case model.PriorityCritical:
		return 0.4
	}
	return 1.0
}

// AssignmentCost is the monetary cost of sending truck for load: fuel plus
// time cost, scaled by the load's priority multiplier. Returns +Inf when the
// truck position is unknown.
func (c *CostModel) AssignmentCost(truck model.Truck, load model.Load) float64 {
	if truck.CurrentLocation == nil {
		return math.Inf(1)
	}
	toPickup := truck.CurrentLocation.DistanceTo(load.PickupLocation)
	toDelivery := load.PickupLocation.DistanceTo(load.DeliveryLocation)
	total := toPickup + toDelivery

	fuelCost := total * c.FuelRateLPerKm * c.FuelPricePerL
	timeCost := total / c.AvgSpeedKmh * c.HourlyRate()
	return (fuelCost + timeCost) * priorityMultiplier(load.Priority)
}

// CheckAssignmentConstraints reports whether truck can feasibly take load:
// capacity, the 80%-of-available-fuel budget, and the delivery deadline at a
// conservative speed. Trucks without a known location skip the fuel and
// deadline checks (degraded input, not an error).
func (c *CostModel) CheckAssignmentConstraints(truck model.Truck, load model.Load, now time.Time) bool {
	if truck.CapacityKg < load.WeightKg {
		return false
	}
	if truck.CurrentLocation != nil {
		toPickup := truck.CurrentLocation.DistanceTo(load.PickupLocation)
		toDelivery := load.PickupLocation.DistanceTo(load.DeliveryLocation)
		fuelNeeded := (toPickup + toDelivery) * c.FuelRateLPerKm
		fuelAvailable := c.TankCapacityL * (truck.FuelLevelPercent / 100)
		// keep a 20% reserve
		if fuelNeeded > fuelAvailable*0.8 {
			return false
		}
	}
	if load.DeliveryDeadline != nil {
		if c.EstimateDeliveryTime(truck, load, now).After(*load.DeliveryDeadline) {
			return false
		}
	}
	return true
}

// EstimateDeliveryTime predicts delivery completion using the conservative
// planning speed. Without a truck position it falls back to a 4-hour default.
func (c *CostModel) EstimateDeliveryTime(truck model.Truck, load model.Load, now time.Time) time.Time {
	if truck.CurrentLocation == nil {
		return now.Add(4 * time.Hour)
	}
	toPickup := truck.CurrentLocation.DistanceTo(load.PickupLocation)
	toDelivery := load.PickupLocation.DistanceTo(load.DeliveryLocation)
	hours := (toPickup + toDelivery) / c.SafeSpeedKmh
	return now.Add(time.Duration(hours * float64(time.Hour)))
}

// AssignmentConfidence scores how likely the assignment completes as
// predicted, clamped to [0.3, 1.0].
func (c *CostModel) AssignmentConfidence(truck model.Truck, load model.Load) float64 {
	conf := 0.8
	if truck.FuelLevelPercent < 30 {
		conf -= 0.2
	} else if truck.FuelLevelPercent > 70 {
		conf += 0.1
	}
	if truck.CurrentLocation != nil {
		if truck.CurrentLocation.DistanceTo(load.PickupLocation) > 100 {
			conf -= 0.1
		}
	}
	if load.Priority == model.PriorityUrgent || load.Priority == model.PriorityCritical {
		conf += 0.1
	}
	return clamp(conf, 0.3, 1.0)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
