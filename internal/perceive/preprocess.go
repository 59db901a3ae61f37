package perceive

import (
	"fmt"
	"sort"
	"time"

	"fleetops/internal/model"
)

const (
	// stuckSpeedKmh is the speed below which a reading counts as stationary.
	stuckSpeedKmh = 5.0
	// stuckWindow is how many consecutive stationary readings imply a stuck
	// truck.
	stuckWindow = 5

	maxReportedSpeedKmh = 200.0
	maxImpliedSpeedKmh  = 150.0
	maxSpeedJumpKmh     = 50.0
)

// ValidateReading rejects physically impossible GPS reports before they
// reach the store.
func ValidateReading(r model.GPSReading, now time.Time) error {
	if r.TruckID == "" {
		return fmt.Errorf("reading missing truck id")
	}
	if err := r.Location.Validate(); err != nil {
		return err
	}
	if r.SpeedKmh < 0 || r.SpeedKmh > maxReportedSpeedKmh {
		return fmt.Errorf("speed out of range: %v", r.SpeedKmh)
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("reading missing timestamp")
	}
	if r.Timestamp.After(now.Add(time.Minute)) {
		return fmt.Errorf("reading timestamp in the future: %s", r.Timestamp)
	}
	return nil
}

// StuckFromReadings reports whether the newest stuckWindow readings are all
// below the stationary threshold. Readings may arrive unsorted.
func StuckFromReadings(readings []model.GPSReading) bool {
	if len(readings) < stuckWindow {
		return false
	}
	sorted := append([]model.GPSReading(nil), readings...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	for _, r := range sorted[len(sorted)-stuckWindow:] {
		if r.SpeedKmh >= stuckSpeedKmh {
			return false
		}
	}
	return true
}

// Anomaly describes a suspicious pattern in a truck's telemetry.
type Anomaly struct {
	TruckID     string `json:"truckId"`
	Kind        string `json:"kind"` // position_jump, speed_jump
	Description string `json:"description"`
}

// DetectAnomalies scans consecutive readings of one truck for teleport-style
// position jumps and implausible speed changes.
func DetectAnomalies(truckID string, readings []model.GPSReading) []Anomaly {
	if len(readings) < 2 {
		return nil
	}
	sorted := append([]model.GPSReading(nil), readings...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var out []Anomaly
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		dt := cur.Timestamp.Sub(prev.Timestamp).Hours()
		if dt > 0 {
			implied := prev.Location.DistanceTo(cur.Location) / dt
			if implied > maxImpliedSpeedKmh {
				out = append(out, Anomaly{
					TruckID:     truckID,
					Kind:        "position_jump",
					Description: fmt.Sprintf("implied speed %.0f km/h between readings", implied),
				})
			}
		}
		if delta := cur.SpeedKmh - prev.SpeedKmh; delta > maxSpeedJumpKmh || delta < -maxSpeedJumpKmh {
			out = append(out, Anomaly{
				TruckID:     truckID,
				Kind:        "speed_jump",
				Description: fmt.Sprintf("speed changed %.0f km/h between readings", delta),
			})
		}
	}
	return out
}

// GroupReadingsByTruck buckets snapshot telemetry per truck id.
func GroupReadingsByTruck(readings []model.GPSReading) map[string][]model.GPSReading {
	out := map[string][]model.GPSReading{}
	for _, r := range readings {
		out[r.TruckID] = append(out[r.TruckID], r)
	}
	return out
}
