// Package sim seeds a demo fleet and keeps it moving so the control loop
// has live telemetry to react to without real vehicles.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"fleetops/internal/model"
	"fleetops/internal/store"
)

const (
	tickSpeedKmh   = 45.0
	fuelPerTickPct = 0.4
	stuckChance    = 0.02
	unstickChance  = 0.3
)

var trafficLevels = []model.TrafficLevel{
	model.TrafficFreeFlow, model.TrafficLight, model.TrafficModerate,
	model.TrafficHeavy, model.TrafficStandstill,
}

// Seed populates the store with a demo fleet around New York City.
func Seed(ctx context.Context, st store.Store, trucks int) error {
	if trucks <= 0 {
		trucks = 5
	}
	base := model.Location{Latitude: 40.7128, Longitude: -74.0060}
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < trucks; i++ {
		loc := jitter(base, rng, 0.1)
		t := model.Truck{
			ID:               fmt.Sprintf("truck_%02d", i+1),
			Name:             fmt.Sprintf("Fleet %02d", i+1),
			Status:           model.TruckIdle,
			CurrentLocation:  &loc,
			CapacityKg:       6000 + float64(rng.Intn(5))*1000,
			FuelLevelPercent: 60 + rng.Float64()*40,
		}
		if err := st.PutTruck(ctx, t); err != nil {
			return err
		}
	}

	priorities := []model.LoadPriority{
		model.PriorityNormal, model.PriorityNormal, model.PriorityHigh,
		model.PriorityUrgent, model.PriorityLow,
	}
	for i := 0; i < trucks+2; i++ {
		deadline := time.Now().Add(time.Duration(2+rng.Intn(6)) * time.Hour)
		l := model.Load{
			ID:               fmt.Sprintf("load_%03d", i+1),
			Description:      fmt.Sprintf("pallet batch %03d", i+1),
			WeightKg:         500 + float64(rng.Intn(30))*100,
			Priority:         priorities[i%len(priorities)],
			PickupLocation:   jitter(base, rng, 0.15),
			DeliveryLocation: jitter(base, rng, 0.25),
			DeliveryDeadline: &deadline,
		}
		if err := st.PutLoad(ctx, l); err != nil {
			return err
		}
	}

	conds := make([]model.TrafficCondition, 0, 6)
	for i := 0; i < 6; i++ {
		conds = append(conds, model.TrafficCondition{
			SegmentID: fmt.Sprintf("seg_%02d", i+1),
			Level:     trafficLevels[rng.Intn(3)], // start calm
			Timestamp: time.Now(),
		})
	}
	return st.PutTrafficConditions(ctx, conds)
}

// Simulator advances the fleet on a fixed tick: en-route trucks drift toward
// their load's delivery point, fuel drains, traffic levels wander, and
// trucks occasionally stall.
type Simulator struct {
	St   store.Store
	Lg   *slog.Logger
	Rand *rand.Rand

	// Emit, when set, mirrors telemetry onto the event stream.
	Emit func(kind string, data map[string]any)

	mu   sync.Mutex
	stop chan struct{}
}

func New(st store.Store, lg *slog.Logger) *Simulator {
	if lg == nil {
		lg = slog.Default()
	}
	return &Simulator{St: st, Lg: lg, Rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Start ticks in the background until Stop or ctx cancellation.
func (s *Simulator) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	s.stop = stop
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Tick(ctx, interval); err != nil {
					s.Lg.Warn("sim tick failed", "err", err)
				}
			}
		}
	}()
}

func (s *Simulator) Stop() {
	s.mu.Lock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.mu.Unlock()
}

// Tick advances every truck by one step of elapsed wall time.
func (s *Simulator) Tick(ctx context.Context, elapsed time.Duration) error {
	trucks, err := s.St.ListTrucks(ctx)
	if err != nil {
		return err
	}
	for _, t := range trucks {
		if err := s.advanceTruck(ctx, t, elapsed); err != nil {
			return err
		}
	}
	return s.wanderTraffic(ctx)
}

func (s *Simulator) advanceTruck(ctx context.Context, t model.Truck, elapsed time.Duration) error {
	if t.CurrentLocation == nil {
		return nil
	}
	switch t.Status {
	case model.TruckEnRoute:
		if s.Rand.Float64() < stuckChance {
			t.Status = model.TruckStuck
			if err := s.St.PutTruck(ctx, t); err != nil {
				return err
			}
			s.emit("truck.stalled", map[string]any{"truckId": t.ID})
			return s.report(ctx, t, 0)
		}
		dest := s.destination(ctx, t)
		next, arrived := stepToward(*t.CurrentLocation, dest, tickSpeedKmh*elapsed.Hours())
		t.CurrentLocation = &next
		t.FuelLevelPercent = math.Max(0, t.FuelLevelPercent-fuelPerTickPct)
		if arrived {
			t.Status = model.TruckIdle
			if t.CurrentLoadID != "" {
				if err := s.completeDelivery(ctx, t.CurrentLoadID); err != nil {
					return err
				}
				s.emit("load.delivered", map[string]any{"loadId": t.CurrentLoadID, "truckId": t.ID})
				t.CurrentLoadID = ""
				t.TotalDeliveries++
			}
		}
		if err := s.St.PutTruck(ctx, t); err != nil {
			return err
		}
		return s.report(ctx, t, tickSpeedKmh)
	case model.TruckStuck:
		if s.Rand.Float64() < unstickChance {
			t.Status = model.TruckEnRoute
			if err := s.St.PutTruck(ctx, t); err != nil {
				return err
			}
		}
		return s.report(ctx, t, 0)
	default:
		return nil
	}
}

func (s *Simulator) destination(ctx context.Context, t model.Truck) model.Location {
	if t.CurrentLoadID != "" {
		if l, err := s.St.GetLoad(ctx, t.CurrentLoadID); err == nil {
			if l.PickedUpAt == nil {
				return l.PickupLocation
			}
			return l.DeliveryLocation
		}
	}
	return *t.CurrentLocation
}

func (s *Simulator) completeDelivery(ctx context.Context, loadID string) error {
	l, err := s.St.GetLoad(ctx, loadID)
	if err != nil {
		return err
	}
	now := time.Now()
	if l.PickedUpAt == nil {
		l.PickedUpAt = &now
	}
	l.DeliveredAt = &now
	return s.St.PutLoad(ctx, l)
}

func (s *Simulator) report(ctx context.Context, t model.Truck, speed float64) error {
	reading := model.GPSReading{
		TruckID:   t.ID,
		Timestamp: time.Now(),
		Location:  *t.CurrentLocation,
		SpeedKmh:  speed,
	}
	if err := s.St.UpdateTruckPosition(ctx, reading); err != nil {
		return err
	}
	s.emit("truck.position", map[string]any{
		"truckId": t.ID, "lat": reading.Location.Latitude, "lon": reading.Location.Longitude, "speedKmh": speed,
	})
	return nil
}

func (s *Simulator) wanderTraffic(ctx context.Context) error {
	conds, err := s.St.ListTrafficConditions(ctx)
	if err != nil || len(conds) == 0 {
		return err
	}
	for i := range conds {
		if s.Rand.Float64() > 0.3 {
			continue
		}
		idx := levelIndex(conds[i].Level)
		idx += s.Rand.Intn(3) - 1
		if idx < 0 {
			idx = 0
		}
		if idx >= len(trafficLevels) {
			idx = len(trafficLevels) - 1
		}
		conds[i].Level = trafficLevels[idx]
		conds[i].Timestamp = time.Now()
	}
	return s.St.PutTrafficConditions(ctx, conds)
}

func (s *Simulator) emit(kind string, data map[string]any) {
	if s.Emit != nil {
		s.Emit(kind, data)
	}
}

func levelIndex(level model.TrafficLevel) int {
	for i, l := range trafficLevels {
		if l == level {
			return i
		}
	}
	return 1
}

func jitter(base model.Location, rng *rand.Rand, spread float64) model.Location {
	return model.Location{
		Latitude:  base.Latitude + (rng.Float64()-0.5)*spread,
		Longitude: base.Longitude + (rng.Float64()-0.5)*spread,
	}
}

// stepToward moves at most distKm from cur to dest, reporting arrival when
// the remaining distance fits in one step.
func stepToward(cur, dest model.Location, distKm float64) (model.Location, bool) {
	remaining := cur.DistanceTo(dest)
	if remaining <= distKm || remaining == 0 {
		return dest, true
	}
	frac := distKm / remaining
	return model.Location{
		Latitude:  cur.Latitude + (dest.Latitude-cur.Latitude)*frac,
		Longitude: cur.Longitude + (dest.Longitude-cur.Longitude)*frac,
	}, false
}
