package perceive

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"fleetops/internal/model"
	"fleetops/internal/store"
)

type failingCollector struct{ name string }

func (f *failingCollector) Name() string { return f.name }
func (f *failingCollector) Collect(ctx context.Context, snap *model.Snapshot) error {
	return errors.New("unavailable")
}

func TestObservePartialFailureDegrades(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	loc := model.Location{Latitude: 40.7, Longitude: -74.0}
	_ = st.PutTruck(ctx, model.Truck{ID: "t1", Status: model.TruckIdle, CurrentLocation: &loc})

	p := NewProvider(slog.Default(),
		&fleetCollector{st: st},
		&failingCollector{name: "traffic"},
	)
	snap, err := p.Observe(ctx)
	if err != nil {
		t.Fatalf("partial failure should not abort observation: %v", err)
	}
	if !snap.Degraded {
		t.Fatal("snapshot should be marked degraded")
	}
	if len(snap.Trucks) != 1 {
		t.Fatalf("expected gathered trucks, got %d", len(snap.Trucks))
	}
}

func TestObserveTotalFailureErrors(t *testing.T) {
	p := NewProvider(slog.Default(), &failingCollector{name: "a"}, &failingCollector{name: "b"})
	if _, err := p.Observe(context.Background()); err == nil {
		t.Fatal("total collector failure should error")
	}
}

func TestValidateReading(t *testing.T) {
	now := time.Now()
	ok := model.GPSReading{
		TruckID:   "t1",
		Timestamp: now,
		Location:  model.Location{Latitude: 40.7, Longitude: -74.0},
		SpeedKmh:  55,
	}
	if err := ValidateReading(ok, now); err != nil {
		t.Fatalf("valid reading rejected: %v", err)
	}

	cases := []struct {
		name string
		mut  func(*model.GPSReading)
	}{
		{"missing truck", func(r *model.GPSReading) { r.TruckID = "" }},
		{"bad latitude", func(r *model.GPSReading) { r.Location.Latitude = 95 }},
		{"negative speed", func(r *model.GPSReading) { r.SpeedKmh = -1 }},
		{"absurd speed", func(r *model.GPSReading) { r.SpeedKmh = 500 }},
		{"zero timestamp", func(r *model.GPSReading) { r.Timestamp = time.Time{} }},
		{"future timestamp", func(r *model.GPSReading) { r.Timestamp = now.Add(time.Hour) }},
	}
	for _, tc := range cases {
		r := ok
		tc.mut(&r)
		if err := ValidateReading(r, now); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func readingsAt(speeds []float64) []model.GPSReading {
	base := time.Now().Add(-time.Hour)
	out := make([]model.GPSReading, len(speeds))
	for i, s := range speeds {
		out[i] = model.GPSReading{
			TruckID:   "t1",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Location:  model.Location{Latitude: 40.7, Longitude: -74.0},
			SpeedKmh:  s,
		}
	}
	return out
}

func TestStuckFromReadings(t *testing.T) {
	if StuckFromReadings(readingsAt([]float64{1, 2, 0, 3, 4})) != true {
		t.Fatal("five stationary readings should be stuck")
	}
	if StuckFromReadings(readingsAt([]float64{1, 2, 50, 3, 4})) {
		t.Fatal("a moving reading inside the window should not be stuck")
	}
	if StuckFromReadings(readingsAt([]float64{0, 0, 0})) {
		t.Fatal("too few readings should not be stuck")
	}
	// older fast readings outside the window do not matter
	if !StuckFromReadings(readingsAt([]float64{80, 70, 1, 2, 0, 3, 4})) {
		t.Fatal("only the newest window counts")
	}
}

func TestDetectAnomaliesPositionJump(t *testing.T) {
	base := time.Now().Add(-time.Hour)
	readings := []model.GPSReading{
		{TruckID: "t1", Timestamp: base, Location: model.Location{Latitude: 40.7, Longitude: -74.0}, SpeedKmh: 40},
		// ~111 km north one minute later
		{TruckID: "t1", Timestamp: base.Add(time.Minute), Location: model.Location{Latitude: 41.7, Longitude: -74.0}, SpeedKmh: 45},
	}
	got := DetectAnomalies("t1", readings)
	if len(got) != 1 || got[0].Kind != "position_jump" {
		t.Fatalf("expected position_jump anomaly, got %v", got)
	}
}

func TestDetectAnomaliesSpeedJump(t *testing.T) {
	got := DetectAnomalies("t1", readingsAt([]float64{20, 90}))
	if len(got) != 1 || got[0].Kind != "speed_jump" {
		t.Fatalf("expected speed_jump anomaly, got %v", got)
	}
	if DetectAnomalies("t1", readingsAt([]float64{20, 40})) != nil {
		t.Fatal("gentle acceleration is not an anomaly")
	}
}
