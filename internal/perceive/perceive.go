package perceive

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"fleetops/internal/model"
	"fleetops/internal/store"
)

// Collector gathers one category of observations into a snapshot.
type Collector interface {
	Name() string
	Collect(ctx context.Context, snap *model.Snapshot) error
}

// Provider aggregates collectors into a point-in-time snapshot. A failing
// collector marks the snapshot degraded and observation proceeds with
// whatever was gathered; only total failure is an error.
type Provider struct {
	lg         *slog.Logger
	collectors []Collector
}

func NewProvider(lg *slog.Logger, collectors ...Collector) *Provider {
	if lg == nil {
		lg = slog.Default()
	}
	return &Provider{lg: lg, collectors: collectors}
}

func (p *Provider) Observe(ctx context.Context) (model.Snapshot, error) {
	snap := model.Snapshot{Timestamp: time.Now().UTC()}
	failed := 0
	for _, c := range p.collectors {
		if err := c.Collect(ctx, &snap); err != nil {
			p.lg.Warn("collector failed", "collector", c.Name(), "error", err)
			snap.Degraded = true
			failed++
		}
	}
	if len(p.collectors) > 0 && failed == len(p.collectors) {
		return snap, errors.New("all collectors failed")
	}
	return snap, nil
}

// NewStoreProvider wires the standard collectors over the fleet store.
func NewStoreProvider(lg *slog.Logger, st store.Store) *Provider {
	return NewProvider(lg,
		&fleetCollector{st: st},
		&trafficCollector{st: st},
		&telemetryCollector{st: st},
	)
}

type fleetCollector struct{ st store.Store }

func (c *fleetCollector) Name() string { return "fleet" }

func (c *fleetCollector) Collect(ctx context.Context, snap *model.Snapshot) error {
	trucks, err := c.st.ListTrucks(ctx)
	if err != nil {
		return err
	}
	loads, err := c.st.ListLoads(ctx)
	if err != nil {
		return err
	}
	snap.Trucks = trucks
	snap.Loads = loads
	return nil
}

type trafficCollector struct{ st store.Store }

func (c *trafficCollector) Name() string { return "traffic" }

func (c *trafficCollector) Collect(ctx context.Context, snap *model.Snapshot) error {
	conds, err := c.st.ListTrafficConditions(ctx)
	if err != nil {
		return err
	}
	snap.TrafficConditions = conds
	return nil
}

type telemetryCollector struct{ st store.Store }

func (c *telemetryCollector) Name() string { return "telemetry" }

func (c *telemetryCollector) Collect(ctx context.Context, snap *model.Snapshot) error {
	for _, t := range snap.Trucks {
		readings, err := c.st.RecentGPSReadings(ctx, t.ID, stuckWindow*2)
		if err != nil {
			return err
		}
		snap.GPSReadings = append(snap.GPSReadings, readings...)
	}
	return nil
}
