package store

import (
	"context"
	"sync"
	"time"

	"fleetops/internal/model"
)

// Memory is the in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu        sync.Mutex
	trucks    map[string]model.Truck
	loads     map[string]model.Load
	readings  map[string][]model.GPSReading // truckId -> newest last, bounded
	traffic   map[string]model.TrafficCondition
	decisions map[string]model.Decision
	cycles    []CycleRecord
}

func NewMemory() *Memory {
	return &Memory{
		trucks:    map[string]model.Truck{},
		loads:     map[string]model.Load{},
		readings:  map[string][]model.GPSReading{},
		traffic:   map[string]model.TrafficCondition{},
		decisions: map[string]model.Decision{},
	}
}

func cloneTruck(t model.Truck) model.Truck {
	out := t
	if t.CurrentLocation != nil {
		loc := *t.CurrentLocation
		out.CurrentLocation = &loc
	}
	if t.LastGPSReading != nil {
		r := *t.LastGPSReading
		out.LastGPSReading = &r
	}
	return out
}

func cloneLoad(l model.Load) model.Load {
	out := l
	copyTime := func(t *time.Time) *time.Time {
		if t == nil {
			return nil
		}
		v := *t
		return &v
	}
	out.PickupWindowStart = copyTime(l.PickupWindowStart)
	out.PickupWindowEnd = copyTime(l.PickupWindowEnd)
	out.DeliveryDeadline = copyTime(l.DeliveryDeadline)
	out.PickedUpAt = copyTime(l.PickedUpAt)
	out.DeliveredAt = copyTime(l.DeliveredAt)
	return out
}

func (m *Memory) PutTruck(ctx context.Context, t model.Truck) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trucks[t.ID] = cloneTruck(t)
	return nil
}

func (m *Memory) GetTruck(ctx context.Context, id string) (model.Truck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trucks[id]
	if !ok {
		return model.Truck{}, ErrNotFound
	}
	return cloneTruck(t), nil
}

func (m *Memory) ListTrucks(ctx context.Context) ([]model.Truck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Truck, 0, len(m.trucks))
	for _, t := range m.trucks {
		out = append(out, cloneTruck(t))
	}
	return out, nil
}

func (m *Memory) UpdateTruckPosition(ctx context.Context, r model.GPSReading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trucks[r.TruckID]
	if !ok {
		return ErrNotFound
	}
	if t.CurrentLocation != nil {
		t.TotalDistanceKm += t.CurrentLocation.DistanceTo(r.Location)
	}
	loc := r.Location
	reading := r
	t.CurrentLocation = &loc
	t.LastGPSReading = &reading
	m.trucks[r.TruckID] = t

	hist := append(m.readings[r.TruckID], r)
	if len(hist) > gpsHistoryLimit {
		hist = hist[len(hist)-gpsHistoryLimit:]
	}
	m.readings[r.TruckID] = hist
	return nil
}

func (m *Memory) PutLoad(ctx context.Context, l model.Load) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads[l.ID] = cloneLoad(l)
	return nil
}

func (m *Memory) GetLoad(ctx context.Context, id string) (model.Load, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loads[id]
	if !ok {
		return model.Load{}, ErrNotFound
	}
	return cloneLoad(l), nil
}

func (m *Memory) ListLoads(ctx context.Context) ([]model.Load, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Load, 0, len(m.loads))
	for _, l := range m.loads {
		out = append(out, cloneLoad(l))
	}
	return out, nil
}

func (m *Memory) RecentGPSReadings(ctx context.Context, truckID string, limit int) ([]model.GPSReading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hist := m.readings[truckID]
	if limit > 0 && len(hist) > limit {
		hist = hist[len(hist)-limit:]
	}
	out := make([]model.GPSReading, len(hist))
	copy(out, hist)
	return out, nil
}

func (m *Memory) PutTrafficConditions(ctx context.Context, conds []model.TrafficCondition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range conds {
		m.traffic[c.SegmentID] = c
	}
	return nil
}

func (m *Memory) ListTrafficConditions(ctx context.Context) ([]model.TrafficCondition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.TrafficCondition, 0, len(m.traffic))
	for _, c := range m.traffic {
		out = append(out, c)
	}
	return out, nil
}

func (m *Memory) SaveDecision(ctx context.Context, d model.Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions[d.ID] = d
	return nil
}

func (m *Memory) GetDecision(ctx context.Context, id string) (model.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.decisions[id]
	if !ok {
		return model.Decision{}, ErrNotFound
	}
	return d, nil
}

func (m *Memory) ListDecisions(ctx context.Context, status model.DecisionStatus) ([]model.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Decision{}
	for _, d := range m.decisions {
		if status == "" || d.Status == status {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *Memory) SetDecisionStatus(ctx context.Context, id string, status model.DecisionStatus, approvedBy string) (model.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.decisions[id]
	if !ok {
		return model.Decision{}, ErrNotFound
	}
	d.Status = status
	if status == model.DecisionApproved {
		d.HumanApproved = true
		d.ApprovedBy = approvedBy
	}
	m.decisions[id] = d
	return d, nil
}

// ApplyDecision mutates copies under the lock and commits them together, so
// a failing action leaves no partial state behind.
func (m *Memory) ApplyDecision(ctx context.Context, d model.Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	trucks := map[string]model.Truck{}
	loads := map[string]model.Load{}
	truck := func(id string) (model.Truck, bool) {
		if t, ok := trucks[id]; ok {
			return t, true
		}
		t, ok := m.trucks[id]
		return t, ok
	}
	load := func(id string) (model.Load, bool) {
		if l, ok := loads[id]; ok {
			return l, true
		}
		l, ok := m.loads[id]
		return l, ok
	}

	for _, a := range d.Actions {
		switch a.Type {
		case model.ActionReassign:
			if a.Reassign == nil {
				continue
			}
			l, ok := load(a.Reassign.LoadID)
			if !ok {
				return ErrNotFound
			}
			to, ok := truck(a.Reassign.ToTruckID)
			if !ok {
				return ErrNotFound
			}
			if from, ok := truck(a.Reassign.FromTruckID); ok {
				from.CurrentLoadID = ""
				if from.Status == model.TruckEnRoute || from.Status == model.TruckStuck {
					from.Status = model.TruckIdle
				}
				trucks[from.ID] = from
			}
			to.CurrentLoadID = l.ID
			to.Status = model.TruckEnRoute
			l.AssignedTruckID = to.ID
			trucks[to.ID] = to
			loads[l.ID] = l
		case model.ActionDispatch:
			if a.Dispatch == nil {
				continue
			}
			t, ok := truck(a.Dispatch.TruckID)
			if !ok {
				return ErrNotFound
			}
			t.Status = model.TruckEnRoute
			if a.Dispatch.LoadID != "" {
				l, ok := load(a.Dispatch.LoadID)
				if !ok {
					return ErrNotFound
				}
				l.AssignedTruckID = t.ID
				t.CurrentLoadID = l.ID
				loads[l.ID] = l
			}
			trucks[t.ID] = t
		case model.ActionReroute:
			if a.Reroute == nil {
				continue
			}
			t, ok := truck(a.Reroute.TruckID)
			if !ok {
				return ErrNotFound
			}
			t.Status = model.TruckEnRoute
			trucks[t.ID] = t
		case model.ActionWait:
			if a.Wait == nil || a.Wait.TruckID == "" {
				continue
			}
			if t, ok := truck(a.Wait.TruckID); ok {
				t.Status = model.TruckDelayed
				trucks[t.ID] = t
			}
		case model.ActionNotify, model.ActionEscalate:
			// no fleet state change
		}
	}

	for id, t := range trucks {
		m.trucks[id] = t
	}
	for id, l := range loads {
		m.loads[id] = l
	}
	if stored, ok := m.decisions[d.ID]; ok {
		stored.Status = model.DecisionExecuted
		m.decisions[d.ID] = stored
	}
	return nil
}

func (m *Memory) Snapshot(ctx context.Context) (model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := model.Snapshot{Timestamp: time.Now().UTC()}
	for _, t := range m.trucks {
		snap.Trucks = append(snap.Trucks, cloneTruck(t))
	}
	for _, l := range m.loads {
		snap.Loads = append(snap.Loads, cloneLoad(l))
	}
	for _, c := range m.traffic {
		snap.TrafficConditions = append(snap.TrafficConditions, c)
	}
	for _, hist := range m.readings {
		snap.GPSReadings = append(snap.GPSReadings, hist...)
	}
	return snap, nil
}

func (m *Memory) RecordCycle(ctx context.Context, c CycleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles = append(m.cycles, c)
	if len(m.cycles) > 500 {
		m.cycles = m.cycles[len(m.cycles)-500:]
	}
	return nil
}

func (m *Memory) ListCycles(ctx context.Context, limit int) ([]CycleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cycles := m.cycles
	if limit > 0 && len(cycles) > limit {
		cycles = cycles[len(cycles)-limit:]
	}
	out := make([]CycleRecord, len(cycles))
	copy(out, cycles)
	return out, nil
}
