package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"fleetops/internal/model"
)

// Postgres persists fleet state as queryable key columns plus a jsonb
// document per entity. Selected when DATABASE_URL is set.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	p := &Postgres{db: db}
	if err := p.ensureSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return p, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) ensureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS trucks (
    id      text PRIMARY KEY,
    status  text NOT NULL,
    doc     jsonb NOT NULL,
    updated timestamptz NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS loads (
    id      text PRIMARY KEY,
    truck_id text,
    doc     jsonb NOT NULL,
    updated timestamptz NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS gps_readings (
    id       bigserial PRIMARY KEY,
    truck_id text NOT NULL,
    at       timestamptz NOT NULL,
    doc      jsonb NOT NULL
);
CREATE INDEX IF NOT EXISTS gps_readings_truck_at ON gps_readings (truck_id, at DESC);
CREATE TABLE IF NOT EXISTS traffic_conditions (
    segment_id text PRIMARY KEY,
    doc        jsonb NOT NULL,
    updated    timestamptz NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS decisions (
    id      text PRIMARY KEY,
    status  text NOT NULL,
    doc     jsonb NOT NULL,
    decided timestamptz NOT NULL
);
CREATE TABLE IF NOT EXISTS cycles (
    cycle_id   text PRIMARY KEY,
    started_at timestamptz NOT NULL,
    doc        jsonb NOT NULL
);`)
	return err
}

func toDoc(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func (p *Postgres) PutTruck(ctx context.Context, t model.Truck) error {
	_, err := p.db.ExecContext(ctx, `
INSERT INTO trucks (id, status, doc, updated) VALUES ($1,$2,$3,now())
ON CONFLICT (id) DO UPDATE SET status=$2, doc=$3, updated=now()`,
		t.ID, string(t.Status), toDoc(t))
	return err
}

func (p *Postgres) GetTruck(ctx context.Context, id string) (model.Truck, error) {
	var doc []byte
	err := p.db.QueryRowContext(ctx, `SELECT doc FROM trucks WHERE id=$1`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Truck{}, ErrNotFound
	}
	if err != nil {
		return model.Truck{}, err
	}
	var t model.Truck
	err = json.Unmarshal(doc, &t)
	return t, err
}

func (p *Postgres) ListTrucks(ctx context.Context) ([]model.Truck, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT doc FROM trucks ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Truck
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var t model.Truck
		if err := json.Unmarshal(doc, &t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateTruckPosition(ctx context.Context, r model.GPSReading) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var doc []byte
	err = tx.QueryRowContext(ctx, `SELECT doc FROM trucks WHERE id=$1 FOR UPDATE`, r.TruckID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	var t model.Truck
	if err := json.Unmarshal(doc, &t); err != nil {
		return err
	}
	if t.CurrentLocation != nil {
		t.TotalDistanceKm += t.CurrentLocation.DistanceTo(r.Location)
	}
	loc := r.Location
	reading := r
	t.CurrentLocation = &loc
	t.LastGPSReading = &reading

	if _, err := tx.ExecContext(ctx, `UPDATE trucks SET status=$2, doc=$3, updated=now() WHERE id=$1`,
		t.ID, string(t.Status), toDoc(t)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO gps_readings (truck_id, at, doc) VALUES ($1,$2,$3)`,
		r.TruckID, r.Timestamp, toDoc(r)); err != nil {
		return err
	}
	// prune beyond the bounded history
	if _, err := tx.ExecContext(ctx, `
DELETE FROM gps_readings WHERE truck_id=$1 AND id NOT IN (
    SELECT id FROM gps_readings WHERE truck_id=$1 ORDER BY at DESC LIMIT $2)`,
		r.TruckID, gpsHistoryLimit); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *Postgres) PutLoad(ctx context.Context, l model.Load) error {
	_, err := p.db.ExecContext(ctx, `
INSERT INTO loads (id, truck_id, doc, updated) VALUES ($1,$2,$3,now())
ON CONFLICT (id) DO UPDATE SET truck_id=$2, doc=$3, updated=now()`,
		l.ID, nullIfEmpty(l.AssignedTruckID), toDoc(l))
	return err
}

func (p *Postgres) GetLoad(ctx context.Context, id string) (model.Load, error) {
	var doc []byte
	err := p.db.QueryRowContext(ctx, `SELECT doc FROM loads WHERE id=$1`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Load{}, ErrNotFound
	}
	if err != nil {
		return model.Load{}, err
	}
	var l model.Load
	err = json.Unmarshal(doc, &l)
	return l, err
}

func (p *Postgres) ListLoads(ctx context.Context) ([]model.Load, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT doc FROM loads ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Load
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var l model.Load
		if err := json.Unmarshal(doc, &l); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (p *Postgres) RecentGPSReadings(ctx context.Context, truckID string, limit int) ([]model.GPSReading, error) {
	if limit <= 0 || limit > gpsHistoryLimit {
		limit = gpsHistoryLimit
	}
	rows, err := p.db.QueryContext(ctx, `
SELECT doc FROM gps_readings WHERE truck_id=$1 ORDER BY at DESC LIMIT $2`, truckID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var newestFirst []model.GPSReading
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var r model.GPSReading
		if err := json.Unmarshal(doc, &r); err != nil {
			return nil, err
		}
		newestFirst = append(newestFirst, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// oldest first, matching the memory store
	out := make([]model.GPSReading, len(newestFirst))
	for i, r := range newestFirst {
		out[len(out)-1-i] = r
	}
	return out, nil
}

func (p *Postgres) PutTrafficConditions(ctx context.Context, conds []model.TrafficCondition) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, c := range conds {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO traffic_conditions (segment_id, doc, updated) VALUES ($1,$2,now())
ON CONFLICT (segment_id) DO UPDATE SET doc=$2, updated=now()`,
			c.SegmentID, toDoc(c)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Postgres) ListTrafficConditions(ctx context.Context) ([]model.TrafficCondition, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT doc FROM traffic_conditions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.TrafficCondition
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var c model.TrafficCondition
		if err := json.Unmarshal(doc, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) SaveDecision(ctx context.Context, d model.Decision) error {
	_, err := p.db.ExecContext(ctx, `
INSERT INTO decisions (id, status, doc, decided) VALUES ($1,$2,$3,$4)
ON CONFLICT (id) DO UPDATE SET status=$2, doc=$3`,
		d.ID, string(d.Status), toDoc(d), d.DecidedAt)
	return err
}

func (p *Postgres) GetDecision(ctx context.Context, id string) (model.Decision, error) {
	var doc []byte
	err := p.db.QueryRowContext(ctx, `SELECT doc FROM decisions WHERE id=$1`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Decision{}, ErrNotFound
	}
	if err != nil {
		return model.Decision{}, err
	}
	var d model.Decision
	err = json.Unmarshal(doc, &d)
	return d, err
}

func (p *Postgres) ListDecisions(ctx context.Context, status model.DecisionStatus) ([]model.Decision, error) {
	q := `SELECT doc FROM decisions ORDER BY decided DESC LIMIT 200`
	args := []any{}
	if status != "" {
		q = `SELECT doc FROM decisions WHERE status=$1 ORDER BY decided DESC LIMIT 200`
		args = append(args, string(status))
	}
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Decision{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var d model.Decision
		if err := json.Unmarshal(doc, &d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) SetDecisionStatus(ctx context.Context, id string, status model.DecisionStatus, approvedBy string) (model.Decision, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Decision{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var doc []byte
	err = tx.QueryRowContext(ctx, `SELECT doc FROM decisions WHERE id=$1 FOR UPDATE`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Decision{}, ErrNotFound
	}
	if err != nil {
		return model.Decision{}, err
	}
	var d model.Decision
	if err := json.Unmarshal(doc, &d); err != nil {
		return model.Decision{}, err
	}
	d.Status = status
	if status == model.DecisionApproved {
		d.HumanApproved = true
		d.ApprovedBy = approvedBy
	}
	if _, err := tx.ExecContext(ctx, `UPDATE decisions SET status=$2, doc=$3 WHERE id=$1`,
		id, string(status), toDoc(d)); err != nil {
		return model.Decision{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Decision{}, err
	}
	return d, nil
}

// ApplyDecision runs all action mutations in one transaction.
func (p *Postgres) ApplyDecision(ctx context.Context, d model.Decision) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	getTruck := func(id string) (model.Truck, error) {
		var doc []byte
		err := tx.QueryRowContext(ctx, `SELECT doc FROM trucks WHERE id=$1 FOR UPDATE`, id).Scan(&doc)
		if errors.Is(err, sql.ErrNoRows) {
			return model.Truck{}, ErrNotFound
		}
		if err != nil {
			return model.Truck{}, err
		}
		var t model.Truck
		err = json.Unmarshal(doc, &t)
		return t, err
	}
	putTruck := func(t model.Truck) error {
		_, err := tx.ExecContext(ctx, `UPDATE trucks SET status=$2, doc=$3, updated=now() WHERE id=$1`,
			t.ID, string(t.Status), toDoc(t))
		return err
	}
	getLoad := func(id string) (model.Load, error) {
		var doc []byte
		err := tx.QueryRowContext(ctx, `SELECT doc FROM loads WHERE id=$1 FOR UPDATE`, id).Scan(&doc)
		if errors.Is(err, sql.ErrNoRows) {
			return model.Load{}, ErrNotFound
		}
		if err != nil {
			return model.Load{}, err
		}
		var l model.Load
		err = json.Unmarshal(doc, &l)
		return l, err
	}
	putLoad := func(l model.Load) error {
		_, err := tx.ExecContext(ctx, `UPDATE loads SET truck_id=$2, doc=$3, updated=now() WHERE id=$1`,
			l.ID, nullIfEmpty(l.AssignedTruckID), toDoc(l))
		return err
	}

	for _, a := range d.Actions {
		switch a.Type {
		case model.ActionReassign:
			if a.Reassign == nil {
				continue
			}
			l, err := getLoad(a.Reassign.LoadID)
			if err != nil {
				return err
			}
			to, err := getTruck(a.Reassign.ToTruckID)
			if err != nil {
				return err
			}
			if from, err := getTruck(a.Reassign.FromTruckID); err == nil {
				from.CurrentLoadID = ""
				if from.Status == model.TruckEnRoute || from.Status == model.TruckStuck {
					from.Status = model.TruckIdle
				}
				if err := putTruck(from); err != nil {
					return err
				}
			}
			to.CurrentLoadID = l.ID
			to.Status = model.TruckEnRoute
			l.AssignedTruckID = to.ID
			if err := putTruck(to); err != nil {
				return err
			}
			if err := putLoad(l); err != nil {
				return err
			}
		case model.ActionDispatch:
			if a.Dispatch == nil {
				continue
			}
			t, err := getTruck(a.Dispatch.TruckID)
			if err != nil {
				return err
			}
			t.Status = model.TruckEnRoute
			if a.Dispatch.LoadID != "" {
				l, err := getLoad(a.Dispatch.LoadID)
				if err != nil {
					return err
				}
				l.AssignedTruckID = t.ID
				t.CurrentLoadID = l.ID
				if err := putLoad(l); err != nil {
					return err
				}
			}
			if err := putTruck(t); err != nil {
				return err
			}
		case model.ActionReroute:
			if a.Reroute == nil {
				continue
			}
			t, err := getTruck(a.Reroute.TruckID)
			if err != nil {
				return err
			}
			t.Status = model.TruckEnRoute
			if err := putTruck(t); err != nil {
				return err
			}
		case model.ActionWait:
			if a.Wait == nil || a.Wait.TruckID == "" {
				continue
			}
			t, err := getTruck(a.Wait.TruckID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return err
			}
			t.Status = model.TruckDelayed
			if err := putTruck(t); err != nil {
				return err
			}
		}
	}

	d.Status = model.DecisionExecuted
	if _, err := tx.ExecContext(ctx, `UPDATE decisions SET status=$2, doc=$3 WHERE id=$1`,
		d.ID, string(model.DecisionExecuted), toDoc(d)); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *Postgres) Snapshot(ctx context.Context) (model.Snapshot, error) {
	snap := model.Snapshot{Timestamp: time.Now().UTC()}
	trucks, err := p.ListTrucks(ctx)
	if err != nil {
		return snap, err
	}
	loads, err := p.ListLoads(ctx)
	if err != nil {
		return snap, err
	}
	traffic, err := p.ListTrafficConditions(ctx)
	if err != nil {
		return snap, err
	}
	snap.Trucks = trucks
	snap.Loads = loads
	snap.TrafficConditions = traffic
	for _, t := range trucks {
		readings, err := p.RecentGPSReadings(ctx, t.ID, 10)
		if err != nil {
			return snap, err
		}
		snap.GPSReadings = append(snap.GPSReadings, readings...)
	}
	return snap, nil
}

func (p *Postgres) RecordCycle(ctx context.Context, c CycleRecord) error {
	_, err := p.db.ExecContext(ctx, `
INSERT INTO cycles (cycle_id, started_at, doc) VALUES ($1,$2,$3)
ON CONFLICT (cycle_id) DO UPDATE SET doc=$3`,
		c.CycleID, c.StartedAt, toDoc(c))
	return err
}

func (p *Postgres) ListCycles(ctx context.Context, limit int) ([]CycleRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
SELECT doc FROM cycles ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CycleRecord
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var c CycleRecord
		if err := json.Unmarshal(doc, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
