package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"fleetops/internal/model"
	"fleetops/internal/store"
)

// StoreExecutor applies a decision's fleet mutations through the store in
// one atomic operation and reports per-action results. Notify and escalate
// actions have no fleet state to change; they are logged and surfaced on
// the event stream by the caller.
type StoreExecutor struct {
	St store.Store
	Lg *slog.Logger
}

func NewStoreExecutor(st store.Store, lg *slog.Logger) *StoreExecutor {
	if lg == nil {
		lg = slog.Default()
	}
	return &StoreExecutor{St: st, Lg: lg}
}

func (x *StoreExecutor) Execute(ctx context.Context, d model.Decision) []model.ActionResult {
	now := time.Now().UTC()
	results := make([]model.ActionResult, 0, len(d.Actions))

	err := x.St.ApplyDecision(ctx, d)
	for _, a := range d.Actions {
		r := model.ActionResult{
			ActionID:   uuid.NewString(),
			DecisionID: d.ID,
			ExecutedAt: now,
		}
		if err != nil {
			r.Success = false
			r.Message = fmt.Sprintf("apply failed: %v", err)
		} else {
			r.Success = true
			r.Message = describeAction(a)
		}
		results = append(results, r)
	}
	if err != nil {
		x.Lg.Error("decision apply failed", "decision", d.ID, "error", err)
	}
	return results
}

func describeAction(a model.Action) string {
	switch a.Type {
	case model.ActionReroute:
		if a.Reroute != nil {
			return fmt.Sprintf("truck %s rerouted onto %s", a.Reroute.TruckID, a.Reroute.NewRoute)
		}
	case model.ActionReassign:
		if a.Reassign != nil {
			return fmt.Sprintf("load %s moved from %s to %s", a.Reassign.LoadID, a.Reassign.FromTruckID, a.Reassign.ToTruckID)
		}
	case model.ActionDispatch:
		if a.Dispatch != nil {
			return fmt.Sprintf("truck %s dispatched for %s", a.Dispatch.TruckID, a.Dispatch.LoadID)
		}
	case model.ActionWait:
		if a.Wait != nil {
			return fmt.Sprintf("holding %.0f minutes", a.Wait.DurationMinutes)
		}
	case model.ActionNotify:
		if a.Notify != nil {
			return fmt.Sprintf("notified %s", a.Notify.RecipientType)
		}
	case model.ActionEscalate:
		if a.Escalate != nil {
			return "escalated: " + a.Escalate.Reason
		}
	}
	return string(a.Type) + " executed"
}
