package reason

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fleetops/internal/model"
	"fleetops/internal/perceive"
)

const (
	heavySegmentThreshold = 2
	lowFuelPercent        = 15.0
)

// RuleAnalyzer is the deterministic fallback analyzer. It is always
// available and never fails, so the control loop cannot block on reasoning.
type RuleAnalyzer struct{}

func NewRuleAnalyzer() *RuleAnalyzer { return &RuleAnalyzer{} }

func (a *RuleAnalyzer) Name() string { return "rules" }

func (a *RuleAnalyzer) Analyze(ctx context.Context, snap model.Snapshot) (model.ReasoningResult, error) {
	now := time.Now().UTC()
	var issues []model.Issue
	var trace []string

	byTruck := perceive.GroupReadingsByTruck(snap.GPSReadings)
	for _, t := range snap.Trucks {
		stuck := t.Status == model.TruckStuck || perceive.StuckFromReadings(byTruck[t.ID])
		if stuck {
			issues = append(issues, model.Issue{
				ID:               uuid.NewString(),
				Type:             "stuck",
				Severity:         "high",
				Description:      fmt.Sprintf("truck %s stationary across recent readings", t.ID),
				AffectedTruckIDs: []string{t.ID},
				AffectedLoadIDs:  nonEmpty(t.CurrentLoadID),
				DetectedAt:       now,
				Metadata:         map[string]any{"fuelLevelPercent": t.FuelLevelPercent},
			})
			trace = append(trace, fmt.Sprintf("stuck rule fired for %s", t.ID))
		}
		if t.FuelLevelPercent > 0 && t.FuelLevelPercent < lowFuelPercent {
			issues = append(issues, model.Issue{
				ID:               uuid.NewString(),
				Type:             "low_fuel",
				Severity:         "medium",
				Description:      fmt.Sprintf("truck %s fuel at %.0f%%", t.ID, t.FuelLevelPercent),
				AffectedTruckIDs: []string{t.ID},
				DetectedAt:       now,
			})
			trace = append(trace, fmt.Sprintf("low fuel rule fired for %s", t.ID))
		}
	}

	heavy := 0
	var affected []string
	for _, tc := range snap.TrafficConditions {
		if tc.Level == model.TrafficHeavy || tc.Level == model.TrafficStandstill {
			heavy++
			affected = append(affected, tc.SegmentID)
		}
	}
	if heavy > heavySegmentThreshold {
		issues = append(issues, model.Issue{
			ID:          uuid.NewString(),
			Type:        "traffic",
			Severity:    "medium",
			Description: fmt.Sprintf("%d segments congested", heavy),
			DetectedAt:  now,
			Metadata:    map[string]any{"segments": affected},
		})
		trace = append(trace, "traffic congestion rule fired")
	}

	for _, l := range snap.Loads {
		urgent := l.Priority == model.PriorityUrgent || l.Priority == model.PriorityCritical
		if urgent && l.AssignedTruckID == "" && l.DeliveredAt == nil {
			severity := "high"
			if l.Priority == model.PriorityCritical {
				severity = "critical"
			}
			issues = append(issues, model.Issue{
				ID:              uuid.NewString(),
				Type:            "capacity_mismatch",
				Severity:        severity,
				Description:     fmt.Sprintf("%s load %s has no truck", l.Priority, l.ID),
				AffectedLoadIDs: []string{l.ID},
				DetectedAt:      now,
			})
			trace = append(trace, fmt.Sprintf("unassigned urgent rule fired for %s", l.ID))
		}
		if l.DeliveryDeadline != nil && l.DeliveredAt == nil && now.After(*l.DeliveryDeadline) {
			issues = append(issues, model.Issue{
				ID:               uuid.NewString(),
				Type:             "delay",
				Severity:         "high",
				Description:      fmt.Sprintf("load %s past its delivery deadline", l.ID),
				AffectedLoadIDs:  []string{l.ID},
				AffectedTruckIDs: nonEmpty(l.AssignedTruckID),
				DetectedAt:       now,
			})
			trace = append(trace, fmt.Sprintf("deadline rule fired for %s", l.ID))
		}
	}

	issues = PrioritizeIssues(issues)
	return model.ReasoningResult{
		SituationSummary: fmt.Sprintf("%d trucks, %d loads, %d issues detected",
			len(snap.Trucks), len(snap.Loads), len(issues)),
		Issues:         issues,
		RiskAssessment: riskFromIssues(issues),
		Confidence:     0.7,
		ReasoningTrace: trace,
	}, nil
}

func riskFromIssues(issues []model.Issue) string {
	worst := 4
	for _, is := range issues {
		if r := model.SeverityRank(is.Severity); r < worst {
			worst = r
		}
	}
	switch worst {
	case 0:
		return "critical"
	case 1:
		return "high"
	case 2:
		return "medium"
	}
	return "low"
}

func nonEmpty(id string) []string {
	if id == "" {
		return nil
	}
	return []string{id}
}
