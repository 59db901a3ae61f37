package reason

import (
	"context"
	"testing"
	"time"

	"fleetops/internal/model"
)

func stationaryReadings(truckID string, n int) []model.GPSReading {
	base := time.Now().Add(-time.Hour)
	out := make([]model.GPSReading, n)
	for i := range out {
		out[i] = model.GPSReading{
			TruckID:   truckID,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Location:  model.Location{Latitude: 40.7, Longitude: -74.0},
			SpeedKmh:  2,
		}
	}
	return out
}

func issuesOfType(issues []model.Issue, typ string) []model.Issue {
	var out []model.Issue
	for _, is := range issues {
		if is.Type == typ {
			out = append(out, is)
		}
	}
	return out
}

func TestRuleAnalyzerStuckTruck(t *testing.T) {
	loc := model.Location{Latitude: 40.7, Longitude: -74.0}
	snap := model.Snapshot{
		Trucks:      []model.Truck{{ID: "t1", Status: model.TruckEnRoute, CurrentLocation: &loc, FuelLevelPercent: 80}},
		GPSReadings: stationaryReadings("t1", 5),
	}
	res, err := NewRuleAnalyzer().Analyze(context.Background(), snap)
	if err != nil {
		t.Fatal(err)
	}
	stuck := issuesOfType(res.Issues, "stuck")
	if len(stuck) != 1 {
		t.Fatalf("expected one stuck issue, got %v", res.Issues)
	}
	if stuck[0].AffectedTruckIDs[0] != "t1" {
		t.Fatalf("wrong affected truck: %v", stuck[0].AffectedTruckIDs)
	}
	if res.RiskAssessment != "high" {
		t.Fatalf("stuck truck should rate high risk, got %s", res.RiskAssessment)
	}
}

func TestRuleAnalyzerTrafficThreshold(t *testing.T) {
	a := NewRuleAnalyzer()
	two := model.Snapshot{TrafficConditions: []model.TrafficCondition{
		{SegmentID: "s1", Level: model.TrafficHeavy},
		{SegmentID: "s2", Level: model.TrafficStandstill},
	}}
	res, _ := a.Analyze(context.Background(), two)
	if len(issuesOfType(res.Issues, "traffic")) != 0 {
		t.Fatal("two congested segments should not fire the traffic rule")
	}

	three := two
	three.TrafficConditions = append(three.TrafficConditions,
		model.TrafficCondition{SegmentID: "s3", Level: model.TrafficHeavy})
	res, _ = a.Analyze(context.Background(), three)
	if len(issuesOfType(res.Issues, "traffic")) != 1 {
		t.Fatal("more than two congested segments should fire the traffic rule")
	}
}

func TestRuleAnalyzerUnassignedUrgent(t *testing.T) {
	snap := model.Snapshot{Loads: []model.Load{
		{ID: "l1", Priority: model.PriorityCritical},
		{ID: "l2", Priority: model.PriorityNormal},
		{ID: "l3", Priority: model.PriorityUrgent, AssignedTruckID: "t1"},
	}}
	res, _ := NewRuleAnalyzer().Analyze(context.Background(), snap)
	got := issuesOfType(res.Issues, "capacity_mismatch")
	if len(got) != 1 {
		t.Fatalf("expected one capacity_mismatch, got %v", res.Issues)
	}
	if got[0].Severity != "critical" {
		t.Fatalf("critical load should yield critical severity, got %s", got[0].Severity)
	}
}

func TestRuleAnalyzerNoIssues(t *testing.T) {
	loc := model.Location{Latitude: 40.7, Longitude: -74.0}
	snap := model.Snapshot{
		Trucks: []model.Truck{{ID: "t1", Status: model.TruckIdle, CurrentLocation: &loc, FuelLevelPercent: 90}},
		Loads:  []model.Load{{ID: "l1", Priority: model.PriorityNormal}},
	}
	res, _ := NewRuleAnalyzer().Analyze(context.Background(), snap)
	if len(res.Issues) != 0 {
		t.Fatalf("healthy fleet should produce no issues, got %v", res.Issues)
	}
	if res.RiskAssessment != "low" {
		t.Fatalf("expected low risk, got %s", res.RiskAssessment)
	}
}

func TestPrioritizeIssuesSeverityOrder(t *testing.T) {
	now := time.Now()
	issues := []model.Issue{
		{ID: "a", Severity: "low", DetectedAt: now},
		{ID: "b", Severity: "critical", DetectedAt: now.Add(time.Second)},
		{ID: "c", Severity: "high", DetectedAt: now},
		{ID: "d", Severity: "critical", DetectedAt: now},
	}
	got := PrioritizeIssues(issues)
	wantOrder := []string{"d", "b", "c", "a"}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Fatalf("position %d: want %s got %s (%v)", i, id, got[i].ID, got)
		}
	}
}

func TestParseAnalysisFencedReply(t *testing.T) {
	reply := "```json\n{\"situation_summary\": \"one stuck truck\", \"issues\": [{\"type\": \"stuck\", \"severity\": \"high\", \"description\": \"t1 not moving\", \"affected_truck_ids\": [\"t1\"]}], \"risk_assessment\": \"high\", \"confidence\": 0.82}\n```"
	res, err := parseAnalysis(reply)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Issues) != 1 || res.Issues[0].Type != "stuck" {
		t.Fatalf("unexpected issues: %v", res.Issues)
	}
	if res.Confidence != 0.82 {
		t.Fatalf("confidence not carried: %f", res.Confidence)
	}

	if _, err := parseAnalysis("sorry, I cannot help"); err == nil {
		t.Fatal("prose reply should fail parsing")
	}
}
