package decide

import (
	"math"
	"testing"

	"fleetops/internal/model"
)

func mustEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	e, err := NewEvaluator(DefaultWeights(), 0)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func waitScenario(id string, reliability float64) model.Scenario {
	return model.Scenario{
		ID:               id,
		Name:             "wait-" + id,
		Actions:          []model.Action{{Type: model.ActionWait, Wait: &model.WaitAction{DurationMinutes: 30}}},
		EstimatedCost:    20,
		EstimatedTimeMin: 30,
		ReliabilityScore: reliability,
	}
}

func TestEvaluateConfidenceIdentity(t *testing.T) {
	e := mustEvaluator(t)
	res := e.Evaluate([]model.Scenario{
		waitScenario("s1", 0.9),
		waitScenario("s2", 0.6),
	})
	if res.SelectedDecision == nil {
		t.Fatal("expected a selected decision")
	}
	all := append([]model.Decision{*res.SelectedDecision}, res.Alternatives...)
	for _, d := range all {
		var rel float64
		switch d.ScenarioID {
		case "s1":
			rel = 0.9
		case "s2":
			rel = 0.6
		}
		want := math.Round(d.Score*rel*1000) / 1000
		if math.Abs(d.Confidence-want) > 1e-9 {
			t.Fatalf("confidence %v != round3(score*reliability) %v", d.Confidence, want)
		}
	}
}

func TestEvaluateSelectsHighestScore(t *testing.T) {
	e := mustEvaluator(t)
	good := waitScenario("good", 0.95)
	bad := waitScenario("bad", 0.3)
	bad.EstimatedCost = 500
	bad.EstimatedTimeMin = 240

	res := e.Evaluate([]model.Scenario{bad, good})
	if res.SelectedDecision.ScenarioID != "good" {
		t.Fatalf("expected good scenario selected, got %s", res.SelectedDecision.ScenarioID)
	}
	if len(res.Alternatives) != 1 || res.Alternatives[0].ScenarioID != "bad" {
		t.Fatalf("alternatives wrong: %v", res.Alternatives)
	}
}

func TestEvaluateHighImpactStricterBar(t *testing.T) {
	e := mustEvaluator(t)
	reassign := model.Scenario{
		ID:   "r1",
		Name: "reassign",
		Actions: []model.Action{{
			Type:     model.ActionReassign,
			Reassign: &model.ReassignAction{FromTruckID: "a", ToTruckID: "b", LoadID: "l"},
		}},
		EstimatedCost:    10,
		EstimatedTimeMin: 20,
		ReliabilityScore: 0.9,
	}
	res := e.Evaluate([]model.Scenario{reassign})
	// a wait decision at this confidence would pass, a reassign must not
	if res.SelectedDecision.Confidence >= highImpactThreshold {
		t.Skipf("fixture confidence %v above strict bar", res.SelectedDecision.Confidence)
	}
	if res.SelectedDecision.Confidence < e.threshold {
		t.Skipf("fixture confidence %v below global threshold", res.SelectedDecision.Confidence)
	}
	if !res.RequiresHumanApproval {
		t.Fatal("reassign under 0.85 confidence must require approval")
	}
}

func TestEvaluateLowConfidenceRequiresApproval(t *testing.T) {
	e := mustEvaluator(t)
	res := e.Evaluate([]model.Scenario{waitScenario("s1", 0.2)})
	if !res.RequiresHumanApproval {
		t.Fatalf("confidence %v should require approval", res.SelectedDecision.Confidence)
	}
}

func TestEvaluateEmptyRequiresHuman(t *testing.T) {
	e := mustEvaluator(t)
	res := e.Evaluate(nil)
	if res.SelectedDecision != nil {
		t.Fatal("no decision may be selected from nothing")
	}
	if !res.RequiresHumanApproval {
		t.Fatal("empty scenarios must require human approval")
	}
}

func TestNewEvaluatorRejectsBadWeights(t *testing.T) {
	if _, err := NewEvaluator(Weights{Cost: 0.5, Time: 0.5, Reliability: 0.5}, 0.7); err == nil {
		t.Fatal("weights not summing to 1 must be rejected")
	}
	if _, err := NewEvaluator(Weights{Cost: -0.1, Time: 0.5, Reliability: 0.5, Fuel: 0.1}, 0.7); err == nil {
		t.Fatal("negative weight must be rejected")
	}
}
