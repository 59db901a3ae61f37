package decide

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"fleetops/internal/model"
)

const (
	DefaultConfidenceThreshold = 0.7
	// highImpactThreshold is the stricter bar for reassign/escalate actions.
	highImpactThreshold = 0.85

	costNormalizer = 100.0
	timeNormalizer = 60.0
	fuelNormalizer = 50.0
)

// Weights are the multi-criteria scoring weights. They must sum to 1.
type Weights struct {
	Cost        float64 `yaml:"cost"`
	Time        float64 `yaml:"time"`
	Reliability float64 `yaml:"reliability"`
	Fuel        float64 `yaml:"fuel"`
}

func DefaultWeights() Weights {
	return Weights{Cost: 0.25, Time: 0.35, Reliability: 0.30, Fuel: 0.10}
}

func (w Weights) validate() error {
	for name, v := range map[string]float64{
		"cost": w.Cost, "time": w.Time, "reliability": w.Reliability, "fuel": w.Fuel,
	} {
		if v < 0 {
			return fmt.Errorf("negative %s weight: %v", name, v)
		}
	}
	if sum := w.Cost + w.Time + w.Reliability + w.Fuel; math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("weights must sum to 1.0, got %v", sum)
	}
	return nil
}

// Evaluator scores and ranks scenarios and decides whether a human must
// approve before execution.
type Evaluator struct {
	weights   Weights
	threshold float64
}

func NewEvaluator(w Weights, confidenceThreshold float64) (*Evaluator, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}
	if confidenceThreshold <= 0 {
		confidenceThreshold = DefaultConfidenceThreshold
	}
	return &Evaluator{weights: w, threshold: confidenceThreshold}, nil
}

// Evaluate converts scenarios into ranked decisions and selects the top one.
// Empty input yields no decision and always requires human approval.
func (e *Evaluator) Evaluate(scenarios []model.Scenario) model.DecisionResult {
	if len(scenarios) == 0 {
		return model.DecisionResult{
			RequiresHumanApproval: true,
			DecisionTrace:         []string{"no scenarios to evaluate, deferring to human"},
		}
	}

	now := time.Now().UTC()
	trace := []string{fmt.Sprintf("evaluating %d scenarios", len(scenarios))}
	decisions := make([]model.Decision, 0, len(scenarios))
	for _, s := range scenarios {
		score := e.score(s)
		confidence := round3(score * s.ReliabilityScore)
		decisions = append(decisions, model.Decision{
			ID:         uuid.NewString(),
			ScenarioID: s.ID,
			ActionType: primaryActionType(s),
			Actions:    s.Actions,
			Score:      score,
			Confidence: confidence,
			Rationale:  fmt.Sprintf("scenario %q scored %.3f with reliability %.2f", s.Name, score, s.ReliabilityScore),
			Status:     model.DecisionPending,
			DecidedAt:  now,
		})
		trace = append(trace, fmt.Sprintf("%s: score %.3f confidence %.3f", s.Name, score, confidence))
	}
	sort.SliceStable(decisions, func(i, j int) bool {
		return decisions[i].Score > decisions[j].Score
	})

	selected := decisions[0]
	needsHuman := e.requiresApproval(selected)
	if needsHuman {
		trace = append(trace, fmt.Sprintf("confidence %.3f below bar for %s, requiring approval",
			selected.Confidence, selected.ActionType))
	} else {
		trace = append(trace, fmt.Sprintf("selected %s with confidence %.3f", selected.ActionType, selected.Confidence))
	}

	return model.DecisionResult{
		SelectedDecision:      &selected,
		Alternatives:          decisions[1:],
		RequiresHumanApproval: needsHuman,
		DecisionTrace:         trace,
	}
}

func (e *Evaluator) score(s model.Scenario) float64 {
	costScore := 1 / (1 + s.EstimatedCost/costNormalizer)
	timeScore := 1 / (1 + s.EstimatedTimeMin/timeNormalizer)
	fuelScore := 1 / (1 + s.EstimatedFuelLiters/fuelNormalizer)
	return e.weights.Cost*costScore +
		e.weights.Time*timeScore +
		e.weights.Reliability*s.ReliabilityScore +
		e.weights.Fuel*fuelScore
}

func (e *Evaluator) requiresApproval(d model.Decision) bool {
	if d.Confidence < e.threshold {
		return true
	}
	highImpact := d.ActionType == model.ActionReassign || d.ActionType == model.ActionEscalate
	return highImpact && d.Confidence < highImpactThreshold
}

func primaryActionType(s model.Scenario) model.ActionType {
	if len(s.Actions) == 0 {
		return model.ActionNotify
	}
	return s.Actions[0].Type
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
