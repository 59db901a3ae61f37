package model

import (
	"fmt"
	"math"
	"time"
)

// TruckStatus is the operational state of a truck.
type TruckStatus string

const (
	TruckIdle        TruckStatus = "idle"
	TruckEnRoute     TruckStatus = "en_route"
	TruckLoading     TruckStatus = "loading"
	TruckUnloading   TruckStatus = "unloading"
	TruckMaintenance TruckStatus = "maintenance"
	TruckStuck       TruckStatus = "stuck"
	TruckDelayed     TruckStatus = "delayed"
)

// TrafficLevel orders congestion from free flow to standstill.
type TrafficLevel string

const (
	TrafficFreeFlow   TrafficLevel = "free_flow"
	TrafficLight      TrafficLevel = "light"
	TrafficModerate   TrafficLevel = "moderate"
	TrafficHeavy      TrafficLevel = "heavy"
	TrafficStandstill TrafficLevel = "standstill"
)

// LoadPriority orders loads from low to critical.
type LoadPriority string

const (
	PriorityLow      LoadPriority = "low"
	PriorityNormal   LoadPriority = "normal"
	PriorityHigh     LoadPriority = "high"
	PriorityUrgent   LoadPriority = "urgent"
	PriorityCritical LoadPriority = "critical"
)

// Rank returns a numeric urgency, higher meaning more urgent.
func (p LoadPriority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityNormal:
		return 2
	case PriorityHigh:
		return 3
	case PriorityUrgent:
		return 4
	case PriorityCritical:
		return 5
	}
	return 2
}

// ActionType enumerates the primitive actions the system can execute.
type ActionType string

const (
	ActionReroute  ActionType = "reroute"
	ActionReassign ActionType = "reassign"
	ActionDispatch ActionType = "dispatch"
	ActionWait     ActionType = "wait"
	ActionNotify   ActionType = "notify"
	ActionEscalate ActionType = "escalate"
)

// Phase is a control-loop phase.
type Phase string

const (
	PhaseObserve  Phase = "observe"
	PhaseReason   Phase = "reason"
	PhasePlan     Phase = "plan"
	PhaseDecide   Phase = "decide"
	PhaseAct      Phase = "act"
	PhaseFeedback Phase = "feedback"
)

const earthRadiusKm = 6371.0

// Location is an immutable geographic point.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
	Name      string  `json:"name,omitempty"`
}

// Validate checks coordinate ranges.
func (l Location) Validate() error {
	if l.Latitude < -90 || l.Latitude > 90 {
		return fmt.Errorf("latitude out of range: %v", l.Latitude)
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("longitude out of range: %v", l.Longitude)
	}
	return nil
}

// DistanceTo returns the great-circle distance in km (Haversine).
func (l Location) DistanceTo(o Location) float64 {
	lat1 := l.Latitude * math.Pi / 180
	lat2 := o.Latitude * math.Pi / 180
	dLat := (o.Latitude - l.Latitude) * math.Pi / 180
	dLon := (o.Longitude - l.Longitude) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// GPSReading is one position report from a truck.
type GPSReading struct {
	TruckID        string    `json:"truckId"`
	Timestamp      time.Time `json:"timestamp"`
	Location       Location  `json:"location"`
	SpeedKmh       float64   `json:"speedKmh"`
	Heading        float64   `json:"heading"`
	AccuracyMeters float64   `json:"accuracyMeters,omitempty"`
}

// Truck is a vehicle in the fleet. Optimizer components read trucks as
// snapshots and never mutate them; status/position updates come from the
// orchestrator's act phase and the background simulator.
type Truck struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	Status           TruckStatus `json:"status"`
	CurrentLocation  *Location   `json:"currentLocation,omitempty"`
	CurrentLoadID    string      `json:"currentLoadId,omitempty"`
	DriverID         string      `json:"driverId,omitempty"`
	CapacityKg       float64     `json:"capacityKg"`
	FuelLevelPercent float64     `json:"fuelLevelPercent"`
	LastGPSReading   *GPSReading `json:"lastGpsReading,omitempty"`
	TotalDistanceKm  float64     `json:"totalDistanceKm"`
	TotalDeliveries  int         `json:"totalDeliveries"`
}

// Load is cargo to be transported. Lifecycle: unassigned -> assigned ->
// picked up -> delivered; it never reverts.
type Load struct {
	ID                string       `json:"id"`
	Description       string       `json:"description"`
	WeightKg          float64      `json:"weightKg"`
	VolumeM3          float64      `json:"volumeM3,omitempty"`
	Priority          LoadPriority `json:"priority"`
	PickupLocation    Location     `json:"pickupLocation"`
	DeliveryLocation  Location     `json:"deliveryLocation"`
	PickupWindowStart *time.Time   `json:"pickupWindowStart,omitempty"`
	PickupWindowEnd   *time.Time   `json:"pickupWindowEnd,omitempty"`
	DeliveryDeadline  *time.Time   `json:"deliveryDeadline,omitempty"`
	AssignedTruckID   string       `json:"assignedTruckId,omitempty"`
	AssignedRouteID   string       `json:"assignedRouteId,omitempty"`
	PickedUpAt        *time.Time   `json:"pickedUpAt,omitempty"`
	DeliveredAt       *time.Time   `json:"deliveredAt,omitempty"`
}

// LifecycleStatus derives the load's stage from its timestamps.
func (l Load) LifecycleStatus() string {
	switch {
	case l.DeliveredAt != nil:
		return "delivered"
	case l.PickedUpAt != nil:
		return "picked_up"
	case l.AssignedTruckID != "":
		return "assigned"
	}
	return "unassigned"
}

// TrafficCondition describes congestion on a road segment.
type TrafficCondition struct {
	SegmentID           string       `json:"segmentId"`
	Level               TrafficLevel `json:"level"`
	SpeedKmh            float64      `json:"speedKmh"`
	DelayMinutes        float64      `json:"delayMinutes,omitempty"`
	IncidentDescription string       `json:"incidentDescription,omitempty"`
	AffectedRoutes      []string     `json:"affectedRoutes,omitempty"`
	Timestamp           time.Time    `json:"timestamp"`
}

// DelayFactor is the multiplicative travel-time penalty for the segment's
// congestion level (1.0 = no delay, 3.0 = triple time).
func (tc TrafficCondition) DelayFactor() float64 {
	switch tc.Level {
	case TrafficFreeFlow:
		return 1.0
	case TrafficLight:
		return 1.1
	case TrafficModerate:
		return 1.3
	case TrafficHeavy:
		return 1.7
	case TrafficStandstill:
		return 3.0
	}
	return 1.5
}

// Issue is an operational problem detected by reasoning. It lives for one
// cycle unless re-detected.
type Issue struct {
	ID               string         `json:"id"`
	Type             string         `json:"type"`     // stuck, delay, traffic, capacity_mismatch, breakdown, ...
	Severity         string         `json:"severity"` // low, medium, high, critical
	Description      string         `json:"description"`
	AffectedTruckIDs []string       `json:"affectedTruckIds,omitempty"`
	AffectedLoadIDs  []string       `json:"affectedLoadIds,omitempty"`
	DetectedAt       time.Time      `json:"detectedAt"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// SeverityRank orders issue severities, lower meaning more urgent.
func SeverityRank(severity string) int {
	switch severity {
	case "critical":
		return 0
	case "high":
		return 1
	case "medium":
		return 2
	case "low":
		return 3
	}
	return 2
}

// Action is a typed primitive action. Exactly one variant field is set for
// the given Type.
type Action struct {
	Type     ActionType      `json:"type"`
	Reroute  *RerouteAction  `json:"reroute,omitempty"`
	Reassign *ReassignAction `json:"reassign,omitempty"`
	Dispatch *DispatchAction `json:"dispatch,omitempty"`
	Wait     *WaitAction     `json:"wait,omitempty"`
	Notify   *NotifyAction   `json:"notify,omitempty"`
	Escalate *EscalateAction `json:"escalate,omitempty"`
}

type RerouteAction struct {
	TruckID  string `json:"truckId"`
	NewRoute string `json:"newRoute"`
}

type ReassignAction struct {
	FromTruckID string `json:"fromTruckId"`
	ToTruckID   string `json:"toTruckId"`
	LoadID      string `json:"loadId"`
}

type DispatchAction struct {
	TruckID string `json:"truckId"`
	LoadID  string `json:"loadId,omitempty"`
}

type WaitAction struct {
	DurationMinutes float64 `json:"durationMinutes"`
	TruckID         string  `json:"truckId,omitempty"`
}

type NotifyAction struct {
	RecipientType string `json:"recipientType"` // driver, dispatcher, customer, system
	RecipientID   string `json:"recipientId,omitempty"`
	Message       string `json:"message"`
}

type EscalateAction struct {
	Reason  string `json:"reason"`
	IssueID string `json:"issueId,omitempty"`
}

// Scenario is a candidate remedial action bundle with simulated outcomes.
// Scenarios are generated and discarded within one planning pass.
type Scenario struct {
	ID                  string         `json:"id"`
	Name                string         `json:"name"`
	Description         string         `json:"description"`
	Actions             []Action       `json:"actions"`
	EstimatedCost       float64        `json:"estimatedCost"`
	EstimatedTimeMin    float64        `json:"estimatedTimeMinutes"`
	EstimatedFuelLiters float64        `json:"estimatedFuelLiters"`
	ReliabilityScore    float64        `json:"reliabilityScore"`
	SimulationResults   map[string]any `json:"simulationResults,omitempty"`
}

// ScenarioScores holds normalized per-criterion scores for one scenario.
type ScenarioScores struct {
	Cost        float64 `json:"costScore"`
	Time        float64 `json:"timeScore"`
	Fuel        float64 `json:"fuelScore"`
	Reliability float64 `json:"reliability"`
	Overall     float64 `json:"overall"`
}

// PlanningResult is the output of one planning pass.
type PlanningResult struct {
	IssueID               string                    `json:"issueId,omitempty"`
	Scenarios             []Scenario                `json:"scenarios"`
	ComparisonMatrix      map[string]ScenarioScores `json:"comparisonMatrix,omitempty"`
	RecommendedScenarioID string                    `json:"recommendedScenarioId,omitempty"`
}

// DecisionStatus tracks a decision through the approval workflow.
type DecisionStatus string

const (
	DecisionPending  DecisionStatus = "pending"
	DecisionApproved DecisionStatus = "approved"
	DecisionRejected DecisionStatus = "rejected"
	DecisionExecuted DecisionStatus = "executed"
)

// Decision is a selected, scored scenario converted into executable actions.
// Confidence is always score x scenario reliability, never set independently.
type Decision struct {
	ID            string         `json:"id"`
	ScenarioID    string         `json:"scenarioId"`
	ActionType    ActionType     `json:"actionType"`
	Actions       []Action       `json:"actions"`
	Score         float64        `json:"score"`
	Confidence    float64        `json:"confidence"`
	Rationale     string         `json:"rationale"`
	Status        DecisionStatus `json:"status"`
	LLMVerified   bool           `json:"llmVerified"`
	HumanApproved bool           `json:"humanApproved"`
	ApprovedBy    string         `json:"approvedBy,omitempty"`
	DecidedAt     time.Time      `json:"decidedAt"`
}

// DecisionResult is the output of the decision evaluator.
type DecisionResult struct {
	SelectedDecision      *Decision  `json:"selectedDecision,omitempty"`
	Alternatives          []Decision `json:"alternatives"`
	RequiresHumanApproval bool       `json:"requiresHumanApproval"`
	DecisionTrace         []string   `json:"decisionTrace"`
}

// ReasoningResult is the output of situation analysis.
type ReasoningResult struct {
	SituationSummary string   `json:"situationSummary"`
	Issues           []Issue  `json:"issues"`
	RiskAssessment   string   `json:"riskAssessment"`
	Recommendations  []string `json:"recommendations,omitempty"`
	Confidence       float64  `json:"confidence"`
	ReasoningTrace   []string `json:"reasoningTrace,omitempty"`
}

// ActionResult reports the outcome of executing one primitive action.
type ActionResult struct {
	ActionID   string    `json:"actionId"`
	DecisionID string    `json:"decisionId"`
	Success    bool      `json:"success"`
	Message    string    `json:"message"`
	ExecutedAt time.Time `json:"executedAt"`
}

// FeedbackResult aggregates cycle outcomes.
type FeedbackResult struct {
	SucceededActions int      `json:"succeededActions"`
	FailedActions    int      `json:"failedActions"`
	SystemHealth     string   `json:"systemHealth"`
	Recommendations  []string `json:"recommendations,omitempty"`
}

// Snapshot is a point-in-time copy of fleet/load/traffic state produced by
// the observation provider. The control loop computes against a snapshot,
// never against live state.
type Snapshot struct {
	Trucks            []Truck            `json:"trucks"`
	Loads             []Load             `json:"loads"`
	TrafficConditions []TrafficCondition `json:"trafficConditions"`
	GPSReadings       []GPSReading       `json:"gpsReadings,omitempty"`
	Timestamp         time.Time          `json:"timestamp"`
	Degraded          bool               `json:"degraded,omitempty"`
}

// AgentState carries one in-flight control-loop cycle between phases. It is
// rebuilt each cycle, not accumulated indefinitely.
type AgentState struct {
	CurrentPhase Phase  `json:"currentPhase"`
	CycleID      string `json:"cycleId"`

	Snapshot Snapshot `json:"snapshot"`

	ReasoningResult *ReasoningResult `json:"reasoningResult,omitempty"`
	CurrentIssues   []Issue          `json:"currentIssues"`

	PlanningResult *PlanningResult `json:"planningResult,omitempty"`
	Scenarios      []Scenario      `json:"scenarios"`

	DecisionResult   *DecisionResult `json:"decisionResult,omitempty"`
	SelectedDecision *Decision       `json:"selectedDecision,omitempty"`

	ActionResults  []ActionResult  `json:"actionResults"`
	FeedbackResult *FeedbackResult `json:"feedbackResult,omitempty"`

	ContinueLoop              bool   `json:"continueLoop"`
	RequiresHumanIntervention bool   `json:"requiresHumanIntervention"`
	ErrorMessage              string `json:"errorMessage,omitempty"`

	CycleStartTime time.Time  `json:"cycleStartTime"`
	CycleEndTime   *time.Time `json:"cycleEndTime,omitempty"`
	TotalCycles    int        `json:"totalCycles"`
}
