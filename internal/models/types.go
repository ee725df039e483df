package models

// Package models defines the core data types shared by every pipeline stage.
//
// These types are the contract between perception, correlation, reasoning,
// scoring, action selection, approval, and execution. Persistence may shape
// them differently; the invariants documented here hold regardless of layout.

import "time"

// SignalSource identifies where a signal was observed.
type SignalSource string

const (
	SourceMetric SignalSource = "metric"
	SourceLog    SignalSource = "log"
	SourceTrace  SignalSource = "trace"
)

// Severity is the shared severity scale for signals and incidents.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the ordinal rank of a severity (low=1 .. critical=4).
// Unknown severities rank 0.
func (s Severity) Rank() int {
	return severityRank[s]
}

// MaxSeverity returns the higher of two severities.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// SeverityForSigma maps an absolute z-score to a severity band.
// |z| in [3,4) → low, [4,5) → medium, [5,6) → high, >=6 → critical.
func SeverityForSigma(absZ float64) Severity {
	switch {
	case absZ >= 6:
		return SeverityCritical
	case absZ >= 5:
		return SeverityHigh
	case absZ >= 4:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Signal is one anomalous observation emitted by perception.
// DeviationSigma is signed; a signal is only emitted when
// |DeviationSigma| >= the configured anomaly threshold.
type Signal struct {
	Service        string            `json:"service"`
	MetricName     string            `json:"metric_name"`
	Value          float64           `json:"value"`
	Baseline       float64           `json:"baseline"`
	DeviationSigma float64           `json:"deviation_sigma"`
	Timestamp      time.Time         `json:"timestamp"`
	Source         SignalSource      `json:"source"`
	Labels         map[string]string `json:"labels,omitempty"`
}

// Severity returns the severity band implied by the signal's deviation.
func (s Signal) Severity() Severity {
	z := s.DeviationSigma
	if z < 0 {
		z = -z
	}
	return SeverityForSigma(z)
}

// Identifier returns the service-scoped metric identifier used in
// affected-component lists and evidence references.
func (s Signal) Identifier() string {
	return s.Service + "/" + s.MetricName
}

// Incident is the persisted work unit spanning detection to resolution.
//
// Invariants:
//   - ResolvedAt is set iff Status is terminal.
//   - Severity is monotonically non-decreasing for the lifetime of one ID.
type Incident struct {
	ID                 string             `json:"id"`
	Service            string             `json:"service"`
	Severity           Severity           `json:"severity"`
	Status             IncidentStatus     `json:"status"`
	StatusReason       string             `json:"status_reason,omitempty"`
	DetectedAt         time.Time          `json:"detected_at"`
	ResolvedAt         *time.Time         `json:"resolved_at,omitempty"`
	DetectionSource    string             `json:"detection_source"`
	AffectedComponents []string           `json:"affected_components"`
	MetricsSnapshot    map[string]float64 `json:"metrics_snapshot"`
	Context            map[string]string  `json:"context,omitempty"`
	Fingerprint        string             `json:"fingerprint"`
	DuplicateCount     int                `json:"duplicate_count"`
	ReasoningDegraded  bool               `json:"reasoning_degraded,omitempty"`
	Signals            []Signal           `json:"signals,omitempty"`
}

// HypothesisCategory is the closed set of root-cause categories.
type HypothesisCategory string

const (
	CategoryMemoryLeak           HypothesisCategory = "memory_leak"
	CategoryCPUSpike             HypothesisCategory = "cpu_spike"
	CategoryLatencySpike         HypothesisCategory = "latency_spike"
	CategoryErrorSpike           HypothesisCategory = "error_spike"
	CategoryDatabaseIssue        HypothesisCategory = "database_issue"
	CategoryNetworkIssue         HypothesisCategory = "network_issue"
	CategoryDeploymentRegression HypothesisCategory = "deployment_regression"
	CategoryResourceExhaustion   HypothesisCategory = "resource_exhaustion"
	CategoryDependencyFailure    HypothesisCategory = "dependency_failure"
	CategoryOther                HypothesisCategory = "other"
)

// Categories lists every valid hypothesis category.
func Categories() []HypothesisCategory {
	return []HypothesisCategory{
		CategoryMemoryLeak, CategoryCPUSpike, CategoryLatencySpike,
		CategoryErrorSpike, CategoryDatabaseIssue, CategoryNetworkIssue,
		CategoryDeploymentRegression, CategoryResourceExhaustion,
		CategoryDependencyFailure, CategoryOther,
	}
}

// Valid reports whether c is one of the closed enum values.
func (c HypothesisCategory) Valid() bool {
	for _, k := range Categories() {
		if c == k {
			return true
		}
	}
	return false
}

// Hypothesis is a candidate root cause scoped to one incident.
//
// Confidence is always recomputed deterministically; ModelSuggestedScore,
// when present, is audit-only and never governs control flow. The four
// score components are persisted so the arithmetic can be audited:
// confidence == clip(0.40·base + 0.35·evidence + 0.25·anomaly + dep_boost,
// 0.01, 0.99).
type Hypothesis struct {
	IncidentID          string             `json:"incident_id"`
	Rank                int                `json:"rank"`
	Description         string             `json:"description"`
	Category            HypothesisCategory `json:"category"`
	Confidence          float64            `json:"confidence"`
	BaseConfidence      float64            `json:"base_confidence"`
	EvidenceQuality     float64            `json:"evidence_quality"`
	AnomalyStrength     float64            `json:"anomaly_strength"`
	DependencyBoost     float64            `json:"dependency_boost"`
	SupportingSignals   []string           `json:"supporting_signals"`
	Reasoning           string             `json:"reasoning"`
	ModelSuggestedScore *float64           `json:"model_suggested_score,omitempty"`
}

// ActionType is the closed set of remediation actions.
type ActionType string

const (
	ActionScaleUp            ActionType = "scale_up"
	ActionScaleDown          ActionType = "scale_down"
	ActionClearCache         ActionType = "clear_cache"
	ActionToggleFeatureFlag  ActionType = "toggle_feature_flag"
	ActionRestartPod         ActionType = "restart_pod"
	ActionRollbackDeployment ActionType = "rollback_deployment"
	ActionDrainNode          ActionType = "drain_node"
)

// ActionTypes lists every valid action type.
func ActionTypes() []ActionType {
	return []ActionType{
		ActionScaleUp, ActionScaleDown, ActionClearCache,
		ActionToggleFeatureFlag, ActionRestartPod,
		ActionRollbackDeployment, ActionDrainNode,
	}
}

// Valid reports whether t is one of the closed enum values.
func (t ActionType) Valid() bool {
	for _, k := range ActionTypes() {
		if t == k {
			return true
		}
	}
	return false
}

// ExecutionMode selects between recording a would-be call and performing it.
type ExecutionMode string

const (
	ModeDryRun ExecutionMode = "dry_run"
	ModeLive   ExecutionMode = "live"
)

// Action is one candidate or scheduled remediation.
// Invariant: Type must appear in the matched runbook's allowed actions.
type Action struct {
	ID               string              `json:"id"`
	IncidentID       string              `json:"incident_id"`
	HypothesisRank   int                 `json:"hypothesis_rank"`
	Type             ActionType          `json:"action_type"`
	Parameters       map[string]string   `json:"parameters,omitempty"`
	Risk             RiskProfile         `json:"risk_profile"`
	Status           ActionStatus        `json:"status"`
	StatusReason     string              `json:"status_reason,omitempty"`
	ApprovalRequired bool                `json:"approval_required"`
	ApprovalMode     string              `json:"approval_mode,omitempty"` // "auto" | "operator"
	RequestedAt      time.Time           `json:"requested_at"`
	ApprovedAt       *time.Time          `json:"approved_at,omitempty"`
	ApprovedBy       string              `json:"approved_by,omitempty"`
	ExecutedAt       *time.Time          `json:"executed_at,omitempty"`
	ExecutionMode    ExecutionMode       `json:"execution_mode"`
	AttemptID        int64               `json:"attempt_id,omitempty"`
	PreMetrics       map[string]float64  `json:"pre_metrics,omitempty"`
	PostMetrics      map[string]float64  `json:"post_metrics,omitempty"`
	Verification     VerificationOutcome `json:"verification,omitempty"`
	ExpectedCost     float64             `json:"expected_cost,omitempty"`
	WorstCaseCost    float64             `json:"worst_case_cost,omitempty"`
}

// RiskLevel grades an allowed action inside a runbook.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// BlastImpact is the static scope class of an action type.
type BlastImpact string

const (
	ImpactPod        BlastImpact = "pod"
	ImpactDeployment BlastImpact = "deployment"
	ImpactCluster    BlastImpact = "cluster"
	ImpactDatacenter BlastImpact = "datacenter"
)

// RiskProfile is the static risk description of one action type.
type RiskProfile struct {
	RiskScore           float64     `json:"risk_score"` // [0,1]
	ExpectedDowntimeS   int         `json:"expected_downtime_s"`
	WorstCaseDowntimeS  int         `json:"worst_case_downtime_s"`
	RecoveryTimeS       int         `json:"recovery_time_s"`
	Reversible          bool        `json:"reversible"`
	BlastImpact         BlastImpact `json:"blast_impact"`
	CostPerMinute       float64     `json:"cost_per_minute"`
	Prerequisites       []string    `json:"prerequisites,omitempty"`
	SideEffects         []string    `json:"side_effects,omitempty"`
}

// BlastLevel buckets a blast score into operator-facing impact classes.
type BlastLevel string

const (
	BlastMinimal  BlastLevel = "MINIMAL"
	BlastLow      BlastLevel = "LOW"
	BlastMedium   BlastLevel = "MEDIUM"
	BlastHigh     BlastLevel = "HIGH"
	BlastCritical BlastLevel = "CRITICAL"
)

// BlastRadiusAssessment is the computed impact scope for one incident.
type BlastRadiusAssessment struct {
	AffectedServicesCount  int        `json:"affected_services_count"`
	RequestVolumeQPS       float64    `json:"request_volume_qps"`
	ErrorPropagationRatio  float64    `json:"error_propagation_ratio"` // [0,1]
	CriticalityScore       float64    `json:"criticality_score"`       // [0,1]
	BlastScore             float64    `json:"blast_score"`             // [0,1]
	Level                  BlastLevel `json:"level"`
	UrgencyMultiplier      float64    `json:"urgency_multiplier"` // [1.0,5.0]
	EstimatedUsersImpacted int        `json:"estimated_users_impacted"`
	RevenueImpactPerHour   float64    `json:"revenue_impact_per_hour"`
}

// VerificationOutcome classifies post-action metric movement.
type VerificationOutcome string

const (
	OutcomeSuccess        VerificationOutcome = "SUCCESS"
	OutcomePartialSuccess VerificationOutcome = "PARTIAL_SUCCESS"
	OutcomeNoChange       VerificationOutcome = "NO_CHANGE"
	OutcomeDegraded       VerificationOutcome = "DEGRADED"
	OutcomeUnstable       VerificationOutcome = "UNSTABLE"
)

// ConfidenceOutcomeRecord pairs a predicted confidence with the measured
// result of the action taken on it. Records are append-only and authoritative
// for recalibrating category priors.
type ConfidenceOutcomeRecord struct {
	IncidentID          string              `json:"incident_id"`
	Service             string              `json:"service"`
	Category            HypothesisCategory  `json:"category"`
	PredictedConfidence float64             `json:"predicted_confidence"`
	ActionType          ActionType          `json:"action_type"`
	Executed            bool                `json:"executed"`
	Outcome             VerificationOutcome `json:"outcome"`
	TimeToResolutionS   int64               `json:"time_to_resolution_s"`
	BlastLevel          BlastLevel          `json:"blast_level"`
	RiskLevel           RiskLevel           `json:"risk_level"`
	MetricDeltas        map[string]float64  `json:"metric_deltas,omitempty"`
	RecordedAt          time.Time           `json:"recorded_at"`
}

// FeedbackType classifies operator feedback entries.
type FeedbackType string

const (
	FeedbackHypothesisCorrect   FeedbackType = "hypothesis_correct"
	FeedbackHypothesisIncorrect FeedbackType = "hypothesis_incorrect"
	FeedbackActionSuccessful    FeedbackType = "action_successful"
	FeedbackActionInappropriate FeedbackType = "action_inappropriate"
	FeedbackEscalated           FeedbackType = "escalated"
	FeedbackComment             FeedbackType = "comment"
)

// OperatorFeedback is an append-only operator annotation on an incident.
type OperatorFeedback struct {
	IncidentID        string             `json:"incident_id"`
	HypothesisRank    int                `json:"hypothesis_rank,omitempty"`
	ActionID          string             `json:"action_id,omitempty"`
	Type              FeedbackType       `json:"feedback_type"`
	CorrectCategory   HypothesisCategory `json:"correct_category,omitempty"`
	CorrectActionType ActionType         `json:"correct_action_type,omitempty"`
	Text              string             `json:"text,omitempty"`
	Timestamp         time.Time          `json:"timestamp"`
}

// TimelineEvent is one entry in an incident's causal audit chain.
type TimelineEvent struct {
	ID         int64     `json:"id"`
	IncidentID string    `json:"incident_id"`
	Stage      string    `json:"stage"`
	EventType  string    `json:"event_type"`
	Detail     string    `json:"detail,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
