package selection

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/kkrriders/airra/internal/approval"
	"github.com/kkrriders/airra/internal/graph"
	"github.com/kkrriders/airra/internal/models"
	"github.com/kkrriders/airra/internal/runbook"
)

const selectionRunbooks = `
runbooks:
  - id: rb-cpu-spike
    category: cpu_spike
    allowed_actions:
      - action_type: scale_up
        description: add replicas
        approval_required: false
        risk_level: low
        prerequisites: [replicas_below_max]
        max_auto_executions_per_day: 10
      - action_type: restart_pod
        description: restart the hot pod
        approval_required: true
        risk_level: medium
        max_auto_executions_per_day: 0
  - id: rb-database-issue
    category: database_issue
    allowed_actions:
      - action_type: drain_node
        description: drain the db node
        approval_required: true
        risk_level: critical
        prerequisites: [not_tier0_service]
        max_auto_executions_per_day: 0
`

func testSnapshots(t *testing.T) (*runbook.Snapshot, *graph.Snapshot) {
	t.Helper()
	rb, err := runbook.Parse([]byte(selectionRunbooks))
	if err != nil {
		t.Fatal(err)
	}
	g, err := graph.Build(map[string]graph.ServiceNode{
		"postgres": {Name: "postgres", Tier: graph.Tier0, Team: "data", Criticality: models.SeverityCritical},
		"payments": {Name: "payments", DependsOn: []string{"postgres"}, Tier: graph.Tier1, Team: "pay", Criticality: models.SeverityMedium},
	})
	if err != nil {
		t.Fatal(err)
	}
	return rb, g
}

func newSelector(t *testing.T) (*Selector, *approval.Counters) {
	t.Helper()
	c := approval.NewCounters(filepath.Join(t.TempDir(), "counters.json"), zap.NewNop())
	return NewSelector(0.60, c), c
}

func testIncident() *models.Incident {
	return &models.Incident{
		ID:      "inc-1",
		Service: "payments",
		MetricsSnapshot: map[string]float64{
			"replica_count": 3, "max_replicas": 10, "cpu_usage_ratio": 0.95,
		},
	}
}

func hypothesis(category models.HypothesisCategory, conf float64) *models.Hypothesis {
	return &models.Hypothesis{
		IncidentID: "inc-1", Rank: 1,
		Category: category, Confidence: conf,
		Description: "test hypothesis",
	}
}

func mediumBlast() models.BlastRadiusAssessment {
	return models.BlastRadiusAssessment{Level: models.BlastMedium, UrgencyMultiplier: 2.5}
}

func TestEscalateBelowConfidenceFloor(t *testing.T) {
	s, _ := newSelector(t)
	rb, g := testSnapshots(t)
	res := s.Select(testIncident(), []*models.Hypothesis{hypothesis(models.CategoryCPUSpike, 0.55)}, rb, g, mediumBlast())
	if res.Outcome != OutcomeEscalate || res.Reason != "confidence_floor" {
		t.Fatalf("res = %+v", res)
	}
}

func TestEscalateWithoutRunbook(t *testing.T) {
	s, _ := newSelector(t)
	rb, g := testSnapshots(t)
	res := s.Select(testIncident(), []*models.Hypothesis{hypothesis(models.CategoryNetworkIssue, 0.85)}, rb, g, mediumBlast())
	if res.Outcome != OutcomeEscalate || res.Reason != "no_runbook" {
		t.Fatalf("res = %+v", res)
	}
}

func TestSelectsLowestAdjustedRisk(t *testing.T) {
	s, _ := newSelector(t)
	rb, g := testSnapshots(t)
	res := s.Select(testIncident(), []*models.Hypothesis{hypothesis(models.CategoryCPUSpike, 0.85)}, rb, g, mediumBlast())

	if res.Outcome != OutcomeProceed {
		t.Fatalf("res = %+v", res)
	}
	if res.Action.Type != models.ActionScaleUp {
		t.Fatalf("selected %s, want scale_up as the lower-risk candidate", res.Action.Type)
	}
	if res.Action.Status != models.ActionProposed {
		t.Errorf("status = %s", res.Action.Status)
	}
	if res.Action.Parameters["service"] != "payments" {
		t.Errorf("parameters = %v", res.Action.Parameters)
	}
	if res.Action.ExpectedCost < 0 || res.Action.WorstCaseCost < res.Action.ExpectedCost {
		t.Errorf("costs: expected %.2f worst %.2f", res.Action.ExpectedCost, res.Action.WorstCaseCost)
	}
}

func TestPrerequisiteFailureRemovesCandidate(t *testing.T) {
	s, _ := newSelector(t)
	rb, g := testSnapshots(t)
	inc := testIncident()
	inc.MetricsSnapshot["replica_count"] = 10 // at max: replicas_below_max fails

	res := s.Select(inc, []*models.Hypothesis{hypothesis(models.CategoryCPUSpike, 0.85)}, rb, g, mediumBlast())
	if res.Outcome != OutcomeProceed || res.Action.Type != models.ActionRestartPod {
		t.Fatalf("res = %+v, want restart_pod after scale_up prerequisite fails", res)
	}
}

func TestFailClosedPrerequisiteOnTier0(t *testing.T) {
	s, _ := newSelector(t)
	rb, g := testSnapshots(t)
	inc := testIncident()
	inc.Service = "postgres" // tier-0: not_tier0_service fails closed

	res := s.Select(inc, []*models.Hypothesis{hypothesis(models.CategoryDatabaseIssue, 0.85)}, rb, g, mediumBlast())
	if res.Outcome != OutcomeEscalate || res.Reason != "no_satisfiable_action" {
		t.Fatalf("res = %+v", res)
	}
}

func TestRateLimitEscalation(t *testing.T) {
	s, counters := newSelector(t)
	rb, g := testSnapshots(t)
	for i := 0; i < 10; i++ {
		counters.Increment(models.ActionScaleUp)
	}

	// scale_up is rate-limited out; restart_pod is approval_required and so
	// exempt from the daily auto limit.
	res := s.Select(testIncident(), []*models.Hypothesis{hypothesis(models.CategoryCPUSpike, 0.85)}, rb, g, mediumBlast())
	if res.Outcome != OutcomeProceed || res.Action.Type != models.ActionRestartPod {
		t.Fatalf("res = %+v, want fallback to restart_pod", res)
	}
}

func TestDecisionMatrix(t *testing.T) {
	cases := []struct {
		level models.BlastLevel
		conf  float64
		act   bool
	}{
		{models.BlastCritical, 0.05, true},
		{models.BlastHigh, 0.70, true},
		{models.BlastHigh, 0.69, false},
		{models.BlastMedium, 0.80, true},
		{models.BlastMedium, 0.79, false},
		{models.BlastLow, 0.90, true},
		{models.BlastLow, 0.89, false},
		{models.BlastMinimal, 0.95, true},
		{models.BlastMinimal, 0.89, false},
	}
	for _, tc := range cases {
		if got := shouldAct(tc.level, tc.conf); got != tc.act {
			t.Errorf("shouldAct(%s, %.2f) = %v, want %v", tc.level, tc.conf, got, tc.act)
		}
	}
}

func TestObserveOutcomeStillProposesAction(t *testing.T) {
	s, _ := newSelector(t)
	rb, g := testSnapshots(t)
	blast := models.BlastRadiusAssessment{Level: models.BlastLow, UrgencyMultiplier: 1.5}

	res := s.Select(testIncident(), []*models.Hypothesis{hypothesis(models.CategoryCPUSpike, 0.75)}, rb, g, blast)
	if res.Outcome != OutcomeObserve {
		t.Fatalf("res = %+v, want observe for LOW blast at 0.75", res)
	}
	if res.Action == nil {
		t.Fatal("observe must still record the would-be action")
	}
}

func TestHigherConfidenceHypothesisPreferred(t *testing.T) {
	s, _ := newSelector(t)
	rb, g := testSnapshots(t)
	hyps := []*models.Hypothesis{
		hypothesis(models.CategoryCPUSpike, 0.85),
		hypothesis(models.CategoryDatabaseIssue, 0.70),
	}
	res := s.Select(testIncident(), hyps, rb, g, mediumBlast())
	if res.Hypothesis == nil || res.Hypothesis.Category != models.CategoryCPUSpike {
		t.Fatalf("res = %+v, want first qualifying hypothesis", res)
	}
}
