package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kkrriders/airra/internal/approval"
	"github.com/kkrriders/airra/internal/audit"
	"github.com/kkrriders/airra/internal/backends"
	"github.com/kkrriders/airra/internal/correlation"
	"github.com/kkrriders/airra/internal/dedup"
	"github.com/kkrriders/airra/internal/execution"
	"github.com/kkrriders/airra/internal/graph"
	"github.com/kkrriders/airra/internal/models"
	"github.com/kkrriders/airra/internal/outcome"
	"github.com/kkrriders/airra/internal/reasoning"
	"github.com/kkrriders/airra/internal/runbook"
	"github.com/kkrriders/airra/internal/scoring"
	"github.com/kkrriders/airra/internal/selection"
	"github.com/kkrriders/airra/internal/store"
)

const graphYAML = `
postgres:
  depends_on: []
  tier: tier-0
  team: data
  criticality: critical
payment-service:
  depends_on: [postgres]
  tier: tier-1
  team: payments
  criticality: critical
api-gateway:
  depends_on: [payment-service]
  tier: tier-2
  team: platform
  criticality: high
web-frontend:
  depends_on: [api-gateway]
  tier: tier-3
  team: storefront
  criticality: medium
`

const runbooksYAML = `
runbooks:
  - id: rb-cpu-spike
    category: cpu_spike
    allowed_actions:
      - action_type: scale_up
        description: add replicas
        approval_required: false
        risk_level: low
        max_auto_executions_per_day: 10
  - id: rb-error-spike
    category: error_spike
    allowed_actions:
      - action_type: restart_pod
        description: restart the failing pod
        approval_required: true
        risk_level: medium
        max_auto_executions_per_day: 0
`

// rollbackRunbooksYAML lets the cpu_spike runbook undo a scale_up without
// operator involvement.
const rollbackRunbooksYAML = `
runbooks:
  - id: rb-cpu-spike
    category: cpu_spike
    allowed_actions:
      - action_type: scale_up
        description: add replicas
        approval_required: false
        risk_level: low
        max_auto_executions_per_day: 10
      - action_type: scale_down
        description: shed replicas
        approval_required: false
        risk_level: low
        max_auto_executions_per_day: 10
`

// gatedRollbackRunbooksYAML permits the inverse but only with operator
// approval.
const gatedRollbackRunbooksYAML = `
runbooks:
  - id: rb-cpu-spike
    category: cpu_spike
    allowed_actions:
      - action_type: scale_up
        description: add replicas
        approval_required: false
        risk_level: low
        max_auto_executions_per_day: 10
      - action_type: scale_down
        description: shed replicas
        approval_required: true
        risk_level: medium
        max_auto_executions_per_day: 0
`

type fakeGenerator struct {
	text string
	err  error
}

func (f *fakeGenerator) Generate(_ context.Context, _ backends.GenerateRequest) (*backends.GenerateResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &backends.GenerateResponse{Text: f.text}, nil
}

// fakeQPS answers every latest-value query with a steady request rate.
type fakeQPS struct{}

func (fakeQPS) LatestValue(_ context.Context, _ string) (float64, bool, error) {
	return 100, true, nil
}

// fakeExecMetrics serves one metric snapshot per capture round.
type fakeExecMetrics struct {
	snapshots []map[string]float64
	captures  int
}

func (f *fakeExecMetrics) LatestValue(_ context.Context, query string) (float64, bool, error) {
	idx := f.captures / len(execution.VerificationMetrics)
	if idx >= len(f.snapshots) {
		idx = len(f.snapshots) - 1
	}
	f.captures++
	for _, m := range execution.VerificationMetrics {
		if strings.HasPrefix(query, m+"{") {
			v, ok := f.snapshots[idx][m]
			return v, ok, nil
		}
	}
	return 0, false, fmt.Errorf("unknown query %q", query)
}

type fakeEffector struct {
	executed []backends.ExecuteRequest
}

func (f *fakeEffector) Execute(_ context.Context, req backends.ExecuteRequest) (*backends.ExecuteResponse, error) {
	f.executed = append(f.executed, req)
	return &backends.ExecuteResponse{Status: "started", AttemptID: int64(len(f.executed))}, nil
}

func (f *fakeEffector) WaitForCompletion(_ context.Context, _ int64, _ time.Duration) (*backends.AttemptStatus, error) {
	return &backends.AttemptStatus{Status: "succeeded"}, nil
}

func improvingSnapshots() []map[string]float64 {
	at := func(er, p95 float64) map[string]float64 {
		return map[string]float64{
			"error_rate": er, "latency_p95": p95, "latency_p99": p95 * 2,
			"availability": 0.99, "request_rate": 100,
		}
	}
	return []map[string]float64{at(0.20, 2000), at(0.12, 1400), at(0.10, 1100), at(0.10, 1000)}
}

// degradedThenRecoveredSnapshots makes the primary action's verification
// window strictly worse than its baseline, then lets the inverse's window
// recover. Rounds: primary pre, three degraded samples, inverse pre, three
// recovered samples.
func degradedThenRecoveredSnapshots() []map[string]float64 {
	at := func(er, p95 float64) map[string]float64 {
		return map[string]float64{
			"error_rate": er, "latency_p95": p95, "latency_p99": p95 * 2,
			"availability": 0.99, "request_rate": 100,
		}
	}
	return []map[string]float64{
		at(0.10, 1000),
		at(0.16, 1400), at(0.16, 1400), at(0.16, 1400),
		at(0.16, 1400),
		at(0.08, 900), at(0.08, 900), at(0.08, 900),
	}
}

type harness struct {
	p        *Pipeline
	store    store.Store
	outcomes *outcome.Store
	counters *approval.Counters
	effector *fakeEffector
}

func newHarness(t *testing.T, generatorText string) *harness {
	t.Helper()
	return newHarnessWith(t, generatorText, runbooksYAML, improvingSnapshots())
}

func newHarnessWith(t *testing.T, generatorText, runbooks string, snapshots []map[string]float64) *harness {
	t.Helper()
	dir := t.TempDir()
	logger := zap.NewNop()

	graphPath := filepath.Join(dir, "graph.yaml")
	if err := os.WriteFile(graphPath, []byte(graphYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	runbooksPath := filepath.Join(dir, "runbooks.yaml")
	if err := os.WriteFile(runbooksPath, []byte(runbooks), 0o644); err != nil {
		t.Fatal(err)
	}

	graphs, err := graph.NewRegistry(graphPath, logger)
	if err != nil {
		t.Fatal(err)
	}
	runbookReg, err := runbook.NewRegistry(runbooksPath, logger)
	if err != nil {
		t.Fatal(err)
	}

	db, err := store.NewSQLiteStore(filepath.Join(dir, "airra.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	outcomes, err := outcome.NewStore(filepath.Join(dir, "outcomes.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { outcomes.Close() })

	auditLog, err := audit.NewLogger(&audit.Config{
		AuditLogPath: filepath.Join(dir, "audit.log"),
		AppLogPath:   filepath.Join(dir, "app.log"),
		LogLevel:     "info",
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { auditLog.Close() })

	table, err := dedup.NewTable(5*time.Minute, 1024, `^(pod_name|instance)$`)
	if err != nil {
		t.Fatal(err)
	}

	counters := approval.NewCounters(filepath.Join(dir, "counters.json"), logger)
	gate := approval.NewGate(counters, 120*time.Minute)
	effector := &fakeEffector{}
	executor := execution.NewExecutor(
		&fakeExecMetrics{snapshots: snapshots}, effector, logger,
		30*time.Millisecond, 0.20, 0.30, false)

	deps := Deps{
		Logger:     logger,
		Audit:      auditLog,
		Store:      db,
		Dedup:      table,
		Correlator: correlation.NewCorrelator(5*time.Minute, 3, 1, 0.35),
		Graphs:     graphs,
		Runbooks:   runbookReg,
		Reasoner:   reasoning.NewAdapter(&fakeGenerator{text: generatorText}, logger, "model-1", 0.2, 2048),
		Scorer:     scoring.NewScorer(),
		Selector:   selection.NewSelector(0.30, counters),
		Gate:       gate,
		Executor:   executor,
		Outcomes:   outcomes,
		Metrics:    fakeQPS{},
	}
	return &harness{
		p:        New(deps, time.Hour, 5*time.Second, 2),
		store:    db,
		outcomes: outcomes,
		counters: counters,
		effector: effector,
	}
}

func detectedIncident(id, service, metric string, z float64) *models.Incident {
	now := time.Now().UTC()
	return &models.Incident{
		ID:                 id,
		Service:            service,
		Severity:           models.SeverityHigh,
		Status:             models.IncidentDetected,
		DetectedAt:         now.Add(-time.Minute),
		DetectionSource:    "correlation",
		AffectedComponents: []string{service + "/" + metric},
		MetricsSnapshot:    map[string]float64{metric: 95},
		Fingerprint:        "fp-" + id,
		Signals: []models.Signal{{
			Service: service, MetricName: metric, Value: 95, Baseline: 40,
			DeviationSigma: z, Source: models.SourceMetric, Timestamp: now,
		}},
	}
}

func hypothesisJSON(category, ref string) string {
	return fmt.Sprintf(`{"hypotheses": [
		{"description": "CPU saturation on the service", "category": %q,
		 "evidence_refs": [%q], "reasoning": "deviation tracks load"},
		{"description": "Unrelated upstream wobble", "category": "other",
		 "evidence_refs": [%q], "reasoning": "weak signal"}
	]}`, category, ref, ref)
}

// saveUpstreamIncident parks a live incident on postgres so the dependency
// boost applies to services depending on it.
func saveUpstreamIncident(t *testing.T, db store.Store) {
	t.Helper()
	up := detectedIncident("inc-upstream", "postgres", "cpu_usage", 5.0)
	up.Fingerprint = "fp-upstream"
	up.Status = models.IncidentAnalyzing
	if err := db.SaveIncident(context.Background(), up); err != nil {
		t.Fatal(err)
	}
}

func TestProcessAutoApprovedResolution(t *testing.T) {
	h := newHarness(t, hypothesisJSON("cpu_spike", "payment-service/cpu_usage"))
	ctx := context.Background()
	saveUpstreamIncident(t, h.store)

	inc := detectedIncident("inc-1", "payment-service", "cpu_usage", 5.5)
	if err := h.store.SaveIncident(ctx, inc); err != nil {
		t.Fatal(err)
	}

	h.p.Process(ctx, "inc-1")

	got, err := h.store.GetIncident(ctx, "inc-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.IncidentResolved {
		t.Fatalf("status = %s (%s)", got.Status, got.StatusReason)
	}

	actions, err := h.store.ActionsFor(ctx, "inc-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 1 {
		t.Fatalf("actions = %d", len(actions))
	}
	a := actions[0]
	if a.Type != models.ActionScaleUp || a.Status != models.ActionSucceeded {
		t.Fatalf("action = %+v", a)
	}
	if a.ApprovalMode != "auto" || a.ApprovedAt == nil {
		t.Fatalf("approval fields = %+v", a)
	}
	if a.ExecutionMode != models.ModeDryRun {
		t.Fatalf("mode = %s, want default dry_run", a.ExecutionMode)
	}
	if a.Parameters["service"] != "payment-service" {
		t.Fatalf("parameters = %v", a.Parameters)
	}

	if got := h.counters.Count(models.ActionScaleUp); got != 1 {
		t.Fatalf("daily counter = %d", got)
	}

	recs, err := h.outcomes.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("outcome records = %d", len(recs))
	}
	rec := recs[0]
	if !rec.Executed || rec.Outcome != models.OutcomeSuccess {
		t.Fatalf("record = %+v", rec)
	}
	if rec.Category != models.CategoryCPUSpike || rec.PredictedConfidence < 0.80 {
		t.Fatalf("record = %+v", rec)
	}

	events, err := h.store.TimelineFor(ctx, "inc-1")
	if err != nil {
		t.Fatal(err)
	}
	stages := make(map[string]bool)
	for _, ev := range events {
		stages[ev.Stage] = true
	}
	for _, want := range []string{"reasoning", "scoring", "blast_radius", "selection", "approval", "execution", "verification"} {
		if !stages[want] {
			t.Errorf("timeline missing stage %s", want)
		}
	}
}

func TestProcessApprovalRequiredThenOperatorApproves(t *testing.T) {
	h := newHarness(t, hypothesisJSON("error_spike", "payment-service/error_rate"))
	ctx := context.Background()
	saveUpstreamIncident(t, h.store)

	inc := detectedIncident("inc-1", "payment-service", "error_rate", 5.5)
	if err := h.store.SaveIncident(ctx, inc); err != nil {
		t.Fatal(err)
	}

	h.p.Process(ctx, "inc-1")

	got, err := h.store.GetIncident(ctx, "inc-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.IncidentPendingApproval {
		t.Fatalf("status = %s (%s)", got.Status, got.StatusReason)
	}

	pending, err := h.store.ListPendingActions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].StatusReason != "runbook_policy" {
		t.Fatalf("pending = %+v", pending)
	}
	if len(h.effector.executed) != 0 {
		t.Fatal("nothing may execute before approval")
	}

	if _, err := h.store.ApproveAction(ctx, pending[0].ID, "alex", models.ModeLive); err != nil {
		t.Fatal(err)
	}
	h.p.ExecuteApproved(ctx, pending[0].ID)
	if err := h.p.workers.Wait(); err != nil {
		t.Fatal(err)
	}

	got, err = h.store.GetIncident(ctx, "inc-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.IncidentResolved {
		t.Fatalf("status = %s (%s)", got.Status, got.StatusReason)
	}
	if len(h.effector.executed) != 1 || h.effector.executed[0].ExecutionMode != models.ModeLive {
		t.Fatalf("executed = %+v", h.effector.executed)
	}
}

func TestProcessNoRunbookEscalates(t *testing.T) {
	h := newHarness(t, hypothesisJSON("memory_leak", "payment-service/memory_usage"))
	ctx := context.Background()

	inc := detectedIncident("inc-1", "payment-service", "memory_usage", 5.5)
	if err := h.store.SaveIncident(ctx, inc); err != nil {
		t.Fatal(err)
	}

	h.p.Process(ctx, "inc-1")

	got, err := h.store.GetIncident(ctx, "inc-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.IncidentEscalated || got.StatusReason != "no_runbook" {
		t.Fatalf("got = %s (%s)", got.Status, got.StatusReason)
	}
	if len(h.effector.executed) != 0 {
		t.Fatal("escalated incident must not execute anything")
	}
}

func TestSweepSLAEscalatesExpiredApprovals(t *testing.T) {
	h := newHarness(t, hypothesisJSON("error_spike", "payment-service/error_rate"))
	ctx := context.Background()

	inc := detectedIncident("inc-1", "payment-service", "error_rate", 5.5)
	inc.Status = models.IncidentPendingApproval
	if err := h.store.SaveIncident(ctx, inc); err != nil {
		t.Fatal(err)
	}
	profile, _ := models.RiskProfileFor(models.ActionRestartPod)
	a := &models.Action{
		ID: "act-1", IncidentID: "inc-1", Type: models.ActionRestartPod,
		Risk: profile, Status: models.ActionProposed,
		RequestedAt: time.Now().Add(-3 * time.Hour),
	}
	if err := h.store.ProposeAction(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := h.store.TransitionAction(ctx, "act-1", models.ActionProposed, models.ActionPendingApproval, "runbook_policy"); err != nil {
		t.Fatal(err)
	}

	h.p.SweepSLA(ctx)

	got, err := h.store.GetAction(ctx, "act-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.ActionRejected || got.StatusReason != "approval_timeout" {
		t.Fatalf("action = %s (%s)", got.Status, got.StatusReason)
	}
	incGot, err := h.store.GetIncident(ctx, "inc-1")
	if err != nil {
		t.Fatal(err)
	}
	if incGot.Status != models.IncidentEscalated || incGot.StatusReason != "approval_timeout" {
		t.Fatalf("incident = %s (%s)", incGot.Status, incGot.StatusReason)
	}
}

func TestSweepSLAKeepsFreshApprovals(t *testing.T) {
	h := newHarness(t, hypothesisJSON("error_spike", "payment-service/error_rate"))
	ctx := context.Background()

	inc := detectedIncident("inc-1", "payment-service", "error_rate", 5.5)
	inc.Status = models.IncidentPendingApproval
	if err := h.store.SaveIncident(ctx, inc); err != nil {
		t.Fatal(err)
	}
	profile, _ := models.RiskProfileFor(models.ActionRestartPod)
	a := &models.Action{
		ID: "act-1", IncidentID: "inc-1", Type: models.ActionRestartPod,
		Risk: profile, Status: models.ActionProposed,
		RequestedAt: time.Now().Add(-10 * time.Minute),
	}
	if err := h.store.ProposeAction(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := h.store.TransitionAction(ctx, "act-1", models.ActionProposed, models.ActionPendingApproval, ""); err != nil {
		t.Fatal(err)
	}

	h.p.SweepSLA(ctx)

	got, err := h.store.GetAction(ctx, "act-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.ActionPendingApproval {
		t.Fatalf("fresh approval must survive the sweep, got %s", got.Status)
	}
}

func TestAdmitIncidentMergesByFingerprint(t *testing.T) {
	h := newHarness(t, hypothesisJSON("cpu_spike", "payment-service/cpu_usage"))
	ctx := context.Background()

	live := detectedIncident("inc-live", "payment-service", "cpu_usage", 5.0)
	live.Status = models.IncidentAnalyzing
	live.Fingerprint = correlation.Fingerprint(live)
	if err := h.store.SaveIncident(ctx, live); err != nil {
		t.Fatal(err)
	}

	cand := detectedIncident("inc-cand", "payment-service", "cpu_usage", 6.2)
	cand.Severity = models.SeverityCritical
	h.p.admitIncident(ctx, cand)
	if err := h.p.workers.Wait(); err != nil {
		t.Fatal(err)
	}

	got, err := h.store.GetIncident(ctx, "inc-live")
	if err != nil {
		t.Fatal(err)
	}
	if got.DuplicateCount != 1 {
		t.Fatalf("duplicate_count = %d", got.DuplicateCount)
	}
	if got.Severity != models.SeverityCritical {
		t.Fatalf("severity = %s, must escalate on merge", got.Severity)
	}
	if _, err := h.store.GetIncident(ctx, "inc-cand"); err == nil {
		t.Fatal("merged candidate must not be persisted as a new incident")
	}
}

func TestMergeResumesParkedIncident(t *testing.T) {
	h := newHarness(t, hypothesisJSON("cpu_spike", "payment-service/cpu_usage"))
	ctx := context.Background()
	saveUpstreamIncident(t, h.store)

	live := detectedIncident("inc-live", "payment-service", "cpu_usage", 5.5)
	live.Status = models.IncidentAnalyzing
	live.Fingerprint = correlation.Fingerprint(live)
	if err := h.store.SaveIncident(ctx, live); err != nil {
		t.Fatal(err)
	}

	cand := detectedIncident("inc-cand", "payment-service", "cpu_usage", 6.0)
	h.p.admitIncident(ctx, cand)
	if err := h.p.workers.Wait(); err != nil {
		t.Fatal(err)
	}

	got, err := h.store.GetIncident(ctx, "inc-live")
	if err != nil {
		t.Fatal(err)
	}
	if got.DuplicateCount != 1 {
		t.Fatalf("duplicate_count = %d", got.DuplicateCount)
	}
	if got.Status != models.IncidentResolved {
		t.Fatalf("merge must resume the parked incident, got %s (%s)", got.Status, got.StatusReason)
	}
	if len(h.effector.executed) != 1 {
		t.Fatalf("executed = %d", len(h.effector.executed))
	}
}

func TestDegradedExecutionRunsInverseAutomatically(t *testing.T) {
	h := newHarnessWith(t, hypothesisJSON("cpu_spike", "payment-service/cpu_usage"),
		rollbackRunbooksYAML, degradedThenRecoveredSnapshots())
	ctx := context.Background()
	saveUpstreamIncident(t, h.store)

	inc := detectedIncident("inc-1", "payment-service", "cpu_usage", 5.5)
	if err := h.store.SaveIncident(ctx, inc); err != nil {
		t.Fatal(err)
	}

	h.p.Process(ctx, "inc-1")

	got, err := h.store.GetIncident(ctx, "inc-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.IncidentFailed || got.StatusReason != "degraded_rolled_back" {
		t.Fatalf("incident = %s (%s)", got.Status, got.StatusReason)
	}

	actions, err := h.store.ActionsFor(ctx, "inc-1")
	if err != nil {
		t.Fatal(err)
	}
	var up, down *models.Action
	for _, a := range actions {
		switch a.Type {
		case models.ActionScaleUp:
			up = a
		case models.ActionScaleDown:
			down = a
		}
	}
	if up == nil || up.Status != models.ActionRolledBack {
		t.Fatalf("primary = %+v", up)
	}
	if down == nil || down.Status != models.ActionSucceeded {
		t.Fatalf("inverse = %+v", down)
	}
	if down.ApprovalMode != "auto" || down.ApprovedAt == nil {
		t.Fatalf("inverse approval fields = %+v", down)
	}
	if !strings.HasPrefix(down.StatusReason, "inverse_of:") {
		t.Fatalf("status_reason = %q", down.StatusReason)
	}
	if len(h.effector.executed) != 2 {
		t.Fatalf("executed = %d", len(h.effector.executed))
	}
	if got := h.counters.Count(models.ActionScaleDown); got != 1 {
		t.Fatalf("inverse must consume the daily budget, counter = %d", got)
	}
}

func TestDegradedExecutionParksInverseForApproval(t *testing.T) {
	h := newHarnessWith(t, hypothesisJSON("cpu_spike", "payment-service/cpu_usage"),
		gatedRollbackRunbooksYAML, degradedThenRecoveredSnapshots())
	ctx := context.Background()
	saveUpstreamIncident(t, h.store)

	inc := detectedIncident("inc-1", "payment-service", "cpu_usage", 5.5)
	if err := h.store.SaveIncident(ctx, inc); err != nil {
		t.Fatal(err)
	}

	h.p.Process(ctx, "inc-1")

	got, err := h.store.GetIncident(ctx, "inc-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.IncidentPendingApproval || got.StatusReason != "rollback_pending_approval" {
		t.Fatalf("incident = %s (%s)", got.Status, got.StatusReason)
	}

	pending, err := h.store.ListPendingActions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Type != models.ActionScaleDown {
		t.Fatalf("pending = %+v", pending)
	}
	if pending[0].StatusReason != "runbook_policy" {
		t.Fatalf("pending reason = %q", pending[0].StatusReason)
	}
	if pending[0].ApprovedBy != "" || pending[0].ApprovalMode != "" {
		t.Fatalf("pending inverse must carry no approval, got %+v", pending[0])
	}
	if len(h.effector.executed) != 1 {
		t.Fatal("gated inverse must not execute before approval")
	}

	if _, err := h.store.ApproveAction(ctx, pending[0].ID, "alex", models.ModeLive); err != nil {
		t.Fatal(err)
	}
	h.p.ExecuteApproved(ctx, pending[0].ID)
	if err := h.p.workers.Wait(); err != nil {
		t.Fatal(err)
	}

	got, err = h.store.GetIncident(ctx, "inc-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.IncidentResolved {
		t.Fatalf("incident = %s (%s)", got.Status, got.StatusReason)
	}
	down, err := h.store.GetAction(ctx, pending[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if down.Status != models.ActionSucceeded {
		t.Fatalf("inverse = %s (%s)", down.Status, down.StatusReason)
	}
	if len(h.effector.executed) != 2 || h.effector.executed[1].ExecutionMode != models.ModeLive {
		t.Fatalf("executed = %+v", h.effector.executed)
	}
}
