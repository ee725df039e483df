package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kkrriders/airra/internal/models"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "airra.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleIncident(id, service string) *models.Incident {
	return &models.Incident{
		ID:                 id,
		Service:            service,
		Severity:           models.SeverityHigh,
		Status:             models.IncidentDetected,
		DetectedAt:         time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
		DetectionSource:    "correlation",
		AffectedComponents: []string{service + "/error_rate"},
		MetricsSnapshot:    map[string]float64{"error_rate": 0.12},
		Fingerprint:        "fp-" + id,
		Signals: []models.Signal{{
			Service: service, MetricName: "error_rate", Value: 0.12,
			Baseline: 0.01, DeviationSigma: 5.5, Source: models.SourceMetric,
			Timestamp: time.Date(2026, 8, 25, 9, 59, 0, 0, time.UTC),
		}},
	}
}

func sampleAction(id, incidentID string) *models.Action {
	profile, _ := models.RiskProfileFor(models.ActionScaleUp)
	return &models.Action{
		ID:          id,
		IncidentID:  incidentID,
		Type:        models.ActionScaleUp,
		Parameters:  map[string]string{"service": "payments", "replicas": "5"},
		Risk:        profile,
		Status:      models.ActionProposed,
		RequestedAt: time.Date(2026, 8, 25, 10, 1, 0, 0, time.UTC),
	}
}

func TestIncidentRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	want := sampleIncident("inc-1", "payments")
	if err := s.SaveIncident(ctx, want); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetIncident(ctx, "inc-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Service != "payments" || got.Severity != models.SeverityHigh {
		t.Fatalf("got = %+v", got)
	}
	if len(got.Signals) != 1 || got.Signals[0].DeviationSigma != 5.5 {
		t.Fatalf("signals = %+v", got.Signals)
	}
	if got.MetricsSnapshot["error_rate"] != 0.12 {
		t.Fatalf("snapshot = %+v", got.MetricsSnapshot)
	}
	if !got.DetectedAt.Equal(want.DetectedAt) {
		t.Fatalf("detected_at = %s, want %s", got.DetectedAt, want.DetectedAt)
	}
}

func TestGetIncidentNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetIncident(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSaveIncidentUpsertsMutableFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inc := sampleIncident("inc-1", "payments")
	if err := s.SaveIncident(ctx, inc); err != nil {
		t.Fatal(err)
	}

	inc.Severity = models.SeverityCritical
	inc.DuplicateCount = 3
	inc.AffectedComponents = append(inc.AffectedComponents, "payments/latency_p95")
	if err := s.SaveIncident(ctx, inc); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetIncident(ctx, "inc-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Severity != models.SeverityCritical || got.DuplicateCount != 3 {
		t.Fatalf("got = %+v", got)
	}
	if len(got.AffectedComponents) != 2 {
		t.Fatalf("components = %v", got.AffectedComponents)
	}
}

func TestFindLiveByFingerprint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	live := sampleIncident("inc-live", "payments")
	if err := s.SaveIncident(ctx, live); err != nil {
		t.Fatal(err)
	}
	resolved := sampleIncident("inc-done", "checkout")
	resolved.Fingerprint = "fp-done"
	resolved.Status = models.IncidentResolved
	if err := s.SaveIncident(ctx, resolved); err != nil {
		t.Fatal(err)
	}

	got, err := s.FindLiveByFingerprint(ctx, "fp-inc-live")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "inc-live" {
		t.Fatalf("got %s", got.ID)
	}

	if _, err := s.FindLiveByFingerprint(ctx, "fp-done"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("terminal incident matched: err = %v", err)
	}
}

func TestTransitionIncidentGuarded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inc := sampleIncident("inc-1", "payments")
	if err := s.SaveIncident(ctx, inc); err != nil {
		t.Fatal(err)
	}

	if err := s.TransitionIncident(ctx, "inc-1", models.IncidentDetected, models.IncidentAnalyzing, ""); err != nil {
		t.Fatal(err)
	}

	// The row no longer holds DETECTED: a stale writer must lose.
	err := s.TransitionIncident(ctx, "inc-1", models.IncidentDetected, models.IncidentAnalyzing, "")
	if !errors.Is(err, ErrStaleState) {
		t.Fatalf("err = %v, want ErrStaleState", err)
	}

	// Illegal transitions are rejected before touching the row.
	err = s.TransitionIncident(ctx, "inc-1", models.IncidentAnalyzing, models.IncidentExecuting, "")
	if err == nil || errors.Is(err, ErrStaleState) {
		t.Fatalf("err = %v, want illegal-transition error", err)
	}
}

func TestTransitionIncidentSetsResolvedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inc := sampleIncident("inc-1", "payments")
	if err := s.SaveIncident(ctx, inc); err != nil {
		t.Fatal(err)
	}
	steps := []struct{ from, to models.IncidentStatus }{
		{models.IncidentDetected, models.IncidentAnalyzing},
		{models.IncidentAnalyzing, models.IncidentResolved},
	}
	for _, st := range steps {
		if err := s.TransitionIncident(ctx, "inc-1", st.from, st.to, "benign"); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.GetIncident(ctx, "inc-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.IncidentResolved || got.ResolvedAt == nil {
		t.Fatalf("got = %+v", got)
	}
	if got.StatusReason != "benign" {
		t.Fatalf("reason = %q", got.StatusReason)
	}
}

func TestConcurrentTransitionSingleWinner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inc := sampleIncident("inc-1", "payments")
	if err := s.SaveIncident(ctx, inc); err != nil {
		t.Fatal(err)
	}

	const workers = 8
	var wg sync.WaitGroup
	wins := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.TransitionIncident(ctx, "inc-1", models.IncidentDetected, models.IncidentAnalyzing, ""); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	n := 0
	for range wins {
		n++
	}
	if n != 1 {
		t.Fatalf("winners = %d, want exactly 1", n)
	}
}

func TestLiveServicesExcludesTerminalAndSelf(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, tc := range []struct {
		id, svc string
		status  models.IncidentStatus
	}{
		{"inc-a", "payments", models.IncidentAnalyzing},
		{"inc-b", "checkout", models.IncidentExecuting},
		{"inc-c", "search", models.IncidentResolved},
	} {
		inc := sampleIncident(tc.id, tc.svc)
		inc.Fingerprint = "fp-" + tc.id
		inc.Status = tc.status
		if err := s.SaveIncident(ctx, inc); err != nil {
			t.Fatal(err)
		}
	}

	live, err := s.LiveServices(ctx, "inc-a")
	if err != nil {
		t.Fatal(err)
	}
	if live["payments"] || !live["checkout"] || live["search"] {
		t.Fatalf("live = %v", live)
	}
}

func TestHypothesesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inc := sampleIncident("inc-1", "payments")
	if err := s.SaveIncident(ctx, inc); err != nil {
		t.Fatal(err)
	}

	score := 0.9
	hyps := []*models.Hypothesis{
		{IncidentID: "inc-1", Rank: 1, Description: "error surge after deploy",
			Category: models.CategoryDeploymentRegression, Confidence: 0.81,
			BaseConfidence: 0.80, EvidenceQuality: 0.7, AnomalyStrength: 0.6,
			DependencyBoost: 0.0, SupportingSignals: []string{"payments/error_rate"},
			ModelSuggestedScore: &score},
		{IncidentID: "inc-1", Rank: 2, Description: "upstream dependency failure",
			Category: models.CategoryDependencyFailure, Confidence: 0.55,
			BaseConfidence: 0.70, EvidenceQuality: 0.3, AnomalyStrength: 0.4},
	}
	if err := s.SaveHypotheses(ctx, "inc-1", hyps); err != nil {
		t.Fatal(err)
	}

	got, err := s.HypothesesFor(ctx, "inc-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Rank != 1 || got[1].Rank != 2 {
		t.Fatalf("got = %+v", got)
	}
	if got[0].ModelSuggestedScore == nil || *got[0].ModelSuggestedScore != 0.9 {
		t.Fatalf("audit score = %v", got[0].ModelSuggestedScore)
	}
	if got[1].ModelSuggestedScore != nil {
		t.Fatal("absent audit score must stay nil")
	}

	// Re-saving replaces the set wholesale.
	if err := s.SaveHypotheses(ctx, "inc-1", hyps[:1]); err != nil {
		t.Fatal(err)
	}
	got, err = s.HypothesesFor(ctx, "inc-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d after replace", len(got))
	}
}

func TestProposeActionUniquePerIncident(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveIncident(ctx, sampleIncident("inc-1", "payments")); err != nil {
		t.Fatal(err)
	}
	if err := s.ProposeAction(ctx, sampleAction("act-1", "inc-1")); err != nil {
		t.Fatal(err)
	}

	err := s.ProposeAction(ctx, sampleAction("act-2", "inc-1"))
	if !errors.Is(err, ErrAlreadyProposed) {
		t.Fatalf("err = %v, want ErrAlreadyProposed", err)
	}

	// Once the first action reaches a terminal state, a new one may attach.
	if err := s.TransitionAction(ctx, "act-1", models.ActionProposed, models.ActionApproved, ""); err != nil {
		t.Fatal(err)
	}
	if err := s.TransitionAction(ctx, "act-1", models.ActionApproved, models.ActionFailed, "effector down"); err != nil {
		t.Fatal(err)
	}
	if err := s.ProposeAction(ctx, sampleAction("act-2", "inc-1")); err != nil {
		t.Fatal(err)
	}
}

func TestConcurrentProposeSingleWinner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveIncident(ctx, sampleIncident("inc-1", "payments")); err != nil {
		t.Fatal(err)
	}

	const workers = 8
	var wg sync.WaitGroup
	wins := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			a := sampleAction("act-"+string(rune('a'+n)), "inc-1")
			if err := s.ProposeAction(ctx, a); err == nil {
				wins <- struct{}{}
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	n := 0
	for range wins {
		n++
	}
	if n != 1 {
		t.Fatalf("winners = %d, want exactly 1", n)
	}
}

func TestActionRoundTripAndSave(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveIncident(ctx, sampleIncident("inc-1", "payments")); err != nil {
		t.Fatal(err)
	}
	a := sampleAction("act-1", "inc-1")
	if err := s.ProposeAction(ctx, a); err != nil {
		t.Fatal(err)
	}

	a.Status = models.ActionApproved
	a.AttemptID = 42
	a.PreMetrics = map[string]float64{"error_rate": 0.12}
	a.PostMetrics = map[string]float64{"error_rate": 0.02}
	a.Verification = models.OutcomeSuccess
	if err := s.SaveAction(ctx, a); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetAction(ctx, "act-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.AttemptID != 42 || got.Verification != models.OutcomeSuccess {
		t.Fatalf("got = %+v", got)
	}
	if got.Parameters["replicas"] != "5" {
		t.Fatalf("parameters = %v", got.Parameters)
	}
	if !got.Risk.Reversible {
		t.Fatal("risk profile must round-trip")
	}
}

func TestApproveActionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveIncident(ctx, sampleIncident("inc-1", "payments")); err != nil {
		t.Fatal(err)
	}
	a := sampleAction("act-1", "inc-1")
	if err := s.ProposeAction(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := s.TransitionAction(ctx, "act-1", models.ActionProposed, models.ActionPendingApproval, "blast_radius"); err != nil {
		t.Fatal(err)
	}

	approved, err := s.ApproveAction(ctx, "act-1", "alex", models.ModeLive)
	if err != nil {
		t.Fatal(err)
	}
	if approved.Status != models.ActionApproved || approved.ApprovedBy != "alex" {
		t.Fatalf("approved = %+v", approved)
	}
	if approved.ExecutionMode != models.ModeLive || approved.ApprovedAt == nil {
		t.Fatalf("approved = %+v", approved)
	}

	// An identical repeat is idempotent and changes nothing.
	again, err := s.ApproveAction(ctx, "act-1", "alex", models.ModeLive)
	if err != nil {
		t.Fatalf("identical repeat: %v", err)
	}
	if !again.ApprovedAt.Equal(*approved.ApprovedAt) {
		t.Fatalf("repeat mutated approved_at: %v != %v", again.ApprovedAt, approved.ApprovedAt)
	}

	// A conflicting verdict on the same action is stale.
	if _, err := s.ApproveAction(ctx, "act-1", "sam", models.ModeLive); !errors.Is(err, ErrStaleState) {
		t.Fatalf("err = %v, want ErrStaleState", err)
	}
	if _, err := s.ApproveAction(ctx, "act-1", "alex", models.ModeDryRun); !errors.Is(err, ErrStaleState) {
		t.Fatalf("mode change err = %v, want ErrStaleState", err)
	}
}

func TestRejectActionRecordsReason(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveIncident(ctx, sampleIncident("inc-1", "payments")); err != nil {
		t.Fatal(err)
	}
	a := sampleAction("act-1", "inc-1")
	if err := s.ProposeAction(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := s.TransitionAction(ctx, "act-1", models.ActionProposed, models.ActionPendingApproval, ""); err != nil {
		t.Fatal(err)
	}

	rejected, err := s.RejectAction(ctx, "act-1", "alex", "wrong target")
	if err != nil {
		t.Fatal(err)
	}
	if rejected.Status != models.ActionRejected || rejected.StatusReason != "wrong target" {
		t.Fatalf("rejected = %+v", rejected)
	}
}

func TestApprovalOnTerminalIncidentIsStale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inc := sampleIncident("inc-1", "payments")
	if err := s.SaveIncident(ctx, inc); err != nil {
		t.Fatal(err)
	}
	a := sampleAction("act-1", "inc-1")
	if err := s.ProposeAction(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := s.TransitionAction(ctx, "act-1", models.ActionProposed, models.ActionPendingApproval, ""); err != nil {
		t.Fatal(err)
	}
	if err := s.TransitionIncident(ctx, "inc-1", models.IncidentDetected, models.IncidentEscalated, "sla"); err != nil {
		t.Fatal(err)
	}

	if _, err := s.ApproveAction(ctx, "act-1", "alex", models.ModeLive); !errors.Is(err, ErrStaleState) {
		t.Fatalf("approve err = %v, want ErrStaleState", err)
	}
	if _, err := s.RejectAction(ctx, "act-1", "alex", "late"); !errors.Is(err, ErrStaleState) {
		t.Fatalf("reject err = %v, want ErrStaleState", err)
	}
}

func TestListPendingActions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"inc-1", "inc-2", "inc-3"} {
		inc := sampleIncident(id, "svc-"+id)
		inc.Fingerprint = "fp-" + id
		if err := s.SaveIncident(ctx, inc); err != nil {
			t.Fatal(err)
		}
		a := sampleAction("act-"+id, id)
		a.RequestedAt = a.RequestedAt.Add(time.Duration(i) * time.Minute)
		if err := s.ProposeAction(ctx, a); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.TransitionAction(ctx, "act-inc-1", models.ActionProposed, models.ActionPendingApproval, ""); err != nil {
		t.Fatal(err)
	}
	if err := s.TransitionAction(ctx, "act-inc-3", models.ActionProposed, models.ActionPendingApproval, ""); err != nil {
		t.Fatal(err)
	}

	pending, err := s.ListPendingActions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("len = %d", len(pending))
	}
	if pending[0].ID != "act-inc-1" || pending[1].ID != "act-inc-3" {
		t.Fatalf("order = %s, %s", pending[0].ID, pending[1].ID)
	}
}

func TestTimelineAppendAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveIncident(ctx, sampleIncident("inc-1", "payments")); err != nil {
		t.Fatal(err)
	}
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	for i, stage := range []string{"perception", "correlation", "reasoning"} {
		ev := &models.TimelineEvent{
			IncidentID: "inc-1",
			Stage:      stage,
			EventType:  "stage_complete",
			Timestamp:  base.Add(time.Duration(i) * time.Second),
		}
		if err := s.AppendTimeline(ctx, ev); err != nil {
			t.Fatal(err)
		}
		if ev.ID == 0 {
			t.Fatal("append must assign the event id")
		}
	}

	events, err := s.TimelineFor(ctx, "inc-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("len = %d", len(events))
	}
	for i, want := range []string{"perception", "correlation", "reasoning"} {
		if events[i].Stage != want {
			t.Fatalf("events[%d].Stage = %s, want %s", i, events[i].Stage, want)
		}
	}
}

func TestListIncidentsOrderAndPaging(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"inc-1", "inc-2", "inc-3"} {
		inc := sampleIncident(id, "payments")
		inc.Fingerprint = "fp-" + id
		inc.DetectedAt = base.Add(time.Duration(i) * time.Hour)
		if err := s.SaveIncident(ctx, inc); err != nil {
			t.Fatal(err)
		}
	}

	page, err := s.ListIncidents(ctx, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].ID != "inc-3" || page[1].ID != "inc-2" {
		t.Fatalf("page = %v", ids(page))
	}
	rest, err := s.ListIncidents(ctx, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 1 || rest[0].ID != "inc-1" {
		t.Fatalf("rest = %v", ids(rest))
	}
}

func ids(incs []*models.Incident) []string {
	out := make([]string, len(incs))
	for i, inc := range incs {
		out[i] = inc.ID
	}
	return out
}
