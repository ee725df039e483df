package pipeline

// Package pipeline orchestrates the closed incident-response loop.
//
// Responsibilities:
//   - Drive the perception sweep and feed signals through dedup and
//     correlation
//   - Admit incident candidates, merging duplicates into live incidents
//   - Run the per-incident stage sequence on a bounded worker pool:
//     reasoning, scoring, blast radius, selection, approval, execution
//   - Enforce per-stage deadlines; a timed-out stage escalates the incident
//   - Sweep pending approvals against the SLA and escalate expired ones
//   - Append a confidence outcome record after every verification
//   - Refresh category priors from the outcome store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kkrriders/airra/internal/approval"
	"github.com/kkrriders/airra/internal/audit"
	"github.com/kkrriders/airra/internal/blastradius"
	"github.com/kkrriders/airra/internal/correlation"
	"github.com/kkrriders/airra/internal/dedup"
	"github.com/kkrriders/airra/internal/execution"
	"github.com/kkrriders/airra/internal/graph"
	"github.com/kkrriders/airra/internal/metrics"
	"github.com/kkrriders/airra/internal/models"
	"github.com/kkrriders/airra/internal/outcome"
	"github.com/kkrriders/airra/internal/perception"
	"github.com/kkrriders/airra/internal/reasoning"
	"github.com/kkrriders/airra/internal/runbook"
	"github.com/kkrriders/airra/internal/scoring"
	"github.com/kkrriders/airra/internal/selection"
	"github.com/kkrriders/airra/internal/store"
)

const (
	slaSweepInterval    = time.Minute
	priorsRefreshPeriod = 10 * time.Minute
)

// Notifier receives state-change events for streaming to operators.
type Notifier interface {
	NotifyIncident(inc *models.Incident)
	NotifyAction(a *models.Action)
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) NotifyIncident(*models.Incident) {}
func (NopNotifier) NotifyAction(*models.Action)     {}

// Deps bundles the pipeline's collaborators.
type Deps struct {
	Logger     *zap.Logger
	Audit      audit.Logger
	Store      store.Store
	Poller     *perception.Poller
	Dedup      *dedup.Table
	Correlator *correlation.Correlator
	Graphs     *graph.Registry
	Runbooks   *runbook.Registry
	Reasoner   *reasoning.Adapter
	Scorer     *scoring.Scorer
	Selector   *selection.Selector
	Gate       *approval.Gate
	Executor   *execution.Executor
	Outcomes   *outcome.Store
	Metrics    execution.MetricsReader
	Notifier   Notifier
}

// Pipeline is the control loop tying every stage together.
type Pipeline struct {
	Deps

	pollInterval time.Duration
	stageTimeout time.Duration
	workers      *errgroup.Group
	nowFn        func() time.Time
}

// New builds a pipeline. workerLimit bounds concurrent incident processing.
func New(d Deps, pollInterval, stageTimeout time.Duration, workerLimit int) *Pipeline {
	if d.Notifier == nil {
		d.Notifier = NopNotifier{}
	}
	workers := &errgroup.Group{}
	if workerLimit > 0 {
		workers.SetLimit(workerLimit)
	}
	return &Pipeline{
		Deps:         d,
		pollInterval: pollInterval,
		stageTimeout: stageTimeout,
		workers:      workers,
		nowFn:        time.Now,
	}
}

// Run starts every loop and blocks until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return p.Graphs.Watch(ctx) })
	g.Go(func() error { return p.Runbooks.Watch(ctx) })
	g.Go(func() error { return p.perceptionLoop(ctx) })
	g.Go(func() error { return p.slaLoop(ctx) })
	g.Go(func() error { return p.priorsLoop(ctx) })

	err := g.Wait()
	_ = p.workers.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// perceptionLoop sweeps the metrics backend and feeds the funnel.
func (p *Pipeline) perceptionLoop(ctx context.Context) error {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.sweepOnce(ctx)
		}
	}
}

// sweepOnce runs one perception pass: observe, dedup, correlate, admit.
func (p *Pipeline) sweepOnce(ctx context.Context) {
	for _, sig := range p.Poller.Sweep(ctx) {
		metrics.SignalsObserved.WithLabelValues(
			sig.Service, sig.MetricName, string(sig.Severity())).Inc()
		admitted := p.Dedup.Admit(sig)
		if admitted == nil {
			metrics.SignalsSuppressed.Inc()
			continue
		}
		p.Correlator.Ingest(*admitted)
	}
	metrics.DedupCompressionRatio.Set(p.Dedup.CompressionRatio())

	for _, cand := range p.Correlator.Evaluate() {
		p.admitIncident(ctx, cand)
	}
}

// admitIncident persists a candidate, folding it into a live incident with
// the same fingerprint when one exists, and dispatches new incidents to the
// worker pool.
func (p *Pipeline) admitIncident(ctx context.Context, cand *models.Incident) {
	cand.Fingerprint = correlation.Fingerprint(cand)

	live, err := p.Store.FindLiveByFingerprint(ctx, cand.Fingerprint)
	switch {
	case err == nil:
		correlation.Merge(live, cand)
		if err := p.Store.SaveIncident(ctx, live); err != nil {
			p.Logger.Error("merge persist failed", zap.String("incident_id", live.ID), zap.Error(err))
			metrics.PipelineErrors.WithLabelValues(string(KindDataIntegrity)).Inc()
			return
		}
		metrics.IncidentsMerged.Inc()
		_ = p.Audit.LogIncidentMerged(ctx, live.ID, live.DuplicateCount)
		p.appendTimeline(ctx, live.ID, "correlation", "incident_merged",
			fmt.Sprintf("duplicate_count=%d severity=%s", live.DuplicateCount, live.Severity))
		p.Notifier.NotifyIncident(live)

		// A merge carries fresh evidence. Re-dispatch incidents that have not
		// advanced past analysis, including ones parked by an observe verdict;
		// the guarded transitions make a concurrent duplicate run a no-op.
		if live.Status == models.IncidentDetected || live.Status == models.IncidentAnalyzing {
			id := live.ID
			p.workers.Go(func() error {
				p.Process(context.WithoutCancel(ctx), id)
				return nil
			})
		}
	case errors.Is(err, store.ErrNotFound):
		if err := p.Store.SaveIncident(ctx, cand); err != nil {
			p.Logger.Error("incident persist failed", zap.String("incident_id", cand.ID), zap.Error(err))
			metrics.PipelineErrors.WithLabelValues(string(KindDataIntegrity)).Inc()
			return
		}
		metrics.IncidentsTotal.WithLabelValues(cand.Service, string(cand.Severity)).Inc()
		_ = p.Audit.LogIncidentDetected(ctx, cand.ID, cand.Service, string(cand.Severity))
		p.appendTimeline(ctx, cand.ID, "correlation", "incident_detected",
			fmt.Sprintf("signals=%d severity=%s", len(cand.Signals), cand.Severity))
		p.Notifier.NotifyIncident(cand)

		id := cand.ID
		p.workers.Go(func() error {
			p.Process(context.WithoutCancel(ctx), id)
			return nil
		})
	default:
		p.Logger.Error("fingerprint lookup failed", zap.Error(err))
		metrics.PipelineErrors.WithLabelValues(string(KindDataIntegrity)).Inc()
	}
}

// stage runs fn under the per-stage deadline and records its duration.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	sctx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	start := p.nowFn()
	err := fn(sctx)
	metrics.PipelineStageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil && errors.Is(sctx.Err(), context.DeadlineExceeded) {
		return stageError(KindStageTimeout, name, err)
	}
	return err
}

// Process runs the stage sequence for one incident. It is safe to call again
// for an incident parked in ANALYZING by an observe verdict.
func (p *Pipeline) Process(ctx context.Context, incidentID string) {
	inc, err := p.Store.GetIncident(ctx, incidentID)
	if err != nil {
		p.Logger.Error("incident load failed", zap.String("incident_id", incidentID), zap.Error(err))
		return
	}

	if inc.Status == models.IncidentDetected {
		if err := p.Store.TransitionIncident(ctx, inc.ID, models.IncidentDetected, models.IncidentAnalyzing, ""); err != nil {
			metrics.PipelineErrors.WithLabelValues(string(KindStaleState)).Inc()
			return
		}
		inc.Status = models.IncidentAnalyzing
	}
	if inc.Status != models.IncidentAnalyzing {
		return
	}

	g := p.Graphs.Get()
	books := p.Runbooks.Get()

	// Reasoning.
	var hyps []*models.Hypothesis
	err = p.stage(ctx, "reasoning", func(sctx context.Context) error {
		res := p.Reasoner.Generate(sctx, inc, books.Categories(), g.NeighborhoodOf(inc.Service))
		hyps = res.Hypotheses
		if res.Degraded {
			inc.ReasoningDegraded = true
			metrics.ReasoningRequests.WithLabelValues("degraded").Inc()
			if err := p.Store.SaveIncident(sctx, inc); err != nil {
				return err
			}
		} else {
			metrics.ReasoningRequests.WithLabelValues("ok").Inc()
		}
		return nil
	})
	if p.failStage(ctx, inc, "reasoning", err) {
		return
	}
	p.appendTimeline(ctx, inc.ID, "reasoning", "hypotheses_generated",
		fmt.Sprintf("count=%d degraded=%t", len(hyps), inc.ReasoningDegraded))

	// Scoring.
	var liveServices map[string]bool
	err = p.stage(ctx, "scoring", func(sctx context.Context) error {
		var lerr error
		liveServices, lerr = p.Store.LiveServices(sctx, inc.ID)
		if lerr != nil {
			return lerr
		}
		for _, h := range hyps {
			p.Scorer.Score(h, inc, liveServices, g)
		}
		p.Scorer.Rank(hyps)
		return p.Store.SaveHypotheses(sctx, inc.ID, hyps)
	})
	if p.failStage(ctx, inc, "scoring", err) {
		return
	}
	p.appendTimeline(ctx, inc.ID, "scoring", "hypotheses_ranked",
		fmt.Sprintf("top_confidence=%.3f", hyps[0].Confidence))

	// Blast radius.
	blast := p.assessBlast(ctx, inc.Service, g, liveServices)
	p.appendTimeline(ctx, inc.ID, "blast_radius", "assessed",
		fmt.Sprintf("level=%s score=%.3f", blast.Level, blast.BlastScore))

	// Selection.
	sel := p.Selector.Select(inc, hyps, books, g, blast)
	switch sel.Outcome {
	case selection.OutcomeEscalate:
		p.escalate(ctx, inc, sel.Reason)
		return
	case selection.OutcomeObserve:
		p.appendTimeline(ctx, inc.ID, "selection", "observing", sel.Reason)
		return
	}

	action := sel.Action
	if err := p.Store.ProposeAction(ctx, action); err != nil {
		if errors.Is(err, store.ErrAlreadyProposed) {
			metrics.PipelineErrors.WithLabelValues(string(KindDuplicate)).Inc()
			return
		}
		p.Logger.Error("propose failed", zap.String("incident_id", inc.ID), zap.Error(err))
		metrics.PipelineErrors.WithLabelValues(string(KindDataIntegrity)).Inc()
		return
	}
	_ = p.Audit.LogActionProposed(ctx, inc.ID, action.ID, string(action.Type), inc.Service)
	p.appendTimeline(ctx, inc.ID, "selection", "action_proposed",
		fmt.Sprintf("action=%s risk=%.2f", action.Type, action.Risk.RiskScore))

	// Approval gate.
	decision := p.Gate.Decide(sel.Allowed, action.Risk, blast.Level)
	metrics.ApprovalDecisions.WithLabelValues(decision.Reason).Inc()
	if decision.RequireOperator {
		action.ApprovalRequired = true
		if err := p.Store.TransitionAction(ctx, action.ID, models.ActionProposed, models.ActionPendingApproval, decision.Reason); err != nil {
			metrics.PipelineErrors.WithLabelValues(string(KindStaleState)).Inc()
			return
		}
		action.Status = models.ActionPendingApproval
		if err := p.Store.TransitionIncident(ctx, inc.ID, models.IncidentAnalyzing, models.IncidentPendingApproval, decision.Reason); err != nil {
			metrics.PipelineErrors.WithLabelValues(string(KindStaleState)).Inc()
			return
		}
		inc.Status = models.IncidentPendingApproval
		p.appendTimeline(ctx, inc.ID, "approval", "pending_operator", decision.Reason)
		p.Notifier.NotifyIncident(inc)
		p.Notifier.NotifyAction(action)
		return
	}

	// Auto-approved.
	now := p.nowFn()
	action.ApprovedAt = &now
	action.ApprovalMode = "auto"
	if err := p.Store.TransitionAction(ctx, action.ID, models.ActionProposed, models.ActionApproved, decision.Reason); err != nil {
		metrics.PipelineErrors.WithLabelValues(string(KindStaleState)).Inc()
		return
	}
	action.Status = models.ActionApproved
	if err := p.Store.SaveAction(ctx, action); err != nil {
		p.Logger.Error("action persist failed", zap.String("action_id", action.ID), zap.Error(err))
	}
	if err := p.Store.TransitionIncident(ctx, inc.ID, models.IncidentAnalyzing, models.IncidentApproved, decision.Reason); err != nil {
		metrics.PipelineErrors.WithLabelValues(string(KindStaleState)).Inc()
		return
	}
	inc.Status = models.IncidentApproved
	p.Gate.RecordAutoExecution(action.Type)
	p.appendTimeline(ctx, inc.ID, "approval", "auto_approved", decision.Reason)

	p.executeAction(ctx, inc, action, sel.Runbook, sel.Hypothesis, sel.Allowed.RiskLevel, blast.Level)
}

// ExecuteApproved resumes an operator-approved action on the worker pool.
func (p *Pipeline) ExecuteApproved(ctx context.Context, actionID string) {
	p.workers.Go(func() error {
		wctx := context.WithoutCancel(ctx)
		action, err := p.Store.GetAction(wctx, actionID)
		if err != nil {
			p.Logger.Error("approved action load failed", zap.String("action_id", actionID), zap.Error(err))
			return nil
		}
		inc, err := p.Store.GetIncident(wctx, action.IncidentID)
		if err != nil {
			p.Logger.Error("incident load failed", zap.String("incident_id", action.IncidentID), zap.Error(err))
			return nil
		}
		if err := p.Store.TransitionIncident(wctx, inc.ID, models.IncidentPendingApproval, models.IncidentApproved, "operator_approved"); err != nil {
			metrics.PipelineErrors.WithLabelValues(string(KindStaleState)).Inc()
			return nil
		}
		inc.Status = models.IncidentApproved

		hyp, riskLevel, book := p.resumeContext(wctx, inc, action)
		blast := p.assessBlast(wctx, inc.Service, p.Graphs.Get(), nil)
		p.executeAction(wctx, inc, action, book, hyp, riskLevel, blast.Level)
		return nil
	})
}

// resumeContext reloads the top hypothesis and the runbook entry for an
// action resuming after operator approval.
func (p *Pipeline) resumeContext(ctx context.Context, inc *models.Incident, action *models.Action) (*models.Hypothesis, models.RiskLevel, *runbook.Runbook) {
	hyps, err := p.Store.HypothesesFor(ctx, inc.ID)
	if err != nil || len(hyps) == 0 {
		return nil, models.RiskMedium, nil
	}
	top := hyps[0]
	book, ok := p.Runbooks.Get().Lookup(top.Category, inc.Service)
	if !ok {
		return top, models.RiskMedium, nil
	}
	for _, a := range book.AllowedActions {
		if a.Type == action.Type {
			return top, a.RiskLevel, book
		}
	}
	return top, models.RiskMedium, book
}

// executeAction invokes the effector, verifies, records the outcome, and
// closes the incident.
func (p *Pipeline) executeAction(ctx context.Context, inc *models.Incident, action *models.Action, book *runbook.Runbook, hyp *models.Hypothesis, riskLevel models.RiskLevel, blastLevel models.BlastLevel) {
	if err := p.Store.TransitionIncident(ctx, inc.ID, models.IncidentApproved, models.IncidentExecuting, ""); err != nil {
		metrics.PipelineErrors.WithLabelValues(string(KindStaleState)).Inc()
		return
	}
	inc.Status = models.IncidentExecuting

	start := p.nowFn()
	res, runErr := p.Executor.Run(ctx, action, inc.Service)
	if err := p.Store.SaveAction(ctx, action); err != nil {
		p.Logger.Error("action persist failed", zap.String("action_id", action.ID), zap.Error(err))
	}
	metrics.ActionDuration.WithLabelValues(string(action.Type)).Observe(time.Since(start).Seconds())
	metrics.ActionsExecuted.WithLabelValues(
		string(action.Type), string(action.ExecutionMode), string(action.Verification)).Inc()
	_ = p.Audit.LogActionExecuted(ctx, inc.ID, action.ID, string(action.Verification), time.Since(start))
	p.appendTimeline(ctx, inc.ID, "execution", "action_executed",
		fmt.Sprintf("action=%s mode=%s outcome=%s", action.Type, action.ExecutionMode, action.Verification))
	p.Notifier.NotifyAction(action)

	p.recordOutcome(inc, action, hyp, res, runErr == nil, riskLevel, blastLevel)

	if runErr != nil {
		metrics.PipelineErrors.WithLabelValues(string(KindExternalUnavailable)).Inc()
		p.escalateFrom(ctx, inc, models.IncidentExecuting, "effector_failure: "+runErr.Error())
		return
	}

	switch action.Status {
	case models.ActionSucceeded:
		if err := p.Store.TransitionIncident(ctx, inc.ID, models.IncidentExecuting, models.IncidentResolved, string(action.Verification)); err == nil {
			inc.Status = models.IncidentResolved
			_ = p.Audit.LogIncidentResolved(ctx, inc.ID, time.Since(inc.DetectedAt))
			p.appendTimeline(ctx, inc.ID, "verification", "incident_resolved", string(action.Verification))
		}
	case models.ActionRolledBack:
		if p.enqueueInverse(ctx, inc, action, book, blastLevel) == inversePending {
			if err := p.Store.TransitionIncident(ctx, inc.ID, models.IncidentExecuting, models.IncidentPendingApproval, "rollback_pending_approval"); err == nil {
				inc.Status = models.IncidentPendingApproval
				p.appendTimeline(ctx, inc.ID, "approval", "pending_operator", "rollback_pending_approval")
			}
		} else if err := p.Store.TransitionIncident(ctx, inc.ID, models.IncidentExecuting, models.IncidentFailed, "degraded_rolled_back"); err == nil {
			inc.Status = models.IncidentFailed
			p.appendTimeline(ctx, inc.ID, "verification", "incident_failed", "degraded_rolled_back")
		}
	default:
		if res != nil && res.Recommendation == execution.RecommendEscalate {
			p.escalateFrom(ctx, inc, models.IncidentExecuting, "verification_"+string(action.Verification))
		} else {
			if err := p.Store.TransitionIncident(ctx, inc.ID, models.IncidentExecuting, models.IncidentFailed, string(action.Verification)); err == nil {
				inc.Status = models.IncidentFailed
				p.appendTimeline(ctx, inc.ID, "verification", "incident_failed", string(action.Verification))
			}
		}
	}
	p.Notifier.NotifyIncident(inc)
}

// inverseDisposition reports how enqueueInverse left the inverse action.
type inverseDisposition int

const (
	inverseNone inverseDisposition = iota
	inverseExecuted
	inversePending
)

// enqueueInverse proposes the inverse action when the runbook allows it and
// routes it through the approval gate: runbook policy, blast radius, and the
// auto-execution budget bind the inverse the same way they bind a primary
// action. The degraded action is already terminal, so the open-action
// uniqueness guard admits the inverse.
func (p *Pipeline) enqueueInverse(ctx context.Context, inc *models.Incident, failed *models.Action, book *runbook.Runbook, blastLevel models.BlastLevel) inverseDisposition {
	if book == nil {
		return inverseNone
	}
	allowed, ok := book.AllowsInverse(failed.Type)
	if !ok {
		return inverseNone
	}
	profile, ok := models.RiskProfileFor(allowed.Type)
	if !ok {
		return inverseNone
	}
	now := p.nowFn()
	inv := &models.Action{
		ID:            uuid.NewString(),
		IncidentID:    inc.ID,
		Type:          allowed.Type,
		Parameters:    failed.Parameters,
		Risk:          profile,
		Status:        models.ActionProposed,
		StatusReason:  "inverse_of:" + failed.ID,
		RequestedAt:   now,
		ExecutionMode: failed.ExecutionMode,
	}
	if err := p.Store.ProposeAction(ctx, inv); err != nil {
		p.Logger.Error("inverse propose failed", zap.String("incident_id", inc.ID), zap.Error(err))
		return inverseNone
	}
	_ = p.Audit.LogActionProposed(ctx, inc.ID, inv.ID, string(inv.Type), inc.Service)

	decision := p.Gate.Decide(allowed, profile, blastLevel)
	metrics.ApprovalDecisions.WithLabelValues(decision.Reason).Inc()
	if decision.RequireOperator {
		inv.ApprovalRequired = true
		if err := p.Store.TransitionAction(ctx, inv.ID, models.ActionProposed, models.ActionPendingApproval, decision.Reason); err != nil {
			metrics.PipelineErrors.WithLabelValues(string(KindStaleState)).Inc()
			return inverseNone
		}
		inv.Status = models.ActionPendingApproval
		p.appendTimeline(ctx, inc.ID, "approval", "inverse_pending_approval", decision.Reason)
		p.Notifier.NotifyAction(inv)
		return inversePending
	}

	inv.ApprovedAt = &now
	inv.ApprovalMode = "auto"
	if err := p.Store.TransitionAction(ctx, inv.ID, models.ActionProposed, models.ActionApproved, decision.Reason); err != nil {
		metrics.PipelineErrors.WithLabelValues(string(KindStaleState)).Inc()
		return inverseNone
	}
	inv.Status = models.ActionApproved
	p.Gate.RecordAutoExecution(inv.Type)
	if _, err := p.Executor.Run(ctx, inv, inc.Service); err != nil {
		p.Logger.Error("inverse execution failed", zap.String("action_id", inv.ID), zap.Error(err))
	}
	if err := p.Store.SaveAction(ctx, inv); err != nil {
		p.Logger.Error("inverse persist failed", zap.String("action_id", inv.ID), zap.Error(err))
	}
	p.appendTimeline(ctx, inc.ID, "execution", "inverse_executed",
		fmt.Sprintf("action=%s outcome=%s", inv.Type, inv.Verification))
	p.Notifier.NotifyAction(inv)
	return inverseExecuted
}

// recordOutcome appends the confidence outcome record for this execution.
func (p *Pipeline) recordOutcome(inc *models.Incident, action *models.Action, hyp *models.Hypothesis, res *execution.VerificationResult, executed bool, riskLevel models.RiskLevel, blastLevel models.BlastLevel) {
	now := p.nowFn()
	rec := models.ConfidenceOutcomeRecord{
		IncidentID:        inc.ID,
		Service:           inc.Service,
		ActionType:        action.Type,
		Executed:          executed,
		Outcome:           action.Verification,
		TimeToResolutionS: int64(now.Sub(inc.DetectedAt).Seconds()),
		BlastLevel:        blastLevel,
		RiskLevel:         riskLevel,
		RecordedAt:        now,
	}
	if hyp != nil {
		rec.Category = hyp.Category
		rec.PredictedConfidence = hyp.Confidence
	}
	if res != nil {
		rec.MetricDeltas = res.Deltas
	}
	if err := p.Outcomes.Append(rec); err != nil {
		p.Logger.Error("outcome append failed", zap.String("incident_id", inc.ID), zap.Error(err))
		metrics.PipelineErrors.WithLabelValues(string(KindDataIntegrity)).Inc()
	}
}

// assessBlast computes the incident's blast radius from the live request
// rate and the dependency graph.
func (p *Pipeline) assessBlast(ctx context.Context, service string, g *graph.Snapshot, anomalous map[string]bool) models.BlastRadiusAssessment {
	qps, ok, err := p.Metrics.LatestValue(ctx, fmt.Sprintf("request_rate{service=%q}", service))
	if err != nil || !ok {
		qps = 0
	}
	return blastradius.Assess(service, g, qps, anomalous)
}

// failStage escalates the incident when a stage errored. Returns true when
// processing must stop.
func (p *Pipeline) failStage(ctx context.Context, inc *models.Incident, name string, err error) bool {
	if err == nil {
		return false
	}
	var perr *Error
	kind := KindExternalUnavailable
	reason := name + "_failure"
	if errors.As(err, &perr) && perr.Kind == KindStageTimeout {
		kind = KindStageTimeout
		reason = "stage_timeout:" + name
	}
	p.Logger.Error("stage failed",
		zap.String("incident_id", inc.ID), zap.String("stage", name), zap.Error(err))
	metrics.PipelineErrors.WithLabelValues(string(kind)).Inc()
	p.escalate(ctx, inc, reason)
	return true
}

// escalate moves the incident to ESCALATED from its current status.
func (p *Pipeline) escalate(ctx context.Context, inc *models.Incident, reason string) {
	p.escalateFrom(ctx, inc, inc.Status, reason)
}

func (p *Pipeline) escalateFrom(ctx context.Context, inc *models.Incident, from models.IncidentStatus, reason string) {
	if err := p.Store.TransitionIncident(ctx, inc.ID, from, models.IncidentEscalated, reason); err != nil {
		metrics.PipelineErrors.WithLabelValues(string(KindStaleState)).Inc()
		return
	}
	inc.Status = models.IncidentEscalated
	_ = p.Audit.LogIncidentEscalated(ctx, inc.ID, reason)
	p.appendTimeline(ctx, inc.ID, "escalation", "incident_escalated", reason)
	p.Notifier.NotifyIncident(inc)
}

// slaLoop escalates approvals that outlived the SLA.
func (p *Pipeline) slaLoop(ctx context.Context) error {
	ticker := time.NewTicker(slaSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.SweepSLA(ctx)
		}
	}
}

// SweepSLA rejects every pending approval past the SLA and escalates its
// incident with reason approval_timeout.
func (p *Pipeline) SweepSLA(ctx context.Context) {
	pending, err := p.Store.ListPendingActions(ctx)
	if err != nil {
		p.Logger.Error("pending action sweep failed", zap.Error(err))
		return
	}
	now := p.nowFn()
	remaining := 0
	for _, a := range pending {
		if !p.Gate.SLAExpired(a.RequestedAt, now) {
			remaining++
			continue
		}
		if err := p.Store.TransitionAction(ctx, a.ID, models.ActionPendingApproval, models.ActionRejected, "approval_timeout"); err != nil {
			continue
		}
		metrics.ApprovalSLAExpired.Inc()
		metrics.PipelineErrors.WithLabelValues(string(KindApprovalTimeout)).Inc()
		if err := p.Store.TransitionIncident(ctx, a.IncidentID, models.IncidentPendingApproval, models.IncidentEscalated, "approval_timeout"); err == nil {
			_ = p.Audit.LogIncidentEscalated(ctx, a.IncidentID, "approval_timeout")
			p.appendTimeline(ctx, a.IncidentID, "approval", "sla_expired",
				fmt.Sprintf("action=%s requested_at=%s", a.ID, a.RequestedAt.UTC().Format(time.RFC3339)))
		}
	}
	metrics.PendingApprovals.Set(float64(remaining))
}

// priorsLoop refreshes category priors from executed outcomes.
func (p *Pipeline) priorsLoop(ctx context.Context) error {
	ticker := time.NewTicker(priorsRefreshPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.RefreshPriors()
		}
	}
}

// RefreshPriors recomputes category priors from the outcome store.
func (p *Pipeline) RefreshPriors() {
	stats, err := p.Outcomes.CategorySuccessRates()
	if err != nil {
		p.Logger.Error("priors refresh failed", zap.Error(err))
		return
	}
	p.Scorer.RefreshPriors(stats)
}

func (p *Pipeline) appendTimeline(ctx context.Context, incidentID, stage, eventType, detail string) {
	ev := &models.TimelineEvent{
		IncidentID: incidentID,
		Stage:      stage,
		EventType:  eventType,
		Detail:     detail,
		Timestamp:  p.nowFn(),
	}
	if err := p.Store.AppendTimeline(ctx, ev); err != nil {
		p.Logger.Error("timeline append failed",
			zap.String("incident_id", incidentID), zap.Error(err))
	}
}
