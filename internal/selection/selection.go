package selection

// Package selection turns a scored hypothesis into a concrete proposed
// action, constrained by the runbook catalog, the dependency graph, and
// the daily rate limits.

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kkrriders/airra/internal/approval"
	"github.com/kkrriders/airra/internal/blastradius"
	"github.com/kkrriders/airra/internal/graph"
	"github.com/kkrriders/airra/internal/models"
	"github.com/kkrriders/airra/internal/runbook"
)

// urgencyRiskDiscount lowers adjusted risk as urgency grows: a burning
// incident justifies slightly riskier remediation.
const urgencyRiskDiscount = 0.05

// Outcome classifies the selector's verdict.
type Outcome string

const (
	// OutcomeProceed means the action should move to the approval gate.
	OutcomeProceed Outcome = "proceed"
	// OutcomeObserve means confidence is too low for this blast level; the
	// incident stays open and the action is recorded but not advanced.
	OutcomeObserve Outcome = "observe"
	// OutcomeEscalate hands the incident to operators with a reason.
	OutcomeEscalate Outcome = "escalate"
)

// Result is the selector's full verdict.
type Result struct {
	Outcome    Outcome
	Reason     string
	Hypothesis *models.Hypothesis
	Action     *models.Action
	Allowed    runbook.AllowedAction
	Runbook    *runbook.Runbook
}

// Selector picks the lowest-risk allowed action for an incident.
type Selector struct {
	confidenceFloor float64
	counters        *approval.Counters
	nowFn           func() time.Time
}

// NewSelector builds a selector over the shared daily counters.
func NewSelector(confidenceFloor float64, counters *approval.Counters) *Selector {
	return &Selector{
		confidenceFloor: confidenceFloor,
		counters:        counters,
		nowFn:           time.Now,
	}
}

type candidate struct {
	allowed      runbook.AllowedAction
	profile      models.RiskProfile
	adjustedRisk float64
}

// Select applies the selection procedure to ranked hypotheses. hyps must be
// sorted best-first; blast is the incident's computed blast radius.
func (s *Selector) Select(inc *models.Incident, hyps []*models.Hypothesis, rb *runbook.Snapshot, g *graph.Snapshot, blast models.BlastRadiusAssessment) Result {
	var top *models.Hypothesis
	for _, h := range hyps {
		if h.Confidence >= s.confidenceFloor {
			top = h
			break
		}
	}
	if top == nil {
		return Result{Outcome: OutcomeEscalate, Reason: "confidence_floor"}
	}

	book, ok := rb.Lookup(top.Category, inc.Service)
	if !ok {
		return Result{Outcome: OutcomeEscalate, Reason: "no_runbook", Hypothesis: top}
	}

	critWeight := 0.5
	if g != nil {
		critWeight = blastradius.CriticalityWeight(g.Criticality(inc.Service))
	}

	evalCtx := runbook.EvalContext{
		Service: inc.Service,
		Metrics: inc.MetricsSnapshot,
		Graph:   g,
	}

	var candidates []candidate
	for _, a := range book.AllowedActions {
		if !runbook.PrerequisitesSatisfied(a, evalCtx) {
			continue
		}
		profile, ok := models.RiskProfileFor(a.Type)
		if !ok {
			continue
		}
		risk := profile.RiskScore*critWeight - (blast.UrgencyMultiplier-1)*urgencyRiskDiscount
		candidates = append(candidates, candidate{
			allowed:      a,
			profile:      profile,
			adjustedRisk: clip01(risk),
		})
	}
	if len(candidates) == 0 {
		return Result{Outcome: OutcomeEscalate, Reason: "no_satisfiable_action", Hypothesis: top, Runbook: book}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if ci.adjustedRisk != cj.adjustedRisk {
			return ci.adjustedRisk < cj.adjustedRisk
		}
		if ci.profile.Reversible != cj.profile.Reversible {
			return ci.profile.Reversible
		}
		if ci.profile.ExpectedDowntimeS != cj.profile.ExpectedDowntimeS {
			return ci.profile.ExpectedDowntimeS < cj.profile.ExpectedDowntimeS
		}
		return worstCaseCost(ci.profile, blast) < worstCaseCost(cj.profile, blast)
	})

	var chosen *candidate
	for i := range candidates {
		c := &candidates[i]
		if !c.allowed.ApprovalRequired &&
			s.counters.Count(c.allowed.Type) >= c.allowed.MaxAutoExecutionsPerDay {
			continue
		}
		chosen = c
		break
	}
	if chosen == nil {
		return Result{Outcome: OutcomeEscalate, Reason: "rate_limited", Hypothesis: top, Runbook: book}
	}

	action := s.buildAction(inc, top, chosen, blast)
	res := Result{
		Hypothesis: top,
		Action:     action,
		Allowed:    chosen.allowed,
		Runbook:    book,
	}
	if shouldAct(blast.Level, top.Confidence) {
		res.Outcome = OutcomeProceed
		res.Reason = "decision_matrix"
	} else {
		res.Outcome = OutcomeObserve
		res.Reason = "confidence_below_matrix"
	}
	return res
}

// shouldAct is the blast/confidence decision matrix.
func shouldAct(level models.BlastLevel, confidence float64) bool {
	switch level {
	case models.BlastCritical:
		return true
	case models.BlastHigh:
		return confidence >= 0.70
	case models.BlastMedium:
		return confidence >= 0.80
	default: // LOW, MINIMAL
		return confidence >= 0.90
	}
}

func (s *Selector) buildAction(inc *models.Incident, h *models.Hypothesis, c *candidate, blast models.BlastRadiusAssessment) *models.Action {
	params := make(map[string]string, len(c.allowed.DefaultParameters)+1)
	for k, v := range c.allowed.DefaultParameters {
		params[k] = v
	}
	params["service"] = inc.Service

	return &models.Action{
		ID:             uuid.NewString(),
		IncidentID:     inc.ID,
		HypothesisRank: h.Rank,
		Type:           c.allowed.Type,
		Parameters:     params,
		Risk:           c.profile,
		Status:         models.ActionProposed,
		RequestedAt:    s.nowFn(),
		ExpectedCost:   expectedCost(c.profile, blast),
		WorstCaseCost:  worstCaseCost(c.profile, blast),
	}
}

func expectedCost(p models.RiskProfile, blast models.BlastRadiusAssessment) float64 {
	return float64(p.ExpectedDowntimeS) / 60.0 * p.CostPerMinute * blast.UrgencyMultiplier
}

func worstCaseCost(p models.RiskProfile, blast models.BlastRadiusAssessment) float64 {
	return float64(p.WorstCaseDowntimeS) / 60.0 * p.CostPerMinute * blast.UrgencyMultiplier
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
