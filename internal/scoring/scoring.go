package scoring

// Package scoring assigns deterministic, auditable confidence to hypotheses.
//
// The reasoning model's own scores are never used: confidence is a pure
// function of the category prior, evidence quality, anomaly strength, and
// the dependency-graph context. All four components are persisted on the
// hypothesis so the arithmetic can be re-checked later.

import (
	"math"
	"sort"
	"sync"

	"github.com/kkrriders/airra/internal/graph"
	"github.com/kkrriders/airra/internal/models"
	"github.com/kkrriders/airra/internal/outcome"
)

// Formula weights.
const (
	weightBase     = 0.40
	weightEvidence = 0.35
	weightAnomaly  = 0.25

	boostDirectUpstream     = 0.15
	boostTransitiveUpstream = 0.08
	penaltyDownstreamOnly   = -0.05

	confidenceMin = 0.01
	confidenceMax = 0.99

	// minOutcomesForOverride is how many executed outcomes a category needs
	// before its measured success rate replaces the default prior.
	minOutcomesForOverride = 50
)

var defaultPriors = map[models.HypothesisCategory]float64{
	models.CategoryMemoryLeak:           0.70,
	models.CategoryCPUSpike:             0.75,
	models.CategoryLatencySpike:         0.70,
	models.CategoryErrorSpike:           0.85,
	models.CategoryDatabaseIssue:        0.65,
	models.CategoryNetworkIssue:         0.60,
	models.CategoryDeploymentRegression: 0.80,
	models.CategoryResourceExhaustion:   0.70,
	models.CategoryDependencyFailure:    0.70,
	models.CategoryOther:                0.50,
}

// Scorer computes hypothesis confidence. Priors start at the defaults and
// may be overridden by the learning store's long-run success rates.
type Scorer struct {
	mu     sync.RWMutex
	priors map[models.HypothesisCategory]float64
}

// NewScorer builds a scorer with the default category priors.
func NewScorer() *Scorer {
	priors := make(map[models.HypothesisCategory]float64, len(defaultPriors))
	for k, v := range defaultPriors {
		priors[k] = v
	}
	return &Scorer{priors: priors}
}

// Prior returns the current prior for a category (0.50 for unknown).
func (s *Scorer) Prior(c models.HypothesisCategory) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.priors[c]; ok {
		return p
	}
	return 0.50
}

// RefreshPriors replaces priors with measured success rates for every
// category that has accumulated enough executed outcomes. Categories below
// the threshold keep their defaults.
func (s *Scorer) RefreshPriors(stats map[models.HypothesisCategory]outcome.CategoryStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for cat, def := range defaultPriors {
		if st, ok := stats[cat]; ok && st.Total >= minOutcomesForOverride {
			s.priors[cat] = st.SuccessRate()
		} else {
			s.priors[cat] = def
		}
	}
}

// Score fills in the hypothesis's confidence and its four persisted
// components. liveServices names every service with a non-terminal incident
// other than this one.
func (s *Scorer) Score(h *models.Hypothesis, inc *models.Incident, liveServices map[string]bool, g *graph.Snapshot) {
	base := s.Prior(h.Category)
	evidence := evidenceQuality(h, inc)
	anomaly := anomalyStrength(supportingSignals(h, inc))
	boost := dependencyBoost(inc.Service, liveServices, g)

	h.BaseConfidence = base
	h.EvidenceQuality = evidence
	h.AnomalyStrength = anomaly
	h.DependencyBoost = boost
	h.Confidence = clip(
		weightBase*base+weightEvidence*evidence+weightAnomaly*anomaly+boost,
		confidenceMin, confidenceMax)
}

// Rank orders hypotheses by confidence descending; ties break by prior,
// then description, and assigns 1-based ranks.
func (s *Scorer) Rank(hyps []*models.Hypothesis) {
	sort.SliceStable(hyps, func(i, j int) bool {
		if hyps[i].Confidence != hyps[j].Confidence {
			return hyps[i].Confidence > hyps[j].Confidence
		}
		pi, pj := s.Prior(hyps[i].Category), s.Prior(hyps[j].Category)
		if pi != pj {
			return pi > pj
		}
		return hyps[i].Description < hyps[j].Description
	})
	for i, h := range hyps {
		h.Rank = i + 1
	}
}

// evidenceQuality blends reference relevance with source and item counts.
func evidenceQuality(h *models.Hypothesis, inc *models.Incident) float64 {
	refs := h.SupportingSignals
	if len(refs) == 0 {
		return 0
	}

	anomalous := make(map[string]bool, len(inc.AffectedComponents)+len(inc.MetricsSnapshot))
	for _, c := range inc.AffectedComponents {
		anomalous[c] = true
	}
	for m := range inc.MetricsSnapshot {
		anomalous[m] = true
	}

	present := 0
	for _, ref := range refs {
		if anomalous[ref] {
			present++
		}
	}
	avgRelevance := float64(present) / float64(len(refs))

	sources := make(map[models.SignalSource]bool)
	for _, sig := range supportingSignals(h, inc) {
		sources[sig.Source] = true
	}

	q := 0.6 * avgRelevance
	q += math.Min(0.15, 0.05*float64(len(sources)))
	q += math.Min(0.10, 0.03*float64(len(refs)))
	return q
}

// anomalyStrength blends per-signal severity confidence with the mean
// absolute z-score. Severity confidence is rank/4 (low 0.25 .. critical 1.0).
func anomalyStrength(signals []models.Signal) float64 {
	if len(signals) == 0 {
		return 0
	}
	var sevSum, zSum float64
	for _, sig := range signals {
		sevSum += float64(sig.Severity().Rank()) / 4.0
		zSum += math.Abs(sig.DeviationSigma)
	}
	n := float64(len(signals))
	return 0.7*(sevSum/n) + 0.3*clip(zSum/n/6.0, 0, 1)
}

// dependencyBoost inspects live incidents on graph neighbors.
func dependencyBoost(service string, liveServices map[string]bool, g *graph.Snapshot) float64 {
	if g == nil || len(liveServices) == 0 {
		return 0
	}
	for _, up := range g.DirectUpstream(service) {
		if liveServices[up] {
			return boostDirectUpstream
		}
	}
	for _, up := range g.TransitiveUpstream(service) {
		if liveServices[up] {
			return boostTransitiveUpstream
		}
	}
	downstreamLive := false
	for _, down := range g.Downstream(service) {
		if liveServices[down] {
			downstreamLive = true
			break
		}
	}
	if downstreamLive {
		return penaltyDownstreamOnly
	}
	return 0
}

// supportingSignals returns the incident signals referenced by the
// hypothesis, matching either the service/metric identifier or the bare
// metric name.
func supportingSignals(h *models.Hypothesis, inc *models.Incident) []models.Signal {
	refs := make(map[string]bool, len(h.SupportingSignals))
	for _, r := range h.SupportingSignals {
		refs[r] = true
	}
	var out []models.Signal
	for _, sig := range inc.Signals {
		if refs[sig.Identifier()] || refs[sig.MetricName] {
			out = append(out, sig)
		}
	}
	return out
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
