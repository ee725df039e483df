package reasoning

// Package reasoning adapts the external model into ranked raw hypotheses.
//
// Responsibilities:
//   - Build the prompt: incident fields, metrics snapshot, names-only
//     runbook categories, dependency-graph neighborhood
//   - Validate model output against the closed category enum and the
//     incident's own evidence; drop anything else
//   - Fall back to a single `other` hypothesis when the model times out,
//     errors, or returns fewer than two valid hypotheses
//   - Cache responses for 24 hours to absorb retries
//
// The adapter never trusts a confidence value from the model: any such
// field is recorded for audit and otherwise discarded. Scoring is
// deterministic and lives in internal/scoring.

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/kkrriders/airra/internal/backends"
	"github.com/kkrriders/airra/internal/graph"
	"github.com/kkrriders/airra/internal/models"
)

const (
	minHypotheses = 2
	maxHypotheses = 5

	cacheSize = 512
	cacheTTL  = 24 * time.Hour
)

const systemPrompt = `You are a site-reliability analyst. Given one incident, propose between 2 and 5 root-cause hypotheses.
Respond with a single JSON document: {"hypotheses":[{"description":...,"category":...,"evidence_refs":[...],"reasoning":...}]}.
Categories must come from the provided list. Evidence references must name signals or metrics present in the incident. Do not include confidence scores.`

// Generator is the slice of the reasoning client the adapter needs.
type Generator interface {
	Generate(ctx context.Context, req backends.GenerateRequest) (*backends.GenerateResponse, error)
}

// RawHypothesis is one unvalidated model suggestion.
type RawHypothesis struct {
	Description  string   `json:"description"`
	Category     string   `json:"category"`
	EvidenceRefs []string `json:"evidence_refs"`
	Reasoning    string   `json:"reasoning"`
	// Confidence is decoded only so it can be logged as audit metadata; it
	// never participates in scoring.
	Confidence *float64 `json:"confidence,omitempty"`
}

// Result is the adapter's output: raw hypotheses ready for scoring, plus a
// flag set when the degraded fallback produced them.
type Result struct {
	Hypotheses []*models.Hypothesis
	Degraded   bool
}

// Adapter turns incidents into hypothesis candidates.
type Adapter struct {
	client      Generator
	logger      *zap.Logger
	model       string
	temperature float64
	maxTokens   int
	cache       *expirable.LRU[string, []*models.Hypothesis]
}

// NewAdapter builds an adapter around a reasoning client.
func NewAdapter(client Generator, logger *zap.Logger, model string, temperature float64, maxTokens int) *Adapter {
	return &Adapter{
		client:      client,
		logger:      logger,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		cache:       expirable.NewLRU[string, []*models.Hypothesis](cacheSize, nil, cacheTTL),
	}
}

// Generate produces validated hypothesis candidates for an incident. The
// error return is always nil: every failure path degrades to the fallback
// hypothesis so the pipeline keeps moving.
func (a *Adapter) Generate(ctx context.Context, inc *models.Incident, categories []models.HypothesisCategory, nb graph.Neighborhood) Result {
	prompt := a.buildPrompt(inc, categories, nb)
	key := a.cacheKey(prompt)

	if cached, ok := a.cache.Get(key); ok {
		return Result{Hypotheses: cloneHypotheses(cached, inc.ID)}
	}

	resp, err := a.client.Generate(ctx, backends.GenerateRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   prompt,
		Model:        a.model,
		Temperature:  a.temperature,
		MaxTokens:    a.maxTokens,
	})
	if err != nil {
		a.logger.Warn("reasoning backend failed, using fallback hypothesis",
			zap.String("incident_id", inc.ID), zap.Error(err))
		return Result{Hypotheses: []*models.Hypothesis{Fallback(inc)}, Degraded: true}
	}

	hyps, err := a.parseAndValidate(resp.Text, inc)
	if err != nil {
		a.logger.Warn("reasoning output rejected, using fallback hypothesis",
			zap.String("incident_id", inc.ID), zap.Error(err))
		return Result{Hypotheses: []*models.Hypothesis{Fallback(inc)}, Degraded: true}
	}
	if len(hyps) < minHypotheses {
		a.logger.Info("too few valid hypotheses, using fallback",
			zap.String("incident_id", inc.ID), zap.Int("valid", len(hyps)))
		return Result{Hypotheses: []*models.Hypothesis{Fallback(inc)}}
	}

	a.cache.Add(key, hyps)
	return Result{Hypotheses: cloneHypotheses(hyps, inc.ID)}
}

// parseAndValidate decodes the model's JSON document and keeps only
// hypotheses with a known category and evidence present in the incident.
func (a *Adapter) parseAndValidate(text string, inc *models.Incident) ([]*models.Hypothesis, error) {
	var doc struct {
		Hypotheses []RawHypothesis `json:"hypotheses"`
	}
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("model output is not the expected JSON shape: %w", err)
	}
	if len(doc.Hypotheses) < minHypotheses || len(doc.Hypotheses) > maxHypotheses {
		return nil, fmt.Errorf("model returned %d hypotheses, want %d..%d",
			len(doc.Hypotheses), minHypotheses, maxHypotheses)
	}

	known := knownEvidence(inc)
	var out []*models.Hypothesis
	for _, raw := range doc.Hypotheses {
		cat := models.HypothesisCategory(raw.Category)
		if !cat.Valid() {
			a.logger.Debug("dropping hypothesis with unknown category",
				zap.String("category", raw.Category))
			continue
		}
		if raw.Description == "" || len(raw.EvidenceRefs) == 0 {
			continue
		}
		valid := true
		for _, ref := range raw.EvidenceRefs {
			if !known[ref] {
				valid = false
				break
			}
		}
		if !valid {
			a.logger.Debug("dropping hypothesis with unknown evidence",
				zap.String("description", raw.Description))
			continue
		}
		h := &models.Hypothesis{
			IncidentID:        inc.ID,
			Description:       raw.Description,
			Category:          cat,
			SupportingSignals: append([]string{}, raw.EvidenceRefs...),
			Reasoning:         raw.Reasoning,
		}
		if raw.Confidence != nil {
			v := *raw.Confidence
			h.ModelSuggestedScore = &v
		}
		out = append(out, h)
	}
	return out, nil
}

// Fallback builds the single `other` hypothesis from the incident's
// top-deviation signals.
func Fallback(inc *models.Incident) *models.Hypothesis {
	signals := append([]models.Signal{}, inc.Signals...)
	sort.Slice(signals, func(i, j int) bool {
		return math.Abs(signals[i].DeviationSigma) > math.Abs(signals[j].DeviationSigma)
	})
	if len(signals) > 3 {
		signals = signals[:3]
	}
	refs := make([]string, 0, len(signals))
	for _, s := range signals {
		refs = append(refs, s.Identifier())
	}
	return &models.Hypothesis{
		IncidentID:        inc.ID,
		Description:       fmt.Sprintf("Unclassified anomaly on %s", inc.Service),
		Category:          models.CategoryOther,
		SupportingSignals: refs,
		Reasoning:         "Reasoning unavailable; populated from the strongest anomalous signals.",
	}
}

func (a *Adapter) buildPrompt(inc *models.Incident, categories []models.HypothesisCategory, nb graph.Neighborhood) string {
	var b strings.Builder

	b.WriteString("## Incident\n")
	incJSON, _ := json.MarshalIndent(struct {
		Service            string             `json:"service"`
		Severity           models.Severity    `json:"severity"`
		AffectedComponents []string           `json:"affected_components"`
		MetricsSnapshot    map[string]float64 `json:"metrics_snapshot"`
		DuplicateCount     int                `json:"duplicate_count"`
	}{inc.Service, inc.Severity, inc.AffectedComponents, inc.MetricsSnapshot, inc.DuplicateCount}, "", "  ")
	b.Write(incJSON)

	b.WriteString("\n\n## Signals\n")
	for _, s := range inc.Signals {
		fmt.Fprintf(&b, "- %s: value=%.4g baseline=%.4g deviation=%.2fσ source=%s\n",
			s.Identifier(), s.Value, s.Baseline, s.DeviationSigma, s.Source)
	}

	b.WriteString("\n## Known root-cause categories\n")
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, string(c))
	}
	sort.Strings(names)
	b.WriteString(strings.Join(names, ", "))

	b.WriteString("\n\n## Dependency neighborhood\n")
	nbJSON, _ := json.MarshalIndent(nb, "", "  ")
	b.Write(nbJSON)
	b.WriteString("\n")
	return b.String()
}

func (a *Adapter) cacheKey(prompt string) string {
	h := sha256.New()
	h.Write([]byte(prompt))
	h.Write([]byte{0})
	h.Write([]byte(a.model))
	fmt.Fprintf(h, "|%.4f", a.temperature)
	return hex.EncodeToString(h.Sum(nil))
}

func knownEvidence(inc *models.Incident) map[string]bool {
	out := make(map[string]bool, len(inc.AffectedComponents)+len(inc.MetricsSnapshot))
	for _, c := range inc.AffectedComponents {
		out[c] = true
	}
	for m := range inc.MetricsSnapshot {
		out[m] = true
	}
	return out
}

// cloneHypotheses copies cached hypotheses so callers can mutate scores
// without corrupting the cache, rebinding them to the requesting incident.
func cloneHypotheses(in []*models.Hypothesis, incidentID string) []*models.Hypothesis {
	out := make([]*models.Hypothesis, 0, len(in))
	for _, h := range in {
		c := *h
		c.IncidentID = incidentID
		c.SupportingSignals = append([]string{}, h.SupportingSignals...)
		if h.ModelSuggestedScore != nil {
			v := *h.ModelSuggestedScore
			c.ModelSuggestedScore = &v
		}
		out = append(out, &c)
	}
	return out
}
