package execution

import (
	"math"

	"github.com/kkrriders/airra/internal/models"
)

// Recommendation is the operator guidance attached to a verification.
type Recommendation string

const (
	RecommendMonitor  Recommendation = "monitor"
	RecommendContinue Recommendation = "continue"
	RecommendEscalate Recommendation = "escalate"
	RecommendRollback Recommendation = "rollback"
)

// VerificationResult is the classified effect of one action.
type VerificationResult struct {
	Outcome            models.VerificationOutcome
	OverallImprovement float64
	PerMetric          map[string]float64
	Deltas             map[string]float64
	Recommendation     Recommendation
}

// Classify computes per-metric improvements between pre and the final
// sample, checks the sub-window stability, and maps the overall mean onto
// the outcome enum.
func Classify(pre map[string]float64, samples []map[string]float64, improvementThreshold, unstableThreshold float64) *VerificationResult {
	post := samples[len(samples)-1]

	perMetric := make(map[string]float64)
	deltas := make(map[string]float64)
	var sum float64
	n := 0
	for metric, before := range pre {
		after, ok := post[metric]
		if !ok || before == 0 {
			continue
		}
		var imp float64
		if lowerIsBetter[metric] {
			imp = (before - after) / before
		} else {
			imp = (after - before) / before
		}
		perMetric[metric] = imp
		deltas[metric] = after - before
		sum += imp
		n++
	}

	result := &VerificationResult{PerMetric: perMetric, Deltas: deltas}
	if n > 0 {
		result.OverallImprovement = sum / float64(n)
	}

	if unstable(samples, unstableThreshold) {
		result.Outcome = models.OutcomeUnstable
		result.Recommendation = RecommendEscalate
		return result
	}

	overall := result.OverallImprovement
	switch {
	case overall >= improvementThreshold:
		result.Outcome = models.OutcomeSuccess
		result.Recommendation = RecommendMonitor
	case overall >= 0.10:
		result.Outcome = models.OutcomePartialSuccess
		result.Recommendation = RecommendContinue
	case overall > -0.05:
		result.Outcome = models.OutcomeNoChange
		result.Recommendation = RecommendEscalate
	default:
		result.Outcome = models.OutcomeDegraded
		result.Recommendation = RecommendRollback
	}
	return result
}

// unstable reports whether any metric's relative stddev across the
// sub-window samples exceeds the threshold.
func unstable(samples []map[string]float64, threshold float64) bool {
	if len(samples) < 2 {
		return false
	}
	metrics := make(map[string]bool)
	for _, s := range samples {
		for m := range s {
			metrics[m] = true
		}
	}
	for m := range metrics {
		var vals []float64
		for _, s := range samples {
			if v, ok := s[m]; ok {
				vals = append(vals, v)
			}
		}
		if len(vals) < len(samples) {
			continue
		}
		var sum float64
		for _, v := range vals {
			sum += v
		}
		mean := sum / float64(len(vals))
		if mean == 0 {
			continue
		}
		var sq float64
		for _, v := range vals {
			d := v - mean
			sq += d * d
		}
		rel := math.Sqrt(sq/float64(len(vals))) / math.Abs(mean)
		if rel > threshold {
			return true
		}
	}
	return false
}
