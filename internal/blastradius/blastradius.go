package blastradius

// Package blastradius computes the deterministic impact scope of an
// incident from the dependency graph and live traffic.

import (
	"github.com/kkrriders/airra/internal/graph"
	"github.com/kkrriders/airra/internal/models"
)

// Blend weights and normalization caps for the blast score.
const (
	weightDownstream  = 0.30
	weightVolume      = 0.25
	weightPropagation = 0.25
	weightCriticality = 0.20

	downstreamCap = 10.0  // services
	volumeCap     = 100.0 // QPS

	// revenuePerRequest is a coarse revenue proxy used only for the
	// operator-facing impact estimate; it never drives control flow.
	revenuePerRequest = 0.05
)

var criticalityWeight = map[models.Severity]float64{
	models.SeverityCritical: 1.0,
	models.SeverityHigh:     0.75,
	models.SeverityMedium:   0.5,
	models.SeverityLow:      0.25,
}

var urgencyByLevel = map[models.BlastLevel]float64{
	models.BlastMinimal:  1.0,
	models.BlastLow:      1.5,
	models.BlastMedium:   2.5,
	models.BlastHigh:     3.5,
	models.BlastCritical: 5.0,
}

// CriticalityWeight maps a service criticality to its [0.25,1.0] weight.
func CriticalityWeight(s models.Severity) float64 {
	if w, ok := criticalityWeight[s]; ok {
		return w
	}
	return 0.5
}

// UrgencyFor returns the urgency multiplier for a blast level.
func UrgencyFor(level models.BlastLevel) float64 {
	if u, ok := urgencyByLevel[level]; ok {
		return u
	}
	return 1.0
}

// LevelFor buckets a blast score.
func LevelFor(score float64) models.BlastLevel {
	switch {
	case score < 0.20:
		return models.BlastMinimal
	case score < 0.40:
		return models.BlastLow
	case score < 0.60:
		return models.BlastMedium
	case score < 0.80:
		return models.BlastHigh
	default:
		return models.BlastCritical
	}
}

// Assess computes the blast radius of an incident on service. qps is the
// measured request volume (0 when unavailable) and anomalousServices names
// every service currently showing anomalies, the affected service included
// or not.
func Assess(service string, g *graph.Snapshot, qps float64, anomalousServices map[string]bool) models.BlastRadiusAssessment {
	var downstream []string
	criticality := models.SeverityMedium
	if g != nil {
		downstream = g.Downstream(service)
		criticality = g.Criticality(service)
	}

	propagation := 0.0
	if len(downstream) > 0 {
		hit := 0
		for _, svc := range downstream {
			if anomalousServices[svc] {
				hit++
			}
		}
		propagation = float64(hit) / float64(len(downstream))
	}

	critScore := CriticalityWeight(criticality)
	score := weightDownstream*min(float64(len(downstream))/downstreamCap, 1) +
		weightVolume*min(qps/volumeCap, 1) +
		weightPropagation*propagation +
		weightCriticality*critScore

	level := LevelFor(score)
	return models.BlastRadiusAssessment{
		AffectedServicesCount: len(downstream),
		RequestVolumeQPS:      qps,
		ErrorPropagationRatio: propagation,
		CriticalityScore:      critScore,
		BlastScore:            score,
		Level:                 level,
		UrgencyMultiplier:     UrgencyFor(level),
		// Coarse operator-facing estimates: one minute of affected traffic,
		// and an hour of it priced at the flat revenue proxy.
		EstimatedUsersImpacted: int(qps * 60),
		RevenueImpactPerHour:   qps * 3600 * revenuePerRequest * critScore,
	}
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
