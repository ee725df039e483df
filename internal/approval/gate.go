package approval

import (
	"time"

	"github.com/kkrriders/airra/internal/models"
	"github.com/kkrriders/airra/internal/runbook"
)

// rateLimitApproachRatio is the fraction of the daily limit at which
// auto-execution yields to operator approval.
const rateLimitApproachRatio = 0.8

// Decision is the gate's verdict for one selected action.
type Decision struct {
	RequireOperator bool
	Reason          string
}

// Gate applies the ordered approval rules.
type Gate struct {
	counters *Counters
	sla      time.Duration
}

// NewGate builds a gate over the daily counters with the approval SLA.
func NewGate(counters *Counters, sla time.Duration) *Gate {
	return &Gate{counters: counters, sla: sla}
}

// Decide evaluates the rules in order; the first match wins.
func (g *Gate) Decide(allowed runbook.AllowedAction, profile models.RiskProfile, blast models.BlastLevel) Decision {
	if allowed.ApprovalRequired {
		return Decision{RequireOperator: true, Reason: "runbook_policy"}
	}
	if blast == models.BlastHigh || blast == models.BlastCritical {
		return Decision{RequireOperator: true, Reason: "blast_radius"}
	}
	if !profile.Reversible {
		return Decision{RequireOperator: true, Reason: "irreversible"}
	}
	if g.counters.Degraded() {
		return Decision{RequireOperator: true, Reason: "rate_limited_approaching"}
	}
	if allowed.MaxAutoExecutionsPerDay > 0 {
		used := g.counters.Count(allowed.Type)
		if float64(used) >= rateLimitApproachRatio*float64(allowed.MaxAutoExecutionsPerDay) {
			return Decision{RequireOperator: true, Reason: "rate_limited_approaching"}
		}
	}
	return Decision{Reason: "auto"}
}

// RecordAutoExecution counts an auto-approved execution against the daily
// limit.
func (g *Gate) RecordAutoExecution(t models.ActionType) {
	g.counters.Increment(t)
}

// SLAExpired reports whether an action has waited past the approval SLA.
func (g *Gate) SLAExpired(requestedAt, now time.Time) bool {
	return now.Sub(requestedAt) > g.sla
}
