package runbook

import (
	"sort"

	"github.com/kkrriders/airra/internal/graph"
)

// EvalContext carries the inputs a prerequisite predicate may consult:
// the incident's metrics snapshot and the dependency graph.
type EvalContext struct {
	Service string
	Metrics map[string]float64
	Graph   *graph.Snapshot
}

// Predicate is a named prerequisite check. Predicates are defined in code
// only; runbooks reference them by name and a reference to an undefined
// name is rejected at load.
type Predicate func(EvalContext) bool

var predicates = map[string]Predicate{
	// replicas_below_max holds when the current replica count leaves scaling
	// headroom. Defaults open when the metric is absent: scale_up against an
	// unreported replica count is the effector's problem, not selection's.
	"replicas_below_max": func(c EvalContext) bool {
		cur, ok := c.Metrics["replica_count"]
		if !ok {
			return true
		}
		max, ok := c.Metrics["max_replicas"]
		if !ok {
			return true
		}
		return cur < max
	},

	// replicas_above_min holds when scaling down would leave at least one
	// replica serving.
	"replicas_above_min": func(c EvalContext) bool {
		cur, ok := c.Metrics["replica_count"]
		return !ok || cur > 1
	},

	"error_rate_elevated": func(c EvalContext) bool {
		return c.Metrics["error_rate"] > 0.01
	},

	"latency_elevated": func(c EvalContext) bool {
		return c.Metrics["latency_p95"] > 500
	},

	"memory_pressure": func(c EvalContext) bool {
		used, ok := c.Metrics["memory_usage_ratio"]
		if ok {
			return used > 0.80
		}
		return c.Metrics["container_memory_usage_bytes"] > 0
	},

	"cpu_pressure": func(c EvalContext) bool {
		return c.Metrics["cpu_usage_ratio"] > 0.80
	},

	"traffic_present": func(c EvalContext) bool {
		return c.Metrics["request_rate"] > 0
	},

	// not_tier0_service blocks disruptive actions against the lowest-level
	// infrastructure tier.
	"not_tier0_service": func(c EvalContext) bool {
		if c.Graph == nil {
			return false
		}
		n, ok := c.Graph.Node(c.Service)
		if !ok {
			return false
		}
		return n.Tier != graph.Tier0
	},

	// no_downstream_critical holds when nothing transitively depending on the
	// service is marked critical.
	"no_downstream_critical": func(c EvalContext) bool {
		if c.Graph == nil {
			return false
		}
		for _, svc := range c.Graph.Downstream(c.Service) {
			if n, ok := c.Graph.Node(svc); ok && n.Criticality == "critical" {
				return false
			}
		}
		return true
	},
}

// PredicateDefined reports whether a prerequisite name is defined.
func PredicateDefined(name string) bool {
	_, ok := predicates[name]
	return ok
}

// PredicateNames returns every defined predicate name, sorted.
func PredicateNames() []string {
	out := make([]string, 0, len(predicates))
	for name := range predicates {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Evaluate runs the named predicate. Unknown names fail closed: the
// prerequisite is reported unsatisfied.
func Evaluate(name string, ctx EvalContext) bool {
	p, ok := predicates[name]
	if !ok {
		return false
	}
	return p(ctx)
}

// PrerequisitesSatisfied reports whether every prerequisite of an allowed
// action holds under the given context.
func PrerequisitesSatisfied(a AllowedAction, ctx EvalContext) bool {
	for _, name := range a.Prerequisites {
		if !Evaluate(name, ctx) {
			return false
		}
	}
	return true
}
