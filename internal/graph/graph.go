package graph

// Package graph holds the static service dependency graph.
//
// The graph is loaded from YAML, validated (DAG, known references, known
// enum values), and published as an immutable snapshot behind an atomic
// pointer. Readers never observe a half-loaded graph: reload builds a fresh
// snapshot and swaps the pointer only after validation succeeds.

import (
	"fmt"
	"sort"

	"github.com/kkrriders/airra/internal/models"
)

// Tier classifies a service's position in the serving stack.
type Tier string

const (
	Tier0 Tier = "tier-0"
	Tier1 Tier = "tier-1"
	Tier2 Tier = "tier-2"
	Tier3 Tier = "tier-3"
)

func validTier(t Tier) bool {
	switch t {
	case Tier0, Tier1, Tier2, Tier3:
		return true
	}
	return false
}

// ServiceNode is one node of the dependency graph.
type ServiceNode struct {
	Name        string          `yaml:"-"`
	DependsOn   []string        `yaml:"depends_on"`
	Tier        Tier            `yaml:"tier"`
	Team        string          `yaml:"team"`
	Criticality models.Severity `yaml:"criticality"`
}

// Snapshot is an immutable view of the dependency graph.
type Snapshot struct {
	nodes map[string]ServiceNode
	// dependents is the reverse adjacency: service → services that list it
	// in depends_on.
	dependents map[string][]string
}

// Build validates the node set and constructs a snapshot.
// Rejected: unknown service references, unknown enum values, cycles.
func Build(nodes map[string]ServiceNode) (*Snapshot, error) {
	for name, n := range nodes {
		if !validTier(n.Tier) {
			return nil, fmt.Errorf("service %q: unknown tier %q", name, n.Tier)
		}
		if n.Criticality.Rank() == 0 {
			return nil, fmt.Errorf("service %q: unknown criticality %q", name, n.Criticality)
		}
		for _, dep := range n.DependsOn {
			if _, ok := nodes[dep]; !ok {
				return nil, fmt.Errorf("service %q depends on unknown service %q", name, dep)
			}
		}
	}

	if cycle := findCycle(nodes); len(cycle) > 0 {
		return nil, fmt.Errorf("dependency cycle: %v", cycle)
	}

	dependents := make(map[string][]string)
	for name, n := range nodes {
		for _, dep := range n.DependsOn {
			dependents[dep] = append(dependents[dep], name)
		}
	}
	for _, list := range dependents {
		sort.Strings(list)
	}

	return &Snapshot{nodes: nodes, dependents: dependents}, nil
}

// findCycle runs a three-color DFS and returns the first cycle found.
func findCycle(nodes map[string]ServiceNode) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(nodes))

	names := make([]string, 0, len(nodes))
	for name := range nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	var stack []string
	var visit func(string) []string
	visit = func(name string) []string {
		color[name] = gray
		stack = append(stack, name)
		for _, dep := range nodes[name].DependsOn {
			switch color[dep] {
			case gray:
				// Slice the stack from the first occurrence of dep.
				for i, s := range stack {
					if s == dep {
						return append(append([]string{}, stack[i:]...), dep)
					}
				}
				return []string{dep, name, dep}
			case white:
				if c := visit(dep); c != nil {
					return c
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[name] = black
		return nil
	}

	for _, name := range names {
		if color[name] == white {
			if c := visit(name); c != nil {
				return c
			}
		}
	}
	return nil
}

// Node returns the node for a service, if present.
func (s *Snapshot) Node(service string) (ServiceNode, bool) {
	n, ok := s.nodes[service]
	return n, ok
}

// Services returns all service names in sorted order.
func (s *Snapshot) Services() []string {
	out := make([]string, 0, len(s.nodes))
	for name := range s.nodes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DirectUpstream returns the services the given service depends on.
func (s *Snapshot) DirectUpstream(service string) []string {
	n, ok := s.nodes[service]
	if !ok {
		return nil
	}
	out := append([]string{}, n.DependsOn...)
	sort.Strings(out)
	return out
}

// TransitiveUpstream returns every service reachable through depends_on,
// excluding the direct upstreams and the service itself.
func (s *Snapshot) TransitiveUpstream(service string) []string {
	direct := make(map[string]bool)
	for _, d := range s.DirectUpstream(service) {
		direct[d] = true
	}
	all := s.closure(service, func(name string) []string {
		return s.nodes[name].DependsOn
	})
	var out []string
	for _, name := range all {
		if !direct[name] {
			out = append(out, name)
		}
	}
	return out
}

// Downstream returns every service that transitively depends on the given
// service, in sorted order.
func (s *Snapshot) Downstream(service string) []string {
	return s.closure(service, func(name string) []string {
		return s.dependents[name]
	})
}

// closure walks next() edges from service and returns every reached node,
// excluding the start, sorted.
func (s *Snapshot) closure(service string, next func(string) []string) []string {
	seen := map[string]bool{service: true}
	queue := []string{service}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range next(cur) {
			if !seen[n] {
				seen[n] = true
				queue = append(queue, n)
			}
		}
	}
	delete(seen, service)
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Criticality returns the criticality of a service; medium for unknown
// services so that absent graph data neither inflates nor zeroes impact.
func (s *Snapshot) Criticality(service string) models.Severity {
	if n, ok := s.nodes[service]; ok {
		return n.Criticality
	}
	return models.SeverityMedium
}

// Neighborhood describes a service and its immediate graph context, used
// when building reasoning prompts.
type Neighborhood struct {
	Service     string   `json:"service"`
	Upstream    []string `json:"upstream"`
	Downstream  []string `json:"downstream"`
	Tier        Tier     `json:"tier"`
	Criticality string   `json:"criticality"`
}

// NeighborhoodOf returns the immediate neighborhood of a service.
func (s *Snapshot) NeighborhoodOf(service string) Neighborhood {
	nb := Neighborhood{Service: service}
	if n, ok := s.nodes[service]; ok {
		nb.Tier = n.Tier
		nb.Criticality = string(n.Criticality)
	}
	nb.Upstream = s.DirectUpstream(service)
	if deps, ok := s.dependents[service]; ok {
		nb.Downstream = append([]string{}, deps...)
	}
	return nb
}
