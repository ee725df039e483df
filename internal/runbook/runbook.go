package runbook

// Package runbook holds the operator-authored remediation catalog.
//
// Runbooks are the allow-list between hypotheses and actions: an action can
// only be proposed when the matched runbook lists its type. The registry
// publishes immutable snapshots behind an atomic pointer, same as the
// dependency graph, and rejects invalid files at load and on reload.

import (
	"fmt"
	"sort"

	"github.com/kkrriders/airra/internal/models"
)

// AllowedAction is one action a runbook permits for its category.
type AllowedAction struct {
	Type                    models.ActionType `yaml:"action_type" json:"action_type"`
	Description             string            `yaml:"description" json:"description"`
	ApprovalRequired        bool              `yaml:"approval_required" json:"approval_required"`
	RiskLevel               models.RiskLevel  `yaml:"risk_level" json:"risk_level"`
	DefaultParameters       map[string]string `yaml:"default_parameters" json:"default_parameters,omitempty"`
	Prerequisites           []string          `yaml:"prerequisites" json:"prerequisites,omitempty"`
	MaxAutoExecutionsPerDay int               `yaml:"max_auto_executions_per_day" json:"max_auto_executions_per_day"`
}

// Runbook maps a hypothesis category (optionally scoped to one service) to
// its allowed remediations.
type Runbook struct {
	ID                 string                    `yaml:"id" json:"id"`
	Category           models.HypothesisCategory `yaml:"category" json:"category"`
	Service            string                    `yaml:"service" json:"service,omitempty"` // empty = any service
	AllowedActions     []AllowedAction           `yaml:"allowed_actions" json:"allowed_actions"`
	DiagnosticQueries  map[string]string         `yaml:"diagnostic_queries" json:"diagnostic_queries,omitempty"`
	EscalationCriteria []string                  `yaml:"escalation_criteria" json:"escalation_criteria,omitempty"`
}

func validRiskLevel(l models.RiskLevel) bool {
	switch l {
	case models.RiskLow, models.RiskMedium, models.RiskHigh, models.RiskCritical:
		return true
	}
	return false
}

// validate checks one runbook against the closed enums and the defined
// predicate set.
func (r *Runbook) validate() error {
	if r.ID == "" {
		return fmt.Errorf("runbook has no id")
	}
	if !r.Category.Valid() {
		return fmt.Errorf("runbook %q: unknown category %q", r.ID, r.Category)
	}
	if len(r.AllowedActions) == 0 {
		return fmt.Errorf("runbook %q: no allowed actions", r.ID)
	}
	for i, a := range r.AllowedActions {
		if !a.Type.Valid() {
			return fmt.Errorf("runbook %q action %d: unknown action_type %q", r.ID, i, a.Type)
		}
		if !validRiskLevel(a.RiskLevel) {
			return fmt.Errorf("runbook %q action %q: unknown risk_level %q", r.ID, a.Type, a.RiskLevel)
		}
		for _, p := range a.Prerequisites {
			if !PredicateDefined(p) {
				return fmt.Errorf("runbook %q action %q: undefined predicate %q", r.ID, a.Type, p)
			}
		}
		if !a.ApprovalRequired && a.MaxAutoExecutionsPerDay <= 0 {
			return fmt.Errorf("runbook %q action %q: max_auto_executions_per_day must be positive when approval_required is false",
				r.ID, a.Type)
		}
	}
	return nil
}

// Snapshot is an immutable view of the runbook catalog.
type Snapshot struct {
	// byService indexes runbooks scoped to one service: (category, service).
	byService map[catalogKey]*Runbook
	// byCategory indexes catch-all runbooks: (category, any).
	byCategory map[models.HypothesisCategory]*Runbook
	runbooks   []*Runbook
	hash       string
}

type catalogKey struct {
	category models.HypothesisCategory
	service  string
}

// build validates the runbook list and constructs a snapshot. The hash is
// computed by the caller over the raw file bytes, so an unchanged file always
// yields an identical snapshot hash.
func build(list []*Runbook, hash string) (*Snapshot, error) {
	s := &Snapshot{
		byService:  make(map[catalogKey]*Runbook),
		byCategory: make(map[models.HypothesisCategory]*Runbook),
		runbooks:   list,
		hash:       hash,
	}
	seen := make(map[string]bool)
	for _, r := range list {
		if err := r.validate(); err != nil {
			return nil, err
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("duplicate runbook id %q", r.ID)
		}
		seen[r.ID] = true

		if r.Service != "" {
			key := catalogKey{r.Category, r.Service}
			if _, dup := s.byService[key]; dup {
				return nil, fmt.Errorf("two runbooks for category %q service %q", r.Category, r.Service)
			}
			s.byService[key] = r
			continue
		}
		if _, dup := s.byCategory[r.Category]; dup {
			return nil, fmt.Errorf("two catch-all runbooks for category %q", r.Category)
		}
		s.byCategory[r.Category] = r
	}
	return s, nil
}

// Hash is the content hash of the loaded runbooks file.
func (s *Snapshot) Hash() string {
	return s.hash
}

// Lookup resolves the runbook for a category and service: the
// service-specific runbook wins, then the catch-all; ok is false when
// neither exists.
func (s *Snapshot) Lookup(category models.HypothesisCategory, service string) (*Runbook, bool) {
	if r, ok := s.byService[catalogKey{category, service}]; ok {
		return r, true
	}
	r, ok := s.byCategory[category]
	return r, ok
}

// Categories returns the categories that have at least one runbook, sorted.
// This names-only list is what reasoning prompts include.
func (s *Snapshot) Categories() []models.HypothesisCategory {
	set := make(map[models.HypothesisCategory]bool)
	for _, r := range s.runbooks {
		set[r.Category] = true
	}
	out := make([]models.HypothesisCategory, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// All returns every loaded runbook.
func (s *Snapshot) All() []*Runbook {
	return s.runbooks
}

// AllowsInverse reports whether the runbook permits the inverse of the given
// action type, used when deciding whether a DEGRADED outcome can be rolled
// back automatically.
func (r *Runbook) AllowsInverse(t models.ActionType) (AllowedAction, bool) {
	inv, ok := models.InverseOf(t)
	if !ok {
		return AllowedAction{}, false
	}
	for _, a := range r.AllowedActions {
		if a.Type == inv {
			return a, true
		}
	}
	return AllowedAction{}, false
}
