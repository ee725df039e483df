package models

import "fmt"

// IncidentStatus is the incident state machine.
//
// DETECTED → ANALYZING → PENDING_APPROVAL → APPROVED → EXECUTING →
// {RESOLVED, ESCALATED, FAILED}, plus any non-terminal → ESCALATED.
// EXECUTING may re-enter PENDING_APPROVAL when a degraded execution
// produces an inverse action that itself needs operator approval.
type IncidentStatus string

const (
	IncidentDetected        IncidentStatus = "DETECTED"
	IncidentAnalyzing       IncidentStatus = "ANALYZING"
	IncidentPendingApproval IncidentStatus = "PENDING_APPROVAL"
	IncidentApproved        IncidentStatus = "APPROVED"
	IncidentExecuting       IncidentStatus = "EXECUTING"
	IncidentResolved        IncidentStatus = "RESOLVED"
	IncidentEscalated       IncidentStatus = "ESCALATED"
	IncidentFailed          IncidentStatus = "FAILED"
)

// Terminal reports whether the status ends the incident lifecycle.
func (s IncidentStatus) Terminal() bool {
	switch s {
	case IncidentResolved, IncidentEscalated, IncidentFailed:
		return true
	}
	return false
}

var incidentTransitions = map[IncidentStatus][]IncidentStatus{
	IncidentDetected:        {IncidentAnalyzing},
	IncidentAnalyzing:       {IncidentPendingApproval, IncidentApproved, IncidentResolved, IncidentFailed},
	IncidentPendingApproval: {IncidentApproved, IncidentFailed},
	IncidentApproved:        {IncidentExecuting, IncidentFailed},
	IncidentExecuting:       {IncidentResolved, IncidentFailed, IncidentPendingApproval},
}

// CanTransition reports whether from → to is a legal incident transition.
// Any non-terminal state may transition to ESCALATED.
func (s IncidentStatus) CanTransition(to IncidentStatus) bool {
	if s.Terminal() {
		return false
	}
	if to == IncidentEscalated {
		return true
	}
	for _, t := range incidentTransitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns a descriptive error naming both states when the
// transition is illegal. State-machine violations fail loudly.
func (s IncidentStatus) ValidateTransition(to IncidentStatus) error {
	if !s.CanTransition(to) {
		return fmt.Errorf("illegal incident transition %s -> %s", s, to)
	}
	return nil
}

// ActionStatus is the action state machine.
//
// PROPOSED → PENDING_APPROVAL → (APPROVED | REJECTED);
// APPROVED → EXECUTING → (SUCCEEDED | FAILED | ROLLED_BACK).
type ActionStatus string

const (
	ActionProposed        ActionStatus = "PROPOSED"
	ActionPendingApproval ActionStatus = "PENDING_APPROVAL"
	ActionApproved        ActionStatus = "APPROVED"
	ActionRejected        ActionStatus = "REJECTED"
	ActionExecuting       ActionStatus = "EXECUTING"
	ActionSucceeded       ActionStatus = "SUCCEEDED"
	ActionFailed          ActionStatus = "FAILED"
	ActionRolledBack      ActionStatus = "ROLLED_BACK"
)

// Terminal reports whether the status ends the action lifecycle.
func (s ActionStatus) Terminal() bool {
	switch s {
	case ActionRejected, ActionSucceeded, ActionFailed, ActionRolledBack:
		return true
	}
	return false
}

var actionTransitions = map[ActionStatus][]ActionStatus{
	ActionProposed:        {ActionPendingApproval, ActionApproved},
	ActionPendingApproval: {ActionApproved, ActionRejected},
	ActionApproved:        {ActionExecuting, ActionFailed},
	ActionExecuting:       {ActionSucceeded, ActionFailed, ActionRolledBack},
}

// CanTransition reports whether from → to is a legal action transition.
func (s ActionStatus) CanTransition(to ActionStatus) bool {
	for _, t := range actionTransitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns a descriptive error naming both states when the
// transition is illegal.
func (s ActionStatus) ValidateTransition(to ActionStatus) error {
	if !s.CanTransition(to) {
		return fmt.Errorf("illegal action transition %s -> %s", s, to)
	}
	return nil
}
