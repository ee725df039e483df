package store

// Package store persists incidents, hypotheses, actions, approvals, and
// timeline events in SQLite.
//
// Responsibilities:
//   - Versioned, in-code schema migrations
//   - Serialized status transitions per incident/action via guarded updates
//   - A uniqueness guarantee that at most one open action exists per
//     incident (the loser of a race observes ErrAlreadyProposed)

import (
	"context"
	"errors"

	"github.com/kkrriders/airra/internal/models"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStaleState is returned when a guarded transition loses to a
	// concurrent writer or targets a terminal record.
	ErrStaleState = errors.New("stale_state")
	// ErrAlreadyProposed is returned when another worker already attached an
	// open action to the incident.
	ErrAlreadyProposed = errors.New("already_proposed")
)

// Store is the persistence interface for the control plane.
type Store interface {
	Close() error
	Ping(ctx context.Context) error

	// Incidents.
	SaveIncident(ctx context.Context, inc *models.Incident) error
	GetIncident(ctx context.Context, id string) (*models.Incident, error)
	ListIncidents(ctx context.Context, limit, offset int) ([]*models.Incident, error)
	FindLiveByFingerprint(ctx context.Context, fingerprint string) (*models.Incident, error)
	// TransitionIncident performs from → to only if the row still holds
	// from; losing the race or requesting an illegal transition errors.
	TransitionIncident(ctx context.Context, id string, from, to models.IncidentStatus, reason string) error
	// LiveServices returns every service with a non-terminal incident,
	// excluding the named incident.
	LiveServices(ctx context.Context, excludeIncidentID string) (map[string]bool, error)

	// Hypotheses.
	SaveHypotheses(ctx context.Context, incidentID string, hyps []*models.Hypothesis) error
	HypothesesFor(ctx context.Context, incidentID string) ([]*models.Hypothesis, error)

	// Actions.
	ProposeAction(ctx context.Context, action *models.Action) error
	SaveAction(ctx context.Context, action *models.Action) error
	GetAction(ctx context.Context, id string) (*models.Action, error)
	ActionsFor(ctx context.Context, incidentID string) ([]*models.Action, error)
	ListPendingActions(ctx context.Context) ([]*models.Action, error)
	TransitionAction(ctx context.Context, id string, from, to models.ActionStatus, reason string) error
	// ApproveAction and RejectAction are the only two external inputs the
	// approval gate accepts. Both reject terminal incidents with
	// ErrStaleState.
	ApproveAction(ctx context.Context, actionID, by string, mode models.ExecutionMode) (*models.Action, error)
	RejectAction(ctx context.Context, actionID, by, reason string) (*models.Action, error)

	// Timeline.
	AppendTimeline(ctx context.Context, ev *models.TimelineEvent) error
	TimelineFor(ctx context.Context, incidentID string) ([]*models.TimelineEvent, error)
}
