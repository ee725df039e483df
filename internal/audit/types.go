package audit

import "time"

// EventType represents the type of audit event
type EventType string

const (
	// Incident events
	EventIncidentDetected  EventType = "incident.detected"
	EventIncidentMerged    EventType = "incident.merged"
	EventIncidentResolved  EventType = "incident.resolved"
	EventIncidentEscalated EventType = "incident.escalated"
	EventIncidentFailed    EventType = "incident.failed"

	// Action events
	EventActionProposed   EventType = "action.proposed"
	EventActionApproved   EventType = "action.approved"
	EventActionRejected   EventType = "action.rejected"
	EventActionExecuted   EventType = "action.executed"
	EventActionRolledBack EventType = "action.rolled_back"
	EventActionFailed     EventType = "action.failed"

	// Configuration events
	EventConfigLoaded    EventType = "config.loaded"
	EventGraphReloaded   EventType = "config.graph_reloaded"
	EventRunbookReloaded EventType = "config.runbooks_reloaded"

	// System events
	EventServerStarted  EventType = "system.server_started"
	EventServerShutdown EventType = "system.server_shutdown"
)

// Result represents the outcome of an audited action
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultPending Result = "pending"
	ResultDenied  Result = "denied"
)

// Event represents a single audit event
type Event struct {
	// Core fields
	Timestamp  time.Time `json:"timestamp"`
	IncidentID string    `json:"incident_id,omitempty"`
	EventType  EventType `json:"event_type"`
	Result     Result    `json:"result"`

	// Actor information
	Operator string `json:"operator,omitempty"`
	SourceIP string `json:"source_ip,omitempty"`

	// Target information
	Service  string `json:"service,omitempty"`
	ActionID string `json:"action_id,omitempty"`

	// Event details
	Action      string                 `json:"action,omitempty"`
	Description string                 `json:"description,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`

	// Error information
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`

	// Duration tracking
	DurationMs int64 `json:"duration_ms,omitempty"`
}

// NewEvent creates a new audit event with default values
func NewEvent(eventType EventType) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Result:    ResultPending,
		Metadata:  make(map[string]interface{}),
	}
}

// WithIncident sets the incident the event belongs to
func (e *Event) WithIncident(id string) *Event {
	e.IncidentID = id
	return e
}

// WithOperator sets the operator who triggered the event
func (e *Event) WithOperator(operator string) *Event {
	e.Operator = operator
	return e
}

// WithService sets the service being acted upon
func (e *Event) WithService(service string) *Event {
	e.Service = service
	return e
}

// WithActionID sets the action the event refers to
func (e *Event) WithActionID(id string) *Event {
	e.ActionID = id
	return e
}

// WithAction sets the action type being performed
func (e *Event) WithAction(action string) *Event {
	e.Action = action
	return e
}

// WithDescription sets a human-readable description
func (e *Event) WithDescription(desc string) *Event {
	e.Description = desc
	return e
}

// WithResult sets the result of the event
func (e *Event) WithResult(result Result) *Event {
	e.Result = result
	return e
}

// WithError sets error information
func (e *Event) WithError(err error, kind string) *Event {
	if err != nil {
		e.Error = err.Error()
		e.ErrorKind = kind
		e.Result = ResultFailure
	}
	return e
}

// WithDuration sets the duration in milliseconds
func (e *Event) WithDuration(duration time.Duration) *Event {
	e.DurationMs = duration.Milliseconds()
	return e
}

// WithMetadata adds metadata to the event
func (e *Event) WithMetadata(key string, value interface{}) *Event {
	e.Metadata[key] = value
	return e
}
