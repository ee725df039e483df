package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Control-plane metrics for production monitoring
var (
	// Perception metrics
	SignalsObserved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airra_signals_observed_total",
			Help: "Total number of anomalous signals emitted by perception",
		},
		[]string{"service", "metric", "severity"},
	)

	SignalsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "airra_signals_suppressed_total",
			Help: "Total number of signals suppressed by deduplication",
		},
	)

	DedupCompressionRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "airra_dedup_compression_ratio",
			Help: "Ratio of signals seen to signals admitted by deduplication",
		},
	)

	// Incident metrics
	IncidentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airra_incidents_total",
			Help: "Total number of incidents created",
		},
		[]string{"service", "severity"},
	)

	IncidentsMerged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "airra_incidents_merged_total",
			Help: "Total number of incident candidates merged into a live incident",
		},
	)

	IncidentsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "airra_incidents_live",
			Help: "Current number of non-terminal incidents by status",
		},
		[]string{"status"},
	)

	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "airra_pipeline_stage_duration_seconds",
			Help:    "Duration of one pipeline stage for one incident",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"stage"},
	)

	PipelineErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airra_pipeline_errors_total",
			Help: "Total number of pipeline errors by kind",
		},
		[]string{"kind"},
	)

	// Reasoning metrics
	ReasoningRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airra_reasoning_requests_total",
			Help: "Total number of reasoning backend requests",
		},
		[]string{"status"}, // status: ok/degraded/cached
	)

	ReasoningTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airra_reasoning_tokens_total",
			Help: "Total number of reasoning tokens consumed",
		},
		[]string{"type"}, // type: prompt/completion
	)

	// Approval metrics
	ApprovalDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airra_approval_decisions_total",
			Help: "Total number of approval gate decisions",
		},
		[]string{"reason"},
	)

	ApprovalSLAExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "airra_approval_sla_expired_total",
			Help: "Total number of approvals escalated on SLA expiry",
		},
	)

	PendingApprovals = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "airra_pending_approvals",
			Help: "Current number of actions awaiting operator approval",
		},
	)

	// Execution metrics
	ActionsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airra_actions_executed_total",
			Help: "Total number of actions sent to the effector",
		},
		[]string{"action_type", "mode", "outcome"},
	)

	ActionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "airra_action_duration_seconds",
			Help:    "Wall time from effector invocation to verification",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17min
		},
		[]string{"action_type"},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "airra_websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WebSocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airra_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: inbound/outbound
	)

	// Registry metrics
	RegistryReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airra_registry_reloads_total",
			Help: "Total number of dependency graph and runbook reload attempts",
		},
		[]string{"registry", "status"}, // status: ok/rejected
	)
)
