package config

import "context"

// Package config provides configuration management for the AIRRA control plane.
//
// Responsibilities:
//   - Load configuration from a YAML file, environment variables, and defaults
//   - Validate configuration on startup
//   - Provide runtime access to all configuration
//   - Map the documented AIRRA_* environment variables onto config fields
//
// Configuration sources (priority order, high to low):
//   1. Environment variables (AIRRA_* prefix)
//   2. YAML config file (default: /etc/airra/config.yaml)
//   3. Built-in defaults

// Config contains all configuration fields.
type Config struct {
	// Server configuration for the operator API.
	Server struct {
		Port int
		// AllowedOrigins is the list of origins permitted on the operator
		// API and the websocket event stream. ["*"] allows any origin
		// (development only).
		AllowedOrigins []string
	}

	// Backends configures the four outbound HTTP collaborators.
	Backends struct {
		MetricsBaseURL   string
		MetricsTimeout   int // seconds, per query
		LogsBaseURL      string
		LogsEnabled      bool
		ReasoningBaseURL string
		ReasoningAPIKey  string
		ReasoningModel   string
		ReasoningTemp    float64
		ReasoningMaxTok  int
		ReasoningTimeout int // seconds, per call
		EffectorBaseURL  string
		EffectorTimeout  int // seconds, per call
	}

	// Perception configures the metrics poller.
	Perception struct {
		PollIntervalSeconds   int
		BaselineWindow        int
		AnomalyThresholdSigma float64
		Services              []string
		Metrics               []string
	}

	// Dedup configures the signal deduplication table.
	Dedup struct {
		WindowSeconds      int
		MaxEntries         int
		VolatileLabelRegex string
	}

	// Correlation configures the incident correlator.
	Correlation struct {
		WindowSeconds      int
		MinSignalCount     int
		MinSourceDiversity int
		EmitThreshold      float64
	}

	// Scoring configures hypothesis confidence scoring.
	Scoring struct {
		ConfidenceFloor float64
	}

	// Approval configures the approval gate.
	Approval struct {
		SLAMinutes   int
		CountersPath string // daily execution counters persisted at UTC boundary
	}

	// Execution configures effector invocation and verification.
	Execution struct {
		StabilizationWindowSeconds int
		ImprovementThreshold       float64
		UnstableThreshold          float64
		DryRunMode                 bool
	}

	// Pipeline configures the orchestrator.
	Pipeline struct {
		Workers             int
		StageTimeoutSeconds int
	}

	// Files points at the reloadable configuration inputs and the
	// append-only learning stores.
	Files struct {
		DependencyConfig string
		RunbooksConfig   string
		OutcomesPath     string
		FeedbackPath     string
	}

	// Database configuration.
	Database struct {
		SQLitePath string
	}

	// Logging configuration.
	Logging struct {
		Level        string
		Format       string
		AppLogPath   string
		AuditLogPath string
	}
}

// Manager defines the interface for configuration access.
type Manager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error
}

// NewManager creates a new configuration manager.
func NewManager(configPath string) Manager {
	return &viperManager{
		configPath: configPath,
		config:     DefaultConfig(),
	}
}
