package config

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Server defaults
	cfg.Server.Port = 8084
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}

	// Backend defaults
	cfg.Backends.MetricsBaseURL = "http://localhost:9090"
	cfg.Backends.MetricsTimeout = 10
	cfg.Backends.LogsBaseURL = "http://localhost:3100"
	cfg.Backends.LogsEnabled = false
	cfg.Backends.ReasoningBaseURL = "http://localhost:8091"
	cfg.Backends.ReasoningAPIKey = ""
	cfg.Backends.ReasoningModel = "airra-reasoner-1"
	cfg.Backends.ReasoningTemp = 0.2
	cfg.Backends.ReasoningMaxTok = 2048
	cfg.Backends.ReasoningTimeout = 60
	cfg.Backends.EffectorBaseURL = "http://localhost:8092"
	cfg.Backends.EffectorTimeout = 30

	// Perception defaults
	cfg.Perception.PollIntervalSeconds = 60
	cfg.Perception.BaselineWindow = 20
	cfg.Perception.AnomalyThresholdSigma = 3.0
	cfg.Perception.Services = nil
	cfg.Perception.Metrics = []string{
		"error_rate", "latency_p95", "latency_p99",
		"availability", "request_rate",
	}

	// Dedup defaults
	cfg.Dedup.WindowSeconds = 300
	cfg.Dedup.MaxEntries = 10000
	cfg.Dedup.VolatileLabelRegex = `^(pod|instance|container_id|hostname)$`

	// Correlation defaults
	cfg.Correlation.WindowSeconds = 300
	cfg.Correlation.MinSignalCount = 2
	cfg.Correlation.MinSourceDiversity = 2
	cfg.Correlation.EmitThreshold = 0.6

	// Scoring defaults
	cfg.Scoring.ConfidenceFloor = 0.60

	// Approval defaults
	cfg.Approval.SLAMinutes = 120
	cfg.Approval.CountersPath = "/var/lib/airra/daily_counters.json"

	// Execution defaults
	cfg.Execution.StabilizationWindowSeconds = 120
	cfg.Execution.ImprovementThreshold = 0.20
	cfg.Execution.UnstableThreshold = 0.30
	cfg.Execution.DryRunMode = true

	// Pipeline defaults
	cfg.Pipeline.Workers = 4
	cfg.Pipeline.StageTimeoutSeconds = 300

	// File defaults
	cfg.Files.DependencyConfig = "/etc/airra/service_dependencies.yaml"
	cfg.Files.RunbooksConfig = "/etc/airra/runbooks.yaml"
	cfg.Files.OutcomesPath = "/var/lib/airra/outcomes.jsonl"
	cfg.Files.FeedbackPath = "/var/lib/airra/feedback.jsonl"

	// Database defaults
	cfg.Database.SQLitePath = "/var/lib/airra/airra.db"

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.AppLogPath = "logs/app.log"
	cfg.Logging.AuditLogPath = "logs/audit.log"

	return cfg
}
