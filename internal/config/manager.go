package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// viperManager implements Manager using Viper.
type viperManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
}

// Load loads configuration from all sources.
func (m *viperManager) Load(ctx context.Context) error {
	m.viper = viper.New()

	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("AIRRA")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	// The config file is optional; defaults + env vars are sufficient.
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// fall through to defaults
		} else if os.IsNotExist(err) {
			// fall through to defaults
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// Get returns the current configuration.
func (m *viperManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		var msgs []string
		for _, err := range errs {
			msgs = append(msgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
	}
	return nil
}

// setDefaults sets default values in viper.
func (m *viperManager) setDefaults() {
	d := DefaultConfig()

	m.viper.SetDefault("server.port", d.Server.Port)
	m.viper.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)

	m.viper.SetDefault("backends.metrics_base_url", d.Backends.MetricsBaseURL)
	m.viper.SetDefault("backends.metrics_timeout", d.Backends.MetricsTimeout)
	m.viper.SetDefault("backends.logs_base_url", d.Backends.LogsBaseURL)
	m.viper.SetDefault("backends.logs_enabled", d.Backends.LogsEnabled)
	m.viper.SetDefault("backends.reasoning_base_url", d.Backends.ReasoningBaseURL)
	m.viper.SetDefault("backends.reasoning_model", d.Backends.ReasoningModel)
	m.viper.SetDefault("backends.reasoning_temperature", d.Backends.ReasoningTemp)
	m.viper.SetDefault("backends.reasoning_max_tokens", d.Backends.ReasoningMaxTok)
	m.viper.SetDefault("backends.reasoning_timeout", d.Backends.ReasoningTimeout)
	m.viper.SetDefault("backends.effector_base_url", d.Backends.EffectorBaseURL)
	m.viper.SetDefault("backends.effector_timeout", d.Backends.EffectorTimeout)

	m.viper.SetDefault("perception.poll_interval_seconds", d.Perception.PollIntervalSeconds)
	m.viper.SetDefault("perception.baseline_window", d.Perception.BaselineWindow)
	m.viper.SetDefault("perception.anomaly_threshold_sigma", d.Perception.AnomalyThresholdSigma)
	m.viper.SetDefault("perception.services", d.Perception.Services)
	m.viper.SetDefault("perception.metrics", d.Perception.Metrics)

	m.viper.SetDefault("dedup.window_seconds", d.Dedup.WindowSeconds)
	m.viper.SetDefault("dedup.max_entries", d.Dedup.MaxEntries)
	m.viper.SetDefault("dedup.volatile_label_regex", d.Dedup.VolatileLabelRegex)

	m.viper.SetDefault("correlation.window_seconds", d.Correlation.WindowSeconds)
	m.viper.SetDefault("correlation.min_signal_count", d.Correlation.MinSignalCount)
	m.viper.SetDefault("correlation.min_source_diversity", d.Correlation.MinSourceDiversity)
	m.viper.SetDefault("correlation.emit_threshold", d.Correlation.EmitThreshold)

	m.viper.SetDefault("scoring.confidence_floor", d.Scoring.ConfidenceFloor)

	m.viper.SetDefault("approval.sla_minutes", d.Approval.SLAMinutes)
	m.viper.SetDefault("approval.counters_path", d.Approval.CountersPath)

	m.viper.SetDefault("execution.stabilization_window_seconds", d.Execution.StabilizationWindowSeconds)
	m.viper.SetDefault("execution.improvement_threshold", d.Execution.ImprovementThreshold)
	m.viper.SetDefault("execution.unstable_threshold", d.Execution.UnstableThreshold)
	m.viper.SetDefault("execution.dry_run_mode", d.Execution.DryRunMode)

	m.viper.SetDefault("pipeline.workers", d.Pipeline.Workers)
	m.viper.SetDefault("pipeline.stage_timeout_seconds", d.Pipeline.StageTimeoutSeconds)

	m.viper.SetDefault("files.dependency_config", d.Files.DependencyConfig)
	m.viper.SetDefault("files.runbooks_config", d.Files.RunbooksConfig)
	m.viper.SetDefault("files.outcomes_path", d.Files.OutcomesPath)
	m.viper.SetDefault("files.feedback_path", d.Files.FeedbackPath)

	m.viper.SetDefault("database.sqlite_path", d.Database.SQLitePath)

	m.viper.SetDefault("logging.level", d.Logging.Level)
	m.viper.SetDefault("logging.format", d.Logging.Format)
	m.viper.SetDefault("logging.app_log_path", d.Logging.AppLogPath)
	m.viper.SetDefault("logging.audit_log_path", d.Logging.AuditLogPath)
}

// unmarshalConfig unmarshals viper config into the Config struct.
func (m *viperManager) unmarshalConfig() error {
	cfg := &Config{}

	cfg.Server.Port = m.viper.GetInt("server.port")
	cfg.Server.AllowedOrigins = m.viper.GetStringSlice("server.allowed_origins")

	cfg.Backends.MetricsBaseURL = m.viper.GetString("backends.metrics_base_url")
	cfg.Backends.MetricsTimeout = m.viper.GetInt("backends.metrics_timeout")
	cfg.Backends.LogsBaseURL = m.viper.GetString("backends.logs_base_url")
	cfg.Backends.LogsEnabled = m.viper.GetBool("backends.logs_enabled")
	cfg.Backends.ReasoningBaseURL = m.viper.GetString("backends.reasoning_base_url")
	cfg.Backends.ReasoningAPIKey = m.viper.GetString("backends.reasoning_api_key")
	cfg.Backends.ReasoningModel = m.viper.GetString("backends.reasoning_model")
	cfg.Backends.ReasoningTemp = m.viper.GetFloat64("backends.reasoning_temperature")
	cfg.Backends.ReasoningMaxTok = m.viper.GetInt("backends.reasoning_max_tokens")
	cfg.Backends.ReasoningTimeout = m.viper.GetInt("backends.reasoning_timeout")
	cfg.Backends.EffectorBaseURL = m.viper.GetString("backends.effector_base_url")
	cfg.Backends.EffectorTimeout = m.viper.GetInt("backends.effector_timeout")

	cfg.Perception.PollIntervalSeconds = m.viper.GetInt("perception.poll_interval_seconds")
	cfg.Perception.BaselineWindow = m.viper.GetInt("perception.baseline_window")
	cfg.Perception.AnomalyThresholdSigma = m.viper.GetFloat64("perception.anomaly_threshold_sigma")
	cfg.Perception.Services = m.viper.GetStringSlice("perception.services")
	cfg.Perception.Metrics = m.viper.GetStringSlice("perception.metrics")

	cfg.Dedup.WindowSeconds = m.viper.GetInt("dedup.window_seconds")
	cfg.Dedup.MaxEntries = m.viper.GetInt("dedup.max_entries")
	cfg.Dedup.VolatileLabelRegex = m.viper.GetString("dedup.volatile_label_regex")

	cfg.Correlation.WindowSeconds = m.viper.GetInt("correlation.window_seconds")
	cfg.Correlation.MinSignalCount = m.viper.GetInt("correlation.min_signal_count")
	cfg.Correlation.MinSourceDiversity = m.viper.GetInt("correlation.min_source_diversity")
	cfg.Correlation.EmitThreshold = m.viper.GetFloat64("correlation.emit_threshold")

	cfg.Scoring.ConfidenceFloor = m.viper.GetFloat64("scoring.confidence_floor")

	cfg.Approval.SLAMinutes = m.viper.GetInt("approval.sla_minutes")
	cfg.Approval.CountersPath = m.viper.GetString("approval.counters_path")

	cfg.Execution.StabilizationWindowSeconds = m.viper.GetInt("execution.stabilization_window_seconds")
	cfg.Execution.ImprovementThreshold = m.viper.GetFloat64("execution.improvement_threshold")
	cfg.Execution.UnstableThreshold = m.viper.GetFloat64("execution.unstable_threshold")
	cfg.Execution.DryRunMode = m.viper.GetBool("execution.dry_run_mode")

	cfg.Pipeline.Workers = m.viper.GetInt("pipeline.workers")
	cfg.Pipeline.StageTimeoutSeconds = m.viper.GetInt("pipeline.stage_timeout_seconds")

	cfg.Files.DependencyConfig = m.viper.GetString("files.dependency_config")
	cfg.Files.RunbooksConfig = m.viper.GetString("files.runbooks_config")
	cfg.Files.OutcomesPath = m.viper.GetString("files.outcomes_path")
	cfg.Files.FeedbackPath = m.viper.GetString("files.feedback_path")

	cfg.Database.SQLitePath = m.viper.GetString("database.sqlite_path")

	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")
	cfg.Logging.AppLogPath = m.viper.GetString("logging.app_log_path")
	cfg.Logging.AuditLogPath = m.viper.GetString("logging.audit_log_path")

	m.config = cfg
	return nil
}

// applyEnvOverrides maps the documented flat AIRRA_* environment variables
// onto their config fields. These are the operator-facing knobs; the nested
// AIRRA_SECTION_KEY forms handled by viper also work.
func (m *viperManager) applyEnvOverrides() {
	if v, ok := envFloat("AIRRA_ANOMALY_THRESHOLD_SIGMA"); ok {
		m.config.Perception.AnomalyThresholdSigma = v
	}
	if v, ok := envInt("AIRRA_POLL_INTERVAL_SECONDS"); ok {
		m.config.Perception.PollIntervalSeconds = v
	}
	if v, ok := envInt("AIRRA_CORRELATION_WINDOW_SECONDS"); ok {
		m.config.Correlation.WindowSeconds = v
	}
	if v, ok := envInt("AIRRA_DEDUP_WINDOW_SECONDS"); ok {
		m.config.Dedup.WindowSeconds = v
	}
	if v, ok := envInt("AIRRA_STABILIZATION_WINDOW_SECONDS"); ok {
		m.config.Execution.StabilizationWindowSeconds = v
	}
	if v, ok := envFloat("AIRRA_IMPROVEMENT_THRESHOLD"); ok {
		m.config.Execution.ImprovementThreshold = v
	}
	if v, ok := envInt("AIRRA_APPROVAL_SLA_MINUTES"); ok {
		m.config.Approval.SLAMinutes = v
	}
	if v, ok := envFloat("AIRRA_CONFIDENCE_FLOOR"); ok {
		m.config.Scoring.ConfidenceFloor = v
	}
	if v, ok := envInt("AIRRA_REASONING_TIMEOUT_SECONDS"); ok {
		m.config.Backends.ReasoningTimeout = v
	}
	if raw := os.Getenv("AIRRA_DRY_RUN_MODE"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			m.config.Execution.DryRunMode = v
		}
	}
	if v := os.Getenv("AIRRA_DEPENDENCY_CONFIG"); v != "" {
		m.config.Files.DependencyConfig = v
	}
	if v := os.Getenv("AIRRA_RUNBOOKS_CONFIG"); v != "" {
		m.config.Files.RunbooksConfig = v
	}
	if v := os.Getenv("AIRRA_REASONING_API_KEY"); v != "" {
		m.config.Backends.ReasoningAPIKey = v
	}
}

func envInt(name string) (int, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envFloat(name string) (float64, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
