package config

import (
	"fmt"
	"net/url"
	"regexp"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Server.Port),
		})
	}

	for field, raw := range map[string]string{
		"backends.metrics_base_url":   c.Backends.MetricsBaseURL,
		"backends.reasoning_base_url": c.Backends.ReasoningBaseURL,
		"backends.effector_base_url":  c.Backends.EffectorBaseURL,
	} {
		if raw == "" {
			errs = append(errs, &ValidationError{Field: field, Message: "base URL is required"})
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, &ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid URL: %q", raw),
			})
		}
	}
	if c.Backends.LogsEnabled {
		if u, err := url.Parse(c.Backends.LogsBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, &ValidationError{
				Field:   "backends.logs_base_url",
				Message: fmt.Sprintf("invalid URL: %q", c.Backends.LogsBaseURL),
			})
		}
	}

	if c.Perception.AnomalyThresholdSigma <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "perception.anomaly_threshold_sigma",
			Message: fmt.Sprintf("must be positive, got %.2f", c.Perception.AnomalyThresholdSigma),
		})
	}
	if c.Perception.BaselineWindow < 3 {
		errs = append(errs, &ValidationError{
			Field:   "perception.baseline_window",
			Message: fmt.Sprintf("must be at least 3 points, got %d", c.Perception.BaselineWindow),
		})
	}
	if c.Perception.PollIntervalSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "perception.poll_interval_seconds",
			Message: "must be at least 1 second",
		})
	}

	if c.Dedup.WindowSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "dedup.window_seconds",
			Message: "must be at least 1 second",
		})
	}
	if c.Dedup.MaxEntries < 1 {
		errs = append(errs, &ValidationError{
			Field:   "dedup.max_entries",
			Message: "must be positive",
		})
	}
	if c.Dedup.VolatileLabelRegex != "" {
		if _, err := regexp.Compile(c.Dedup.VolatileLabelRegex); err != nil {
			errs = append(errs, &ValidationError{
				Field:   "dedup.volatile_label_regex",
				Message: fmt.Sprintf("invalid regexp: %v", err),
			})
		}
	}

	if c.Correlation.MinSignalCount < 1 {
		errs = append(errs, &ValidationError{
			Field:   "correlation.min_signal_count",
			Message: "must be at least 1",
		})
	}
	if c.Correlation.EmitThreshold < 0 || c.Correlation.EmitThreshold > 1 {
		errs = append(errs, &ValidationError{
			Field:   "correlation.emit_threshold",
			Message: fmt.Sprintf("must be in [0,1], got %.2f", c.Correlation.EmitThreshold),
		})
	}

	if c.Scoring.ConfidenceFloor < 0 || c.Scoring.ConfidenceFloor > 1 {
		errs = append(errs, &ValidationError{
			Field:   "scoring.confidence_floor",
			Message: fmt.Sprintf("must be in [0,1], got %.2f", c.Scoring.ConfidenceFloor),
		})
	}

	if c.Approval.SLAMinutes < 1 {
		errs = append(errs, &ValidationError{
			Field:   "approval.sla_minutes",
			Message: "must be at least 1 minute",
		})
	}

	if c.Execution.ImprovementThreshold <= 0 || c.Execution.ImprovementThreshold >= 1 {
		errs = append(errs, &ValidationError{
			Field:   "execution.improvement_threshold",
			Message: fmt.Sprintf("must be in (0,1), got %.2f", c.Execution.ImprovementThreshold),
		})
	}

	if c.Pipeline.Workers < 1 {
		errs = append(errs, &ValidationError{
			Field:   "pipeline.workers",
			Message: "must be at least 1",
		})
	}

	if c.Files.DependencyConfig == "" {
		errs = append(errs, &ValidationError{
			Field:   "files.dependency_config",
			Message: "dependency config path is required",
		})
	}
	if c.Files.RunbooksConfig == "" {
		errs = append(errs, &ValidationError{
			Field:   "files.runbooks_config",
			Message: "runbooks config path is required",
		})
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("unknown level %q", c.Logging.Level),
		})
	}

	return errs
}
