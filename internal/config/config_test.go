package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8084, cfg.Server.Port)

	assert.Equal(t, "http://localhost:9090", cfg.Backends.MetricsBaseURL)
	assert.Equal(t, 10, cfg.Backends.MetricsTimeout)
	assert.Equal(t, 60, cfg.Backends.ReasoningTimeout)

	assert.Equal(t, 60, cfg.Perception.PollIntervalSeconds)
	assert.Equal(t, 20, cfg.Perception.BaselineWindow)
	assert.Equal(t, 3.0, cfg.Perception.AnomalyThresholdSigma)

	assert.Equal(t, 300, cfg.Dedup.WindowSeconds)
	assert.Equal(t, 300, cfg.Correlation.WindowSeconds)
	assert.Equal(t, 2, cfg.Correlation.MinSignalCount)
	assert.Equal(t, 2, cfg.Correlation.MinSourceDiversity)
	assert.Equal(t, 0.6, cfg.Correlation.EmitThreshold)

	assert.Equal(t, 0.60, cfg.Scoring.ConfidenceFloor)
	assert.Equal(t, 120, cfg.Approval.SLAMinutes)
	assert.Equal(t, 120, cfg.Execution.StabilizationWindowSeconds)
	assert.Equal(t, 0.20, cfg.Execution.ImprovementThreshold)
	assert.True(t, cfg.Execution.DryRunMode)

	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.Empty(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = 0
	cfg.Backends.MetricsBaseURL = "not a url"
	cfg.Perception.AnomalyThresholdSigma = -1
	cfg.Dedup.VolatileLabelRegex = "("
	cfg.Logging.Level = "loud"

	errs := cfg.Validate()
	require.NotEmpty(t, errs)
	assert.GreaterOrEqual(t, len(errs), 5)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9999
perception:
  anomaly_threshold_sigma: 2.5
correlation:
  min_signal_count: 3
execution:
  dry_run_mode: false
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	mgr := NewManager(path)
	require.NoError(t, mgr.Load(context.Background()))

	cfg := mgr.Get(context.Background())
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 2.5, cfg.Perception.AnomalyThresholdSigma)
	assert.Equal(t, 3, cfg.Correlation.MinSignalCount)
	assert.False(t, cfg.Execution.DryRunMode)

	// Unset keys keep defaults.
	assert.Equal(t, 300, cfg.Dedup.WindowSeconds)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	mgr := NewManager(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, mgr.Load(context.Background()))
	assert.Equal(t, 8084, mgr.Get(context.Background()).Server.Port)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AIRRA_ANOMALY_THRESHOLD_SIGMA", "4.5")
	t.Setenv("AIRRA_APPROVAL_SLA_MINUTES", "60")
	t.Setenv("AIRRA_DRY_RUN_MODE", "false")
	t.Setenv("AIRRA_RUNBOOKS_CONFIG", "/tmp/runbooks.yaml")

	mgr := NewManager(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, mgr.Load(context.Background()))

	cfg := mgr.Get(context.Background())
	assert.Equal(t, 4.5, cfg.Perception.AnomalyThresholdSigma)
	assert.Equal(t, 60, cfg.Approval.SLAMinutes)
	assert.False(t, cfg.Execution.DryRunMode)
	assert.Equal(t, "/tmp/runbooks.yaml", cfg.Files.RunbooksConfig)
}
