package main

// Package main is the entry point for the AIRRA control plane.
//
// Responsibilities:
//   - Load and validate configuration from YAML, environment variables, and defaults
//   - Wire the outbound backends (metrics, reasoning, effector)
//   - Open the SQLite incident store and the append-only learning stores
//   - Load the dependency graph and runbook registries and start their watchers
//   - Start the incident pipeline and the operator API server
//   - Implement graceful shutdown with context cancellation
//
// Graceful Shutdown:
//   - Cancels the pipeline loops and waits for in-flight incidents
//   - Drains the operator API and closes the websocket hub
//   - Finalizes audit logs and closes the stores

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/kkrriders/airra/internal/approval"
	"github.com/kkrriders/airra/internal/audit"
	"github.com/kkrriders/airra/internal/backends"
	"github.com/kkrriders/airra/internal/config"
	"github.com/kkrriders/airra/internal/correlation"
	"github.com/kkrriders/airra/internal/dedup"
	"github.com/kkrriders/airra/internal/execution"
	"github.com/kkrriders/airra/internal/graph"
	"github.com/kkrriders/airra/internal/outcome"
	"github.com/kkrriders/airra/internal/perception"
	"github.com/kkrriders/airra/internal/pipeline"
	"github.com/kkrriders/airra/internal/reasoning"
	"github.com/kkrriders/airra/internal/runbook"
	"github.com/kkrriders/airra/internal/scoring"
	"github.com/kkrriders/airra/internal/selection"
	"github.com/kkrriders/airra/internal/server"
	"github.com/kkrriders/airra/internal/store"
)

// pipelineRunner defers binding so the server can be built before the
// pipeline that serves its approvals.
type pipelineRunner struct {
	p *pipeline.Pipeline
}

func (r *pipelineRunner) ExecuteApproved(ctx context.Context, actionID string) {
	r.p.ExecuteApproved(ctx, actionID)
}

func buildLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", level, err)
	}
	zc := zap.NewProductionConfig()
	if format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func run() error {
	configPath := flag.String("config", "/etc/airra/config.yaml", "path to the YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr := config.NewManager(*configPath)
	if err := mgr.Load(ctx); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := mgr.Validate(ctx); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	cfg := mgr.Get(ctx)

	logger, err := buildLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer logger.Sync()

	auditCfg := audit.DefaultConfig()
	auditCfg.LogLevel = cfg.Logging.Level
	auditCfg.AppLogPath = cfg.Logging.AppLogPath
	auditCfg.AuditLogPath = cfg.Logging.AuditLogPath
	auditLog, err := audit.NewLogger(auditCfg)
	if err != nil {
		return fmt.Errorf("audit logger: %w", err)
	}
	defer auditLog.Close()

	db, err := store.NewSQLiteStore(cfg.Database.SQLitePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	outcomes, err := outcome.NewStore(cfg.Files.OutcomesPath)
	if err != nil {
		return fmt.Errorf("open outcome store: %w", err)
	}
	defer outcomes.Close()

	feedback, err := outcome.NewFeedbackStore(cfg.Files.FeedbackPath)
	if err != nil {
		return fmt.Errorf("open feedback store: %w", err)
	}
	defer feedback.Close()

	graphs, err := graph.NewRegistry(cfg.Files.DependencyConfig, logger)
	if err != nil {
		return fmt.Errorf("dependency graph: %w", err)
	}
	runbooks, err := runbook.NewRegistry(cfg.Files.RunbooksConfig, logger)
	if err != nil {
		return fmt.Errorf("runbooks: %w", err)
	}

	metricsClient := backends.NewMetricsClient(cfg.Backends.MetricsBaseURL,
		time.Duration(cfg.Backends.MetricsTimeout)*time.Second)
	reasoningClient := backends.NewReasoningClient(cfg.Backends.ReasoningBaseURL,
		cfg.Backends.ReasoningAPIKey,
		time.Duration(cfg.Backends.ReasoningTimeout)*time.Second)
	effectorClient := backends.NewEffectorClient(cfg.Backends.EffectorBaseURL,
		time.Duration(cfg.Backends.EffectorTimeout)*time.Second)

	poller := perception.NewPoller(metricsClient, logger,
		cfg.Perception.BaselineWindow, cfg.Perception.AnomalyThresholdSigma,
		cfg.Perception.Services, cfg.Perception.Metrics,
		time.Duration(cfg.Perception.PollIntervalSeconds)*time.Second)
	if cfg.Backends.LogsEnabled {
		poller.AttachLogs(backends.NewLogsClient(cfg.Backends.LogsBaseURL,
			time.Duration(cfg.Backends.MetricsTimeout)*time.Second))
	}

	dedupTable, err := dedup.NewTable(
		time.Duration(cfg.Dedup.WindowSeconds)*time.Second,
		cfg.Dedup.MaxEntries, cfg.Dedup.VolatileLabelRegex)
	if err != nil {
		return fmt.Errorf("dedup table: %w", err)
	}

	correlator := correlation.NewCorrelator(
		time.Duration(cfg.Correlation.WindowSeconds)*time.Second,
		cfg.Correlation.MinSignalCount, cfg.Correlation.MinSourceDiversity,
		cfg.Correlation.EmitThreshold)

	reasoner := reasoning.NewAdapter(reasoningClient, logger,
		cfg.Backends.ReasoningModel, cfg.Backends.ReasoningTemp, cfg.Backends.ReasoningMaxTok)

	counters := approval.NewCounters(cfg.Approval.CountersPath, logger)
	gate := approval.NewGate(counters, time.Duration(cfg.Approval.SLAMinutes)*time.Minute)

	executor := execution.NewExecutor(metricsClient, effectorClient, logger,
		time.Duration(cfg.Execution.StabilizationWindowSeconds)*time.Second,
		cfg.Execution.ImprovementThreshold, cfg.Execution.UnstableThreshold,
		cfg.Execution.DryRunMode)

	runner := &pipelineRunner{}
	srv := server.NewServer(logger, db, outcomes, feedback, auditLog, runner,
		cfg.Server.Port, cfg.Server.AllowedOrigins)

	p := pipeline.New(pipeline.Deps{
		Logger:     logger,
		Audit:      auditLog,
		Store:      db,
		Poller:     poller,
		Dedup:      dedupTable,
		Correlator: correlator,
		Graphs:     graphs,
		Runbooks:   runbooks,
		Reasoner:   reasoner,
		Scorer:     scoring.NewScorer(),
		Selector:   selection.NewSelector(cfg.Scoring.ConfidenceFloor, counters),
		Gate:       gate,
		Executor:   executor,
		Outcomes:   outcomes,
		Metrics:    metricsClient,
		Notifier:   srv.Hub(),
	},
		time.Duration(cfg.Perception.PollIntervalSeconds)*time.Second,
		time.Duration(cfg.Pipeline.StageTimeoutSeconds)*time.Second,
		cfg.Pipeline.Workers)
	runner.p = p

	logger.Info("starting",
		zap.Int("port", cfg.Server.Port),
		zap.String("db", cfg.Database.SQLitePath),
		zap.Bool("dry_run", cfg.Execution.DryRunMode))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Run(ctx) })
	g.Go(func() error { return srv.Start() })
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
