package execution

// Package execution invokes the effector and verifies what the action did.
//
// Responsibilities:
//   - Capture the fixed pre-action metric set
//   - Invoke the effector in dry_run or live mode and track the attempt
//   - Wait out the stabilization window, sampling sub-windows for stability
//   - Classify the outcome from the measured improvement
//   - Produce the recommendation (monitor, continue, escalate, rollback)

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kkrriders/airra/internal/backends"
	"github.com/kkrriders/airra/internal/models"
)

// VerificationMetrics is the fixed metric set captured before and after
// every action.
var VerificationMetrics = []string{
	"error_rate", "latency_p95", "latency_p99", "availability", "request_rate",
}

// lowerIsBetter marks metrics where a drop is an improvement.
var lowerIsBetter = map[string]bool{
	"error_rate":  true,
	"latency_p95": true,
	"latency_p99": true,
}

// MetricsReader is the slice of the metrics client execution needs.
type MetricsReader interface {
	LatestValue(ctx context.Context, query string) (float64, bool, error)
}

// Invoker is the slice of the effector client execution needs.
type Invoker interface {
	Execute(ctx context.Context, req backends.ExecuteRequest) (*backends.ExecuteResponse, error)
	WaitForCompletion(ctx context.Context, attemptID int64, pollEvery time.Duration) (*backends.AttemptStatus, error)
}

// Executor runs approved actions and verifies their effect.
type Executor struct {
	metrics       MetricsReader
	effector      Invoker
	logger        *zap.Logger
	stabilization time.Duration
	improvement   float64
	unstable      float64
	dryRun        bool

	sleepFn func(ctx context.Context, d time.Duration) error
}

// NewExecutor builds an executor. dryRun forces dry_run mode regardless of
// what approval requested; it is the safe default.
func NewExecutor(metrics MetricsReader, effector Invoker, logger *zap.Logger, stabilization time.Duration, improvementThreshold, unstableThreshold float64, dryRun bool) *Executor {
	return &Executor{
		metrics:       metrics,
		effector:      effector,
		logger:        logger,
		stabilization: stabilization,
		improvement:   improvementThreshold,
		unstable:      unstableThreshold,
		dryRun:        dryRun,
		sleepFn:       sleepCtx,
	}
}

// CaptureMetrics reads the fixed verification metric set for a service.
// Unavailable metrics are omitted, not zeroed.
func (e *Executor) CaptureMetrics(ctx context.Context, service string) map[string]float64 {
	out := make(map[string]float64, len(VerificationMetrics))
	for _, m := range VerificationMetrics {
		query := fmt.Sprintf("%s{service=%q}", m, service)
		v, ok, err := e.metrics.LatestValue(ctx, query)
		if err != nil {
			e.logger.Warn("metric capture failed",
				zap.String("service", service), zap.String("metric", m), zap.Error(err))
			continue
		}
		if ok {
			out[m] = v
		}
	}
	return out
}

// Run executes one approved action against the effector and verifies it.
// The action is mutated in place: attempt id, pre/post metrics, status, and
// verification outcome. A completed attempt is never re-executed.
func (e *Executor) Run(ctx context.Context, action *models.Action, service string) (*VerificationResult, error) {
	if action.AttemptID != 0 && action.Status.Terminal() {
		return nil, fmt.Errorf("attempt %d for action %s already completed", action.AttemptID, action.ID)
	}
	if err := action.Status.ValidateTransition(models.ActionExecuting); err != nil {
		return nil, err
	}

	mode := action.ExecutionMode
	if e.dryRun || mode == "" {
		mode = models.ModeDryRun
	}
	action.ExecutionMode = mode

	action.PreMetrics = e.CaptureMetrics(ctx, service)
	action.Status = models.ActionExecuting
	now := time.Now()
	action.ExecutedAt = &now

	resp, err := e.effector.Execute(ctx, backends.ExecuteRequest{
		ActionType:    action.Type,
		Parameters:    action.Parameters,
		ExecutionMode: mode,
	})
	if err != nil {
		action.Status = models.ActionFailed
		action.StatusReason = err.Error()
		action.Verification = models.OutcomeNoChange
		return &VerificationResult{Outcome: models.OutcomeNoChange, Recommendation: RecommendEscalate}, err
	}
	if resp.Status == "rejected" {
		action.Status = models.ActionFailed
		action.StatusReason = resp.Error
		action.Verification = models.OutcomeNoChange
		return &VerificationResult{Outcome: models.OutcomeNoChange, Recommendation: RecommendEscalate},
			fmt.Errorf("effector rejected action: %s", resp.Error)
	}
	action.AttemptID = resp.AttemptID

	st, err := e.effector.WaitForCompletion(ctx, resp.AttemptID, 2*time.Second)
	if err != nil {
		action.Status = models.ActionFailed
		action.StatusReason = err.Error()
		action.Verification = models.OutcomeNoChange
		return &VerificationResult{Outcome: models.OutcomeNoChange, Recommendation: RecommendEscalate}, err
	}
	if st.Status == "failed" {
		action.Status = models.ActionFailed
		action.StatusReason = st.Detail
		action.Verification = models.OutcomeNoChange
		return &VerificationResult{Outcome: models.OutcomeNoChange, Recommendation: RecommendEscalate},
			fmt.Errorf("effector attempt failed: %s", st.Detail)
	}

	result, err := e.verify(ctx, action, service)
	if err != nil {
		return nil, err
	}

	action.Verification = result.Outcome
	switch result.Outcome {
	case models.OutcomeDegraded:
		if action.Risk.Reversible {
			action.Status = models.ActionRolledBack
		} else {
			action.Status = models.ActionFailed
		}
		action.StatusReason = "post-action metrics degraded"
	case models.OutcomeUnstable:
		action.Status = models.ActionFailed
		action.StatusReason = "post-action metrics unstable"
	default:
		action.Status = models.ActionSucceeded
	}
	return result, nil
}

// verify sleeps out the stabilization window in three sub-windows, sampling
// the metric set at each boundary, then classifies the movement.
func (e *Executor) verify(ctx context.Context, action *models.Action, service string) (*VerificationResult, error) {
	sub := e.stabilization / 3
	samples := make([]map[string]float64, 0, 3)
	for i := 0; i < 3; i++ {
		if err := e.sleepFn(ctx, sub); err != nil {
			return nil, err
		}
		samples = append(samples, e.CaptureMetrics(ctx, service))
	}
	action.PostMetrics = samples[2]

	result := Classify(action.PreMetrics, samples, e.improvement, e.unstable)
	if result.Outcome == models.OutcomeDegraded && !action.Risk.Reversible {
		result.Recommendation = RecommendEscalate
	}

	e.logger.Info("verification complete",
		zap.String("action_id", action.ID),
		zap.String("outcome", string(result.Outcome)),
		zap.Float64("overall_improvement", result.OverallImprovement),
		zap.String("recommendation", string(result.Recommendation)))
	return result, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
