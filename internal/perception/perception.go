package perception

// Package perception turns metric time-series into anomaly signals.
//
// Responsibilities:
//   - Poll the metrics backend for each monitored (service, metric) pair
//   - Compute a z-score of the newest point against the preceding baseline
//   - Emit a Signal when the deviation crosses the configured sigma threshold
//   - Optionally bucket error-level log lines into a log_error_rate signal
//
// A metrics-backend failure is not an incident: it is logged and the pair is
// skipped until the next poll.

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/kkrriders/airra/internal/backends"
	"github.com/kkrriders/airra/internal/models"
)

// logFetchPerBucket caps how many log lines are pulled per baseline bucket.
const logFetchPerBucket = 50

// RangeQuerier is the slice of the metrics client perception needs.
type RangeQuerier interface {
	QueryRange(ctx context.Context, query string, start, end time.Time, step time.Duration) ([]backends.Series, error)
}

// LogQuerier is the slice of the optional log backend perception needs.
type LogQuerier interface {
	Query(ctx context.Context, service string, start, end time.Time, limit int) ([]backends.LogItem, error)
}

// Poller observes configured service/metric pairs and emits signals.
type Poller struct {
	metrics        RangeQuerier
	logs           LogQuerier
	logger         *zap.Logger
	baselineWindow int
	thresholdSigma float64
	services       []string
	metricNames    []string
	step           time.Duration
}

// NewPoller builds a poller. baselineWindow is the total number of points
// requested per observation; the last point is scored against the rest.
func NewPoller(metrics RangeQuerier, logger *zap.Logger, baselineWindow int, thresholdSigma float64, services, metricNames []string, step time.Duration) *Poller {
	return &Poller{
		metrics:        metrics,
		logger:         logger,
		baselineWindow: baselineWindow,
		thresholdSigma: thresholdSigma,
		services:       services,
		metricNames:    metricNames,
		step:           step,
	}
}

// AttachLogs enables log-derived signals on subsequent sweeps.
func (p *Poller) AttachLogs(logs LogQuerier) {
	p.logs = logs
}

// Sweep observes every configured pair once and returns the emitted signals.
func (p *Poller) Sweep(ctx context.Context) []models.Signal {
	var out []models.Signal
	for _, service := range p.services {
		for _, metric := range p.metricNames {
			sig, err := p.Observe(ctx, service, metric)
			if err != nil {
				p.logger.Warn("metrics poll failed, skipping pair",
					zap.String("service", service),
					zap.String("metric", metric),
					zap.Error(err))
				continue
			}
			if sig != nil {
				out = append(out, *sig)
			}
		}
		if p.logs != nil {
			sig, err := p.ObserveLogs(ctx, service)
			if err != nil {
				p.logger.Warn("log poll failed, skipping service",
					zap.String("service", service), zap.Error(err))
				continue
			}
			if sig != nil {
				out = append(out, *sig)
			}
		}
	}
	return out
}

// ObserveLogs buckets error-level log lines per step and scores the newest
// bucket against the baseline buckets, mirroring the metric z-score.
func (p *Poller) ObserveLogs(ctx context.Context, service string) (*models.Signal, error) {
	end := time.Now()
	start := end.Add(-time.Duration(p.baselineWindow) * p.step)

	items, err := p.logs.Query(ctx, service, start, end, p.baselineWindow*logFetchPerBucket)
	if err != nil {
		return nil, err
	}

	buckets := make([]backends.Point, p.baselineWindow)
	for i := range buckets {
		buckets[i].Timestamp = start.Add(time.Duration(i) * p.step)
	}
	for _, item := range items {
		if item.Level != "error" && item.Level != "fatal" {
			continue
		}
		i := int(item.Timestamp.Sub(start) / p.step)
		if i < 0 || i >= len(buckets) {
			continue
		}
		buckets[i].Value++
	}

	baseline := buckets[:len(buckets)-1]
	current := buckets[len(buckets)-1]

	mean, stddev := meanStddev(baseline)
	if stddev == 0 {
		return nil, nil
	}
	z := (current.Value - mean) / stddev
	if math.Abs(z) < p.thresholdSigma {
		return nil, nil
	}

	sig := &models.Signal{
		Service:        service,
		MetricName:     "log_error_rate",
		Value:          current.Value,
		Baseline:       mean,
		DeviationSigma: z,
		Timestamp:      current.Timestamp,
		Source:         models.SourceLog,
	}
	p.logger.Info("anomaly signal emitted",
		zap.String("service", service),
		zap.String("metric", sig.MetricName),
		zap.Float64("value", current.Value),
		zap.Float64("baseline", mean),
		zap.Float64("sigma", z),
		zap.String("severity", string(sig.Severity())))
	return sig, nil
}

// Observe polls one pair and returns a signal when the newest point deviates
// at least thresholdSigma from the baseline. Flat baselines (stddev 0) and
// out-of-order windows return nil without error.
func (p *Poller) Observe(ctx context.Context, service, metric string) (*models.Signal, error) {
	end := time.Now()
	start := end.Add(-time.Duration(p.baselineWindow) * p.step)

	query := fmt.Sprintf("%s{service=%q}", metric, service)
	series, err := p.metrics.QueryRange(ctx, query, start, end, p.step)
	if err != nil {
		return nil, err
	}
	if len(series) == 0 || len(series[0].Points) < 3 {
		return nil, nil
	}

	points := series[0].Points
	if !monotone(points) {
		p.logger.Warn("out-of-order timestamps from metrics backend, skipping window",
			zap.String("service", service), zap.String("metric", metric))
		return nil, nil
	}

	baseline := points[:len(points)-1]
	current := points[len(points)-1]

	mean, stddev := meanStddev(baseline)
	if stddev == 0 {
		return nil, nil
	}

	z := (current.Value - mean) / stddev
	if math.Abs(z) < p.thresholdSigma {
		return nil, nil
	}

	sig := &models.Signal{
		Service:        service,
		MetricName:     metric,
		Value:          current.Value,
		Baseline:       mean,
		DeviationSigma: z,
		Timestamp:      current.Timestamp,
		Source:         models.SourceMetric,
		Labels:         series[0].Metric,
	}
	p.logger.Info("anomaly signal emitted",
		zap.String("service", service),
		zap.String("metric", metric),
		zap.Float64("value", current.Value),
		zap.Float64("baseline", mean),
		zap.Float64("sigma", z),
		zap.String("severity", string(sig.Severity())))
	return sig, nil
}

func monotone(points []backends.Point) bool {
	for i := 1; i < len(points); i++ {
		if points[i].Timestamp.Before(points[i-1].Timestamp) {
			return false
		}
	}
	return true
}

func meanStddev(points []backends.Point) (float64, float64) {
	n := float64(len(points))
	var sum float64
	for _, p := range points {
		sum += p.Value
	}
	mean := sum / n

	var sq float64
	for _, p := range points {
		d := p.Value - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / n)
}
