package correlation

// Package correlation groups deduplicated signals into incident candidates.
//
// Responsibilities:
//   - Keep a sliding window of signals per service
//   - Emit an incident candidate when signal count, source diversity, and
//     composite confidence all clear their thresholds
//   - Fingerprint candidates so repeated evidence merges into the live
//     incident instead of opening a new one

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kkrriders/airra/internal/models"
)

// Source weights for the composite confidence blend.
const (
	weightMetric   = 0.4
	weightLog      = 0.3
	weightTrace    = 0.3
	diversityBonus = 0.1
)

// Correlator accumulates signals and emits incident candidates.
type Correlator struct {
	window        time.Duration
	minSignals    int
	minDiversity  int
	emitThreshold float64

	mu        sync.Mutex
	perSvc    map[string][]models.Signal
	nowFn     func() time.Time
}

// NewCorrelator builds a correlator with the given thresholds.
func NewCorrelator(window time.Duration, minSignals, minDiversity int, emitThreshold float64) *Correlator {
	return &Correlator{
		window:        window,
		minSignals:    minSignals,
		minDiversity:  minDiversity,
		emitThreshold: emitThreshold,
		perSvc:        make(map[string][]models.Signal),
		nowFn:         time.Now,
	}
}

// Ingest adds one signal to its service window.
func (c *Correlator) Ingest(sig models.Signal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.perSvc[sig.Service] = append(c.perSvc[sig.Service], sig)
}

// Evaluate prunes expired signals and emits every incident candidate whose
// service window clears all three thresholds. Candidates are returned in
// service-name lexicographic order; contributing signals are consumed.
func (c *Correlator) Evaluate() []*models.Incident {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFn()
	cutoff := now.Add(-c.window)

	services := make([]string, 0, len(c.perSvc))
	for svc := range c.perSvc {
		services = append(services, svc)
	}
	sort.Strings(services)

	var out []*models.Incident
	for _, svc := range services {
		live := prune(c.perSvc[svc], cutoff)
		if len(live) == 0 {
			delete(c.perSvc, svc)
			continue
		}
		c.perSvc[svc] = live

		if len(live) < c.minSignals {
			continue
		}
		if sourceCount(live) < c.minDiversity {
			continue
		}
		if CompositeConfidence(live) < c.emitThreshold {
			continue
		}

		out = append(out, buildCandidate(svc, live, now))
		delete(c.perSvc, svc)
	}
	return out
}

// CompositeConfidence blends per-source signal fractions with a diversity
// bonus, capped at 1.0.
func CompositeConfidence(signals []models.Signal) float64 {
	if len(signals) == 0 {
		return 0
	}
	n := float64(len(signals))
	var metric, log, trace float64
	for _, s := range signals {
		switch s.Source {
		case models.SourceMetric:
			metric++
		case models.SourceLog:
			log++
		case models.SourceTrace:
			trace++
		}
	}
	conf := weightMetric*(metric/n) + weightLog*(log/n) + weightTrace*(trace/n)
	conf += diversityBonus * float64(sourceCount(signals)-1)
	if conf > 1.0 {
		conf = 1.0
	}
	return conf
}

func buildCandidate(service string, signals []models.Signal, now time.Time) *models.Incident {
	severity := models.SeverityLow
	components := make(map[string]bool)
	snapshot := make(map[string]float64)
	for _, s := range signals {
		severity = models.MaxSeverity(severity, s.Severity())
		components[s.Identifier()] = true
		snapshot[s.MetricName] = s.Value
	}

	affected := make([]string, 0, len(components))
	for c := range components {
		affected = append(affected, c)
	}
	sort.Strings(affected)

	inc := &models.Incident{
		ID:                 uuid.NewString(),
		Service:            service,
		Severity:           severity,
		Status:             models.IncidentDetected,
		DetectedAt:         now,
		DetectionSource:    "correlation",
		AffectedComponents: affected,
		MetricsSnapshot:    snapshot,
		Signals:            append([]models.Signal{}, signals...),
		DuplicateCount:     0,
	}
	inc.Fingerprint = Fingerprint(inc)
	return inc
}

// Fingerprint hashes the service, the sorted signal sources, and the
// affected-component set. Incidents with equal fingerprints describe the
// same ongoing problem.
func Fingerprint(inc *models.Incident) string {
	sources := make(map[string]bool)
	for _, s := range inc.Signals {
		sources[string(s.Source)] = true
	}
	srcList := make([]string, 0, len(sources))
	for s := range sources {
		srcList = append(srcList, s)
	}
	sort.Strings(srcList)

	components := append([]string{}, inc.AffectedComponents...)
	sort.Strings(components)

	h := sha256.New()
	h.Write([]byte(inc.Service))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(srcList, ",")))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(components, ",")))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// Merge folds a candidate's evidence into a live incident with the same
// fingerprint: duplicate_count increments, severity only escalates, and the
// snapshot and component set grow by union. The candidate is discarded.
func Merge(live *models.Incident, candidate *models.Incident) {
	live.DuplicateCount++
	live.Severity = models.MaxSeverity(live.Severity, candidate.Severity)

	seen := make(map[string]bool, len(live.AffectedComponents))
	for _, c := range live.AffectedComponents {
		seen[c] = true
	}
	for _, c := range candidate.AffectedComponents {
		if !seen[c] {
			live.AffectedComponents = append(live.AffectedComponents, c)
			seen[c] = true
		}
	}
	sort.Strings(live.AffectedComponents)

	if live.MetricsSnapshot == nil {
		live.MetricsSnapshot = make(map[string]float64)
	}
	for k, v := range candidate.MetricsSnapshot {
		live.MetricsSnapshot[k] = v
	}
	live.Signals = append(live.Signals, candidate.Signals...)
}

func prune(signals []models.Signal, cutoff time.Time) []models.Signal {
	out := signals[:0]
	for _, s := range signals {
		if !s.Timestamp.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

func sourceCount(signals []models.Signal) int {
	seen := make(map[models.SignalSource]bool)
	for _, s := range signals {
		seen[s.Source] = true
	}
	return len(seen)
}
