package approval

// Package approval decides who authorizes a selected action and enforces
// the per-action-type daily rate limits behind that decision.

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kkrriders/airra/internal/models"
)

// Counters tracks auto-executions per action type for the current UTC day.
// State is persisted only at the day boundary; losing a partial day is
// acceptable because the gate fails open toward requiring approval.
type Counters struct {
	mu       sync.Mutex
	path     string
	logger   *zap.Logger
	day      string // UTC date, 2006-01-02
	counts   map[models.ActionType]int
	degraded bool // persisted state existed but could not be restored
	nowFn    func() time.Time
}

type countersFile struct {
	Day    string                    `json:"day"`
	Counts map[models.ActionType]int `json:"counts"`
}

// NewCounters restores today's counts from path when a snapshot for today
// exists. A missing file starts clean; an unreadable one marks the counters
// degraded until the next UTC reset.
func NewCounters(path string, logger *zap.Logger) *Counters {
	c := &Counters{
		path:   path,
		logger: logger,
		counts: make(map[models.ActionType]int),
		nowFn:  time.Now,
	}
	c.day = c.today()

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c
	}
	if err != nil {
		logger.Warn("daily counters unreadable, requiring approval until next reset", zap.Error(err))
		c.degraded = true
		return c
	}
	var f countersFile
	if err := json.Unmarshal(raw, &f); err != nil {
		logger.Warn("daily counters corrupt, requiring approval until next reset", zap.Error(err))
		c.degraded = true
		return c
	}
	if f.Day == c.day {
		c.counts = f.Counts
		if c.counts == nil {
			c.counts = make(map[models.ActionType]int)
		}
	}
	return c
}

// Increment records one auto-execution of an action type.
func (c *Counters) Increment(t models.ActionType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollLocked()
	c.counts[t]++
}

// Count returns today's execution count for an action type.
func (c *Counters) Count(t models.ActionType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollLocked()
	return c.counts[t]
}

// Degraded reports whether restored state was lost; the gate treats this as
// the rate limit being approached.
func (c *Counters) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollLocked()
	return c.degraded
}

// rollLocked resets the counts when the UTC day has changed, persisting the
// finished day first.
func (c *Counters) rollLocked() {
	today := c.today()
	if today == c.day {
		return
	}
	c.persistLocked()
	c.day = today
	c.counts = make(map[models.ActionType]int)
	c.degraded = false
}

func (c *Counters) persistLocked() {
	if c.path == "" {
		return
	}
	raw, err := json.Marshal(countersFile{Day: c.day, Counts: c.counts})
	if err != nil {
		return
	}
	if err := os.WriteFile(c.path, raw, 0o644); err != nil {
		c.logger.Warn("persisting daily counters failed", zap.Error(err))
	}
}

func (c *Counters) today() string {
	return c.nowFn().UTC().Format("2006-01-02")
}
