package dedup

// Package dedup collapses repeated signals before correlation sees them.
//
// Responsibilities:
//   - Fingerprint each signal from service, canonical metric name, and
//     stable labels (volatile labels are stripped by configured regex)
//   - Suppress fingerprints already seen within the dedup window
//   - Bound memory with sharded LRU caches
//   - Track the compression ratio (seen/admitted)

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kkrriders/airra/internal/models"
)

const shardCount = 16

type entry struct {
	firstSeen time.Time
	count     int
}

type shard struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *entry]
}

// Table is the deduplication fingerprint table.
type Table struct {
	window   time.Duration
	volatile *regexp.Regexp // may be nil
	shards   [shardCount]*shard

	seen      atomic.Int64
	admitted  atomic.Int64
	nowFn     func() time.Time
}

// NewTable builds a table bounded at maxEntries across all shards.
// volatileLabelRegex may be empty; labels whose key matches are excluded
// from the fingerprint.
func NewTable(window time.Duration, maxEntries int, volatileLabelRegex string) (*Table, error) {
	var re *regexp.Regexp
	if volatileLabelRegex != "" {
		var err error
		re, err = regexp.Compile(volatileLabelRegex)
		if err != nil {
			return nil, fmt.Errorf("volatile label regex: %w", err)
		}
	}
	perShard := maxEntries / shardCount
	if perShard < 1 {
		perShard = 1
	}
	t := &Table{window: window, volatile: re, nowFn: time.Now}
	for i := range t.shards {
		cache, err := lru.New[string, *entry](perShard)
		if err != nil {
			return nil, err
		}
		t.shards[i] = &shard{cache: cache}
	}
	return t, nil
}

// Admit returns the signal when its fingerprint has not been seen within
// the window, and nil when it is a duplicate. Duplicates increment the
// stored count; SuppressedCount exposes how many were absorbed for a
// fingerprint before it expires.
func (t *Table) Admit(sig models.Signal) *models.Signal {
	t.seen.Add(1)
	fp := t.Fingerprint(sig)
	sh := t.shards[shardIndex(fp)]
	now := t.nowFn()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if e, ok := sh.cache.Get(fp); ok {
		if now.Sub(e.firstSeen) < t.window {
			e.count++
			return nil
		}
		// Window expired: the fingerprint starts a fresh cycle.
	}
	sh.cache.Add(fp, &entry{firstSeen: now, count: 1})
	t.admitted.Add(1)
	return &sig
}

// SuppressedCount returns how many occurrences the current window has
// absorbed for the signal's fingerprint, including the admitted one.
// Zero means the fingerprint is not tracked.
func (t *Table) SuppressedCount(sig models.Signal) int {
	fp := t.Fingerprint(sig)
	sh := t.shards[shardIndex(fp)]
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if e, ok := sh.cache.Get(fp); ok {
		return e.count
	}
	return 0
}

// Fingerprint computes the dedup key for a signal: service, canonical
// metric name, and the sorted stable labels.
func (t *Table) Fingerprint(sig models.Signal) string {
	var b strings.Builder
	b.WriteString(sig.Service)
	b.WriteByte('|')
	b.WriteString(canonicalMetric(sig.MetricName))

	if len(sig.Labels) > 0 {
		keys := make([]string, 0, len(sig.Labels))
		for k := range sig.Labels {
			if t.volatile != nil && t.volatile.MatchString(k) {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteByte('|')
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(sig.Labels[k])
		}
	}

	h := fnv.New64a()
	h.Write([]byte(b.String()))
	return fmt.Sprintf("%016x", h.Sum64())
}

// CompressionRatio returns seen/admitted; 1.0 until anything is suppressed.
func (t *Table) CompressionRatio() float64 {
	admitted := t.admitted.Load()
	if admitted == 0 {
		return 1.0
	}
	return float64(t.seen.Load()) / float64(admitted)
}

// Stats returns the raw seen/admitted counters.
func (t *Table) Stats() (seen, admitted int64) {
	return t.seen.Load(), t.admitted.Load()
}

func canonicalMetric(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func shardIndex(fp string) int {
	h := fnv.New32a()
	h.Write([]byte(fp))
	return int(h.Sum32() % shardCount)
}
