package outcome

// Package outcome persists the learning loop's append-only records:
// confidence outcomes and operator feedback, one JSON document per line.
// Files are never rewritten; aggregates are recomputed on read.

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/kkrriders/airra/internal/models"
)

// Store appends confidence-outcome records to a JSONL file.
type Store struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// NewStore opens (or creates) the outcomes file for appending.
func NewStore(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open outcomes store: %w", err)
	}
	return &Store{path: path, f: f}, nil
}

// Append writes one record as a single line. Concurrent appenders are
// serialized so lines never interleave.
func (s *Store) Append(rec models.ConfidenceOutcomeRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append outcome: %w", err)
	}
	return nil
}

// ReadAll parses every record in the file. Malformed lines are skipped, not
// fatal: a torn final line from a crash must not poison the whole store.
func (s *Store) ReadAll() ([]models.ConfidenceOutcomeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []models.ConfidenceOutcomeRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec models.ConfidenceOutcomeRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, scanner.Err()
}

// Sync flushes buffered writes to disk.
func (s *Store) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Sync()
}

// Close closes the underlying file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// CategoryStats is the per-category success aggregate used for prior
// overrides.
type CategoryStats struct {
	Total     int
	Successes int
}

// SuccessRate returns successes/total; zero for an empty aggregate.
func (c CategoryStats) SuccessRate() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Successes) / float64(c.Total)
}

// CategorySuccessRates aggregates executed records per hypothesis category.
// SUCCESS and PARTIAL_SUCCESS both count as success.
func (s *Store) CategorySuccessRates() (map[models.HypothesisCategory]CategoryStats, error) {
	records, err := s.ReadAll()
	if err != nil {
		return nil, err
	}
	out := make(map[models.HypothesisCategory]CategoryStats)
	for _, rec := range records {
		if !rec.Executed {
			continue
		}
		st := out[rec.Category]
		st.Total++
		if rec.Outcome == models.OutcomeSuccess || rec.Outcome == models.OutcomePartialSuccess {
			st.Successes++
		}
		out[rec.Category] = st
	}
	return out, nil
}
