package outcome

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/kkrriders/airra/internal/models"
)

// FeedbackStore appends operator feedback to a JSONL file, same discipline
// as the outcomes store.
type FeedbackStore struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// NewFeedbackStore opens (or creates) the feedback file for appending.
func NewFeedbackStore(path string) (*FeedbackStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open feedback store: %w", err)
	}
	return &FeedbackStore{path: path, f: f}, nil
}

// Append writes one feedback entry as a single line.
func (s *FeedbackStore) Append(fb models.OperatorFeedback) error {
	line, err := json.Marshal(fb)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append feedback: %w", err)
	}
	return nil
}

// ForIncident returns every feedback entry recorded against an incident.
func (s *FeedbackStore) ForIncident(incidentID string) ([]models.OperatorFeedback, error) {
	all, err := s.ReadAll()
	if err != nil {
		return nil, err
	}
	var out []models.OperatorFeedback
	for _, fb := range all {
		if fb.IncidentID == incidentID {
			out = append(out, fb)
		}
	}
	return out, nil
}

// ReadAll parses every feedback entry; malformed lines are skipped.
func (s *FeedbackStore) ReadAll() ([]models.OperatorFeedback, error) {
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

	var out []models.OperatorFeedback
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var fb models.OperatorFeedback
		if err := json.Unmarshal(scanner.Bytes(), &fb); err != nil {
			continue
		}
		out = append(out, fb)
	}
	return out, scanner.Err()
}

// Close closes the underlying file.
func (s *FeedbackStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
