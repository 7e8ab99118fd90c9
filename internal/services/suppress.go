package services

import (
	"sync"
	"time"

	"health-service/internal/models"
)

type suppressKey struct {
	machineID string
	category  models.Category
	severity  models.Severity
}

// Suppressor drops a candidate when an alert with the same device, category
// and severity was persisted within the window. It wraps the evaluator's
// output and never changes what the evaluator returns. A zero window
// disables it.
type Suppressor struct {
	window time.Duration
	mu     sync.Mutex
	last   map[suppressKey]time.Time
}

func NewSuppressor(window time.Duration) *Suppressor {
	return &Suppressor{window: window, last: make(map[suppressKey]time.Time)}
}

// Filter returns the candidates that may be raised at now and how many were dropped.
func (s *Suppressor) Filter(machineID string, cands []models.AlertCandidate, now time.Time) ([]models.AlertCandidate, int) {
	if s == nil || s.window <= 0 || len(cands) == 0 {
		return cands, 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]models.AlertCandidate, 0, len(cands))
	for _, c := range cands {
		at, seen := s.last[suppressKey{machineID, c.Category, c.Severity}]
		if seen && now.Sub(at) < s.window {
			continue
		}
		kept = append(kept, c)
	}
	return kept, len(cands) - len(kept)
}

// Record notes alerts that were actually persisted. Call only after a successful write.
func (s *Suppressor) Record(alerts []models.Alert) {
	if s == nil || s.window <= 0 || len(alerts) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range alerts {
		s.last[suppressKey{a.MachineID, a.Category, a.Severity}] = a.Timestamp
	}
	s.prune(alerts[len(alerts)-1].Timestamp)
}

// prune drops entries that can no longer suppress anything. Callers hold mu.
func (s *Suppressor) prune(now time.Time) {
	if len(s.last) < 1024 {
		return
	}
	for k, at := range s.last {
		if now.Sub(at) >= s.window {
			delete(s.last, k)
		}
	}
}
