package history

import (
	"sort"
	"sync"
	"time"

	"labmonitor/internal/models"
)

// Store keeps a bounded, chronological run of probe results per service.
// When a service's run exceeds the cap the oldest results are evicted first.
type Store struct {
	mu      sync.RWMutex
	maxSize int
	entries map[string][]models.HealthResult
}

// NewStore creates a store that keeps at most maxSize results per service.
func NewStore(maxSize int) *Store {
	if maxSize <= 0 {
		maxSize = 50
	}
	return &Store{
		maxSize: maxSize,
		entries: make(map[string][]models.HealthResult),
	}
}

// MaxSize returns the per-service cap.
func (s *Store) MaxSize() int { return s.maxSize }

// Append records a result at the tail of its service's run.
func (s *Store) Append(result models.HealthResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := append(s.entries[result.ServiceID], result)
	if len(run) > s.maxSize {
		run = run[len(run)-s.maxSize:]
	}
	s.entries[result.ServiceID] = run
}

// For returns a copy of the recorded run for one service, oldest first.
func (s *Store) For(serviceID string) []models.HealthResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run := s.entries[serviceID]
	if len(run) == 0 {
		return nil
	}
	out := make([]models.HealthResult, len(run))
	copy(out, run)
	return out
}

// Since returns results for a service whose timestamp is >= cutoff.
func (s *Store) Since(serviceID string, cutoff time.Time) []models.HealthResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run := s.entries[serviceID]
	if len(run) == 0 {
		return nil
	}
	if cutoff.IsZero() {
		out := make([]models.HealthResult, len(run))
		copy(out, run)
		return out
	}

	idx := sort.Search(len(run), func(i int) bool {
		return !run[i].Timestamp.Before(cutoff)
	})
	if idx >= len(run) {
		return nil
	}
	out := make([]models.HealthResult, len(run)-idx)
	copy(out, run[idx:])
	return out
}

// All returns a copy of every recorded run keyed by service id.
func (s *Store) All() map[string][]models.HealthResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]models.HealthResult, len(s.entries))
	for id, run := range s.entries {
		copied := make([]models.HealthResult, len(run))
		copy(copied, run)
		out[id] = copied
	}
	return out
}

// Clear drops all recorded history.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string][]models.HealthResult)
}
