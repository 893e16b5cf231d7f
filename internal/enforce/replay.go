package enforce

import (
	"context"
	"sync"
	"time"

	"github.com/gosuda/warden/internal/domain"
)

// MemoryReplayStore implements domain.ReplayStore in process memory. The
// mutex makes the check-and-insert a single atomic operation; there is no
// read-then-write window for two presentations of one token to slip through.
// Single-node only; multi-node deployments use the redis-backed store.
type MemoryReplayStore struct {
	mu       sync.Mutex
	consumed map[string]domain.ReplayRecord
}

// NewMemoryReplayStore creates an empty replay store.
func NewMemoryReplayStore() *MemoryReplayStore {
	return &MemoryReplayStore{consumed: make(map[string]domain.ReplayRecord)}
}

// Consume marks jti consumed. Returns true exactly once per jti.
func (s *MemoryReplayStore) Consume(_ context.Context, jti string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.consumed[jti]; exists {
		return false, nil
	}
	s.consumed[jti] = domain.ReplayRecord{JTI: jti, ConsumedAt: at}
	return true, nil
}

// Record returns the consumption record for jti, if any.
func (s *MemoryReplayStore) Record(jti string) (domain.ReplayRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.consumed[jti]
	return r, ok
}
