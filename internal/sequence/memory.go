package sequence

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store for tests and single-node development.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]int64
}

// NewMemoryStore creates an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]int64)}
}

// Increment atomically bumps and returns the counter.
func (s *MemoryStore) Increment(_ context.Context, senderID string, counter Counter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := senderID + "/" + string(counter)
	s.values[key]++
	return s.values[key], nil
}

// Seed sets a counter's last-issued value, for tests exercising wraparound.
func (s *MemoryStore) Seed(senderID string, counter Counter, value int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[senderID+"/"+string(counter)] = value
}
