package eventstream

import (
	"context"
	"sync"
)

// PositionStore persists the URI of the last event handed to the consumer.
type PositionStore interface {
	// TransitionedTo records uri as the latest delivered position.
	TransitionedTo(ctx context.Context, uri string) error
	// Latest returns the recorded position, if any.
	Latest(ctx context.Context) (string, bool, error)
}

// NopPositionStore remembers nothing; pollers always start from their initial URI.
type NopPositionStore struct{}

func (NopPositionStore) TransitionedTo(context.Context, string) error { return nil }

func (NopPositionStore) Latest(context.Context) (string, bool, error) { return "", false, nil }

// MemoryPositionStore keeps the position in process memory.
type MemoryPositionStore struct {
	mu     sync.RWMutex
	latest string
}

// NewMemoryPositionStore returns a store seeded with latest, which may be empty.
func NewMemoryPositionStore(latest string) *MemoryPositionStore {
	return &MemoryPositionStore{latest: latest}
}

func (s *MemoryPositionStore) TransitionedTo(_ context.Context, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latest = uri

	return nil
}

func (s *MemoryPositionStore) Latest(_ context.Context) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.latest, s.latest != "", nil
}
