package outbox

import (
	"context"
	"sync"
)

// Repository is the durable FIFO behind the outbox. Implementations must be
// linearizable; the client never calls them concurrently with each other
// except for Add.
type Repository interface {
	// Add appends cmd to the tail.
	Add(ctx context.Context, cmd Command) error
	// First returns the head without removing it, or nil when empty.
	First(ctx context.Context) (*Command, error)
	// RemoveFirst discards the head.
	RemoveFirst(ctx context.Context) error
}

// MemoryRepository is a process-local Repository. It is not durable.
type MemoryRepository struct {
	mu       sync.Mutex
	commands []Command
}

// NewMemoryRepository returns an empty in-memory queue.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Add(_ context.Context, cmd Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.commands = append(r.commands, cmd.normalized())

	return nil
}

func (r *MemoryRepository) First(_ context.Context) (*Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.commands) == 0 {
		return nil, nil
	}

	head := r.commands[0].normalized()

	return &head, nil
}

func (r *MemoryRepository) RemoveFirst(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.commands) > 0 {
		r.commands = r.commands[1:]
	}

	return nil
}

// Len returns the number of queued commands.
func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.commands)
}
