package eventstream

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
)

// ErrEventTypeRequired is returned when appending an event without a type.
var ErrEventTypeRequired = errors.New("eventstream event type is required")

// StoredEvent is an entry of a server-side event log. IDs start at zero and
// grow by one per append.
type StoredEvent struct {
	ID      int64
	Type    string
	Message json.RawMessage
}

// Log is the append-only store a server exposes as an event stream.
type Log interface {
	Append(ctx context.Context, eventType string, message json.RawMessage) (StoredEvent, error)
	Get(ctx context.Context, id int64) (StoredEvent, bool, error)
	Len(ctx context.Context) (int64, error)
}

// MemoryLog is a process-local Log.
type MemoryLog struct {
	mu     sync.RWMutex
	events []StoredEvent
}

// NewMemoryLog returns an empty log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) Append(_ context.Context, eventType string, message json.RawMessage) (StoredEvent, error) {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return StoredEvent{}, ErrEventTypeRequired
	}

	if len(message) == 0 {
		message = json.RawMessage(`{}`)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	event := StoredEvent{
		ID:      int64(len(l.events)),
		Type:    eventType,
		Message: append(json.RawMessage(nil), message...),
	}
	l.events = append(l.events, event)

	return event, nil
}

func (l *MemoryLog) Get(_ context.Context, id int64) (StoredEvent, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if id < 0 || id >= int64(len(l.events)) {
		return StoredEvent{}, false, nil
	}

	return l.events[id], true, nil
}

func (l *MemoryLog) Len(_ context.Context) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return int64(len(l.events)), nil
}
