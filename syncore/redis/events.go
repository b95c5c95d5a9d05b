package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/LerianStudio/lib-syncore/syncore/eventstream"
)

type storedEvent struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message"`
}

// EventLog is an eventstream.Log on a Redis list; an event's id is its index.
type EventLog struct {
	client redis.UniversalClient
	key    string
}

var _ eventstream.Log = (*EventLog)(nil)

func NewEventLog(client redis.UniversalClient, stream string, opts ...Option) (*EventLog, error) {
	stream, err := checkArgs(client, stream)
	if err != nil {
		return nil, err
	}

	return &EventLog{client: client, key: newKeys(opts).key("events", stream)}, nil
}

// Append relies on RPUSH returning the new length, which makes id assignment
// atomic without a transaction.
func (l *EventLog) Append(ctx context.Context, eventType string, message json.RawMessage) (eventstream.StoredEvent, error) {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return eventstream.StoredEvent{}, eventstream.ErrEventTypeRequired
	}

	if len(message) == 0 {
		message = json.RawMessage(`{}`)
	}

	encoded, err := json.Marshal(storedEvent{Type: eventType, Message: message})
	if err != nil {
		return eventstream.StoredEvent{}, fmt.Errorf("encode event: %w", err)
	}

	length, err := l.client.RPush(ctx, l.key, encoded).Result()
	if err != nil {
		return eventstream.StoredEvent{}, fmt.Errorf("push event: %w", err)
	}

	return eventstream.StoredEvent{
		ID:      length - 1,
		Type:    eventType,
		Message: append(json.RawMessage(nil), message...),
	}, nil
}

func (l *EventLog) Get(ctx context.Context, id int64) (eventstream.StoredEvent, bool, error) {
	if id < 0 {
		return eventstream.StoredEvent{}, false, nil
	}

	raw, err := l.client.LIndex(ctx, l.key, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return eventstream.StoredEvent{}, false, nil
	}

	if err != nil {
		return eventstream.StoredEvent{}, false, fmt.Errorf("read event: %w", err)
	}

	var stored storedEvent
	if err := json.Unmarshal(raw, &stored); err != nil {
		return eventstream.StoredEvent{}, false, fmt.Errorf("decode event: %w", err)
	}

	return eventstream.StoredEvent{ID: id, Type: stored.Type, Message: stored.Message}, true, nil
}

func (l *EventLog) Len(ctx context.Context) (int64, error) {
	n, err := l.client.LLen(ctx, l.key).Result()
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}

	return n, nil
}
