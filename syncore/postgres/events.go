package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bxcodec/dbresolver/v2"

	"github.com/LerianStudio/lib-syncore/syncore/eventstream"
)

// EventLog is an eventstream.Log on the syncore_events table. Appends go to
// the primary; reads are balanced across replicas.
type EventLog struct {
	primary *sql.DB
	reads   dbresolver.DB
}

var _ eventstream.Log = (*EventLog)(nil)

func NewEventLog(conn *Connection) (*EventLog, error) {
	if conn == nil || conn.Primary() == nil || conn.Resolver() == nil {
		return nil, ErrConnectionRequired
	}

	return &EventLog{primary: conn.Primary(), reads: conn.Resolver()}, nil
}

// Append assigns the next dense id under a table lock so that a rolled back
// insert never leaves a hole in the chain.
func (l *EventLog) Append(ctx context.Context, eventType string, message json.RawMessage) (event eventstream.StoredEvent, err error) {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return eventstream.StoredEvent{}, eventstream.ErrEventTypeRequired
	}

	if len(message) == 0 {
		message = json.RawMessage(`{}`)
	}

	tx, err := l.primary.BeginTx(ctx, nil)
	if err != nil {
		return eventstream.StoredEvent{}, fmt.Errorf("begin append: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `LOCK TABLE syncore_events IN EXCLUSIVE MODE`); err != nil {
		return eventstream.StoredEvent{}, fmt.Errorf("lock events: %w", err)
	}

	var id int64
	if err = tx.QueryRowContext(ctx,
		`INSERT INTO syncore_events (id, type, message)
		 SELECT COALESCE(MAX(id) + 1, 0), $1, $2 FROM syncore_events
		 RETURNING id`,
		eventType, string(message),
	).Scan(&id); err != nil {
		return eventstream.StoredEvent{}, fmt.Errorf("insert event: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return eventstream.StoredEvent{}, fmt.Errorf("commit append: %w", err)
	}

	return eventstream.StoredEvent{
		ID:      id,
		Type:    eventType,
		Message: append(json.RawMessage(nil), message...),
	}, nil
}

func (l *EventLog) Get(ctx context.Context, id int64) (eventstream.StoredEvent, bool, error) {
	if id < 0 {
		return eventstream.StoredEvent{}, false, nil
	}

	var (
		eventType string
		message   []byte
	)

	err := l.reads.QueryRowContext(ctx,
		`SELECT type, message FROM syncore_events WHERE id = $1`, id,
	).Scan(&eventType, &message)
	if errors.Is(err, sql.ErrNoRows) {
		return eventstream.StoredEvent{}, false, nil
	}

	if err != nil {
		return eventstream.StoredEvent{}, false, fmt.Errorf("select event: %w", err)
	}

	return eventstream.StoredEvent{ID: id, Type: eventType, Message: message}, true, nil
}

func (l *EventLog) Len(ctx context.Context) (int64, error) {
	var n int64
	if err := l.reads.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(id) + 1, 0) FROM syncore_events`,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}

	return n, nil
}
