package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/LerianStudio/lib-syncore/syncore/outbox"
)

// DefaultQueue is the queue name used when none is configured.
const DefaultQueue = "default"

// CommandRepository is an outbox.Repository backed by the syncore_commands
// table. Several clients may share the table under distinct queue names.
type CommandRepository struct {
	db    *sql.DB
	queue string
}

var _ outbox.Repository = (*CommandRepository)(nil)

// NewCommandRepository returns a repository on conn's primary pool.
func NewCommandRepository(conn *Connection, queue string) (*CommandRepository, error) {
	if conn == nil || conn.Primary() == nil {
		return nil, ErrConnectionRequired
	}

	queue = strings.TrimSpace(queue)
	if queue == "" {
		queue = DefaultQueue
	}

	return &CommandRepository{db: conn.Primary(), queue: queue}, nil
}

func (r *CommandRepository) Add(ctx context.Context, cmd outbox.Command) error {
	payload := cmd.Payload
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}

	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO syncore_commands (queue, name, payload) VALUES ($1, $2, $3)`,
		r.queue, cmd.Name, string(payload),
	); err != nil {
		return fmt.Errorf("insert command: %w", err)
	}

	return nil
}

func (r *CommandRepository) First(ctx context.Context) (*outbox.Command, error) {
	var (
		name    string
		payload []byte
	)

	err := r.db.QueryRowContext(ctx,
		`SELECT name, payload FROM syncore_commands WHERE queue = $1 ORDER BY seq LIMIT 1`,
		r.queue,
	).Scan(&name, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("select first command: %w", err)
	}

	return &outbox.Command{Name: name, Payload: payload}, nil
}

func (r *CommandRepository) RemoveFirst(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM syncore_commands
		 WHERE seq = (SELECT seq FROM syncore_commands WHERE queue = $1 ORDER BY seq LIMIT 1)`,
		r.queue,
	); err != nil {
		return fmt.Errorf("delete first command: %w", err)
	}

	return nil
}

// Len counts queued commands.
func (r *CommandRepository) Len(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM syncore_commands WHERE queue = $1`, r.queue,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count commands: %w", err)
	}

	return n, nil
}
