package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/LerianStudio/lib-syncore/syncore/eventstream"
)

// ErrStreamRequired is returned when a position store has no stream key.
var ErrStreamRequired = errors.New("postgres position stream key is required")

// PositionStore keeps one poller position per stream key.
type PositionStore struct {
	db     *sql.DB
	stream string
}

var _ eventstream.PositionStore = (*PositionStore)(nil)

func NewPositionStore(conn *Connection, stream string) (*PositionStore, error) {
	if conn == nil || conn.Primary() == nil {
		return nil, ErrConnectionRequired
	}

	stream = strings.TrimSpace(stream)
	if stream == "" {
		return nil, ErrStreamRequired
	}

	return &PositionStore{db: conn.Primary(), stream: stream}, nil
}

func (s *PositionStore) TransitionedTo(ctx context.Context, uri string) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO syncore_positions (stream, uri) VALUES ($1, $2)
		 ON CONFLICT (stream) DO UPDATE SET uri = EXCLUDED.uri, updated_at = now()`,
		s.stream, uri,
	); err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}

	return nil
}

func (s *PositionStore) Latest(ctx context.Context) (string, bool, error) {
	var uri string

	err := s.db.QueryRowContext(ctx,
		`SELECT uri FROM syncore_positions WHERE stream = $1`, s.stream,
	).Scan(&uri)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("select position: %w", err)
	}

	return uri, uri != "", nil
}
