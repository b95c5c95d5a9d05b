package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/LerianStudio/lib-syncore/syncore/eventstream"
)

// PositionStore keeps a poller position in a plain string key.
type PositionStore struct {
	client redis.UniversalClient
	key    string
}

var _ eventstream.PositionStore = (*PositionStore)(nil)

func NewPositionStore(client redis.UniversalClient, stream string, opts ...Option) (*PositionStore, error) {
	stream, err := checkArgs(client, stream)
	if err != nil {
		return nil, err
	}

	return &PositionStore{client: client, key: newKeys(opts).key("position", stream)}, nil
}

func (s *PositionStore) TransitionedTo(ctx context.Context, uri string) error {
	if err := s.client.Set(ctx, s.key, uri, 0).Err(); err != nil {
		return fmt.Errorf("store position: %w", err)
	}

	return nil
}

func (s *PositionStore) Latest(ctx context.Context) (string, bool, error) {
	uri, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("read position: %w", err)
	}

	return uri, uri != "", nil
}
