package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/LerianStudio/lib-syncore/syncore/outbox"
)

// CommandRepository is an outbox.Repository on a Redis list. Commands are
// pushed to the right and consumed from the left.
type CommandRepository struct {
	client redis.UniversalClient
	key    string
}

var _ outbox.Repository = (*CommandRepository)(nil)

func NewCommandRepository(client redis.UniversalClient, queue string, opts ...Option) (*CommandRepository, error) {
	queue, err := checkArgs(client, queue)
	if err != nil {
		return nil, err
	}

	return &CommandRepository{client: client, key: newKeys(opts).key("commands", queue)}, nil
}

func (r *CommandRepository) Add(ctx context.Context, cmd outbox.Command) error {
	if len(cmd.Payload) == 0 {
		cmd.Payload = json.RawMessage(`{}`)
	}

	encoded, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}

	if err := r.client.RPush(ctx, r.key, encoded).Err(); err != nil {
		return fmt.Errorf("push command: %w", err)
	}

	return nil
}

func (r *CommandRepository) First(ctx context.Context) (*outbox.Command, error) {
	raw, err := r.client.LIndex(ctx, r.key, 0).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("read first command: %w", err)
	}

	var cmd outbox.Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return nil, fmt.Errorf("%w: decode command: %w", outbox.ErrCorruptCommand, err)
	}

	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", outbox.ErrCorruptCommand, err)
	}

	return &cmd, nil
}

func (r *CommandRepository) RemoveFirst(ctx context.Context) error {
	if err := r.client.LPop(ctx, r.key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("pop command: %w", err)
	}

	return nil
}

// Len counts queued commands.
func (r *CommandRepository) Len(ctx context.Context) (int64, error) {
	n, err := r.client.LLen(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("count commands: %w", err)
	}

	return n, nil
}
