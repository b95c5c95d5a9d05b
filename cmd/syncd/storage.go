package main

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/LerianStudio/lib-syncore/syncore/config"
	"github.com/LerianStudio/lib-syncore/syncore/eventstream"
	libLog "github.com/LerianStudio/lib-syncore/syncore/log"
	"github.com/LerianStudio/lib-syncore/syncore/outbox"
	"github.com/LerianStudio/lib-syncore/syncore/postgres"
	"github.com/LerianStudio/lib-syncore/syncore/redis"
)

// storage bundles the backends selected by storage.type.
type storage struct {
	commands  outbox.Repository
	positions eventstream.PositionStore
	events    eventstream.Log
	lease     *redis.Lease
	closers   []func() error
}

func (s *storage) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

func openStorage(ctx context.Context, cfg *config.Config, logger libLog.Logger) (*storage, error) {
	switch cfg.Storage.Type {
	case "postgres":
		return openPostgres(ctx, cfg, logger)
	case "redis":
		return openRedis(ctx, cfg, logger)
	default:
		return &storage{
			commands:  outbox.NewMemoryRepository(),
			positions: eventstream.NewMemoryPositionStore(""),
			events:    eventstream.NewMemoryLog(),
		}, nil
	}
}

func openPostgres(ctx context.Context, cfg *config.Config, logger libLog.Logger) (*storage, error) {
	pg := cfg.Storage.Postgres

	conn, err := postgres.Open(ctx, postgres.Config{
		PrimaryDSN:         pg.PrimaryDSN,
		ReplicaDSN:         pg.ReplicaDSN,
		MaxOpenConnections: pg.MaxOpen,
		MaxIdleConnections: pg.MaxIdle,
		SkipMigrations:     pg.SkipMigrations,
		Logger:             logger,
	})
	if err != nil {
		return nil, err
	}

	s := &storage{closers: []func() error{conn.Close}}

	if s.commands, err = postgres.NewCommandRepository(conn, cfg.Outbox.Queue); err != nil {
		s.Close()
		return nil, err
	}

	if s.positions, err = postgres.NewPositionStore(conn, cfg.Events.Stream); err != nil {
		s.Close()
		return nil, err
	}

	if s.events, err = postgres.NewEventLog(conn); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

func openRedis(ctx context.Context, cfg *config.Config, logger libLog.Logger) (*storage, error) {
	rc := cfg.Storage.Redis

	client, err := redis.Connect(ctx, redis.Config{
		Addresses: rc.Addresses,
		Username:  rc.Username,
		Password:  rc.Password,
		DB:        rc.DB,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	s := &storage{closers: []func() error{client.Close}}

	if err := s.bindRedis(client, cfg, logger); err != nil {
		s.Close()
		return nil, fmt.Errorf("redis storage: %w", err)
	}

	return s, nil
}

func (s *storage) bindRedis(client goredis.UniversalClient, cfg *config.Config, logger libLog.Logger) error {
	prefix := redis.WithKeyPrefix(cfg.Storage.Redis.KeyPrefix)

	var err error

	if s.commands, err = redis.NewCommandRepository(client, cfg.Outbox.Queue, prefix); err != nil {
		return err
	}

	if s.positions, err = redis.NewPositionStore(client, cfg.Events.Stream, prefix); err != nil {
		return err
	}

	if s.events, err = redis.NewEventLog(client, cfg.Events.Stream, prefix); err != nil {
		return err
	}

	if cfg.Events.Enabled && cfg.Events.LeaseTTL > 0 {
		if s.lease, err = redis.NewLease(client, cfg.Events.Stream, cfg.Events.LeaseTTL, logger, prefix); err != nil {
			return err
		}
	}

	return nil
}
