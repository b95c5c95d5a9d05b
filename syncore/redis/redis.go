package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	libLog "github.com/LerianStudio/lib-syncore/syncore/log"
)

// DefaultKeyPrefix namespaces every key written by this package.
const DefaultKeyPrefix = "syncore"

var (
	ErrClientRequired  = errors.New("redis client is required")
	ErrAddressRequired = errors.New("redis address is required")
	ErrNameRequired    = errors.New("redis key name is required")
)

// Config describes a standalone or cluster deployment.
type Config struct {
	Addresses    []string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       libLog.Logger
}

// Connect builds a universal client and pings it.
//
//nolint:ireturn
func Connect(ctx context.Context, cfg Config) (redis.UniversalClient, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	addrs := make([]string, 0, len(cfg.Addresses))
	for _, addr := range cfg.Addresses {
		if addr = strings.TrimSpace(addr); addr != "" {
			addrs = append(addrs, addr)
		}
	}

	if len(addrs) == 0 {
		return nil, ErrAddressRequired
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("ping redis: %w", err)
	}

	libLog.OrNop(cfg.Logger).Log(ctx, libLog.LevelInfo, "connected to redis", libLog.Int("addresses", len(addrs)))

	return client, nil
}

// Option customises key naming.
type Option func(*keys)

// WithKeyPrefix replaces DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(k *keys) {
		if prefix = strings.TrimSpace(prefix); prefix != "" {
			k.prefix = prefix
		}
	}
}

type keys struct {
	prefix string
}

func newKeys(opts []Option) keys {
	k := keys{prefix: DefaultKeyPrefix}

	for _, opt := range opts {
		if opt != nil {
			opt(&k)
		}
	}

	return k
}

func (k keys) key(kind, name string) string {
	return k.prefix + ":" + kind + ":" + name
}

func checkArgs(client redis.UniversalClient, name string) (string, error) {
	if client == nil {
		return "", ErrClientRequired
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrNameRequired
	}

	return name, nil
}
