// Package config loads syncd settings from an optional file and SYNCORE_
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SYNCORE_SERVER_ADDRESS.
const EnvPrefix = "SYNCORE"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is the full process configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Outbox   OutboxConfig   `mapstructure:"outbox"`
	Events   EventsConfig   `mapstructure:"events"`
	Storage  StorageConfig  `mapstructure:"storage"`
}

type LogConfig struct {
	Environment string `mapstructure:"environment" validate:"oneof=production staging development local"`
	Level       string `mapstructure:"level"`
	ServiceName string `mapstructure:"service_name"`
}

// ServerConfig controls the web API that serves commands and the event feed.
type ServerConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Address   string   `mapstructure:"address" validate:"required_if=Enabled true"`
	Protocol  string   `mapstructure:"protocol" validate:"oneof=no-content redirect"`
	HTTPSOnly bool     `mapstructure:"https_only"`
	Debug     bool     `mapstructure:"debug"`
	// Commands are accepted at POST /commands/{name} and journaled as events.
	Commands  []string `mapstructure:"commands" validate:"dive,required,excludesall=/?#"`
}

// UpstreamConfig points the outbox and poller at a remote server.
type UpstreamConfig struct {
	BaseURL string            `mapstructure:"base_url" validate:"omitempty,url"`
	Timeout time.Duration     `mapstructure:"timeout" validate:"gte=0"`
	Headers map[string]string `mapstructure:"headers"`
}

type OutboxConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Prefix          string        `mapstructure:"prefix"`
	Queue           string        `mapstructure:"queue"`
	ServerErrorStep time.Duration `mapstructure:"server_error_step" validate:"gte=0"`
	ClientErrorStep time.Duration `mapstructure:"client_error_step" validate:"gte=0"`
}

type EventsConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	InitialURI      string        `mapstructure:"initial_uri" validate:"required_if=Enabled true"`
	Stream          string        `mapstructure:"stream"`
	Protocol        string        `mapstructure:"protocol" validate:"oneof=no-content redirect"`
	WaitingInterval time.Duration `mapstructure:"waiting_interval" validate:"gte=0"`
	ServerErrorStep time.Duration `mapstructure:"server_error_step" validate:"gte=0"`
	ClientErrorStep time.Duration `mapstructure:"client_error_step" validate:"gte=0"`
	// LeaseTTL guards the stream with a Redis lease when storage is redis.
	LeaseTTL time.Duration `mapstructure:"lease_ttl" validate:"gte=0"`
}

type StorageConfig struct {
	Type     string         `mapstructure:"type" validate:"oneof=memory postgres redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	PrimaryDSN     string `mapstructure:"primary_dsn"`
	ReplicaDSN     string `mapstructure:"replica_dsn"`
	MaxOpen        int    `mapstructure:"max_open" validate:"gte=0"`
	MaxIdle        int    `mapstructure:"max_idle" validate:"gte=0"`
	SkipMigrations bool   `mapstructure:"skip_migrations"`
}

type RedisConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	DB        int      `mapstructure:"db" validate:"gte=0"`
	KeyPrefix string   `mapstructure:"key_prefix"`
}

var (
	ErrPostgresDSNRequired    = errors.New("config: storage.postgres.primary_dsn is required for postgres storage")
	ErrRedisAddressRequired   = errors.New("config: storage.redis.addresses is required for redis storage")
	ErrUpstreamBaseURLMissing = errors.New("config: upstream.base_url is required when outbox or events are enabled")
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.environment", "production")
	v.SetDefault("log.level", "")
	v.SetDefault("log.service_name", "syncd")

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.protocol", "redirect")
	v.SetDefault("server.https_only", true)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.commands", []string{})

	v.SetDefault("upstream.base_url", "")
	v.SetDefault("upstream.timeout", "30s")

	v.SetDefault("outbox.enabled", false)
	v.SetDefault("outbox.prefix", "/commands")
	v.SetDefault("outbox.queue", "default")
	v.SetDefault("outbox.server_error_step", "5s")
	v.SetDefault("outbox.client_error_step", "10s")

	v.SetDefault("events.enabled", false)
	v.SetDefault("events.initial_uri", "/events")
	v.SetDefault("events.stream", "default")
	v.SetDefault("events.protocol", "redirect")
	v.SetDefault("events.waiting_interval", "500ms")
	v.SetDefault("events.server_error_step", "5s")
	v.SetDefault("events.client_error_step", "10s")
	v.SetDefault("events.lease_ttl", "15s")

	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.postgres.primary_dsn", "")
	v.SetDefault("storage.postgres.replica_dsn", "")
	v.SetDefault("storage.postgres.max_open", 10)
	v.SetDefault("storage.postgres.max_idle", 5)
	v.SetDefault("storage.postgres.skip_migrations", false)
	v.SetDefault("storage.redis.addresses", []string{})
	v.SetDefault("storage.redis.username", "")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.key_prefix", "syncore")
}

// Load reads path when non-empty, applies SYNCORE_ environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path = strings.TrimSpace(path); path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	switch c.Storage.Type {
	case "postgres":
		if strings.TrimSpace(c.Storage.Postgres.PrimaryDSN) == "" {
			return ErrPostgresDSNRequired
		}
	case "redis":
		if len(c.Storage.Redis.Addresses) == 0 {
			return ErrRedisAddressRequired
		}
	}

	if (c.Outbox.Enabled || c.Events.Enabled) && strings.TrimSpace(c.Upstream.BaseURL) == "" {
		return ErrUpstreamBaseURLMissing
	}

	return nil
}
