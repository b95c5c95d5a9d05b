package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bxcodec/dbresolver/v2"
	_ "github.com/jackc/pgx/v5/stdlib"

	libLog "github.com/LerianStudio/lib-syncore/syncore/log"
)

const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
)

var (
	ErrConnectionRequired = errors.New("postgres connection is required")
	ErrPrimaryDSNRequired = errors.New("postgres primary dsn is required")

	dbOpenFn = sql.Open

	connectionStringCredentialsPattern = regexp.MustCompile(`://[^@\s]+@`)
	connectionStringPasswordPattern    = regexp.MustCompile(`(?i)(password=)([^\s&]+)`)
)

// Config describes how to reach PostgreSQL.
type Config struct {
	PrimaryDSN string
	// ReplicaDSN serves event log reads. Defaults to PrimaryDSN.
	ReplicaDSN         string
	MaxOpenConnections int
	MaxIdleConnections int
	// SkipMigrations leaves the schema untouched.
	SkipMigrations bool
	Logger         libLog.Logger
}

func (cfg *Config) normalize() {
	cfg.PrimaryDSN = strings.TrimSpace(cfg.PrimaryDSN)
	cfg.ReplicaDSN = strings.TrimSpace(cfg.ReplicaDSN)

	if cfg.ReplicaDSN == "" {
		cfg.ReplicaDSN = cfg.PrimaryDSN
	}

	if cfg.MaxOpenConnections <= 0 {
		cfg.MaxOpenConnections = defaultMaxOpenConns
	}

	if cfg.MaxIdleConnections <= 0 {
		cfg.MaxIdleConnections = defaultMaxIdleConns
	}

	cfg.Logger = libLog.OrNop(cfg.Logger)
}

// Connection holds the primary pool and the read resolver.
type Connection struct {
	primary  *sql.DB
	resolver dbresolver.DB
	logger   libLog.Logger
}

// Open connects, migrates unless disabled, and pings the database.
func Open(ctx context.Context, cfg Config) (*Connection, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg.normalize()

	if cfg.PrimaryDSN == "" {
		return nil, ErrPrimaryDSNRequired
	}

	primary, err := openPool(cfg.PrimaryDSN, cfg)
	if err != nil {
		return nil, fmt.Errorf("open primary database: %s", sanitizeSensitiveError(err))
	}

	replica, err := openPool(cfg.ReplicaDSN, cfg)
	if err != nil {
		_ = primary.Close()

		return nil, fmt.Errorf("open replica database: %s", sanitizeSensitiveError(err))
	}

	conn := &Connection{
		primary: primary,
		resolver: dbresolver.New(
			dbresolver.WithPrimaryDBs(primary),
			dbresolver.WithReplicaDBs(replica),
			dbresolver.WithLoadBalancer(dbresolver.RoundRobinLB),
		),
		logger: cfg.Logger,
	}

	if err := conn.resolver.PingContext(ctx); err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("ping database: %s", sanitizeSensitiveError(err))
	}

	if !cfg.SkipMigrations {
		if err := Migrate(ctx, cfg.PrimaryDSN, cfg.Logger); err != nil {
			_ = conn.Close()

			return nil, err
		}
	}

	cfg.Logger.Log(ctx, libLog.LevelInfo, "connected to postgres")

	return conn, nil
}

func openPool(dsn string, cfg Config) (*sql.DB, error) {
	db, err := dbOpenFn("pgx", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	return db, nil
}

// Primary returns the write pool.
func (c *Connection) Primary() *sql.DB {
	if c == nil {
		return nil
	}

	return c.primary
}

// Resolver returns the primary/replica resolver used for event log reads.
//
//nolint:ireturn
func (c *Connection) Resolver() dbresolver.DB {
	if c == nil {
		return nil
	}

	return c.resolver
}

// Close releases both pools.
func (c *Connection) Close() error {
	if c == nil || c.resolver == nil {
		return nil
	}

	return c.resolver.Close()
}

func sanitizeSensitiveError(err error) string {
	if err == nil {
		return ""
	}

	sanitized := connectionStringCredentialsPattern.ReplaceAllString(err.Error(), "://***@")

	return connectionStringPasswordPattern.ReplaceAllString(sanitized, "${1}***")
}
