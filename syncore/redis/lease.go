package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"

	libLog "github.com/LerianStudio/lib-syncore/syncore/log"
)

var (
	// ErrLeaseHeld is returned by TryAcquire when another owner holds the lease.
	ErrLeaseHeld = errors.New("redis lease is held by another owner")
	// ErrLeaseLost is returned by Extend or Release when the lease has expired.
	ErrLeaseLost = errors.New("redis lease was lost")
	// ErrLeaseTTLInvalid is returned for a non-positive TTL.
	ErrLeaseTTLInvalid = errors.New("redis lease ttl must be greater than 0")
)

// DefaultLeaseTTL bounds how long a crashed owner blocks the others.
const DefaultLeaseTTL = 15 * time.Second

// Lease grants one process at a time the right to poll a named stream.
// Owners must Extend well before TTL elapses.
type Lease struct {
	mu     sync.Mutex
	mutex  *redsync.Mutex
	ttl    time.Duration
	name   string
	logger libLog.Logger
	held   bool
}

// NewLease prepares a lease; nothing is acquired until TryAcquire.
func NewLease(client redis.UniversalClient, stream string, ttl time.Duration, logger libLog.Logger, opts ...Option) (*Lease, error) {
	stream, err := checkArgs(client, stream)
	if err != nil {
		return nil, err
	}

	if ttl <= 0 {
		return nil, ErrLeaseTTLInvalid
	}

	name := newKeys(opts).key("lease", stream)
	rs := redsync.New(goredis.NewPool(client))

	return &Lease{
		mutex:  rs.NewMutex(name, redsync.WithExpiry(ttl), redsync.WithTries(1)),
		ttl:    ttl,
		name:   name,
		logger: libLog.OrNop(logger),
	}, nil
}

// TTL returns the lease expiry.
func (l *Lease) TTL() time.Duration { return l.ttl }

// Held reports whether this process believes it owns the lease.
func (l *Lease) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.held
}

// TryAcquire makes a single attempt. Contention yields ErrLeaseHeld.
func (l *Lease) TryAcquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.mutex.LockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) ||
			strings.Contains(err.Error(), "lock already taken") {
			return ErrLeaseHeld
		}

		return fmt.Errorf("acquire lease %s: %w", l.name, err)
	}

	l.held = true
	l.logger.Log(ctx, libLog.LevelInfo, "lease acquired", libLog.String("lease", l.name))

	return nil
}

// Extend pushes the expiry forward by TTL.
func (l *Lease) Extend(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return ErrLeaseLost
	}

	ok, err := l.mutex.ExtendContext(ctx)
	if err != nil || !ok {
		l.held = false
		l.logger.Log(ctx, libLog.LevelWarn, "lease lost", libLog.String("lease", l.name), libLog.Err(err))

		if err != nil {
			return fmt.Errorf("%w: %w", ErrLeaseLost, err)
		}

		return ErrLeaseLost
	}

	return nil
}

// Release gives the lease up. Releasing a lease that is not held is a no-op.
func (l *Lease) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return nil
	}

	l.held = false

	ok, err := l.mutex.UnlockContext(ctx)
	if err != nil {
		return fmt.Errorf("release lease %s: %w", l.name, err)
	}

	if !ok {
		return ErrLeaseLost
	}

	l.logger.Log(ctx, libLog.LevelInfo, "lease released", libLog.String("lease", l.name))

	return nil
}
