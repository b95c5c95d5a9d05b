// Package backoff holds the retry delay policy shared by the outbox client and
// the event stream poller, plus exponential helpers with jitter.
package backoff

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	mrand "math/rand/v2"
	"time"
)

const maxShift = 62

// Exponential returns base * 2^attempt, saturating at math.MaxInt64.
// Negative attempts are treated as 0.
func Exponential(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}

	attempt = min(max(attempt, 0), maxShift)
	multiplier := int64(1) << attempt

	if int64(base) > math.MaxInt64/multiplier {
		return time.Duration(math.MaxInt64)
	}

	return base * time.Duration(multiplier)
}

// FullJitter returns a random duration in [0, delay).
func FullJitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}

	n, err := rand.Int(rand.Reader, big.NewInt(int64(delay)))
	if err != nil {
		return time.Duration(fallbackRand(int64(delay)))
	}

	return time.Duration(n.Int64())
}

// fallbackRand seeds a PCG from crypto/rand bytes, or returns the midpoint
// when no entropy is available at all.
func fallbackRand(limit int64) int64 {
	var seed [8]byte

	if _, err := rand.Read(seed[:]); err != nil {
		return limit / 2
	}

	rng := mrand.New(mrand.NewPCG(binary.LittleEndian.Uint64(seed[:]), 0)) // #nosec G404

	return rng.Int64N(limit)
}

// ExponentialWithJitter returns a random duration in [0, base * 2^attempt).
func ExponentialWithJitter(base time.Duration, attempt int) time.Duration {
	return FullJitter(Exponential(base, attempt))
}

// SleepWithContext waits for duration or until ctx is done.
func SleepWithContext(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return nil
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context done: %w", ctx.Err())
	}
}
