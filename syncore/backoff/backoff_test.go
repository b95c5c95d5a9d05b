//go:build unit

package backoff

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponential(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		base     time.Duration
		attempt  int
		expected time.Duration
	}{
		{"zero base", 0, 3, 0},
		{"first attempt", 100 * time.Millisecond, 0, 100 * time.Millisecond},
		{"third attempt", 100 * time.Millisecond, 3, 800 * time.Millisecond},
		{"negative attempt", time.Second, -2, time.Second},
		{"overflow saturates", time.Hour, 62, time.Duration(math.MaxInt64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, Exponential(tt.base, tt.attempt))
		})
	}
}

func TestFullJitterRange(t *testing.T) {
	t.Parallel()

	assert.Zero(t, FullJitter(0))
	assert.Zero(t, FullJitter(-time.Second))

	for range 100 {
		got := FullJitter(time.Second)
		assert.GreaterOrEqual(t, got, time.Duration(0))
		assert.Less(t, got, time.Second)
	}
}

func TestExponentialWithJitterRange(t *testing.T) {
	t.Parallel()

	for range 50 {
		got := ExponentialWithJitter(10*time.Millisecond, 2)
		assert.Less(t, got, 40*time.Millisecond)
	}
}

func TestFallbackRand(t *testing.T) {
	t.Parallel()

	for range 50 {
		got := fallbackRand(10)
		assert.GreaterOrEqual(t, got, int64(0))
		assert.Less(t, got, int64(10))
	}
}

func TestSleepWithContext(t *testing.T) {
	t.Parallel()

	require.NoError(t, SleepWithContext(context.Background(), 0))
	require.NoError(t, SleepWithContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := SleepWithContext(ctx, time.Hour)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
