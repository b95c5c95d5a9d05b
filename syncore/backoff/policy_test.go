//go:build unit

package backoff

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPolicy(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()

	assert.Zero(t, p.Initial)
	assert.Equal(t, 5*time.Second, p.NextServerError(0))
	assert.Equal(t, 15*time.Second, p.NextServerError(10*time.Second))
	assert.Equal(t, 10*time.Second, p.NextClientError(0))
	assert.Equal(t, 500*time.Millisecond, p.NextWaiting(0))
	assert.Equal(t, 500*time.Millisecond, p.NextWaiting(time.Minute))
}

func TestDoublingGrowth(t *testing.T) {
	t.Parallel()

	increase := Doubling(time.Millisecond, 0)

	var delays []time.Duration

	d := time.Duration(0)
	for range 3 {
		d = increase(d)
		delays = append(delays, d)
	}

	assert.Equal(t, []time.Duration{2 * time.Millisecond, 6 * time.Millisecond, 14 * time.Millisecond}, delays)
}

func TestDoublingCeiling(t *testing.T) {
	t.Parallel()

	increase := Doubling(time.Second, 10*time.Second)

	assert.Equal(t, 10*time.Second, increase(9*time.Second))
	assert.Equal(t, 10*time.Second, increase(time.Duration(math.MaxInt64)))
}

func TestAdditiveSaturates(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.Duration(math.MaxInt64), Additive(time.Second)(time.Duration(math.MaxInt64)))
}

func TestAdditiveNegativeStepShrinks(t *testing.T) {
	t.Parallel()

	shrink := Additive(-time.Second)

	assert.Equal(t, 4*time.Second, shrink(5*time.Second))
	assert.Equal(t, time.Duration(math.MaxInt64)-time.Second, shrink(time.Duration(math.MaxInt64)))

	p := Policy{ServerErrorIncrease: shrink}.Normalize()
	assert.Zero(t, p.NextServerError(0))
}

func TestNormalizeFillsDefaults(t *testing.T) {
	t.Parallel()

	p := Policy{Initial: -time.Second, WaitingIncrease: Constant(time.Second)}.Normalize()

	assert.Zero(t, p.Initial)
	assert.NotNil(t, p.ServerErrorIncrease)
	assert.NotNil(t, p.ClientErrorIncrease)
	assert.Equal(t, time.Second, p.NextWaiting(0))
}

func TestNegativeIncreaseIsClamped(t *testing.T) {
	t.Parallel()

	p := Policy{ServerErrorIncrease: func(time.Duration) time.Duration { return -time.Second }}.Normalize()

	assert.Zero(t, p.NextServerError(0))
}

func TestHooksAreOptional(t *testing.T) {
	t.Parallel()

	var got []Retry

	hooks := Hooks{OnClientError: func(r Retry) { got = append(got, r) }}
	boom := errors.New("boom")

	hooks.ServerError(Retry{Status: 503})
	hooks.Waiting(Retry{})
	hooks.ClientError(Retry{URI: "/commands/x", Err: boom, Delay: time.Second})

	assert.Equal(t, []Retry{{URI: "/commands/x", Err: boom, Delay: time.Second}}, got)
}
