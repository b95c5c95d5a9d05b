package transport

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	libLog "github.com/LerianStudio/lib-syncore/syncore/log"
)

// ErrUnavailable wraps requests rejected by an open or half-open breaker.
var ErrUnavailable = errors.New("transport: remote unavailable")

// errServerStatus marks 5xx responses as breaker failures without turning
// them into transport errors.
var errServerStatus = errors.New("transport: server error status")

// BreakerConfig tunes the circuit breaker around the remote endpoint.
type BreakerConfig struct {
	// Disabled bypasses the breaker entirely.
	Disabled bool
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval is the cyclic period for clearing counts while closed.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// ConsecutiveFailures that trip the breaker.
	ConsecutiveFailures uint32
	// FailureRatio that trips the breaker once MinRequests have been seen.
	FailureRatio float64
	MinRequests  uint32
}

// DefaultBreakerConfig is tuned for a single remote HTTP API.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         3,
		Interval:            2 * time.Minute,
		Timeout:             10 * time.Second,
		ConsecutiveFailures: 5,
		FailureRatio:        0.5,
		MinRequests:         10,
	}
}

// BreakerState is the current state of the breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
	BreakerUnknown  BreakerState = "unknown"
)

func convertState(state gobreaker.State) BreakerState {
	switch state {
	case gobreaker.StateClosed:
		return BreakerClosed
	case gobreaker.StateOpen:
		return BreakerOpen
	case gobreaker.StateHalfOpen:
		return BreakerHalfOpen
	default:
		return BreakerUnknown
	}
}

func newBreaker(name string, cfg BreakerConfig, logger libLog.Logger) *gobreaker.CircuitBreaker {
	if cfg.Disabled {
		return nil
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 {
				return false
			}

			ratio := float64(counts.TotalFailures) / float64(counts.Requests)

			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures ||
				(counts.Requests >= cfg.MinRequests && ratio >= cfg.FailureRatio)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Log(context.Background(), libLog.LevelWarn, "circuit breaker state changed",
				libLog.String("breaker", name),
				libLog.String("from", string(convertState(from))),
				libLog.String("to", string(convertState(to))),
			)
		},
	})
}
