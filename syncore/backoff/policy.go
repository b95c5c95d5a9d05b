package backoff

import (
	"math"
	"time"
)

const (
	// DefaultServerErrorStep is added to the delay after each 5xx response.
	DefaultServerErrorStep = 5 * time.Second
	// DefaultClientErrorStep is added to the delay after each network failure.
	DefaultClientErrorStep = 10 * time.Second
	// DefaultWaitingInterval is the re-poll interval while the event stream is at its head.
	DefaultWaitingInterval = 500 * time.Millisecond
)

// IncreaseFunc maps the current delay to the next one. It must be pure.
type IncreaseFunc func(time.Duration) time.Duration

// Retry describes a scheduled retry handed to a Hooks observer.
type Retry struct {
	URI    string
	Err    error
	Status int
	Delay  time.Duration
}

// Hooks are observer callbacks invoked when a retry is scheduled.
// They are telemetry only: callers never wait on them and their outcome does
// not influence the retry.
type Hooks struct {
	OnServerError func(Retry)
	OnClientError func(Retry)
	OnWaiting     func(Retry)
}

// Policy configures how retry delays grow for the outbox and the poller.
type Policy struct {
	// Initial is the delay before the first flush after a submit.
	Initial time.Duration

	ServerErrorIncrease IncreaseFunc
	ClientErrorIncrease IncreaseFunc
	WaitingIncrease     IncreaseFunc

	Hooks Hooks
}

// DefaultPolicy returns additive growth for errors and a constant waiting interval.
func DefaultPolicy() Policy {
	return Policy{
		Initial:             0,
		ServerErrorIncrease: Additive(DefaultServerErrorStep),
		ClientErrorIncrease: Additive(DefaultClientErrorStep),
		WaitingIncrease:     Constant(DefaultWaitingInterval),
	}
}

// Normalize fills every nil function with its default and clamps Initial to zero.
func (p Policy) Normalize() Policy {
	defaults := DefaultPolicy()

	if p.Initial < 0 {
		p.Initial = 0
	}

	if p.ServerErrorIncrease == nil {
		p.ServerErrorIncrease = defaults.ServerErrorIncrease
	}

	if p.ClientErrorIncrease == nil {
		p.ClientErrorIncrease = defaults.ClientErrorIncrease
	}

	if p.WaitingIncrease == nil {
		p.WaitingIncrease = defaults.WaitingIncrease
	}

	return p
}

// NextServerError applies ServerErrorIncrease, never returning a negative delay.
func (p Policy) NextServerError(delay time.Duration) time.Duration {
	return clamp(p.ServerErrorIncrease(delay))
}

// NextClientError applies ClientErrorIncrease, never returning a negative delay.
func (p Policy) NextClientError(delay time.Duration) time.Duration {
	return clamp(p.ClientErrorIncrease(delay))
}

// NextWaiting applies WaitingIncrease, never returning a negative delay.
func (p Policy) NextWaiting(delay time.Duration) time.Duration {
	return clamp(p.WaitingIncrease(delay))
}

// ServerError invokes the OnServerError hook when set.
func (h Hooks) ServerError(r Retry) {
	if h.OnServerError != nil {
		h.OnServerError(r)
	}
}

// ClientError invokes the OnClientError hook when set.
func (h Hooks) ClientError(r Retry) {
	if h.OnClientError != nil {
		h.OnClientError(r)
	}
}

// Waiting invokes the OnWaiting hook when set.
func (h Hooks) Waiting(r Retry) {
	if h.OnWaiting != nil {
		h.OnWaiting(r)
	}
}

// Additive grows the delay by step on every call. A negative step shrinks it.
func Additive(step time.Duration) IncreaseFunc {
	return func(d time.Duration) time.Duration {
		if step > 0 && d > math.MaxInt64-step {
			return time.Duration(math.MaxInt64)
		}

		return d + step
	}
}

// Constant ignores the current delay.
func Constant(interval time.Duration) IncreaseFunc {
	return func(time.Duration) time.Duration { return interval }
}

// Doubling returns (d+unit)*2 capped at ceiling. A zero ceiling means no cap.
func Doubling(unit, ceiling time.Duration) IncreaseFunc {
	return func(d time.Duration) time.Duration {
		if d > math.MaxInt64/2-unit {
			return capAt(time.Duration(math.MaxInt64), ceiling)
		}

		return capAt((d+unit)*2, ceiling)
	}
}

func capAt(d, ceiling time.Duration) time.Duration {
	if ceiling > 0 && d > ceiling {
		return ceiling
	}

	return d
}

func clamp(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}

	return d
}
