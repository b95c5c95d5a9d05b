package platform

import (
	"context"
	"errors"
	"sync"
	"time"

	libLog "github.com/LerianStudio/lib-syncore/syncore/log"
	"github.com/LerianStudio/lib-syncore/syncore/runtime"
)

var (
	// ErrLoopStarted is returned when Start is called twice.
	ErrLoopStarted = errors.New("platform: loop already started")
	// ErrLoopStopped is returned when Start is called after Stop.
	ErrLoopStopped = errors.New("platform: loop stopped")
)

// Loop is a Scheduler backed by a single goroutine. Delayed tasks are armed
// with time.AfterFunc and queued when they fire. Tasks scheduled before Start
// wait for it; tasks scheduled after Stop are dropped.
type Loop struct {
	logger libLog.Logger

	mu      sync.Mutex
	queue   []func()
	timers  map[*time.Timer]struct{}
	started bool
	stopped bool

	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLoopLogger sets the logger used for recovered task panics.
func WithLoopLogger(logger libLog.Logger) LoopOption {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoop creates a stopped loop. Call Start to begin running tasks.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{
		logger: libLog.NewNop(),
		timers: make(map[*time.Timer]struct{}),
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	return l
}

// Start launches the loop goroutine. The loop stops when ctx is done or Stop is called.
func (l *Loop) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return ErrLoopStopped
	}

	if l.started {
		return ErrLoopStarted
	}

	l.started = true

	runtime.SafeGoWithContext(ctx, l.logger, "platform", "loop", runtime.KeepRunning, func() {
		l.run(ctx)
	})

	return nil
}

// Schedule implements Scheduler.
func (l *Loop) Schedule(delay time.Duration, fn func()) {
	if fn == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return
	}

	if delay <= 0 {
		l.enqueueLocked(fn)
		return
	}

	var timer *time.Timer

	timer = time.AfterFunc(delay, func() {
		l.mu.Lock()
		defer l.mu.Unlock()

		delete(l.timers, timer)

		if !l.stopped {
			l.enqueueLocked(fn)
		}
	})

	l.timers[timer] = struct{}{}
}

// Stop cancels pending timers, drops queued tasks and ends the loop goroutine.
// A task already running finishes. Stop does not wait; use Done for that.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true

	for timer := range l.timers {
		timer.Stop()
	}

	l.timers = map[*time.Timer]struct{}{}
	l.queue = nil
	started := l.started
	l.mu.Unlock()

	l.stopOnce.Do(func() {
		close(l.stop)

		if !started {
			close(l.done)
		}
	})
}

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Pending returns the number of queued tasks plus armed timers.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.queue) + len(l.timers)
}

func (l *Loop) enqueueLocked(fn func()) {
	l.queue = append(l.queue, fn)

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped || len(l.queue) == 0 {
		return nil, false
	}

	task := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]

	return task, true
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)

	for {
		if task, ok := l.next(); ok {
			l.runTask(ctx, task)
			continue
		}

		select {
		case <-l.wake:
		case <-l.stop:
			return
		case <-ctx.Done():
			l.Stop()
			return
		}
	}
}

func (l *Loop) runTask(ctx context.Context, task func()) {
	defer runtime.RecoverAndLog(ctx, l.logger, "platform", "loop-task")

	task()
}
