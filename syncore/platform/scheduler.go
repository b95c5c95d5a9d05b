package platform

import "time"

// Scheduler runs fn once, no earlier than delay from now. Tasks never run
// concurrently with each other. Implementations must be safe to call from any
// goroutine, including from inside a running task.
type Scheduler interface {
	Schedule(delay time.Duration, fn func())
}

// SchedulerFunc adapts a function to the Scheduler interface.
type SchedulerFunc func(delay time.Duration, fn func())

// Schedule calls f(delay, fn).
func (f SchedulerFunc) Schedule(delay time.Duration, fn func()) { f(delay, fn) }
