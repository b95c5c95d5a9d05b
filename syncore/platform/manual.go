package platform

import (
	"sort"
	"sync"
	"time"
)

type manualTask struct {
	at  time.Duration
	seq uint64
	fn  func()
}

// ManualScheduler is a deterministic Scheduler driven by a virtual clock.
// Nothing runs until the test calls RunDue, Advance or RunUntilIdle.
type ManualScheduler struct {
	mu    sync.Mutex
	now   time.Duration
	seq   uint64
	tasks []manualTask
}

// NewManualScheduler returns a scheduler with its clock at zero.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// Schedule implements Scheduler.
func (s *ManualScheduler) Schedule(delay time.Duration, fn func()) {
	if fn == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.tasks = append(s.tasks, manualTask{at: s.now + max(delay, 0), seq: s.seq, fn: fn})
}

// Now returns the virtual time elapsed since creation.
func (s *ManualScheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.now
}

// Pending returns the number of tasks not yet run.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.tasks)
}

// NextDelay reports how far in the future the earliest pending task is.
func (s *ManualScheduler) NextDelay() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.earliestLocked()
	if !ok {
		return 0, false
	}

	return task.at - s.now, true
}

// RunDue runs every task due at the current virtual time, including tasks
// scheduled with zero delay by the tasks it runs. It returns the number run.
func (s *ManualScheduler) RunDue() int {
	ran := 0

	for s.step(false) {
		ran++
	}

	return ran
}

// Advance moves the clock forward by d, running each task when its time comes.
func (s *ManualScheduler) Advance(d time.Duration) int {
	s.mu.Lock()
	target := s.now + max(d, 0)
	s.mu.Unlock()

	ran := 0

	for {
		s.mu.Lock()
		task, ok := s.earliestLocked()

		if !ok || task.at > target {
			s.now = target
			s.mu.Unlock()

			return ran
		}

		s.mu.Unlock()

		if s.step(true) {
			ran++
		}
	}
}

// RunUntilIdle jumps the clock from task to task until none remain or limit
// tasks have run. It returns the number run.
func (s *ManualScheduler) RunUntilIdle(limit int) int {
	ran := 0

	for ran < limit && s.step(true) {
		ran++
	}

	return ran
}

// step runs the earliest task. When jump is false only tasks due now are run.
func (s *ManualScheduler) step(jump bool) bool {
	s.mu.Lock()

	task, ok := s.earliestLocked()
	if !ok || (!jump && task.at > s.now) {
		s.mu.Unlock()
		return false
	}

	s.removeLocked(task.seq)

	if task.at > s.now {
		s.now = task.at
	}

	s.mu.Unlock()

	task.fn()

	return true
}

func (s *ManualScheduler) earliestLocked() (manualTask, bool) {
	if len(s.tasks) == 0 {
		return manualTask{}, false
	}

	sort.SliceStable(s.tasks, func(i, j int) bool {
		if s.tasks[i].at != s.tasks[j].at {
			return s.tasks[i].at < s.tasks[j].at
		}

		return s.tasks[i].seq < s.tasks[j].seq
	})

	return s.tasks[0], true
}

func (s *ManualScheduler) removeLocked(seq uint64) {
	for i := range s.tasks {
		if s.tasks[i].seq == seq {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return
		}
	}
}
