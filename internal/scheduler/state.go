package scheduler

import (
	"sync"
	"time"
)

// State guards the daily run against overlap and repetition. Each Scheduler
// owns one; tests build their own.
type State struct {
	mu      sync.Mutex
	running bool
	lastDay string
}

func NewState() *State { return &State{} }

func dayKey(t time.Time) string { return t.Format(time.DateOnly) }

// TryBegin claims the run for day. It fails when a run is in progress or a
// run already completed for that day.
func (s *State) TryBegin(day time.Time) (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false, "daily run already in progress"
	}
	if s.lastDay == dayKey(day) {
		return false, "daily run already completed today"
	}
	s.running = true
	return true, ""
}

// Finish releases the run. Only a successful run marks the day as done, so a
// failed run can be retried by the next trigger.
func (s *State) Finish(day time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	if ok {
		s.lastDay = dayKey(day)
	}
}

func (s *State) LastCompleted() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDay
}
