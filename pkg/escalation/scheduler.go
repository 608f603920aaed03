package escalation

import (
	"sync"
	"time"
)

// Scheduler arms one cancellable escalation timer per case. Resolution
// cancels the armed handle deterministically; a handle that fires after
// cancellation was already removed and never runs.
type Scheduler interface {
	// Schedule arms fn to run after d, keyed by caseID. Re-scheduling an
	// armed case replaces the previous timer.
	Schedule(caseID string, d time.Duration, fn func())
	// Cancel disarms the case's timer; reports whether one was armed.
	Cancel(caseID string) bool
}

// TimerScheduler is the production Scheduler over time.AfterFunc.
type TimerScheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewTimerScheduler creates an empty TimerScheduler.
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{timers: make(map[string]*time.Timer)}
}

// Schedule arms the timer. The handle removes itself before running fn so a
// concurrent Cancel after firing is a clean no-op.
func (s *TimerScheduler) Schedule(caseID string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.timers[caseID]; ok {
		prev.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		s.mu.Lock()
		// Only run if this handle is still the armed one; a Cancel or
		// re-Schedule that raced the firing wins.
		current, armed := s.timers[caseID]
		if armed && current == timer {
			delete(s.timers, caseID)
			s.mu.Unlock()
			fn()
			return
		}
		s.mu.Unlock()
	})
	s.timers[caseID] = timer
}

// Cancel disarms and removes the case's timer.
func (s *TimerScheduler) Cancel(caseID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer, ok := s.timers[caseID]
	if !ok {
		return false
	}
	timer.Stop()
	delete(s.timers, caseID)
	return true
}

// Armed reports whether the case currently has a timer.
func (s *TimerScheduler) Armed(caseID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[caseID]
	return ok
}
