package services

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// TimeoutScheduler keeps at most one timer per key. A fired timer only calls
// its callback with the token it was armed with; the callback is expected to
// enqueue work, never to touch tournament state directly.
type TimeoutScheduler struct {
	clock  clock.Clock
	mu     sync.Mutex
	timers map[string]*scheduledTimeout
}

type scheduledTimeout struct {
	timer *clock.Timer
	token uint64
	at    time.Time
}

func NewTimeoutScheduler(clk clock.Clock) *TimeoutScheduler {
	if clk == nil {
		clk = clock.New()
	}
	return &TimeoutScheduler{clock: clk, timers: make(map[string]*scheduledTimeout)}
}

func (s *TimeoutScheduler) Now() time.Time {
	return s.clock.Now()
}

// Schedule arms key to fire at the given instant, replacing any timer already
// armed for it. Instants in the past fire immediately.
func (s *TimeoutScheduler) Schedule(key string, at time.Time, token uint64, fire func(token uint64)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.timers[key]; ok {
		prev.timer.Stop()
	}
	d := at.Sub(s.clock.Now())
	if d < 0 {
		d = 0
	}
	entry := &scheduledTimeout{token: token, at: at}
	entry.timer = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		current, ok := s.timers[key]
		if !ok || current != entry {
			s.mu.Unlock()
			return
		}
		delete(s.timers, key)
		s.mu.Unlock()
		fire(entry.token)
	})
	s.timers[key] = entry
}

// Cancel disarms key. It reports whether a timer was armed.
func (s *TimeoutScheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.timers[key]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(s.timers, key)
	return true
}

// Deadline returns the instant and token key is armed with.
func (s *TimeoutScheduler) Deadline(key string) (time.Time, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.timers[key]
	if !ok {
		return time.Time{}, 0, false
	}
	return entry.at, entry.token, true
}

func (s *TimeoutScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop disarms every timer.
func (s *TimeoutScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.timers {
		entry.timer.Stop()
		delete(s.timers, key)
	}
}

func registrationTimerKey(tournamentID string) string {
	return "registration:" + tournamentID
}
