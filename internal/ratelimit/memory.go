package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/academy/internal/clock"
	"github.com/smallbiznis/academy/internal/config"
)

const sweepInterval = time.Minute

type window struct {
	hits   []time.Time
	length time.Duration
}

// SlidingWindow keeps per-key hit timestamps in process.
type SlidingWindow struct {
	mu        sync.Mutex
	clock     clock.Clock
	windows   map[string]*window
	lastSweep time.Time
}

func NewSlidingWindow(c clock.Clock) *SlidingWindow {
	return &SlidingWindow{
		clock:     c,
		windows:   make(map[string]*window),
		lastSweep: c.Now(),
	}
}

func (s *SlidingWindow) Allow(_ context.Context, key string, policy config.RateLimitPolicy) (*Result, error) {
	if err := validate(key, policy); err != nil {
		return &Result{Allowed: false}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if now.Sub(s.lastSweep) >= sweepInterval {
		s.sweep(now)
	}

	w, ok := s.windows[key]
	if !ok {
		w = &window{}
		s.windows[key] = w
	}
	w.length = policy.Window
	w.hits = prune(w.hits, now.Add(-policy.Window))

	if len(w.hits) >= policy.MaxRequests {
		reset := w.hits[0].Add(policy.Window)
		return &Result{
			Allowed:    false,
			Limit:      policy.MaxRequests,
			Remaining:  0,
			ResetTime:  reset,
			RetryAfter: reset.Sub(now),
		}, nil
	}

	w.hits = append(w.hits, now)
	return &Result{
		Allowed:   true,
		Limit:     policy.MaxRequests,
		Remaining: policy.MaxRequests - len(w.hits),
		ResetTime: w.hits[0].Add(policy.Window),
	}, nil
}

// Len reports how many clients are currently tracked.
func (s *SlidingWindow) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// sweep drops clients with no hit inside their window. Caller holds mu.
func (s *SlidingWindow) sweep(now time.Time) {
	for key, w := range s.windows {
		if len(w.hits) == 0 || !w.hits[len(w.hits)-1].After(now.Add(-w.length)) {
			delete(s.windows, key)
		}
	}
	s.lastSweep = now
}

func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return hits
	}
	return append(hits[:0], hits[i:]...)
}
