package signal

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window limiter keyed by socket id; chat relay
// drops frames from a connection that exceeds its window.
type RateLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
}

func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *RateLimiter) Allow(socketID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[socketID]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[socketID] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[socketID] = fresh
	return true
}

// Forget drops the window on disconnect.
func (rl *RateLimiter) Forget(socketID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, socketID)
}
