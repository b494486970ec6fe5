package api

import (
	"sync"
	"time"
)

// rateLimiter admits at most limit attempts per key within any sliding window.
type rateLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time // oldest first
	limit    int
	window   time.Duration
	now      func() time.Time
	stop     chan struct{}
	once     sync.Once
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		attempts: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

// prune drops attempts older than the window. Caller holds mu.
func (rl *rateLimiter) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-rl.window)
	seen := rl.attempts[key]
	i := 0
	for i < len(seen) && !seen[i].After(cutoff) {
		i++
	}
	seen = seen[i:]
	if len(seen) == 0 {
		delete(rl.attempts, key)
		return nil
	}
	rl.attempts[key] = seen
	return seen
}

// allow records an attempt for key. When the key is over its limit the
// attempt is not recorded and the wait until the next slot opens is returned.
func (rl *rateLimiter) allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	seen := rl.prune(key, now)
	if len(seen) >= rl.limit {
		return false, seen[0].Add(rl.window).Sub(now)
	}
	rl.attempts[key] = append(seen, now)
	return true, 0
}

func (rl *rateLimiter) close() {
	rl.once.Do(func() { close(rl.stop) })
}

// sweep keeps idle keys from accumulating.
func (rl *rateLimiter) sweep() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
		}

		rl.mu.Lock()
		now := rl.now()
		for key := range rl.attempts {
			rl.prune(key, now)
		}
		rl.mu.Unlock()
	}
}
