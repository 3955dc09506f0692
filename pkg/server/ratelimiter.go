package server

import (
	"sync"
	"time"
)

// RateLimiter is a per-client sliding-window limiter.
type RateLimiter struct {
	hits            map[string][]time.Time
	limit           int
	window          time.Duration
	mu              sync.Mutex
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	now             func() time.Time
}

// NewRateLimiter allows limit requests per client within window. A limit of
// zero or less disables limiting.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		hits:            make(map[string][]time.Time),
		limit:           limit,
		window:          window,
		cleanupInterval: 5 * time.Minute,
		stopCleanup:     make(chan struct{}),
		now:             time.Now,
	}

	go rl.runCleanup()

	return rl
}

// Allow records a request from client. When the client is over its limit it
// returns false and the number of seconds until a slot frees up.
func (rl *RateLimiter) Allow(client string) (bool, int) {
	if rl.limit <= 0 {
		return true, 0
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	recent := rl.prune(rl.hits[client], now)

	if len(recent) >= rl.limit {
		rl.hits[client] = recent
		wait := rl.window - now.Sub(recent[0])
		return false, int((wait + time.Second - 1) / time.Second)
	}

	rl.hits[client] = append(recent, now)
	return true, 0
}

// prune drops hits that left the window
func (rl *RateLimiter) prune(hits []time.Time, now time.Time) []time.Time {
	cut := 0
	for cut < len(hits) && now.Sub(hits[cut]) >= rl.window {
		cut++
	}
	return hits[cut:]
}

func (rl *RateLimiter) runCleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanup forgets clients without recent requests
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for client, hits := range rl.hits {
		if recent := rl.prune(hits, now); len(recent) == 0 {
			delete(rl.hits, client)
		} else {
			rl.hits[client] = recent
		}
	}
}

// Stop stops the cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}
