package ratelimiter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter allows one action per interval and key, e.g. one provisioning
// request per user. It is safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	buckets  map[string]*bucket
	now      func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a new keyed rate limiter with the specified interval.
// A non-positive interval disables limiting.
func New(interval time.Duration) *Limiter {
	return &Limiter{
		interval: interval,
		buckets:  make(map[string]*bucket),
		now:      time.Now,
	}
}

// Allow checks if an action for key is allowed at this time.
// Returns true if allowed, or false with the remaining wait duration.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	if l.interval <= 0 {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Every(l.interval), 1)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	r := b.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Prune forgets keys that have been idle for longer than idle and returns
// how many were removed.
func (l *Limiter) Prune(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idle)
	removed := 0
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
