package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	tokens float64
	last   time.Time
}

// Limiter is a keyed token bucket. Every key shares the same capacity and refill rate.
type Limiter struct {
	mu       sync.Mutex
	capacity float64
	refill   float64 // tokens per second
	buckets  map[string]*bucket
	now      func() time.Time
}

// New returns a limiter that allows bursts of capacity and refills refillPerSec tokens per second.
// A non-positive capacity disables limiting.
func New(capacity, refillPerSec float64) *Limiter {
	return &Limiter{
		capacity: capacity,
		refill:   refillPerSec,
		buckets:  make(map[string]*bucket),
		now:      time.Now,
	}
}

// Allow reports whether one token could be consumed for key.
func (l *Limiter) Allow(key string) bool {
	if l == nil || l.capacity <= 0 {
		return true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.capacity, last: now}
		l.buckets[key] = b
	}
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens += elapsed * l.refill
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Forget drops the bucket for key.
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
}
