// Package ratelimit bounds per-client reading ingest. Wearables sample a few
// times a minute; the limiter only has to stop runaway clients, so a small
// in-process token bucket per remote address is enough.
package ratelimit

import (
	"sync"
	"time"
)

// Buckets idle longer than this are dropped on the next sweep.
const idleEvict = 10 * time.Minute

type bucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
}

type Limiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

func New() *Limiter {
	return &Limiter{buckets: make(map[string]*bucket), lastSweep: time.Now()}
}

// Allow consumes one token for key, creating the bucket full on first sight.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > idleEvict {
		l.sweep(now)
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: capacity, capacity: capacity, refillRate: refillPerSec, last: now}
		l.buckets[key] = b
	}

	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// sweep drops buckets that have not been touched recently. Callers hold mu.
func (l *Limiter) sweep(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.last) > idleEvict {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}
