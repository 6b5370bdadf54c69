// Package ratelimit provides a keyed fixed-window request counter. It is an
// explicit, injectable value rather than process-wide state so a deployment
// with several instances can swap in a shared implementation.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter admits up to limit requests per key within each fixed window.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string]*bucket

	// now is swappable for tests.
	now func() time.Time
}

type bucket struct {
	start time.Time
	count int
}

// New creates a Limiter admitting limit requests per window for each key.
func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow records an attempt for key. It returns true when the attempt is
// admitted; otherwise false plus how long until the window resets.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok || now.Sub(b.start) >= l.window {
		l.buckets[key] = &bucket{start: now, count: 1}
		return true, 0
	}
	if b.count < l.limit {
		b.count++
		return true, 0
	}
	return false, b.start.Add(l.window).Sub(now)
}

// SetNow overrides the clock. Test hook.
func (l *Limiter) SetNow(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}
