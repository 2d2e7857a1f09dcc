// Package ratelimit implements a per-user sliding-window rate limiter for
// trade submission. Each user gets an independent window, so one noisy
// client cannot starve everyone else.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a user exceeds their trade budget for the
// current window.
var ErrRateLimited = errors.New("ratelimit: too many trades, slow down")

// Limiter allows at most max events per user within window. Zero values are
// replaced with sensible trading defaults (30 per minute).
type Limiter struct {
	max    int
	window time.Duration

	mu     sync.Mutex
	events map[string][]time.Time

	now func() time.Time // overridable in tests
}

// NewLimiter creates a limiter allowing max events per window per user.
func NewLimiter(max int, window time.Duration) *Limiter {
	if max <= 0 {
		max = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		max:    max,
		window: window,
		events: make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow records one event for userID and reports whether it fits in the
// window. Expired timestamps are pruned on each call, so memory stays
// proportional to recent activity.
func (l *Limiter) Allow(userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	recent := l.events[userID][:0]
	for _, t := range l.events[userID] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= l.max {
		l.events[userID] = recent
		return ErrRateLimited
	}

	l.events[userID] = append(recent, now)
	return nil
}
