package ratelimit

import (
	"sync"
	"time"
)

// Decision reports the outcome of one rate-limit evaluation. Limited is set
// truthfully even in dry-run mode; callers enforce via Enforced so dry runs
// can be observed without blocking traffic.
type Decision struct {
	Limited       bool
	Attempts      int
	Remaining     int
	WindowSeconds int
	DryRun        bool
	RetryAfter    time.Duration
}

func (d Decision) Enforced() bool {
	return d.Limited && !d.DryRun
}

type bucket struct {
	count       int
	windowStart time.Time
}

// Limiter is a sliding fixed-window counter over an in-process map. Buckets
// are keyed by identity+origin once the refresh token's owner is known, or
// by origin alone for attempts that fail before an owner can be resolved.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	max    int
	window time.Duration
	dryRun bool

	// Now is swappable for tests; nil means time.Now.
	Now func() time.Time
}

func New(max int, window time.Duration, dryRun bool) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		max:     max,
		window:  window,
		dryRun:  dryRun,
	}
}

func (l *Limiter) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// Evaluate counts one attempt for (userID, origin). An empty userID tracks
// the origin-only dimension. The max-th attempt in a window is still
// allowed; the max+1-th is limited.
func (l *Limiter) Evaluate(userID, origin string) Decision {
	key := origin
	if userID != "" {
		key = userID + "|" + origin
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || now.Sub(b.windowStart) > l.window {
		b = &bucket{windowStart: now}
		l.buckets[key] = b
	}
	b.count++

	remaining := l.max - b.count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Limited:       b.count > l.max,
		Attempts:      b.count,
		Remaining:     remaining,
		WindowSeconds: int(l.window.Seconds()),
		DryRun:        l.dryRun,
		RetryAfter:    b.windowStart.Add(l.window).Sub(now),
	}
}

// Reset drops the buckets for both dimensions of (userID, origin).
func (l *Limiter) Reset(userID, origin string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, origin)
	if userID != "" {
		delete(l.buckets, userID+"|"+origin)
	}
}
