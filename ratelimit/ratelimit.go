package ratelimit

import (
	"sync"
	"time"
)

const (
	// DefaultLimit is the number of messages a user may post per window
	DefaultLimit = 10

	// DefaultWindow is the length of the fixed counting window
	DefaultWindow = time.Minute

	// SweepInterval is how often stale entries should be swept
	SweepInterval = 5 * time.Minute
)

// entry tracks one user's count within the current window
type entry struct {
	count   int
	resetAt time.Time
}

// Limiter is a fixed-window per-user message rate limiter. A burst of up to
// 2x the limit is possible across a window boundary; that looseness is
// accepted in exchange for constant-size per-user state.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	entries map[uint]*entry
}

// New creates a limiter using the wall clock
func New(limit int, window time.Duration) *Limiter {
	return NewWithClock(limit, window, time.Now)
}

// NewWithClock creates a limiter with an injected clock, so tests can drive
// window expiry deterministically
func NewWithClock(limit int, window time.Duration, now func() time.Time) *Limiter {
	if limit < 1 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if now == nil {
		now = time.Now
	}

	return &Limiter{
		limit:   limit,
		window:  window,
		now:     now,
		entries: make(map[uint]*entry),
	}
}

// Allow records one message attempt for the user. It returns true when the
// message is within the limit, or false plus the time remaining until the
// user's window resets.
func (l *Limiter) Allow(userID uint) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	e, exists := l.entries[userID]
	if !exists || now.After(e.resetAt) {
		// First message in a window, or the previous window expired
		l.entries[userID] = &entry{count: 1, resetAt: now.Add(l.window)}
		return true, 0
	}

	if e.count < l.limit {
		e.count++
		return true, 0
	}

	return false, e.resetAt.Sub(now)
}

// Sweep removes entries whose window expired more than one window ago,
// bounding memory growth from users that stopped posting. Call it
// periodically, e.g. from a ticker goroutine.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for userID, e := range l.entries {
		if now.After(e.resetAt.Add(l.window)) {
			delete(l.entries, userID)
		}
	}
}

// Len reports the number of tracked users
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
