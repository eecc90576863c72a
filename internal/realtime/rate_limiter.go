package realtime

import (
	"sync"
	"time"
)

// slidingWindowLimiter allows at most max events per rolling window.
// It is used per-connection, so the timestamp slice stays small.
type slidingWindowLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	events []time.Time
}

func newSlidingWindowLimiter(max int, window time.Duration) *slidingWindowLimiter {
	return &slidingWindowLimiter{
		max:    max,
		window: window,
	}
}

// Allow records an event at now and reports whether it fits in the window.
func (l *slidingWindowLimiter) Allow(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	kept := l.events[:0]
	for _, t := range l.events {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.events = kept

	if len(l.events) >= l.max {
		return false
	}
	l.events = append(l.events, now)
	return true
}
