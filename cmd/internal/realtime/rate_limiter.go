package realtime

import (
	"sync"
	"time"
)

// FrameLimiter caps how many inbound frames one connection may submit
// inside a sliding window. Each connection owns its own limiter.
type FrameLimiter struct {
	mu     sync.Mutex
	stamps []time.Time
	max    int
	window time.Duration
}

// NewFrameLimiter builds a limiter, substituting the package defaults for
// non-positive inputs.
func NewFrameLimiter(max int, window time.Duration) *FrameLimiter {
	if max <= 0 {
		max = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &FrameLimiter{max: max, window: window}
}

// Allow records a frame arriving at now and reports whether it fits the
// window budget. Stamps arrive in order, so expiry only trims the front.
func (l *FrameLimiter) Allow(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	expired := 0
	for expired < len(l.stamps) && !l.stamps[expired].After(cutoff) {
		expired++
	}
	if expired > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[expired:]...)
	}

	if len(l.stamps) >= l.max {
		return false
	}
	l.stamps = append(l.stamps, now)
	return true
}
