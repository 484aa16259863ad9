// Package ratelimit throttles outbound requests per external domain.
//
// Third-party providers are queried on their own terms: the limiter
// guarantees at most one request per hostname per interval, which is a
// correctness requirement for respecting provider terms of service, not a
// courtesy. State is a hostname -> last-fetch timestamp map owned by the
// limiter and injected into every fetch path.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultInterval is the spacing applied to scraped content domains.
const DefaultInterval = 60 * time.Second

// Limiter spaces requests per hostname. Safe for concurrent use.
type Limiter struct {
	clock    clockwork.Clock
	interval time.Duration

	mu        sync.Mutex
	lastFetch map[string]time.Time
}

// New creates a Limiter with the given minimum spacing between requests to
// the same host. A non-positive interval disables throttling.
func New(clock clockwork.Clock, interval time.Duration) *Limiter {
	return &Limiter{
		clock:     clock,
		interval:  interval,
		lastFetch: make(map[string]time.Time),
	}
}

// Wait blocks until a request to host is permitted, then records the fetch.
// Distinct hosts never serialize against each other. Returns early with the
// context's error if it is cancelled while waiting.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	if l == nil || l.interval <= 0 {
		return ctx.Err()
	}

	for {
		l.mu.Lock()
		now := l.clock.Now()
		last, seen := l.lastFetch[host]
		if !seen || now.Sub(last) >= l.interval {
			l.lastFetch[host] = now
			l.mu.Unlock()
			return nil
		}
		wait := l.interval - now.Sub(last)
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(wait):
		}
	}
}

// LastFetch reports the recorded time of the most recent permitted request
// to host, for audit and tests.
func (l *Limiter) LastFetch(host string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.lastFetch[host]
	return t, ok
}
