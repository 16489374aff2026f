// Package memorylimiter implements an in-process per-key rate limiter.
package memorylimiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// pruneInterval bounds how often idle keys are swept.
const pruneInterval = time.Minute

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter holds one token bucket per key.
type Limiter struct {
	limit  rate.Limit
	burst  int
	window time.Duration

	mu        sync.Mutex
	keys      map[string]*entry
	lastPrune time.Time

	now func() time.Time
}

// New creates a limiter allowing permits requests per window for each key.
func New(permits int, window time.Duration) *Limiter {
	return &Limiter{
		limit:  rate.Limit(float64(permits) / window.Seconds()),
		burst:  permits,
		window: window,
		keys:   map[string]*entry{},
		now:    time.Now,
	}
}

// Allow consumes one permit for key.
func (l *Limiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(now)

	e, found := l.keys[key]
	if !found {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.keys[key] = e
	}
	e.lastSeen = now

	return e.limiter.AllowN(now, 1), nil
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}

// prune drops keys idle for longer than one window; a refilled bucket
// is equivalent to a fresh one. Caller holds mu.
func (l *Limiter) prune(now time.Time) {
	if now.Sub(l.lastPrune) < pruneInterval {
		return
	}
	l.lastPrune = now
	for k, e := range l.keys {
		if now.Sub(e.lastSeen) > l.window {
			delete(l.keys, k)
		}
	}
}
