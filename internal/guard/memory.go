package guard

import (
	"context"
	"sync"
	"time"
)

// MemoryGuard keeps both stores in process memory. This is the
// single-instance contract: state does not survive a restart and is not
// shared across horizontally scaled replicas. Deployments running more
// than one instance should use RedisGuard instead.
type MemoryGuard struct {
	cfg Config

	mu       sync.Mutex
	seenKeys map[string]time.Time // composite idempotency key -> expiry
	requests map[string][]time.Time

	now func() time.Time
}

// Option configures a MemoryGuard.
type Option func(*MemoryGuard)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *MemoryGuard) {
		g.now = now
	}
}

// NewMemoryGuard creates an in-process guard with the given policy.
func NewMemoryGuard(cfg Config, opts ...Option) *MemoryGuard {
	g := &MemoryGuard{
		cfg:      cfg,
		seenKeys: make(map[string]time.Time),
		requests: make(map[string][]time.Time),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// compositeKey scopes an idempotency key to its caller so callers
// cannot collide with (or probe) each other's keys.
func compositeKey(callerID, idempotencyKey string) string {
	return callerID + "\x00" + idempotencyKey
}

// Check runs the idempotency check first, then the rate limit. Records
// are written only on the path that leads to admission: a duplicate does
// not consume rate budget and a rate-limited request leaves no trace.
func (g *MemoryGuard) Check(_ context.Context, callerID, idempotencyKey string) (Decision, error) {
	if callerID == "" {
		callerID = "anon"
	}
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	if idempotencyKey != "" {
		key := compositeKey(callerID, idempotencyKey)
		if expiry, seen := g.seenKeys[key]; seen {
			if now.Before(expiry) {
				return DuplicateRequest, nil
			}
			delete(g.seenKeys, key) // lazy expiry
		}
	}

	cutoff := now.Add(-g.cfg.RateLimitWindow)
	recent := g.requests[callerID][:0]
	for _, ts := range g.requests[callerID] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= g.cfg.RateLimitMax {
		g.requests[callerID] = recent
		return RateLimited, nil
	}

	if idempotencyKey != "" {
		g.seenKeys[compositeKey(callerID, idempotencyKey)] = now.Add(g.cfg.IdempotencyTTL)
	}
	g.requests[callerID] = append(recent, now)
	return Allow, nil
}

// Sweep evicts expired idempotency keys and stale rate-limit lists,
// returning the number of entries removed.
func (g *MemoryGuard) Sweep(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for key, expiry := range g.seenKeys {
		if !now.Before(expiry) {
			delete(g.seenKeys, key)
			removed++
		}
	}

	cutoff := now.Add(-g.cfg.RateLimitWindow)
	for caller, timestamps := range g.requests {
		recent := timestamps[:0]
		for _, ts := range timestamps {
			if ts.After(cutoff) {
				recent = append(recent, ts)
			}
		}
		if len(recent) == 0 {
			delete(g.requests, caller)
			removed++
			continue
		}
		g.requests[caller] = recent
	}
	return removed
}
