// Package guard implements admission control for forwarding requests:
// idempotency-key deduplication followed by a per-caller sliding-window
// rate limit. Both checks share one mutex so that concurrent requests
// cannot race the check-then-record sequence.
package guard

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Decision is the outcome of a guard check.
type Decision int

const (
	// Allow admits the request; the idempotency key (if any) and a
	// rate-limit timestamp have been recorded.
	Allow Decision = iota
	// DuplicateRequest rejects an idempotency key that was already
	// seen within the TTL. The caller must change the key to proceed.
	DuplicateRequest
	// RateLimited rejects a caller who reached the request ceiling
	// within the window.
	RateLimited
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case DuplicateRequest:
		return "duplicate_request"
	case RateLimited:
		return "rate_limited"
	}
	return "unknown"
}

// Guard is the admission-control interface. Check is synchronous and,
// per key, atomic: no two concurrent requests with the same idempotency
// key are both admitted, and no two concurrent requests from the same
// caller can race past the rate ceiling.
type Guard interface {
	Check(ctx context.Context, callerID, idempotencyKey string) (Decision, error)
}

// Config carries the guard tunables. The defaults mirror observed
// production policy and may be business numbers rather than technical
// ones; treat them as configuration.
type Config struct {
	RateLimitMax    int           // requests admitted per caller per window
	RateLimitWindow time.Duration // sliding window length
	IdempotencyTTL  time.Duration // how long a seen key blocks repeats
	SweepInterval   time.Duration // background eviction cadence
}

// DefaultConfig returns the standard guard policy: at most 3 requests
// per caller per 10 minutes, idempotency keys remembered for 10 minutes.
func DefaultConfig() Config {
	return Config{
		RateLimitMax:    3,
		RateLimitWindow: 10 * time.Minute,
		IdempotencyTTL:  10 * time.Minute,
		SweepInterval:   time.Minute,
	}
}

// RunSweep drives a periodic eviction pass until the context is
// cancelled. Memory guards also expire entries lazily on read, so the
// sweep only bounds memory for keys that are never touched again.
func RunSweep(ctx context.Context, g interface{ Sweep(now time.Time) int }, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := g.Sweep(now); removed > 0 {
				log.Debug("guard sweep evicted entries", zap.Int("removed", removed))
			}
		}
	}
}
