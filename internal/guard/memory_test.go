package guard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// testClock is a settable time source for deterministic guard tests.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestGuard(cfg Config) (*MemoryGuard, *testClock) {
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	return NewMemoryGuard(cfg, WithClock(clock.Now)), clock
}

func TestMemoryGuard_Idempotency(t *testing.T) {
	ctx := context.Background()

	t.Run("repeated key is rejected within the TTL", func(t *testing.T) {
		g, clock := newTestGuard(DefaultConfig())

		decision, err := g.Check(ctx, "user-1", "key-a")
		assert.NoError(t, err)
		assert.Equal(t, Allow, decision)

		clock.Advance(time.Minute)
		decision, err = g.Check(ctx, "user-1", "key-a")
		assert.NoError(t, err)
		assert.Equal(t, DuplicateRequest, decision)
	})

	t.Run("key expires after the TTL", func(t *testing.T) {
		g, clock := newTestGuard(DefaultConfig())

		decision, _ := g.Check(ctx, "user-1", "key-a")
		assert.Equal(t, Allow, decision)

		clock.Advance(10*time.Minute + time.Second)
		decision, _ = g.Check(ctx, "user-1", "key-a")
		assert.Equal(t, Allow, decision)
	})

	t.Run("keys are scoped per caller", func(t *testing.T) {
		g, _ := newTestGuard(DefaultConfig())

		decision, _ := g.Check(ctx, "user-1", "key-a")
		assert.Equal(t, Allow, decision)

		decision, _ = g.Check(ctx, "user-2", "key-a")
		assert.Equal(t, Allow, decision)
	})

	t.Run("empty key skips the duplicate check", func(t *testing.T) {
		g, _ := newTestGuard(DefaultConfig())

		decision, _ := g.Check(ctx, "user-1", "")
		assert.Equal(t, Allow, decision)
		decision, _ = g.Check(ctx, "user-1", "")
		assert.Equal(t, Allow, decision)
	})
}

func TestMemoryGuard_RateLimit(t *testing.T) {
	ctx := context.Background()

	t.Run("ceiling reached within the window", func(t *testing.T) {
		g, clock := newTestGuard(DefaultConfig())

		for i := 0; i < 3; i++ {
			decision, err := g.Check(ctx, "user-1", "")
			assert.NoError(t, err)
			assert.Equal(t, Allow, decision, "request %d", i+1)
			clock.Advance(time.Minute)
		}

		decision, _ := g.Check(ctx, "user-1", "")
		assert.Equal(t, RateLimited, decision)
	})

	t.Run("window slides to re-admit", func(t *testing.T) {
		g, clock := newTestGuard(DefaultConfig())

		for i := 0; i < 3; i++ {
			g.Check(ctx, "user-1", "")
			clock.Advance(time.Minute)
		}
		decision, _ := g.Check(ctx, "user-1", "")
		assert.Equal(t, RateLimited, decision)

		// The first request falls out of the window after 10 minutes
		// total; it was made 3 minutes ago at this point.
		clock.Advance(8 * time.Minute)
		decision, _ = g.Check(ctx, "user-1", "")
		assert.Equal(t, Allow, decision)
	})

	t.Run("limits are per caller", func(t *testing.T) {
		g, _ := newTestGuard(DefaultConfig())

		for i := 0; i < 3; i++ {
			g.Check(ctx, "user-1", "")
		}
		decision, _ := g.Check(ctx, "user-1", "")
		assert.Equal(t, RateLimited, decision)

		decision, _ = g.Check(ctx, "user-2", "")
		assert.Equal(t, Allow, decision)
	})

	t.Run("empty caller falls back to a shared bucket", func(t *testing.T) {
		g, _ := newTestGuard(DefaultConfig())

		for i := 0; i < 3; i++ {
			decision, _ := g.Check(ctx, "", "")
			assert.Equal(t, Allow, decision)
		}
		decision, _ := g.Check(ctx, "", "")
		assert.Equal(t, RateLimited, decision)
	})
}

func TestMemoryGuard_Ordering(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate wins over rate limit", func(t *testing.T) {
		g, _ := newTestGuard(DefaultConfig())

		decision, _ := g.Check(ctx, "user-1", "key-a")
		assert.Equal(t, Allow, decision)
		for i := 0; i < 2; i++ {
			g.Check(ctx, "user-1", "")
		}

		// The caller is now at the ceiling, but the repeated key must
		// still surface as a duplicate, not as rate limited.
		decision, _ = g.Check(ctx, "user-1", "key-a")
		assert.Equal(t, DuplicateRequest, decision)
	})

	t.Run("rejections leave no record", func(t *testing.T) {
		g, clock := newTestGuard(DefaultConfig())

		for i := 0; i < 3; i++ {
			g.Check(ctx, "user-1", "")
		}
		decision, _ := g.Check(ctx, "user-1", "key-b")
		assert.Equal(t, RateLimited, decision)

		// key-b was not recorded by the rejected attempt, so once the
		// window clears it is admitted as a fresh key.
		clock.Advance(11 * time.Minute)
		decision, _ = g.Check(ctx, "user-1", "key-b")
		assert.Equal(t, Allow, decision)
	})

	t.Run("duplicate does not consume rate budget", func(t *testing.T) {
		g, _ := newTestGuard(DefaultConfig())

		g.Check(ctx, "user-1", "key-a")
		for i := 0; i < 5; i++ {
			decision, _ := g.Check(ctx, "user-1", "key-a")
			assert.Equal(t, DuplicateRequest, decision)
		}

		// Only one admission so far; two more fit under the ceiling.
		decision, _ := g.Check(ctx, "user-1", "")
		assert.Equal(t, Allow, decision)
		decision, _ = g.Check(ctx, "user-1", "")
		assert.Equal(t, Allow, decision)
		decision, _ = g.Check(ctx, "user-1", "")
		assert.Equal(t, RateLimited, decision)
	})
}

func TestMemoryGuard_Sweep(t *testing.T) {
	ctx := context.Background()
	g, clock := newTestGuard(DefaultConfig())

	g.Check(ctx, "user-1", "key-a")
	g.Check(ctx, "user-2", "key-b")

	// Nothing is stale yet.
	assert.Equal(t, 0, g.Sweep(clock.Now()))

	// Past both the idempotency TTL and the rate window everything is
	// evicted: two keys plus two caller buckets.
	clock.Advance(11 * time.Minute)
	assert.Equal(t, 4, g.Sweep(clock.Now()))
	assert.Equal(t, 0, g.Sweep(clock.Now()))
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "allow", Allow.String())
	assert.Equal(t, "duplicate_request", DuplicateRequest.String())
	assert.Equal(t, "rate_limited", RateLimited.String())
	assert.Equal(t, "unknown", Decision(99).String())
}
