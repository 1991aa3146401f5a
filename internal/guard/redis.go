package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGuard backs the admission checks with Redis so that the
// duplicate-key and rate-ceiling guarantees hold across horizontally
// scaled instances. SETNX gives the atomic check-then-record for
// idempotency; the rate limit uses a fixed counter with a window TTL,
// which is slightly coarser than the in-memory sliding window but keeps
// every operation a single atomic Redis command.
type RedisGuard struct {
	client *redis.Client
	cfg    Config
}

// NewRedisGuard connects to Redis and returns a distributed guard.
func NewRedisGuard(addr, password string, db int, cfg Config) (*RedisGuard, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisGuard{client: client, cfg: cfg}, nil
}

func (g *RedisGuard) idempotencyKey(callerID, key string) string {
	return fmt.Sprintf("guard:idem:%s:%s", callerID, key)
}

func (g *RedisGuard) rateKey(callerID string) string {
	return fmt.Sprintf("guard:rate:%s", callerID)
}

// Check applies the same ordering contract as MemoryGuard: idempotency
// first, then the rate limit, with records written only on admission.
func (g *RedisGuard) Check(ctx context.Context, callerID, idempotencyKey string) (Decision, error) {
	if callerID == "" {
		callerID = "anon"
	}

	// Phase 1: reserve the idempotency key. SET NX is atomic, so of
	// two concurrent requests with the same key exactly one wins.
	reserved := false
	if idempotencyKey != "" {
		key := g.idempotencyKey(callerID, idempotencyKey)
		ok, err := g.client.SetNX(ctx, key, 1, g.cfg.IdempotencyTTL).Result()
		if err != nil {
			return Allow, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return DuplicateRequest, nil
		}
		reserved = true
	}

	count, err := g.client.Incr(ctx, g.rateKey(callerID)).Result()
	if err != nil {
		return Allow, fmt.Errorf("rate limit check failed: %w", err)
	}
	if count == 1 {
		g.client.Expire(ctx, g.rateKey(callerID), g.cfg.RateLimitWindow)
	}
	if count > int64(g.cfg.RateLimitMax) {
		// Undo both records: a rejected request must not consume
		// budget or burn its idempotency key.
		g.client.Decr(ctx, g.rateKey(callerID))
		if reserved {
			g.client.Del(ctx, g.idempotencyKey(callerID, idempotencyKey))
		}
		return RateLimited, nil
	}

	return Allow, nil
}

// Client exposes the underlying connection for health checks.
func (g *RedisGuard) Client() *redis.Client {
	return g.client
}

// Close releases the Redis connection pool.
func (g *RedisGuard) Close() error {
	return g.client.Close()
}
