// Package health wires liveness and readiness probes.
package health

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"virtualaddresshub/backend/internal/storage"
)

// HealthChecker aggregates the service's probe endpoints.
type HealthChecker struct {
	health healthcheck.Handler
	store  storage.Store
	logger *zap.Logger
}

// NewHealthChecker builds the checker with a storage liveness probe.
// A Redis probe is added when a client is provided.
func NewHealthChecker(store storage.Store, redisClient *redis.Client, logger *zap.Logger) *HealthChecker {
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		store:  store,
		logger: logger,
	}

	hc.health.AddReadinessCheck("storage", func() error {
		return hc.store.Health()
	})

	if redisClient != nil {
		hc.health.AddReadinessCheck("redis", RedisHealthCheck(redisClient))
	}

	hc.health.AddLivenessCheck("goroutine-count", healthcheck.GoroutineCountCheck(2000))

	return hc
}

// Handler exposes /live and /ready.
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// DatabaseHealthCheck pings a raw connection pool with a timeout.
func DatabaseHealthCheck(db *sql.DB) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return db.PingContext(ctx)
	}
}

// RedisHealthCheck pings the Redis backing the forwarding guard.
func RedisHealthCheck(client *redis.Client) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return client.Ping(ctx).Err()
	}
}
