package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-secret-0123456789abcdef0123"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("VAH_JWT_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)

	assert.Equal(t, 3, cfg.Forwarding.RateLimitMax)
	assert.Equal(t, 10*time.Minute, cfg.Forwarding.RateLimitWindow)
	assert.Equal(t, 10*time.Minute, cfg.Forwarding.IdempotencyTTL)
	assert.Equal(t, 30, cfg.Forwarding.StorageDays)

	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "info", cfg.Log.Level)

	// Empty database type selects the in-memory store.
	assert.Empty(t, cfg.Database.Type)
	assert.Empty(t, cfg.Redis.Address)

	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessExpiry)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.RefreshExpiry)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("VAH_JWT_SECRET", testSecret)
	t.Setenv("VAH_SERVER_PORT", "9090")
	t.Setenv("VAH_FORWARDING_RATE_LIMIT_MAX", "5")
	t.Setenv("VAH_FORWARDING_RATE_LIMIT_WINDOW", "30m")
	t.Setenv("VAH_FORWARDING_STORAGE_DAYS", "14")
	t.Setenv("VAH_CORS_ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Forwarding.RateLimitMax)
	assert.Equal(t, 30*time.Minute, cfg.Forwarding.RateLimitWindow)
	assert.Equal(t, 14, cfg.Forwarding.StorageDays)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_JWTSecretValidation(t *testing.T) {
	t.Run("default secret is refused", func(t *testing.T) {
		t.Setenv("VAH_JWT_SECRET", "change-me-in-production")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("short secret is refused", func(t *testing.T) {
		t.Setenv("VAH_JWT_SECRET", "too-short")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestLoad_GuardValidation(t *testing.T) {
	t.Run("non-positive ceiling is refused", func(t *testing.T) {
		t.Setenv("VAH_JWT_SECRET", testSecret)
		t.Setenv("VAH_FORWARDING_RATE_LIMIT_MAX", "0")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("bad window duration is refused", func(t *testing.T) {
		t.Setenv("VAH_JWT_SECRET", testSecret)
		t.Setenv("VAH_FORWARDING_RATE_LIMIT_WINDOW", "banana")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("negative idempotency TTL is refused", func(t *testing.T) {
		t.Setenv("VAH_JWT_SECRET", testSecret)
		t.Setenv("VAH_FORWARDING_IDEMPOTENCY_TTL", "-1m")
		_, err := Load()
		assert.Error(t, err)
	})
}
