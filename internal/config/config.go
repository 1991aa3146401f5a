package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string
	Port int
}

// ForwardingConfig holds the forwarding request guard settings. The
// rate limit is a sliding window per user; the idempotency TTL bounds
// how long a key suppresses duplicates.
type ForwardingConfig struct {
	RateLimitMax    int
	RateLimitWindow time.Duration
	IdempotencyTTL  time.Duration
	SweepInterval   time.Duration
	StorageDays     int
}

// CORSConfig holds cross-origin settings for the browser dashboard.
type CORSConfig struct {
	AllowedOrigins []string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// DatabaseConfig holds the SQL connection settings. An empty Type
// selects the in-memory store.
type DatabaseConfig struct {
	Type            string // "mysql" or "postgres"
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis settings. Redis backs the guard when an
// address is configured; otherwise the in-process guard is used.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// JWTConfig holds token signing settings.
type JWTConfig struct {
	Secret        string
	Issuer        string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// NotifyConfig holds webhook delivery settings.
type NotifyConfig struct {
	Timeout       time.Duration
	MaxRetries    int
	RetryInterval time.Duration
	Workers       int
}

// Config is the root configuration for the service.
type Config struct {
	Server     ServerConfig
	Forwarding ForwardingConfig
	CORS       CORSConfig
	Log        LogConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Notify     NotifyConfig
}

// Load reads configuration from environment variables and an optional
// .env file. Precedence, highest first: process environment, .env
// file, built-in defaults. Variables use the VAH_ prefix, for example
// VAH_SERVER_PORT or VAH_JWT_SECRET.
func Load() (*Config, error) {
	loadEnvFile()

	viper.SetEnvPrefix("vah")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("forwarding.rate_limit_max", 3)
	viper.SetDefault("forwarding.rate_limit_window", "10m")
	viper.SetDefault("forwarding.idempotency_ttl", "10m")
	viper.SetDefault("forwarding.sweep_interval", "1m")
	viper.SetDefault("forwarding.storage_days", 30)
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("database.type", "") // empty selects the in-memory store
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("redis.address", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.issuer", "virtualaddresshub")
	viper.SetDefault("jwt.access_expiry", "15m")
	viper.SetDefault("jwt.refresh_expiry", "168h")
	viper.SetDefault("notify.timeout", "10s")
	viper.SetDefault("notify.max_retries", 3)
	viper.SetDefault("notify.retry_interval", "30s")
	viper.SetDefault("notify.workers", 4)

	rateLimitMax := viper.GetInt("forwarding.rate_limit_max")
	if rateLimitMax <= 0 {
		return nil, fmt.Errorf("forwarding.rate_limit_max must be positive, got %d", rateLimitMax)
	}

	rateLimitWindow, err := time.ParseDuration(viper.GetString("forwarding.rate_limit_window"))
	if err != nil {
		return nil, fmt.Errorf("invalid forwarding.rate_limit_window: %w", err)
	}
	if rateLimitWindow <= 0 {
		return nil, fmt.Errorf("forwarding.rate_limit_window must be positive")
	}

	idempotencyTTL, err := time.ParseDuration(viper.GetString("forwarding.idempotency_ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid forwarding.idempotency_ttl: %w", err)
	}
	if idempotencyTTL <= 0 {
		return nil, fmt.Errorf("forwarding.idempotency_ttl must be positive")
	}

	sweepInterval, err := time.ParseDuration(viper.GetString("forwarding.sweep_interval"))
	if err != nil {
		sweepInterval = time.Minute
	}

	storageDays := viper.GetInt("forwarding.storage_days")
	if storageDays < 0 {
		storageDays = 0 // zero means mail never expires
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	connMaxLifetime, err := time.ParseDuration(viper.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	accessExpiry, err := time.ParseDuration(viper.GetString("jwt.access_expiry"))
	if err != nil {
		accessExpiry = 15 * time.Minute
	}

	refreshExpiry, err := time.ParseDuration(viper.GetString("jwt.refresh_expiry"))
	if err != nil {
		refreshExpiry = 7 * 24 * time.Hour
	}

	jwtSecret := viper.GetString("jwt.secret")
	if jwtSecret == "change-me-in-production" {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret cannot be the default value. Please set VAH_JWT_SECRET environment variable")
	}
	if len(jwtSecret) < 32 {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret must be at least 32 characters long")
	}

	notifyTimeout, err := time.ParseDuration(viper.GetString("notify.timeout"))
	if err != nil {
		notifyTimeout = 10 * time.Second
	}

	retryInterval, err := time.ParseDuration(viper.GetString("notify.retry_interval"))
	if err != nil {
		retryInterval = 30 * time.Second
	}

	notifyWorkers := viper.GetInt("notify.workers")
	if notifyWorkers <= 0 {
		notifyWorkers = 4
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Forwarding: ForwardingConfig{
			RateLimitMax:    rateLimitMax,
			RateLimitWindow: rateLimitWindow,
			IdempotencyTTL:  idempotencyTTL,
			SweepInterval:   sweepInterval,
			StorageDays:     storageDays,
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
		},
		Database: DatabaseConfig{
			Type:            viper.GetString("database.type"),
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:        jwtSecret,
			Issuer:        viper.GetString("jwt.issuer"),
			AccessExpiry:  accessExpiry,
			RefreshExpiry: refreshExpiry,
		},
		Notify: NotifyConfig{
			Timeout:       notifyTimeout,
			MaxRetries:    viper.GetInt("notify.max_retries"),
			RetryInterval: retryInterval,
			Workers:       notifyWorkers,
		},
	}

	return cfg, nil
}

// parseList splits a comma-separated string into trimmed items.
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile loads an optional .env from the working directory or its
// parent. Existing environment variables are never overwritten.
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}
	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
