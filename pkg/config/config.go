package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gatherhq/gather/pkg/observability"
	"github.com/gatherhq/gather/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Observability configuration
	Observability ObservabilityConfig

	// Access-control configuration
	Access AccessConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Trusted header the upstream gateway asserts the user id in
	UserHeader string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// AccessConfig holds policy engine and invite service settings
type AccessConfig struct {
	// Cache warm-up pass run before the server accepts traffic
	WarmupTTL   time.Duration
	WarmupLimit int

	// Invite expiry sweep cron expression (empty disables)
	SweepSchedule string

	// Public invite endpoints rate limit
	PublicRateLimit       int
	PublicRateLimitWindow time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Observability: loadObservabilityConfig(),
		Access:        loadAccessConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("GATHER_HOST", "0.0.0.0"),
		Port:            getEnv("GATHER_PORT", "8080"),
		ReadTimeout:     getEnvDuration("GATHER_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("GATHER_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("GATHER_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("GATHER_SHUTDOWN_TIMEOUT", 30*time.Second),
		UserHeader:      getEnv("GATHER_USER_HEADER", "X-Gather-User"),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	// PostgreSQL config
	if pgURL := getEnv("GATHER_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if maxConns := getEnvInt("GATHER_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("GATHER_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("GATHER_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	// Redis config
	if redisURL := getEnv("GATHER_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("GATHER_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("GATHER_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("GATHER_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("GATHER_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	// Cache config
	if cacheEnabled := getEnv("GATHER_CACHE_ENABLED", ""); cacheEnabled != "" {
		cfg.CacheEnabled = strings.ToLower(cacheEnabled) == "true"
	}
	if ttl := getEnvDuration("GATHER_CACHE_TTL", 0); ttl > 0 {
		cfg.CacheTTL[storage.CacheKindRoleID] = ttl
		cfg.CacheTTL[storage.CacheKindUserRole] = ttl
	}

	return cfg
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       observability.ParseLogLevel(getEnv("GATHER_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("GATHER_METRICS_ENABLED", true),
	}
}

// loadAccessConfig loads policy engine settings from environment
func loadAccessConfig() AccessConfig {
	return AccessConfig{
		WarmupTTL:             getEnvDuration("GATHER_WARMUP_TTL", 12*time.Hour),
		WarmupLimit:           getEnvInt("GATHER_WARMUP_LIMIT", 5000),
		SweepSchedule:         getEnv("GATHER_INVITE_SWEEP_SCHEDULE", "0 * * * *"),
		PublicRateLimit:       getEnvInt("GATHER_PUBLIC_RATE_LIMIT", 30),
		PublicRateLimitWindow: getEnvDuration("GATHER_PUBLIC_RATE_LIMIT_WINDOW", time.Minute),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Storage.CacheEnabled && c.Storage.RedisURL == "" {
		return fmt.Errorf("redis URL is required when the cache is enabled")
	}

	// The staleness window is bounded by the cache TTL; cap it at an
	// hour.
	for kind, ttl := range c.Storage.CacheTTL {
		if ttl > time.Hour {
			return fmt.Errorf("cache TTL for %s exceeds the 1h staleness bound", kind)
		}
	}

	if c.Access.WarmupLimit < 0 {
		return fmt.Errorf("warm-up limit must not be negative")
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
