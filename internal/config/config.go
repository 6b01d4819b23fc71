// Package config provides configuration management for the chat router.
// Values are loaded from environment variables with sensible defaults and
// validated before the application starts.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//   - ROUTER_ENABLED: Whether routing is enabled (default: true)
//
// Webhook Channel:
//   - WEBHOOK_VERIFY_TOKEN: Token for the provider verification handshake (required)
//   - WEBHOOK_APP_SECRET: Shared secret for HMAC signature verification (required)
//
// Routing:
//   - DESTINATION_ALLOWLIST: Comma-separated destination slugs/hosts (default: empty, allow all)
//   - DESTINATION_CACHE_TTL_MS: Destination cache TTL in milliseconds (default: 30000)
//   - FANOUT_TIMEOUT_MS: Per-destination fanout timeout in milliseconds (default: 5000)
//
// Rate Limiting:
//   - RATE_LIMIT_WINDOW_SECONDS: Per-sender window in seconds (default: 60)
//   - RATE_LIMIT_MAX_MESSAGES: Max messages per sender per window (default: 20)
//
// Backing Store:
//   - DATABASE_URL: PostgreSQL connection string (required)
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - REDIS_POOL_SIZE: Redis connection pool size (default: 10)
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values for the chat router.
type Config struct {
	// Application settings
	Port          string
	LogLevel      string
	RouterEnabled bool

	// Webhook channel credentials
	VerifyToken string
	AppSecret   string

	// Routing configuration
	DestinationAllowlist []string
	DestinationCacheTTL  time.Duration
	FanoutTimeout        time.Duration

	// Rate limiting configuration
	RateLimitWindowSeconds int
	RateLimitMaxMessages   int

	// Backing store configuration
	DatabaseURL   string
	RedisAddress  string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int
}

// Load creates a Config with values from environment variables. Call
// Validate() on the result before use.
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		RouterEnabled: getBoolEnv("ROUTER_ENABLED", true),

		VerifyToken: getEnv("WEBHOOK_VERIFY_TOKEN", ""),
		AppSecret:   getEnv("WEBHOOK_APP_SECRET", ""),

		DestinationAllowlist: getListEnv("DESTINATION_ALLOWLIST"),
		DestinationCacheTTL:  getMillisEnv("DESTINATION_CACHE_TTL_MS", 30000),
		FanoutTimeout:        getMillisEnv("FANOUT_TIMEOUT_MS", 5000),

		RateLimitWindowSeconds: getIntEnv("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitMaxMessages:   getIntEnv("RATE_LIMIT_MAX_MESSAGES", 20),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddress:  getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		RedisPoolSize: getIntEnv("REDIS_POOL_SIZE", 10),
	}
}

// Validate checks that required fields are present and all values are usable.
func (c *Config) Validate() error {
	if c.VerifyToken == "" {
		return fmt.Errorf("WEBHOOK_VERIFY_TOKEN environment variable is required")
	}

	if c.AppSecret == "" {
		return fmt.Errorf("WEBHOOK_APP_SECRET environment variable is required")
	}

	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}

	if c.RedisDB < 0 || c.RedisDB > 15 {
		return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
	}

	if c.RedisPoolSize < 1 {
		return fmt.Errorf("REDIS_POOL_SIZE must be a positive number")
	}

	if c.RateLimitWindowSeconds < 1 {
		return fmt.Errorf("RATE_LIMIT_WINDOW_SECONDS must be a positive number")
	}

	if c.RateLimitMaxMessages < 1 {
		return fmt.Errorf("RATE_LIMIT_MAX_MESSAGES must be a positive number")
	}

	if c.DestinationCacheTTL <= 0 {
		return fmt.Errorf("DESTINATION_CACHE_TTL_MS must be a positive number")
	}

	if c.FanoutTimeout <= 0 {
		return fmt.Errorf("FANOUT_TIMEOUT_MS must be a positive number")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getMillisEnv(key string, defaultMillis int) time.Duration {
	return time.Duration(getIntEnv(key, defaultMillis)) * time.Millisecond
}

// getListEnv parses a comma-separated environment variable, dropping empty
// entries and surrounding whitespace.
func getListEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}

	var entries []string
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			entries = append(entries, entry)
		}
	}
	return entries
}
