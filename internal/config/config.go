// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "json" or "text"

	// Storage
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)
	RedisURL    string // Cache backend (optional, uses in-memory if not set)

	// Blacklist gate
	FlagThreshold int // global flags-to-blacklist threshold
	FlagsPerDay   int // per-wallet daily flag quota, 0 disables

	// Explorer data provider
	ExplorerURL    string // empty uses the static in-memory provider
	ExplorerAPIKey string
	OriginTimeout  time.Duration

	// Security
	SessionSecret        string // HS256 key for session tokens
	SessionIssuer        string
	AdminSecret          string // Admin API secret
	ReputationHMACSecret string // HMAC secret for signing reputation responses (optional)
	RateLimitRPM         int
	CORSOrigins          string

	// Tracing
	OTLPEndpoint string
}

// Defaults
const (
	DefaultPort          = "8080"
	DefaultEnv           = "development"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "json"
	DefaultFlagThreshold = 5
	DefaultFlagsPerDay   = 20
	DefaultOriginTimeout = 8 * time.Second
	DefaultRateLimit     = 120
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", DefaultPort),
		Env:                  getEnv("ENV", DefaultEnv),
		LogLevel:             getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:            getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisURL:             os.Getenv("REDIS_URL"),
		FlagThreshold:        int(getEnvInt64("FLAG_THRESHOLD", DefaultFlagThreshold)),
		FlagsPerDay:          int(getEnvInt64("FLAGS_PER_DAY", DefaultFlagsPerDay)),
		ExplorerURL:          os.Getenv("EXPLORER_URL"),
		ExplorerAPIKey:       os.Getenv("EXPLORER_API_KEY"),
		OriginTimeout:        getEnvDuration("ORIGIN_TIMEOUT", DefaultOriginTimeout),
		SessionSecret:        os.Getenv("SESSION_SECRET"),
		SessionIssuer:        os.Getenv("SESSION_ISSUER"),
		AdminSecret:          os.Getenv("ADMIN_SECRET"),
		ReputationHMACSecret: os.Getenv("REPUTATION_HMAC_SECRET"),
		RateLimitRPM:         int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimit)),
		CORSOrigins:          os.Getenv("CORS_ALLOWED_ORIGINS"),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.FlagThreshold < 1 {
		return fmt.Errorf("FLAG_THRESHOLD must be at least 1, got %d", c.FlagThreshold)
	}
	if c.FlagsPerDay < 0 {
		return fmt.Errorf("FLAGS_PER_DAY must not be negative")
	}
	if c.OriginTimeout <= 0 {
		return fmt.Errorf("ORIGIN_TIMEOUT must be positive")
	}
	if c.ExplorerURL != "" {
		u, err := url.Parse(c.ExplorerURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("EXPLORER_URL must be an absolute URL")
		}
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text")
	}

	if c.IsProduction() {
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in production")
		}
		if len(c.SessionSecret) < 32 {
			return fmt.Errorf("SESSION_SECRET must be at least 32 bytes")
		}
		if c.AdminSecret == "" {
			return fmt.Errorf("ADMIN_SECRET is required in production")
		}
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required in production")
		}
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
