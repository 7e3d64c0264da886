// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Service names accepted in SERVICES.
const (
	ServiceRates     = "rates"
	ServiceSimulator = "simulator"
	ServiceHistory   = "history"
	ServiceCart      = "cart"
	ServiceQuote     = "quote"
)

var allServices = []string{ServiceRates, ServiceSimulator, ServiceHistory, ServiceCart, ServiceQuote}

// Session backends accepted in SESSION_BACKEND.
const (
	SessionMemory = "memory"
	SessionRedis  = "redis"
	SessionPebble = "pebble"
)

// Config holds all runtime configuration.
type Config struct {
	Port         string
	DatabaseURL  string
	DBMaxConns   int
	RedisURL     string
	RateCacheTTL time.Duration

	// Services lists the route groups this process mounts.
	Services []string

	Session  SessionConfig
	Ledger   LedgerConfig
	Kafka    KafkaConfig
	CORS     CORSConfig
	Export   ExportConfig
	Currency CurrencyConfig
}

// SessionConfig selects the shared session store.
type SessionConfig struct {
	Backend string
	// TTL expires a session this long after its last write. It applies to
	// the redis and memory backends; pebble sessions are kept until removed.
	TTL       time.Duration
	PebbleDir string
}

// LedgerConfig points the cart and quote services at a remote history
// service. An empty URL means the local ledger is used.
type LedgerConfig struct {
	URL     string
	Timeout time.Duration
}

// KafkaConfig enables the activity event stream when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// CORSConfig lists the allowed browser origins.
type CORSConfig struct {
	AllowedOrigins []string
}

// ExportConfig enables archiving cart CSV exports to S3 when S3Bucket is set.
type ExportConfig struct {
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Prefix    string
}

// CurrencyConfig points at an exchange rate API returning USD-based rates.
// With no URL only the built-in fallback rates are used.
type CurrencyConfig struct {
	APIURL   string
	CacheTTL time.Duration
	Timeout  time.Duration
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Port:         getEnvOrDefault("PORT", "8080"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DBMaxConns:   getIntOrDefault("DB_MAX_CONNS", 10),
		RedisURL:     os.Getenv("REDIS_URL"),
		RateCacheTTL: getDurationOrDefault("RATE_CACHE_TTL", 30*time.Second),
		Services:     parseCommaSeparated(getEnvOrDefault("SERVICES", strings.Join(allServices, ","))),
		Session: SessionConfig{
			Backend:   getEnvOrDefault("SESSION_BACKEND", SessionMemory),
			TTL:       getDurationOrDefault("SESSION_TTL", 30*time.Minute),
			PebbleDir: getEnvOrDefault("SESSION_PEBBLE_DIR", "data/sessions"),
		},
		Ledger: LedgerConfig{
			URL:     strings.TrimRight(os.Getenv("LEDGER_URL"), "/"),
			Timeout: getDurationOrDefault("LEDGER_TIMEOUT", 5*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: parseCommaSeparated(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnvOrDefault("KAFKA_TOPIC", "tariff-activity"),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseCommaSeparated(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		},
		Export: ExportConfig{
			S3Bucket:    os.Getenv("EXPORT_S3_BUCKET"),
			S3Region:    getEnvOrDefault("EXPORT_S3_REGION", "us-east-1"),
			S3Endpoint:  os.Getenv("EXPORT_S3_ENDPOINT"),
			S3AccessKey: os.Getenv("EXPORT_S3_ACCESS_KEY"),
			S3SecretKey: os.Getenv("EXPORT_S3_SECRET_KEY"),
			S3Prefix:    getEnvOrDefault("EXPORT_S3_PREFIX", "exports/"),
		},
		Currency: CurrencyConfig{
			APIURL:   os.Getenv("CURRENCY_API_URL"),
			CacheTTL: getDurationOrDefault("CURRENCY_CACHE_TTL", time.Hour),
			Timeout:  getDurationOrDefault("CURRENCY_TIMEOUT", 5*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	switch c.Session.Backend {
	case SessionMemory:
	case SessionRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when SESSION_BACKEND=redis")
		}
	case SessionPebble:
		if c.Session.PebbleDir == "" {
			return fmt.Errorf("SESSION_PEBBLE_DIR is required when SESSION_BACKEND=pebble")
		}
	default:
		return fmt.Errorf("unsupported SESSION_BACKEND: %s", c.Session.Backend)
	}
	if len(c.Services) == 0 {
		return fmt.Errorf("SERVICES must name at least one service")
	}
	for _, s := range c.Services {
		if !contains(allServices, s) {
			return fmt.Errorf("unknown service in SERVICES: %s", s)
		}
	}
	return nil
}

// Enabled reports whether the named service should be mounted.
func (c *Config) Enabled(service string) bool {
	return contains(c.Services, service)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// getEnvOrDefault returns the value of an environment variable or a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntOrDefault returns the integer value of an environment variable or a default value
func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// parseCommaSeparated splits a comma-separated string into a slice of trimmed strings
func parseCommaSeparated(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
