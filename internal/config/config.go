// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string
	LogFmt   string // "json" or "text"

	// Database. Optional: in-memory stores are used if not set.
	DatabaseURL string

	// Redis, backing the cross-process payment lock. Optional: an
	// in-process lock is used if not set (single-instance deployments).
	RedisURL string

	// Lightning node
	LndGRPCAddr     string
	LndTLSCertPath  string
	LndMacaroonPath string

	// Reconciliation
	ReconcileInterval time.Duration
	ReconcileWorkers  int
}

const (
	DefaultPort              = "8080"
	DefaultEnv               = "development"
	DefaultLogLevel          = "info"
	DefaultLogFmt            = "json"
	DefaultLndGRPCAddr       = "localhost:10009"
	DefaultReconcileInterval = time.Minute
	DefaultReconcileWorkers  = 8
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", DefaultPort),
		Env:               getEnv("ENV", DefaultEnv),
		LogLevel:          getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFmt:            getEnv("LOG_FORMAT", DefaultLogFmt),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		LndGRPCAddr:       getEnv("LND_GRPC_ADDR", DefaultLndGRPCAddr),
		LndTLSCertPath:    os.Getenv("LND_TLS_CERT_PATH"),
		LndMacaroonPath:   os.Getenv("LND_MACAROON_PATH"),
		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", DefaultReconcileInterval),
		ReconcileWorkers:  int(getEnvInt64("RECONCILE_WORKERS", DefaultReconcileWorkers)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required in production")
		}
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required in production")
		}
	}
	if c.LndEnabled() {
		if c.LndTLSCertPath == "" {
			return fmt.Errorf("LND_TLS_CERT_PATH is required when a node is configured")
		}
		if c.LndMacaroonPath == "" {
			return fmt.Errorf("LND_MACAROON_PATH is required when a node is configured")
		}
	}
	if c.ReconcileWorkers <= 0 {
		return fmt.Errorf("RECONCILE_WORKERS must be positive")
	}
	if c.ReconcileInterval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must be positive")
	}
	return nil
}

// LndEnabled reports whether a node connection is configured. Without one
// the daemon runs in demo mode against seeded in-memory data.
func (c *Config) LndEnabled() bool {
	return c.LndTLSCertPath != "" || c.LndMacaroonPath != ""
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
