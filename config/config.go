package config

import (
	"os"
	"strconv"
	"time"
)

// Defaults
const (
	DefaultAddr            = ":8080"
	DefaultDatabasePath    = "./data/signagecontrol.db"
	DefaultMigrationsPath  = "./scripts/migrations.sql"
	DefaultMaxConnections  = 500
	DefaultInactiveTimeout = 90 * time.Second
	DefaultSweepInterval   = 60 * time.Second
)

// Config holds the runtime configuration, read from environment variables
// with defaults suitable for local development
type Config struct {
	Addr            string
	DatabasePath    string
	MigrationsPath  string
	AuthSecret      string
	MaxConnections  int
	InactiveTimeout time.Duration
	SweepInterval   time.Duration
	LogLevel        string
	Debug           bool
}

func Load() Config {
	return Config{
		Addr:            envString("SIGNAGE_ADDR", DefaultAddr),
		DatabasePath:    envString("SIGNAGE_DB_PATH", DefaultDatabasePath),
		MigrationsPath:  envString("SIGNAGE_MIGRATIONS_PATH", DefaultMigrationsPath),
		AuthSecret:      envString("SIGNAGE_AUTH_SECRET", "dev-secret"),
		MaxConnections:  envInt("SIGNAGE_MAX_CONNECTIONS", DefaultMaxConnections),
		InactiveTimeout: envDuration("SIGNAGE_INACTIVE_TIMEOUT", DefaultInactiveTimeout),
		SweepInterval:   envDuration("SIGNAGE_SWEEP_INTERVAL", DefaultSweepInterval),
		LogLevel:        envString("SIGNAGE_LOG_LEVEL", "info"),
		Debug:           envString("SIGNAGE_DEBUG", "") != "",
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
