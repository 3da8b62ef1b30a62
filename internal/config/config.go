package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds runtime settings read from the environment or a .env file.
type Config struct {
	DatabaseURL       string
	DatabaseDriver    string
	LogMode           string
	OperationTimeout  time.Duration
	NumberMaxAttempts int
	HTTPAddr          string
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		DatabaseURL:       strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DatabaseDriver:    strings.ToLower(strings.TrimSpace(os.Getenv("DATABASE_DRIVER"))),
		LogMode:           envString("LOG_MODE", "dev"),
		OperationTimeout:  10 * time.Second,
		NumberMaxAttempts: 5,
		HTTPAddr:          envString("HTTP_ADDR", ":8080"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL not set in environment or .env file")
	}

	if cfg.DatabaseDriver == "" {
		cfg.DatabaseDriver = inferDriver(cfg.DatabaseURL)
	}
	if cfg.DatabaseDriver != DriverPostgres && cfg.DatabaseDriver != DriverSQLite {
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}

	if v := strings.TrimSpace(os.Getenv("LEASE_OPERATION_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid LEASE_OPERATION_TIMEOUT: %w", err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("LEASE_OPERATION_TIMEOUT must be positive")
		}
		cfg.OperationTimeout = d
	}

	if v := strings.TrimSpace(os.Getenv("LEASE_NUMBER_MAX_ATTEMPTS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid LEASE_NUMBER_MAX_ATTEMPTS %q", v)
		}
		cfg.NumberMaxAttempts = n
	}

	return cfg, nil
}

func inferDriver(dsn string) string {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"),
		strings.Contains(lower, "host="):
		return DriverPostgres
	default:
		return DriverSQLite
	}
}

func envString(name, def string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	return v
}
