// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config is the fully resolved service configuration.
type Config struct {
	Port string

	// Driver selects the backing store: "sqlite" or "postgres".
	Driver string

	// SQLitePath is the database file for the sqlite driver. ":memory:"
	// gives an ephemeral store for local experiments.
	SQLitePath string

	// DatabaseURL is the connection string for the postgres driver.
	DatabaseURL string

	// Timezone is the canonical location for day/month bucketing. Empty
	// means server-local.
	Timezone string

	Env string
}

// Load reads an optional .env file and resolves the configuration from the
// environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, relying on system env variables")
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Driver:      getEnv("LEDGER_DRIVER", "sqlite"),
		SQLitePath:  getEnv("LEDGER_SQLITE_PATH", "cash-ledger.db"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		Timezone:    getEnv("LEDGER_TIMEZONE", ""),
		Env:         getEnv("ENV", "development"),
	}
}

// Location resolves the configured timezone. Empty configuration falls back
// to server-local time.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: bad LEDGER_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Driver {
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("config: LEDGER_SQLITE_PATH is required for the sqlite driver")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown LEDGER_DRIVER %q", c.Driver)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
