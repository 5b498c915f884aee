// Package config loads process configuration from the environment, with an
// optional local .env file for development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-driven setting Core and its surrounding
// services need. Persistence (DSN) aside, these map directly onto the
// tunables spec.md §9 leaves as Open Questions: the opening-trade grouping
// window, the roll-link window(s), and default margin percentages.
type Config struct {
	DBPath string

	BrokerHost     string
	BrokerPort     int
	BrokerClientID int

	PolygonAPIKey string
	FREDAPIKey    string

	SyncInterval time.Duration

	OpenWindow          time.Duration
	RollWindow          time.Duration
	RollWindowSameOrder time.Duration

	DefaultMarginPct float64

	HTTPAddr string
}

// Load reads configuration from the environment, loading a .env file first
// if one is present in the working directory. Existing OS environment
// variables always take precedence over .env contents.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DBPath: envString("OPTJOURNAL_DB_PATH", "journal.db"),

		BrokerHost:     envString("IBKR_HOST", "127.0.0.1"),
		BrokerPort:     envInt("IBKR_PORT", 7497),
		BrokerClientID: envInt("IBKR_CLIENT_ID", 1),

		PolygonAPIKey: envString("POLYGON_API_KEY", ""),
		FREDAPIKey:    envString("FRED_API_KEY", ""),

		SyncInterval: envDuration("SYNC_INTERVAL", 5*time.Minute),

		OpenWindow:          envDuration("OPEN_WINDOW", 5*time.Minute),
		RollWindow:          envDuration("ROLL_WINDOW", 10*time.Minute),
		RollWindowSameOrder: envDuration("ROLL_WINDOW_SAME_ORDER", 24*time.Hour),

		DefaultMarginPct: envFloat("DEFAULT_MARGIN_PCT", 20.0),

		HTTPAddr: envString("HTTP_ADDR", ":8080"),
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
