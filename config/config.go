// Package config reads process configuration from the environment.
//
// Engine settings (stay limits, discount tiers, VIP default) are data, not
// process config: they live behind booking.SettingsProvider.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/warp/parking-engine/calendar"
)

type Config struct {
	Port           string
	DatabaseDriver string // sqlite3 or postgres
	DatabaseURL    string // postgres DSN, capacity only
	SQLitePath     string // catalog, settings and lookups; capacity too under sqlite3
	Timezone       string
	Location       *time.Location
	DayConcurrency int
	AllowedOrigins []string

	// commitment purge
	PurgeSchedule      string
	PurgeRetentionDays int
}

func FromEnv() (Config, error) {
	cfg := Config{
		Port:           getenv("PORT", "8080"),
		DatabaseDriver: getenv("DATABASE_DRIVER", "sqlite3"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		SQLitePath:     getenv("SQLITE_PATH", "./parking.db"),
		Timezone:       getenv("PARKING_TIMEZONE", "UTC"),
		PurgeSchedule:  getenv("PURGE_SCHEDULE", "@daily"),
		AllowedOrigins: splitList(getenv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
	}

	if err := cfg.ValidateDatabase(); err != nil {
		return Config{}, err
	}

	loc, err := calendar.ParseLocation(cfg.Timezone)
	if err != nil {
		return Config{}, fmt.Errorf("PARKING_TIMEZONE: %w", err)
	}
	cfg.Location = loc

	conc, err := strconv.Atoi(getenv("DAY_CONCURRENCY", "8"))
	if err != nil || conc < 1 {
		return Config{}, fmt.Errorf("invalid DAY_CONCURRENCY")
	}
	cfg.DayConcurrency = conc

	retention, err := strconv.Atoi(getenv("PURGE_RETENTION_DAYS", "90"))
	if err != nil || retention < 0 {
		return Config{}, fmt.Errorf("invalid PURGE_RETENTION_DAYS")
	}
	cfg.PurgeRetentionDays = retention

	if _, err := cron.ParseStandard(cfg.PurgeSchedule); err != nil {
		return Config{}, fmt.Errorf("PURGE_SCHEDULE: %w", err)
	}

	return cfg, nil
}

// ValidateDatabase checks the driver and its DSN. Call it again after
// command-line flags override DatabaseDriver or DatabaseURL.
func (c Config) ValidateDatabase() error {
	if c.DatabaseDriver != "sqlite3" && c.DatabaseDriver != "postgres" {
		return fmt.Errorf("invalid DATABASE_DRIVER %q (want sqlite3 or postgres)", c.DatabaseDriver)
	}
	if c.DatabaseDriver == "postgres" && strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required when DATABASE_DRIVER is postgres")
	}
	return nil
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
