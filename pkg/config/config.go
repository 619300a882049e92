// Package config reads the service settings from the environment, after
// loading a .env file when one is present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath           string
	ListenAddr       string
	Location         *time.Location
	MessagingBaseURL string
	MessagingAPIKey  string
	BatchSize        int
	SendDelay        time.Duration
	MaxPerTenant     int
	DefaultSendHour  int
	CountryCode      string
	CronSpec         string
	LogLevel         string
}

// Load reads .env (if any) and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv. Malformed values are errors, missing
// ones take their defaults.
func FromEnv(getenv func(string) string) (Config, error) {
	env := func(key, fallback string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return fallback
	}

	cfg := Config{
		DBPath:           env("DB_PATH", "./data/billing.db"),
		ListenAddr:       env("LISTEN_ADDR", ":8080"),
		MessagingBaseURL: env("MESSAGING_BASE_URL", ""),
		MessagingAPIKey:  env("MESSAGING_API_KEY", ""),
		CountryCode:      env("COUNTRY_CODE", "55"),
		CronSpec:         env("CRON_SPEC", "0 * * * *"),
		LogLevel:         env("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.Location, err = time.LoadLocation(env("TIMEZONE", "America/Sao_Paulo")); err != nil {
		return Config{}, fmt.Errorf("TIMEZONE: %w", err)
	}
	if cfg.BatchSize, err = positiveInt(env("BATCH_SIZE", "50")); err != nil {
		return Config{}, fmt.Errorf("BATCH_SIZE: %w", err)
	}
	if cfg.MaxPerTenant, err = positiveInt(env("MAX_PER_TENANT", "200")); err != nil {
		return Config{}, fmt.Errorf("MAX_PER_TENANT: %w", err)
	}
	if cfg.SendDelay, err = time.ParseDuration(env("SEND_DELAY", "3s")); err != nil {
		return Config{}, fmt.Errorf("SEND_DELAY: %w", err)
	}
	if cfg.SendDelay < 0 {
		return Config{}, fmt.Errorf("SEND_DELAY: must not be negative")
	}
	if cfg.DefaultSendHour, err = strconv.Atoi(env("DEFAULT_SEND_HOUR", "9")); err != nil {
		return Config{}, fmt.Errorf("DEFAULT_SEND_HOUR: %w", err)
	}
	if cfg.DefaultSendHour < 0 || cfg.DefaultSendHour > 23 {
		return Config{}, fmt.Errorf("DEFAULT_SEND_HOUR: %d is not an hour of the day", cfg.DefaultSendHour)
	}
	return cfg, nil
}

func positiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("must be at least 1, got %d", n)
	}
	return n, nil
}
