package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	// Ingestion limits. Listings claiming more time than MaxListingSeconds
	// or naming a world at or above WorldIDCeiling are rejected.
	WorldIDCeiling    int `env:"WORLD_ID_CEILING" default:"1000"`
	MaxListingSeconds int `env:"MAX_LISTING_SECONDS" default:"3600"`

	QueryWindow          time.Duration `env:"QUERY_WINDOW" default:"2h"`
	BusCapacity          int           `env:"BUS_CAPACITY" default:"16"`
	StatsRefreshInterval time.Duration `env:"STATS_REFRESH_INTERVAL" default:"12h"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.WorldIDCeiling <= 0 {
		return fmt.Errorf("WORLD_ID_CEILING must be positive, got %d", cfg.WorldIDCeiling)
	}
	if cfg.MaxListingSeconds <= 0 {
		return fmt.Errorf("MAX_LISTING_SECONDS must be positive, got %d", cfg.MaxListingSeconds)
	}
	if cfg.QueryWindow <= 0 {
		return fmt.Errorf("QUERY_WINDOW must be positive, got %s", cfg.QueryWindow)
	}
	if cfg.BusCapacity <= 0 {
		return fmt.Errorf("BUS_CAPACITY must be positive, got %d", cfg.BusCapacity)
	}
	return nil
}
