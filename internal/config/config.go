// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing, the process exits with an error.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration for the scraping service.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	// Orchestration knobs.
	MinStores      int           // sufficiency: minimum stores before stopping early
	MinOffers      int           // sufficiency: minimum offers before stopping early
	JobDeadline    time.Duration // wall-clock budget for one scrape job
	StalenessAfter time.Duration // results older than this are re-scraped

	// Provider pacing.
	ProviderInterval time.Duration // default minimum gap between calls to one provider
	BrowserInterval  time.Duration // the headless browser gets a longer gap

	// Optional provider endpoints. Empty means the provider is unavailable.
	BrowserEnabled bool
	OCREndpoint    string
	VisionEndpoint string
	VisionAPIKey   string
	VisionModel    string

	// Dev mode skips Postgres/Redis and runs everything in memory.
	DevMode bool
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		MinStores:        1,
		MinOffers:        5,
		JobDeadline:      10 * time.Minute,
		StalenessAfter:   24 * time.Hour,
		ProviderInterval: 2 * time.Second,
		BrowserInterval:  5 * time.Second,
		VisionEndpoint:   os.Getenv("VISION_ENDPOINT"),
		VisionAPIKey:     os.Getenv("VISION_API_KEY"),
		VisionModel:      os.Getenv("VISION_MODEL"),
		OCREndpoint:      os.Getenv("OCR_ENDPOINT"),
		BrowserEnabled:   os.Getenv("BROWSER_ENABLED") == "true",
		DevMode:          os.Getenv("DEV_MODE") == "true",
	}

	cfg.Port = os.Getenv("SCRAPER_PORT")
	if cfg.Port == "" {
		cfg.Port = "8083"
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RedisURL = os.Getenv("REDIS_URL")
	if !cfg.DevMode {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required")
		}
	}

	if err := overrideInt("MIN_STORES", &cfg.MinStores); err != nil {
		return nil, err
	}
	if err := overrideInt("MIN_OFFERS", &cfg.MinOffers); err != nil {
		return nil, err
	}
	if err := overrideDuration("JOB_DEADLINE", &cfg.JobDeadline); err != nil {
		return nil, err
	}
	if err := overrideDuration("STALENESS_AFTER", &cfg.StalenessAfter); err != nil {
		return nil, err
	}
	if err := overrideDuration("PROVIDER_INTERVAL", &cfg.ProviderInterval); err != nil {
		return nil, err
	}
	if err := overrideDuration("BROWSER_INTERVAL", &cfg.BrowserInterval); err != nil {
		return nil, err
	}

	return cfg, nil
}

func overrideInt(key string, dst *int) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return fmt.Errorf("%s must be a non-negative integer, got %q", key, s)
	}
	*dst = v
	return nil
}

func overrideDuration(key string, dst *time.Duration) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fmt.Errorf("%s must be a non-negative duration (e.g. \"30s\", \"10m\"), got %q", key, s)
	}
	*dst = d
	return nil
}
