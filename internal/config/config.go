// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all process-level configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL    string `env:"DATABASE_URL,required"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START" envDefault:"true"`

	// Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Base URL smart links are served from (e.g., https://go.example.com)
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Default site used when a request does not carry one.
	DefaultSiteID int64 `env:"DEFAULT_SITE_ID" envDefault:"1"`

	// IANA zone that defines calendar days and hours in reports.
	Timezone string `env:"APP_TIMEZONE" envDefault:"UTC"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Geolocation
	GeoAPIBaseURL    string        `env:"GEO_API_BASE_URL" envDefault:"http://ip-api.com"`
	GeoTimeout       time.Duration `env:"GEO_TIMEOUT" envDefault:"2s"`
	GeoRatePerMinute int           `env:"GEO_RATE_PER_MINUTE" envDefault:"45"`
	GeoMaxMindDBPath string        `env:"GEO_MAXMIND_DB_PATH"`
	GeoCacheTTL      time.Duration `env:"GEO_CACHE_TTL" envDefault:"24h"`

	// Analytics ingestion: write synchronously or through the Redis stream worker.
	AnalyticsAsync bool `env:"ANALYTICS_ASYNC" envDefault:"false"`

	// Retention sweep schedule (robfig/cron spec).
	RetentionSchedule string `env:"RETENTION_SCHEDULE" envDefault:"@every 24h"`

	// Third-party event sink (optional).
	EventSinkURL     string        `env:"EVENT_SINK_URL"`
	EventSinkSecret  string        `env:"EVENT_SINK_SECRET"`
	EventSinkTimeout time.Duration `env:"EVENT_SINK_TIMEOUT" envDefault:"3s"`

	// Prometheus /metrics endpoint.
	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`

	// Per-IP rate limiting
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RedirectRPS      int  `env:"REDIRECT_RPS" envDefault:"50"`
	RedirectBurst    int  `env:"REDIRECT_BURST" envDefault:"100"`
	AnalyticsRPS     int  `env:"ANALYTICS_RPS" envDefault:"5"`
	AnalyticsBurst   int  `env:"ANALYTICS_BURST" envDefault:"20"`

	// Origins allowed to call the analytics API from a browser.
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Load reads an optional .env file, parses environment variables and returns a Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.AppPort <= 0 || c.AppPort > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT %d out of range", c.AppPort))
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat))
	}
	if c.GeoRatePerMinute <= 0 {
		errs = append(errs, errors.New("GEO_RATE_PER_MINUTE must be positive"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Location loads the reporting time zone. Its name is passed to Postgres
// AT TIME ZONE, so it must be an IANA name; "Local" is refused.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "Local" {
		return nil, fmt.Errorf("invalid APP_TIMEZONE %q: use an IANA zone name such as Europe/Berlin", c.Timezone)
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid APP_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}
