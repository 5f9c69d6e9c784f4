package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Database
	DatabaseURL string

	// Server
	APIPort int

	// Scheduler
	TickInterval        time.Duration
	FetchMaxResults     int64
	FetchQuery          string
	CallTimeout         time.Duration
	TransientRetryLimit int

	// Generation service
	GeminiAPIKey  string
	AIModel       string
	AIMaxTokens   int32
	AITemperature float32

	// Generation quota (shared API key, process-wide)
	QuotaPerMinute int
	QuotaPerDay    int

	// Google OAuth (mailbox + calendar access)
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	CalendarTimezone   string

	// Logging
	LogLevel string

	// Security
	APIKey         string
	AllowedOrigins string
	AppEnv         string

	// HTTP rate limiting
	RateLimitRequests float64
	RateLimitBurst    int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}

	// Required: DATABASE_URL
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set")
	}

	// Required: GEMINI_API_KEY
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required but not set")
	}

	var err error
	if cfg.APIPort, err = intEnv("API_PORT", 8080); err != nil {
		return nil, err
	}

	if cfg.TickInterval, err = durationEnv("TICK_INTERVAL", 60*time.Second); err != nil {
		return nil, err
	}
	fetchMax, err := intEnv("FETCH_MAX_RESULTS", 10)
	if err != nil {
		return nil, err
	}
	cfg.FetchMaxResults = int64(fetchMax)
	cfg.FetchQuery = os.Getenv("FETCH_QUERY")
	if cfg.FetchQuery == "" {
		cfg.FetchQuery = "in:inbox is:unread"
	}
	if cfg.CallTimeout, err = durationEnv("CALL_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.TransientRetryLimit, err = intEnv("TRANSIENT_RETRY_LIMIT", 3); err != nil {
		return nil, err
	}

	cfg.AIModel = os.Getenv("AI_MODEL")
	if cfg.AIModel == "" {
		cfg.AIModel = "gemini-2.5-flash"
	}
	maxTokens, err := intEnv("AI_MAX_TOKENS", 2048)
	if err != nil {
		return nil, err
	}
	cfg.AIMaxTokens = int32(maxTokens)
	cfg.AITemperature = 0.7
	if t := os.Getenv("AI_TEMPERATURE"); t != "" {
		v, err := strconv.ParseFloat(t, 32)
		if err != nil {
			return nil, fmt.Errorf("AI_TEMPERATURE must be a valid float: %w", err)
		}
		cfg.AITemperature = float32(v)
	}

	// Conservative free-tier ceilings
	if cfg.QuotaPerMinute, err = intEnv("RATE_LIMIT_PER_MINUTE", 10); err != nil {
		return nil, err
	}
	if cfg.QuotaPerDay, err = intEnv("RATE_LIMIT_PER_DAY", 1000); err != nil {
		return nil, err
	}

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	cfg.GoogleRedirectURL = os.Getenv("GOOGLE_REDIRECT_URL")
	cfg.CalendarTimezone = os.Getenv("CALENDAR_TIMEZONE")
	if cfg.CalendarTimezone == "" {
		cfg.CalendarTimezone = "Europe/Rome"
	}

	// LOG_LEVEL (default: info)
	cfg.LogLevel = os.Getenv("LOG_LEVEL")
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	// Security configuration
	cfg.APIKey = os.Getenv("API_KEY")
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")
	cfg.AppEnv = os.Getenv("APP_ENV")
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}

	// HTTP rate limiting configuration
	if rps := os.Getenv("RATE_LIMIT_REQUESTS"); rps != "" {
		if v, err := strconv.ParseFloat(rps, 64); err == nil {
			cfg.RateLimitRequests = v
		}
	} else {
		cfg.RateLimitRequests = 10.0
	}

	if cfg.RateLimitBurst, err = intEnv("RATE_LIMIT_BURST", 20); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadWithValidation loads and validates configuration, failing fast on errors
func LoadWithValidation() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Production-specific validation
	if cfg.AppEnv == "production" {
		if err := cfg.ValidateProduction(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DatabaseURL cannot be empty")
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("APIPort must be between 1 and 65535")
	}
	if c.TickInterval < time.Second {
		return fmt.Errorf("TickInterval must be at least 1s")
	}
	if c.FetchMaxResults <= 0 {
		return fmt.Errorf("FetchMaxResults must be positive")
	}
	if c.QuotaPerMinute <= 0 || c.QuotaPerDay <= 0 {
		return fmt.Errorf("quota ceilings must be positive")
	}
	if c.TransientRetryLimit < 1 {
		return fmt.Errorf("TransientRetryLimit must be at least 1")
	}
	return nil
}

// ValidateProduction performs additional validation for production environment
func (c *Config) ValidateProduction() error {
	if c.APIKey == "" {
		return fmt.Errorf("API_KEY is required in production")
	}

	if c.AllowedOrigins == "" {
		return fmt.Errorf("ALLOWED_ORIGINS is required in production")
	}

	// Check for wildcard in production
	if strings.Contains(c.AllowedOrigins, "*") {
		return fmt.Errorf("wildcard (*) origins are not allowed in production")
	}

	// Check for sslmode=disable in database URL
	if strings.Contains(c.DatabaseURL, "sslmode=disable") {
		return fmt.Errorf("sslmode=disable is not allowed in production")
	}

	if c.GoogleClientID == "" || c.GoogleClientSecret == "" {
		return fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required in production")
	}

	return nil
}

// LogConfig logs configuration values (excluding secrets)
func (c *Config) LogConfig(logger *slog.Logger) {
	logger.Info("configuration loaded",
		slog.Int("api_port", c.APIPort),
		slog.Duration("tick_interval", c.TickInterval),
		slog.Int64("fetch_max_results", c.FetchMaxResults),
		slog.String("fetch_query", c.FetchQuery),
		slog.String("ai_model", c.AIModel),
		slog.Int("quota_per_minute", c.QuotaPerMinute),
		slog.Int("quota_per_day", c.QuotaPerDay),
		slog.String("calendar_timezone", c.CalendarTimezone),
		slog.String("log_level", c.LogLevel),
		slog.String("app_env", c.AppEnv),
		slog.Bool("api_key_set", c.APIKey != ""),
		slog.Bool("gemini_key_set", c.GeminiAPIKey != ""),
		slog.Float64("rate_limit_rps", c.RateLimitRequests),
		slog.Int("rate_limit_burst", c.RateLimitBurst),
	)
}

func intEnv(name string, def int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", name, err)
	}
	return v, nil
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", name, err)
	}
	return v, nil
}
