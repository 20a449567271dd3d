package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// RateLimitTier is one admission policy (max requests per trailing window).
type RateLimitTier struct {
	MaxRequests int
	Window      time.Duration
}

// Config holds the application configuration
type Config struct {
	DatabaseURL string
	Port        string
	RedisURL    string

	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	HashTimeCost    int
	RotateRefresh   bool

	AuthRateLimit    RateLimitTier
	GeneralRateLimit RateLimitTier
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:             "8080",
		AccessTokenTTL:   15 * time.Minute,
		RefreshTokenTTL:  7 * 24 * time.Hour,
		HashTimeCost:     3,
		RotateRefresh:    true,
		AuthRateLimit:    RateLimitTier{MaxRequests: 100, Window: time.Hour},
		GeneralRateLimit: RateLimitTier{MaxRequests: 500, Window: time.Hour},
	}

	// DATABASE_URL is required
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	cfg.DatabaseURL = databaseURL

	// JWT_SECRET is required
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	cfg.JWTSecret = jwtSecret

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	// REDIS_URL is optional; when set, rate limiting is shared across instances
	cfg.RedisURL = os.Getenv("REDIS_URL")

	var err error
	if cfg.AccessTokenTTL, err = durationEnv("ACCESS_TOKEN_TTL", cfg.AccessTokenTTL); err != nil {
		return nil, err
	}
	if cfg.RefreshTokenTTL, err = durationEnv("REFRESH_TOKEN_TTL", cfg.RefreshTokenTTL); err != nil {
		return nil, err
	}
	if cfg.AccessTokenTTL >= cfg.RefreshTokenTTL {
		return nil, fmt.Errorf("ACCESS_TOKEN_TTL (%s) must be shorter than REFRESH_TOKEN_TTL (%s)",
			cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	}

	if cfg.HashTimeCost, err = intEnv("HASH_TIME_COST", cfg.HashTimeCost); err != nil {
		return nil, err
	}
	if cfg.HashTimeCost < 1 {
		return nil, fmt.Errorf("HASH_TIME_COST must be at least 1")
	}

	if rotate := os.Getenv("ROTATE_REFRESH_TOKENS"); rotate != "" {
		b, err := strconv.ParseBool(rotate)
		if err != nil {
			return nil, fmt.Errorf("invalid ROTATE_REFRESH_TOKENS: %w", err)
		}
		cfg.RotateRefresh = b
	}

	if cfg.AuthRateLimit.MaxRequests, err = intEnv("RATE_LIMIT_AUTH_MAX", cfg.AuthRateLimit.MaxRequests); err != nil {
		return nil, err
	}
	if cfg.AuthRateLimit.Window, err = durationEnv("RATE_LIMIT_AUTH_WINDOW", cfg.AuthRateLimit.Window); err != nil {
		return nil, err
	}
	if cfg.GeneralRateLimit.MaxRequests, err = intEnv("RATE_LIMIT_GENERAL_MAX", cfg.GeneralRateLimit.MaxRequests); err != nil {
		return nil, err
	}
	if cfg.GeneralRateLimit.Window, err = durationEnv("RATE_LIMIT_GENERAL_WINDOW", cfg.GeneralRateLimit.Window); err != nil {
		return nil, err
	}

	return cfg, nil
}

func durationEnv(name string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", name)
	}
	return d, nil
}

func intEnv(name string, fallback int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive", name)
	}
	return n, nil
}
