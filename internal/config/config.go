package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"anoa.com/challengescore/pkg/database"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv         string
	Port           string
	AllowedOrigins string

	Database database.Params
	RedisURL string

	LogFile  string
	LogDebug bool

	LeaderboardCacheTTL  time.Duration
	RecomputeInterval    time.Duration
	RecomputeConcurrency int
	// RecomputeCooldown throttles manual whole-challenge recomputes.
	RecomputeCooldown time.Duration
	// NightlyRecomputeAt is "HH:MM" in the server's local time.
	NightlyRecomputeAt string

	SeedFile string
}

func Load() (*Config, error) {
	// Don't fail if .env doesn't exist (might be prod env vars)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),

		Database: database.Params{
			URL:      os.Getenv("DATABASE_URL"),
			Host:     getEnv("DB_HOST", "localhost"),
			User:     getEnv("DB_USER", "postgres"),
			Password: os.Getenv("DB_PASS"),
			Name:     getEnv("DB_NAME", "challenge_score"),
			Port:     getEnv("DB_PORT", "5432"),
		},
		RedisURL: os.Getenv("REDIS_URL"),

		LogFile:  os.Getenv("LOG_FILE"),
		LogDebug: getEnv("LOG_LEVEL", "info") == "debug",

		NightlyRecomputeAt: getEnv("NIGHTLY_RECOMPUTE_AT", "03:15"),
		SeedFile:           os.Getenv("SEED_FILE"),
	}

	// Parsing durations
	var err error
	cfg.LeaderboardCacheTTL, err = time.ParseDuration(getEnv("LEADERBOARD_CACHE_TTL", "1m"))
	if err != nil {
		return nil, fmt.Errorf("invalid LEADERBOARD_CACHE_TTL: %w", err)
	}
	cfg.RecomputeInterval, err = time.ParseDuration(getEnv("RECOMPUTE_INTERVAL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECOMPUTE_INTERVAL: %w", err)
	}
	cfg.RecomputeCooldown, err = time.ParseDuration(getEnv("RECOMPUTE_COOLDOWN", "1m"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECOMPUTE_COOLDOWN: %w", err)
	}
	cfg.RecomputeConcurrency, err = strconv.Atoi(getEnv("RECOMPUTE_CONCURRENCY", "4"))
	if err != nil || cfg.RecomputeConcurrency < 1 {
		return nil, fmt.Errorf("invalid RECOMPUTE_CONCURRENCY %q", os.Getenv("RECOMPUTE_CONCURRENCY"))
	}
	if _, _, err := ParseClock(cfg.NightlyRecomputeAt); err != nil {
		return nil, fmt.Errorf("invalid NIGHTLY_RECOMPUTE_AT: %w", err)
	}

	return cfg, nil
}

// ParseClock splits an "HH:MM" string.
func ParseClock(s string) (uint, uint, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, err
	}
	return uint(t.Hour()), uint(t.Minute()), nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
