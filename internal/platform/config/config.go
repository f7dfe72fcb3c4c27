package config

import (
	"errors"
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
	RedisURL    string `env:"REDIS_URL"`

	KickClientID     string `env:"KICK_CLIENT_ID"`
	KickClientSecret string `env:"KICK_CLIENT_SECRET"`
	KickCallbackURL  string `env:"KICK_CALLBACK_URL"`
	KickOAuthBaseURL string `env:"KICK_OAUTH_BASE_URL" default:"https://id.kick.com"`
	KickAPIBaseURL   string `env:"KICK_API_BASE_URL" default:"https://api.kick.com/public/v1"`

	SessionSecret     string        `env:"SESSION_SECRET"`
	JWTAccessSecret   string        `env:"JWT_ACCESS_SECRET"`
	JWTRefreshSecret  string        `env:"JWT_REFRESH_SECRET"`
	JWTAccessExpiry   time.Duration `env:"JWT_ACCESS_EXPIRATION" default:"15m"`
	JWTRefreshExpiry  time.Duration `env:"JWT_REFRESH_EXPIRATION" default:"720h"` // 30 days
	PublicKeyCacheTTL time.Duration `env:"PUBLIC_KEY_CACHE_TTL" default:"1h"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
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
	required := map[string]string{
		"DATABASE_URL":       cfg.DatabaseURL,
		"REDIS_URL":          cfg.RedisURL,
		"KICK_CLIENT_ID":     cfg.KickClientID,
		"KICK_CLIENT_SECRET": cfg.KickClientSecret,
		"KICK_CALLBACK_URL":  cfg.KickCallbackURL,
		"SESSION_SECRET":     cfg.SessionSecret,
		"JWT_ACCESS_SECRET":  cfg.JWTAccessSecret,
		"JWT_REFRESH_SECRET": cfg.JWTRefreshSecret,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if cfg.JWTAccessSecret == cfg.JWTRefreshSecret {
		return errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if len(cfg.JWTAccessSecret) < 32 || len(cfg.JWTRefreshSecret) < 32 {
		return errors.New("JWT secrets must be at least 32 characters")
	}
	if cfg.JWTAccessExpiry <= 0 || cfg.JWTRefreshExpiry <= 0 {
		return errors.New("JWT expirations must be positive")
	}
	if cfg.JWTRefreshExpiry <= cfg.JWTAccessExpiry {
		return errors.New("JWT_REFRESH_EXPIRATION must exceed JWT_ACCESS_EXPIRATION")
	}

	return nil
}
