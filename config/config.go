package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Dosada05/rps-tournament-bot/models"
	"github.com/Dosada05/rps-tournament-bot/services"
	"github.com/Dosada05/rps-tournament-bot/storage"
)

// Config holds everything the process reads from the environment.
type Config struct {
	ServerPort     int
	JWTSecretKey   string
	BotKeyHash     string
	TokenTTL       time.Duration
	AllowedOrigins []string
	LogLevel       slog.Level

	// At most one of DatabaseURL and RedisURL is set. With neither,
	// tournaments live in memory only.
	DatabaseURL string
	RedisURL    string

	ChoiceTimeout       time.Duration
	RegistrationWindow  time.Duration
	DefaultCapacity     int
	DoubleTimeoutPolicy services.DoubleTimeoutPolicy

	R2 storage.CloudflareR2UploaderConfig
}

// Load reads the configuration from environment variables, after loading a
// .env file when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		JWTSecretKey: os.Getenv("JWT_SECRET_KEY"),
		BotKeyHash:   os.Getenv("BOT_KEY_HASH"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisURL:     os.Getenv("REDIS_URL"),
		R2: storage.CloudflareR2UploaderConfig{
			AccountID:       os.Getenv("R2_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
			BucketName:      os.Getenv("R2_BUCKET_NAME"),
			PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),
			Endpoint:        os.Getenv("R2_ENDPOINT"),
		},
	}

	if cfg.JWTSecretKey == "" {
		return nil, errors.New("JWT_SECRET_KEY environment variable is not set")
	}
	if cfg.DatabaseURL != "" && cfg.RedisURL != "" {
		return nil, errors.New("DATABASE_URL and REDIS_URL are mutually exclusive")
	}

	var err error
	if cfg.ServerPort, err = intEnv("SERVER_PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.ServerPort <= 0 || cfg.ServerPort > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", cfg.ServerPort)
	}

	if cfg.DefaultCapacity, err = intEnv("DEFAULT_CAPACITY", services.DefaultCapacity); err != nil {
		return nil, err
	}
	if cfg.DefaultCapacity < 1 || cfg.DefaultCapacity > models.MaxCapacity {
		return nil, fmt.Errorf("DEFAULT_CAPACITY must be between 1 and %d, got %d", models.MaxCapacity, cfg.DefaultCapacity)
	}

	if cfg.ChoiceTimeout, err = durationEnv("CHOICE_TIMEOUT", services.DefaultChoiceTimeout); err != nil {
		return nil, err
	}
	if cfg.RegistrationWindow, err = durationEnv("REGISTRATION_WINDOW", services.DefaultRegistrationWindow); err != nil {
		return nil, err
	}
	if cfg.TokenTTL, err = durationEnv("TOKEN_TTL", services.DefaultTokenTTL); err != nil {
		return nil, err
	}

	if cfg.DoubleTimeoutPolicy, err = services.ParseDoubleTimeoutPolicy(os.Getenv("DOUBLE_TIMEOUT_POLICY")); err != nil {
		return nil, fmt.Errorf("invalid DOUBLE_TIMEOUT_POLICY: %w", err)
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
	}

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	return cfg, nil
}

func intEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}
