package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/rps-tournament-bot/services"
)

var configKeys = []string{
	"SERVER_PORT", "JWT_SECRET_KEY", "BOT_KEY_HASH", "TOKEN_TTL", "CORS_ALLOWED_ORIGINS", "LOG_LEVEL",
	"DATABASE_URL", "REDIS_URL", "CHOICE_TIMEOUT", "REGISTRATION_WINDOW", "DEFAULT_CAPACITY",
	"DOUBLE_TIMEOUT_POLICY", "R2_BUCKET_NAME",
}

func clearEnv(t *testing.T) {
	for _, key := range configKeys {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, services.DefaultChoiceTimeout, cfg.ChoiceTimeout)
	assert.Equal(t, services.DefaultRegistrationWindow, cfg.RegistrationWindow)
	assert.Equal(t, services.DefaultCapacity, cfg.DefaultCapacity)
	assert.Equal(t, services.DoubleTimeoutHigherSeed, cfg.DoubleTimeoutPolicy)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.False(t, cfg.R2.Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET_KEY", "secret")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("CHOICE_TIMEOUT", "45s")
	t.Setenv("REGISTRATION_WINDOW", "2m")
	t.Setenv("DEFAULT_CAPACITY", "16")
	t.Setenv("DOUBLE_TIMEOUT_POLICY", "void")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("R2_BUCKET_NAME", "archive")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, 45*time.Second, cfg.ChoiceTimeout)
	assert.Equal(t, 2*time.Minute, cfg.RegistrationWindow)
	assert.Equal(t, 16, cfg.DefaultCapacity)
	assert.Equal(t, services.DoubleTimeoutVoid, cfg.DoubleTimeoutPolicy)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.True(t, cfg.R2.Enabled())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{}},
		{"bad port", map[string]string{"SERVER_PORT": "70000"}},
		{"capacity too large", map[string]string{"DEFAULT_CAPACITY": "17"}},
		{"negative timeout", map[string]string{"CHOICE_TIMEOUT": "-1s"}},
		{"unparsable window", map[string]string{"REGISTRATION_WINDOW": "soon"}},
		{"unknown policy", map[string]string{"DOUBLE_TIMEOUT_POLICY": "coin_flip"}},
		{"two stores", map[string]string{"DATABASE_URL": "postgres://x", "REDIS_URL": "redis://y"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			if tt.name != "missing secret" {
				t.Setenv("JWT_SECRET_KEY", "secret")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
