package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":8080", cfg.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, int64(8192), cfg.MaxMessageSize)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
	assert.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
	assert.Equal(t, 5*time.Second, cfg.PersistTimeout)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
}

func TestSanitize(t *testing.T) {
	cfg := Config{Port: "9090", RateLimit: RateLimitConfig{Burst: -1}}.Sanitize()

	def := Default()
	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, def.Env, cfg.Env)
	assert.Equal(t, def.MaxMessageSize, cfg.MaxMessageSize)
	assert.Equal(t, def.RateLimit, cfg.RateLimit)
	assert.Equal(t, def.DatabasePath, cfg.DatabasePath)
	assert.Equal(t, def.PersistTimeout, cfg.PersistTimeout)
	assert.Equal(t, def.ShutdownTimeout, cfg.ShutdownTimeout)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9000")
	t.Setenv("APP_ENV", "production")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,,")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("RATE_LIMIT_BURST", "3")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2")
	t.Setenv("DATABASE_PATH", "/tmp/huddle.db")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("TOKEN_TTL", "90m")
	t.Setenv("PERSIST_TIMEOUT", "2")
	t.Setenv("SHUTDOWN_TIMEOUT", "10s")

	cfg := FromEnv()

	assert.Equal(t, ":9000", cfg.Port)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(1024), cfg.MaxMessageSize)
	assert.Equal(t, RateLimitConfig{Burst: 3, RefillInterval: 2 * time.Second}, cfg.RateLimit)
	assert.Equal(t, "/tmp/huddle.db", cfg.DatabasePath)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, 90*time.Minute, cfg.TokenTTL)
	assert.Equal(t, 2*time.Second, cfg.PersistTimeout)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestFromEnvMalformedValuesFallBack(t *testing.T) {
	t.Setenv("MAX_MESSAGE_SIZE", "huge")
	t.Setenv("RATE_LIMIT_BURST", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "-5")
	t.Setenv("TOKEN_TTL", "forever")

	cfg := FromEnv()
	def := Default()

	assert.Equal(t, def.MaxMessageSize, cfg.MaxMessageSize)
	assert.Equal(t, def.RateLimit, cfg.RateLimit)
	assert.Equal(t, def.TokenTTL, cfg.TokenTTL)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DATABASE_PATH=from-file.db\n"), 0o600))

	// Register the key with t.Setenv so it is restored after godotenv sets it.
	t.Setenv("DATABASE_PATH", "")
	require.NoError(t, os.Unsetenv("DATABASE_PATH"))

	cfg := Load(path)
	assert.Equal(t, "from-file.db", cfg.DatabasePath)
}

func TestLoadMissingFile(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Equal(t, Default().Port, cfg.Port)
}
