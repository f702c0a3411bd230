package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("SKYSHOP_DATABASE_URL", "postgres://skyshop@localhost/skyshop")
	t.Setenv("REDIS_URL", "")
	t.Setenv("PORT", "")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, defaultAddr, cfg.Addr)
	assert.Equal(t, "skyshop", cfg.Auth.Issuer)
	assert.Equal(t, 100, cfg.RateLimit.Max)
	assert.Equal(t, 10, cfg.PlaceOrderLimit.Max)
	assert.Equal(t, time.Minute, cfg.PlaceOrderLimit.Window)
	assert.Equal(t, 5*time.Minute, cfg.Redis.TTL)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, 15*time.Second, cfg.Graceful.ShutdownTimeout)
}

func TestLoadConfig_PlatformFallbacks(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("JWT_SECRET", "0123456789abcdef")
	t.Setenv("PORT", "9090")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_PrefixedWins(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("SKYSHOP_DATABASE_URL", "postgres://explicit/db")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "postgres://explicit/db", cfg.DatabaseURL)
}

func TestLoadConfig_RequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SKYSHOP_DATABASE_URL", "")

	_, err := LoadConfigFromEnv()
	assert.ErrorContains(t, err, "database URL is required")
}

func TestValidate(t *testing.T) {
	cfg := Config{
		Auth:            AuthConfig{JWTSecret: "short"},
		RateLimit:       RateLimitConfig{Max: 1},
		PlaceOrderLimit: PlaceOrderLimitConfig{Max: 1},
	}
	assert.ErrorContains(t, cfg.Validate(), "JWT secret")

	cfg.Auth.JWTSecret = "0123456789abcdef"
	assert.NoError(t, cfg.Validate())

	cfg.Redis = RedisConfig{Addr: "localhost:6379"}
	assert.ErrorContains(t, cfg.Validate(), "redis TTL")
}
