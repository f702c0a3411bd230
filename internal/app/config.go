package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (SKYSHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr            string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL     string `usage:"PostgreSQL connection URL (SKYSHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Auth            AuthConfig
	Redis           RedisConfig
	RateLimit       RateLimitConfig
	PlaceOrderLimit PlaceOrderLimitConfig
	CORS            CORSConfig
	Graceful        GracefulConfig
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSecret string `usage:"HS256 secret shared with the identity provider (SKYSHOP_AUTH_JWT_SECRET or JWT_SECRET)" flag:"jwt-secret"`
	Issuer    string `default:"skyshop" usage:"Expected token issuer; empty accepts any"`
}

// RedisConfig configures the catalog cache. The cache is disabled when both
// Addr and URL are empty.
type RedisConfig struct {
	Addr     string        `usage:"Redis host:port"`
	URL      string        `usage:"Redis URL, overrides Addr (SKYSHOP_REDIS_URL or REDIS_URL)"`
	Password string        `usage:"Redis password"`
	DB       int           `default:"0" usage:"Redis database number"`
	TTL      time.Duration `default:"5m" usage:"Catalog cache entry lifetime"`
}

// Enabled reports whether a Redis endpoint is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != "" || c.URL != ""
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// PlaceOrderLimitConfig limits order placements per user.
type PlaceOrderLimitConfig struct {
	Max    int           `default:"10" usage:"Max order placements per user per window"`
	Window time.Duration `default:"1m" usage:"Order placement limit window"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from flags, environment variables and YAML
// config files, then applies platform defaults.
func LoadConfig() (*Config, error) {
	return load(false)
}

// LoadConfigFromEnv is LoadConfig without flag parsing, for commands that
// own their flags.
func LoadConfigFromEnv() (*Config, error) {
	return load(true)
}

func load(skipFlags bool) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SKYSHOP",
		SkipFlags: skipFlags,
		Files:     []string{"config.yaml", "/etc/skyshop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set SKYSHOP_DATABASE_URL or DATABASE_URL")
	}
	return &cfg, nil
}

// Validate checks the settings the API server needs beyond the database.
func (c *Config) Validate() error {
	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("JWT secret must be at least 16 bytes: set SKYSHOP_AUTH_JWT_SECRET or JWT_SECRET")
	}
	if c.Redis.Enabled() && c.Redis.TTL <= 0 {
		return errors.Errorf("redis TTL must be positive, got %s", c.Redis.TTL)
	}
	if c.PlaceOrderLimit.Max <= 0 || c.RateLimit.Max <= 0 {
		return errors.New("rate limits must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names to the SKYSHOP_-prefixed settings.
func (c *Config) applyPlatformDefaults() {
	fallback := func(dst *string, env string) {
		if *dst != "" {
			return
		}
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	fallback(&c.DatabaseURL, "DATABASE_URL")
	fallback(&c.Redis.URL, "REDIS_URL")
	fallback(&c.Auth.JWTSecret, "JWT_SECRET")

	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
