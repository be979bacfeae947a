package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	// LockBackendLocal serializes transfers with an in-process mutex.
	LockBackendLocal = "local"

	// LockBackendRedis serializes transfers across instances with a Redis lock.
	LockBackendRedis = "redis"
)

// Config holds the process configuration read from the environment.
type Config struct {
	HTTPAddr         string        `env:"HTTP_ADDR" envDefault:":8080"`
	HTTPReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	HTTPWriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	HTTPIdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	DBURL string `env:"DB_URL"`

	LockBackend string        `env:"LOCK_BACKEND" envDefault:"local"`
	LockTimeout time.Duration `env:"LOCK_TIMEOUT" envDefault:"10s"`

	BalanceTTL time.Duration `env:"BALANCE_TTL" envDefault:"60s"`
	ThiefKey   string        `env:"THIEF_KEY" envDefault:"thief-balance"`
	HolderKey  string        `env:"HOLDER_KEY" envDefault:"holder-balance"`
	ThiefSeed  int64         `env:"THIEF_SEED" envDefault:"1000"`
	HolderSeed int64         `env:"HOLDER_SEED" envDefault:"0"`

	JWTSecret     string `env:"JWT_SECRET"`
	JWTIssuer     string `env:"JWT_ISSUER"`
	JWTAudience   string `env:"JWT_AUDIENCE"`
	JWTRolesClaim string `env:"JWT_ROLES_CLAIM" envDefault:"custom.jwt.namespace/roles"`

	AuthDomain   string `env:"AUTH_DOMAIN"`
	AuthClientID string `env:"AUTH_CLIENT_ID"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET is required")
	}
	if strings.TrimSpace(c.ThiefKey) == "" || strings.TrimSpace(c.HolderKey) == "" {
		return errors.New("THIEF_KEY and HOLDER_KEY must not be empty")
	}
	if c.ThiefKey == c.HolderKey {
		return errors.New("THIEF_KEY and HOLDER_KEY must differ")
	}
	if c.ThiefSeed < 0 || c.HolderSeed < 0 {
		return errors.New("balance seeds must not be negative")
	}
	if c.HTTPReadTimeout <= 0 || c.HTTPWriteTimeout <= 0 || c.HTTPIdleTimeout <= 0 {
		return errors.New("HTTP timeouts must be positive")
	}
	if c.BalanceTTL <= 0 {
		return errors.New("BALANCE_TTL must be positive")
	}
	switch c.LockBackend {
	case LockBackendLocal:
	case LockBackendRedis:
		if c.RedisAddr == "" {
			return errors.New("LOCK_BACKEND=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown LOCK_BACKEND %q", c.LockBackend)
	}
	return nil
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
