// Package config загружает конфигурацию сервера из переменных окружения.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config конфигурация сервера
type Config struct {
	Addr           string        `env:"ADDR" envDefault:":8080"`
	DBPath         string        `env:"DB_PATH" envDefault:"worldkeeper.db"`
	JWTSecret      string        `env:"JWT_SECRET,required,unset"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"24h"`
	ShutdownGrace  time.Duration `env:"SHUTDOWN_GRACE" envDefault:"10s"`
	// RateLimit число запросов к /auth с одного IP в минуту
	RateLimit int `env:"RATE_LIMIT" envDefault:"100"`
}

// Prefix префикс всех переменных окружения сервера
const Prefix = "WORLDKEEPER_"

// Load читает конфигурацию из окружения
func Load() (*Config, error) {
	return parse(env.Options{Prefix: Prefix})
}

// LoadFrom читает конфигурацию из переданного окружения (для тестов)
func LoadFrom(environment map[string]string) (*Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: environment})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет значения, которые env не может проверить сам
func (c *Config) Validate() error {
	if len(c.JWTSecret) < 32 {
		return errors.New("JWT secret must be at least 32 bytes")
	}
	if c.AccessTokenTTL <= 0 {
		return errors.New("access token TTL must be positive")
	}
	if c.RateLimit <= 0 {
		return errors.New("rate limit must be positive")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel переводит LOG_LEVEL в slog.Level
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
