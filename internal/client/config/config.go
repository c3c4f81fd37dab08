// Package config загружает конфигурацию клиента: YAML файл, затем окружение.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix префикс переменных окружения клиента
const EnvPrefix = "WORLDKEEPER_"

// Config конфигурация клиента
type Config struct {
	Server       string        `yaml:"server" env:"SERVER"`
	DBPath       string        `yaml:"db_path" env:"DB_PATH"`
	LogLevel     string        `yaml:"log_level" env:"LOG_LEVEL"`
	ProbeTimeout time.Duration `yaml:"probe_timeout" env:"PROBE_TIMEOUT"`
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		Server:       "http://localhost:8080",
		DBPath:       defaultDBPath(),
		LogLevel:     "warn",
		ProbeTimeout: 3 * time.Second,
		PollInterval: 5 * time.Second,
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "worldkeeper-client.db"
	}
	return filepath.Join(home, ".worldkeeper", "client.db")
}

// DefaultPath возвращает путь к файлу конфигурации по умолчанию
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "worldkeeper.yaml"
	}
	return filepath.Join(home, ".worldkeeper", "config.yaml")
}

// Load читает path поверх значений по умолчанию, затем применяет окружение.
// Отсутствующий файл не ошибка: конфигурация файла необязательна.
func Load(path string) (*Config, error) {
	return load(path, env.Options{Prefix: EnvPrefix})
}

func load(path string, opts env.Options) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет итоговую конфигурацию
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Server, "http://") && !strings.HasPrefix(c.Server, "https://") {
		return fmt.Errorf("server URL must start with http:// or https://, got %q", c.Server)
	}
	if c.DBPath == "" {
		return errors.New("db path cannot be empty")
	}
	if c.ProbeTimeout <= 0 || c.PollInterval <= 0 {
		return errors.New("probe timeout and poll interval must be positive")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel переводит LogLevel в slog.Level
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// Save записывает конфигурацию в path в формате YAML
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
