// Package config содержит конфигурацию приложения OrbitViz.
package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/art-injener/orbitviz-go/internal/catalog"
	"github.com/art-injener/orbitviz-go/internal/orbit"
)

// Значения по умолчанию.
const (
	DefaultAddr            = ":8080"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// ServerConfig конфигурация HTTP сервера.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig конфигурация логирования.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// PropagatorConfig конфигурация пропагатора в YAML представлении.
// Нулевые значения заменяются на общепринятые константы при Validate.
type PropagatorConfig struct {
	MuKm3S2       float64 `yaml:"mu_km3_s2"`
	ToleranceRad  float64 `yaml:"tolerance_rad"`
	MaxIterations int     `yaml:"max_iterations"`
}

// Config корневая конфигурация приложения.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Catalog    catalog.Config   `yaml:"catalog"`
	Logging    LoggingConfig    `yaml:"logging"`
	Propagator PropagatorConfig `yaml:"propagator"`
}

// Default возвращает конфигурацию со значениями по умолчанию.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            DefaultAddr,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Catalog: *catalog.DefaultConfig(),
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
	cfg.Propagator = fromOrbitConfig(orbit.DefaultPropagatorConfig())
	return cfg
}

// Load читает конфигурацию из YAML файла. Пустой путь — значения
// по умолчанию. Отсутствующие поля файла также получают значения
// по умолчанию через Validate.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading config file %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parsing config file %s", path)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate заполняет нулевые поля значениями по умолчанию и проверяет
// корректность остальных.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch strings.ToLower(c.Logging.Format) {
	case "":
		c.Logging.Format = DefaultLogFormat
	case "text", "json":
		// OK
	default:
		return errors.Errorf("unknown log format: %s (available: text, json)", c.Logging.Format)
	}

	if c.Propagator.MuKm3S2 < 0 || c.Propagator.ToleranceRad < 0 || c.Propagator.MaxIterations < 0 {
		return errors.New("propagator parameters must be non-negative")
	}

	return c.Catalog.Validate()
}

// SlogLevel переводит текстовый уровень логирования в slog.Level.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errors.Errorf("unknown log level: %s (available: debug, info, warn, error)", c.Logging.Level)
	}
}

// NewLogger создаёт slog.Logger согласно конфигурации логирования.
func (c *Config) NewLogger() (*slog.Logger, error) {
	level, err := c.SlogLevel()
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(c.Logging.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler), nil
}

// OrbitConfig переводит YAML представление в orbit.PropagatorConfig.
// Нулевые поля заполняются значениями по умолчанию.
func (c *Config) OrbitConfig() orbit.PropagatorConfig {
	cfg := orbit.PropagatorConfig{
		MuKm3S2:       c.Propagator.MuKm3S2,
		ToleranceRad:  c.Propagator.ToleranceRad,
		MaxIterations: c.Propagator.MaxIterations,
	}
	cfg.Validate()
	return cfg
}

func fromOrbitConfig(cfg orbit.PropagatorConfig) PropagatorConfig {
	return PropagatorConfig{
		MuKm3S2:       cfg.MuKm3S2,
		ToleranceRad:  cfg.ToleranceRad,
		MaxIterations: cfg.MaxIterations,
	}
}
