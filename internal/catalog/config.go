package catalog

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Константы по умолчанию для конфигурации Store.
const (
	// DefaultUpdateInterval интервал автообновления каталога (6 часов).
	DefaultUpdateInterval = 6 * time.Hour

	// DefaultCacheDir директория для файлового кеша TLE.
	DefaultCacheDir = "data/tle_cache"

	// DefaultMaxAgeDays максимальный возраст набора элементов в днях
	// до признания его устаревшим.
	DefaultMaxAgeDays = 7.0
)

// DefaultGroups группы спутников по умолчанию для загрузки.
var DefaultGroups = []string{"stations", "amateur", "cubesat"}

// Config содержит настройки каталога.
type Config struct {
	// Groups список групп спутников для загрузки с Celestrak.
	// Примеры: "stations", "amateur", "cubesat", "weather", "starlink".
	Groups []string `yaml:"groups"`

	// UpdateInterval интервал автоматического обновления каталога.
	// По умолчанию: 6 часов.
	UpdateInterval time.Duration `yaml:"update_interval"`

	// CacheDir директория для файлового кеша TLE.
	// По умолчанию: "data/tle_cache".
	CacheDir string `yaml:"cache_dir"`

	// MaxAgeDays максимальный возраст набора элементов в днях.
	// Наборы старше считаются устаревшими.
	// По умолчанию: 7 дней.
	MaxAgeDays float64 `yaml:"max_age_days"`
}

// DefaultConfig возвращает конфигурацию каталога со значениями по умолчанию.
func DefaultConfig() *Config {
	return &Config{
		Groups:         DefaultGroups,
		UpdateInterval: DefaultUpdateInterval,
		CacheDir:       DefaultCacheDir,
		MaxAgeDays:     DefaultMaxAgeDays,
	}
}

// Validate проверяет и корректирует конфигурацию каталога.
// Возвращает ошибку, если указаны невалидные группы спутников.
func (c *Config) Validate() error {
	if c.UpdateInterval < time.Minute {
		c.UpdateInterval = DefaultUpdateInterval
	}
	if c.CacheDir == "" {
		c.CacheDir = DefaultCacheDir
	}
	if c.MaxAgeDays <= 0 {
		c.MaxAgeDays = DefaultMaxAgeDays
	}
	if len(c.Groups) == 0 {
		c.Groups = DefaultGroups
	}

	// Проверяем, что все указанные группы допустимы
	var invalid []string
	for _, g := range c.Groups {
		if !IsValidGroup(g) {
			invalid = append(invalid, g)
		}
	}
	if len(invalid) > 0 {
		return errors.Errorf("unknown TLE groups: %s (available: %s)",
			strings.Join(invalid, ", "),
			strings.Join(AvailableGroupNames(), ", "),
		)
	}

	return nil
}
