package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	StoragePath   string `yaml:"storage_path"`
	RetentionDays int    `yaml:"retention_days"`
}

type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup BackupConfig `yaml:"backup"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Booking struct {
		BufferMinutes       int `yaml:"buffer_minutes"`
		SlotDurationDefault int `yaml:"slot_duration_default"`
		MinAdvanceMinutes   int `yaml:"min_advance_minutes"`
		MaxAdvanceDays      int `yaml:"max_advance_days"`
	} `yaml:"booking"`

	Seeder struct {
		Enabled       bool    `yaml:"enabled"`
		HorizonDays   int     `yaml:"horizon_days"`
		IntervalHours int     `yaml:"interval_hours"`
		Providers     []int64 `yaml:"providers"`
	} `yaml:"seeder"`

	Notifications struct {
		DispatchIntervalSeconds int     `yaml:"dispatch_interval_seconds"`
		RatePerSecond           float64 `yaml:"rate_per_second"`
		Burst                   int     `yaml:"burst"`
		MaxRetries              int     `yaml:"max_retries"`
		BatchSize               int     `yaml:"batch_size"`
	} `yaml:"notifications"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/salonbook.db"
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) BufferMinutes() int {
	if c.Booking.BufferMinutes < 0 {
		return 0
	}
	return c.Booking.BufferMinutes
}

func (c *Config) SlotDurationDefault() int {
	if c.Booking.SlotDurationDefault <= 0 {
		return 30
	}
	return c.Booking.SlotDurationDefault
}

func (c *Config) BookingMinAdvance() time.Duration {
	if c.Booking.MinAdvanceMinutes <= 0 {
		return 0
	}
	return time.Duration(c.Booking.MinAdvanceMinutes) * time.Minute
}

func (c *Config) BookingMaxAdvance() time.Duration {
	if c.Booking.MaxAdvanceDays <= 0 {
		return 90 * 24 * time.Hour
	}
	return time.Duration(c.Booking.MaxAdvanceDays) * 24 * time.Hour
}

func (c *Config) SeedHorizonDays() int {
	if c.Seeder.HorizonDays <= 0 {
		return 14
	}
	return c.Seeder.HorizonDays
}

func (c *Config) SeedInterval() time.Duration {
	if c.Seeder.IntervalHours <= 0 {
		return 6 * time.Hour
	}
	return time.Duration(c.Seeder.IntervalHours) * time.Hour
}

func (c *Config) DispatchInterval() time.Duration {
	if c.Notifications.DispatchIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Notifications.DispatchIntervalSeconds) * time.Second
}

func (c *Config) WindowCacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}
