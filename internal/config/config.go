package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr string `yaml:"addr"` // Listen address, defaults to ":8080".
}

// DatabaseConfig holds relational store settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"` // PostgreSQL or SQLite DSN.
}

// RedisConfig holds optional trigger-counter backend settings.
type RedisConfig struct {
	URL string `yaml:"url"` // redis:// URL; empty selects the in-memory store.
}

// JWTConfig holds session token settings.
type JWTConfig struct {
	Secret      string `yaml:"secret"`       // HS256 signing secret.
	ExpiryHours int    `yaml:"expiry_hours"` // Token lifetime, defaults to 24.
}

// LoggingConfig holds logrus settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`       // logrus level name, defaults to "info".
	File       string `yaml:"file"`        // Optional rotating log file path.
	MaxSizeMB  int    `yaml:"max_size_mb"` // Rotation size, defaults to 100.
	MaxBackups int    `yaml:"max_backups"` // Retained rotated files, defaults to 3.
	MaxAgeDays int    `yaml:"max_age_days"` // Retention in days, defaults to 28.
}

// Config is the full service configuration loaded from YAML.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	JWT      JWTConfig      `yaml:"jwt"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// Expiry returns the configured JWT lifetime as a duration.
func (c JWTConfig) Expiry() time.Duration {
	hours := c.ExpiryHours
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

// Load reads and validates a YAML configuration file, filling defaults for
// omitted fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := &Config{}
	if errDecode := yaml.Unmarshal(data, cfg); errDecode != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, errDecode)
	}
	cfg.applyDefaults()
	if errValidate := cfg.validate(); errValidate != nil {
		return nil, errValidate
	}
	return cfg, nil
}

// applyDefaults fills zero-valued fields with usable defaults.
func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Server.Addr) == "" {
		c.Server.Addr = ":8080"
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		c.Database.DSN = "file:moderation.db"
	}
	if c.JWT.ExpiryHours <= 0 {
		c.JWT.ExpiryHours = 24
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = 100
	}
	if c.Logging.MaxBackups <= 0 {
		c.Logging.MaxBackups = 3
	}
	if c.Logging.MaxAgeDays <= 0 {
		c.Logging.MaxAgeDays = 28
	}
}

// validate rejects configurations the server cannot run with.
func (c *Config) validate() error {
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return fmt.Errorf("config: jwt.secret is required")
	}
	return nil
}
