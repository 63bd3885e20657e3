package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/itellico/mono-access/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Database configuration
	Database DatabaseConfig `yaml:"database"`

	// Cache configuration
	Cache CacheConfig `yaml:"cache"`

	// Audit configuration
	Audit AuditConfig `yaml:"audit"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// Addr returns the listen address for the API server.
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// HealthAddr returns the listen address for the health/metrics server.
func (c ServerConfig) HealthAddr() string {
	return net.JoinHostPort(c.Host, c.HealthPort)
}

// DatabaseConfig holds the permission store connection settings
type DatabaseConfig struct {
	URL      string        `yaml:"url"`
	MaxConns int           `yaml:"max_conns"`
	Timeout  time.Duration `yaml:"timeout"`
}

// CacheConfig holds the permission cache settings
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RedisURL      string        `yaml:"redis_url"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	L1Size        int           `yaml:"l1_size"`
	TTL           time.Duration `yaml:"ttl"`
}

// AuditConfig holds the audit sink settings
type AuditConfig struct {
	// Backend selects the sink: "db", "file", "both", or "none"
	Backend           string `yaml:"backend"`
	FilePath          string `yaml:"file_path"`
	RetentionDays     int    `yaml:"retention_days"`
	RetentionSchedule string `yaml:"retention_schedule"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel `yaml:"-"`

	// LogLevelName is the yaml-facing form of LogLevel
	LogLevelName string `yaml:"log_level"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`
}

// LoadConfig loads configuration with defaults, then an optional YAML
// file named by MONO_ACCESS_CONFIG_FILE, then environment overrides.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("MONO_ACCESS_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	cfg.loadEnv()

	if cfg.Observability.LogLevelName != "" {
		cfg.Observability.LogLevel = parseLogLevel(cfg.Observability.LogLevelName)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Database: DatabaseConfig{
			MaxConns: 25,
			Timeout:  5 * time.Second,
		},
		Cache: CacheConfig{
			Enabled: true,
			RedisDB: 0,
			L1Size:  4096,
			TTL:     5 * time.Minute,
		},
		Audit: AuditConfig{
			Backend:           "db",
			FilePath:          "/var/log/mono-access/audit",
			RetentionDays:     90,
			RetentionSchedule: "0 3 * * *",
		},
		Observability: ObservabilityConfig{
			LogLevel:       observability.InfoLevel,
			LogLevelName:   "info",
			MetricsEnabled: true,
		},
	}
}

// loadFile overlays values from a YAML file onto the config
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

// loadEnv overlays environment variables onto the config
func (c *Config) loadEnv() {
	c.Server.Host = getEnv("MONO_ACCESS_HOST", c.Server.Host)
	c.Server.Port = getEnv("MONO_ACCESS_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("MONO_ACCESS_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("MONO_ACCESS_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("MONO_ACCESS_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("MONO_ACCESS_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.HealthPort = getEnv("MONO_ACCESS_HEALTH_PORT", c.Server.HealthPort)

	c.Database.URL = getEnv("MONO_ACCESS_POSTGRES_URL", c.Database.URL)
	c.Database.MaxConns = getEnvInt("MONO_ACCESS_POSTGRES_MAX_CONNS", c.Database.MaxConns)
	c.Database.Timeout = getEnvDuration("MONO_ACCESS_POSTGRES_TIMEOUT", c.Database.Timeout)

	c.Cache.Enabled = getEnvBool("MONO_ACCESS_CACHE_ENABLED", c.Cache.Enabled)
	c.Cache.RedisURL = getEnv("MONO_ACCESS_REDIS_URL", c.Cache.RedisURL)
	c.Cache.RedisPassword = getEnv("MONO_ACCESS_REDIS_PASSWORD", c.Cache.RedisPassword)
	c.Cache.RedisDB = getEnvInt("MONO_ACCESS_REDIS_DB", c.Cache.RedisDB)
	c.Cache.L1Size = getEnvInt("MONO_ACCESS_L1_CACHE_SIZE", c.Cache.L1Size)
	c.Cache.TTL = getEnvDuration("MONO_ACCESS_CACHE_TTL", c.Cache.TTL)

	c.Audit.Backend = getEnv("MONO_ACCESS_AUDIT_BACKEND", c.Audit.Backend)
	c.Audit.FilePath = getEnv("MONO_ACCESS_AUDIT_FILE_PATH", c.Audit.FilePath)
	c.Audit.RetentionDays = getEnvInt("MONO_ACCESS_AUDIT_RETENTION_DAYS", c.Audit.RetentionDays)
	c.Audit.RetentionSchedule = getEnv("MONO_ACCESS_AUDIT_RETENTION_SCHEDULE", c.Audit.RetentionSchedule)

	c.Observability.LogLevelName = getEnv("MONO_ACCESS_LOG_LEVEL", c.Observability.LogLevelName)
	c.Observability.MetricsEnabled = getEnvBool("MONO_ACCESS_METRICS_ENABLED", c.Observability.MetricsEnabled)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Database.MaxConns <= 0 {
		return fmt.Errorf("postgres max connections must be positive")
	}

	if c.Cache.Enabled {
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("redis URL is required when the cache is enabled")
		}
		if c.Cache.L1Size <= 0 {
			return fmt.Errorf("L1 cache size must be positive")
		}
		if c.Cache.TTL <= 0 {
			return fmt.Errorf("cache TTL must be positive")
		}
	}

	switch c.Audit.Backend {
	case "db", "file", "both", "none":
	default:
		return fmt.Errorf("invalid audit backend: %s (must be db, file, both, or none)", c.Audit.Backend)
	}
	if c.Audit.Backend == "file" || c.Audit.Backend == "both" {
		if c.Audit.FilePath == "" {
			return fmt.Errorf("audit file path is required for file-backed audit")
		}
	}
	if c.Audit.RetentionDays <= 0 {
		return fmt.Errorf("audit retention days must be positive")
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
