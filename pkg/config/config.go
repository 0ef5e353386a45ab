package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Cache         CacheConfig         `yaml:"cache"`
	Access        AccessConfig        `yaml:"access"`
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

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	URL         string        `yaml:"url"`
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
}

// CacheConfig holds actor snapshot cache configuration
type CacheConfig struct {
	// Backend is "memory" or "redis"
	Backend string `yaml:"backend"`
	// ActorTTL bounds staleness of cached actor snapshots
	ActorTTL time.Duration `yaml:"actor_ttl"`
	// MaxEntries bounds the in-memory LRU
	MaxEntries int    `yaml:"max_entries"`
	RedisURL   string `yaml:"redis_url"`
}

// AccessConfig holds access-control service settings
type AccessConfig struct {
	// ImpersonationTimeout bounds how long an impersonation session
	// stays active without being explicitly ended
	ImpersonationTimeout time.Duration `yaml:"impersonation_timeout"`
	// MagicLinkExpiration bounds magic link token validity
	MagicLinkExpiration time.Duration `yaml:"magic_link_expiration"`
	// MagicLinkMaxPerHour caps issuance per recipient in a trailing hour
	MagicLinkMaxPerHour int `yaml:"magic_link_max_per_hour"`
	// MagicLinkBaseURL is the login URL the raw token is appended to
	MagicLinkBaseURL string `yaml:"magic_link_base_url"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel `yaml:"-"`
	LogLevelName   string                 `yaml:"log_level"`
	MetricsEnabled bool                   `yaml:"metrics_enabled"`
}

// LoadConfig loads configuration from environment variables. When
// MYSCHED_CONFIG_FILE is set, the YAML file is loaded first and
// environment variables override it.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := getEnv("MYSCHED_CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg.applyEnv()

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
			URL:         "postgres://localhost/myscheduling?sslmode=disable",
			MaxConns:    25,
			MinConns:    5,
			Timeout:     5 * time.Second,
			MaxLifetime: 30 * time.Minute,
			MaxIdleTime: 5 * time.Minute,
		},
		Cache: CacheConfig{
			Backend:    "memory",
			ActorTTL:   5 * time.Minute,
			MaxEntries: 10000,
		},
		Access: AccessConfig{
			ImpersonationTimeout: 30 * time.Minute,
			MagicLinkExpiration:  15 * time.Minute,
			MagicLinkMaxPerHour:  5,
			MagicLinkBaseURL:     "https://app.myscheduling.example/login/magic",
		},
		Observability: ObservabilityConfig{
			LogLevel:       observability.InfoLevel,
			LogLevelName:   "info",
			MetricsEnabled: true,
		},
	}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	if c.Observability.LogLevelName != "" {
		c.Observability.LogLevel = observability.ParseLogLevel(c.Observability.LogLevelName)
	}
	return nil
}

func (c *Config) applyEnv() {
	// Server
	c.Server.Host = getEnv("MYSCHED_HOST", c.Server.Host)
	c.Server.Port = getEnv("MYSCHED_PORT", c.Server.Port)
	c.Server.HealthPort = getEnv("MYSCHED_HEALTH_PORT", c.Server.HealthPort)
	c.Server.ReadTimeout = getEnvDuration("MYSCHED_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("MYSCHED_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("MYSCHED_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("MYSCHED_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	// Database
	c.Database.URL = getEnv("MYSCHED_POSTGRES_URL", c.Database.URL)
	c.Database.MaxConns = getEnvInt("MYSCHED_POSTGRES_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getEnvInt("MYSCHED_POSTGRES_MIN_CONNS", c.Database.MinConns)
	c.Database.Timeout = getEnvDuration("MYSCHED_POSTGRES_TIMEOUT", c.Database.Timeout)

	// Cache
	c.Cache.Backend = getEnv("MYSCHED_CACHE_BACKEND", c.Cache.Backend)
	c.Cache.ActorTTL = getEnvDuration("MYSCHED_ACTOR_CACHE_TTL", c.Cache.ActorTTL)
	c.Cache.MaxEntries = getEnvInt("MYSCHED_CACHE_MAX_ENTRIES", c.Cache.MaxEntries)
	c.Cache.RedisURL = getEnv("MYSCHED_REDIS_URL", c.Cache.RedisURL)

	// Access control
	c.Access.ImpersonationTimeout = getEnvDuration("MYSCHED_IMPERSONATION_TIMEOUT", c.Access.ImpersonationTimeout)
	c.Access.MagicLinkExpiration = getEnvDuration("MYSCHED_MAGIC_LINK_EXPIRATION", c.Access.MagicLinkExpiration)
	c.Access.MagicLinkMaxPerHour = getEnvInt("MYSCHED_MAGIC_LINK_MAX_PER_HOUR", c.Access.MagicLinkMaxPerHour)
	c.Access.MagicLinkBaseURL = getEnv("MYSCHED_MAGIC_LINK_BASE_URL", c.Access.MagicLinkBaseURL)

	// Observability
	if level := getEnv("MYSCHED_LOG_LEVEL", ""); level != "" {
		c.Observability.LogLevelName = level
		c.Observability.LogLevel = observability.ParseLogLevel(strings.ToLower(level))
	}
	c.Observability.MetricsEnabled = getEnvBool("MYSCHED_METRICS_ENABLED", c.Observability.MetricsEnabled)
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

	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis cache backend")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s (must be memory or redis)", c.Cache.Backend)
	}
	if c.Cache.ActorTTL <= 0 {
		return fmt.Errorf("actor cache TTL must be positive")
	}

	if c.Access.ImpersonationTimeout <= 0 {
		return fmt.Errorf("impersonation timeout must be positive")
	}
	if c.Access.MagicLinkExpiration <= 0 {
		return fmt.Errorf("magic link expiration must be positive")
	}
	if c.Access.MagicLinkMaxPerHour <= 0 {
		return fmt.Errorf("magic link max requests per hour must be positive")
	}

	return nil
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
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
