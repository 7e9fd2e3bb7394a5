package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

var (
	ErrMissingDatabaseURL      = errors.New("config: DATABASE_URL is required")
	ErrMissingSessionSecret    = errors.New("config: SESSION_SECRET is required")
	ErrMissingAdminCredentials = errors.New("config: ADMIN_EMAIL and ADMIN_PASSWORD are required")
)

const (
	defaultServerPort      = "8080"
	defaultUserAgent       = "PrimeCast/1.0"
	defaultTimeout         = 60 * time.Second
	defaultCatalogURL      = "https://iptv-org.github.io/api"
	defaultCatalogTTL      = time.Hour
	defaultProbeBatchSize  = 5
	defaultProbeMaxStreams = 3
	defaultProbeTimeout    = 8 * time.Second
	defaultBrowseIdleTTL   = 30 * time.Minute
)

// Config holds application configuration.
type Config struct {
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
	RedisURL    string `yaml:"redis_url" env:"REDIS_URL"`
	ServerPort  string `yaml:"server_port" env:"SERVER_PORT"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL"`

	// Upstream iptv-org catalog.
	UserAgent  string        `yaml:"user_agent" env:"FETCHER_USER_AGENT"`
	Timeout    time.Duration `yaml:"timeout" env:"FETCHER_TIMEOUT"`
	CatalogURL string        `yaml:"catalog_url" env:"CATALOG_URL"`
	CatalogTTL time.Duration `yaml:"catalog_ttl" env:"CATALOG_TTL"`

	// Stream prober.
	ProbeBatchSize  int           `yaml:"probe_batch_size" env:"PROBE_BATCH_SIZE"`
	ProbeMaxStreams int           `yaml:"probe_max_streams" env:"PROBE_MAX_STREAMS"`
	ProbeTimeout    time.Duration `yaml:"probe_timeout" env:"PROBE_TIMEOUT"`

	BrowseIdleTTL time.Duration `yaml:"browse_idle_ttl" env:"BROWSE_IDLE_TTL"`

	// Sessions and back-office.
	SessionSecret string `yaml:"session_secret" env:"SESSION_SECRET"`
	AdminEmail    string `yaml:"admin_email" env:"ADMIN_EMAIL"`
	AdminPassword string `yaml:"admin_password" env:"ADMIN_PASSWORD"`
	SecureCookies bool   `yaml:"secure_cookies" env:"SECURE_COOKIES"`
}

// Load builds config from environment variables.
// If DATABASE_URL is not set, Load tries .env.local and .env from the current
// directory and the executable's directory first.
func Load() (*Config, error) {
	if os.Getenv("DATABASE_URL") == "" {
		loadEnvFiles(envDirs()...)
	}
	c := &Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		ServerPort:    os.Getenv("SERVER_PORT"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		UserAgent:     os.Getenv("FETCHER_USER_AGENT"),
		CatalogURL:    os.Getenv("CATALOG_URL"),
		SessionSecret: os.Getenv("SESSION_SECRET"),
		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}
	c.Timeout = envDuration("FETCHER_TIMEOUT")
	c.CatalogTTL = envDuration("CATALOG_TTL")
	c.ProbeTimeout = envDuration("PROBE_TIMEOUT")
	c.BrowseIdleTTL = envDuration("BROWSE_IDLE_TTL")
	c.ProbeBatchSize = envInt("PROBE_BATCH_SIZE")
	c.ProbeMaxStreams = envInt("PROBE_MAX_STREAMS")
	if v, err := strconv.ParseBool(os.Getenv("SECURE_COOKIES")); err == nil {
		c.SecureCookies = v
	}

	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate reports the first missing required setting.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if c.SessionSecret == "" {
		return ErrMissingSessionSecret
	}
	if c.AdminEmail == "" || c.AdminPassword == "" {
		return ErrMissingAdminCredentials
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.ServerPort == "" {
		c.ServerPort = defaultServerPort
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.CatalogURL == "" {
		c.CatalogURL = defaultCatalogURL
	}
	if c.CatalogTTL <= 0 {
		c.CatalogTTL = defaultCatalogTTL
	}
	if c.ProbeBatchSize <= 0 {
		c.ProbeBatchSize = defaultProbeBatchSize
	}
	if c.ProbeMaxStreams <= 0 {
		c.ProbeMaxStreams = defaultProbeMaxStreams
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = defaultProbeTimeout
	}
	if c.BrowseIdleTTL <= 0 {
		c.BrowseIdleTTL = defaultBrowseIdleTTL
	}
}

func envDuration(key string) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return 0
}

func envInt(key string) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return 0
}
