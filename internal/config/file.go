package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config with durations kept as strings ("8s", "30m").
type fileConfig struct {
	DatabaseURL     string `yaml:"database_url"`
	RedisURL        string `yaml:"redis_url"`
	ServerPort      string `yaml:"server_port"`
	LogLevel        string `yaml:"log_level"`
	UserAgent       string `yaml:"user_agent"`
	Timeout         string `yaml:"timeout"`
	CatalogURL      string `yaml:"catalog_url"`
	CatalogTTL      string `yaml:"catalog_ttl"`
	ProbeBatchSize  int    `yaml:"probe_batch_size"`
	ProbeMaxStreams int    `yaml:"probe_max_streams"`
	ProbeTimeout    string `yaml:"probe_timeout"`
	BrowseIdleTTL   string `yaml:"browse_idle_ttl"`
	SessionSecret   string `yaml:"session_secret"`
	AdminEmail      string `yaml:"admin_email"`
	AdminPassword   string `yaml:"admin_password"`
	SecureCookies   bool   `yaml:"secure_cookies"`
}

// LoadFromFile loads config from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	c := &Config{
		DatabaseURL:     f.DatabaseURL,
		RedisURL:        f.RedisURL,
		ServerPort:      f.ServerPort,
		LogLevel:        f.LogLevel,
		UserAgent:       f.UserAgent,
		CatalogURL:      f.CatalogURL,
		ProbeBatchSize:  f.ProbeBatchSize,
		ProbeMaxStreams: f.ProbeMaxStreams,
		SessionSecret:   f.SessionSecret,
		AdminEmail:      f.AdminEmail,
		AdminPassword:   f.AdminPassword,
		SecureCookies:   f.SecureCookies,
	}
	durations := []struct {
		raw string
		dst *time.Duration
	}{
		{f.Timeout, &c.Timeout},
		{f.CatalogTTL, &c.CatalogTTL},
		{f.ProbeTimeout, &c.ProbeTimeout},
		{f.BrowseIdleTTL, &c.BrowseIdleTTL},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		*d.dst = v
	}

	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
