package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"labmonitor/internal/models"
)

// Probing holds the global probe settings. Any field left unset in the
// configuration file falls back to its documented default.
type Probing struct {
	TimeoutMS      int    `yaml:"timeout_ms"`
	IntervalMS     int    `yaml:"interval_ms"`
	MaxRetries     int    `yaml:"max_retries"`
	RetryDelayMS   int    `yaml:"retry_delay_ms"`
	MaxHistorySize int    `yaml:"max_history_size"`
	ProxyEndpoint  string `yaml:"proxy_endpoint"`
}

// Timeout returns the hard per-probe timeout.
func (p Probing) Timeout() time.Duration { return time.Duration(p.TimeoutMS) * time.Millisecond }

// Interval returns the default check interval.
func (p Probing) Interval() time.Duration { return time.Duration(p.IntervalMS) * time.Millisecond }

// RetryDelay returns the base delay for linear retry backoff.
func (p Probing) RetryDelay() time.Duration {
	return time.Duration(p.RetryDelayMS) * time.Millisecond
}

// Config represents configuration data for the monitoring service.
type Config struct {
	ListenAddr string                     `yaml:"listen_addr"`
	Origin     string                     `yaml:"origin"`
	LogLevel   string                     `yaml:"log_level"`
	LogFormat  string                     `yaml:"log_format"`
	Probing    Probing                    `yaml:"probing"`
	Services   []models.ServiceDescriptor `yaml:"services"`
}

// DefaultConfig returns sensible defaults in case no configuration file is provided.
func DefaultConfig() Config {
	return Config{
		ListenAddr: ":8080",
		Origin:     "http://localhost:8080",
		LogLevel:   "info",
		LogFormat:  "console",
		Probing: Probing{
			TimeoutMS:      8000,
			IntervalMS:     60000,
			MaxRetries:     2,
			RetryDelayMS:   1500,
			MaxHistorySize: 50,
			ProxyEndpoint:  "/api/health-proxy",
		},
	}
}

// Load reads configuration from a yaml file. A missing file falls back to
// defaults; individual unset options fall back per-field.
func Load(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalise() error {
	defaults := DefaultConfig()

	if c.ListenAddr == "" {
		c.ListenAddr = defaults.ListenAddr
	}
	if c.Origin == "" {
		c.Origin = defaults.Origin
	}
	if _, err := url.Parse(c.Origin); err != nil {
		return fmt.Errorf("origin %q is not a valid URL: %w", c.Origin, err)
	}
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = defaults.LogFormat
	}

	if c.Probing.TimeoutMS <= 0 {
		c.Probing.TimeoutMS = defaults.Probing.TimeoutMS
	}
	if c.Probing.IntervalMS <= 0 {
		c.Probing.IntervalMS = defaults.Probing.IntervalMS
	}
	if c.Probing.MaxRetries < 0 {
		c.Probing.MaxRetries = defaults.Probing.MaxRetries
	}
	if c.Probing.RetryDelayMS <= 0 {
		c.Probing.RetryDelayMS = defaults.Probing.RetryDelayMS
	}
	if c.Probing.MaxHistorySize <= 0 {
		c.Probing.MaxHistorySize = defaults.Probing.MaxHistorySize
	}
	if c.Probing.ProxyEndpoint == "" {
		c.Probing.ProxyEndpoint = defaults.Probing.ProxyEndpoint
	}

	if len(c.Services) == 0 {
		return errors.New("configuration must define at least one service")
	}
	seen := make(map[string]struct{}, len(c.Services))
	for i, svc := range c.Services {
		if svc.ID == "" {
			return fmt.Errorf("service %d is missing id", i)
		}
		if svc.URL == "" {
			return fmt.Errorf("service %s url is required", svc.ID)
		}
		if _, dup := seen[svc.ID]; dup {
			return fmt.Errorf("service id %s is defined more than once", svc.ID)
		}
		seen[svc.ID] = struct{}{}
		if c.Services[i].Name == "" {
			c.Services[i].Name = svc.ID
		}
	}
	return nil
}
