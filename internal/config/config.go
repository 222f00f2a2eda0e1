package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yte121/openswarm/internal/filter"
)

// Config is the single configuration file format for openswarm.jsonc
type Config struct {
	Server    ServerSection    `json:"server"`
	Launcher  LauncherSection  `json:"launcher"`
	Capture   CaptureSection   `json:"capture"`
	Filters   []filter.Rule    `json:"filters"`
	Retention RetentionSection `json:"retention"`
	Auth      AuthSection      `json:"auth"`
	Audit     AuditSection     `json:"audit"`
}

// ServerSection contains HTTP server configuration
type ServerSection struct {
	Address string `json:"address"`
}

// LauncherSection selects how processes are spawned
type LauncherSection struct {
	// Type is "local" or "docker"
	Type   string        `json:"type"`
	Docker DockerSection `json:"docker"`
}

// DockerSection configures the docker launcher
type DockerSection struct {
	Image       string `json:"image"`
	NetworkMode string `json:"network_mode"`
	Memory      string `json:"memory"`
	CPUs        int    `json:"cpus"`
}

// CaptureSection tunes output capture and fan-out
type CaptureSection struct {
	MaxBufferChunks     int    `json:"max_buffer_chunks"`
	MaxBufferBytes      int64  `json:"max_buffer_bytes"`
	FlushIntervalMs     int    `json:"flush_interval_ms"`
	GracePeriodSeconds  int    `json:"grace_period_seconds"`
	SubscriberPolicy    string `json:"default_subscriber_policy"`
	SubscriberQueueSize int    `json:"subscriber_queue_size"`
}

// RetentionSection controls when finished processes are reaped
type RetentionSection struct {
	WindowMinutes        int `json:"window_minutes"`
	SweepIntervalMinutes int `json:"sweep_interval_minutes"`
}

// AuthSection configures token authentication
type AuthSection struct {
	Enabled            bool `json:"enabled"`
	RateLimitPerMinute int  `json:"rate_limit_per_minute"`
}

// AuditSection configures audit logging
type AuditSection struct {
	Enabled *bool `json:"enabled"`
}

// AuditEnabled reports whether audit logging is on (default true).
func (c *Config) AuditEnabled() bool {
	return c.Audit.Enabled == nil || *c.Audit.Enabled
}

// FindConfigPath returns the path to openswarm.jsonc using precedence:
// 1. configDir + /openswarm.jsonc (if configDir specified)
// 2. ./config/openswarm.jsonc (project-local)
// 3. ~/.openswarm/config/openswarm.jsonc (user global)
func FindConfigPath(configDir string) (string, error) {
	if configDir != "" {
		path := filepath.Join(configDir, "openswarm.jsonc")
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("openswarm.jsonc not found in %s", configDir)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return path, nil
		}
		return abs, nil
	}

	candidates := []string{
		filepath.Join("config", "openswarm.jsonc"),
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".openswarm", "config", "openswarm.jsonc"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			abs, err := filepath.Abs(path)
			if err != nil {
				return path, nil
			}
			return abs, nil
		}
	}

	return "", fmt.Errorf("openswarm.jsonc not found; tried: %v", candidates)
}

// Load reads and parses openswarm.jsonc from the given path.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", configPath, err)
	}

	jsonData := StripJSONComments(data)

	var cfg Config
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", configPath, err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a configuration with every default applied, used when
// no config file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Launcher.Type == "" {
		cfg.Launcher.Type = "local"
	}
	if cfg.Capture.MaxBufferChunks == 0 {
		cfg.Capture.MaxBufferChunks = 1000
	}
	if cfg.Capture.FlushIntervalMs == 0 {
		cfg.Capture.FlushIntervalMs = 200
	}
	if cfg.Capture.GracePeriodSeconds == 0 {
		cfg.Capture.GracePeriodSeconds = 10
	}
	if cfg.Capture.SubscriberPolicy == "" {
		cfg.Capture.SubscriberPolicy = "drop-oldest"
	}
	if cfg.Capture.SubscriberQueueSize == 0 {
		cfg.Capture.SubscriberQueueSize = 100
	}
	if cfg.Retention.WindowMinutes == 0 {
		cfg.Retention.WindowMinutes = 30
	}
	if cfg.Retention.SweepIntervalMinutes == 0 {
		cfg.Retention.SweepIntervalMinutes = 5
	}
	if cfg.Auth.RateLimitPerMinute == 0 {
		cfg.Auth.RateLimitPerMinute = 60
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Launcher.Type {
	case "local":
	case "docker":
		if c.Launcher.Docker.Image == "" {
			return fmt.Errorf("launcher.docker.image is required when launcher.type is docker")
		}
	default:
		return fmt.Errorf("unknown launcher type %q", c.Launcher.Type)
	}

	switch c.Capture.SubscriberPolicy {
	case "drop-oldest", "disconnect-on-overflow":
	default:
		return fmt.Errorf("unknown default_subscriber_policy %q", c.Capture.SubscriberPolicy)
	}

	if _, err := filter.NewChain(c.Filters); len(c.Filters) > 0 && err != nil {
		return fmt.Errorf("invalid filter rules: %w", err)
	}
	return nil
}
