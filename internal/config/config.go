// Package config loads the inputtrace configuration.
//
// Configuration is resolved once at startup and passed by reference to the
// components that need it; nothing reads configuration through globals.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration shared by the agent and the receiver.
type Config struct {
	// Agent side.
	WebhookURL          string   `yaml:"webhook_url"`
	SendIntervalSeconds int      `yaml:"send_interval_seconds"`
	SendTimeoutSeconds  int      `yaml:"send_timeout_seconds"`
	BatchSize           int      `yaml:"batch_size"`
	MaxBacklog          int      `yaml:"max_backlog"`
	LogDir              string   `yaml:"log_dir"`
	PendingCacheFile    string   `yaml:"pending_cache_file"`
	SensitiveKeywords   []string `yaml:"sensitive_title_keywords"`
	ConsentAcknowledged bool     `yaml:"consent_acknowledged"`

	// Receiver side.
	DBPath         string `yaml:"db_path"`
	ListenAddr     string `yaml:"listen_addr"`
	DashboardLimit int    `yaml:"dashboard_limit"`
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		WebhookURL:          "http://127.0.0.1:8000/api/input",
		SendIntervalSeconds: 5,
		SendTimeoutSeconds:  10,
		BatchSize:           25,
		MaxBacklog:          8192,
		LogDir:              "logs",
		PendingCacheFile:    "pending_events.jsonl",
		SensitiveKeywords:   []string{"password", "login", "auth", "credential"},
		DBPath:              "tracker.db",
		ListenAddr:          "127.0.0.1:8000",
		DashboardLimit:      100,
	}
}

// Load reads the YAML config file at path, merged over the defaults and under
// any environment overrides. A missing file is not an error; the defaults are
// returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.WebhookURL = getEnv("INPUTTRACE_WEBHOOK_URL", cfg.WebhookURL)
	cfg.SendIntervalSeconds = getEnvInt("INPUTTRACE_SEND_INTERVAL", cfg.SendIntervalSeconds)
	cfg.BatchSize = getEnvInt("INPUTTRACE_BATCH_SIZE", cfg.BatchSize)
	cfg.LogDir = getEnv("INPUTTRACE_LOG_DIR", cfg.LogDir)
	cfg.DBPath = getEnv("INPUTTRACE_DB", cfg.DBPath)
	cfg.ListenAddr = getEnv("INPUTTRACE_LISTEN_ADDR", cfg.ListenAddr)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants the rest of the system relies on.
func (c *Config) Validate() error {
	if c.WebhookURL == "" {
		return fmt.Errorf("webhook_url must not be empty")
	}
	if c.SendIntervalSeconds < 1 {
		return fmt.Errorf("send_interval_seconds must be at least 1, got %d", c.SendIntervalSeconds)
	}
	if c.SendTimeoutSeconds < 1 {
		return fmt.Errorf("send_timeout_seconds must be at least 1, got %d", c.SendTimeoutSeconds)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1, got %d", c.BatchSize)
	}
	if c.MaxBacklog < c.BatchSize {
		return fmt.Errorf("max_backlog (%d) must be at least batch_size (%d)", c.MaxBacklog, c.BatchSize)
	}
	return nil
}

// SendInterval returns the delivery cycle interval.
func (c *Config) SendInterval() time.Duration {
	return time.Duration(c.SendIntervalSeconds) * time.Second
}

// SendTimeout returns the per-request HTTP delivery timeout.
func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}

// EventLogPath returns the path of the append-only local event log.
func (c *Config) EventLogPath() string {
	return filepath.Join(c.LogDir, "events.jsonl")
}

// PendingCachePath returns the path of the durable pending batch cache.
func (c *Config) PendingCachePath() string {
	return filepath.Join(c.LogDir, c.PendingCacheFile)
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
