// Package config loads the daemon's configuration from a YAML file with
// environment-variable overrides, mirroring the defaults-then-overrides
// pattern the teacher builds its CollectConfig from.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the daemon's full runtime configuration.
type Config struct {
	Host string `yaml:"host"`

	RulesFile  string `yaml:"rules_file"`
	AlertsFile string `yaml:"alerts_file"`

	StreamAddr  string `yaml:"stream_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	PerCPUBufferSize int `yaml:"per_cpu_buffer_size"`

	LineageTTL      time.Duration `yaml:"-"`
	LineageTTLStr   string        `yaml:"lineage_ttl"`
	LineageCapacity int           `yaml:"lineage_capacity"`

	RecentCapacity int           `yaml:"recent_capacity"`
	RecentMaxAge   time.Duration `yaml:"-"`
	RecentMaxAgeStr string       `yaml:"recent_max_age"`

	BroadcastCapacity int `yaml:"broadcast_capacity"`

	// ProbeMode names an RSS probe shape ("disabled", "core:signal",
	// "core:mm", "tracepoint:mm/rss_stat"). It is loaded from the file and
	// LINNIXD_PROBE_MODE, but nothing in the daemon reads it: the kernel
	// producer's RSS probe shape is not selected from this field.
	ProbeMode string `yaml:"probe_mode"`

	Verbose bool `yaml:"verbose"`
}

// Default returns a Config populated with the daemon's baked-in defaults.
func Default() Config {
	return Config{
		Host:              defaultHost(),
		RulesFile:         "rules.yaml",
		AlertsFile:        "/var/lib/linnixd/alerts.jsonl",
		StreamAddr:        ":9400",
		MetricsAddr:       ":9401",
		PerCPUBufferSize:  64 * 1024,
		LineageTTL:        60 * time.Second,
		LineageCapacity:   8192,
		RecentCapacity:    4096,
		RecentMaxAge:      5 * time.Minute,
		BroadcastCapacity: 128,
	}
}

func defaultHost() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown"
	}
	return h
}

// Load reads a YAML config file at path, applying it over Default(), then
// applies environment overrides. An empty path returns Default() with
// environment overrides applied but no file read.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.resolveDurations(); err != nil {
		return Config{}, err
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) resolveDurations() error {
	if c.LineageTTLStr != "" {
		d, err := time.ParseDuration(c.LineageTTLStr)
		if err != nil {
			return fmt.Errorf("config: lineage_ttl: %w", err)
		}
		c.LineageTTL = d
	}
	if c.RecentMaxAgeStr != "" {
		d, err := time.ParseDuration(c.RecentMaxAgeStr)
		if err != nil {
			return fmt.Errorf("config: recent_max_age: %w", err)
		}
		c.RecentMaxAge = d
	}
	return nil
}

// envPrefix namespaces every override variable, e.g. LINNIXD_HOST.
const envPrefix = "LINNIXD_"

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(envPrefix + "HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv(envPrefix + "RULES_FILE"); v != "" {
		c.RulesFile = v
	}
	if v := os.Getenv(envPrefix + "ALERTS_FILE"); v != "" {
		c.AlertsFile = v
	}
	if v := os.Getenv(envPrefix + "STREAM_ADDR"); v != "" {
		c.StreamAddr = v
	}
	if v := os.Getenv(envPrefix + "METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv(envPrefix + "PROBE_MODE"); v != "" {
		c.ProbeMode = v
	}
	if v := os.Getenv(envPrefix + "VERBOSE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Verbose = b
		}
	}
}
