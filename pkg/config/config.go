package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is volguard's complete runtime configuration: every option
// named in spec.md §6 plus the ambient additions (config file path,
// metrics address, logging).
type Config struct {
	DryRun bool `yaml:"dry_run"`

	CheckIntervalSeconds int `yaml:"check_interval_seconds"`
	ThresholdHigh        int `yaml:"threshold_high"`
	ThresholdLow         int `yaml:"threshold_low"`
	HistorySamples       int `yaml:"history_samples"`

	ExtendStepBytes int64 `yaml:"extend_step_bytes"`
	DonorMinFree    int64 `yaml:"donor_min_free_bytes"`
	FallbackDevice  string `yaml:"fallback_device"`

	LockFile string `yaml:"lock_file"`

	MonitoredMounts []string `yaml:"monitored_mounts"`
	ShrinkableFS    []string `yaml:"shrinkable_fs"`

	StatusPort int `yaml:"status_port"`
	MaxVolumes int `yaml:"max_volumes"`
	MaxBuffer  int `yaml:"max_buffer"`

	PostOpCooldownSeconds int `yaml:"post_op_cooldown_seconds"`

	MetricsAddr string `yaml:"metrics_addr"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	EnableWriter bool `yaml:"enable_writer"`
}

// Default returns the zero-config baseline every flag and file value
// layers on top of.
func Default() Config {
	return Config{
		DryRun:                false,
		CheckIntervalSeconds:  30,
		ThresholdHigh:         85,
		ThresholdLow:          40,
		HistorySamples:        12,
		ExtendStepBytes:       1 << 30, // 1 GiB
		DonorMinFree:          512 * (1 << 20),
		LockFile:              "/var/run/volguard.lock",
		MonitoredMounts:       nil,
		ShrinkableFS:          []string{"ext2", "ext3", "ext4"},
		StatusPort:            8099,
		MaxVolumes:            256,
		MaxBuffer:             1 << 16,
		PostOpCooldownSeconds: 5,
		MetricsAddr:           "",
		LogLevel:              "info",
		LogJSON:               false,
		EnableWriter:          false,
	}
}

// LoadFile reads a YAML config file and merges it over base. A path that
// cannot be read (including a missing file) is an error; callers decide
// whether --config was supplied at all before calling it.
func LoadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the rest of the system cannot run
// safely against.
func (c Config) Validate() error {
	if c.HistorySamples <= 0 {
		return fmt.Errorf("config: history_samples must be positive, got %d", c.HistorySamples)
	}
	if c.ThresholdLow >= c.ThresholdHigh {
		return fmt.Errorf("config: threshold_low (%d) must be less than threshold_high (%d)", c.ThresholdLow, c.ThresholdHigh)
	}
	if len(c.MonitoredMounts) == 0 {
		return fmt.Errorf("config: monitored_mounts must not be empty")
	}
	if c.CheckIntervalSeconds <= 0 {
		return fmt.Errorf("config: check_interval_seconds must be positive, got %d", c.CheckIntervalSeconds)
	}
	if c.ExtendStepBytes <= 0 {
		return fmt.Errorf("config: extend_step_bytes must be positive, got %d", c.ExtendStepBytes)
	}
	return nil
}

// CheckInterval is CheckIntervalSeconds as a time.Duration.
func (c Config) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}

// PostOpCooldown is PostOpCooldownSeconds as a time.Duration.
func (c Config) PostOpCooldown() time.Duration {
	return time.Duration(c.PostOpCooldownSeconds) * time.Second
}

// MonitoredMountSet returns MonitoredMounts as a membership set, the
// shape pkg/supervisor's Config wants.
func (c Config) MonitoredMountSet() map[string]bool {
	set := make(map[string]bool, len(c.MonitoredMounts))
	for _, m := range c.MonitoredMounts {
		set[m] = true
	}
	return set
}

// ShrinkableFSSet returns ShrinkableFS as a membership set, the shape
// pkg/planner's Config wants.
func (c Config) ShrinkableFSSet() map[string]bool {
	set := make(map[string]bool, len(c.ShrinkableFS))
	for _, fs := range c.ShrinkableFS {
		set[fs] = true
	}
	return set
}
