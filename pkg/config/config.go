// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "HONE_DUMPCAP_CONFIG"

// SearchPaths are tried in order when EnvConfigPath is unset.
var SearchPaths = []string{
	"/etc/hone-dumpcap/config.yaml",
	"hone-dumpcap.yaml",
}

// Config is the top-level configuration for hone-dumpcap. The command line
// stays dumpcap compatible; everything that is not a dumpcap option lives
// here.
type Config struct {
	LogLevel string        `yaml:"log_level" env:"HONE_DUMPCAP_LOG_LEVEL"`
	Logging  LoggingConfig `yaml:"logging"`
	Device   DeviceConfig  `yaml:"device"`
	Dumpcap  DumpcapConfig `yaml:"dumpcap"`
	Parent   ParentConfig  `yaml:"parent"`
	Control  ControlConfig `yaml:"control"`
}

// LoggingConfig configures the optional rotating log file. Console logging
// is always off under a supervising parent, so the file is the only way to
// get diagnostics in that mode.
type LoggingConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type DeviceConfig struct {
	Path         string        `yaml:"path"`
	BufferSize   int           `yaml:"buffer_size"`
	WaitInterval time.Duration `yaml:"wait_interval"`
	RingPages    int           `yaml:"ring_pages"` // 0 keeps the driver default
}

type DumpcapConfig struct {
	// Path of the original dumpcap. Empty means dumpcap_orig next to the
	// running executable.
	Path string `yaml:"path"`
}

type ParentConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

type ControlConfig struct {
	// Dir holds the control file. Empty disables the control file.
	Dir string `yaml:"dir"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// LoadDefault loads the file named by $HONE_DUMPCAP_CONFIG, else the first
// existing search path, else defaults with environment overrides. It also
// returns the path that was loaded, or "".
func LoadDefault() (*Config, string, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		cfg, err := Load(path)
		return cfg, path, err
	}

	for _, path := range SearchPaths {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, path, fmt.Errorf("stat config: %w", err)
		}
		cfg, err := Load(path)
		return cfg, path, err
	}

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("validate config: %w", err)
	}
	return cfg, "", nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Logging: LoggingConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Device: DeviceConfig{
			Path:         "/dev/hone",
			BufferSize:   8192,
			WaitInterval: 500 * time.Millisecond,
		},
		Parent: ParentConfig{
			PollInterval: time.Second,
		},
	}
}

// ApplyEnvOverrides reads HONE_DUMPCAP_* environment variables and applies
// them to the config, overriding YAML values.
func (c *Config) ApplyEnvOverrides() {
	envOverrides := map[string]func(string){
		"HONE_DUMPCAP_LOG_LEVEL":    func(v string) { c.LogLevel = v },
		"HONE_DUMPCAP_LOG_FILE":     func(v string) { c.Logging.File = v },
		"HONE_DUMPCAP_DEVICE_PATH":  func(v string) { c.Device.Path = v },
		"HONE_DUMPCAP_DUMPCAP_PATH": func(v string) { c.Dumpcap.Path = v },
		"HONE_DUMPCAP_CONTROL_DIR":  func(v string) { c.Control.Dir = v },
	}

	intOverrides := map[string]*int{
		"HONE_DUMPCAP_DEVICE_BUFFER_SIZE": &c.Device.BufferSize,
		"HONE_DUMPCAP_DEVICE_RING_PAGES":  &c.Device.RingPages,
	}

	durationOverrides := map[string]*time.Duration{
		"HONE_DUMPCAP_DEVICE_WAIT_INTERVAL": &c.Device.WaitInterval,
		"HONE_DUMPCAP_PARENT_POLL_INTERVAL": &c.Parent.PollInterval,
	}

	for envKey, setter := range envOverrides {
		if val := os.Getenv(envKey); val != "" {
			setter(val)
		}
	}

	for envKey, target := range intOverrides {
		if val := os.Getenv(envKey); val != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
				*target = n
			}
		}
	}

	for envKey, target := range durationOverrides {
		if val := os.Getenv(envKey); val != "" {
			if d, err := time.ParseDuration(strings.TrimSpace(val)); err == nil {
				*target = d
			}
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error")
	}

	if c.Device.Path == "" {
		return fmt.Errorf("device.path is required")
	}
	if c.Device.BufferSize <= 0 || c.Device.BufferSize%4 != 0 {
		return fmt.Errorf("device.buffer_size must be a positive multiple of 4")
	}
	if c.Device.WaitInterval < time.Millisecond {
		return fmt.Errorf("device.wait_interval must be at least 1ms")
	}
	if c.Device.RingPages < 0 {
		return fmt.Errorf("device.ring_pages must not be negative")
	}

	if c.Parent.PollInterval < 10*time.Millisecond {
		return fmt.Errorf("parent.poll_interval must be at least 10ms")
	}

	if c.Logging.File != "" && c.Logging.MaxSizeMB <= 0 {
		return fmt.Errorf("logging.max_size_mb must be positive when logging.file is set")
	}

	return nil
}

// DumpcapPath resolves the original dumpcap location. exe is the path of
// the running executable.
func (c *Config) DumpcapPath(exe string, name string) string {
	if c.Dumpcap.Path != "" {
		return c.Dumpcap.Path
	}
	return filepath.Join(filepath.Dir(exe), name)
}
