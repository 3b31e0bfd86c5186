// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Device.Path != "/dev/hone" {
		t.Errorf("device path = %q", cfg.Device.Path)
	}
	if cfg.Device.BufferSize != 8192 {
		t.Errorf("buffer size = %d", cfg.Device.BufferSize)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
logging:
  file: /var/log/hone-dumpcap.log
  compress: true
device:
  path: /dev/hone0
  buffer_size: 16384
  wait_interval: 250ms
  ring_pages: 64
dumpcap:
  path: /usr/lib/wireshark/dumpcap_orig
control:
  dir: /run/hone-dumpcap
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "debug" || cfg.Logging.File != "/var/log/hone-dumpcap.log" || !cfg.Logging.Compress {
		t.Errorf("logging not loaded: %+v %q", cfg.Logging, cfg.LogLevel)
	}
	if cfg.Logging.MaxSizeMB != 10 {
		t.Errorf("unset max_size_mb should keep default, got %d", cfg.Logging.MaxSizeMB)
	}
	if cfg.Device.Path != "/dev/hone0" || cfg.Device.BufferSize != 16384 ||
		cfg.Device.WaitInterval != 250*time.Millisecond || cfg.Device.RingPages != 64 {
		t.Errorf("device not loaded: %+v", cfg.Device)
	}
	if cfg.Parent.PollInterval != time.Second {
		t.Errorf("parent poll interval = %v", cfg.Parent.PollInterval)
	}
	if got := cfg.DumpcapPath("/usr/bin/dumpcap", "dumpcap_orig"); got != "/usr/lib/wireshark/dumpcap_orig" {
		t.Errorf("dumpcap path = %q", got)
	}
	if cfg.Control.Dir != "/run/hone-dumpcap" {
		t.Errorf("control dir = %q", cfg.Control.Dir)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"buffer not multiple of 4": "device:\n  buffer_size: 1001\n",
		"buffer zero":              "device:\n  buffer_size: 0\n",
		"bad level":                "log_level: loud\n",
		"negative ring":            "device:\n  ring_pages: -1\n",
		"tiny poll":                "parent:\n  poll_interval: 1ms\n",
		"bad yaml":                 "device: [\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HONE_DUMPCAP_LOG_LEVEL", "debug")
	t.Setenv("HONE_DUMPCAP_DEVICE_PATH", "/tmp/hone")
	t.Setenv("HONE_DUMPCAP_DEVICE_BUFFER_SIZE", "4096")
	t.Setenv("HONE_DUMPCAP_DEVICE_WAIT_INTERVAL", "2s")
	t.Setenv("HONE_DUMPCAP_PARENT_POLL_INTERVAL", "not-a-duration")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	if cfg.LogLevel != "debug" || cfg.Device.Path != "/tmp/hone" {
		t.Errorf("string overrides not applied: %+v", cfg)
	}
	if cfg.Device.BufferSize != 4096 || cfg.Device.WaitInterval != 2*time.Second {
		t.Errorf("numeric overrides not applied: %+v", cfg.Device)
	}
	if cfg.Parent.PollInterval != time.Second {
		t.Errorf("malformed duration should be ignored, got %v", cfg.Parent.PollInterval)
	}
}

func TestLoadDefaultFromEnvPath(t *testing.T) {
	path := writeConfig(t, "log_level: error\n")
	t.Setenv(EnvConfigPath, path)

	cfg, loaded, err := LoadDefault()
	if err != nil {
		t.Fatal(err)
	}
	if loaded != path || cfg.LogLevel != "error" {
		t.Errorf("loaded %q level %q", loaded, cfg.LogLevel)
	}
}

func TestLoadDefaultWithoutFile(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	saved := SearchPaths
	SearchPaths = []string{filepath.Join(t.TempDir(), "missing.yaml")}
	defer func() { SearchPaths = saved }()

	cfg, loaded, err := LoadDefault()
	if err != nil {
		t.Fatal(err)
	}
	if loaded != "" {
		t.Errorf("loaded = %q", loaded)
	}
	if cfg.Device.Path != "/dev/hone" {
		t.Errorf("device path = %q", cfg.Device.Path)
	}
}

func TestDumpcapPathNextToExecutable(t *testing.T) {
	cfg := DefaultConfig()
	got := cfg.DumpcapPath("/opt/wireshark/bin/dumpcap", "dumpcap_orig")
	if !strings.HasSuffix(got, filepath.Join("bin", "dumpcap_orig")) {
		t.Errorf("dumpcap path = %q", got)
	}
}
