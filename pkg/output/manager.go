// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// timestampLayout gives second granularity to generated file names.
const timestampLayout = "20060102150405"

// tempPrefix starts every generated temporary capture file name.
const tempPrefix = "hone_dumpcap_"

// Config describes where capture files go and how many are kept.
type Config struct {
	// Path is the explicit output file. Empty means a temporary file per
	// output, created under TempDir.
	Path string
	// Rotate inserts a rotation index and timestamp into Path so every
	// rotation gets its own file.
	Rotate bool
	// Retain is the number of most recent files kept on disk. Zero keeps all.
	Retain int
	// TempDir overrides os.TempDir for generated names.
	TempDir string
	// Now overrides the clock used for timestamps.
	Now func() time.Time
}

// Manager owns the active output file and the list of retained files.
type Manager struct {
	cfg    Config
	logger *zap.Logger

	file    *os.File
	names   []string // oldest first
	opened  uint32
	written uint64
}

// NewManager creates a manager. No file is opened until Open is called.
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{cfg: cfg, logger: logger}
}

// CanRotate reports whether opening another file yields a new name. An
// explicit path without rotation would be truncated in place.
func (m *Manager) CanRotate() bool {
	return m.cfg.Path == "" || m.cfg.Rotate
}

// Open closes the current file, if any, and opens the next one. The new path
// joins the retained set; files beyond the retention count are deleted oldest
// first. A failed deletion is fatal since the retention bound can no longer
// be honored.
func (m *Manager) Open() (string, error) {
	if err := m.closeFile(); err != nil {
		return "", err
	}

	name, f, err := m.create()
	if err != nil {
		return "", err
	}
	m.file = f

	m.names = append(m.names, name)
	if m.cfg.Retain > 0 {
		for len(m.names) > m.cfg.Retain {
			oldest := m.names[0]
			if err := os.Remove(oldest); err != nil {
				return "", fmt.Errorf("remove %s: %w", oldest, err)
			}
			m.names = m.names[1:]
			m.logger.Debug("removed old capture file", zap.String("file", oldest))
		}
	}

	m.opened++
	m.written = 0
	m.logger.Info("capture file opened",
		zap.String("file", name),
		zap.Uint32("files_opened", m.opened),
	)
	return name, nil
}

func (m *Manager) create() (string, *os.File, error) {
	ts := m.cfg.Now().Format(timestampLayout)

	if m.cfg.Path == "" {
		pattern := tempPrefix + ts + "_*.pcapng"
		f, err := os.CreateTemp(m.cfg.TempDir, pattern)
		if err != nil {
			return "", nil, fmt.Errorf("create temporary file with template %s: %w",
				filepath.Join(m.cfg.TempDir, pattern), err)
		}
		return f.Name(), f, nil
	}

	name := m.cfg.Path
	if m.cfg.Rotate {
		name = RotatedName(m.cfg.Path, m.opened, ts)
	}
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return "", nil, fmt.Errorf("open %s for writing: %w", name, err)
	}
	return name, f, nil
}

// RotatedName inserts the zero-based rotation index and a timestamp between
// the base name and the extension of path.
func RotatedName(path string, index uint32, timestamp string) string {
	dir, file := filepath.Split(path)
	ext := filepath.Ext(file)
	base := strings.TrimSuffix(file, ext)
	return filepath.Join(dir, fmt.Sprintf("%s_%05d_%s%s", base, index, timestamp, ext))
}

// Write appends p to the current file. A short write is an error.
func (m *Manager) Write(p []byte) error {
	if m.file == nil {
		return fmt.Errorf("write %d bytes: no capture file open", len(p))
	}
	n, err := m.file.Write(p)
	m.written += uint64(n)
	if err != nil {
		return fmt.Errorf("write %d bytes to %s: %w", len(p), m.file.Name(), err)
	}
	return nil
}

// Close releases the current file.
func (m *Manager) Close() error {
	return m.closeFile()
}

func (m *Manager) closeFile() error {
	if m.file == nil {
		return nil
	}
	f := m.file
	m.file = nil
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", f.Name(), err)
	}
	return nil
}

// Current returns the path of the open file, or "" if none is open.
func (m *Manager) Current() string {
	if m.file == nil {
		return ""
	}
	return m.file.Name()
}

// Names returns the retained file paths, oldest first.
func (m *Manager) Names() []string {
	return append([]string(nil), m.names...)
}

// Opened returns how many files have been opened.
func (m *Manager) Opened() uint32 {
	return m.opened
}

// Written returns the bytes written to the current file.
func (m *Manager) Written() uint64 {
	return m.written
}
