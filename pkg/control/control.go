// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Package control delivers rotate and stop requests to a running capture
// through a small command file.
package control

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	controlFileName = "control"
	maxCommandSize  = 64
)

// Command is a request written into the control file.
type Command string

const (
	// Rotate moves the capture to a new output file.
	Rotate Command = "rotate"
	// Stop ends the capture after draining the device.
	Stop Command = "stop"
)

// ErrUnknownCommand is returned for control file content that names no
// command.
var ErrUnknownCommand = errors.New("unknown control command")

// ParseCommand trims surrounding whitespace and validates the command.
func ParseCommand(s string) (Command, error) {
	switch c := Command(strings.TrimSpace(s)); c {
	case Rotate, Stop:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, string(c))
	}
}

// ControlFile is the command file shared by the capture process and
// hone-ctl. The capture creates it empty; a client writes one command; the
// capture consumes it and empties the file again.
type ControlFile struct {
	path string
	file *os.File
}

// Path returns the control file location inside dir.
func Path(dir string) string {
	return filepath.Join(dir, controlFileName)
}

// CreateControlFile creates an empty control file in dir, replacing any
// stale command left by a previous run.
func CreateControlFile(dir string) (*ControlFile, error) {
	path := Path(dir)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0666)
	if err != nil {
		return nil, fmt.Errorf("create control file: %w", err)
	}
	// The umask may have cleared group/other write.
	if err := os.Chmod(path, 0666); err != nil {
		f.Close()
		return nil, fmt.Errorf("chmod control file: %w", err)
	}
	return &ControlFile{path: path, file: f}, nil
}

// OpenControlFile opens an existing control file. Used by hone-ctl to talk
// to a capture without starting one.
func OpenControlFile(dir string) (*ControlFile, error) {
	path := Path(dir)

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open control file %s: %w", path, err)
	}
	return &ControlFile{path: path, file: f}, nil
}

// Send replaces the file content with cmd.
func (c *ControlFile) Send(cmd Command) error {
	if _, err := ParseCommand(string(cmd)); err != nil {
		return err
	}
	if err := c.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate control file: %w", err)
	}
	if _, err := c.file.WriteAt([]byte(string(cmd)+"\n"), 0); err != nil {
		return fmt.Errorf("write control file: %w", err)
	}
	return nil
}

// Take reads and clears the pending command. An empty file yields "" with
// a nil error.
func (c *ControlFile) Take() (Command, error) {
	buf := make([]byte, maxCommandSize)
	n, err := c.file.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read control file: %w", err)
	}
	if n == 0 {
		return "", nil
	}
	if err := c.file.Truncate(0); err != nil {
		return "", fmt.Errorf("truncate control file: %w", err)
	}
	return ParseCommand(string(buf[:n]))
}

// Close closes the file handle. The file stays on disk until Remove.
func (c *ControlFile) Close() error {
	if c.file != nil {
		return c.file.Close()
	}
	return nil
}

// Remove deletes the control file.
func (c *ControlFile) Remove() error {
	return os.Remove(c.path)
}

// Path returns the control file path.
func (c *ControlFile) Path() string {
	return c.path
}
