// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Package passthrough runs the original dumpcap for everything the Hone
// device does not handle, and splices the Hone interface into its listings.
package passthrough

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// OriginalName is the file name the installer gives the original dumpcap,
// next to this executable.
const OriginalName = "dumpcap_orig"

// killDelay bounds how long a terminated child may keep its pipes open.
const killDelay = 5 * time.Second

// Hone interface entries put in front of the original listing.
const (
	honeMachineEntry = "1. Hone\t\tHone capture pseudo-interface\t0\t\tnetwork"
	honeHumanEntry   = "1. Hone (Hone capture pseudo-interface)"
)

var newlines = regexp.MustCompile("[\r\n]+")

// Runner executes the original dumpcap.
type Runner struct {
	// Path is the original dumpcap executable.
	Path   string
	Stdout io.Writer
	Stderr io.Writer
	Logger *zap.Logger
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func (r *Runner) command(ctx context.Context, args []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, r.Path, args...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = killDelay
	return cmd
}

// Run executes the original dumpcap with args, relaying its output streams
// unchanged, and returns its exit code. Cancelling ctx terminates the child
// with SIGTERM; a child stopped that way is not an error.
func (r *Runner) Run(ctx context.Context, args []string) (int, error) {
	cmd := r.command(ctx, args)
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	r.logger().Debug("running original dumpcap",
		zap.String("path", r.Path),
		zap.Strings("args", args),
	)

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return 1, fmt.Errorf("run %s: %w", r.Path, err)
	}
	if code := exitErr.ExitCode(); code >= 0 {
		return code, nil
	}
	if ctx.Err() != nil {
		r.logger().Info("original dumpcap terminated on request")
		return 0, nil
	}
	return 1, fmt.Errorf("%s: %w", r.Path, err)
}

// output runs the original dumpcap to completion and collects its streams.
func (r *Runner) output(ctx context.Context, args []string) (stdout, stderr []byte, err error) {
	var out, errOut bytes.Buffer
	cmd := r.command(ctx, args)
	cmd.Stdout = &out
	cmd.Stderr = &errOut

	err = cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		err = fmt.Errorf("execution failed with error code %d\n%s", exitErr.ExitCode(), errOut.String())
	} else if err != nil {
		err = fmt.Errorf("run %s: %w", r.Path, err)
	}
	return out.Bytes(), errOut.Bytes(), err
}

// ListInterfaces returns the original interface list, renumbered, with the
// Hone entry first. Every listing line is newline terminated.
func (r *Runner) ListInterfaces(ctx context.Context, machineReadable bool) (string, error) {
	args := []string{"-D"}
	if machineReadable {
		args = append(args, "-M")
	}
	out, errOut, err := r.output(ctx, args)
	if err != nil {
		return "", fmt.Errorf("cannot get list of interfaces from original dumpcap: %w", err)
	}
	return SpliceInterfaces(machineReadable, out, errOut)
}

// SpliceInterfaces shifts every "N. rest" line to "N+1. rest" and puts the
// Hone entry in front. Empty lines are dropped; a line without a numeric
// index is an error.
func SpliceInterfaces(machineReadable bool, listings ...[]byte) (string, error) {
	var b strings.Builder
	if machineReadable {
		b.WriteString(honeMachineEntry)
	} else {
		b.WriteString(honeHumanEntry)
	}
	b.WriteByte('\n')

	for _, listing := range listings {
		for _, line := range newlines.Split(string(listing), -1) {
			if line == "" {
				continue
			}
			index, rest, dotted := strings.Cut(line, ".")
			n, err := strconv.ParseUint(index, 10, 32)
			if err != nil {
				return "", fmt.Errorf("invalid interface '%s' from dumpcap", line)
			}
			b.WriteString(strconv.FormatUint(n+1, 10))
			if dotted {
				b.WriteByte('.')
				b.WriteString(rest)
			}
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}

// HoneLinkTypes returns the fixed link type listing of the Hone interface.
func HoneLinkTypes(supervised, machineReadable bool) string {
	switch {
	case supervised:
		return "0\n0\tNULL\tNULL\n"
	case machineReadable:
		return "Capturing on Hone\n0\n0\tPCAP-NG\tPCAP-NG\n"
	default:
		return "Capturing on Hone\nData link types of interface Hone:\n  PCAP-NG\n"
	}
}

// LinkTypes runs the original dumpcap for a non-Hone interface and relays
// what it printed, standard error first.
func (r *Runner) LinkTypes(ctx context.Context, args []string) error {
	out, errOut, err := r.output(ctx, args)
	if err != nil {
		return fmt.Errorf("cannot get interface link types from original dumpcap: %w", err)
	}
	if len(errOut) > 0 {
		if _, err := r.Stderr.Write(errOut); err != nil {
			return err
		}
	}
	if len(out) > 0 {
		if _, err := r.Stdout.Write(out); err != nil {
			return err
		}
	}
	return nil
}
