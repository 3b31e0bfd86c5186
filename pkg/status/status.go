// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Package status reports capture progress either to a supervising parent
// process, as binary frames, or to a terminal as text.
package status

import (
	"fmt"
	"io"
	"sync"

	"github.com/mbeema/honedumpcap/pkg/protocol"
)

// Reporter receives externally visible capture events.
type Reporter interface {
	// Started announces that capturing began on the named interface.
	Started(iface string)
	// FileOpened announces a new output file.
	FileOpened(path string)
	// Packets reports the records written by one write and the running total.
	Packets(delta, total uint64)
	// Error reports a failure.
	Error(msg string)
	// ListStart precedes a listing printed to standard output.
	ListStart()
}

// New returns the framed reporter when running under a supervising parent
// and the console reporter otherwise.
func New(supervised bool, stdout, stderr io.Writer) Reporter {
	if supervised {
		return NewFrameReporter(stderr)
	}
	return NewConsoleReporter(stdout, stderr)
}

// FrameReporter encodes events with the parent protocol.
type FrameReporter struct {
	mu  sync.Mutex
	enc *protocol.Encoder
}

// NewFrameReporter creates a reporter writing frames to w.
func NewFrameReporter(w io.Writer) *FrameReporter {
	return &FrameReporter{enc: protocol.NewEncoder(w)}
}

// Started is silent: the parent learns about the capture from the file frame.
func (r *FrameReporter) Started(string) {}

func (r *FrameReporter) FileOpened(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.enc.File(path)
}

func (r *FrameReporter) Packets(delta, _ uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.enc.PacketCount(delta)
}

func (r *FrameReporter) Error(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.enc.Error(msg)
}

func (r *FrameReporter) ListStart() {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.enc.Success()
}

// ConsoleReporter prints events as text. The packet total is rewritten in
// place with a carriage return; the next full-line message first ends that
// line.
type ConsoleReporter struct {
	mu      sync.Mutex
	out     io.Writer
	errOut  io.Writer
	midLine bool
}

// NewConsoleReporter creates a reporter printing progress to out and errors
// to errOut.
func NewConsoleReporter(out, errOut io.Writer) *ConsoleReporter {
	return &ConsoleReporter{out: out, errOut: errOut}
}

func (r *ConsoleReporter) Started(iface string) {
	r.line(r.out, fmt.Sprintf("Capturing on '%s'", iface))
}

func (r *ConsoleReporter) FileOpened(path string) {
	r.line(r.out, "File: "+path)
}

func (r *ConsoleReporter) Packets(_, total uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "\rPackets: %d", total)
	r.midLine = true
}

func (r *ConsoleReporter) Error(msg string) {
	r.line(r.errOut, msg)
}

// ListStart is a no-op: a terminal needs no marker before a listing.
func (r *ConsoleReporter) ListStart() {}

func (r *ConsoleReporter) line(w io.Writer, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.midLine {
		io.WriteString(r.out, "\n")
		r.midLine = false
	}
	io.WriteString(w, msg+"\n")
}
