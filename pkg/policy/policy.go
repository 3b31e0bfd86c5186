// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Package policy decides when a capture stops or moves to a new output file.
package policy

import (
	"time"

	"go.uber.org/zap/zapcore"
)

// Decision is the outcome of evaluating thresholds after a write.
type Decision int

const (
	// Continue keeps writing to the current file.
	Continue Decision = iota
	// Rotate asks for a new output file.
	Rotate
	// Stop asks for the capture to end.
	Stop
)

func (d Decision) String() string {
	switch d {
	case Continue:
		return "continue"
	case Rotate:
		return "rotate"
	case Stop:
		return "stop"
	default:
		return "unknown"
	}
}

// AutoStop holds the thresholds that end a capture. Zero disables a field.
type AutoStop struct {
	Files    uint32
	Bytes    uint64
	Packets  uint64
	Duration time.Duration
}

// AutoRotate holds the thresholds that start a new output file. Zero
// disables a field.
type AutoRotate struct {
	Bytes    uint64
	Duration time.Duration
}

// Thresholds combines stop and rotate conditions.
type Thresholds struct {
	Stop   AutoStop
	Rotate AutoRotate
}

// Usage is the capture progress the thresholds are compared against.
type Usage struct {
	FilesOpened uint32
	FileBytes   uint64
	Packets     uint64
	Elapsed     time.Duration
}

// Evaluate compares usage against the thresholds. Stop conditions take
// precedence over rotate conditions.
func (t Thresholds) Evaluate(u Usage) Decision {
	if t.shouldStop(u) {
		return Stop
	}
	if t.shouldRotate(u) {
		return Rotate
	}
	return Continue
}

func (t Thresholds) shouldStop(u Usage) bool {
	s := t.Stop
	return (s.Files > 0 && u.FilesOpened >= s.Files) ||
		(s.Bytes > 0 && u.FileBytes >= s.Bytes) ||
		(s.Packets > 0 && u.Packets >= s.Packets) ||
		(s.Duration > 0 && u.Elapsed >= s.Duration)
}

func (t Thresholds) shouldRotate(u Usage) bool {
	r := t.Rotate
	return (r.Bytes > 0 && u.FileBytes >= r.Bytes) ||
		(r.Duration > 0 && u.Elapsed >= r.Duration)
}

// Enabled reports whether any threshold is set.
func (t Thresholds) Enabled() bool {
	return t.Stop != (AutoStop{}) || t.Rotate != (AutoRotate{})
}

// MarshalLogObject lets thresholds be logged as a single zap field.
func (t Thresholds) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint32("stop_files", t.Stop.Files)
	enc.AddUint64("stop_bytes", t.Stop.Bytes)
	enc.AddUint64("stop_packets", t.Stop.Packets)
	enc.AddDuration("stop_duration", t.Stop.Duration)
	enc.AddUint64("rotate_bytes", t.Rotate.Bytes)
	enc.AddDuration("rotate_duration", t.Rotate.Duration)
	return nil
}
