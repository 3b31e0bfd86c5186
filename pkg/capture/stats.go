// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package capture

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap/zapcore"
)

// Stats tracks session counters. Fields are atomics so a snapshot can be
// taken from a signal handler goroutine while the loop runs.
type Stats struct {
	startTime time.Time

	Reads        atomic.Int64
	BytesWritten atomic.Int64
	Records      atomic.Int64
	FilesOpened  atomic.Int64
	Rotations    atomic.Int64
	IdleWaits    atomic.Int64
	AtHeadPolls  atomic.Int64
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{
		startTime: time.Now(),
	}
}

// Uptime returns time since the session was created.
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	State         State
	UptimeSeconds float64
	Reads         int64
	BytesWritten  int64
	Records       int64
	FilesOpened   int64
	Rotations     int64
	IdleWaits     int64
	AtHeadPolls   int64
}

// Snapshot returns current stats.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		UptimeSeconds: s.Uptime().Seconds(),
		Reads:         s.Reads.Load(),
		BytesWritten:  s.BytesWritten.Load(),
		Records:       s.Records.Load(),
		FilesOpened:   s.FilesOpened.Load(),
		Rotations:     s.Rotations.Load(),
		IdleWaits:     s.IdleWaits.Load(),
		AtHeadPolls:   s.AtHeadPolls.Load(),
	}
}

// MarshalLogObject renders the snapshot as a single zap field.
func (s Snapshot) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("state", s.State.String())
	enc.AddFloat64("uptime_seconds", s.UptimeSeconds)
	enc.AddInt64("reads", s.Reads)
	enc.AddInt64("bytes_written", s.BytesWritten)
	enc.AddInt64("records", s.Records)
	enc.AddInt64("files_opened", s.FilesOpened)
	enc.AddInt64("rotations", s.Rotations)
	enc.AddInt64("idle_waits", s.IdleWaits)
	enc.AddInt64("at_head_polls", s.AtHeadPolls)
	return nil
}
