// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package capture

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mbeema/honedumpcap/pkg/device"
	"github.com/mbeema/honedumpcap/pkg/policy"
	"github.com/mbeema/honedumpcap/pkg/reassembly"
	"github.com/mbeema/honedumpcap/pkg/status"
	"go.uber.org/zap"
)

// Session drains the capture device into output files. It owns the device
// and the active file exclusively; only RequestStop, RequestRotate and
// Snapshot may be called from other goroutines.
type Session struct {
	dev        device.Device
	files      Files
	counter    *reassembly.Counter
	thresholds policy.Thresholds
	reporter   status.Reporter
	logger     *zap.Logger
	stats      *Stats
	now        func() time.Time

	buf          []byte
	waitInterval time.Duration

	state   atomic.Int32
	req     requests
	start   time.Time
	packets uint64
	closed  bool
}

// New creates a session. The first output file is opened by Open.
func New(cfg Config) *Session {
	if cfg.Counter == nil {
		cfg.Counter = reassembly.NewCounter(nil)
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.WaitInterval <= 0 {
		cfg.WaitInterval = DefaultWaitInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Session{
		dev:          cfg.Device,
		files:        cfg.Files,
		counter:      cfg.Counter,
		thresholds:   cfg.Thresholds,
		reporter:     cfg.Reporter,
		logger:       cfg.Logger,
		stats:        NewStats(),
		now:          cfg.Now,
		buf:          make([]byte, cfg.BufferSize),
		waitInterval: cfg.WaitInterval,
	}
}

// Open starts the capture clock and opens the first output file.
func (s *Session) Open() error {
	s.start = s.now()
	s.reporter.Started(InterfaceName)
	s.logger.Info("capture started",
		zap.String("interface", InterfaceName),
		zap.Object("thresholds", s.thresholds),
	)
	return s.openFile()
}

// Run steps the session until it is done or fails, then releases the device
// and the output file. Cancelling ctx requests a stop; the session still
// drains the device before finishing.
func (s *Session) Run(ctx context.Context) (err error) {
	defer func() {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}()

	stop := context.AfterFunc(ctx, s.RequestStop)
	defer stop()

	for s.State() != StateDone {
		if err := s.Step(); err != nil {
			return err
		}
	}
	s.logger.Info("capture finished", zap.Object("stats", s.Snapshot()))
	return nil
}

// Step runs one loop iteration: act on pending requests, attempt one read,
// and run the idle handling of the current state when nothing was read.
func (s *Session) Step() error {
	state := s.State()
	if state == StateDone {
		return nil
	}

	if state != StateCleanUp && s.req.stop.Swap(false) {
		if err := s.dev.MarkRestart(); err != nil {
			return err
		}
		state = s.setState(StateCleanUp)
	}
	if state == StateNormal && s.req.rotate.Swap(false) {
		if s.files.CanRotate() {
			if err := s.dev.MarkRestart(); err != nil {
				return err
			}
			state = s.setState(StateRotate)
		} else {
			s.logger.Warn("rotation requested but output file is fixed; ignoring")
		}
	}

	n, err := s.dev.Read(s.buf)
	if err != nil {
		return err
	}
	s.stats.Reads.Add(1)
	if n > 0 {
		return s.consume(s.buf[:n])
	}

	switch state {
	case StateNormal:
		s.stats.IdleWaits.Add(1)
		return s.dev.Wait(s.waitInterval)
	case StateRotate:
		atHead, err := s.atHead()
		if err != nil || !atHead {
			return err
		}
		// The device restarts the stream on a block boundary, so a partial
		// block still pending never completes.
		if !s.counter.Aligned() {
			s.logger.Warn("rotating with a partial block pending",
				zap.Uint64("carry_offset", s.counter.CarryOffset()),
				zap.Bool("split_header", s.counter.NeedsHeaderBytes()),
			)
			s.counter.Reset()
		}
		if err := s.openFile(); err != nil {
			return err
		}
		// A threshold crossed while draining belongs to the file just closed.
		s.req.rotate.Store(false)
		s.stats.Rotations.Add(1)
		s.setState(StateNormal)
	case StateCleanUp:
		atHead, err := s.atHead()
		if err != nil || !atHead {
			return err
		}
		s.setState(StateDone)
	}
	return nil
}

func (s *Session) consume(data []byte) error {
	count, err := s.counter.Count(data)
	if err != nil {
		return fmt.Errorf("count records: %w", err)
	}
	if err := s.files.Write(data); err != nil {
		return err
	}

	s.packets += uint64(count)
	s.stats.BytesWritten.Add(int64(len(data)))
	s.stats.Records.Add(int64(count))
	s.reporter.Packets(uint64(count), s.packets)

	switch s.thresholds.Evaluate(s.usage()) {
	case policy.Stop:
		s.req.stop.Store(true)
	case policy.Rotate:
		s.req.rotate.Store(true)
	}
	return nil
}

func (s *Session) usage() policy.Usage {
	return policy.Usage{
		FilesOpened: s.files.Opened(),
		FileBytes:   s.files.Written(),
		Packets:     s.packets,
		Elapsed:     s.now().Sub(s.start),
	}
}

func (s *Session) atHead() (bool, error) {
	s.stats.AtHeadPolls.Add(1)
	return s.dev.AtHead()
}

func (s *Session) openFile() error {
	name, err := s.files.Open()
	if err != nil {
		return err
	}
	s.stats.FilesOpened.Add(1)
	s.reporter.FileOpened(name)
	return nil
}

func (s *Session) setState(next State) State {
	prev := State(s.state.Swap(int32(next)))
	s.logger.Debug("capture state changed",
		zap.Stringer("from", prev),
		zap.Stringer("to", next),
	)
	return next
}

// State returns the current lifecycle stage.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Packets returns the number of records written so far.
func (s *Session) Packets() uint64 {
	return s.packets
}

// RequestStop asks the loop to finish after draining the device.
func (s *Session) RequestStop() {
	s.req.stop.Store(true)
	s.dev.Wake()
}

// RequestRotate asks the loop to move to a new output file.
func (s *Session) RequestRotate() {
	s.req.rotate.Store(true)
	s.dev.Wake()
}

// Snapshot returns the session counters.
func (s *Session) Snapshot() Snapshot {
	snap := s.stats.Snapshot()
	snap.State = s.State()
	return snap
}

// Close releases the output file and the device.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	ferr := s.files.Close()
	derr := s.dev.Close()
	if ferr != nil {
		return ferr
	}
	return derr
}
