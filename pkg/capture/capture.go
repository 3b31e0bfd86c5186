// Copyright 2024-2026 Madhukar Beema. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package capture

import (
	"sync/atomic"
	"time"

	"github.com/mbeema/honedumpcap/pkg/device"
	"github.com/mbeema/honedumpcap/pkg/policy"
	"github.com/mbeema/honedumpcap/pkg/reassembly"
	"github.com/mbeema/honedumpcap/pkg/status"
	"go.uber.org/zap"
)

// DefaultBufferSize matches the chunk size the Linux driver hands out.
const DefaultBufferSize = 8192

// DefaultWaitInterval bounds how long an idle session blocks on the device.
const DefaultWaitInterval = 500 * time.Millisecond

// InterfaceName is the synthetic interface the session captures on.
const InterfaceName = "Hone"

// State is the capture lifecycle stage.
type State int32

const (
	// StateNormal drains the device into the current file.
	StateNormal State = iota
	// StateRotate drains the device until it is at head, then opens a new file.
	StateRotate
	// StateCleanUp drains the device until it is at head, then finishes.
	StateCleanUp
	// StateDone is terminal.
	StateDone
)

func (s State) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateRotate:
		return "rotate"
	case StateCleanUp:
		return "cleanup"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Files is the output side of a session.
type Files interface {
	Open() (string, error)
	Write(p []byte) error
	Close() error
	CanRotate() bool
	Opened() uint32
	Written() uint64
}

// Config holds what a session needs to run.
type Config struct {
	Device     device.Device
	Files      Files
	Thresholds policy.Thresholds
	Reporter   status.Reporter
	Logger     *zap.Logger

	// Counter defaults to native byte order block counting.
	Counter *reassembly.Counter
	// BufferSize is the size of a single device read.
	BufferSize int
	// WaitInterval bounds an idle wait on the device.
	WaitInterval time.Duration
	// Now overrides the clock used for elapsed-time thresholds.
	Now func() time.Time
}

// requests carries stop and rotate intents from policy evaluation, signal
// handlers and watchers to the capture loop. Setters only flip flags.
type requests struct {
	stop   atomic.Bool
	rotate atomic.Bool
}
