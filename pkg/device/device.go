// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package device

import (
	"errors"
	"time"
)

// DefaultPath is the character device exposed by the hone driver.
const DefaultPath = "/dev/hone"

// ErrUnsupported is returned by Open on platforms without a device driver.
var ErrUnsupported = errors.New("hone device is not supported on this platform")

// Device is the capture driver as seen by the capture loop.
//
// Read never blocks: "would block" and "interrupted" are reported as zero
// bytes with a nil error. Any other failure is fatal.
type Device interface {
	Read(p []byte) (int, error)

	// MarkRestart delimits data read before and after the call so the
	// following bytes belong to a new output file.
	MarkRestart() error

	// AtHead reports whether every byte signaled so far has been read.
	AtHead() (bool, error)

	// Wait blocks until the device is readable, Wake is called, or the
	// timeout elapses, whichever comes first.
	Wait(timeout time.Duration) error

	// Wake interrupts a pending Wait. Safe to call from any goroutine.
	Wake()

	// SetSnapLen sets the maximum bytes captured per packet.
	SetSnapLen(n int) error

	// SetRingPages sets the size of the driver's ring buffer in pages.
	SetRingPages(n int) error

	// SnapLen and RingPages read back the values the driver applied.
	SnapLen() (int, error)
	RingPages() (int, error)

	Close() error
}
