// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

//go:build linux

package device

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Driver ioctl requests: _IO(0xE0, n), _IOR(0xE0, n, int) and _IOW(0xE0, n, int).
const (
	ioctlRestart      = 0xE001
	ioctlGetAtHead    = 0xE003
	ioctlGetSnapLen   = 0x8004E004
	ioctlSetSnapLen   = 0x4004E005
	ioctlGetRingPages = 0x8004E006
	ioctlSetRingPages = 0x4004E007
)

// charDevice is a Device backed by a file descriptor opened non-blocking.
// A self-pipe lets Wake interrupt poll. mu keeps Wake from writing to a
// descriptor that Close has released.
type charDevice struct {
	path  string
	fd    int
	wakeR int
	wakeW int

	mu     sync.Mutex
	closed bool
}

// Open opens the device at path for non-blocking reads.
func Open(path string) (Device, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open driver %s: %w", path, err)
	}

	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("create wake pipe: %w", err)
	}

	return &charDevice{path: path, fd: fd, wakeR: p[0], wakeW: p[1]}, nil
}

func (d *charDevice) Read(p []byte) (int, error) {
	n, err := unix.Read(d.fd, p)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("read %d bytes from %s: %w", len(p), d.path, err)
	}
	return n, nil
}

func (d *charDevice) MarkRestart() error {
	if _, err := unix.IoctlRetInt(d.fd, ioctlRestart); err != nil {
		return fmt.Errorf("send log restart ioctl to %s: %w", d.path, err)
	}
	return nil
}

func (d *charDevice) AtHead() (bool, error) {
	ret, err := unix.IoctlRetInt(d.fd, ioctlGetAtHead)
	if err != nil {
		return false, fmt.Errorf("query at-head state of %s: %w", d.path, err)
	}
	return ret > 0, nil
}

func (d *charDevice) Wait(timeout time.Duration) error {
	fds := []unix.PollFd{
		{Fd: int32(d.fd), Events: unix.POLLIN},
		{Fd: int32(d.wakeR), Events: unix.POLLIN},
	}
	_, err := unix.Poll(fds, int(timeout/time.Millisecond))
	if err != nil && err != unix.EINTR {
		return fmt.Errorf("check for data from %s: %w", d.path, err)
	}
	if fds[1].Revents&unix.POLLIN != 0 {
		d.drainWake()
	}
	return nil
}

func (d *charDevice) drainWake() {
	var buf [64]byte
	for {
		n, err := unix.Read(d.wakeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (d *charDevice) Wake() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	// A full pipe already guarantees a wakeup, so EAGAIN is ignored.
	unix.Write(d.wakeW, []byte{1})
}

func (d *charDevice) SetSnapLen(n int) error {
	if err := unix.IoctlSetPointerInt(d.fd, ioctlSetSnapLen, n); err != nil {
		return fmt.Errorf("set snap length %d on %s: %w", n, d.path, err)
	}
	return nil
}

// SnapLen returns the snap length currently configured in the driver.
func (d *charDevice) SnapLen() (int, error) {
	n, err := unix.IoctlGetInt(d.fd, ioctlGetSnapLen)
	if err != nil {
		return 0, fmt.Errorf("get snap length of %s: %w", d.path, err)
	}
	return n, nil
}

func (d *charDevice) SetRingPages(n int) error {
	if err := unix.IoctlSetPointerInt(d.fd, ioctlSetRingPages, n); err != nil {
		return fmt.Errorf("set ring pages %d on %s: %w", n, d.path, err)
	}
	return nil
}

// RingPages returns the driver's ring buffer size in pages.
func (d *charDevice) RingPages() (int, error) {
	n, err := unix.IoctlGetInt(d.fd, ioctlGetRingPages)
	if err != nil {
		return 0, fmt.Errorf("get ring pages of %s: %w", d.path, err)
	}
	return n, nil
}

func (d *charDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	unix.Close(d.wakeR)
	unix.Close(d.wakeW)
	if err := unix.Close(d.fd); err != nil {
		return fmt.Errorf("close %s: %w", d.path, err)
	}
	return nil
}
