// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package reassembly

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the size of the generic pcapng block header: block type
	// followed by block total length.
	HeaderSize = 8

	// lengthOffset is where the total length field starts within the header.
	lengthOffset = 4
)

// ErrCorruptBlock is returned when a block header announces a total length
// smaller than the header itself. Scanning past such a block is impossible.
var ErrCorruptBlock = errors.New("corrupt block length")

// Counter counts complete container blocks in a stream that arrives in
// arbitrarily sized chunks. Blocks may straddle chunk boundaries anywhere,
// including inside the header; the carry state bridges consecutive calls so
// every block is counted exactly once, in the call that sees its last byte.
//
// A Counter is not safe for concurrent use.
type Counter struct {
	order binary.ByteOrder

	// carry is the number of bytes of the pending block still to come.
	carry uint64

	// header holds the leading bytes of a header split across chunks.
	header    [HeaderSize]byte
	headerLen int
}

// NewCounter creates a Counter reading length fields in the given byte order.
// A nil order means the host's native order, which is what the capture device
// emits.
func NewCounter(order binary.ByteOrder) *Counter {
	if order == nil {
		order = binary.NativeEndian
	}
	return &Counter{order: order}
}

// Count returns the number of blocks whose final byte lies within buf and
// updates the carry state for a block continuing into the next chunk.
func (c *Counter) Count(buf []byte) (int, error) {
	n := uint64(len(buf))
	if n == 0 {
		return 0, nil
	}

	var off uint64
	switch {
	case c.headerLen > 0:
		need := HeaderSize - c.headerLen
		if len(buf) < need {
			c.headerLen += copy(c.header[c.headerLen:], buf)
			return 0, nil
		}
		copy(c.header[c.headerLen:], buf[:need])
		length := uint64(c.order.Uint32(c.header[lengthOffset:]))
		if length < HeaderSize {
			return 0, fmt.Errorf("split header: %w: %d", ErrCorruptBlock, length)
		}
		// The previous chunk supplied headerLen bytes of this block.
		off = length - uint64(c.headerLen)
		c.headerLen = 0
	case c.carry > 0:
		off = c.carry
		c.carry = 0
	}

	if off > n {
		c.carry = off - n
		return 0, nil
	}

	count := 0
	if off > 0 {
		count++
	}

	for n-off >= HeaderSize {
		length := uint64(c.order.Uint32(buf[off+lengthOffset:]))
		if length < HeaderSize {
			return count, fmt.Errorf("offset %d: %w: %d", off, ErrCorruptBlock, length)
		}
		if off+length > n {
			c.carry = length - (n - off)
			return count, nil
		}
		count++
		off += length
	}

	if off < n {
		c.headerLen = copy(c.header[:], buf[off:])
	}
	return count, nil
}

// Aligned reports whether the next chunk is expected to start on a block
// boundary.
func (c *Counter) Aligned() bool {
	return c.carry == 0 && c.headerLen == 0
}

// CarryOffset returns how many bytes of a pending block must be skipped at
// the start of the next chunk.
func (c *Counter) CarryOffset() uint64 {
	return c.carry
}

// NeedsHeaderBytes reports whether the previous chunk ended inside a block
// header, so the next chunk begins with the rest of that header.
func (c *Counter) NeedsHeaderBytes() bool {
	return c.headerLen > 0
}

// Reset discards all carry state. The capture session calls it when a
// rotation starts the stream over on a fresh block boundary.
func (c *Counter) Reset() {
	c.carry = 0
	c.headerLen = 0
}
