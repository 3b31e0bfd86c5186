// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package protocol

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// Command tags understood by the supervising capture process.
const (
	MsgError       = 'E'
	MsgFile        = 'F'
	MsgPacketCount = 'P'
	MsgSuccess     = 'S'
)

// HeaderSize is the fixed size of a frame header: tag plus 24-bit length.
const HeaderSize = 4

// MaxPayload is the largest payload the 24-bit length can describe.
const MaxPayload = 1<<24 - 1

// secondaryError is the secondary message carried by every error frame.
var secondaryError = []byte{0}

// Header is a decoded frame header.
type Header struct {
	Tag    byte
	Length uint32
}

// Message is a frame with its payload.
type Message struct {
	Header  Header
	Payload []byte
}

// MsgTypeName returns a human-readable name for a command tag.
func MsgTypeName(t byte) string {
	switch t {
	case MsgError:
		return "ERROR"
	case MsgFile:
		return "FILE"
	case MsgPacketCount:
		return "PACKET_COUNT"
	case MsgSuccess:
		return "SUCCESS"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", t)
	}
}

// AppendHeader appends a frame header to b.
func AppendHeader(b []byte, tag byte, length int) []byte {
	return append(b, tag, byte(length>>16), byte(length>>8), byte(length))
}

// AppendFrame appends a tag/length/value frame. A non-empty text payload is
// NUL terminated and the terminator counts towards the length; an empty
// payload produces a bare header with zero length.
func AppendFrame(b []byte, tag byte, text string) []byte {
	if text == "" {
		return AppendHeader(b, tag, 0)
	}
	text = truncate(text, MaxPayload-1)
	b = AppendHeader(b, tag, len(text)+1)
	b = append(b, text...)
	return append(b, 0)
}

// AppendError appends an error frame. Its payload is two nested frames: the
// primary message and a one byte secondary message.
func AppendError(b []byte, text string) []byte {
	text = truncate(text, MaxPayload-2*HeaderSize-len(secondaryError)-1)
	primary := len(text) + 1
	b = AppendHeader(b, MsgError, HeaderSize+primary+HeaderSize+len(secondaryError))
	b = AppendHeader(b, MsgError, primary)
	b = append(b, text...)
	b = append(b, 0)
	b = AppendHeader(b, MsgError, len(secondaryError))
	return append(b, secondaryError...)
}

// Encoder writes frames to the side channel read by the parent.
type Encoder struct {
	w   io.Writer
	buf []byte
}

// NewEncoder creates an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// PacketCount reports the number of records written since the last report.
func (e *Encoder) PacketCount(delta uint64) error {
	return e.write(AppendFrame(e.buf[:0], MsgPacketCount, strconv.FormatUint(delta, 10)))
}

// File reports a newly opened output file.
func (e *Encoder) File(path string) error {
	return e.write(AppendFrame(e.buf[:0], MsgFile, path))
}

// Success marks the start of a listing written to stdout.
func (e *Encoder) Success() error {
	return e.write(AppendFrame(e.buf[:0], MsgSuccess, ""))
}

// Error reports a failure message.
func (e *Encoder) Error(msg string) error {
	return e.write(AppendError(e.buf[:0], msg))
}

// write sends a whole frame with a single call so frames never interleave
// with other writers of the same stream.
func (e *Encoder) write(frame []byte) error {
	e.buf = frame
	if _, err := e.w.Write(frame); err != nil {
		return fmt.Errorf("write %s frame: %w", MsgTypeName(frame[0]), err)
	}
	return nil
}

// ParseHeader decodes a 4-byte frame header.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("buffer too small: %d < %d", len(buf), HeaderSize)
	}
	return Header{
		Tag:    buf[0],
		Length: uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3]),
	}, nil
}

// ParseMessage decodes one frame from the start of buf and returns the
// number of bytes it occupied.
func ParseMessage(buf []byte) (*Message, int, error) {
	hdr, err := ParseHeader(buf)
	if err != nil {
		return nil, 0, err
	}
	end := HeaderSize + int(hdr.Length)
	if len(buf) < end {
		return nil, 0, fmt.Errorf("payload truncated: have %d, need %d", len(buf)-HeaderSize, hdr.Length)
	}
	msg := &Message{Header: hdr}
	if hdr.Length > 0 {
		msg.Payload = make([]byte, hdr.Length)
		copy(msg.Payload, buf[HeaderSize:end])
	}
	return msg, end, nil
}

// ReadMessage reads one frame from r.
func ReadMessage(r io.Reader) (*Message, error) {
	var hdrBuf [HeaderSize]byte
	if _, err := io.ReadFull(r, hdrBuf[:]); err != nil {
		return nil, err
	}
	hdr, _ := ParseHeader(hdrBuf[:])
	msg := &Message{Header: hdr}
	if hdr.Length > 0 {
		msg.Payload = make([]byte, hdr.Length)
		if _, err := io.ReadFull(r, msg.Payload); err != nil {
			return nil, fmt.Errorf("read %s payload: %w", MsgTypeName(hdr.Tag), err)
		}
	}
	return msg, nil
}

// Text returns the payload without its NUL terminator.
func (m *Message) Text() string {
	return string(bytes.TrimSuffix(m.Payload, []byte{0}))
}

// PacketCount decodes the delta carried by a packet count frame.
func (m *Message) PacketCount() (uint64, error) {
	if m.Header.Tag != MsgPacketCount {
		return 0, fmt.Errorf("not a packet count frame: %s", MsgTypeName(m.Header.Tag))
	}
	return strconv.ParseUint(m.Text(), 10, 64)
}

// ErrorText decodes the primary message carried by an error frame.
func (m *Message) ErrorText() (string, error) {
	if m.Header.Tag != MsgError {
		return "", fmt.Errorf("not an error frame: %s", MsgTypeName(m.Header.Tag))
	}
	primary, _, err := ParseMessage(m.Payload)
	if err != nil {
		return "", fmt.Errorf("primary error message: %w", err)
	}
	return primary.Text(), nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
