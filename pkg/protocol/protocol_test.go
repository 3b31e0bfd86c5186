// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package protocol

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketCountFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).PacketCount(42))

	assert.Equal(t, []byte{'P', 0, 0, 3, '4', '2', 0}, buf.Bytes())

	msg, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, byte(MsgPacketCount), msg.Header.Tag)
	assert.Equal(t, uint32(3), msg.Header.Length)

	n, err := msg.PacketCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), n)
}

func TestFileFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).File("/tmp/a.pcapng"))

	msg, n, err := ParseMessage(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, buf.Len(), n)
	assert.Equal(t, byte(MsgFile), msg.Header.Tag)
	assert.Equal(t, "/tmp/a.pcapng", msg.Text())
	assert.Equal(t, uint32(len("/tmp/a.pcapng")+1), msg.Header.Length)
}

func TestSuccessFrameHasNoPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Success())
	assert.Equal(t, []byte{'S', 0, 0, 0}, buf.Bytes())
}

func TestErrorFrameNesting(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Error("boom"))

	want := []byte{
		'E', 0, 0, 14,
		'E', 0, 0, 5, 'b', 'o', 'o', 'm', 0,
		'E', 0, 0, 1, 0,
	}
	assert.Equal(t, want, buf.Bytes())

	msg, err := ReadMessage(&buf)
	require.NoError(t, err)
	text, err := msg.ErrorText()
	require.NoError(t, err)
	assert.Equal(t, "boom", text)
}

func TestErrorFrameEmptyMessageIsWellFormed(t *testing.T) {
	frame := AppendError(nil, "")
	msg, n, err := ParseMessage(frame)
	require.NoError(t, err)
	assert.Equal(t, len(frame), n)

	text, err := msg.ErrorText()
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestFrameLengthIsBigEndian(t *testing.T) {
	frame := AppendFrame(nil, MsgFile, strings.Repeat("x", 0x1234))
	assert.Equal(t, []byte{'F', 0x00, 0x12, 0x35}, frame[:HeaderSize])
}

func TestOversizedPayloadIsTruncated(t *testing.T) {
	frame := AppendFrame(nil, MsgFile, strings.Repeat("x", MaxPayload+10))
	hdr, err := ParseHeader(frame)
	require.NoError(t, err)
	assert.Equal(t, uint32(MaxPayload), hdr.Length)
	assert.Len(t, frame, HeaderSize+MaxPayload)
}

func TestSequentialFrames(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.File("f1"))
	require.NoError(t, enc.PacketCount(7))
	require.NoError(t, enc.PacketCount(0))

	var tags []byte
	for {
		msg, err := ReadMessage(&buf)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		tags = append(tags, msg.Header.Tag)
	}
	assert.Equal(t, []byte{'F', 'P', 'P'}, tags)
}

func TestParseErrors(t *testing.T) {
	_, err := ParseHeader([]byte{'P', 0})
	assert.Error(t, err)

	_, _, err = ParseMessage([]byte{'P', 0, 0, 9, '1'})
	assert.Error(t, err)

	_, err = ReadMessage(bytes.NewReader([]byte{'P', 0, 0, 9, '1'}))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	msg := &Message{Header: Header{Tag: MsgFile}}
	_, err = msg.PacketCount()
	assert.Error(t, err)
	_, err = msg.ErrorText()
	assert.Error(t, err)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestEncoderWriteError(t *testing.T) {
	err := NewEncoder(failingWriter{}).PacketCount(1)
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	assert.Contains(t, err.Error(), "PACKET_COUNT")
}

func TestMsgTypeName(t *testing.T) {
	assert.Equal(t, "ERROR", MsgTypeName(MsgError))
	assert.Equal(t, "FILE", MsgTypeName(MsgFile))
	assert.Equal(t, "PACKET_COUNT", MsgTypeName(MsgPacketCount))
	assert.Equal(t, "SUCCESS", MsgTypeName(MsgSuccess))
	assert.Equal(t, "UNKNOWN(1)", MsgTypeName(1))
}
