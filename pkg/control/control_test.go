// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package control

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestParseCommand(t *testing.T) {
	c, err := ParseCommand(" rotate\n")
	require.NoError(t, err)
	assert.Equal(t, Rotate, c)

	c, err = ParseCommand("stop")
	require.NoError(t, err)
	assert.Equal(t, Stop, c)

	_, err = ParseCommand("reboot")
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestControlFileSendTake(t *testing.T) {
	dir := t.TempDir()
	server, err := CreateControlFile(dir)
	require.NoError(t, err)
	defer server.Close()

	client, err := OpenControlFile(dir)
	require.NoError(t, err)
	defer client.Close()

	cmd, err := server.Take()
	require.NoError(t, err)
	assert.Empty(t, cmd)

	require.NoError(t, client.Send(Rotate))
	cmd, err = server.Take()
	require.NoError(t, err)
	assert.Equal(t, Rotate, cmd)

	// Taking clears the file.
	cmd, err = server.Take()
	require.NoError(t, err)
	assert.Empty(t, cmd)

	assert.ErrorIs(t, client.Send("bogus"), ErrUnknownCommand)
}

func TestCreateControlFileClearsStaleCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(Path(dir), []byte("stop\n"), 0o644))

	f, err := CreateControlFile(dir)
	require.NoError(t, err)
	defer f.Close()

	cmd, err := f.Take()
	require.NoError(t, err)
	assert.Empty(t, cmd)

	info, err := os.Stat(f.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0666), info.Mode().Perm())
}

func TestOpenControlFileMissing(t *testing.T) {
	_, err := OpenControlFile(t.TempDir())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

type countingHandler struct {
	rotates atomic.Int32
	stops   atomic.Int32
}

func (h *countingHandler) RequestRotate() { h.rotates.Add(1) }
func (h *countingHandler) RequestStop()   { h.stops.Add(1) }

func TestWatcherDispatchesCommands(t *testing.T) {
	dir := t.TempDir()
	h := &countingHandler{}

	w, err := NewWatcher(dir, h, zaptest.NewLogger(t))
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	client, err := OpenControlFile(dir)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Send(Rotate))
	require.Eventually(t, func() bool { return h.rotates.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, client.Send(Stop))
	require.Eventually(t, func() bool { return h.stops.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, int32(1), h.rotates.Load())
}

func TestWatcherIgnoresOtherFilesAndGarbage(t *testing.T) {
	dir := t.TempDir()
	h := &countingHandler{}

	w, err := NewWatcher(dir, h, zaptest.NewLogger(t))
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(dir+"/other", []byte("stop\n"), 0o644))
	require.NoError(t, os.WriteFile(w.Path(), []byte("explode\n"), 0o644))

	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, h.stops.Load())
	assert.Zero(t, h.rotates.Load())
}

func TestWatcherStopRemovesFile(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, &countingHandler{}, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	w.Stop()
	w.Stop()

	_, err = os.Stat(Path(dir))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
