// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package passthrough

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeDumpcap writes an executable shell script standing in for the
// original dumpcap.
func fakeDumpcap(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), OriginalName)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func newRunner(t *testing.T, path string) (*Runner, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return &Runner{
		Path:   path,
		Stdout: &out,
		Stderr: &errOut,
		Logger: zaptest.NewLogger(t),
	}, &out, &errOut
}

func TestRunRelaysOutputAndExitCode(t *testing.T) {
	r, out, errOut := newRunner(t, fakeDumpcap(t, `echo "args: $*"; echo oops >&2; exit 3`))

	code, err := r.Run(context.Background(), []string{"-i", "2", "-w", "x.pcapng"})
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Equal(t, "args: -i 2 -w x.pcapng\n", out.String())
	assert.Equal(t, "oops\n", errOut.String())
}

func TestRunSuccess(t *testing.T) {
	r, _, _ := newRunner(t, fakeDumpcap(t, "exit 0"))
	code, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, code)
}

func TestRunTerminatedOnCancel(t *testing.T) {
	r, _, _ := newRunner(t, fakeDumpcap(t, "exec sleep 30"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	code, err := r.Run(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, code)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRunMissingExecutable(t *testing.T) {
	r, _, _ := newRunner(t, filepath.Join(t.TempDir(), "missing"))
	code, err := r.Run(context.Background(), nil)
	assert.Error(t, err)
	assert.Equal(t, 1, code)
}

func TestSpliceInterfacesHuman(t *testing.T) {
	got, err := SpliceInterfaces(false,
		[]byte("1. eth0\r\n2. lo (Loopback)\n\n"),
		[]byte("3. any\n"),
	)
	require.NoError(t, err)
	assert.Equal(t, "1. Hone (Hone capture pseudo-interface)\n"+
		"2. eth0\n"+
		"3. lo (Loopback)\n"+
		"4. any\n", got)
}

func TestSpliceInterfacesMachine(t *testing.T) {
	got, err := SpliceInterfaces(true, []byte("1. eth0\t\t\t0\t\tnetwork\n"))
	require.NoError(t, err)
	assert.Equal(t, "1. Hone\t\tHone capture pseudo-interface\t0\t\tnetwork\n"+
		"2. eth0\t\t\t0\t\tnetwork\n", got)
}

func TestSpliceInterfacesRejectsGarbage(t *testing.T) {
	_, err := SpliceInterfaces(false, []byte("1. eth0\nwarning: something\n"))
	assert.ErrorContains(t, err, "invalid interface 'warning: something'")
}

func TestListInterfaces(t *testing.T) {
	r, _, _ := newRunner(t, fakeDumpcap(t, `[ "$1" = "-D" ] || exit 9; [ "$2" = "-M" ] || exit 8; printf '1. eth0\n2. lo\n'`))

	got, err := r.ListInterfaces(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "1. Hone\t\tHone capture pseudo-interface\t0\t\tnetwork\n2. eth0\n3. lo\n", got)
}

func TestListInterfacesFailure(t *testing.T) {
	r, _, _ := newRunner(t, fakeDumpcap(t, "echo 'no permission' >&2; exit 2"))

	_, err := r.ListInterfaces(context.Background(), false)
	assert.ErrorContains(t, err, "error code 2")
	assert.ErrorContains(t, err, "no permission")
}

func TestHoneLinkTypes(t *testing.T) {
	assert.Equal(t, "0\n0\tNULL\tNULL\n", HoneLinkTypes(true, true))
	assert.Equal(t, "Capturing on Hone\n0\n0\tPCAP-NG\tPCAP-NG\n", HoneLinkTypes(false, true))
	assert.Equal(t, "Capturing on Hone\nData link types of interface Hone:\n  PCAP-NG\n", HoneLinkTypes(false, false))
}

func TestLinkTypesRelays(t *testing.T) {
	r, out, errOut := newRunner(t, fakeDumpcap(t, `echo "Capturing on $3" >&2; echo "1"; echo "1	EN10MB	Ethernet"`))

	require.NoError(t, r.LinkTypes(context.Background(), []string{"-L", "-i", "1"}))
	assert.Equal(t, "Capturing on 1\n", errOut.String())
	assert.Equal(t, "1\n1\tEN10MB\tEthernet\n", out.String())
}

func TestLinkTypesFailure(t *testing.T) {
	r, out, _ := newRunner(t, fakeDumpcap(t, "echo partial; exit 1"))

	err := r.LinkTypes(context.Background(), []string{"-L", "-i", "1"})
	assert.ErrorContains(t, err, "cannot get interface link types")
	assert.Empty(t, out.String())
}
