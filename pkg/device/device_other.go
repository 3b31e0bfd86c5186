// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

//go:build !linux

package device

// Open always fails: the driver is only available on Linux.
func Open(path string) (Device, error) {
	return nil, ErrUnsupported
}
