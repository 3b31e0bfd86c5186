// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Package parent watches the supervising process named by -Z so a capture
// does not outlive it.
package parent

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// DefaultPollInterval is how often the parent's existence is checked.
const DefaultPollInterval = time.Second

// Watcher polls for a process and reports when it is gone.
type Watcher struct {
	pid      int32
	interval time.Duration
	logger   *zap.Logger

	// exists is replaceable in tests.
	exists func(ctx context.Context, pid int32) (bool, error)
}

// NewWatcher creates a watcher for pid.
func NewWatcher(pid int32, interval time.Duration, logger *zap.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		pid:      pid,
		interval: interval,
		logger:   logger,
		exists:   process.PidExistsWithContext,
	}
}

// Run blocks until the parent disappears, calling onGone once, or until ctx
// is cancelled. Lookup errors are logged and retried on the next tick.
func (w *Watcher) Run(ctx context.Context, onGone func()) {
	w.logger.Info("watching parent process",
		zap.Int32("pid", w.pid),
		zap.String("name", Name(ctx, w.pid)),
		zap.Duration("interval", w.interval),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if w.gone(ctx) {
			w.logger.Info("parent process is gone, stopping capture", zap.Int32("pid", w.pid))
			onGone()
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Watcher) gone(ctx context.Context) bool {
	ok, err := w.exists(ctx, w.pid)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("parent process lookup failed", zap.Int32("pid", w.pid), zap.Error(err))
		}
		return false
	}
	return !ok
}

// Name returns the executable name of pid, or "" if it cannot be read.
func Name(ctx context.Context, pid int32) string {
	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return ""
	}
	name, err := proc.NameWithContext(ctx)
	if err != nil {
		return ""
	}
	return name
}
