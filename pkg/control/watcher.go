// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package control

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce coalesces the events of a single command write.
const DefaultDebounce = 50 * time.Millisecond

// Handler receives the requests read from the control file.
type Handler interface {
	RequestRotate()
	RequestStop()
}

// Watcher monitors the control file and dispatches its commands.
type Watcher struct {
	file     *ControlFile
	handler  Handler
	logger   *zap.Logger
	debounce time.Duration

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	stopCh  chan struct{}
	once    sync.Once
}

// NewWatcher creates a control file in dir and a watcher dispatching to h.
func NewWatcher(dir string, h Handler, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f, err := CreateControlFile(dir)
	if err != nil {
		return nil, err
	}
	return &Watcher{
		file:     f,
		handler:  h,
		logger:   logger,
		debounce: DefaultDebounce,
		stopCh:   make(chan struct{}),
	}, nil
}

// Path returns the watched control file.
func (w *Watcher) Path() string {
	return w.file.Path()
}

// Start begins watching the control file's directory.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fsw

	if err := fsw.Add(filepath.Dir(w.file.Path())); err != nil {
		fsw.Close()
		return err
	}

	go w.loop(ctx)
	w.logger.Info("control watcher started", zap.String("file", w.file.Path()))
	return nil
}

// Stop shuts down the watcher and removes the control file.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.stopCh)
		if w.watcher != nil {
			w.watcher.Close()
		}
		w.mu.Lock()
		defer w.mu.Unlock()
		w.file.Close()
		if err := w.file.Remove(); err != nil {
			w.logger.Debug("remove control file", zap.Error(err))
		}
	})
}

func (w *Watcher) loop(ctx context.Context) {
	var debounceTimer *time.Timer
	stopTimer := func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.file.Path() {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			stopTimer()
			debounceTimer = time.AfterFunc(w.debounce, w.dispatch)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("control watcher error", zap.Error(err))

		case <-ctx.Done():
			stopTimer()
			return

		case <-w.stopCh:
			stopTimer()
			return
		}
	}
}

func (w *Watcher) dispatch() {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.stopCh:
		return
	default:
	}

	cmd, err := w.file.Take()
	if err != nil {
		w.logger.Warn("ignoring control file content", zap.Error(err))
		return
	}

	switch cmd {
	case "":
		// Our own truncation.
	case Rotate:
		w.logger.Info("rotate requested through control file")
		w.handler.RequestRotate()
	case Stop:
		w.logger.Info("stop requested through control file")
		w.handler.RequestStop()
	}
}
