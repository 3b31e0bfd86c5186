// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/mbeema/honedumpcap/pkg/capture"
	"github.com/mbeema/honedumpcap/pkg/config"
	"github.com/mbeema/honedumpcap/pkg/control"
	"github.com/mbeema/honedumpcap/pkg/device"
	"github.com/mbeema/honedumpcap/pkg/logging"
	"github.com/mbeema/honedumpcap/pkg/options"
	"github.com/mbeema/honedumpcap/pkg/output"
	"github.com/mbeema/honedumpcap/pkg/parent"
	"github.com/mbeema/honedumpcap/pkg/passthrough"
	"github.com/mbeema/honedumpcap/pkg/status"
	"go.uber.org/zap"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

// run is main without the exit, returning the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	progname := "dumpcap"
	if len(args) > 0 {
		progname = args[0]
		args = args[1:]
	}

	opts, err := options.Parse(args)
	if err != nil {
		reporter := status.New(options.SupervisedArgs(args), stdout, stderr)
		reporter.Error(usageError(err) + "\n\n" + options.Usage(progname))
		return 1
	}
	if _, ok := opts.Operation.(options.Help); ok {
		fmt.Fprint(stdout, options.Usage(progname))
		return 0
	}

	supervised := opts.Supervised()
	reporter := status.New(supervised, stdout, stderr)

	cfg, cfgPath, err := config.LoadDefault()
	if err != nil {
		reporter.Error(fmt.Sprintf("failed to load config: %v", err))
		return 1
	}

	// Under a parent, stderr carries protocol frames.
	var console io.Writer = stderr
	if supervised {
		console = nil
	}
	logger, logCloser := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		Console: console,
		File:    cfg.Logging,
	})
	defer logCloser.Close()
	defer logger.Sync()

	logger.Info("starting hone-dumpcap",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", buildDate),
		zap.String("config", cfgPath),
		zap.Bool("supervised", supervised),
	)

	exe, err := os.Executable()
	if err != nil {
		exe = progname
	}
	runner := &passthrough.Runner{
		Path:   cfg.DumpcapPath(exe, passthrough.OriginalName),
		Stdout: stdout,
		Stderr: stderr,
		Logger: logger,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	switch op := opts.Operation.(type) {
	case options.ListInterfaces:
		list, err := runner.ListInterfaces(ctx, op.MachineReadable)
		if err != nil {
			reporter.Error(err.Error())
			return 1
		}
		reporter.ListStart()
		fmt.Fprint(stdout, list)
		return 0

	case options.LinkTypes:
		if op.Hone {
			reporter.ListStart()
			fmt.Fprint(stdout, passthrough.HoneLinkTypes(supervised, op.MachineReadable))
			return 0
		}
		if err := runner.LinkTypes(ctx, op.Args); err != nil {
			reporter.Error(err.Error())
			return 1
		}
		return 0

	case options.Passthrough:
		return runPassthrough(ctx, cancel, runner, op, reporter, logger)

	case options.Capture:
		return runCapture(ctx, op, opts, cfg, reporter, logger)
	}

	reporter.Error(fmt.Sprintf("unsupported operation %T", opts.Operation))
	return 1
}

func usageError(err error) string {
	if errors.Is(err, options.ErrUsage) {
		return strings.TrimPrefix(err.Error(), options.ErrUsage.Error()+": ")
	}
	return err.Error()
}

func runPassthrough(ctx context.Context, cancel context.CancelFunc, runner *passthrough.Runner,
	op options.Passthrough, reporter status.Reporter, logger *zap.Logger) int {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal, terminating original dumpcap",
				zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	code, err := runner.Run(ctx, op.Args)
	if err != nil {
		reporter.Error(err.Error())
	}
	return code
}

func runCapture(ctx context.Context, op options.Capture, opts *options.Options, cfg *config.Config,
	reporter status.Reporter, logger *zap.Logger) int {
	dev, err := device.Open(cfg.Device.Path)
	if err != nil {
		reporter.Error(err.Error())
		return 1
	}
	if err := configureDevice(dev, op.SnapLen, cfg.Device.RingPages, logger); err != nil {
		dev.Close()
		reporter.Error(err.Error())
		return 1
	}

	files := output.NewManager(output.Config{
		Path:   op.OutputPath,
		Rotate: op.Rotate,
		Retain: op.Retain,
	}, logger)

	session := capture.New(capture.Config{
		Device:       dev,
		Files:        files,
		Thresholds:   op.Thresholds,
		Reporter:     reporter,
		Logger:       logger,
		BufferSize:   cfg.Device.BufferSize,
		WaitInterval: cfg.Device.WaitInterval,
	})
	if err := session.Open(); err != nil {
		session.Close()
		reporter.Error(err.Error())
		return 1
	}

	// Watchers may still request a stop after Run has released the device;
	// Wake tolerates that, and no watcher outlives runCapture.
	var watchers sync.WaitGroup
	watchCtx, stopWatching := context.WithCancel(ctx)
	defer func() {
		stopWatching()
		watchers.Wait()
	}()

	stopSignals := handleSignals(watchCtx, session, logger)
	defer stopSignals()

	if pid, ok := opts.ParentProcess(); ok {
		w := parent.NewWatcher(pid, cfg.Parent.PollInterval, logger)
		watchers.Add(1)
		go func() {
			defer watchers.Done()
			w.Run(watchCtx, session.RequestStop)
		}()
	}

	if cfg.Control.Dir != "" {
		w, err := startControl(watchCtx, cfg.Control.Dir, session, logger)
		if err != nil {
			// The capture still works through signals.
			logger.Warn("control file disabled", zap.String("dir", cfg.Control.Dir), zap.Error(err))
		} else {
			defer w.Stop()
		}
	}

	if err := session.Run(ctx); err != nil {
		logger.Error("capture failed", zap.Error(err), zap.Object("stats", session.Snapshot()))
		reporter.Error(err.Error())
		return 1
	}
	return 0
}

// configureDevice applies the snap length and ring size, when set, and logs
// what the driver reports back.
func configureDevice(dev device.Device, snapLen, ringPages int, logger *zap.Logger) error {
	if snapLen > 0 {
		if err := dev.SetSnapLen(snapLen); err != nil {
			return err
		}
		applied, err := dev.SnapLen()
		if err != nil {
			return err
		}
		logger.Info("snap length set", zap.Int("requested", snapLen), zap.Int("applied", applied))
	}
	if ringPages > 0 {
		if err := dev.SetRingPages(ringPages); err != nil {
			return err
		}
		applied, err := dev.RingPages()
		if err != nil {
			return err
		}
		logger.Info("ring size set", zap.Int("requested", ringPages), zap.Int("applied_pages", applied))
	}
	return nil
}

func startControl(ctx context.Context, dir string, session *capture.Session, logger *zap.Logger) (*control.Watcher, error) {
	w, err := control.NewWatcher(dir, session, logger)
	if err != nil {
		return nil, err
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return nil, err
	}
	return w, nil
}

// handleSignals maps SIGINT and SIGTERM to a stop, SIGHUP to a rotation and
// SIGUSR1 to a statistics log line. The returned func detaches the handler.
func handleSignals(ctx context.Context, session *capture.Session, logger *zap.Logger) func() {
	ctx, cancel := context.WithCancel(ctx)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGUSR1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case sig := <-sigCh:
				switch sig {
				case syscall.SIGHUP:
					logger.Info("received SIGHUP, rotating capture file")
					session.RequestRotate()
				case syscall.SIGUSR1:
					logger.Info("capture statistics", zap.Object("stats", session.Snapshot()))
				default:
					logger.Info("received shutdown signal", zap.String("signal", sig.String()))
					session.RequestStop()
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		cancel()
		<-done
	}
}
