// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Package logging builds the process logger. Diagnostics go to stderr and,
// optionally, to a size-rotated file.
package logging

import (
	"io"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mbeema/honedumpcap/pkg/config"
)

// Options selects the logger sinks.
type Options struct {
	Level string
	// Console is where console logs go; nil disables console logging. Under
	// a supervising parent stderr carries protocol frames, so the caller
	// passes nil there.
	Console io.Writer
	File    config.LoggingConfig
}

// ParseLevel maps a config level name to a zap level. Unknown names map to
// info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New builds a logger from opts. With no sink at all it returns a no-op
// logger. The returned closer releases the log file, if any.
func New(opts Options) (*zap.Logger, io.Closer) {
	level := zap.NewAtomicLevelAt(ParseLevel(opts.Level))

	var cores []zapcore.Core
	if opts.Console != nil {
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.Lock(zapcore.AddSync(opts.Console)),
			level,
		))
	}

	var closer io.Closer = nopCloser{}
	if opts.File.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File.File,
			MaxSize:    opts.File.MaxSizeMB,
			MaxBackups: opts.File.MaxBackups,
			MaxAge:     opts.File.MaxAgeDays,
			Compress:   opts.File.Compress,
		}
		closer = lj

		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encCfg),
			zapcore.AddSync(lj),
			level,
		))
	}

	if len(cores) == 0 {
		return zap.NewNop(), closer
	}
	return zap.New(zapcore.NewTee(cores...)), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
