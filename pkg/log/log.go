// Copyright 2026 NFV Works
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log provides structured logging for the driver. It is a thin
// wrapper around zap that exposes loosely typed key-value pairs, so that
// call sites do not have to import zap directly.
package log

import (
	"fmt"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config configures the global logger.
type Config struct {
	// Level of the logging entries. One of "debug", "info", "error".
	Level string
	// Console switches from the default JSON encoder to a human friendly
	// console encoder.
	Console bool
}

var root = zap.NewNop()

// Setup instantiates the global logger from the given config. It must be
// called before any logging happens; until then all entries are discarded.
func Setup(cfg Config) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}
	zCfg := zap.NewProductionConfig()
	zCfg.Level = zap.NewAtomicLevelAt(level)
	zCfg.DisableCaller = true
	zCfg.Sampling = nil
	if cfg.Console {
		zCfg.Encoding = "console"
		zCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	logger, err := zCfg.Build()
	if err != nil {
		return err
	}
	root = logger
	return nil
}

func parseLevel(lvl string) (zapcore.Level, error) {
	switch strings.ToLower(lvl) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level: %s", lvl)
	}
}

// Debug logs at debug level.
func Debug(msg string, ctx ...any) {
	root.Debug(msg, convertCtx(ctx)...)
}

// Info logs at info level.
func Info(msg string, ctx ...any) {
	root.Info(msg, convertCtx(ctx)...)
}

// Error logs at error level.
func Error(msg string, ctx ...any) {
	root.Error(msg, convertCtx(ctx)...)
}

// HandlePanic catches panics, logs them with the stack, and panics again
// with the same value. Every goroutine the driver starts must defer this.
func HandlePanic() {
	if msg := recover(); msg != nil {
		root.Error("Panic", zap.Any("msg", msg), zap.ByteString("stack", debug.Stack()))
		root.Sync()
		panic(msg)
	}
}

// Flush drains buffered log entries.
func Flush() {
	root.Sync()
}

// Logger describes the logger interface.
type Logger interface {
	New(ctx ...any) Logger
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Error(msg string, ctx ...any)
}

// New creates a logger with the given context attached to the root logger.
func New(ctx ...any) Logger {
	return &logger{logger: root.With(convertCtx(ctx)...)}
}

// Root returns the root logger, without any attached context.
func Root() Logger {
	return &logger{logger: root}
}

// Discard sets the logger up to discard all entries. Useful for tests.
func Discard() {
	root = zap.NewNop()
}

type logger struct {
	logger *zap.Logger
}

func (l *logger) New(ctx ...any) Logger {
	return &logger{logger: l.logger.With(convertCtx(ctx)...)}
}

func (l *logger) Debug(msg string, ctx ...any) {
	l.logger.Debug(msg, convertCtx(ctx)...)
}

func (l *logger) Info(msg string, ctx ...any) {
	l.logger.Info(msg, convertCtx(ctx)...)
}

func (l *logger) Error(msg string, ctx ...any) {
	l.logger.Error(msg, convertCtx(ctx)...)
}

func convertCtx(ctx []any) []zap.Field {
	fields := make([]zap.Field, 0, len(ctx)/2)
	for i := 0; i+1 < len(ctx); i += 2 {
		fields = append(fields, zap.Any(fmt.Sprint(ctx[i]), ctx[i+1]))
	}
	return fields
}
