/*
 * COPYRIGHT 2026 hubd contributors. All rights reserved.
 */

// Package hubutil collects the small pieces of daemon plumbing (logging,
// child-process tracking, node identity) that every subsystem in hubd needs
// but that don't belong to any one of them.
package hubutil

import (
	"fmt"
	"log"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	atomicLevel = zap.NewAtomicLevel()
	daemonName  string
	tloggers    = make(map[string]*ThrottledLogger)
)

// ThrottledLogger wraps a zap sugared logger with exponential backoff on
// repeated messages. Extension protocol errors are exactly the kind of
// bursty, repeated condition this exists to tame.
type ThrottledLogger struct {
	slog      *zap.SugaredLogger
	next      time.Time
	baseDelay time.Duration
	maxDelay  time.Duration
	curDelay  time.Duration
}

// Clear resets the logger's timeouts to their base levels.
func (t *ThrottledLogger) Clear() {
	t.next = time.Now()
	t.curDelay = t.baseDelay
}

func (t *ThrottledLogger) ready() bool {
	if now := time.Now(); now.After(t.next) {
		t.next = now.Add(t.curDelay)
		t.curDelay *= 2
		if t.curDelay > t.maxDelay {
			t.curDelay = t.maxDelay
		}
		return true
	}
	return false
}

// Errorf issues an ERROR message, subject to throttling.
func (t *ThrottledLogger) Errorf(format string, a ...interface{}) {
	if t.ready() {
		t.slog.Errorf(format, a...)
	}
}

// Warnf issues a WARN message, subject to throttling.
func (t *ThrottledLogger) Warnf(format string, a ...interface{}) {
	if t.ready() {
		t.slog.Warnf(format, a...)
	}
}

// GetThrottledLogger returns a throttled logger unique to its call site. The
// first call from a given line allocates one; later calls from the same
// line reuse it.
func GetThrottledLogger(slog *zap.SugaredLogger, start, max time.Duration) *ThrottledLogger {
	var key string
	if _, file, line, ok := runtime.Caller(1); ok {
		key = file + ":" + strconv.Itoa(line)
	} else {
		key = "unknown"
	}

	t, ok := tloggers[key]
	if !ok {
		l := slog.Desugar().WithOptions(zap.AddCallerSkip(1)).Sugar()
		t = &ThrottledLogger{
			slog:      l,
			next:      time.Now(),
			baseDelay: start,
			curDelay:  start,
			maxDelay:  max,
		}
		tloggers[key] = t
	}
	return t
}

func zapTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006/01/02 15:04:05.000"))
}

func zapCallerEncoder(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
	dir, fileName := filepath.Split(caller.File)
	dir = filepath.Base(dir)
	if dir != daemonName {
		fileName = filepath.Join(dir, fileName)
	}
	enc.AppendString(fmt.Sprintf("%s:%s:%d", daemonName, fileName, caller.Line))
}

// NewLogger returns a sugared zap logger. Each line carries a timestamp, a
// level, and enough caller context to find the source of the message.
func NewLogger(name string) *zap.SugaredLogger {
	daemonName = name

	zapConfig := zap.NewDevelopmentConfig()
	zapConfig.Level = atomicLevel
	zapConfig.DisableStacktrace = true
	zapConfig.EncoderConfig.EncodeTime = zapTimeEncoder
	zapConfig.EncoderConfig.EncodeCaller = zapCallerEncoder

	logger, err := zapConfig.Build()
	if err != nil {
		log.Panicf("can't build logger: %s", err)
	}

	_ = zap.RedirectStdLog(logger)
	return logger.Sugar()
}

// NewExtensionLogger returns a sugared logger for tagging output that came
// from an extension child process, rather than from hubd itself.
func NewExtensionLogger() (*zap.SugaredLogger, error) {
	zapConfig := zap.NewDevelopmentConfig()
	zapConfig.Level = atomicLevel
	zapConfig.DisableStacktrace = true
	zapConfig.DisableCaller = true
	zapConfig.EncoderConfig.EncodeTime = zapTimeEncoder

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// LogSetLevel adjusts the log level dynamically while the daemon runs.
func LogSetLevel(level string) error {
	var newLevel zapcore.Level
	if err := (&newLevel).UnmarshalText([]byte(level)); err != nil {
		return err
	}
	atomicLevel.SetLevel(newLevel)
	return nil
}
