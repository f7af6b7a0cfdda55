// Package logger provides a single, process-wide structured logger built on
// go.uber.org/zap. Call Initialize once at startup; every other function in
// this package is a thin wrapper around the resulting sugared logger so call
// sites don't need to thread a logger through every function signature.
package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu  sync.RWMutex
	log *zap.SugaredLogger
)

// Initialize sets up the global logger. jsonOutput selects a JSON encoder
// (for log aggregation in production); otherwise a colorized console
// encoder is used. level is one of "debug", "info", "warn", "error" (from
// logging.level); an unrecognized or empty level defaults to "info". Safe to
// call more than once (e.g. bootstrap at process start, then again once
// configuration has been loaded) — the previous logger is simply replaced.
func Initialize(jsonOutput bool, level string) error {
	var encoder zapcore.Encoder
	if jsonOutput {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		encoder = newConsoleEncoder()
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(newStdout())), parseLevel(level))
	base := zap.New(core, zap.AddCaller())

	mu.Lock()
	log = base.Sugar()
	mu.Unlock()

	return nil
}

// parseLevel maps a logging.level config value to a zapcore.Level, defaulting
// to info for anything unrecognized.
func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "info", "":
		return zapcore.InfoLevel
	default:
		return zapcore.InfoLevel
	}
}

// L returns the global sugared logger. If Initialize has not been called,
// a no-op logger is returned so early-startup code never panics on a nil
// logger.
func L() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	if log == nil {
		return zap.NewNop().Sugar()
	}
	return log
}

// Component returns a child logger tagged with a component name, used to
// scope log lines to a subsystem (watcher, store, httpapi, ...).
func Component(name string) *zap.SugaredLogger {
	return L().With(FieldComponent, name)
}

func Debug(args ...interface{})                    { L().Debug(args...) }
func Info(args ...interface{})                     { L().Info(args...) }
func Warn(args ...interface{})                     { L().Warn(args...) }
func Error(args ...interface{})                     { L().Error(args...) }
func Debugf(template string, args ...interface{})  { L().Debugf(template, args...) }
func Infof(template string, args ...interface{})   { L().Infof(template, args...) }
func Warnf(template string, args ...interface{})   { L().Warnf(template, args...) }
func Errorf(template string, args ...interface{})  { L().Errorf(template, args...) }
func Debugw(msg string, kv ...interface{})         { L().Debugw(msg, kv...) }
func Infow(msg string, kv ...interface{})          { L().Infow(msg, kv...) }
func Warnw(msg string, kv ...interface{})          { L().Warnw(msg, kv...) }
func Errorw(msg string, kv ...interface{})         { L().Errorw(msg, kv...) }

// Sync flushes any buffered log entries. Call on shutdown.
func Sync() error {
	return L().Sync()
}
