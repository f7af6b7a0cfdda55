package logger

import (
	"os"
	"time"

	"go.uber.org/zap/zapcore"
)

func newStdout() *os.File {
	return os.Stdout
}

// newConsoleEncoder builds a single, fixed-theme console encoder: level,
// timestamp, component, message, then structured fields. There is
// deliberately only one theme; the teacher's multi-theme encoder is more
// machinery than a service this size needs.
func newConsoleEncoder() zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     consoleTimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	return zapcore.NewConsoleEncoder(cfg)
}

func consoleTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("15:04:05.000"))
}
