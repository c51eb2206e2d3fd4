// Package logging provides zap logger construction for signalbankd.
package logging

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a logger with the given level and format.
// Format is "json" or "console".
func New(level, format string) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(
		newEncoder(format),
		zapcore.Lock(os.Stderr),
		zap.NewAtomicLevelAt(lvl),
	)

	return zap.New(core, zap.AddCaller()), nil
}

// ParseLevel converts a level name to a zapcore.Level.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level: %q", level)
	}
}

// newEncoder creates JSON or console encoder.
func newEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if format == "console" {
		return zapcore.NewConsoleEncoder(encoderCfg)
	}
	return zapcore.NewJSONEncoder(encoderCfg)
}

// Sync flushes buffered log entries, ignoring the harmless errors that
// syncing stdout/stderr returns on Linux.
func Sync(logger *zap.Logger) error {
	err := logger.Sync()
	if err != nil && isStdoutSyncError(err) {
		return nil
	}
	return err
}

func isStdoutSyncError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EINVAL || errno == syscall.ENOTTY
	}
	return false
}
