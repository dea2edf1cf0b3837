package kfmt

import (
	"log/slog"
	"strings"

	"gophervm/kernel"
)

var (
	// ErrUnknownLogLevel is returned by ParseLevel for unsupported level names.
	ErrUnknownLogLevel = &kernel.Error{Module: "kfmt", Message: "unknown log level; defaulting to INFO"}

	logLevel   = new(slog.LevelVar)
	rootLogger = slog.New(slog.NewTextHandler(sinkWriter{}, &slog.HandlerOptions{Level: logLevel}))
)

// Logger returns a structured logger that tags every record with the
// supplied module name and writes to the active output sink.
func Logger(module string) *slog.Logger {
	return rootLogger.With("module", module)
}

// SetLevel sets the minimum level for records emitted by all loggers
// returned by Logger.
func SetLevel(level slog.Level) {
	logLevel.Set(level)
}

// Level returns the currently active log level.
func Level() slog.Level {
	return logLevel.Level()
}

// ParseLevel maps a configuration level name to a slog.Level. Unknown names
// map to slog.LevelInfo together with ErrUnknownLogLevel.
func ParseLevel(name string) (slog.Level, *kernel.Error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, ErrUnknownLogLevel
	}
}
