// Package elog wires the engine's structured logging on top of log/slog.
package elog

import (
	"fmt"
	"log/slog"
	"os"
)

var global *slog.Logger

// Init configures the package-level logger for the given level name
// ("debug", "info", "warn", "error").
func Init(level string) error {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info", "":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return fmt.Errorf("invalid log level: %s", level)
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	global = slog.New(handler)
	slog.SetDefault(global)
	return nil
}

// Get returns the package-level logger, falling back to slog.Default
// if Init was never called.
func Get() *slog.Logger {
	if global == nil {
		return slog.Default()
	}
	return global
}
