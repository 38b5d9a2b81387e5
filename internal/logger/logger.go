// Package logger exposes a process-wide default logger for bootstrap code
// that runs before the orchestrator wires per-component hclog sub-loggers.
package logger

import (
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"
)

var (
	defaultLogger hclog.Logger
	once          sync.Once
)

// Default returns the process-wide bootstrap logger, creating it on first use.
func Default() hclog.Logger {
	once.Do(func() {
		level := hclog.Info
		if os.Getenv("LOG_LEVEL") == "debug" {
			level = hclog.Debug
		}
		defaultLogger = hclog.New(&hclog.LoggerOptions{
			Name:       "channelcast",
			Level:      level,
			JSONFormat: os.Getenv("LOG_FORMAT") == "json",
		})
	})
	return defaultLogger
}

// Named returns a sub-logger of Default(), matching hclog.Logger.Named.
func Named(name string) hclog.Logger {
	return Default().Named(name)
}

// Info logs at info level with structured key/value pairs.
func Info(msg string, args ...interface{}) {
	Default().Info(msg, args...)
}

// Warn logs at warn level with structured key/value pairs.
func Warn(msg string, args ...interface{}) {
	Default().Warn(msg, args...)
}

// Error logs at error level with structured key/value pairs.
func Error(msg string, args ...interface{}) {
	Default().Error(msg, args...)
}

// Debug logs at debug level with structured key/value pairs.
func Debug(msg string, args ...interface{}) {
	Default().Debug(msg, args...)
}
