// Package logger constructs the application's structured logger.
package logger

import (
	"fmt"

	"go.uber.org/zap"
)

// Logger wraps the zap logger used throughout the application.
type Logger struct {
	// Log is the configured zap logger. Until Init it is a no-op logger.
	Log *zap.Logger
}

// New returns a Logger that discards everything until Init is called.
func New() *Logger {
	return &Logger{Log: zap.NewNop()}
}

// Init builds the production logger at the given level ("debug",
// "info", "warn", "error").
func (l *Logger) Init(level string) error {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	l.Log = logger
	return nil
}
