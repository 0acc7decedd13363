// Package debug builds the process-level logger used by the sqlforge command.
package debug

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger = zap.NewNop()
	mu     sync.RWMutex
)

// New returns a development logger at level when enabled, and a no-op logger otherwise.
// An empty level means debug.
func New(enabled bool, level string) (*zap.Logger, error) {
	if !enabled {
		return zap.NewNop(), nil
	}
	lvl := zapcore.DebugLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = lvl > zapcore.DebugLevel
	return cfg.Build()
}

// Init replaces the process logger.
func Init(enabled bool, level string) error {
	l, err := New(enabled, level)
	if err != nil {
		return err
	}
	mu.Lock()
	old := logger
	logger = l
	mu.Unlock()
	_ = old.Sync()
	return nil
}

// Enabled reports whether the process logger writes debug entries.
func Enabled() bool {
	return Logger().Core().Enabled(zapcore.DebugLevel)
}

// Logger returns the process logger.
func Logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Sync flushes the process logger.
func Sync() {
	_ = Logger().Sync()
}
