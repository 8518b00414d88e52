package logger

import (
	"go.uber.org/zap"
)

// Log is the application-wide logger. It is a no-op logger until Initialize is called,
// so packages can log safely from tests.
var Log *zap.Logger = zap.NewNop()

// Initialize builds a production JSON logger at the given level ("debug", "info", "warn", "error")
func Initialize(level string) error {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = lvl

	zl, err := cfg.Build()
	if err != nil {
		return err
	}

	Log = zl
	return nil
}

// InitializeDevelopment builds a human-readable console logger
func InitializeDevelopment() error {
	zl, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	Log = zl
	return nil
}

// Sync flushes buffered log entries
func Sync() {
	_ = Log.Sync()
}
