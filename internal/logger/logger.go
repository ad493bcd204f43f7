// Package logger holds the shared zap logger for the client core.
package logger

import "go.uber.org/zap"

// Log is used across the core. It is a no-op until Initialize is called so
// library consumers are not forced into any logging config.
var Log *zap.Logger = zap.NewNop()

// Initialize sets Log to a production logger at the given level.
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
