// Package logging wires zap for the statement separator. Each subsystem
// gets a named child logger so batch logs can be filtered per concern
// (workflow, detect, provider, resilience, sink, quarantine).
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu   sync.RWMutex
	root = zap.NewNop()
)

// Init builds the process logger. Verbose enables debug level. The returned
// sync function should be deferred by the caller.
func Init(verbose bool) (func(), error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	mu.Lock()
	root = logger
	mu.Unlock()

	return func() { _ = logger.Sync() }, nil
}

// SetLogger replaces the process logger. Tests use this to capture output.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	root = l
}

// For returns the named child logger for a subsystem.
func For(subsystem string) *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.Named(subsystem)
}
