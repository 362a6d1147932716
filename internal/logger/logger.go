package logger

import (
	"fmt"
	"sync"
)

var (
	defaultLogger Logger
	mu            sync.RWMutex
	initialized   bool
)

// Init initializes the global logger
func Init(config Config) error {
	mu.Lock()
	defer mu.Unlock()

	// Prevent duplicate initialization
	if initialized {
		return fmt.Errorf("logger already initialized; call Shutdown() before re-initializing")
	}

	logger, err := NewSlogLogger(config)
	if err != nil {
		return fmt.Errorf("failed to create slog logger: %w", err)
	}

	defaultLogger = logger
	initialized = true
	return nil
}

// Get returns the global logger, or a NullLogger before Init
func Get() Logger {
	mu.RLock()
	defer mu.RUnlock()

	if !initialized {
		return &NullLogger{}
	}

	return defaultLogger
}

// With returns a child of the global logger carrying args
func With(args ...any) Logger {
	return Get().With(args...)
}

// Sync flushes the global logger
func Sync() error {
	return Get().Sync()
}

// Shutdown closes the global logger. Safe to call more than once.
func Shutdown() error {
	mu.Lock()
	if !initialized {
		mu.Unlock()
		return nil
	}

	logger := defaultLogger
	initialized = false
	mu.Unlock() // Release lock before calling logger.Shutdown() to avoid deadlock

	return logger.Shutdown()
}

// SetLevel changes the threshold of the global logger at runtime
func SetLevel(level Level) {
	mu.RLock()
	defer mu.RUnlock()

	if l, ok := defaultLogger.(*SlogLogger); ok && initialized {
		l.SetLevel(level)
	}
}

// OrNull returns l, or a NullLogger when l is nil
func OrNull(l Logger) Logger {
	if l == nil {
		return &NullLogger{}
	}
	return l
}

// NullLogger discards everything
type NullLogger struct{}

func (n *NullLogger) Debug(msg string, args ...any) {}
func (n *NullLogger) Info(msg string, args ...any)  {}
func (n *NullLogger) Warn(msg string, args ...any)  {}
func (n *NullLogger) Error(msg string, args ...any) {}
func (n *NullLogger) With(args ...any) Logger       { return n }
func (n *NullLogger) Sync() error                   { return nil }
func (n *NullLogger) Shutdown() error               { return nil }
