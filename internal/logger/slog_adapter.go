package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// SlogLogger is the slog-backed Logger
type SlogLogger struct {
	logger    *slog.Logger
	level     *slog.LevelVar
	sanitizer *Sanitizer       // nil when redaction is off
	writers   []io.WriteCloser // writers owned by this logger
}

// NewSlogLogger builds a logger from config
func NewSlogLogger(config Config) (*SlogLogger, error) {
	var writers []io.Writer
	var closeableWriters []io.WriteCloser

	for _, output := range config.Outputs {
		switch output.Type {
		case OutputStdout, OutputStderr:
			if output.Writer != nil {
				writers = append(writers, output.Writer)
				// Custom writers are closed on shutdown, standard streams never
				if wc, ok := output.Writer.(io.WriteCloser); ok {
					if wc != os.Stdout && wc != os.Stderr && wc != os.Stdin {
						closeableWriters = append(closeableWriters, wc)
					}
				}
			} else if output.Type == OutputStdout {
				writers = append(writers, os.Stdout)
			} else {
				writers = append(writers, os.Stderr)
			}
		case OutputFile:
			if config.File.Enabled {
				fileWriter, err := createFileWriter(config.File)
				if err != nil {
					return nil, fmt.Errorf("failed to create file writer: %w", err)
				}
				writers = append(writers, fileWriter)
				closeableWriters = append(closeableWriters, fileWriter)
			}
		}
	}

	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	multiWriter := io.MultiWriter(writers...)

	level := new(slog.LevelVar)
	level.Set(convertLevel(config.Level))
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch config.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(multiWriter, opts)
	default:
		handler = slog.NewTextHandler(multiWriter, opts)
	}

	var sanitizer *Sanitizer
	if config.RedactPaths {
		sanitizer = NewSanitizer()
	}

	return &SlogLogger{
		logger:    slog.New(handler),
		level:     level,
		sanitizer: sanitizer,
		writers:   closeableWriters,
	}, nil
}

// createFileWriter creates a lumberjack writer with rotation
func createFileWriter(config FileConfig) (io.WriteCloser, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("log file path cannot be empty")
	}

	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   config.Path,
		MaxSize:    config.MaxSizeMB,
		MaxAge:     config.MaxAgeDays,
		MaxBackups: config.MaxBackups,
		Compress:   config.Compress,
	}, nil
}

// convertLevel maps Level to slog.Level
func convertLevel(level Level) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel changes the threshold for this logger and its children
func (l *SlogLogger) SetLevel(level Level) {
	l.level.Set(convertLevel(level))
}

func (l *SlogLogger) Debug(msg string, args ...any) {
	msg, args = l.sanitizer.apply(msg, args)
	l.logger.Debug(msg, args...)
}

func (l *SlogLogger) Info(msg string, args ...any) {
	msg, args = l.sanitizer.apply(msg, args)
	l.logger.Info(msg, args...)
}

func (l *SlogLogger) Warn(msg string, args ...any) {
	msg, args = l.sanitizer.apply(msg, args)
	l.logger.Warn(msg, args...)
}

func (l *SlogLogger) Error(msg string, args ...any) {
	msg, args = l.sanitizer.apply(msg, args)
	l.logger.Error(msg, args...)
}

// With returns a child logger. Children do not own writers.
func (l *SlogLogger) With(args ...any) Logger {
	_, args = l.sanitizer.apply("", args)
	return &childLogger{
		logger:    l.logger.With(args...),
		sanitizer: l.sanitizer,
	}
}

// Sync is a no-op; lumberjack writes through
func (l *SlogLogger) Sync() error {
	return nil
}

// Shutdown closes all owned writers
func (l *SlogLogger) Shutdown() error {
	var lastErr error
	for _, w := range l.writers {
		if err := w.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// childLogger does not own writers, so Shutdown is a no-op
type childLogger struct {
	logger    *slog.Logger
	sanitizer *Sanitizer
}

func (c *childLogger) Debug(msg string, args ...any) {
	msg, args = c.sanitizer.apply(msg, args)
	c.logger.Debug(msg, args...)
}

func (c *childLogger) Info(msg string, args ...any) {
	msg, args = c.sanitizer.apply(msg, args)
	c.logger.Info(msg, args...)
}

func (c *childLogger) Warn(msg string, args ...any) {
	msg, args = c.sanitizer.apply(msg, args)
	c.logger.Warn(msg, args...)
}

func (c *childLogger) Error(msg string, args ...any) {
	msg, args = c.sanitizer.apply(msg, args)
	c.logger.Error(msg, args...)
}

func (c *childLogger) With(args ...any) Logger {
	_, args = c.sanitizer.apply("", args)
	return &childLogger{
		logger:    c.logger.With(args...),
		sanitizer: c.sanitizer,
	}
}

func (c *childLogger) Sync() error {
	return nil
}

func (c *childLogger) Shutdown() error {
	return nil
}
