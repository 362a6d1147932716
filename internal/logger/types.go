package logger

import (
	"io"
	"strings"
)

// Logger is the logging interface used across the module
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	Sync() error     // flush buffered output
	Shutdown() error // close owned writers
}

// Level is a logging threshold
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the level
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLevel parses a string into a Level (case-insensitive)
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo // default to info
	}
}

// Format is the record encoding
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// String returns the string representation of the format
func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatJSON:
		return "json"
	default:
		return "text"
	}
}

// ParseFormat parses a string into a Format (case-insensitive)
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	default:
		return FormatText
	}
}

// Output is a log destination
type Output int

const (
	OutputStdout Output = iota
	OutputStderr
	OutputFile
)

// Config configures the logger
type Config struct {
	Level   Level
	Format  Format
	Outputs []OutputConfig
	File    FileConfig

	// RedactPaths masks user home directories in messages and values
	RedactPaths bool
}

// OutputConfig selects one destination
type OutputConfig struct {
	Type   Output
	Writer io.Writer // optional, used by tests
}

// FileConfig configures rotated file output
type FileConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int  // megabytes before rotation
	MaxAgeDays int  // days to keep old files
	MaxBackups int  // old files to keep
	Compress   bool // gzip rotated files
}
