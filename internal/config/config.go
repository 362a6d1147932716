package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Ning0612/Treecmp/internal/core/ignore"
	"github.com/Ning0612/Treecmp/internal/domain"
	"github.com/Ning0612/Treecmp/internal/logger"
	"github.com/Ning0612/Treecmp/internal/manifest"
)

// Mode selects how file contents are compared when no algorithms are given
type Mode string

const (
	// ModeQuick compares size and mtime (with byte verification on agreement)
	// and captures CRC32 digests in snapshots
	ModeQuick Mode = "quick"
	// ModeHash compares and captures SHA-256 digests
	ModeHash Mode = "hash"
)

// IsValid checks if the mode is supported
func (m Mode) IsValid() bool {
	return m == ModeQuick || m == ModeHash
}

// Config represents the complete configuration for treecmp
type Config struct {
	Compare  CompareConfig  `mapstructure:"compare" yaml:"compare"`
	Baseline BaselineConfig `mapstructure:"baseline" yaml:"baseline"`
	Watch    WatchConfig    `mapstructure:"watch" yaml:"watch"`
	GDrive   GDriveConfig   `mapstructure:"gdrive" yaml:"gdrive"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	State    StateConfig    `mapstructure:"state" yaml:"state"`
}

// CompareConfig holds the settings shared by tree and baseline comparisons
type CompareConfig struct {
	Mode           Mode          `mapstructure:"mode" yaml:"mode"`
	Algorithms     []string      `mapstructure:"algorithms" yaml:"algorithms"`
	Ignore         []string      `mapstructure:"ignore" yaml:"ignore"`
	CaseSensitive  bool          `mapstructure:"case_sensitive" yaml:"case_sensitive"`
	MtimeTolerance time.Duration `mapstructure:"mtime_tolerance" yaml:"mtime_tolerance"`
	MaxParallelism int           `mapstructure:"max_parallelism" yaml:"max_parallelism"`
	VerifyContent  bool          `mapstructure:"verify_content" yaml:"verify_content"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// BaselineConfig holds manifest settings
type BaselineConfig struct {
	// Format used when the manifest path has no recognised extension
	Format string `mapstructure:"format" yaml:"format"`
}

// WatchConfig holds settings for periodic baseline verification
type WatchConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// GDriveConfig holds the OAuth client used for gdrive: trees
type GDriveConfig struct {
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`
	TokenPath    string `mapstructure:"token_path" yaml:"token_path"`
}

// Configured reports whether OAuth client credentials are present
func (g *GDriveConfig) Configured() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

// LogConfig holds logger settings
type LogConfig struct {
	Level       string        `mapstructure:"level" yaml:"level"`
	Format      string        `mapstructure:"format" yaml:"format"`
	RedactPaths bool          `mapstructure:"redact_paths" yaml:"redact_paths"`
	File        LogFileConfig `mapstructure:"file" yaml:"file"`
}

// LogFileConfig holds rotated log file settings
type LogFileConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Path       string `mapstructure:"path" yaml:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// StateConfig holds run history settings
type StateConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		Compare: CompareConfig{
			Mode:          ModeQuick,
			CaseSensitive: true,
			VerifyContent: true,
		},
		Baseline: BaselineConfig{Format: string(manifest.FormatJSON)},
		Watch:    WatchConfig{Interval: 5 * time.Minute},
		GDrive:   GDriveConfig{TokenPath: filepath.Join(DefaultDataDir(), "gdrive-token.json")},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File: LogFileConfig{
				Path:       filepath.Join(DefaultDataDir(), "treecmp.log"),
				MaxSizeMB:  10,
				MaxAgeDays: 7,
				MaxBackups: 3,
				Compress:   true,
			},
		},
		State: StateConfig{
			Enabled: true,
			Dir:     DefaultDataDir(),
		},
	}
}

// Validate checks if the configuration is complete and consistent
func (c *Config) Validate() error {
	if !c.Compare.Mode.IsValid() {
		return fmt.Errorf("%w: unknown mode %q (want quick or hash)", domain.ErrConfigInvalid, c.Compare.Mode)
	}
	if _, err := domain.ParseHashAlgorithms(c.Compare.Algorithms); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}
	if _, err := ignore.New(c.Compare.Ignore, c.Compare.CaseSensitive); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}
	if c.Compare.MtimeTolerance < 0 {
		return fmt.Errorf("%w: mtime_tolerance must not be negative", domain.ErrConfigInvalid)
	}
	if c.Compare.MaxParallelism < 0 {
		return fmt.Errorf("%w: max_parallelism must not be negative", domain.ErrConfigInvalid)
	}
	if c.Compare.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", domain.ErrConfigInvalid)
	}
	if _, err := manifest.ParseFormat(c.Baseline.Format); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}
	if c.Watch.Interval <= 0 {
		return fmt.Errorf("%w: watch.interval must be positive", domain.ErrConfigInvalid)
	}
	if c.State.Enabled && c.State.Dir == "" {
		return fmt.Errorf("%w: state.dir is required when state is enabled", domain.ErrConfigInvalid)
	}
	if c.Log.File.Enabled && c.Log.File.Path == "" {
		return fmt.Errorf("%w: log.file.path is required when file logging is enabled", domain.ErrConfigInvalid)
	}
	return nil
}

// CompareAlgorithms returns the digests used for tree and baseline
// comparisons. Explicit algorithms win; otherwise quick mode hashes nothing
// and hash mode uses SHA-256.
func (c *CompareConfig) CompareAlgorithms() ([]domain.HashAlgorithm, error) {
	explicit, err := domain.ParseHashAlgorithms(c.Algorithms)
	if err != nil {
		return nil, err
	}
	if len(explicit) > 0 {
		return explicit, nil
	}
	if c.Mode == ModeHash {
		return []domain.HashAlgorithm{domain.HashSHA256}, nil
	}
	return nil, nil
}

// SnapshotAlgorithms returns the digests captured into a manifest.
// A snapshot always carries at least one digest: CRC32 in quick mode,
// SHA-256 in hash mode, unless algorithms are given explicitly.
func (c *CompareConfig) SnapshotAlgorithms() ([]domain.HashAlgorithm, error) {
	explicit, err := domain.ParseHashAlgorithms(c.Algorithms)
	if err != nil {
		return nil, err
	}
	if len(explicit) > 0 {
		return explicit, nil
	}
	if c.Mode == ModeHash {
		return []domain.HashAlgorithm{domain.HashSHA256}, nil
	}
	return []domain.HashAlgorithm{domain.HashCRC32}, nil
}

// LoggerConfig converts the log section into a logger.Config writing to
// stderr and, when enabled, a rotated file
func (c *LogConfig) LoggerConfig() logger.Config {
	cfg := logger.Config{
		Level:       logger.ParseLevel(c.Level),
		Format:      logger.ParseFormat(c.Format),
		Outputs:     []logger.OutputConfig{{Type: logger.OutputStderr}},
		RedactPaths: c.RedactPaths,
	}
	if c.File.Enabled {
		cfg.Outputs = append(cfg.Outputs, logger.OutputConfig{Type: logger.OutputFile})
		cfg.File = logger.FileConfig{
			Enabled:    true,
			Path:       ExpandPath(c.File.Path),
			MaxSizeMB:  c.File.MaxSizeMB,
			MaxAgeDays: c.File.MaxAgeDays,
			MaxBackups: c.File.MaxBackups,
			Compress:   c.File.Compress,
		}
	}
	return cfg
}

// DefaultDataDir returns the directory for history and log files
func DefaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "treecmp")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".treecmp")
	}
	return ".treecmp"
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	// Expand ~ to home directory
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			if len(path) > 1 && (path[1] == '/' || path[1] == filepath.Separator) {
				path = filepath.Join(home, path[2:])
			} else if len(path) == 1 {
				path = home
			}
		}
	}
	path = os.ExpandEnv(path)
	return filepath.Clean(path)
}

// normalize trims list entries and lowercases enum values
func (c *Config) normalize() {
	c.Compare.Mode = Mode(strings.ToLower(strings.TrimSpace(string(c.Compare.Mode))))
	c.Compare.Algorithms = splitList(c.Compare.Algorithms)
	c.Compare.Ignore = trimList(c.Compare.Ignore)
	c.State.Dir = ExpandPath(c.State.Dir)
	c.GDrive.TokenPath = ExpandPath(c.GDrive.TokenPath)
}

// trimList drops blank entries. Ignore patterns are never split on commas
// since globs may contain brace alternatives.
func trimList(in []string) []string {
	var out []string
	for _, item := range in {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// splitList accepts both YAML lists and comma separated values
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
