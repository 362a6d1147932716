package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/Ning0612/Treecmp/internal/domain"
)

// EnvPrefix prefixes environment overrides, e.g. TREECMP_COMPARE_MODE=hash
const EnvPrefix = "TREECMP"

// DefaultConfigPaths returns the default paths to search for config files
func DefaultConfigPaths() []string {
	paths := []string{
		".",
		"./configs",
	}

	// Add user config directory
	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, "treecmp"))
	}

	// Add home directory
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "treecmp"))
		paths = append(paths, filepath.Join(homeDir, ".treecmp"))
	}

	return paths
}

func newViper() *viper.Viper {
	v := viper.New()
	d := Default()

	v.SetDefault("compare.mode", string(d.Compare.Mode))
	v.SetDefault("compare.algorithms", []string{})
	v.SetDefault("compare.ignore", []string{})
	v.SetDefault("compare.case_sensitive", d.Compare.CaseSensitive)
	v.SetDefault("compare.mtime_tolerance", d.Compare.MtimeTolerance)
	v.SetDefault("compare.max_parallelism", d.Compare.MaxParallelism)
	v.SetDefault("compare.verify_content", d.Compare.VerifyContent)
	v.SetDefault("compare.timeout", d.Compare.Timeout)
	v.SetDefault("baseline.format", d.Baseline.Format)
	v.SetDefault("watch.interval", d.Watch.Interval)
	v.SetDefault("gdrive.client_id", d.GDrive.ClientID)
	v.SetDefault("gdrive.client_secret", d.GDrive.ClientSecret)
	v.SetDefault("gdrive.token_path", d.GDrive.TokenPath)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.redact_paths", d.Log.RedactPaths)
	v.SetDefault("log.file.enabled", d.Log.File.Enabled)
	v.SetDefault("log.file.path", d.Log.File.Path)
	v.SetDefault("log.file.max_size_mb", d.Log.File.MaxSizeMB)
	v.SetDefault("log.file.max_age_days", d.Log.File.MaxAgeDays)
	v.SetDefault("log.file.max_backups", d.Log.File.MaxBackups)
	v.SetDefault("log.file.compress", d.Log.File.Compress)
	v.SetDefault("state.enabled", d.State.Enabled)
	v.SetDefault("state.dir", d.State.Dir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads and parses a configuration file
// If path is empty, searches default locations for config.yaml
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		// Use specific file
		v.SetConfigFile(path)
	} else {
		// Search default paths
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, p := range DefaultConfigPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			return nil, domain.ErrConfigNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	return decode(v)
}

// LoadOrDefault is like Load but falls back to defaults (plus environment
// overrides) when no file is found in the default locations. An explicit
// path that does not exist is still an error.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, domain.ErrConfigNotFound) && path == "" {
		return decode(newViper())
	}
	return cfg, err
}

// LoadFromString parses configuration from a YAML string
func LoadFromString(yamlContent string) (*Config, error) {
	v := newViper()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(strings.NewReader(yamlContent)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
