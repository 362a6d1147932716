package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Ning0612/Treecmp/internal/domain"
	"github.com/Ning0612/Treecmp/internal/logger"
)

func TestLoadFromString_Full(t *testing.T) {
	yaml := `
compare:
  mode: HASH
  algorithms: [md5, "xxhash"]
  ignore:
    - "**/*.log"
    - "*.{tmp,bak}"
  case_sensitive: false
  mtime_tolerance: 2s
  max_parallelism: 4
  verify_content: false
  timeout: 5m
baseline:
  format: msgpack
watch:
  interval: 30s
gdrive:
  client_id: abc.apps.googleusercontent.com
  client_secret: s3cret
  token_path: /var/lib/treecmp/token.json
log:
  level: debug
  format: json
state:
  enabled: false
`
	cfg, err := LoadFromString(yaml)
	if err != nil {
		t.Fatalf("LoadFromString failed: %v", err)
	}

	c := cfg.Compare
	if c.Mode != ModeHash {
		t.Errorf("expected hash mode, got %q", c.Mode)
	}
	if len(c.Ignore) != 2 || c.Ignore[1] != "*.{tmp,bak}" {
		t.Errorf("brace patterns must survive intact: %v", c.Ignore)
	}
	if c.CaseSensitive || c.VerifyContent {
		t.Errorf("booleans not applied: %+v", c)
	}
	if c.MtimeTolerance != 2*time.Second || c.Timeout != 5*time.Minute || c.MaxParallelism != 4 {
		t.Errorf("numeric settings not applied: %+v", c)
	}
	if cfg.Watch.Interval != 30*time.Second {
		t.Errorf("expected watch interval 30s, got %v", cfg.Watch.Interval)
	}
	if !cfg.GDrive.Configured() || cfg.GDrive.TokenPath != filepath.Clean("/var/lib/treecmp/token.json") {
		t.Errorf("unexpected gdrive section: %+v", cfg.GDrive)
	}
	if cfg.Baseline.Format != "msgpack" || cfg.State.Enabled {
		t.Errorf("unexpected sections: %+v %+v", cfg.Baseline, cfg.State)
	}

	algos, err := c.CompareAlgorithms()
	if err != nil {
		t.Fatalf("CompareAlgorithms failed: %v", err)
	}
	if len(algos) != 2 || algos[0] != domain.HashMD5 || algos[1] != domain.HashXXHash64 {
		t.Errorf("unexpected algorithms: %v", algos)
	}

	lc := cfg.Log.LoggerConfig()
	if lc.Level != logger.LevelDebug || lc.Format != logger.FormatJSON || lc.File.Enabled {
		t.Errorf("unexpected logger config: %+v", lc)
	}
}

func TestLoadFromString_Defaults(t *testing.T) {
	cfg, err := LoadFromString("compare: {}\n")
	if err != nil {
		t.Fatalf("LoadFromString failed: %v", err)
	}
	d := Default()
	if cfg.Compare.Mode != ModeQuick || !cfg.Compare.CaseSensitive || !cfg.Compare.VerifyContent {
		t.Errorf("defaults not applied: %+v", cfg.Compare)
	}
	if cfg.State.Dir != d.State.Dir || !cfg.State.Enabled {
		t.Errorf("unexpected state defaults: %+v", cfg.State)
	}
	if cfg.Watch.Interval != d.Watch.Interval {
		t.Errorf("expected default watch interval, got %v", cfg.Watch.Interval)
	}
	if cfg.GDrive.Configured() || cfg.GDrive.TokenPath != d.GDrive.TokenPath {
		t.Errorf("unexpected gdrive defaults: %+v", cfg.GDrive)
	}
	if cfg.Log.File.MaxSizeMB != 10 {
		t.Errorf("expected log file defaults, got %+v", cfg.Log.File)
	}
}

func TestLoadFromString_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown mode", "compare:\n  mode: fast\n"},
		{"unknown algorithm", "compare:\n  algorithms: [sha1]\n"},
		{"bad glob", "compare:\n  ignore: [\"[abc\"]\n"},
		{"negative tolerance", "compare:\n  mtime_tolerance: -1s\n"},
		{"negative workers", "compare:\n  max_parallelism: -2\n"},
		{"bad format", "baseline:\n  format: xml\n"},
		{"zero watch interval", "watch:\n  interval: 0s\n"},
		{"malformed yaml", "compare: [\n"},
		{"state without dir", "state:\n  enabled: true\n  dir: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromString(tt.yaml)
			if !errors.Is(err, domain.ErrConfigInvalid) {
				t.Errorf("expected ErrConfigInvalid, got %v", err)
			}
		})
	}
}

func TestAlgorithmPolicy(t *testing.T) {
	tests := []struct {
		name         string
		cfg          CompareConfig
		wantCompare  []domain.HashAlgorithm
		wantSnapshot []domain.HashAlgorithm
	}{
		{"quick", CompareConfig{Mode: ModeQuick}, nil, []domain.HashAlgorithm{domain.HashCRC32}},
		{"hash", CompareConfig{Mode: ModeHash}, []domain.HashAlgorithm{domain.HashSHA256}, []domain.HashAlgorithm{domain.HashSHA256}},
		{
			"explicit wins",
			CompareConfig{Mode: ModeHash, Algorithms: []string{"crc32"}},
			[]domain.HashAlgorithm{domain.HashCRC32},
			[]domain.HashAlgorithm{domain.HashCRC32},
		},
	}

	equal := func(a, b []domain.HashAlgorithm) bool {
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
		return true
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.CompareAlgorithms()
			if err != nil || !equal(got, tt.wantCompare) {
				t.Errorf("CompareAlgorithms() = %v, %v; want %v", got, err, tt.wantCompare)
			}
			got, err = tt.cfg.SnapshotAlgorithms()
			if err != nil || !equal(got, tt.wantSnapshot) {
				t.Errorf("SnapshotAlgorithms() = %v, %v; want %v", got, err, tt.wantSnapshot)
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "treecmp.yaml")
	content := "compare:\n  mode: hash\nstate:\n  dir: " + filepath.ToSlash(dir) + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Compare.Mode != ModeHash {
		t.Errorf("expected hash mode, got %q", cfg.Compare.Mode)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, domain.ErrConfigNotFound) {
		t.Errorf("expected ErrConfigNotFound, got %v", err)
	}

	_, err = LoadOrDefault(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, domain.ErrConfigNotFound) {
		t.Errorf("explicit missing path should still fail, got %v", err)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TREECMP_COMPARE_MODE", "hash")
	t.Setenv("TREECMP_COMPARE_MAX_PARALLELISM", "3")

	cfg, err := LoadFromString("compare:\n  mode: quick\n")
	if err != nil {
		t.Fatalf("LoadFromString failed: %v", err)
	}
	if cfg.Compare.Mode != ModeHash {
		t.Errorf("env should override file, got %q", cfg.Compare.Mode)
	}
	if cfg.Compare.MaxParallelism != 3 {
		t.Errorf("expected 3 workers, got %d", cfg.Compare.MaxParallelism)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	t.Setenv("TREECMP_TEST_DIR", "/srv/data")

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"~", home},
		{"~/x", filepath.Join(home, "x")},
		{"$TREECMP_TEST_DIR/y", filepath.Clean("/srv/data/y")},
	}
	for _, tt := range tests {
		if got := ExpandPath(tt.in); got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
