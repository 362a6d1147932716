package manifest

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Ning0612/Treecmp/internal/domain"
)

func sampleManifest() *domain.BaselineManifest {
	size := int64(5)
	mtime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &domain.BaselineManifest{
		Version:               domain.ManifestVersion,
		SourcePath:            "/data/photos",
		CreatedAt:             time.Date(2024, 3, 2, 8, 30, 0, 0, time.UTC),
		IgnorePatterns:        []string{"**/*.tmp"},
		CaseSensitive:         true,
		ModifiedTimeTolerance: 2 * time.Second,
		Algorithms:            []domain.HashAlgorithm{domain.HashCRC32, domain.HashSHA256},
		Root: &domain.BaselineEntry{
			Type:    domain.NodeTypeDirectory,
			ModTime: &mtime,
			Children: []*domain.BaselineEntry{
				{
					Name:         "a.txt",
					RelativePath: "a.txt",
					Type:         domain.NodeTypeFile,
					Size:         &size,
					ModTime:      &mtime,
					Hashes: map[domain.HashAlgorithm]string{
						domain.HashCRC32:  "3610a686",
						domain.HashSHA256: "8ed3f6ad685b959ead7022518e1af76cd816f8e8ec7ccdda1ed4018e8f2223f8",
					},
				},
				{Name: "sub", RelativePath: "sub", Type: domain.NodeTypeDirectory, ModTime: &mtime},
			},
		},
	}
}

func assertSameManifest(t *testing.T, want, got *domain.BaselineManifest) {
	t.Helper()
	if got.Version != want.Version || got.SourcePath != want.SourcePath || !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("header mismatch: %+v", got)
	}
	if got.CaseSensitive != want.CaseSensitive || got.ModifiedTimeTolerance != want.ModifiedTimeTolerance {
		t.Errorf("settings mismatch: %+v", got)
	}
	if len(got.Algorithms) != 2 || got.Algorithms[1] != domain.HashSHA256 {
		t.Errorf("algorithms mismatch: %v", got.Algorithms)
	}
	if len(got.IgnorePatterns) != 1 || got.IgnorePatterns[0] != "**/*.tmp" {
		t.Errorf("ignore patterns mismatch: %v", got.IgnorePatterns)
	}
	if len(got.Root.Children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(got.Root.Children))
	}
	a := got.Root.Children[0]
	if a.Type != domain.NodeTypeFile || a.Size == nil || *a.Size != 5 || !a.ModTime.Equal(*want.Root.Children[0].ModTime) {
		t.Errorf("file entry mismatch: %+v", a)
	}
	if a.Hashes[domain.HashCRC32] != "3610a686" {
		t.Errorf("hash mismatch: %v", a.Hashes)
	}
	if sub := got.Root.Children[1]; !sub.IsDir() || sub.Size != nil {
		t.Errorf("directory entry mismatch: %+v", sub)
	}
}

func TestSaveLoad(t *testing.T) {
	for _, name := range []string{"base.json", "base.msgpack", "base.MPK", "nested/dir/base.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			want := sampleManifest()

			if err := Save(path, want); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			got, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			assertSameManifest(t, want, got)

			entries, _ := os.ReadDir(filepath.Dir(path))
			if len(entries) != 1 {
				t.Errorf("temp files left behind: %d entries", len(entries))
			}
		})
	}
}

func TestEncode_JSONShape(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, sampleManifest(), FormatJSON); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"version": 1`, `"type": "file"`, `"type": "directory"`, `"crc32": "3610a686"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in output", want)
		}
	}
}

func TestDecode_RejectsUnknownVersion(t *testing.T) {
	m := sampleManifest()
	m.Version = domain.ManifestVersion + 1

	for _, format := range []Format{FormatJSON, FormatMsgpack} {
		var buf bytes.Buffer
		if err := Encode(&buf, m, format); err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		if _, err := Decode(&buf, format); !errors.Is(err, domain.ErrUnsupportedManifestVersion) {
			t.Errorf("%s: expected ErrUnsupportedManifestVersion, got %v", format, err)
		}
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"garbage", "not json"},
		{"no root", `{"version": 1}`},
		{"file root", `{"version": 1, "root": {"type": "file"}}`},
		{"bad type", `{"version": 1, "root": {"type": "socket"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(strings.NewReader(tt.input), FormatJSON); !errors.Is(err, domain.ErrInvalidManifest) {
				t.Errorf("expected ErrInvalidManifest, got %v", err)
			}
		})
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFormats(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"a.json", FormatJSON},
		{"a", FormatJSON},
		{"a.msgpack", FormatMsgpack},
		{"a.mpk", FormatMsgpack},
	}
	for _, tt := range tests {
		if got := FormatForPath(tt.path); got != tt.want {
			t.Errorf("FormatForPath(%q) = %s, want %s", tt.path, got, tt.want)
		}
	}

	if f, err := ParseFormat("MsgPack"); err != nil || f != FormatMsgpack {
		t.Errorf("ParseFormat(MsgPack) = %s, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(\"\") = %s, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestLoad_DetectsFormat(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatMsgpack} {
		t.Run(string(format), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "baseline.dat")
			want := sampleManifest()
			if err := SaveAs(path, want, format); err != nil {
				t.Fatalf("SaveAs failed: %v", err)
			}
			got, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			assertSameManifest(t, want, got)
		})
	}

	if got := ResolveFormat("x.dat", FormatMsgpack); got != FormatMsgpack {
		t.Errorf("expected fallback format, got %s", got)
	}
	if got := ResolveFormat("x.json", FormatMsgpack); got != FormatJSON {
		t.Errorf("extension should win over fallback, got %s", got)
	}
}
