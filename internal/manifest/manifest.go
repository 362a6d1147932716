// Package manifest persists baseline manifests. JSON is the default
// format; files ending in .msgpack or .mpk use MessagePack.
package manifest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/Ning0612/Treecmp/internal/domain"
)

// Format identifies a manifest encoding
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

// IsValid checks if the format is supported
func (f Format) IsValid() bool {
	return f == FormatJSON || f == FormatMsgpack
}

// ParseFormat parses a format name
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "msgpack", "mpk":
		return FormatMsgpack, nil
	default:
		return "", fmt.Errorf("unknown manifest format %q", s)
	}
}

// FormatForPath picks the format from the file extension
func FormatForPath(path string) Format {
	return ResolveFormat(path, FormatJSON)
}

// ResolveFormat picks the format from the file extension, using fallback
// when the extension is not recognised
func ResolveFormat(path string, fallback Format) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".msgpack", ".mpk":
		return FormatMsgpack
	default:
		return fallback
	}
}

// sniff guesses the encoding from the first significant byte. JSON
// manifests are objects; a MessagePack map starts with a 0x8X or 0xDE/0xDF
// marker.
func sniff(r *bufio.Reader) Format {
	for {
		b, err := r.Peek(1)
		if err != nil {
			return FormatJSON
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			if _, err := r.ReadByte(); err != nil {
				return FormatJSON
			}
			continue
		case '{':
			return FormatJSON
		default:
			return FormatMsgpack
		}
	}
}

// Encode writes m to w
func Encode(w io.Writer, m *domain.BaselineManifest, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	case FormatMsgpack:
		enc := msgpack.NewEncoder(w)
		enc.SetSortMapKeys(true)
		return enc.Encode(m)
	default:
		return fmt.Errorf("unknown manifest format %q", format)
	}
}

// Decode reads a manifest from r and checks its version. Manifests with an
// unknown version are rejected, never upgraded.
func Decode(r io.Reader, format Format) (*domain.BaselineManifest, error) {
	var m domain.BaselineManifest
	var err error
	switch format {
	case FormatJSON:
		err = json.NewDecoder(r).Decode(&m)
	case FormatMsgpack:
		err = msgpack.NewDecoder(r).Decode(&m)
	default:
		return nil, fmt.Errorf("unknown manifest format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidManifest, err)
	}

	if m.Version != domain.ManifestVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", domain.ErrUnsupportedManifestVersion, m.Version, domain.ManifestVersion)
	}
	if m.Root == nil || !m.Root.IsDir() {
		return nil, fmt.Errorf("%w: root entry missing or not a directory", domain.ErrInvalidManifest)
	}
	return &m, nil
}

// Save writes m to path atomically, in the format implied by its extension
func Save(path string, m *domain.BaselineManifest) error {
	return SaveAs(path, m, FormatForPath(path))
}

// SaveAs writes m to path atomically in the given format
func SaveAs(path string, m *domain.BaselineManifest, format Format) error {
	var buf bytes.Buffer
	if err := Encode(&buf, m, format); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".manifest-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to move manifest into place: %w", err)
	}
	return nil
}

// Load reads the manifest at path. The encoding is detected from the
// content, so a manifest may carry any extension.
func Load(path string) (*domain.BaselineManifest, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	m, err := Decode(br, sniff(br))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
