// Package ignore decides which entries are excluded from a comparison.
//
// Every path is included unless it matches at least one exclude pattern.
// Patterns use doublestar glob syntax against root-relative, forward-slash
// paths. A pattern without a slash also matches the entry's base name at any
// depth, so "*.log" behaves like "**/*.log".
package ignore

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Ning0612/Treecmp/internal/domain"
)

type pattern struct {
	glob     string
	baseOnly bool
}

// Matcher is a compiled, immutable set of exclude patterns. It is safe for
// concurrent use.
type Matcher struct {
	raw           []string
	patterns      []pattern
	caseSensitive bool
}

// New compiles patterns. Empty and whitespace-only patterns are dropped.
// Returns domain.ErrInvalidPattern for malformed globs.
func New(patterns []string, caseSensitive bool) (*Matcher, error) {
	m := &Matcher{caseSensitive: caseSensitive}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		glob := strings.ReplaceAll(p, "\\", "/")
		glob = strings.TrimPrefix(glob, "./")
		if !caseSensitive {
			glob = strings.ToLower(glob)
		}
		if !doublestar.ValidatePattern(glob) {
			return nil, fmt.Errorf("%w: %q", domain.ErrInvalidPattern, p)
		}
		m.raw = append(m.raw, p)
		m.patterns = append(m.patterns, pattern{
			glob:     strings.TrimSuffix(glob, "/"),
			baseOnly: !strings.Contains(strings.TrimSuffix(glob, "/"), "/"),
		})
	}
	return m, nil
}

// Patterns returns the patterns the matcher was built from
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.raw))
	copy(out, m.raw)
	return out
}

// CaseSensitive reports whether matching honours case
func (m *Matcher) CaseSensitive() bool {
	return m != nil && m.caseSensitive
}

// ShouldIgnore reports whether relPath is excluded. Directories are also
// tested with a trailing separator so "**/bin/**" excludes bin itself.
func (m *Matcher) ShouldIgnore(relPath string, isDir bool) bool {
	if m == nil || len(m.patterns) == 0 {
		return false
	}

	p := domain.NormalizePath(relPath)
	if p == "" {
		return false
	}
	if !m.caseSensitive {
		p = strings.ToLower(p)
	}
	base := p
	if i := strings.LastIndex(p, "/"); i >= 0 {
		base = p[i+1:]
	}

	for _, pat := range m.patterns {
		if match(pat.glob, p) {
			return true
		}
		if isDir && match(pat.glob, p+"/") {
			return true
		}
		if pat.baseOnly && base != p && match(pat.glob, base) {
			return true
		}
	}
	return false
}

func match(glob, name string) bool {
	ok, err := doublestar.Match(glob, name)
	return err == nil && ok
}
