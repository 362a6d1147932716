package domain

import (
	"fmt"
	"sort"
	"strings"
)

// HashAlgorithm identifies a content digest algorithm
type HashAlgorithm string

const (
	HashCRC32    HashAlgorithm = "crc32"
	HashMD5      HashAlgorithm = "md5"
	HashSHA256   HashAlgorithm = "sha256"
	HashXXHash64 HashAlgorithm = "xxhash64"
)

// IsValid checks if the algorithm is supported
func (a HashAlgorithm) IsValid() bool {
	switch a {
	case HashCRC32, HashMD5, HashSHA256, HashXXHash64:
		return true
	default:
		return false
	}
}

// ParseHashAlgorithm parses an algorithm name, ignoring case and a few common aliases.
func ParseHashAlgorithm(s string) (HashAlgorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "crc32":
		return HashCRC32, nil
	case "md5":
		return HashMD5, nil
	case "sha256", "sha-256":
		return HashSHA256, nil
	case "xxhash64", "xxhash", "xxh64":
		return HashXXHash64, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, s)
	}
}

// ParseHashAlgorithms parses a list of names, dropping duplicates and keeping
// the first-seen order.
func ParseHashAlgorithms(names []string) ([]HashAlgorithm, error) {
	out := make([]HashAlgorithm, 0, len(names))
	seen := make(map[HashAlgorithm]bool, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		a, err := ParseHashAlgorithm(n)
		if err != nil {
			return nil, err
		}
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out, nil
}

// SortedAlgorithms returns the keys of a digest map in a stable order
func SortedAlgorithms(m map[HashAlgorithm]string) []HashAlgorithm {
	out := make([]HashAlgorithm, 0, len(m))
	for a := range m {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
