package diff

import (
	"fmt"
	"strings"
	"time"

	"github.com/Ning0612/Treecmp/internal/domain"
)

// DiffResult represents the comparison result between two files
type DiffResult int

const (
	// FilesIdentical indicates files are the same
	FilesIdentical DiffResult = iota
	// FileModified indicates file exists on both sides but differs
	FileModified
)

// String returns the string representation of the result
func (r DiffResult) String() string {
	switch r {
	case FilesIdentical:
		return "identical"
	case FileModified:
		return "modified"
	default:
		return "unknown"
	}
}

// Comparer compares file metadata
type Comparer interface {
	// Compare compares left and right file info
	Compare(left, right *domain.FileInfo) DiffResult
}

// DefaultComparer uses size + mtime comparison. Modification times are
// considered equal when they are at most Tolerance apart.
type DefaultComparer struct {
	Tolerance time.Duration
}

// NewToleranceComparer creates a comparer accepting clock skew up to tolerance
func NewToleranceComparer(tolerance time.Duration) *DefaultComparer {
	if tolerance < 0 {
		tolerance = 0
	}
	return &DefaultComparer{Tolerance: tolerance}
}

// Compare implements the Comparer interface
func (c *DefaultComparer) Compare(left, right *domain.FileInfo) DiffResult {
	if left.Type != right.Type {
		return FileModified
	}
	if left.IsDir() {
		// Directory verdicts come from their children
		return FilesIdentical
	}

	if left.Size != right.Size {
		return FileModified
	}
	if !c.ModTimeEqual(left.ModTime, right.ModTime) {
		return FileModified
	}
	return FilesIdentical
}

// ModTimeEqual reports whether |a-b| <= Tolerance
func (c *DefaultComparer) ModTimeEqual(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= c.Tolerance
}

// DigestsEqual reports whether two digest sets agree on every algorithm.
// Hex case is ignored. Sets of different shape are a caller defect and
// return domain.ErrHashMismatchShape.
func DigestsEqual(left, right map[domain.HashAlgorithm]string) (bool, error) {
	if len(left) != len(right) {
		return false, fmt.Errorf("%w: %d vs %d digests", domain.ErrHashMismatchShape, len(left), len(right))
	}
	equal := true
	for algo, l := range left {
		r, ok := right[algo]
		if !ok {
			return false, fmt.Errorf("%w: %s missing on one side", domain.ErrHashMismatchShape, algo)
		}
		if !strings.EqualFold(l, r) {
			equal = false
		}
	}
	return equal, nil
}
