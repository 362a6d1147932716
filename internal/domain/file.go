package domain

import (
	"path"
	"strings"
	"time"
)

// FileType represents the type of a filesystem entry
type FileType int

const (
	FileTypeRegular FileType = iota
	FileTypeDirectory
)

// FileInfo represents metadata about a file or directory as seen through an adapter
type FileInfo struct {
	// Name is the last path element
	Name string

	// Path is the relative path from the adapter root, forward-slash separated.
	// The root itself has an empty path.
	Path string

	// Type indicates if this is a file or directory
	Type FileType

	// Size in bytes (0 for directories)
	Size int64

	// ModTime is the last modification time
	ModTime time.Time
}

// IsDir returns true if this is a directory
func (f FileInfo) IsDir() bool {
	return f.Type == FileTypeDirectory
}

// IsFile returns true if this is a regular file
func (f FileInfo) IsFile() bool {
	return f.Type == FileTypeRegular
}

// JoinPath joins a root-relative directory path and a child name.
func JoinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// ParentPath returns the root-relative parent of p. The parent of a
// top-level entry is the root ("").
func ParentPath(p string) string {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return ""
	}
	return p[:i]
}

// NormalizePath converts a relative path to the forward-slash form used
// throughout the comparison tree.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}
