package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/Ning0612/Treecmp/internal/domain"
)

// Adapter implements adapter.FileSystem over a go-billy filesystem rooted at
// a directory of the local disk.
type Adapter struct {
	root string
	fs   billy.Filesystem
}

// New creates a new local filesystem adapter
// root must point to an existing directory
func New(root string) (*Adapter, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrDirectoryNotFound, absRoot)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", domain.ErrDirectoryNotFound, absRoot)
	}

	return &Adapter{root: absRoot, fs: osfs.New(absRoot)}, nil
}

// NewWithFilesystem wraps an existing billy filesystem. root is only used
// for display.
func NewWithFilesystem(root string, fs billy.Filesystem) *Adapter {
	return &Adapter{root: root, fs: fs}
}

// Root returns the root path of this adapter
func (a *Adapter) Root() string {
	return a.root
}

// resolvePath converts a root-relative slash path to a billy path.
// Paths escaping the root are rejected.
func (a *Adapter) resolvePath(relPath string) (string, error) {
	if relPath == "" || relPath == "." {
		return ".", nil
	}
	if filepath.IsAbs(relPath) || strings.HasPrefix(relPath, "/") {
		return "", domain.ErrPermissionDenied
	}
	for _, part := range strings.Split(filepath.ToSlash(relPath), "/") {
		if part == ".." {
			return "", domain.ErrPermissionDenied
		}
	}
	clean := domain.NormalizePath(relPath)
	if clean == "" {
		return ".", nil
	}
	return filepath.FromSlash(clean), nil
}

// Stat returns metadata for a single path
func (a *Adapter) Stat(ctx context.Context, path string) (domain.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return domain.FileInfo{}, err
	}
	fullPath, err := a.resolvePath(path)
	if err != nil {
		return domain.FileInfo{}, err
	}

	info, err := a.fs.Stat(fullPath)
	if err != nil {
		return domain.FileInfo{}, a.mapError(err, path)
	}

	return fileInfoFromOS(domain.NormalizePath(path), info), nil
}

// List returns all files and directories directly under the given path
func (a *Adapter) List(ctx context.Context, path string) ([]domain.FileInfo, error) {
	fullPath, err := a.resolvePath(path)
	if err != nil {
		return nil, err
	}

	info, err := a.fs.Stat(fullPath)
	if err != nil {
		return nil, a.mapError(err, path)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotDirectory, path)
	}

	entries, err := a.fs.ReadDir(fullPath)
	if err != nil {
		return nil, a.mapError(err, path)
	}

	dir := domain.NormalizePath(path)
	var ancestors []os.FileInfo
	result := make([]domain.FileInfo, 0, len(entries))
	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		entryPath := domain.JoinPath(dir, entry.Name())
		if entry.Mode()&os.ModeSymlink != 0 {
			// Follow links; dangling and looping ones are skipped
			target, err := a.fs.Stat(filepath.FromSlash(entryPath))
			if err != nil {
				continue
			}
			if target.IsDir() {
				if ancestors == nil {
					ancestors = a.ancestors(dir)
				}
				if loops(target, ancestors) {
					continue
				}
			}
			entry = target
		}
		if !entry.IsDir() && !entry.Mode().IsRegular() {
			continue // devices, sockets, pipes
		}

		result = append(result, fileInfoFromOS(entryPath, entry))
	}

	return result, nil
}

// ancestors stats dir and every directory above it up to the root
func (a *Adapter) ancestors(dir string) []os.FileInfo {
	var infos []os.FileInfo
	for {
		fullPath, err := a.resolvePath(dir)
		if err == nil {
			if info, err := a.fs.Stat(fullPath); err == nil {
				infos = append(infos, info)
			}
		}
		if dir == "" {
			return infos
		}
		dir = domain.ParentPath(dir)
	}
}

// loops reports whether target is one of the directories being listed
// through. Following such a link would recurse forever.
func loops(target os.FileInfo, ancestors []os.FileInfo) bool {
	for _, info := range ancestors {
		if os.SameFile(target, info) {
			return true
		}
	}
	return false
}

// Open opens a file for reading
func (a *Adapter) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := a.resolvePath(path)
	if err != nil {
		return nil, err
	}

	info, err := a.fs.Stat(fullPath)
	if err != nil {
		return nil, a.mapError(err, path)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFile, path)
	}

	file, err := a.fs.Open(fullPath)
	if err != nil {
		return nil, a.mapError(err, path)
	}

	return file, nil
}

// fileInfoFromOS converts os.FileInfo to domain.FileInfo
func fileInfoFromOS(path string, info os.FileInfo) domain.FileInfo {
	fileType := domain.FileTypeRegular
	size := info.Size()
	if info.IsDir() {
		fileType = domain.FileTypeDirectory
		size = 0
	}

	name := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		name = path[i+1:]
	}

	return domain.FileInfo{
		Name:    name,
		Path:    path,
		Type:    fileType,
		Size:    size,
		ModTime: info.ModTime(),
	}
}

// mapError converts OS errors to domain errors
func (a *Adapter) mapError(err error, path string) error {
	if err == nil {
		return nil
	}

	switch {
	case os.IsNotExist(err):
		return fmt.Errorf("%w: %s", domain.ErrNotFound, path)
	case os.IsPermission(err):
		return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, path)
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return fmt.Errorf("%s: %w", path, pathErr.Err)
	}

	return err
}
