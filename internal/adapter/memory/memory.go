// Package memory provides a deterministic in-memory tree for tests and for
// callers that assemble trees programmatically.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Ning0612/Treecmp/internal/domain"
)

type entry struct {
	info    domain.FileInfo
	data    []byte
	readErr error
}

// Adapter implements adapter.FileSystem over an in-memory map
type Adapter struct {
	mu      sync.RWMutex
	name    string
	entries map[string]*entry
}

// New creates an empty tree. name is returned by Root.
func New(name string) *Adapter {
	a := &Adapter{
		name:    name,
		entries: make(map[string]*entry),
	}
	a.entries[""] = &entry{info: domain.FileInfo{Type: domain.FileTypeDirectory}}
	return a
}

// Root returns the name given to New
func (a *Adapter) Root() string {
	return a.name
}

// AddFile creates or replaces a file, creating parent directories
func (a *Adapter) AddFile(path string, data []byte, modTime time.Time) {
	path = domain.NormalizePath(path)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.mkdirAllLocked(domain.ParentPath(path), modTime)
	buf := make([]byte, len(data))
	copy(buf, data)
	a.entries[path] = &entry{
		info: domain.FileInfo{
			Name:    baseName(path),
			Path:    path,
			Type:    domain.FileTypeRegular,
			Size:    int64(len(buf)),
			ModTime: modTime,
		},
		data: buf,
	}
}

// AddDir creates a directory and any missing parents
func (a *Adapter) AddDir(path string, modTime time.Time) {
	path = domain.NormalizePath(path)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.mkdirAllLocked(path, modTime)
}

// Remove deletes path and everything under it
func (a *Adapter) Remove(path string) {
	path = domain.NormalizePath(path)
	if path == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	prefix := path + "/"
	for p := range a.entries {
		if p == path || strings.HasPrefix(p, prefix) {
			delete(a.entries, p)
		}
	}
}

// FailRead makes every subsequent Open (or List, for a directory) of path
// fail with err
func (a *Adapter) FailRead(path string, err error) {
	path = domain.NormalizePath(path)

	a.mu.Lock()
	defer a.mu.Unlock()

	if e, ok := a.entries[path]; ok {
		e.readErr = err
	}
}

func (a *Adapter) mkdirAllLocked(path string, modTime time.Time) {
	for path != "" {
		if e, ok := a.entries[path]; ok && e.info.IsDir() {
			return
		}
		a.entries[path] = &entry{info: domain.FileInfo{
			Name:    baseName(path),
			Path:    path,
			Type:    domain.FileTypeDirectory,
			ModTime: modTime,
		}}
		path = domain.ParentPath(path)
	}
}

// Stat returns metadata for a single path
func (a *Adapter) Stat(ctx context.Context, path string) (domain.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return domain.FileInfo{}, err
	}
	path = domain.NormalizePath(path)

	a.mu.RLock()
	defer a.mu.RUnlock()

	e, ok := a.entries[path]
	if !ok {
		return domain.FileInfo{}, fmt.Errorf("%w: %s", domain.ErrNotFound, path)
	}
	return e.info, nil
}

// List returns the direct children of path sorted by name
func (a *Adapter) List(ctx context.Context, path string) ([]domain.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path = domain.NormalizePath(path)

	a.mu.RLock()
	defer a.mu.RUnlock()

	e, ok := a.entries[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, path)
	}
	if !e.info.IsDir() {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotDirectory, path)
	}
	if e.readErr != nil {
		return nil, e.readErr
	}

	var result []domain.FileInfo
	for p, child := range a.entries {
		if p != "" && domain.ParentPath(p) == path {
			result = append(result, child.info)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// Open returns a reader over a copy-free view of the file contents
func (a *Adapter) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path = domain.NormalizePath(path)

	a.mu.RLock()
	defer a.mu.RUnlock()

	e, ok := a.entries[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, path)
	}
	if e.info.IsDir() {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFile, path)
	}
	if e.readErr != nil {
		return nil, e.readErr
	}
	return io.NopCloser(bytes.NewReader(e.data)), nil
}

func baseName(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}
