// Package gdrive exposes a Google Drive folder as a read-only tree so it can
// be compared against a local directory or verified against a baseline.
package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"github.com/Ning0612/Treecmp/internal/domain"
	"github.com/Ning0612/Treecmp/internal/logger"
)

const (
	// Scheme prefixes tree arguments that name a Drive folder, e.g. gdrive:/backups/site
	Scheme = "gdrive:"
	// MimeTypeFolder is the MIME type for Google Drive folders
	MimeTypeFolder = "application/vnd.google-apps.folder"
	// PageSize is the number of files to fetch per request
	PageSize = 100

	fileFields = "id, name, mimeType, size, modifiedTime"
)

// IsDrivePath reports whether a tree argument names a Drive folder
func IsDrivePath(p string) bool {
	return strings.HasPrefix(p, Scheme)
}

// TrimScheme strips the gdrive: prefix
func TrimScheme(p string) string {
	return strings.TrimPrefix(p, Scheme)
}

// Adapter implements adapter.FileSystem for a Google Drive folder
type Adapter struct {
	service *drive.Service
	root    string   // Root folder path in Drive (e.g., "/backups/site")
	cache   *idCache // path -> file ID
	log     logger.Logger
}

// idCache caches path to ID lookups with thread-safe access
type idCache struct {
	mu    sync.RWMutex
	paths map[string]string
}

func newIDCache() *idCache {
	return &idCache{
		paths: make(map[string]string),
	}
}

func (c *idCache) get(path string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.paths[path]
	return id, ok
}

func (c *idCache) set(path, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths[path] = id
}

// New wraps an existing Drive service. The root folder must exist; it is
// never created.
func New(ctx context.Context, service *drive.Service, root string) (*Adapter, error) {
	if service == nil {
		return nil, fmt.Errorf("drive service cannot be nil")
	}

	a := &Adapter{
		service: service,
		root:    normalizeRoot(root),
		cache:   newIDCache(),
		log:     logger.With("component", "gdrive"),
	}

	info, err := a.Stat(ctx, "")
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrDirectoryNotFound, a.Root())
		}
		return nil, fmt.Errorf("failed to resolve root folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a folder", domain.ErrDirectoryNotFound, a.Root())
	}

	return a, nil
}

// Dial authenticates with a stored token and opens root
func Dial(ctx context.Context, auth *Authenticator, root string) (*Adapter, error) {
	service, err := auth.Service(ctx)
	if err != nil {
		return nil, err
	}
	return New(ctx, service, root)
}

// normalizeRoot returns root with a leading slash and no trailing slash.
// The Drive root itself is "".
func normalizeRoot(root string) string {
	root = strings.TrimSpace(root)
	if root == "" || root == "/" {
		return ""
	}
	if !strings.HasPrefix(root, "/") {
		root = "/" + root
	}
	return strings.TrimSuffix(root, "/")
}

// Root returns the root folder as a gdrive: path
func (a *Adapter) Root() string {
	if a.root == "" {
		return Scheme + "/"
	}
	return Scheme + a.root
}

// Stat returns metadata for a single path
func (a *Adapter) Stat(ctx context.Context, relPath string) (domain.FileInfo, error) {
	fullPath, err := a.joinPath(relPath)
	if err != nil {
		return domain.FileInfo{}, err
	}
	fileID, err := a.getFileID(ctx, fullPath)
	if err != nil {
		return domain.FileInfo{}, err
	}

	file, err := a.service.Files.Get(fileID).
		Fields(fileFields).
		Context(ctx).Do()
	if err != nil {
		return domain.FileInfo{}, a.mapError(err)
	}

	info := a.fileInfo(domain.ParentPath(domain.NormalizePath(relPath)), file)
	if relPath == "" {
		info.Name, info.Path = "", ""
	}
	return info, nil
}

// List returns the entries directly under relPath
func (a *Adapter) List(ctx context.Context, relPath string) ([]domain.FileInfo, error) {
	info, err := a.Stat(ctx, relPath)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotDirectory, relPath)
	}

	fullPath, _ := a.joinPath(relPath)
	folderID, err := a.getFileID(ctx, fullPath)
	if err != nil {
		return nil, err
	}
	dir := domain.NormalizePath(relPath)

	var result []domain.FileInfo
	pageToken := ""

	for {
		query := fmt.Sprintf("'%s' in parents and trashed = false", escapeQueryString(folderID))
		call := a.service.Files.List().
			Q(query).
			PageSize(PageSize).
			Fields(googleapi.Field("nextPageToken, files(" + fileFields + ")"))

		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		fileList, err := call.Context(ctx).Do()
		if err != nil {
			return nil, a.mapError(err)
		}

		for _, f := range fileList.Files {
			child := a.fileInfo(dir, f)
			result = append(result, child)
			if fp, err := a.joinPath(child.Path); err == nil {
				a.cache.set(fp, f.Id)
			}
		}

		pageToken = fileList.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return result, nil
}

// Open downloads a file's content
func (a *Adapter) Open(ctx context.Context, relPath string) (io.ReadCloser, error) {
	info, err := a.Stat(ctx, relPath)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFile, relPath)
	}

	fullPath, _ := a.joinPath(relPath)
	fileID, err := a.getFileID(ctx, fullPath)
	if err != nil {
		return nil, err
	}

	resp, err := a.service.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, a.mapError(err)
	}

	return resp.Body, nil
}

// joinPath joins relative path with root and validates against path traversal
func (a *Adapter) joinPath(relPath string) (string, error) {
	if relPath == "" || relPath == "." {
		return a.root, nil
	}

	if path.IsAbs(relPath) || strings.Contains(relPath, "\\") {
		return "", domain.ErrPermissionDenied
	}

	cleanPath := path.Clean(relPath)
	if cleanPath == ".." || strings.HasPrefix(cleanPath, "../") {
		return "", domain.ErrPermissionDenied
	}

	return path.Join(a.root+"/", cleanPath), nil
}

// escapeQueryString escapes special characters in Drive query strings
func escapeQueryString(s string) string {
	// Backslash first, then single quote
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "'", "\\'")
	return s
}

// getFileID resolves a full Drive path to a file ID, walking from the Drive root
func (a *Adapter) getFileID(ctx context.Context, fullPath string) (string, error) {
	if fullPath == "" || fullPath == "/" {
		return "root", nil
	}
	if id, ok := a.cache.get(fullPath); ok {
		return id, nil
	}

	parts := strings.Split(strings.TrimPrefix(fullPath, "/"), "/")
	currentID := "root"

	for i, part := range parts {
		partialPath := "/" + strings.Join(parts[:i+1], "/")
		if id, ok := a.cache.get(partialPath); ok {
			currentID = id
			continue
		}

		query := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false",
			escapeQueryString(part), escapeQueryString(currentID))
		fileList, err := a.service.Files.List().
			Q(query).
			PageSize(1).
			Fields("files(id, mimeType)").
			Context(ctx).Do()
		if err != nil {
			return "", a.mapError(err)
		}

		if len(fileList.Files) == 0 {
			return "", fmt.Errorf("%w: %s", domain.ErrNotFound, partialPath)
		}

		currentID = fileList.Files[0].Id
		a.cache.set(partialPath, currentID)
	}

	return currentID, nil
}

// fileInfo converts a Drive file to domain.FileInfo under dir
func (a *Adapter) fileInfo(dir string, file *drive.File) domain.FileInfo {
	info := domain.FileInfo{
		Name: file.Name,
		Path: domain.JoinPath(dir, file.Name),
		Type: domain.FileTypeRegular,
		Size: file.Size,
	}
	if file.MimeType == MimeTypeFolder {
		info.Type = domain.FileTypeDirectory
		info.Size = 0
	}
	if file.ModifiedTime != "" {
		mtime, err := time.Parse(time.RFC3339, file.ModifiedTime)
		if err != nil {
			// Zero mtime makes the file compare as different in quick mode
			a.log.Warn("unparsable modified time", "path", info.Path, "value", file.ModifiedTime, "error", err)
		}
		info.ModTime = mtime
	}
	return info
}

// mapError converts Google API errors to domain errors
func (a *Adapter) mapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 404:
			return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
		case 401, 403:
			return fmt.Errorf("%w: %v", domain.ErrPermissionDenied, err)
		case 429:
			return fmt.Errorf("rate limit exceeded: %w", err)
		}
	}

	if strings.Contains(err.Error(), "notFound") {
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	}

	return err
}
