package adapter

import (
	"context"
	"fmt"
	"io"

	"github.com/Ning0612/Treecmp/internal/domain"
)

// FileSystem is the read-only view of a tree that the comparison engines
// walk. All implementations must handle path normalization internally
// and return domain-level errors for consistent error handling.
//
// Paths are relative to Root, forward-slash separated; "" is the root itself.
type FileSystem interface {
	// Root returns a human readable description of the tree root
	Root() string

	// Stat returns metadata for a single path
	// Returns domain.ErrNotFound if path doesn't exist
	Stat(ctx context.Context, path string) (domain.FileInfo, error)

	// List returns the files and directories directly under the given path
	// Returns domain.ErrNotFound if path doesn't exist
	// Returns domain.ErrNotDirectory if path is a file
	List(ctx context.Context, path string) ([]domain.FileInfo, error)

	// Open opens a file for reading
	// Caller is responsible for closing the reader
	// Returns domain.ErrNotFound if file doesn't exist
	// Returns domain.ErrNotFile if path is a directory
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// IsDirectory reports whether path exists on fs and is a directory
func IsDirectory(ctx context.Context, fs FileSystem, path string) (bool, error) {
	info, err := fs.Stat(ctx, path)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// RequireDirectory checks that the root of fs is an existing directory.
// side names the tree in the error ("left", "live", ...).
func RequireDirectory(ctx context.Context, fs FileSystem, side string) error {
	ok, err := IsDirectory(ctx, fs, "")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s root %s: %v", domain.ErrDirectoryNotFound, side, fs.Root(), err)
	}
	if !ok {
		return fmt.Errorf("%w: %s root %s is not a directory", domain.ErrDirectoryNotFound, side, fs.Root())
	}
	return nil
}
